package indexer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/dshills/recordindex/internal/embedder"
	"github.com/dshills/recordindex/internal/normalizer"
	"github.com/dshills/recordindex/internal/records"
	"github.com/dshills/recordindex/internal/storage"
	"github.com/dshills/recordindex/pkg/types"
)

// ErrReindexInProgress is returned when a bulk run is already executing
var ErrReindexInProgress = errors.New("reindex already in progress")

// CacheInvalidator is notified after index writes so cached query results
// never outlive the documents they were built from
type CacheInvalidator interface {
	InvalidateTenant(tenant string)
	InvalidateCache()
}

// Indexer normalizes, embeds and stores records
type Indexer struct {
	store      storage.Store
	embedder   embedder.Embedder
	normalizer *normalizer.Normalizer
	logger     zerolog.Logger

	invalidators []CacheInvalidator
	lock         IndexLock

	workers   int
	batchSize int
}

// Config contains configuration for the indexer
type Config struct {
	Workers      int // Concurrent bulk workers (default: runtime.NumCPU())
	BatchSize    int // Documents per embedding call and transaction (default: embedder.DefaultBatchSize)
	MaxTextChars int // Bound on normalized contract text, 0 for the built-in limit
}

// Statistics contains statistics about a bulk indexing run
type Statistics struct {
	Indexed       int
	Skipped       int
	Failed        int
	Duration      time.Duration
	ErrorMessages []string
}

// New creates a new Indexer instance
func New(store storage.Store, emb embedder.Embedder, cfg Config, logger zerolog.Logger) *Indexer {
	if cfg.Workers <= 0 {
		cfg.Workers = runtime.NumCPU()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = embedder.DefaultBatchSize
	}
	if cfg.BatchSize > embedder.MaxBatchSize {
		cfg.BatchSize = embedder.MaxBatchSize
	}

	return &Indexer{
		store:      store,
		embedder:   emb,
		normalizer: normalizer.New(cfg.MaxTextChars),
		logger:     logger.With().Str("component", "indexer").Logger(),
		workers:    cfg.Workers,
		batchSize:  cfg.BatchSize,
	}
}

// AddInvalidator registers a cache to purge after writes
func (idx *Indexer) AddInvalidator(c CacheInvalidator) {
	idx.invalidators = append(idx.invalidators, c)
}

// Spec is the embedding space this indexer writes
func (idx *Indexer) Spec() storage.EmbeddingSpec {
	return storage.EmbeddingSpec{
		Provider:  idx.embedder.Provider(),
		Model:     idx.embedder.Model(),
		Dimension: idx.embedder.Dimension(),
	}
}

// EnsureReady records the embedding spec on an empty index, or checks it
// against the existing one
func (idx *Indexer) EnsureReady(ctx context.Context) error {
	return storage.EnsureSpec(ctx, idx.store, idx.Spec())
}

// Index normalizes, embeds and upserts one entity. Unchanged documents are
// not re-embedded.
func (idx *Indexer) Index(ctx context.Context, e records.Entity) error {
	doc, err := idx.prepare(e)
	if err != nil {
		return err
	}

	if idx.unchanged(ctx, doc) {
		idx.logger.Debug().Str("doc_id", doc.ID).Msg("document unchanged")
		return nil
	}

	embedding, err := idx.embedder.GenerateEmbedding(ctx, embedder.EmbeddingRequest{Text: doc.Text})
	if err != nil {
		return fmt.Errorf("embed %s: %w", doc.ID, err)
	}
	if err := embedder.ValidateDimension(embedding.Vector, idx.embedder.Dimension()); err != nil {
		return fmt.Errorf("embed %s: %w", doc.ID, err)
	}
	doc.Embedding = embedding.Vector

	if err := idx.store.Upsert(ctx, doc); err != nil {
		return fmt.Errorf("upsert %s: %w", doc.ID, err)
	}

	idx.invalidate(doc.TenantID)
	return nil
}

// Remove deletes the document for ref. Removing a missing document is not an error.
func (idx *Indexer) Remove(ctx context.Context, ref records.Ref) error {
	if _, _, err := types.ParseDocumentID(ref.DocumentID()); err != nil {
		return err
	}

	if _, err := idx.store.Delete(ctx, []string{ref.DocumentID()}); err != nil {
		return fmt.Errorf("delete %s: %w", ref.DocumentID(), err)
	}

	if ref.TenantID == "" {
		idx.invalidateAll()
	} else {
		idx.invalidate(ref.TenantID)
	}
	return nil
}

// prepare normalizes e into a document without an embedding
func (idx *Indexer) prepare(e records.Entity) (*types.Document, error) {
	if e == nil {
		return nil, records.ErrMissingRecord
	}
	if strings.TrimSpace(e.Tenant()) == "" {
		return nil, fmt.Errorf("%s %s: %w", e.RecordType(), e.Key(), types.ErrTenantRequired)
	}

	doc := idx.normalizer.Normalize(e)
	doc.UpdatedAt = time.Now().UTC()
	if _, _, err := types.ParseDocumentID(doc.ID); err != nil {
		return nil, err
	}
	return &doc, nil
}

// unchanged reports whether the stored row already holds doc's content
// in the current embedding space
func (idx *Indexer) unchanged(ctx context.Context, doc *types.Document) bool {
	f, err := storage.NewTenantFilter(doc.TenantID)
	if err != nil {
		return false
	}
	stored, err := idx.store.Get(ctx, f, doc.ID)
	if err != nil {
		return false
	}
	return stored.ContentHash() == doc.ContentHash() && len(stored.Embedding) == idx.embedder.Dimension()
}

func (idx *Indexer) invalidate(tenant string) {
	for _, c := range idx.invalidators {
		c.InvalidateTenant(tenant)
	}
}

func (idx *Indexer) invalidateAll() {
	for _, c := range idx.invalidators {
		c.InvalidateCache()
	}
}
