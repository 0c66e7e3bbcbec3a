package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/dshills/recordindex/pkg/types"
)

var (
	// ErrNotFound is returned when a requested document doesn't exist in the tenant
	ErrNotFound = errors.New("not found")
	// ErrNoEmbeddingSpec is returned when writing before the index dimension is set
	ErrNoEmbeddingSpec = errors.New("index has no embedding spec")
	// ErrModelChanged is returned when the configured embedding model differs
	// from the one the index was built with
	ErrModelChanged = errors.New("embedding model changed")
	// ErrUnsupportedDriver is returned for an unknown storage driver
	ErrUnsupportedDriver = errors.New("unsupported storage driver")
)

// Store is the durable document index. Every read is scoped by a TenantFilter.
type Store interface {
	// Upsert inserts or fully replaces the row keyed by doc.ID
	Upsert(ctx context.Context, doc *types.Document) error
	// UpsertBatch upserts all documents in one transaction
	UpsertBatch(ctx context.Context, docs []*types.Document) error
	// Delete removes rows by ID. Unknown IDs are ignored.
	Delete(ctx context.Context, ids []string) (int, error)
	Get(ctx context.Context, f TenantFilter, id string) (*types.Document, error)

	// VectorQuery returns up to k documents ranked by cosine similarity
	VectorQuery(ctx context.Context, vector []float32, k int, f TenantFilter) ([]Hit, error)
	// LexicalQuery returns up to k documents ranked by full-text relevance
	LexicalQuery(ctx context.Context, query string, k int, f TenantFilter) ([]Hit, error)

	Count(ctx context.Context, f TenantFilter) (int, error)
	Stats(ctx context.Context) (*Stats, error)

	// Revision returns a counter that advances whenever the tenant's
	// documents change, including writes from other processes
	Revision(ctx context.Context, f TenantFilter) (int64, error)

	// Meta returns the embedding spec the index was built with. The zero
	// spec means nothing has been recorded yet.
	Meta(ctx context.Context) (EmbeddingSpec, error)
	// ResetDimension deletes every document and records spec together
	// with the configured language, atomically
	ResetDimension(ctx context.Context, spec EmbeddingSpec) error

	// Language returns the configured lexical language
	Language() string
	// IndexedLanguage returns the language the lexical index was built
	// for, or "" before the first ResetDimension
	IndexedLanguage(ctx context.Context) (string, error)

	Close() error
}

// EmbeddingSpec identifies the embedding space stored in the index
type EmbeddingSpec struct {
	Provider  string `db:"provider" json:"provider"`
	Model     string `db:"model" json:"model"`
	Dimension int    `db:"dimension" json:"dimension"`
}

// IsZero reports whether no spec has been recorded
func (s EmbeddingSpec) IsZero() bool {
	return s.Dimension == 0
}

// Hit is one ranked row from a vector or lexical query
type Hit struct {
	ID         string           `db:"id"`
	TenantID   string           `db:"tenant_id"`
	RecordType types.RecordType `db:"record_type"`
	Title      string           `db:"title"`
	Text       string           `db:"text"`
	Rank       int              `db:"-"` // 1-based
	Score      float64          `db:"score"`
}

// Stats summarises index contents across all tenants
type Stats struct {
	Documents int
	Tenants   int
	ByType    map[types.RecordType]int
	Spec      EmbeddingSpec
	Language  string
	Backend   string
}

// EnsureSpec records spec on an empty index, or verifies that the existing
// index was built with a compatible embedding space and lexical language.
func EnsureSpec(ctx context.Context, s Store, spec EmbeddingSpec) error {
	current, err := s.Meta(ctx)
	if err != nil {
		return err
	}

	if current.IsZero() {
		return s.ResetDimension(ctx, spec)
	}

	if current.Dimension != spec.Dimension {
		return fmt.Errorf("%w: index has %d, embedder produces %d; run a migrating reindex",
			types.ErrDimensionMismatch, current.Dimension, spec.Dimension)
	}
	if current.Provider != spec.Provider || current.Model != spec.Model {
		return fmt.Errorf("%w: index built with %s/%s, configured %s/%s; run a migrating reindex",
			ErrModelChanged, current.Provider, current.Model, spec.Provider, spec.Model)
	}

	indexed, err := s.IndexedLanguage(ctx)
	if err != nil {
		return err
	}
	if indexed != "" && indexed != s.Language() {
		return fmt.Errorf("%w: lexical index built for %s, configured %s; run a migrating reindex",
			ErrLanguageChanged, indexed, s.Language())
	}
	return nil
}

func indexedLanguage(ctx context.Context, q sqlx.QueryerContext, query string) (string, error) {
	var language string
	err := sqlx.GetContext(ctx, q, &language, query)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read index language: %w", err)
	}
	return language, nil
}

// Config selects and configures a backend
type Config struct {
	Driver string // "sqlite" or "postgres"
	DSN    string

	// Language selects stemming and stop words for lexical queries. It is
	// also the PostgreSQL text search configuration. Empty means
	// DefaultLanguage.
	Language string
}

// Open opens the configured backend and applies pending migrations
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch cfg.Driver {
	case "", DriverSQLite:
		return NewSQLiteStore(ctx, cfg.DSN, cfg.Language)
	case DriverPostgres:
		return NewPostgresStore(ctx, cfg.DSN, cfg.Language)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedDriver, cfg.Driver)
	}
}

// Backend names
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

func rankHits(hits []Hit) []Hit {
	for i := range hits {
		hits[i].Rank = i + 1
	}
	return hits
}
