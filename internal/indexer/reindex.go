package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dshills/recordindex/internal/embedder"
	"github.com/dshills/recordindex/pkg/types"
)

// ReindexOptions tunes a bulk run
type ReindexOptions struct {
	// Force re-embeds documents whose stored content is unchanged
	Force bool
	// Tenant restricts the run to one tenant's records when set
	Tenant string
}

// Reindex streams every entity from src through normalize, embed and
// upsert using a bounded worker pool. Per-record failures are collected in
// the returned Statistics; only source, context and lock errors abort.
func (idx *Indexer) Reindex(ctx context.Context, src EntitySource, opts ReindexOptions) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrReindexInProgress
	}
	defer idx.lock.Release()

	return idx.reindex(ctx, src, opts)
}

// MigrateDimension switches the index to the configured embedder's space.
// The store is truncated and the new spec recorded in one transaction,
// then every entity from src is re-embedded.
func (idx *Indexer) MigrateDimension(ctx context.Context, src EntitySource) (*Statistics, error) {
	if !idx.lock.TryAcquire() {
		return nil, ErrReindexInProgress
	}
	defer idx.lock.Release()

	spec := idx.Spec()
	if err := idx.store.ResetDimension(ctx, spec); err != nil {
		return nil, fmt.Errorf("reset dimension: %w", err)
	}
	idx.invalidateAll()

	idx.logger.Info().
		Str("provider", spec.Provider).
		Str("model", spec.Model).
		Int("dimension", spec.Dimension).
		Msg("index truncated for new embedding space")

	return idx.reindex(ctx, src, ReindexOptions{Force: true})
}

// batchTally accumulates results from concurrent workers
type batchTally struct {
	mu      sync.Mutex
	stats   *Statistics
	tenants map[string]struct{}
}

func (t *batchTally) fail(id string, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Failed++
	if id == "" {
		t.stats.ErrorMessages = append(t.stats.ErrorMessages, err.Error())
		return
	}
	t.stats.ErrorMessages = append(t.stats.ErrorMessages, fmt.Sprintf("%s: %v", id, err))
}

func (t *batchTally) add(indexed, skipped int, tenants ...string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Indexed += indexed
	t.stats.Skipped += skipped
	for _, tenant := range tenants {
		t.tenants[tenant] = struct{}{}
	}
}

func (idx *Indexer) reindex(ctx context.Context, src EntitySource, opts ReindexOptions) (*Statistics, error) {
	startTime := time.Now()
	tally := &batchTally{
		stats:   &Statistics{ErrorMessages: make([]string, 0)},
		tenants: make(map[string]struct{}),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(idx.workers)

	batch := make([]*types.Document, 0, idx.batchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		docs := batch
		batch = make([]*types.Document, 0, idx.batchSize)
		g.Go(func() error {
			return idx.indexBatch(gctx, docs, opts.Force, tally)
		})
	}

	var srcErr error
	for {
		if err := gctx.Err(); err != nil {
			break
		}

		e, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var recErr *RecordError
		if errors.As(err, &recErr) {
			if errors.Is(err, types.ErrTenantRequired) {
				tally.add(0, 1)
				continue
			}
			tally.fail("", err)
			continue
		}
		if err != nil {
			srcErr = err
			break
		}

		if opts.Tenant != "" && e.Tenant() != opts.Tenant {
			continue
		}

		doc, err := idx.prepare(e)
		if errors.Is(err, types.ErrTenantRequired) {
			tally.add(0, 1)
			continue
		}
		if err != nil {
			tally.fail(types.NewDocumentID(e.RecordType(), e.Key()), err)
			continue
		}

		batch = append(batch, doc)
		if len(batch) == idx.batchSize {
			flush()
		}
	}
	flush()

	waitErr := g.Wait()

	for tenant := range tally.tenants {
		idx.invalidate(tenant)
	}

	stats := tally.stats
	stats.Duration = time.Since(startTime)

	if srcErr != nil {
		return stats, srcErr
	}
	if waitErr != nil {
		return stats, waitErr
	}
	if err := ctx.Err(); err != nil {
		return stats, err
	}

	idx.logger.Info().
		Int("indexed", stats.Indexed).
		Int("skipped", stats.Skipped).
		Int("failed", stats.Failed).
		Dur("duration", stats.Duration).
		Msg("reindex complete")

	return stats, nil
}

// indexBatch embeds and writes one batch. Only context cancellation is
// returned; other failures are tallied.
func (idx *Indexer) indexBatch(ctx context.Context, docs []*types.Document, force bool, tally *batchTally) error {
	pending := docs
	if !force {
		pending = pending[:0:0]
		for _, doc := range docs {
			if idx.unchanged(ctx, doc) {
				tally.add(0, 1)
				continue
			}
			pending = append(pending, doc)
		}
	}
	if len(pending) == 0 {
		return nil
	}

	texts := make([]string, len(pending))
	for i, doc := range pending {
		texts[i] = doc.Text
	}

	vectors, err := embedder.EmbedAll(ctx, idx.embedder, texts, idx.batchSize)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		for _, doc := range pending {
			tally.fail(doc.ID, err)
		}
		return nil
	}
	for i, doc := range pending {
		doc.Embedding = vectors[i]
	}

	tenants := make([]string, 0, len(pending))
	for _, doc := range pending {
		tenants = append(tenants, doc.TenantID)
	}

	if err := idx.store.UpsertBatch(ctx, pending); err == nil {
		tally.add(len(pending), 0, tenants...)
		return nil
	} else if ctx.Err() != nil {
		return ctx.Err()
	}

	// One bad document fails the whole transaction; retry individually
	for _, doc := range pending {
		if err := idx.store.Upsert(ctx, doc); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			tally.fail(doc.ID, err)
			continue
		}
		tally.add(1, 0, doc.TenantID)
	}
	return nil
}
