package indexer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/recordindex/internal/embedder/embeddertest"
	"github.com/dshills/recordindex/internal/records"
	"github.com/dshills/recordindex/internal/storage"
	"github.com/dshills/recordindex/pkg/types"
)

const entitiesJSONL = `
{"type":"task","record":{"id":"1","tenant_id":"A","title":"Buy a spaceship","description":"to reach Mars"}}
{"type":"company","record":{"id":"1","tenant_id":"A","name":"Acme","industry":"rockets"}}
{"type":"contract","record":{"id":"9","tenant_id":"B","title":"Globex renewal","amount":1200}}
not json
{"type":"page","record":{"id":"3","title":"Orphan page without a tenant"}}
{"type":"invoice","record":{"id":"1","tenant_id":"A"}}
`

func TestJSONLSource(t *testing.T) {
	src := NewJSONLSource(strings.NewReader(entitiesJSONL))

	var entities []records.Entity
	var recordErrs []*RecordError
	for {
		e, err := src.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		var recErr *RecordError
		if errors.As(err, &recErr) {
			recordErrs = append(recordErrs, recErr)
			continue
		}
		require.NoError(t, err)
		entities = append(entities, e)
	}

	require.Len(t, entities, 3)
	assert.Equal(t, "task_1", records.RefOf(entities[0]).DocumentID())
	assert.Equal(t, "company_1", records.RefOf(entities[1]).DocumentID())
	assert.Equal(t, "B", entities[2].Tenant())

	require.Len(t, recordErrs, 3)
	assert.Equal(t, 5, recordErrs[0].Line)
	assert.ErrorIs(t, recordErrs[1], types.ErrTenantRequired)
	assert.ErrorIs(t, recordErrs[2], types.ErrUnknownRecordType)
}

func TestReindex(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	emb := embeddertest.NewVocab(vocabulary...)
	idx := newTestIndexer(t, store, emb)
	inv := &recordingInvalidator{}
	idx.AddInvalidator(inv)

	stats, err := idx.Reindex(ctx, NewJSONLSource(strings.NewReader(entitiesJSONL)), ReindexOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Indexed)
	assert.Equal(t, 1, stats.Skipped, "tenant-less record")
	assert.Equal(t, 2, stats.Failed, "malformed line and unknown type")
	assert.Len(t, stats.ErrorMessages, 2)
	assert.Equal(t, 2, count(t, store, "A"))
	assert.Equal(t, 1, count(t, store, "B"))
	assert.ElementsMatch(t, []string{"A", "B"}, inv.tenants)

	t.Run("unchanged records are skipped", func(t *testing.T) {
		calls := emb.Calls()
		stats, err := idx.Reindex(ctx, NewJSONLSource(strings.NewReader(entitiesJSONL)), ReindexOptions{})
		require.NoError(t, err)
		assert.Zero(t, stats.Indexed)
		assert.Equal(t, 4, stats.Skipped)
		assert.Equal(t, calls, emb.Calls())
	})

	t.Run("force re-embeds", func(t *testing.T) {
		stats, err := idx.Reindex(ctx, NewJSONLSource(strings.NewReader(entitiesJSONL)), ReindexOptions{Force: true})
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Indexed)
	})

	t.Run("single tenant", func(t *testing.T) {
		stats, err := idx.Reindex(ctx, NewJSONLSource(strings.NewReader(entitiesJSONL)), ReindexOptions{Force: true, Tenant: "B"})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.Indexed)
	})
}

func TestReindexIsolatesBadDocuments(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	idx := newTestIndexer(t, store, embeddertest.NewVocab(vocabulary...))
	require.NoError(t, idx.Index(ctx, task("2", "B", "Globex renewal", "")))

	src := NewSliceSource(
		task("1", "A", "Buy a spaceship", ""),
		task("2", "A", "Tenant hijack attempt", ""),
		task("3", "A", "Acme rockets", ""),
	)
	stats, err := idx.Reindex(ctx, src, ReindexOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Indexed)
	assert.Equal(t, 1, stats.Failed)
	require.Len(t, stats.ErrorMessages, 1)
	assert.Contains(t, stats.ErrorMessages[0], "task_2")
	assert.Equal(t, 2, count(t, store, "A"))
	assert.Equal(t, 1, count(t, store, "B"))
}

func TestReindexEmbeddingFailure(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	emb := embeddertest.NewVocab(vocabulary...)
	idx := newTestIndexer(t, store, emb)
	emb.Fail(errors.New("quota exceeded"))

	stats, err := idx.Reindex(ctx, NewSliceSource(task("1", "A", "a", ""), task("2", "A", "b", ""), task("3", "A", "c", "")), ReindexOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, stats.Failed)
	assert.Zero(t, stats.Indexed)
}

type brokenSource struct{}

func (brokenSource) Next() (records.Entity, error) { return nil, errors.New("disk gone") }

func TestReindexSourceError(t *testing.T) {
	idx := newTestIndexer(t, setupTestStorage(t), embeddertest.NewVocab(vocabulary...))

	_, err := idx.Reindex(context.Background(), brokenSource{}, ReindexOptions{})
	assert.EqualError(t, err, "disk gone")
	assert.False(t, idx.lock.Held())
}

func TestReindexCancelled(t *testing.T) {
	idx := newTestIndexer(t, setupTestStorage(t), embeddertest.NewVocab(vocabulary...))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := idx.Reindex(ctx, NewSliceSource(task("1", "A", "spaceship", "")), ReindexOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestReindexInProgress(t *testing.T) {
	idx := newTestIndexer(t, setupTestStorage(t), embeddertest.NewVocab(vocabulary...))
	require.True(t, idx.lock.TryAcquire())
	defer idx.lock.Release()

	_, err := idx.Reindex(context.Background(), NewSliceSource(), ReindexOptions{})
	assert.ErrorIs(t, err, ErrReindexInProgress)

	_, err = idx.MigrateDimension(context.Background(), NewSliceSource())
	assert.ErrorIs(t, err, ErrReindexInProgress)
}

func TestMigrateDimension(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)

	old := newTestIndexer(t, store, embeddertest.NewVocab("spaceship", "mars"))
	require.NoError(t, old.Index(ctx, task("1", "A", "Buy a spaceship", "")))
	require.NoError(t, old.Index(ctx, task("99", "A", "Deleted at source", "")))

	emb := embeddertest.NewVocab(vocabulary...)
	idx := New(store, emb, Config{Workers: 2, BatchSize: 2}, zerolog.Nop())
	require.ErrorIs(t, idx.EnsureReady(ctx), types.ErrDimensionMismatch)

	err := idx.Index(ctx, task("1", "A", "Buy a spaceship", ""))
	require.ErrorIs(t, err, types.ErrDimensionMismatch, "writes in the new space are refused before migration")

	inv := &recordingInvalidator{}
	idx.AddInvalidator(inv)

	src := NewSliceSource(task("1", "A", "Buy a spaceship", ""), task("2", "A", "Acme rockets", ""))
	stats, err := idx.MigrateDimension(ctx, src)
	require.NoError(t, err)
	assert.Equal(t, 2, stats.Indexed)
	assert.Equal(t, 1, inv.all)

	meta, err := store.Meta(ctx)
	require.NoError(t, err)
	assert.Equal(t, idx.Spec(), meta)
	require.NoError(t, idx.EnsureReady(ctx))

	assert.Equal(t, 2, count(t, store, "A"))
	_, err = store.Get(ctx, storage.MustTenantFilter("A"), "task_99")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	doc, err := store.Get(ctx, storage.MustTenantFilter("A"), "task_1")
	require.NoError(t, err)
	assert.Len(t, doc.Embedding, len(vocabulary))
}

func BenchmarkReindex(b *testing.B) {
	ctx := context.Background()
	entities := make([]records.Entity, 500)
	for i := range entities {
		entities[i] = task(fmt.Sprint(i), "bench", vocabulary[i%len(vocabulary)]+" task", "")
	}

	for b.Loop() {
		b.StopTimer()
		store := setupTestStorage(b)
		idx := newTestIndexer(b, store, embeddertest.NewVocab(vocabulary...))
		b.StartTimer()

		if _, err := idx.Reindex(ctx, NewSliceSource(entities...), ReindexOptions{}); err != nil {
			b.Fatal(err)
		}
	}
}
