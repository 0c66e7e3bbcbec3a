package indexer

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/recordindex/internal/embedder/embeddertest"
	"github.com/dshills/recordindex/internal/records"
	"github.com/dshills/recordindex/internal/searcher"
	"github.com/dshills/recordindex/internal/storage"
	"github.com/dshills/recordindex/pkg/types"
)

var vocabulary = []string{"spaceship", "mars", "bicycle", "commuting", "acme", "renewal", "rockets", "globex"}

type recordingInvalidator struct {
	mu      sync.Mutex
	tenants []string
	all     int
}

func (r *recordingInvalidator) InvalidateTenant(tenant string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tenants = append(r.tenants, tenant)
}

func (r *recordingInvalidator) InvalidateCache() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.all++
}

func setupTestStorage(t testing.TB) *storage.SQLiteStore {
	t.Helper()
	store, err := storage.NewSQLiteStore(context.Background(), ":memory:", "")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestIndexer(t testing.TB, store storage.Store, emb *embeddertest.Vocab) *Indexer {
	t.Helper()
	idx := New(store, emb, Config{Workers: 2, BatchSize: 2}, zerolog.Nop())
	require.NoError(t, idx.EnsureReady(context.Background()))
	return idx
}

func task(id, tenant, title, description string) *records.Task {
	return &records.Task{ID: id, TenantID: tenant, Title: title, Description: description}
}

func count(t *testing.T, store storage.Store, tenant string) int {
	t.Helper()
	n, err := store.Count(context.Background(), storage.MustTenantFilter(tenant))
	require.NoError(t, err)
	return n
}

func TestChangeSyncScenario(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	idx := newTestIndexer(t, store, embeddertest.NewVocab(vocabulary...))

	s, err := searcher.NewSearcher(store, embeddertest.NewVocab(vocabulary...), nil, searcher.DefaultConfig(), zerolog.Nop())
	require.NoError(t, err)
	idx.AddInvalidator(s)

	search := func(q string) []string {
		resp, err := s.Search(ctx, searcher.SearchRequest{Query: q, TenantID: "A", UseCache: true})
		require.NoError(t, err)
		ids := make([]string, len(resp.Results))
		for i, r := range resp.Results {
			ids[i] = r.ID
		}
		return ids
	}

	res := idx.OnCreated(ctx, task("1", "A", "Buy a spaceship", "to reach Mars"))
	require.True(t, res.OK())
	assert.Equal(t, "task_1", res.DocumentID)
	assert.Contains(t, search("spaceship"), "task_1")

	res = idx.OnUpdated(ctx, task("1", "A", "Buy a bicycle", "for commuting"))
	require.True(t, res.OK())
	assert.NotContains(t, search("spaceship"), "task_1", "cached result must be invalidated")
	assert.Contains(t, search("bicycle"), "task_1")

	res = idx.OnDeleted(ctx, records.Ref{Type: types.RecordTask, Key: "1", TenantID: "A"})
	require.True(t, res.OK())
	assert.NotContains(t, search("bicycle"), "task_1")
}

func TestIndexIdempotent(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	emb := embeddertest.NewVocab(vocabulary...)
	idx := newTestIndexer(t, store, emb)

	entity := task("1", "A", "Buy a spaceship", "to reach Mars")
	require.NoError(t, idx.Index(ctx, entity))
	require.NoError(t, idx.Index(ctx, entity))

	assert.Equal(t, 1, count(t, store, "A"))
	assert.Equal(t, 1, emb.Calls(), "unchanged content is not re-embedded")

	stored, err := store.Get(ctx, storage.MustTenantFilter("A"), "task_1")
	require.NoError(t, err)
	assert.Equal(t, "Task: Buy a spaceship\nStatus: \nPriority: \nAssigned: Unassigned\nDue: \nDescription: to reach Mars", stored.Text)
	assert.Equal(t, "Buy a spaceship", stored.Title)
	assert.Equal(t, types.RecordTask, stored.RecordType)
}

func TestSyncFailureKeepsSourceSaved(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	emb := embeddertest.NewVocab(vocabulary...)

	var logs bytes.Buffer
	idx := New(store, emb, Config{}, zerolog.New(&logs))
	require.NoError(t, idx.EnsureReady(ctx))

	providerErr := errors.New("provider timeout")
	emb.Fail(providerErr)

	res := idx.OnCreated(ctx, task("7", "A", "Buy a spaceship", ""))
	require.False(t, res.OK())
	assert.Equal(t, OpIndex, res.Err.Op)
	assert.Equal(t, "task_7", res.Err.DocumentID)
	assert.Equal(t, "A", res.Err.TenantID)
	assert.ErrorIs(t, res.Err, providerErr)
	assert.Contains(t, res.Err.Error(), "index write failed, source still saved")
	assert.Zero(t, count(t, store, "A"))

	out := logs.String()
	assert.Contains(t, out, `"level":"warn"`)
	assert.Contains(t, out, `"doc_id":"task_7"`)
	assert.Contains(t, out, `"tenant_id":"A"`)
	assert.Contains(t, out, `"event":"created"`)
	assert.Contains(t, out, "provider timeout")

	emb.Fail(nil)
	assert.True(t, idx.OnUpdated(ctx, task("7", "A", "Buy a spaceship", "")).OK())
	assert.Equal(t, 1, count(t, store, "A"))
}

func TestIndexRejects(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	idx := newTestIndexer(t, store, embeddertest.NewVocab(vocabulary...))

	t.Run("missing tenant", func(t *testing.T) {
		res := idx.OnCreated(ctx, task("1", "", "Buy a spaceship", ""))
		require.False(t, res.OK())
		assert.ErrorIs(t, res.Err, types.ErrTenantRequired)
	})

	t.Run("nil entity", func(t *testing.T) {
		res := idx.OnCreated(ctx, nil)
		require.False(t, res.OK())
		assert.ErrorIs(t, res.Err, records.ErrMissingRecord)
	})

	t.Run("tenant cannot change", func(t *testing.T) {
		require.NoError(t, idx.Index(ctx, task("2", "A", "Buy a spaceship", "")))
		err := idx.Index(ctx, task("2", "B", "Buy a spaceship", ""))
		assert.ErrorIs(t, err, types.ErrTenantImmutable)
		assert.Zero(t, count(t, store, "B"))
	})

	t.Run("bad ref", func(t *testing.T) {
		res := idx.OnDeleted(ctx, records.Ref{Type: "invoice", Key: "1"})
		require.False(t, res.OK())
		assert.Equal(t, OpRemove, res.Err.Op)
	})
}

func TestRemove(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	idx := newTestIndexer(t, store, embeddertest.NewVocab(vocabulary...))
	inv := &recordingInvalidator{}
	idx.AddInvalidator(inv)

	require.NoError(t, idx.Index(ctx, task("1", "A", "Buy a spaceship", "")))
	assert.Equal(t, []string{"A"}, inv.tenants)

	require.NoError(t, idx.Remove(ctx, records.Ref{Type: types.RecordTask, Key: "1"}))
	assert.Equal(t, 1, inv.all, "unknown tenant purges every cache entry")
	assert.Zero(t, count(t, store, "A"))

	// Deleting something that is not indexed is fine
	assert.True(t, idx.OnDeleted(ctx, records.Ref{Type: types.RecordTask, Key: "404", TenantID: "A"}).OK())
}

func TestEnsureReadyDimensionMismatch(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	newTestIndexer(t, store, embeddertest.NewVocab("spaceship", "mars"))

	idx := New(store, embeddertest.NewVocab(vocabulary...), Config{}, zerolog.Nop())
	assert.ErrorIs(t, idx.EnsureReady(ctx), types.ErrDimensionMismatch)
}

func TestIndexLock(t *testing.T) {
	var l IndexLock
	require.True(t, l.TryAcquire())
	assert.True(t, l.Held())
	assert.False(t, l.TryAcquire())
	l.Release()
	assert.False(t, l.Held())
	assert.True(t, l.TryAcquire())
}

func TestSyncErrorUnwrap(t *testing.T) {
	err := &SyncError{Op: OpIndex, DocumentID: "task_1", TenantID: "A", Err: types.ErrEmptyText}
	assert.True(t, errors.Is(err, types.ErrEmptyText))
	assert.True(t, strings.HasPrefix(err.Error(), "index write failed, source still saved: index task_1"))
}
