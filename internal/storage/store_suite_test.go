package storage

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/recordindex/pkg/types"
)

const suiteDim = 4

var suiteSpec = EmbeddingSpec{Provider: "test", Model: "axes", Dimension: suiteDim}

func suiteDoc(id, tenant, text string, vec ...float32) *types.Document {
	recordType, _, _ := types.ParseDocumentID(id)
	return &types.Document{
		ID:         id,
		TenantID:   tenant,
		RecordType: recordType,
		Title:      text,
		Text:       text,
		Embedding:  vec,
	}
}

func hitIDs(hits []Hit) []string {
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	return ids
}

// runStoreSuite exercises the behaviour every backend must share
func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
	ctx := context.Background()
	tenantA := MustTenantFilter("A")
	tenantB := MustTenantFilter("B")

	t.Run("upsert requires embedding spec", func(t *testing.T) {
		s := open(t)
		err := s.Upsert(ctx, suiteDoc("task_1", "A", "spaceship", 1, 0, 0, 0))
		assert.ErrorIs(t, err, ErrNoEmbeddingSpec)
	})

	t.Run("upsert is idempotent", func(t *testing.T) {
		s := open(t)
		require.NoError(t, EnsureSpec(ctx, s, suiteSpec))

		doc := suiteDoc("task_1", "A", "Buy a spaceship to reach Mars", 1, 0, 0, 0)
		require.NoError(t, s.Upsert(ctx, doc))
		first, err := s.LexicalQuery(ctx, "spaceship", 10, tenantA)
		require.NoError(t, err)

		require.NoError(t, s.Upsert(ctx, doc))
		second, err := s.LexicalQuery(ctx, "spaceship", 10, tenantA)
		require.NoError(t, err)

		n, err := s.Count(ctx, tenantA)
		require.NoError(t, err)
		assert.Equal(t, 1, n)
		assert.Equal(t, hitIDs(first), hitIDs(second))
	})

	t.Run("update replaces text and vector", func(t *testing.T) {
		s := open(t)
		require.NoError(t, EnsureSpec(ctx, s, suiteSpec))

		require.NoError(t, s.Upsert(ctx, suiteDoc("task_1", "A", "Buy a spaceship to reach Mars", 1, 0, 0, 0)))
		require.NoError(t, s.Upsert(ctx, suiteDoc("task_1", "A", "Buy a bicycle for commuting", 0, 1, 0, 0)))

		hits, err := s.LexicalQuery(ctx, "spaceship", 10, tenantA)
		require.NoError(t, err)
		assert.Empty(t, hits)

		hits, err = s.LexicalQuery(ctx, "bicycle", 10, tenantA)
		require.NoError(t, err)
		assert.Equal(t, []string{"task_1"}, hitIDs(hits))

		doc, err := s.Get(ctx, tenantA, "task_1")
		require.NoError(t, err)
		assert.Equal(t, []float32{0, 1, 0, 0}, doc.Embedding)
		assert.Equal(t, "Buy a bicycle for commuting", doc.Text)
	})

	t.Run("delete removes from both legs", func(t *testing.T) {
		s := open(t)
		require.NoError(t, EnsureSpec(ctx, s, suiteSpec))
		require.NoError(t, s.Upsert(ctx, suiteDoc("task_1", "A", "bicycle", 1, 0, 0, 0)))

		n, err := s.Delete(ctx, []string{"task_1", "task_missing"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		n, err = s.Delete(ctx, []string{"task_1"})
		require.NoError(t, err)
		assert.Zero(t, n)

		hits, err := s.LexicalQuery(ctx, "bicycle", 10, tenantA)
		require.NoError(t, err)
		assert.Empty(t, hits)

		hits, err = s.VectorQuery(ctx, []float32{1, 0, 0, 0}, 10, tenantA)
		require.NoError(t, err)
		assert.Empty(t, hits)

		_, err = s.Get(ctx, tenantA, "task_1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("tenant isolation", func(t *testing.T) {
		s := open(t)
		require.NoError(t, EnsureSpec(ctx, s, suiteSpec))
		require.NoError(t, s.UpsertBatch(ctx, []*types.Document{
			suiteDoc("page_1", "A", "Quarterly roadmap review", 1, 1, 0, 0),
			suiteDoc("page_2", "B", "Quarterly roadmap review", 1, 1, 0, 0),
		}))

		for _, q := range []string{"roadmap", "quarterly review", "page"} {
			hits, err := s.LexicalQuery(ctx, q, 10, tenantA)
			require.NoError(t, err)
			for _, h := range hits {
				assert.Equal(t, "A", h.TenantID)
				assert.NotEqual(t, "page_2", h.ID)
			}
		}

		hits, err := s.VectorQuery(ctx, []float32{1, 1, 0, 0}, 10, tenantB)
		require.NoError(t, err)
		assert.Equal(t, []string{"page_2"}, hitIDs(hits))

		_, err = s.Get(ctx, tenantB, "page_1")
		assert.ErrorIs(t, err, ErrNotFound)
	})

	t.Run("tenant is immutable", func(t *testing.T) {
		s := open(t)
		require.NoError(t, EnsureSpec(ctx, s, suiteSpec))
		require.NoError(t, s.Upsert(ctx, suiteDoc("task_1", "A", "x", 1, 0, 0, 0)))

		err := s.Upsert(ctx, suiteDoc("task_1", "B", "x", 1, 0, 0, 0))
		assert.ErrorIs(t, err, types.ErrTenantImmutable)

		_, err = s.Get(ctx, tenantA, "task_1")
		assert.NoError(t, err)
	})

	t.Run("zero filter fails closed", func(t *testing.T) {
		s := open(t)
		require.NoError(t, EnsureSpec(ctx, s, suiteSpec))

		_, err := s.VectorQuery(ctx, []float32{1, 0, 0, 0}, 5, TenantFilter{})
		assert.ErrorIs(t, err, types.ErrTenantRequired)
		_, err = s.LexicalQuery(ctx, "anything", 5, TenantFilter{})
		assert.ErrorIs(t, err, types.ErrTenantRequired)
		_, err = s.Count(ctx, TenantFilter{})
		assert.ErrorIs(t, err, types.ErrTenantRequired)
	})

	t.Run("dimension mismatch rejected", func(t *testing.T) {
		s := open(t)
		require.NoError(t, EnsureSpec(ctx, s, suiteSpec))

		err := s.Upsert(ctx, suiteDoc("task_1", "A", "x", 1, 0))
		assert.ErrorIs(t, err, types.ErrDimensionMismatch)

		err = EnsureSpec(ctx, s, EmbeddingSpec{Provider: "test", Model: "axes", Dimension: 8})
		assert.ErrorIs(t, err, types.ErrDimensionMismatch)

		err = EnsureSpec(ctx, s, EmbeddingSpec{Provider: "test", Model: "other", Dimension: suiteDim})
		assert.ErrorIs(t, err, ErrModelChanged)
	})

	t.Run("reset dimension truncates", func(t *testing.T) {
		s := open(t)
		require.NoError(t, EnsureSpec(ctx, s, suiteSpec))
		require.NoError(t, s.Upsert(ctx, suiteDoc("task_1", "A", "x", 1, 0, 0, 0)))

		next := EmbeddingSpec{Provider: "test", Model: "wide", Dimension: 6}
		require.NoError(t, s.ResetDimension(ctx, next))

		meta, err := s.Meta(ctx)
		require.NoError(t, err)
		assert.Equal(t, next, meta)

		n, err := s.Count(ctx, tenantA)
		require.NoError(t, err)
		assert.Zero(t, n)

		require.NoError(t, s.Upsert(ctx, suiteDoc("task_1", "A", "x", 1, 0, 0, 0, 0, 0)))
		assert.NoError(t, EnsureSpec(ctx, s, next))
	})

	t.Run("vector query ranks by cosine", func(t *testing.T) {
		s := open(t)
		require.NoError(t, EnsureSpec(ctx, s, suiteSpec))
		require.NoError(t, s.UpsertBatch(ctx, []*types.Document{
			suiteDoc("task_1", "A", "exact", 1, 0, 0, 0),
			suiteDoc("task_2", "A", "close", 1, 1, 0, 0),
			suiteDoc("task_3", "A", "orthogonal", 0, 0, 1, 0),
		}))

		hits, err := s.VectorQuery(ctx, []float32{1, 0, 0, 0}, 2, tenantA)
		require.NoError(t, err)
		require.Len(t, hits, 2)
		assert.Equal(t, []string{"task_1", "task_2"}, hitIDs(hits))
		assert.Equal(t, 1, hits[0].Rank)
		assert.Equal(t, 2, hits[1].Rank)
		assert.InDelta(t, 1.0, hits[0].Score, 1e-6)
		assert.InDelta(t, 0.7071, hits[1].Score, 1e-3)
	})

	t.Run("lexical query stems and ranks", func(t *testing.T) {
		s := open(t)
		require.NoError(t, EnsureSpec(ctx, s, suiteSpec))
		require.NoError(t, s.UpsertBatch(ctx, []*types.Document{
			suiteDoc("meeting_1", "A", "Renewal meetings with Acme about renewal pricing", 1, 0, 0, 0),
			suiteDoc("meeting_2", "A", "Kickoff meeting", 1, 0, 0, 0),
			suiteDoc("meeting_3", "A", "Unrelated lunch", 1, 0, 0, 0),
		}))

		hits, err := s.LexicalQuery(ctx, "the meeting", 10, tenantA)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"meeting_1", "meeting_2"}, hitIDs(hits))

		hits, err = s.LexicalQuery(ctx, "acme renewal", 10, tenantA)
		require.NoError(t, err)
		require.NotEmpty(t, hits)
		assert.Equal(t, "meeting_1", hits[0].ID)

		// Only stop words and punctuation: nothing to match
		hits, err = s.LexicalQuery(ctx, `"the" AND (or)`, 10, tenantA)
		require.NoError(t, err)
		assert.Empty(t, hits)
	})

	t.Run("record type narrowing", func(t *testing.T) {
		s := open(t)
		require.NoError(t, EnsureSpec(ctx, s, suiteSpec))
		require.NoError(t, s.UpsertBatch(ctx, []*types.Document{
			suiteDoc("task_1", "A", "pricing", 1, 0, 0, 0),
			suiteDoc("page_1", "A", "pricing", 1, 0, 0, 0),
			suiteDoc("contract_1", "A", "pricing", 1, 0, 0, 0),
		}))

		f := MustTenantFilter("A", types.RecordTask, types.RecordPage)
		hits, err := s.LexicalQuery(ctx, "pricing", 10, f)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"task_1", "page_1"}, hitIDs(hits))

		n, err := s.Count(ctx, MustTenantFilter("A", types.RecordContract))
		require.NoError(t, err)
		assert.Equal(t, 1, n)
	})

	t.Run("stats", func(t *testing.T) {
		s := open(t)
		require.NoError(t, EnsureSpec(ctx, s, suiteSpec))
		require.NoError(t, s.UpsertBatch(ctx, []*types.Document{
			suiteDoc("task_1", "A", "x", 1, 0, 0, 0),
			suiteDoc("task_2", "B", "y", 1, 0, 0, 0),
			suiteDoc("page_1", "B", "z", 1, 0, 0, 0),
		}))

		stats, err := s.Stats(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Documents)
		assert.Equal(t, 2, stats.Tenants)
		assert.Equal(t, 2, stats.ByType[types.RecordTask])
		assert.Equal(t, suiteSpec, stats.Spec)
		assert.Equal(t, LanguageEnglish, stats.Language)
		assert.NotEmpty(t, stats.Backend)
	})

	t.Run("revision advances on every write", func(t *testing.T) {
		s := open(t)
		require.NoError(t, EnsureSpec(ctx, s, suiteSpec))

		revision := func(f TenantFilter) int64 {
			rev, err := s.Revision(ctx, f)
			require.NoError(t, err)
			return rev
		}
		assert.Zero(t, revision(tenantA))

		require.NoError(t, s.Upsert(ctx, suiteDoc("task_1", "A", "spaceship", 1, 0, 0, 0)))
		afterUpsert := revision(tenantA)
		assert.Positive(t, afterUpsert)
		assert.Zero(t, revision(tenantB), "other tenants are untouched")

		_, err := s.Delete(ctx, []string{"task_missing"})
		require.NoError(t, err)
		assert.Equal(t, afterUpsert, revision(tenantA))

		_, err = s.Delete(ctx, []string{"task_1"})
		require.NoError(t, err)
		afterDelete := revision(tenantA)
		assert.Greater(t, afterDelete, afterUpsert)

		require.NoError(t, s.ResetDimension(ctx, suiteSpec))
		assert.Greater(t, revision(tenantA), afterDelete)

		_, err = s.Revision(ctx, TenantFilter{})
		assert.ErrorIs(t, err, types.ErrTenantRequired)
	})

	t.Run("batch is atomic", func(t *testing.T) {
		s := open(t)
		require.NoError(t, EnsureSpec(ctx, s, suiteSpec))

		err := s.UpsertBatch(ctx, []*types.Document{
			suiteDoc("task_1", "A", "ok", 1, 0, 0, 0),
			suiteDoc("task_2", "A", "bad", 1, 0),
		})
		require.Error(t, err)

		n, err := s.Count(ctx, tenantA)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}
