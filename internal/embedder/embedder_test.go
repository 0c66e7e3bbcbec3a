package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/recordindex/pkg/types"
)

func TestComputeHash(t *testing.T) {
	a := ComputeHash("m1", "hello")
	assert.Len(t, a, 64)
	assert.Equal(t, a, ComputeHash("m1", "hello"))
	assert.NotEqual(t, a, ComputeHash("m2", "hello"), "models must not share cache keys")
	assert.NotEqual(t, a, ComputeHash("m1", "hello!"))
}

func TestValidateRequest(t *testing.T) {
	assert.ErrorIs(t, ValidateRequest(EmbeddingRequest{}), ErrEmptyText)
	assert.NoError(t, ValidateRequest(EmbeddingRequest{Text: "x"}))

	assert.ErrorIs(t, ValidateBatchRequest(BatchEmbeddingRequest{}), ErrInvalidInput)
	assert.ErrorIs(t, ValidateBatchRequest(BatchEmbeddingRequest{Texts: []string{"a", ""}}), ErrInvalidInput)
	assert.NoError(t, ValidateBatchRequest(BatchEmbeddingRequest{Texts: []string{"a", "b"}}))
}

func TestValidateDimension(t *testing.T) {
	assert.NoError(t, ValidateDimension([]float32{1, 2, 3}, 3))
	assert.ErrorIs(t, ValidateDimension([]float32{1, 2}, 3), types.ErrDimensionMismatch)
}

func TestCache(t *testing.T) {
	t.Run("returns copies", func(t *testing.T) {
		cache := NewCache(10)
		cache.Set("k", &Embedding{Vector: []float32{1, 2}, Dimension: 2})

		got, ok := cache.Get("k")
		require.True(t, ok)
		got.Vector[0] = 99

		again, ok := cache.Get("k")
		require.True(t, ok)
		assert.Equal(t, float32(1), again.Vector[0])
	})

	t.Run("evicts least recently used", func(t *testing.T) {
		cache := NewCache(2)
		cache.Set("a", &Embedding{})
		cache.Set("b", &Embedding{})
		cache.Get("a")
		cache.Set("c", &Embedding{})

		_, okA := cache.Get("a")
		_, okB := cache.Get("b")
		assert.True(t, okA)
		assert.False(t, okB)
		assert.Equal(t, 2, cache.Size())

		cache.Clear()
		assert.Equal(t, 0, cache.Size())
	})

	t.Run("non-positive size uses default", func(t *testing.T) {
		cache := NewCache(0)
		cache.Set("a", &Embedding{})
		assert.Equal(t, 1, cache.Size())
	})
}

func TestEmbedAll(t *testing.T) {
	local := mustNewLocalProvider(t, 16)

	texts := make([]string, 7)
	for i := range texts {
		texts[i] = string(rune('a'+i)) + " word"
	}

	vectors, err := EmbedAll(context.Background(), local, texts, 3)
	require.NoError(t, err)
	require.Len(t, vectors, len(texts))

	for i, text := range texts {
		assert.Equal(t, HashingVector(text, 16), vectors[i], "order preserved for %q", text)
	}
}

func TestEmbedAllPropagatesErrors(t *testing.T) {
	local := mustNewLocalProvider(t, 16)
	_, err := EmbedAll(context.Background(), local, []string{"ok", ""}, 10)
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func mustNewLocalProvider(t *testing.T, dim int) *LocalProvider {
	t.Helper()
	p, err := NewLocalProvider(dim, NewCache(100))
	require.NoError(t, err)
	return p
}
