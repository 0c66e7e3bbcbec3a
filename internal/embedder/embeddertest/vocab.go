// Package embeddertest provides a deterministic embedder for tests.
package embeddertest

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/dshills/recordindex/internal/embedder"
)

// Vocab embeds text as a normalised bag of words over a fixed vocabulary,
// one dimension per word. Words outside the vocabulary are ignored, so two
// texts are similar exactly when they share vocabulary words.
type Vocab struct {
	index map[string]int
	dim   int

	mu    sync.Mutex
	calls int
	err   error
}

// NewVocab creates an embedder whose dimension equals len(words)
func NewVocab(words ...string) *Vocab {
	index := make(map[string]int, len(words))
	for i, w := range words {
		index[strings.ToLower(w)] = i
	}
	return &Vocab{index: index, dim: len(words)}
}

// Fail makes every following call return err. Nil restores normal operation.
func (v *Vocab) Fail(err error) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.err = err
}

// Calls reports how many embedding requests were served
func (v *Vocab) Calls() int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.calls
}

// Vector returns the embedding of text
func (v *Vocab) Vector(text string) []float32 {
	vec := make([]float32, v.dim)
	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		if i, ok := v.index[w]; ok {
			vec[i]++
		}
	}
	return embedder.NormalizeVector(vec)
}

func (v *Vocab) GenerateEmbedding(ctx context.Context, req embedder.EmbeddingRequest) (*embedder.Embedding, error) {
	resp, err := v.GenerateBatch(ctx, embedder.BatchEmbeddingRequest{Texts: []string{req.Text}})
	if err != nil {
		return nil, err
	}
	return resp.Embeddings[0], nil
}

func (v *Vocab) GenerateBatch(ctx context.Context, req embedder.BatchEmbeddingRequest) (*embedder.BatchEmbeddingResponse, error) {
	v.mu.Lock()
	v.calls++
	err := v.err
	v.mu.Unlock()
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := make([]*embedder.Embedding, len(req.Texts))
	for i, text := range req.Texts {
		out[i] = &embedder.Embedding{
			Vector:    v.Vector(text),
			Dimension: v.dim,
			Provider:  v.Provider(),
			Model:     v.Model(),
			Hash:      embedder.ComputeHash(v.Model(), text),
		}
	}
	return &embedder.BatchEmbeddingResponse{Embeddings: out, Provider: v.Provider(), Model: v.Model()}, nil
}

func (v *Vocab) Dimension() int   { return v.dim }
func (v *Vocab) Provider() string { return "test" }
func (v *Vocab) Model() string    { return "vocab" }
func (v *Vocab) Close() error     { return nil }
