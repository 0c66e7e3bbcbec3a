package embedder

import (
	"context"
	"strings"
	"testing"
)

func BenchmarkComputeHash(b *testing.B) {
	text := strings.Repeat("Meeting notes about renewal pricing. ", 50)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = ComputeHash(DefaultJinaModel, text)
	}
}

func BenchmarkHashingVector(b *testing.B) {
	text := strings.Repeat("Contract: Master services agreement with Acme ", 40)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_ = HashingVector(text, LocalDimension)
	}
}

func BenchmarkLocalProviderCached(b *testing.B) {
	p, _ := NewLocalProvider(LocalDimension, NewCache(10))
	ctx := context.Background()
	req := EmbeddingRequest{Text: "Task: Buy a spaceship"}
	_, _ = p.GenerateEmbedding(ctx, req)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		_, _ = p.GenerateEmbedding(ctx, req)
	}
}
