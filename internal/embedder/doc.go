// Package embedder maps record text to dense vectors.
//
// Three providers implement Embedder: Jina AI, any OpenAI-compatible
// /v1/embeddings server, and an offline local provider based on feature
// hashing. Remote providers bound every request with a timeout, retry
// transient failures (network errors, 429, 5xx) with exponential backoff,
// throttle requests with a token bucket and cache results in an LRU keyed
// by model and text.
//
// Every vector a provider returns is checked against Dimension(); a
// mismatch surfaces as types.ErrDimensionMismatch and is never retried,
// because recovering from a model change requires a full reindex.
//
// # Provider Selection
//
//  1. Config.Provider, or RECORDINDEX_EMBEDDING_PROVIDER when empty
//  2. Else if JINA_API_KEY is set → Jina AI
//  3. Else if OPENAI_API_KEY is set → OpenAI
//  4. Else → local provider (offline mode)
//
// # Batch Processing
//
// GenerateBatch accepts at most MaxBatchSize texts. EmbedAll splits larger
// inputs and preserves order:
//
//	vectors, err := embedder.EmbedAll(ctx, emb, texts, embedder.DefaultBatchSize)
package embedder
