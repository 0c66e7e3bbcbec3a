// Package searcher implements tenant-scoped hybrid retrieval over indexed records.
//
// The searcher provides three search modes:
//   - Hybrid: vector similarity and full-text search fused with RRF (default)
//   - Vector: semantic search using embeddings only
//   - Keyword: full-text search only, no embedding call
//
// # Basic Usage
//
//	s, err := searcher.NewSearcher(store, emb, rr, searcher.DefaultConfig(), logger)
//
//	resp, err := s.Search(ctx, searcher.SearchRequest{
//	    TenantID: "acme",
//	    Query:    "renewal terms for the Globex contract",
//	    K:        5,
//	})
//
//	for _, r := range resp.Results {
//	    fmt.Printf("[%d] %s %.3f\n", r.Rank, r.ID, r.Score)
//	}
//
// Every request must name a tenant. The tenant predicate is pushed into both
// store queries, so no other tenant's documents are ever ranked.
//
// # Reciprocal Rank Fusion (RRF)
//
// Each leg asks the store for 2k candidates. The fused score is
//
//	score(d) = sum over legs containing d of 1 / (C + rank(d))
//
// with C = 60 and rank the 1-based position in the leg. Documents are sorted
// by score; equal scores keep the order in which they were first seen, vector
// leg first. Vector hits under Config.VectorMinSimilarity are dropped before
// fusion so unrelated neighbours do not surface on their rank alone.
//
// # Reranking
//
// When a reranker is configured the top RerankCandidates fused documents are
// deduplicated and rescored against the query, then truncated to k. Any
// reranker error is logged and the fused order is returned instead.
//
// # Caching
//
// Responses are cached per (tenant, query, k, mode, record types) for
// Config.CacheTTL when the request sets UseCache. Index writes call
// InvalidateTenant so a cached response never outlives the data it was
// built from.
package searcher
