// Package storage persists indexed documents and answers the two
// first-stage retrieval queries: dense vector similarity and lexical
// full-text relevance.
//
// # Backends
//
// SQLiteStore keeps one row per document in a documents table with the
// embedding stored as a little-endian float32 BLOB. Title and text are
// also stored as snowball stems in the configured language, stop words
// removed, and an external-content FTS5 table over those stems (unicode61
// with diacritics folded) is kept in sync by triggers and ranked with
// bm25(). Vector queries compute
// cosine similarity over the tenant's rows, in Go for pure-Go builds or in
// SQL for the sqlite_vec build:
//
//	CGO_ENABLED=0 go build -tags purego ./...
//	CGO_ENABLED=1 go build -tags "sqlite_vec sqlite_fts5" ./...
//
// PostgresStore keeps the embedding in a pgvector column behind an HNSW
// cosine index, and a generated tsvector column behind a GIN index.
// Lexical queries use websearch_to_tsquery with the configured text
// search configuration and rank with ts_rank_cd.
//
// # Language
//
// The lexical language (french by default) is recorded in index_meta.
// Opening an index built with another language fails EnsureSpec with
// ErrLanguageChanged until ResetDimension rebuilds it.
//
// # Revisions
//
// Every write advances the owning tenant's row in tenant_revisions inside
// the write transaction. Revision lets caches in any process sharing the
// database detect that a tenant's results changed.
//
// # Tenancy
//
// Every read takes a TenantFilter, which can only be built with a
// non-empty tenant. The filter is rendered into the WHERE clause of both
// query paths from a fixed set of column keys with bound values, so rows
// of other tenants are never ranked, let alone returned. A document's
// tenant cannot change once written (types.ErrTenantImmutable).
//
// # Embedding dimension
//
// The index records the provider, model and dimension it was built with
// in index_meta. Writes with a different vector length fail with
// types.ErrDimensionMismatch. Changing models requires ResetDimension,
// which truncates the index and records the new spec in one transaction,
// followed by a full reindex.
package storage
