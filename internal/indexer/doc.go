// Package indexer keeps the document index in step with source records.
//
// Change sync: the owning application calls the IndexSync methods after it
// commits a mutation. The Indexer normalizes the entity, embeds the text and
// upserts the document under its deterministic ID (type_key). Failures are
// returned as a SyncResult carrying a *SyncError and logged; they never roll
// back or fail the source mutation.
//
//	idx := indexer.New(store, emb, indexer.Config{}, logger)
//	idx.AddInvalidator(searcher)
//
//	res := idx.OnUpdated(ctx, &records.Task{ID: "1", TenantID: "A", Title: "Buy a bicycle"})
//	if !res.OK() {
//	    // index is stale for res.DocumentID until the next write
//	}
//
// Re-delivering an event is harmless. Upserts replace rows by ID, and a
// document whose content hash matches the stored row is not re-embedded.
//
// # Bulk runs
//
// Reindex streams entities from an EntitySource in batches through a bounded
// errgroup worker pool. Per-record failures are collected in Statistics.
// Records without a tenant are skipped.
//
// MigrateDimension is the only way to change embedding model or dimension:
// it truncates the store and records the new spec in one transaction, then
// re-embeds everything. Until it runs, EnsureReady reports the mismatch.
//
// Only one bulk run executes at a time; a concurrent call returns
// ErrReindexInProgress.
//
// # Events
//
// Dispatcher reads JSON line change events and forwards them to an
// IndexSync. Events without an ID are assigned a UUID for log correlation.
package indexer
