package indexer

import (
	"context"
	"fmt"

	"github.com/dshills/recordindex/internal/records"
)

// IndexSync is called by the record-owning application after it has
// committed a mutation. Implementations never fail the caller: an index
// write error is reported in the SyncResult and the source change stands.
type IndexSync interface {
	OnCreated(ctx context.Context, e records.Entity) SyncResult
	OnUpdated(ctx context.Context, e records.Entity) SyncResult
	OnDeleted(ctx context.Context, ref records.Ref) SyncResult
}

// Sync operations
const (
	OpIndex  = "index"
	OpRemove = "remove"
)

// SyncError reports an index write that failed after the source record
// was saved. The index is stale for DocumentID until the next write.
type SyncError struct {
	Op         string
	DocumentID string
	TenantID   string
	Err        error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("index write failed, source still saved: %s %s: %v", e.Op, e.DocumentID, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// SyncResult is the outcome of one change notification
type SyncResult struct {
	DocumentID string
	Err        *SyncError
}

// OK reports whether the index write succeeded
func (r SyncResult) OK() bool { return r.Err == nil }

var _ IndexSync = (*Indexer)(nil)

func (idx *Indexer) OnCreated(ctx context.Context, e records.Entity) SyncResult {
	return idx.syncIndex(ctx, "created", e)
}

func (idx *Indexer) OnUpdated(ctx context.Context, e records.Entity) SyncResult {
	return idx.syncIndex(ctx, "updated", e)
}

func (idx *Indexer) OnDeleted(ctx context.Context, ref records.Ref) SyncResult {
	res := SyncResult{DocumentID: ref.DocumentID()}
	if err := idx.Remove(ctx, ref); err != nil {
		res.Err = &SyncError{Op: OpRemove, DocumentID: res.DocumentID, TenantID: ref.TenantID, Err: err}
		idx.logFailure("deleted", res.Err)
		return res
	}

	idx.logger.Debug().Str("doc_id", res.DocumentID).Str("tenant_id", ref.TenantID).Msg("document removed")
	return res
}

func (idx *Indexer) syncIndex(ctx context.Context, event string, e records.Entity) SyncResult {
	if e == nil {
		res := SyncResult{Err: &SyncError{Op: OpIndex, Err: records.ErrMissingRecord}}
		idx.logFailure(event, res.Err)
		return res
	}

	ref := records.RefOf(e)
	res := SyncResult{DocumentID: ref.DocumentID()}
	if err := idx.Index(ctx, e); err != nil {
		res.Err = &SyncError{Op: OpIndex, DocumentID: res.DocumentID, TenantID: ref.TenantID, Err: err}
		idx.logFailure(event, res.Err)
		return res
	}

	idx.logger.Debug().Str("doc_id", res.DocumentID).Str("tenant_id", ref.TenantID).Str("event", event).Msg("document indexed")
	return res
}

func (idx *Indexer) logFailure(event string, err *SyncError) {
	idx.logger.Warn().
		Str("doc_id", err.DocumentID).
		Str("tenant_id", err.TenantID).
		Str("event", event).
		Err(err.Err).
		Msg("index write failed, source still saved")
}
