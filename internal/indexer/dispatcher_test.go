package indexer

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/recordindex/internal/embedder/embeddertest"
	"github.com/dshills/recordindex/internal/records"
	"github.com/dshills/recordindex/pkg/types"
)

// recordingSync captures calls instead of writing an index
type recordingSync struct {
	created []records.Entity
	updated []records.Entity
	deleted []records.Ref
}

func (r *recordingSync) OnCreated(_ context.Context, e records.Entity) SyncResult {
	r.created = append(r.created, e)
	return SyncResult{DocumentID: records.RefOf(e).DocumentID()}
}

func (r *recordingSync) OnUpdated(_ context.Context, e records.Entity) SyncResult {
	r.updated = append(r.updated, e)
	return SyncResult{DocumentID: records.RefOf(e).DocumentID()}
}

func (r *recordingSync) OnDeleted(_ context.Context, ref records.Ref) SyncResult {
	r.deleted = append(r.deleted, ref)
	return SyncResult{DocumentID: ref.DocumentID()}
}

func TestDispatch(t *testing.T) {
	ctx := context.Background()
	rec := &recordingSync{}
	d := NewDispatcher(rec, zerolog.Nop())

	tests := []struct {
		name    string
		event   Event
		wantErr bool
		wantID  string
	}{
		{
			name:   "created",
			event:  Event{Kind: EventCreated, Type: "task", Record: json.RawMessage(`{"id":"1","tenant_id":"A","title":"Buy a spaceship"}`)},
			wantID: "task_1",
		},
		{
			name:   "updated",
			event:  Event{ID: "evt-2", Kind: EventUpdated, Type: "Meeting", Record: json.RawMessage(`{"id":"4","tenant_id":"A","title":"Kickoff"}`)},
			wantID: "meeting_4",
		},
		{
			name:   "deleted by key",
			event:  Event{Kind: EventDeleted, Type: "task", Key: "1", TenantID: "A"},
			wantID: "task_1",
		},
		{
			name:   "deleted by record body",
			event:  Event{Kind: EventDeleted, Type: "page", Record: json.RawMessage(`{"id":"3","tenant_id":"B"}`)},
			wantID: "page_3",
		},
		{name: "unknown kind", event: Event{Kind: "archived", Type: "task", Key: "1"}, wantErr: true},
		{name: "unknown type", event: Event{Kind: EventDeleted, Type: "invoice", Key: "1"}, wantErr: true},
		{name: "deleted without key", event: Event{Kind: EventDeleted, Type: "task"}, wantErr: true},
		{name: "created without body", event: Event{Kind: EventCreated, Type: "task"}, wantErr: true},
		{
			name:    "created without tenant",
			event:   Event{Kind: EventCreated, Type: "task", Record: json.RawMessage(`{"id":"1","title":"x"}`)},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := d.Dispatch(ctx, tt.event)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidEvent)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, res.DocumentID)
		})
	}

	require.Len(t, rec.deleted, 2)
	assert.Equal(t, records.Ref{Type: types.RecordPage, Key: "3", TenantID: "B"}, rec.deleted[1])
	assert.Len(t, rec.created, 1)
	assert.Len(t, rec.updated, 1)
}

func TestDispatcherRun(t *testing.T) {
	ctx := context.Background()
	store := setupTestStorage(t)
	emb := embeddertest.NewVocab(vocabulary...)
	idx := newTestIndexer(t, store, emb)
	d := NewDispatcher(idx, zerolog.Nop())

	events := strings.Join([]string{
		`{"kind":"created","type":"task","record":{"id":"1","tenant_id":"A","title":"Buy a spaceship"}}`,
		`{"kind":"created","type":"company","record":{"id":"2","tenant_id":"A","name":"Acme"}}`,
		``,
		`{"kind":"updated","type":"task","record":{"id":"1","tenant_id":"A","title":"Buy a bicycle"}}`,
		`{"kind":"deleted","type":"company","key":"2","tenant_id":"A"}`,
		`{"kind":"created","type":"task","record":{"id":"1","tenant_id":"B","title":"Hijack"}}`,
		`{oops`,
	}, "\n")

	stats, err := d.Run(ctx, strings.NewReader(events))
	require.NoError(t, err)
	assert.Equal(t, DispatchStats{Events: 6, Applied: 4, Failed: 1, Malformed: 1}, stats)

	assert.Equal(t, 1, count(t, store, "A"))
	assert.Zero(t, count(t, store, "B"))
}
