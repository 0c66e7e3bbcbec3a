package indexer

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/dshills/recordindex/internal/records"
	"github.com/dshills/recordindex/pkg/types"
)

// EventKind is the kind of source mutation an Event reports
type EventKind string

const (
	EventCreated EventKind = "created"
	EventUpdated EventKind = "updated"
	EventDeleted EventKind = "deleted"
)

// ErrInvalidEvent is returned for events that cannot be applied
var ErrInvalidEvent = errors.New("invalid event")

// Event is one change notification from the record-owning application:
//
//	{"id":"...","kind":"updated","type":"task","record":{"id":"1","tenant_id":"A",...}}
//	{"kind":"deleted","type":"task","key":"1","tenant_id":"A"}
type Event struct {
	ID       string          `json:"id,omitempty"`
	Kind     EventKind       `json:"kind"`
	Type     string          `json:"type"`
	Record   json.RawMessage `json:"record,omitempty"`
	Key      string          `json:"key,omitempty"`
	TenantID string          `json:"tenant_id,omitempty"`
}

// DispatchStats summarises a Run
type DispatchStats struct {
	Events    int
	Applied   int
	Failed    int
	Malformed int
}

// Dispatcher decodes change events and forwards them to an IndexSync
type Dispatcher struct {
	sync   IndexSync
	logger zerolog.Logger
}

// NewDispatcher creates a dispatcher feeding s
func NewDispatcher(s IndexSync, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{sync: s, logger: logger.With().Str("component", "dispatcher").Logger()}
}

// Dispatch applies one event. The error is non-nil only for malformed
// events; index write failures are reported in the SyncResult.
func (d *Dispatcher) Dispatch(ctx context.Context, ev Event) (SyncResult, error) {
	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	d.logger.Debug().Str("event_id", ev.ID).Str("event", string(ev.Kind)).Str("type", ev.Type).Msg("event received")

	switch ev.Kind {
	case EventCreated, EventUpdated:
		e, err := records.Decode(ev.Type, ev.Record)
		if err != nil {
			return SyncResult{}, fmt.Errorf("%w %s: %w", ErrInvalidEvent, ev.ID, err)
		}
		if ev.Kind == EventCreated {
			return d.sync.OnCreated(ctx, e), nil
		}
		return d.sync.OnUpdated(ctx, e), nil

	case EventDeleted:
		ref, err := deletedRef(ev)
		if err != nil {
			return SyncResult{}, fmt.Errorf("%w %s: %w", ErrInvalidEvent, ev.ID, err)
		}
		return d.sync.OnDeleted(ctx, ref), nil

	default:
		return SyncResult{}, fmt.Errorf("%w %s: unknown kind %q", ErrInvalidEvent, ev.ID, ev.Kind)
	}
}

// deletedRef identifies the removed record from an explicit key or, failing
// that, from the record body
func deletedRef(ev Event) (records.Ref, error) {
	t, err := types.ParseRecordType(ev.Type)
	if err != nil {
		return records.Ref{}, err
	}

	ref := records.Ref{Type: t, Key: ev.Key, TenantID: ev.TenantID}
	if ref.Key == "" && len(ev.Record) > 0 {
		var body struct {
			ID       string `json:"id"`
			TenantID string `json:"tenant_id"`
		}
		if err := json.Unmarshal(ev.Record, &body); err != nil {
			return records.Ref{}, err
		}
		ref.Key = body.ID
		if ref.TenantID == "" {
			ref.TenantID = body.TenantID
		}
	}
	if ref.Key == "" {
		return records.Ref{}, records.ErrMissingKey
	}
	return ref, nil
}

// Run applies JSON line events from r until EOF. Malformed lines are
// logged and counted; only read errors and cancellation stop the run.
func (d *Dispatcher) Run(ctx context.Context, r io.Reader) (DispatchStats, error) {
	var stats DispatchStats

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	line := 0
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		stats.Events++

		var ev Event
		if err := json.Unmarshal([]byte(text), &ev); err != nil {
			stats.Malformed++
			d.logger.Warn().Int("line", line).Err(err).Msg("malformed event")
			continue
		}

		res, err := d.Dispatch(ctx, ev)
		if err != nil {
			stats.Malformed++
			d.logger.Warn().Int("line", line).Err(err).Msg("malformed event")
			continue
		}
		if res.OK() {
			stats.Applied++
		} else {
			stats.Failed++
		}
	}

	if err := scanner.Err(); err != nil {
		return stats, fmt.Errorf("read events: %w", err)
	}
	return stats, nil
}
