package records

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dshills/recordindex/pkg/types"
)

var (
	// ErrMissingKey is returned when a decoded record has no natural key
	ErrMissingKey = errors.New("record has no id")
	// ErrMissingRecord is returned when an envelope carries no record body
	ErrMissingRecord = errors.New("envelope has no record")
)

// Envelope wraps a record with its type tag for line-oriented feeds:
//
//	{"type":"task","record":{"id":"1","tenant_id":"A","title":"Buy a spaceship"}}
type Envelope struct {
	Type   string          `json:"type"`
	Record json.RawMessage `json:"record"`
}

// New returns an empty entity of the given record type
func New(recordType types.RecordType) (Entity, error) {
	switch recordType {
	case types.RecordCompany:
		return &Company{}, nil
	case types.RecordContact:
		return &Contact{}, nil
	case types.RecordContract:
		return &Contract{}, nil
	case types.RecordMeeting:
		return &Meeting{}, nil
	case types.RecordTask:
		return &Task{}, nil
	case types.RecordPage:
		return &Page{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", types.ErrUnknownRecordType, recordType)
	}
}

// Decode turns a raw record body of the given type into an Entity
func Decode(recordType string, raw json.RawMessage) (Entity, error) {
	t, err := types.ParseRecordType(recordType)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, ErrMissingRecord
	}

	entity, err := New(t)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(raw, entity); err != nil {
		return nil, fmt.Errorf("decode %s record: %w", t, err)
	}
	if entity.Key() == "" {
		return nil, fmt.Errorf("%w: %s", ErrMissingKey, t)
	}
	if entity.Tenant() == "" {
		return nil, fmt.Errorf("%s %s: %w", t, entity.Key(), types.ErrTenantRequired)
	}
	return entity, nil
}

// DecodeEnvelope decodes an Envelope into an Entity
func DecodeEnvelope(env Envelope) (Entity, error) {
	return Decode(env.Type, env.Record)
}

// Encode wraps an entity in an Envelope
func Encode(e Entity) (Envelope, error) {
	raw, err := json.Marshal(e)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s record: %w", e.RecordType(), err)
	}
	return Envelope{Type: string(e.RecordType()), Record: raw}, nil
}
