package records

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dshills/recordindex/pkg/types"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		recordType string
		raw        string
		wantType   types.RecordType
		wantKey    string
		wantErr    error
	}{
		{
			name:       "task",
			recordType: "task",
			raw:        `{"id":"1","tenant_id":"A","title":"Buy a spaceship"}`,
			wantType:   types.RecordTask,
			wantKey:    "1",
		},
		{
			name:       "contract with optional fields",
			recordType: "contract",
			raw:        `{"id":"c9","tenant_id":"A","title":"MSA","amount":1200.5,"extracted_text":"terms"}`,
			wantType:   types.RecordContract,
			wantKey:    "c9",
		},
		{
			name:       "unknown type",
			recordType: "invoice",
			raw:        `{"id":"1","tenant_id":"A"}`,
			wantErr:    types.ErrUnknownRecordType,
		},
		{
			name:       "missing key",
			recordType: "page",
			raw:        `{"tenant_id":"A","title":"x"}`,
			wantErr:    ErrMissingKey,
		},
		{
			name:       "missing tenant",
			recordType: "page",
			raw:        `{"id":"p1","title":"x"}`,
			wantErr:    types.ErrTenantRequired,
		},
		{
			name:       "null record",
			recordType: "page",
			raw:        `null`,
			wantErr:    ErrMissingRecord,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entity, err := Decode(tt.recordType, json.RawMessage(tt.raw))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantType, entity.RecordType())
			assert.Equal(t, tt.wantKey, entity.Key())
			assert.Equal(t, "A", entity.Tenant())
		})
	}
}

func TestDecodeContractPointers(t *testing.T) {
	entity, err := Decode("contract", json.RawMessage(`{"id":"c1","tenant_id":"A","title":"MSA"}`))
	require.NoError(t, err)

	contract, ok := entity.(*Contract)
	require.True(t, ok)
	assert.Nil(t, contract.Amount)
	assert.Nil(t, contract.ExtractedText)
}

func TestEncodeRoundTripThroughEnvelope(t *testing.T) {
	task := &Task{ID: "7", TenantID: "B", Title: "Ship it", Assignee: "sam"}

	env, err := Encode(task)
	require.NoError(t, err)
	assert.Equal(t, "task", env.Type)

	decoded, err := DecodeEnvelope(env)
	require.NoError(t, err)
	assert.Equal(t, task, decoded)
}

func TestRefDocumentID(t *testing.T) {
	ref := RefOf(&Meeting{ID: "m1", TenantID: "A"})
	assert.Equal(t, types.RecordMeeting, ref.Type)
	assert.Equal(t, "meeting_m1", ref.DocumentID())
	assert.Equal(t, "A", ref.TenantID)
}
