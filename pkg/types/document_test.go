package types

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDocumentID(t *testing.T) {
	id := NewDocumentID(RecordTask, "1")
	assert.Equal(t, "task_1", id)

	recordType, key, err := ParseDocumentID(id)
	require.NoError(t, err)
	assert.Equal(t, RecordTask, recordType)
	assert.Equal(t, "1", key)

	// Natural keys may contain the separator
	recordType, key, err = ParseDocumentID("page_a_b")
	require.NoError(t, err)
	assert.Equal(t, RecordPage, recordType)
	assert.Equal(t, "a_b", key)

	for _, bad := range []string{"", "task", "task_", "widget_1"} {
		_, _, err := ParseDocumentID(bad)
		assert.ErrorIs(t, err, ErrInvalidDocumentID, bad)
	}
}

func TestParseRecordType(t *testing.T) {
	rt, err := ParseRecordType(" Meeting ")
	require.NoError(t, err)
	assert.Equal(t, RecordMeeting, rt)

	_, err = ParseRecordType("invoice")
	assert.ErrorIs(t, err, ErrUnknownRecordType)
}

func TestDocumentValidate(t *testing.T) {
	valid := func() Document {
		return Document{
			ID:         "task_1",
			TenantID:   "A",
			RecordType: RecordTask,
			Title:      "Buy a spaceship",
			Text:       "Task: Buy a spaceship",
			Embedding:  []float32{1, 0},
		}
	}

	tests := []struct {
		name    string
		mutate  func(d *Document)
		wantErr error
	}{
		{"valid", func(d *Document) {}, nil},
		{"missing tenant", func(d *Document) { d.TenantID = " " }, ErrTenantRequired},
		{"bad id", func(d *Document) { d.ID = "nope" }, ErrInvalidDocumentID},
		{"type mismatch", func(d *Document) { d.RecordType = RecordPage }, ErrInvalidDocumentID},
		{"empty text", func(d *Document) { d.Text = "" }, ErrEmptyText},
		{"no embedding", func(d *Document) { d.Embedding = nil }, ErrMissingEmbedding},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := valid()
			tt.mutate(&d)
			err := d.Validate()
			if tt.wantErr == nil {
				assert.NoError(t, err)
				return
			}
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestContentHashStable(t *testing.T) {
	a := Document{ID: "task_1", TenantID: "A", RecordType: RecordTask, Title: "x", Text: "y"}
	b := a
	b.Embedding = []float32{0.5}
	assert.Equal(t, a.ContentHash(), b.ContentHash(), "embedding does not affect the content hash")

	b.Text = "z"
	assert.NotEqual(t, a.ContentHash(), b.ContentHash())
}
