package types

import (
	"crypto/sha256"
	"fmt"
	"strings"
	"time"
)

// RecordType tags the kind of source record a document was built from
type RecordType string

const (
	RecordCompany  RecordType = "company"
	RecordContact  RecordType = "contact"
	RecordContract RecordType = "contract"
	RecordMeeting  RecordType = "meeting"
	RecordTask     RecordType = "task"
	RecordPage     RecordType = "page"
)

// AllRecordTypes lists every supported record type in display order
var AllRecordTypes = []RecordType{
	RecordCompany,
	RecordContact,
	RecordContract,
	RecordMeeting,
	RecordTask,
	RecordPage,
}

// Valid reports whether t is one of the supported record types
func (t RecordType) Valid() bool {
	for _, known := range AllRecordTypes {
		if t == known {
			return true
		}
	}
	return false
}

// ParseRecordType converts a string into a RecordType
func ParseRecordType(s string) (RecordType, error) {
	t := RecordType(strings.ToLower(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", fmt.Errorf("%w: %q", ErrUnknownRecordType, s)
	}
	return t, nil
}

// NewDocumentID builds the deterministic document ID for a record
func NewDocumentID(recordType RecordType, naturalKey string) string {
	return string(recordType) + "_" + naturalKey
}

// ParseDocumentID splits a document ID into its record type and natural key
func ParseDocumentID(id string) (RecordType, string, error) {
	prefix, key, ok := strings.Cut(id, "_")
	if !ok || key == "" {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidDocumentID, id)
	}
	t, err := ParseRecordType(prefix)
	if err != nil {
		return "", "", fmt.Errorf("%w: %q", ErrInvalidDocumentID, id)
	}
	return t, key, nil
}

// Document is the indexed, searchable representation of one source record
type Document struct {
	// Identification
	ID         string
	TenantID   string
	RecordType RecordType

	// Content
	Title string
	Text  string

	// Embedding of Text. Its length must equal the index dimension.
	Embedding []float32

	UpdatedAt time.Time
}

// Validate checks the document before it is written to the index
func (d *Document) Validate() error {
	if strings.TrimSpace(d.TenantID) == "" {
		return ErrTenantRequired
	}

	recordType, _, err := ParseDocumentID(d.ID)
	if err != nil {
		return err
	}
	if recordType != d.RecordType {
		return fmt.Errorf("%w: %q does not match record type %q", ErrInvalidDocumentID, d.ID, d.RecordType)
	}

	if strings.TrimSpace(d.Text) == "" {
		return ErrEmptyText
	}

	if len(d.Embedding) == 0 {
		return ErrMissingEmbedding
	}

	return nil
}

// ContentHash returns the SHA-256 of the fields that determine the stored row
func (d *Document) ContentHash() [32]byte {
	h := sha256.New()
	h.Write([]byte(d.TenantID))
	h.Write([]byte{0})
	h.Write([]byte(d.RecordType))
	h.Write([]byte{0})
	h.Write([]byte(d.Title))
	h.Write([]byte{0})
	h.Write([]byte(d.Text))

	var sum [32]byte
	copy(sum[:], h.Sum(nil))
	return sum
}
