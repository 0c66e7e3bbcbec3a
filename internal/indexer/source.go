package indexer

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/dshills/recordindex/internal/records"
)

// EntitySource streams entities for a bulk run. Next returns io.EOF when
// exhausted. A *RecordError marks one bad record; any other error aborts
// the run.
type EntitySource interface {
	Next() (records.Entity, error)
}

// RecordError is a per-record decode failure that does not stop a bulk run
type RecordError struct {
	Line int
	Err  error
}

func (e *RecordError) Error() string {
	return fmt.Sprintf("line %d: %v", e.Line, e.Err)
}

func (e *RecordError) Unwrap() error { return e.Err }

// maxLineBytes bounds a single JSONL record; contract texts can be large
const maxLineBytes = 16 << 20

// JSONLSource reads one records.Envelope per line
type JSONLSource struct {
	scanner *bufio.Scanner
	line    int
}

// NewJSONLSource reads envelopes from r. Blank lines are ignored.
func NewJSONLSource(r io.Reader) *JSONLSource {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &JSONLSource{scanner: scanner}
}

func (s *JSONLSource) Next() (records.Entity, error) {
	for s.scanner.Scan() {
		s.line++
		text := strings.TrimSpace(s.scanner.Text())
		if text == "" {
			continue
		}

		var env records.Envelope
		if err := json.Unmarshal([]byte(text), &env); err != nil {
			return nil, &RecordError{Line: s.line, Err: err}
		}
		e, err := records.DecodeEnvelope(env)
		if err != nil {
			return nil, &RecordError{Line: s.line, Err: err}
		}
		return e, nil
	}

	if err := s.scanner.Err(); err != nil {
		return nil, fmt.Errorf("read entities: %w", err)
	}
	return nil, io.EOF
}

// SliceSource serves entities from memory
type SliceSource struct {
	entities []records.Entity
	pos      int
}

// NewSliceSource returns a source over entities
func NewSliceSource(entities ...records.Entity) *SliceSource {
	return &SliceSource{entities: entities}
}

func (s *SliceSource) Next() (records.Entity, error) {
	if s.pos >= len(s.entities) {
		return nil, io.EOF
	}
	e := s.entities[s.pos]
	s.pos++
	return e, nil
}
