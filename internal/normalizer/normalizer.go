// Package normalizer turns source records into flat, labeled text documents
// ready for embedding and full-text indexing.
package normalizer

import (
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/dshills/recordindex/internal/records"
	"github.com/dshills/recordindex/pkg/types"
)

const (
	// ContractTextLimit bounds extracted contract text
	ContractTextLimit = 2000
	// NotesTextLimit bounds meeting notes and page content
	NotesTextLimit = 4000

	ellipsis   = "..."
	notAvail   = "N/A"
	unassigned = "Unassigned"
	dateLayout = "2006-01-02"
	timeLayout = "2006-01-02 15:04"
)

// Normalizer builds documents from entities. The zero value applies only
// the per-field limits.
type Normalizer struct {
	// MaxTextChars caps the whole document text in runes; 0 disables it
	MaxTextChars int
}

// New creates a Normalizer with an overall text cap
func New(maxTextChars int) *Normalizer {
	return &Normalizer{MaxTextChars: maxTextChars}
}

var defaultNormalizer = &Normalizer{}

// Normalize builds a document using the default normalizer
func Normalize(e records.Entity) types.Document {
	return defaultNormalizer.Normalize(e)
}

// Normalize converts an entity into a document without an embedding.
// It never fails: unparsable rich text is indexed as-is.
func (n *Normalizer) Normalize(e records.Entity) types.Document {
	var title string
	var lines []line

	switch v := e.(type) {
	case *records.Company:
		title = v.Name
		lines = []line{
			{"Company", v.Name},
			{"Industry", v.Industry},
			{"Size", v.Size},
			{"Address", v.Address},
			{"Notes", v.Notes},
		}
	case *records.Contact:
		title = strings.TrimSpace(v.FirstName + " " + v.LastName)
		lines = []line{
			{"Contact", title},
			{"Company", orNA(v.CompanyName)},
			{"Position", v.Position},
			{"Email", v.Email},
			{"Phone", v.Phone},
			{"Notes", v.Notes},
		}
	case *records.Contract:
		title = v.Title
		lines = []line{
			{"Contract", v.Title},
			{"Company", orNA(v.CompanyName)},
			{"Status", v.Status},
			{"Amount", formatAmount(v.Amount)},
			{"Start", formatTime(v.StartDate, dateLayout)},
			{"End", formatTime(v.EndDate, dateLayout)},
			{"Content", Truncate(deref(v.ExtractedText), ContractTextLimit)},
		}
	case *records.Meeting:
		title = v.Title
		lines = []line{
			{"Meeting", v.Title},
			{"Date", formatTime(v.Date, timeLayout)},
			{"Company", orNA(v.CompanyName)},
		}
		if v.ContractTitle != "" {
			lines = append(lines, line{"Contract", v.ContractTitle})
		}
		lines = append(lines, line{"Notes", Truncate(BlockText(v.Notes), NotesTextLimit)})
	case *records.Task:
		title = v.Title
		assignee := v.Assignee
		if assignee == "" {
			assignee = unassigned
		}
		lines = []line{
			{"Task", v.Title},
			{"Status", v.Status},
			{"Priority", v.Priority},
			{"Assigned", assignee},
			{"Due", formatTime(v.DueDate, dateLayout)},
			{"Description", v.Description},
		}
	case *records.Page:
		title = v.Title
		lines = []line{
			{"Page", v.Title},
			{"Type", v.PageType},
			{"Content", Truncate(BlockText(v.Content), NotesTextLimit)},
		}
	}

	text := render(lines)
	if n.MaxTextChars > 0 {
		text = Truncate(text, n.MaxTextChars)
	}

	return types.Document{
		ID:         types.NewDocumentID(e.RecordType(), e.Key()),
		TenantID:   e.Tenant(),
		RecordType: e.RecordType(),
		Title:      title,
		Text:       text,
	}
}

// Truncate cuts s to limit runes and appends an ellipsis when anything was removed
func Truncate(s string, limit int) string {
	if limit <= 0 || utf8.RuneCountInString(s) <= limit {
		return s
	}
	runes := []rune(s)
	return string(runes[:limit]) + ellipsis
}

type line struct {
	label string
	value string
}

func render(lines []line) string {
	var b strings.Builder
	for i, l := range lines {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(l.label)
		b.WriteString(": ")
		b.WriteString(l.value)
	}
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return notAvail
	}
	return s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func formatAmount(a *float64) string {
	if a == nil {
		return ""
	}
	return strconv.FormatFloat(*a, 'f', 2, 64)
}

func formatTime(t *time.Time, layout string) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.Format(layout)
}
