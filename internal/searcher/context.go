package searcher

import (
	"fmt"
	"strings"

	"github.com/dshills/recordindex/pkg/types"
)

// NoContextMessage is returned by FormatContext when nothing matched
const NoContextMessage = "No specific database records found for these queries."

// FormatContext renders results as a plain-text block for an LLM prompt.
// Each passage is headed by its record type, title and score.
func FormatContext(results []types.SearchResult) string {
	if len(results) == 0 {
		return NoContextMessage
	}

	var b strings.Builder
	for i, r := range results {
		if i > 0 {
			b.WriteString("\n\n")
		}
		fmt.Fprintf(&b, "%s: %s (Score: %.2f)\n", strings.ToUpper(string(r.RecordType)), r.Title, r.Score)
		b.WriteString(r.Text)
	}
	return b.String()
}
