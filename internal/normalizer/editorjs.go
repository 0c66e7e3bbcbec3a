package normalizer

import (
	"encoding/json"
	"html"
	"regexp"
	"strings"
)

var tagPattern = regexp.MustCompile(`<[^>]*>`)

type editorDocument struct {
	Blocks *[]editorBlock `json:"blocks"`
}

type editorBlock struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

type blockData struct {
	Text    string            `json:"text"`
	Items   []json.RawMessage `json:"items"`
	Content [][]string        `json:"content"`
}

type listItem struct {
	Content string            `json:"content"`
	Text    string            `json:"text"`
	Items   []json.RawMessage `json:"items"`
}

// BlockText reduces an Editor.js document to its text runs in document
// order, one block per line. Input that is not a block document is
// returned unchanged.
func BlockText(raw string) string {
	if strings.TrimSpace(raw) == "" {
		return ""
	}

	var doc editorDocument
	if err := json.Unmarshal([]byte(raw), &doc); err != nil || doc.Blocks == nil {
		return raw
	}

	parts := make([]string, 0, len(*doc.Blocks))
	for _, block := range *doc.Blocks {
		if text := blockText(block); text != "" {
			parts = append(parts, text)
		}
	}
	return strings.Join(parts, "\n")
}

func blockText(block editorBlock) string {
	if len(block.Data) == 0 {
		return ""
	}

	// Data that does not fit the known block shapes is kept as raw text
	var data blockData
	if err := json.Unmarshal(block.Data, &data); err != nil {
		return cleanInline(string(block.Data))
	}

	switch {
	case data.Text != "":
		return cleanInline(data.Text)
	case len(data.Items) > 0:
		return strings.Join(listText(data.Items), "\n")
	case len(data.Content) > 0:
		rows := make([]string, 0, len(data.Content))
		for _, row := range data.Content {
			cells := make([]string, 0, len(row))
			for _, cell := range row {
				cells = append(cells, cleanInline(cell))
			}
			rows = append(rows, strings.Join(cells, " | "))
		}
		return strings.Join(rows, "\n")
	}
	return ""
}

// listText flattens list and checklist items, including nested lists
func listText(items []json.RawMessage) []string {
	var out []string
	for _, raw := range items {
		var s string
		if err := json.Unmarshal(raw, &s); err == nil {
			if s = cleanInline(s); s != "" {
				out = append(out, s)
			}
			continue
		}

		var item listItem
		if err := json.Unmarshal(raw, &item); err != nil {
			if s = cleanInline(string(raw)); s != "" {
				out = append(out, s)
			}
			continue
		}
		text := item.Content
		if text == "" {
			text = item.Text
		}
		if text = cleanInline(text); text != "" {
			out = append(out, text)
		}
		out = append(out, listText(item.Items)...)
	}
	return out
}

func cleanInline(s string) string {
	s = tagPattern.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(s)
}
