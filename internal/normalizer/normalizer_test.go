package normalizer

import (
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"

	"github.com/dshills/recordindex/internal/records"
	"github.com/dshills/recordindex/pkg/types"
)

func TestNormalizeTask(t *testing.T) {
	doc := Normalize(&records.Task{ID: "1", TenantID: "A", Title: "Buy a spaceship", Description: "to reach Mars"})

	assert.Equal(t, "task_1", doc.ID)
	assert.Equal(t, "A", doc.TenantID)
	assert.Equal(t, types.RecordTask, doc.RecordType)
	assert.Equal(t, "Buy a spaceship", doc.Title)
	assert.Equal(t,
		"Task: Buy a spaceship\nStatus: \nPriority: \nAssigned: Unassigned\nDue: \nDescription: to reach Mars",
		doc.Text)
	assert.Nil(t, doc.Embedding)
}

func TestNormalizeAbsentFields(t *testing.T) {
	doc := Normalize(&records.Contract{ID: "c1", TenantID: "A", Title: "MSA"})

	assert.Contains(t, doc.Text, "Company: N/A")
	assert.Contains(t, doc.Text, "Amount: \n")
	assert.True(t, strings.HasSuffix(doc.Text, "Content: "))
	assert.NotContains(t, doc.Text, "null")
	assert.NotContains(t, doc.Text, "<nil>")
}

func TestNormalizeContractTruncatesExtractedText(t *testing.T) {
	long := strings.Repeat("é", ContractTextLimit+50)
	amount := 1500.0
	doc := Normalize(&records.Contract{
		ID: "c1", TenantID: "A", Title: "MSA", CompanyName: "Acme",
		Amount: &amount, ExtractedText: &long,
	})

	assert.Contains(t, doc.Text, "Company: Acme")
	assert.Contains(t, doc.Text, "Amount: 1500.00")

	_, content, ok := strings.Cut(doc.Text, "Content: ")
	assert.True(t, ok)
	assert.Equal(t, ContractTextLimit+len(ellipsis), utf8.RuneCountInString(content))
	assert.True(t, strings.HasSuffix(content, ellipsis))
}

func TestNormalizeMeetingNotes(t *testing.T) {
	date := time.Date(2024, 3, 1, 14, 30, 0, 0, time.UTC)
	notes := `{"time":1,"blocks":[
		{"type":"header","data":{"text":"Kickoff","level":2}},
		{"type":"paragraph","data":{"text":"Discussed <b>pricing</b> &amp; scope"}},
		{"type":"list","data":{"style":"unordered","items":["one",{"content":"two","items":[{"content":"nested"}]}]}},
		{"type":"checklist","data":{"items":[{"text":"send deck","checked":false}]}},
		{"type":"table","data":{"content":[["a","b"],["c","d"]]}},
		{"type":"image","data":{"file":{"url":"x"}}}
	]}`

	doc := Normalize(&records.Meeting{
		ID: "m1", TenantID: "A", Title: "Kickoff", Date: &date,
		CompanyName: "Acme", ContractTitle: "MSA", Notes: notes,
	})

	want := "Meeting: Kickoff\nDate: 2024-03-01 14:30\nCompany: Acme\nContract: MSA\n" +
		"Notes: Kickoff\nDiscussed pricing & scope\none\ntwo\nnested\nsend deck\na | b\nc | d"
	assert.Equal(t, want, doc.Text)
}

func TestNormalizePageFallsBackToRawContent(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string
	}{
		{"plain text", "just some words", "just some words"},
		{"broken json", `{"blocks":[{"type":`, `{"blocks":[{"type":`},
		{"json without blocks", `{"text":"hello"}`, `{"text":"hello"}`},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc := Normalize(&records.Page{ID: "p1", TenantID: "A", Title: "Doc", PageType: "wiki", Content: tt.content})
			assert.Equal(t, "Page: Doc\nType: wiki\nContent: "+tt.want, doc.Text)
		})
	}
}

func TestNormalizeCompanyAndContact(t *testing.T) {
	company := Normalize(&records.Company{ID: "co1", TenantID: "A", Name: "Acme", Industry: "Rockets"})
	assert.Equal(t, "company_co1", company.ID)
	assert.Equal(t, "Acme", company.Title)
	assert.Equal(t, "Company: Acme\nIndustry: Rockets\nSize: \nAddress: \nNotes: ", company.Text)

	contact := Normalize(&records.Contact{ID: "p1", TenantID: "A", FirstName: "Ada", LastName: "Lovelace"})
	assert.Equal(t, "Ada Lovelace", contact.Title)
	assert.True(t, strings.HasPrefix(contact.Text, "Contact: Ada Lovelace\nCompany: N/A\n"))
}

func TestNormalizerMaxTextChars(t *testing.T) {
	n := New(20)
	doc := n.Normalize(&records.Task{ID: "1", TenantID: "A", Title: "A very long task title indeed"})
	assert.Equal(t, 20+len(ellipsis), utf8.RuneCountInString(doc.Text))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 3))
	assert.Equal(t, "ab...", Truncate("abc", 2))
	assert.Equal(t, "abc", Truncate("abc", 0))
	assert.Equal(t, "日本...", Truncate("日本語", 2))
}

func TestBlockTextKeepsMalformedBlocks(t *testing.T) {
	notes := `{"blocks":[
		{"type":"paragraph","data":{"text":"Budget review"}},
		{"type":"paragraph","data":{"text":5}},
		{"type":"table","data":{"content":[["Q1",1200]]}},
		{"type":"list","data":{"items":["call Acme",42]}}
	]}`

	want := "Budget review\n" +
		`{"text":5}` + "\n" +
		`{"content":[["Q1",1200]]}` + "\n" +
		"call Acme\n42"
	assert.Equal(t, want, BlockText(notes))
}
