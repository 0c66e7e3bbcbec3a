package types

// SearchResult represents a single ranked passage returned by search
type SearchResult struct {
	// Identification
	ID   string `json:"id"`
	Rank int    `json:"rank"` // Position in result set (1-based)

	// Scoring
	Score    float64 `json:"score"` // Fused RRF score, or reranker relevance when Reranked
	Reranked bool    `json:"reranked,omitempty"`

	// Metadata
	TenantID   string     `json:"tenant_id"`
	RecordType RecordType `json:"record_type"`
	Title      string     `json:"title"`
	Text       string     `json:"text"`
}

// Validate checks if the search result is valid
func (sr *SearchResult) Validate() error {
	if _, _, err := ParseDocumentID(sr.ID); err != nil {
		return err
	}

	if sr.Rank < 1 {
		return ErrInvalidRank
	}

	if sr.TenantID == "" {
		return ErrTenantRequired
	}

	if sr.Text == "" {
		return ErrEmptyText
	}

	return nil
}
