package models

// RankedResult is a single search hit: the enriched row with its adjusted score.
type RankedResult struct {
	// Key is the composite "<table>_<rowId>" identifier the vector is stored under.
	Key       string  `json:"key"`
	Table     string  `json:"table"`
	ID        string  `json:"id"`
	Payload   Row     `json:"payload"`
	Score     float64 `json:"score"`
	BaseScore float64 `json:"base_score"`
	// Explanation is informational only and never affects ordering.
	Explanation string `json:"explanation"`
	Rank        int    `json:"rank"`
}

// SearchResponse is the response for a search request.
type SearchResponse struct {
	Results []*RankedResult `json:"results"`
	Total   int             `json:"total"`
	// Candidates is the number of raw vector hits considered before enrichment and filtering.
	Candidates int    `json:"candidates"`
	QueryTime  int64  `json:"query_time_ms"`
	Query      string `json:"query"`
	// Filters are the structured filters detected in the query text.
	Filters map[string]any `json:"filters,omitempty"`
	// DegradedTables lists tables whose rows could not be fetched; their candidates were dropped.
	DegradedTables []string `json:"degraded_tables,omitempty"`
}
