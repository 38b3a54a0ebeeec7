package models

import (
	"fmt"
	"strings"
)

const (
	// DefaultLimit is the number of results returned when a query does not set one.
	DefaultLimit = 5
	// MaxLimit caps the number of results a single query may request.
	MaxLimit = 100
)

// SearchQuery represents a search request.
type SearchQuery struct {
	Query string `json:"query"`
	Limit int    `json:"limit,omitempty"`
	// Tables restricts results to rows of the named tables. Empty means all tables.
	Tables []string `json:"tables,omitempty"`
	// MinScore drops results whose adjusted score is below it.
	MinScore float64 `json:"min_score,omitempty"`
	// DisableFilters turns off structured filter detection for this query.
	DisableFilters bool `json:"disable_filters,omitempty"`
}

// Validate ensures the search query has valid fields and sets defaults.
// Returns an error if the query is blank; otherwise trims it and normalizes the limit.
func (q *SearchQuery) Validate() error {
	return q.ValidateWithLimits(DefaultLimit, MaxLimit)
}

// ValidateWithLimits is Validate with configurable default and maximum limits.
func (q *SearchQuery) ValidateWithLimits(defaultLimit, maxLimit int) error {
	q.Query = strings.TrimSpace(q.Query)
	if q.Query == "" {
		return fmt.Errorf("query cannot be empty")
	}
	if defaultLimit <= 0 {
		defaultLimit = DefaultLimit
	}
	if maxLimit <= 0 {
		maxLimit = MaxLimit
	}
	if q.Limit <= 0 {
		q.Limit = defaultLimit
	}
	if q.Limit > maxLimit {
		q.Limit = maxLimit
	}
	return nil
}
