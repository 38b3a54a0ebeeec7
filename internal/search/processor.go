package search

import (
	"errors"
	"fmt"

	"github.com/hyperjump/dreamdb/internal/config"
	"github.com/hyperjump/dreamdb/internal/models"
	"github.com/hyperjump/dreamdb/internal/rowkey"
)

// ErrInvalidQuery is wrapped by every query validation failure.
var ErrInvalidQuery = errors.New("invalid query")

// ProcessQuery validates the search query and applies the configured limits.
func ProcessQuery(query *models.SearchQuery, cfg *config.SearchConfig) error {
	if query == nil {
		return fmt.Errorf("%w: missing query", ErrInvalidQuery)
	}
	if err := query.ValidateWithLimits(cfg.DefaultLimit, cfg.MaxLimit); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
	}
	if query.MinScore < 0 {
		return fmt.Errorf("%w: min_score must not be negative", ErrInvalidQuery)
	}
	for _, table := range query.Tables {
		if err := rowkey.ValidateTable(table); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidQuery, err)
		}
	}
	return nil
}
