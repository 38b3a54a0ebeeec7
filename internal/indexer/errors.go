package indexer

import (
	"fmt"
	"strings"
)

// UnindexedError reports rows that were stored but whose vectors could not be added.
// The rows are searchable again after a successful Reindex.
type UnindexedError struct {
	Keys []string
	Err  error
}

func (e *UnindexedError) Error() string {
	keys := e.Keys
	suffix := ""
	if len(keys) > 5 {
		keys = keys[:5]
		suffix = fmt.Sprintf(" and %d more", len(e.Keys)-5)
	}
	return fmt.Sprintf("row stored but not indexed (%s%s): %v", strings.Join(keys, ", "), suffix, e.Err)
}

func (e *UnindexedError) Unwrap() error { return e.Err }
