// Package cli renders DreamDB responses for the command line.
package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/hyperjump/dreamdb/internal/indexer"
	"github.com/hyperjump/dreamdb/internal/models"
	"github.com/hyperjump/dreamdb/internal/server"
	"github.com/hyperjump/dreamdb/pkg/utils"
)

// OutputFormat is the format for command output.
type OutputFormat string

const (
	// OutputText is human-readable text (default).
	OutputText OutputFormat = "text"
	// OutputCompact prints one line per result.
	OutputCompact OutputFormat = "compact"
	// OutputJSON is structured JSON for machine consumption.
	OutputJSON OutputFormat = "json"
)

const payloadPreviewRunes = 200

// ParseOutputFormat resolves a format name. The empty string selects text.
func ParseOutputFormat(name string) (OutputFormat, error) {
	switch OutputFormat(strings.ToLower(strings.TrimSpace(name))) {
	case "", OutputText:
		return OutputText, nil
	case OutputCompact:
		return OutputCompact, nil
	case OutputJSON:
		return OutputJSON, nil
	default:
		return "", fmt.Errorf("unknown output format %q; use text, compact, or json", name)
	}
}

// WriteJSON writes v as indented JSON.
func WriteJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// WriteSearchResults writes search results to w in the given format.
// Unknown formats fall back to text.
func WriteSearchResults(w io.Writer, response *models.SearchResponse, format OutputFormat) error {
	switch format {
	case OutputJSON:
		return WriteJSON(w, response)
	case OutputCompact:
		for _, r := range response.Results {
			if _, err := fmt.Fprintf(w, "%d\t%.4f\t%s\t%s\n", r.Rank, r.Score, r.Key,
				utils.Truncate(indexer.RowText(r.Payload), 80)); err != nil {
				return err
			}
		}
		return nil
	default:
		return writeSearchResultsText(w, response)
	}
}

func writeSearchResultsText(w io.Writer, response *models.SearchResponse) error {
	var b strings.Builder
	fmt.Fprintf(&b, "\nFound %d results in %dms (showing %d, %d candidates)\n",
		response.Total, response.QueryTime, len(response.Results), response.Candidates)
	if len(response.Filters) > 0 {
		fmt.Fprintf(&b, "Filters: %s\n", formatFilters(response.Filters))
	}
	if len(response.DegradedTables) > 0 {
		fmt.Fprintf(&b, "Warning: rows unavailable from %s\n", strings.Join(response.DegradedTables, ", "))
	}
	b.WriteString("\n")
	for _, r := range response.Results {
		b.WriteString("─────────────────────────────────────────────────────────\n")
		fmt.Fprintf(&b, "Rank: %d | Score: %.4f (base %.4f)\n", r.Rank, r.Score, r.BaseScore)
		fmt.Fprintf(&b, "Table: %s | ID: %s\n", r.Table, r.ID)
		if r.Explanation != "" {
			fmt.Fprintf(&b, "Why: %s\n", r.Explanation)
		}
		fmt.Fprintf(&b, "\n%s\n\n", utils.Truncate(indexer.RowText(r.Payload), payloadPreviewRunes))
	}
	_, err := io.WriteString(w, b.String())
	return err
}

func formatFilters(filters map[string]any) string {
	keys := make([]string, 0, len(filters))
	for k := range filters {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = k + "=" + models.FormatValue(filters[k])
	}
	return strings.Join(parts, ", ")
}

// WriteStatus writes an engine status report. Compact is treated as text.
func WriteStatus(w io.Writer, status *server.StatusResponse, format OutputFormat) error {
	if format == OutputJSON {
		return WriteJSON(w, status)
	}
	var b strings.Builder
	fmt.Fprintf(&b, "rows:               %d   # stored rows across tables\n", status.Rows)
	fmt.Fprintf(&b, "tables:             %s\n", strings.Join(status.Tables, ", "))
	fmt.Fprintf(&b, "vector_index_size:  %d   # vectors in the similarity index\n", status.VectorIndexSize)
	if status.Unindexed > 0 {
		fmt.Fprintf(&b, "unindexed:          %d   # run reindex to embed them\n", status.Unindexed)
	}
	fmt.Fprintf(&b, "index_dirty:        %t\n", status.IndexDirty)
	if status.LastFlushError != "" {
		fmt.Fprintf(&b, "last_flush_error:   %s\n", status.LastFlushError)
	}
	if status.DiskUsage != nil {
		fmt.Fprintf(&b, "disk_usage_bytes:   %d\n", status.DiskUsage.TotalBytes)
	}
	for _, d := range status.WatchDirectories {
		fmt.Fprintf(&b, "watching:           %s\n", d)
	}

	c := status.Config
	b.WriteString("\n# configuration\n")
	fmt.Fprintf(&b, "metric:             %s\n", c.Metric)
	fmt.Fprintf(&b, "dimensions:         %d\n", c.Dimensions)
	fmt.Fprintf(&b, "embedding_provider: %s\n", c.EmbeddingProvider)
	fmt.Fprintf(&b, "storage_driver:     %s\n", c.StorageDriver)
	fmt.Fprintf(&b, "database_path:      %s\n", c.DatabasePath)
	if c.IndexPath != "" {
		fmt.Fprintf(&b, "index_path:         %s\n", c.IndexPath)
	}
	if c.Compression != "" {
		fmt.Fprintf(&b, "compression:        %s\n", c.Compression)
	}
	_, err := io.WriteString(w, b.String())
	return err
}
