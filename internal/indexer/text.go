package indexer

import (
	"sort"
	"strings"

	"github.com/hyperjump/dreamdb/internal/models"
)

// RowText renders a row as the text that gets embedded: "key: value" pairs in key order,
// joined by "; ". Null fields are left out.
func RowText(row models.Row) string {
	keys := make([]string, 0, len(row))
	for k, v := range row {
		if v != nil {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("; ")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(models.FormatValue(row[k]))
	}
	return b.String()
}
