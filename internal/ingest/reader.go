// Package ingest reads table rows from data files: JSON arrays, JSON lines, CSV and Excel workbooks.
// The table name is derived from the file name.
package ingest

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/dreamdb/internal/models"
	"github.com/hyperjump/dreamdb/internal/rowkey"
)

// ErrUnsupportedFormat is returned for file extensions no reader handles.
var ErrUnsupportedFormat = errors.New("unsupported row file format")

// SupportedExtensions lists the extensions Reader understands.
var SupportedExtensions = []string{".json", ".jsonl", ".ndjson", ".csv", ".xlsx"}

// Batch is the set of rows read for one table.
type Batch struct {
	Table string
	Rows  []models.Row
}

// Reader reads row files.
type Reader struct{}

// NewReader returns a new Reader.
func NewReader() *Reader {
	return &Reader{}
}

// ReadFile reads the rows in path. Most formats yield a single batch named after the file;
// workbooks yield one batch per non-empty sheet.
func (r *Reader) ReadFile(path string) ([]Batch, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return r.ReadBytes(content, strings.ToLower(filepath.Ext(path)), TableName(path))
}

// ReadBytes reads rows from content based on ext (with the leading dot) into table.
func (r *Reader) ReadBytes(content []byte, ext, table string) ([]Batch, error) {
	if err := rowkey.ValidateTable(table); err != nil {
		return nil, err
	}
	var (
		rows []models.Row
		err  error
	)
	switch ext {
	case ".json":
		rows, err = readJSON(content)
	case ".jsonl", ".ndjson":
		rows, err = readJSONLines(content)
	case ".csv":
		rows, err = readCSV(content)
	case ".xlsx":
		return readExcel(content, table)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, err
	}
	return []Batch{{Table: table, Rows: rows}}, nil
}

// Supported reports whether path has an extension Reader understands.
func Supported(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range SupportedExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// TableName derives a table name from a file path: the base name without extension,
// sanitized so it contains no underscore. "Order_Items.csv" becomes "order-items".
func TableName(path string) string {
	base := filepath.Base(path)
	return rowkey.SanitizeTable(strings.TrimSuffix(base, filepath.Ext(base)))
}
