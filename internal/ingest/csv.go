package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/hyperjump/dreamdb/internal/models"
)

func readCSV(content []byte) ([]models.Row, error) {
	content = bytes.TrimPrefix(content, []byte("\xef\xbb\xbf"))
	r := csv.NewReader(bytes.NewReader(content))
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true

	var records [][]string
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse csv: %w", err)
		}
		records = append(records, rec)
	}
	return recordsToRows(records)
}

// recordsToRows turns a header record plus data records into rows. Empty cells are left out
// of the row and values are coerced with CoerceValue, except the id column which stays a string.
func recordsToRows(records [][]string) ([]models.Row, error) {
	if len(records) == 0 {
		return []models.Row{}, nil
	}
	header := make([]string, len(records[0]))
	for i, h := range records[0] {
		header[i] = strings.TrimSpace(h)
		if header[i] == "" {
			return nil, fmt.Errorf("header column %d is empty", i+1)
		}
	}

	rows := make([]models.Row, 0, len(records)-1)
	for n, rec := range records[1:] {
		if len(rec) > len(header) {
			return nil, fmt.Errorf("record %d has %d fields, header has %d", n+2, len(rec), len(header))
		}
		row := make(models.Row, len(rec))
		for i, cell := range rec {
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			if header[i] == models.IDField {
				row[header[i]] = cell
				continue
			}
			row[header[i]] = CoerceValue(cell)
		}
		if len(row) > 0 {
			rows = append(rows, row)
		}
	}
	return rows, nil
}

// CoerceValue converts a text cell to a bool or float64 when it reads as one.
// Everything else, including NaN and infinities, stays a string.
func CoerceValue(cell string) any {
	switch strings.ToLower(cell) {
	case "true":
		return true
	case "false":
		return false
	}
	if f, err := strconv.ParseFloat(cell, 64); err == nil && !math.IsNaN(f) && !math.IsInf(f, 0) {
		return f
	}
	return cell
}
