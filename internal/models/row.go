// Package models defines core data structures for rows, queries, and search results.
package models

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"
)

// Row is a stored record: an arbitrary mapping of field name to value, addressed by its "id" field.
type Row map[string]any

// IDField is the field a row is addressed by.
const IDField = "id"

// ID returns the row's id field as a string. Numeric ids are formatted without a fraction
// when they are whole numbers.
func (r Row) ID() string {
	v, ok := r[IDField]
	if !ok || v == nil {
		return ""
	}
	return FormatValue(v)
}

// String returns field as a string and whether the field holds one.
func (r Row) String(field string) (string, bool) {
	s, ok := r[field].(string)
	return s, ok
}

// Bool returns field as a bool. Strings "true"/"false" are accepted.
func (r Row) Bool(field string) (bool, bool) {
	switch v := r[field].(type) {
	case bool:
		return v, true
	case string:
		b, err := strconv.ParseBool(v)
		return b, err == nil
	default:
		return false, false
	}
}

// Number returns field as a float64. JSON numbers, Go numeric types and numeric strings are accepted.
func (r Row) Number(field string) (float64, bool) {
	switch v := r[field].(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int64:
		return float64(v), true
	case int32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	default:
		return 0, false
	}
}

// Clone returns a shallow copy of the row.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// FormatValue renders a field value the way it appears in row text and ids.
func FormatValue(v any) string {
	switch x := v.(type) {
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case nil:
		return ""
	case []any, map[string]any:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// StoredRow is a row together with the bookkeeping the row store keeps for it.
type StoredRow struct {
	Table       string    `json:"table"`
	ID          string    `json:"id"`
	Data        Row       `json:"data"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// RowInput is the input for inserting one row into a table.
type RowInput struct {
	Table string `json:"table"`
	Data  Row    `json:"data"`
}
