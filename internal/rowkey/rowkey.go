// Package rowkey builds and parses the composite identifier under which a row's vector is stored.
// The string form is "<table>_<rowId>" and is split at the first underscore, so table names
// must not contain one. Row ids may.
package rowkey

import (
	"errors"
	"fmt"
	"strings"
)

const separator = "_"

var (
	// ErrNoSeparator is returned by Parse when the key has no underscore.
	ErrNoSeparator = errors.New("rowkey: missing table separator")
	// ErrInvalidTable is returned for empty table names or names containing the separator.
	ErrInvalidTable = errors.New("rowkey: invalid table name")
	// ErrEmptyRowID is returned when the row id part is empty.
	ErrEmptyRowID = errors.New("rowkey: empty row id")
)

// Key identifies one row of one table.
type Key struct {
	Table string
	RowID string
}

// New validates table and rowID and returns their key.
func New(table, rowID string) (Key, error) {
	if err := ValidateTable(table); err != nil {
		return Key{}, err
	}
	if rowID == "" {
		return Key{}, ErrEmptyRowID
	}
	return Key{Table: table, RowID: rowID}, nil
}

// String returns the vector-store form of the key.
func (k Key) String() string {
	return k.Table + separator + k.RowID
}

// Parse splits s at the first underscore.
func Parse(s string) (Key, error) {
	table, rowID, ok := strings.Cut(s, separator)
	if !ok {
		return Key{}, fmt.Errorf("%w: %q", ErrNoSeparator, s)
	}
	if table == "" {
		return Key{}, fmt.Errorf("%w: %q", ErrInvalidTable, s)
	}
	if rowID == "" {
		return Key{}, fmt.Errorf("%w: %q", ErrEmptyRowID, s)
	}
	return Key{Table: table, RowID: rowID}, nil
}

// ValidateTable rejects table names that would make the key ambiguous.
func ValidateTable(table string) error {
	if table == "" || strings.Contains(table, separator) {
		return fmt.Errorf("%w: %q", ErrInvalidTable, table)
	}
	return nil
}

// SanitizeTable turns an arbitrary name (a file base name, for example) into a valid table
// name: lowercased, trimmed, with underscores and spaces replaced by hyphens.
func SanitizeTable(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	return strings.NewReplacer("_", "-", " ", "-").Replace(name)
}
