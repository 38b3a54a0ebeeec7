// Package storage defines the persistence interface for table rows.
package storage

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/hyperjump/dreamdb/internal/models"
)

// ErrNotFound is returned when a table row does not exist.
var ErrNotFound = errors.New("row not found")

// RowStore defines row persistence operations. Rows are arbitrary JSON objects
// addressed by (table, id).
type RowStore interface {
	// Insert upserts a row and returns its fingerprint.
	Insert(ctx context.Context, table, id string, row models.Row) (string, error)
	// InsertBatch upserts rows in one transaction; ids[i] addresses rows[i].
	InsertBatch(ctx context.Context, table string, ids []string, rows []models.Row) ([]string, error)
	// FetchRowsByIDs returns the rows that exist among ids, in ids order. Missing ids are skipped.
	FetchRowsByIDs(ctx context.Context, table string, ids []string) ([]models.Row, error)
	GetRow(ctx context.Context, table, id string) (*models.StoredRow, error)
	DeleteRow(ctx context.Context, table, id string) error
	ListRows(ctx context.Context, table string, offset, limit int) ([]*models.StoredRow, error)
	// Fingerprint returns the stored fingerprint of a row, or ErrNotFound.
	Fingerprint(ctx context.Context, table, id string) (string, error)
	Tables(ctx context.Context) ([]string, error)
	// CountRows counts the rows of table, or of all tables when table is empty.
	CountRows(ctx context.Context, table string) (int64, error)

	Close() error
}

// Fingerprint returns the sha256 hex digest of the row's canonical JSON encoding.
// Map keys are sorted by encoding/json, so equal rows always hash equally.
func Fingerprint(row models.Row) (string, error) {
	payload, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("failed to marshal row: %w", err)
	}
	return fingerprintBytes(payload), nil
}

func fingerprintBytes(payload []byte) string {
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}
