package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"

	"github.com/hyperjump/dreamdb/internal/models"
)

const (
	// DriverCGO is the mattn/go-sqlite3 driver.
	DriverCGO = "sqlite3"
	// DriverPureGo is the modernc.org/sqlite driver.
	DriverPureGo = "sqlite"

	// keeps IN (...) lists below SQLite's bound-variable limit
	fetchChunkSize = 500
)

// SQLiteStorage implements RowStore using SQLite.
type SQLiteStorage struct {
	db     *sql.DB
	driver string
	path   string
}

// NewSQLiteStorage opens or creates a SQLite database at dbPath with the default
// (cgo) driver and initializes the schema.
func NewSQLiteStorage(dbPath string) (*SQLiteStorage, error) {
	return NewSQLiteStorageWithDriver(DriverCGO, dbPath)
}

// NewSQLiteStorageWithDriver is NewSQLiteStorage with an explicit database/sql driver name
// ("sqlite3" or "sqlite"). Parent directories are created if they do not exist.
func NewSQLiteStorageWithDriver(driver, dbPath string) (*SQLiteStorage, error) {
	switch driver {
	case "":
		driver = DriverCGO
	case DriverCGO, DriverPureGo:
	default:
		return nil, fmt.Errorf("unsupported sqlite driver %q (supported: %s, %s)", driver, DriverCGO, DriverPureGo)
	}
	if dir := filepath.Dir(dbPath); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}
	db, err := sql.Open(driver, dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	if err := initSchema(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &SQLiteStorage{db: db, driver: driver, path: dbPath}, nil
}

func initSchema(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS table_rows (
		table_name TEXT NOT NULL,
		id TEXT NOT NULL,
		payload TEXT NOT NULL,
		fingerprint TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL,
		PRIMARY KEY (table_name, id)
	);

	CREATE INDEX IF NOT EXISTS idx_rows_table_created ON table_rows(table_name, created_at);
	`
	_, err := db.Exec(schema)
	return err
}

const upsertSQL = `INSERT INTO table_rows (table_name, id, payload, fingerprint, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(table_name, id) DO UPDATE SET
		payload = excluded.payload,
		fingerprint = excluded.fingerprint,
		updated_at = excluded.updated_at`

// Path returns the database file path.
func (s *SQLiteStorage) Path() string { return s.path }

// Driver returns the database/sql driver in use.
func (s *SQLiteStorage) Driver() string { return s.driver }

// Insert upserts a row.
func (s *SQLiteStorage) Insert(ctx context.Context, table, id string, row models.Row) (string, error) {
	payload, err := json.Marshal(row)
	if err != nil {
		return "", fmt.Errorf("failed to marshal row: %w", err)
	}
	fp := fingerprintBytes(payload)
	now := time.Now().UnixNano()

	if _, err := s.db.ExecContext(ctx, upsertSQL, table, id, string(payload), fp, now, now); err != nil {
		return "", fmt.Errorf("failed to insert row %s/%s: %w", table, id, err)
	}
	return fp, nil
}

// InsertBatch upserts multiple rows in a transaction.
func (s *SQLiteStorage) InsertBatch(ctx context.Context, table string, ids []string, rows []models.Row) ([]string, error) {
	if len(ids) != len(rows) {
		return nil, fmt.Errorf("insert batch: %d ids for %d rows", len(ids), len(rows))
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, upsertSQL)
	if err != nil {
		return nil, err
	}
	defer stmt.Close()

	now := time.Now().UnixNano()
	fingerprints := make([]string, len(rows))
	for i, row := range rows {
		payload, err := json.Marshal(row)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal row %s: %w", ids[i], err)
		}
		fingerprints[i] = fingerprintBytes(payload)
		if _, err := stmt.ExecContext(ctx, table, ids[i], string(payload), fingerprints[i], now, now); err != nil {
			return nil, fmt.Errorf("failed to insert row %s/%s: %w", table, ids[i], err)
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return fingerprints, nil
}

// FetchRowsByIDs returns the stored rows for ids in ids order.
func (s *SQLiteStorage) FetchRowsByIDs(ctx context.Context, table string, ids []string) ([]models.Row, error) {
	if len(ids) == 0 {
		return []models.Row{}, nil
	}
	byID := make(map[string]models.Row, len(ids))
	for start := 0; start < len(ids); start += fetchChunkSize {
		end := start + fetchChunkSize
		if end > len(ids) {
			end = len(ids)
		}
		if err := s.fetchChunk(ctx, table, ids[start:end], byID); err != nil {
			return nil, err
		}
	}

	rows := make([]models.Row, 0, len(byID))
	seen := make(map[string]bool, len(byID))
	for _, id := range ids {
		if row, ok := byID[id]; ok && !seen[id] {
			rows = append(rows, row)
			seen[id] = true
		}
	}
	return rows, nil
}

func (s *SQLiteStorage) fetchChunk(ctx context.Context, table string, ids []string, out map[string]models.Row) error {
	args := make([]any, 0, len(ids)+1)
	args = append(args, table)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, payload FROM table_rows WHERE table_name = ? AND id IN (`+placeholders+`)`, args...)
	if err != nil {
		return fmt.Errorf("failed to fetch rows from %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, payload string
		if err := rows.Scan(&id, &payload); err != nil {
			return err
		}
		row, err := decodeRow(payload)
		if err != nil {
			return fmt.Errorf("row %s/%s: %w", table, id, err)
		}
		if _, ok := row[models.IDField]; !ok {
			row[models.IDField] = id
		}
		out[id] = row
	}
	return rows.Err()
}

// GetRow returns a row with its bookkeeping columns.
func (s *SQLiteStorage) GetRow(ctx context.Context, table, id string) (*models.StoredRow, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT table_name, id, payload, fingerprint, created_at, updated_at
		 FROM table_rows WHERE table_name = ? AND id = ?`, table, id)
	stored, err := scanStoredRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	return stored, err
}

// DeleteRow removes a row.
func (s *SQLiteStorage) DeleteRow(ctx context.Context, table, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM table_rows WHERE table_name = ? AND id = ?`, table, id)
	if err != nil {
		return err
	}
	n, _ := result.RowsAffected()
	if n == 0 {
		return fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	return nil
}

// ListRows returns rows of a table in insertion order with offset and limit.
// A non-positive limit returns every row from offset on.
func (s *SQLiteStorage) ListRows(ctx context.Context, table string, offset, limit int) ([]*models.StoredRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT table_name, id, payload, fingerprint, created_at, updated_at
		 FROM table_rows WHERE table_name = ? ORDER BY created_at, id LIMIT ? OFFSET ?`,
		table, limit, offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.StoredRow
	for rows.Next() {
		stored, err := scanStoredRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, stored)
	}
	return out, rows.Err()
}

// Fingerprint returns the stored fingerprint of a row.
func (s *SQLiteStorage) Fingerprint(ctx context.Context, table, id string) (string, error) {
	var fp string
	err := s.db.QueryRowContext(ctx,
		`SELECT fingerprint FROM table_rows WHERE table_name = ? AND id = ?`, table, id).Scan(&fp)
	if errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("%w: %s/%s", ErrNotFound, table, id)
	}
	return fp, err
}

// Tables returns the distinct table names in ascending order.
func (s *SQLiteStorage) Tables(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT table_name FROM table_rows ORDER BY table_name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tables []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		tables = append(tables, name)
	}
	return tables, rows.Err()
}

// CountRows returns the number of rows in table, or in all tables when table is empty.
func (s *SQLiteStorage) CountRows(ctx context.Context, table string) (int64, error) {
	var count int64
	var err error
	if table == "" {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM table_rows`).Scan(&count)
	} else {
		err = s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM table_rows WHERE table_name = ?`, table).Scan(&count)
	}
	return count, err
}

// Close closes the database connection.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanStoredRow(sc scanner) (*models.StoredRow, error) {
	var stored models.StoredRow
	var payload string
	var created, updated int64
	if err := sc.Scan(&stored.Table, &stored.ID, &payload, &stored.Fingerprint, &created, &updated); err != nil {
		return nil, err
	}
	row, err := decodeRow(payload)
	if err != nil {
		return nil, fmt.Errorf("row %s/%s: %w", stored.Table, stored.ID, err)
	}
	stored.Data = row
	stored.CreatedAt = time.Unix(0, created)
	stored.UpdatedAt = time.Unix(0, updated)
	return &stored, nil
}

func decodeRow(payload string) (models.Row, error) {
	var row models.Row
	if err := json.Unmarshal([]byte(payload), &row); err != nil {
		return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return row, nil
}
