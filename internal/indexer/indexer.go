// Package indexer writes rows to the row store and their embeddings to the vector index.
package indexer

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/dreamdb/internal/embedding"
	"github.com/hyperjump/dreamdb/internal/ingest"
	"github.com/hyperjump/dreamdb/internal/models"
	"github.com/hyperjump/dreamdb/internal/rowkey"
	"github.com/hyperjump/dreamdb/internal/storage"
	"github.com/hyperjump/dreamdb/internal/vector"
)

const (
	defaultBatchSize = 64
	listPageSize     = 500
)

// Indexer stores rows and keeps the vector index in step with them.
// A row is stored before it is embedded; if embedding fails the row stays stored and
// the failure is reported as *UnindexedError.
type Indexer struct {
	rows      storage.RowStore
	embedder  embedding.Embedder
	index     *vector.Store
	reader    *ingest.Reader
	batchSize int
	logger    *zap.Logger

	mu    sync.Mutex
	files map[string]fileState // imported file -> state at import
}

type fileState struct {
	modTime time.Time
	size    int64
}

// IndexerOption configures an Indexer.
type IndexerOption func(*Indexer)

// WithLogger sets a logger for debug output.
func WithLogger(l *zap.Logger) IndexerOption {
	return func(idx *Indexer) { idx.logger = l }
}

// WithBatchSize sets how many rows are embedded per EmbedBatch call.
func WithBatchSize(n int) IndexerOption {
	return func(idx *Indexer) {
		if n > 0 {
			idx.batchSize = n
		}
	}
}

// NewIndexer creates an indexer with the given dependencies.
func NewIndexer(rows storage.RowStore, embedder embedding.Embedder, index *vector.Store, opts ...IndexerOption) *Indexer {
	idx := &Indexer{
		rows:      rows,
		embedder:  embedder,
		index:     index,
		reader:    ingest.NewReader(),
		batchSize: defaultBatchSize,
		logger:    zap.NewNop(),
		files:     make(map[string]fileState),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx
}

// InsertResult describes one stored row.
type InsertResult struct {
	ID  string `json:"id"`
	Key string `json:"key"`
	// Skipped is true when the row was unchanged and already indexed.
	Skipped bool `json:"skipped"`
}

// BatchResult summarizes InsertRows.
type BatchResult struct {
	Table   string   `json:"table"`
	IDs     []string `json:"ids"`
	Indexed int      `json:"indexed"`
	Skipped int      `json:"skipped"`
}

// prepareRow copies row and makes sure it carries an id, generating a UUID when absent.
// An existing id keeps its type in the payload.
func prepareRow(table string, row models.Row) (models.Row, rowkey.Key, error) {
	if err := rowkey.ValidateTable(table); err != nil {
		return nil, rowkey.Key{}, err
	}
	out := row.Clone()
	id := out.ID()
	if id == "" {
		id = uuid.NewString()
		out[models.IDField] = id
	}
	key, err := rowkey.New(table, id)
	return out, key, err
}

// unchanged reports whether the stored row has the same fingerprint and its vector is present.
func (idx *Indexer) unchanged(ctx context.Context, table string, key rowkey.Key, row models.Row) bool {
	if !idx.index.Contains(key.String()) {
		return false
	}
	stored, err := idx.rows.Fingerprint(ctx, table, key.RowID)
	if err != nil {
		return false
	}
	fp, err := storage.Fingerprint(row)
	return err == nil && fp == stored
}

// InsertRow stores row in table and indexes its embedding under "<table>_<id>".
func (idx *Indexer) InsertRow(ctx context.Context, table string, row models.Row) (*InsertResult, error) {
	row, key, err := prepareRow(table, row)
	if err != nil {
		return nil, err
	}
	result := &InsertResult{ID: key.RowID, Key: key.String()}
	if idx.unchanged(ctx, table, key, row) {
		result.Skipped = true
		idx.logger.Debug("row unchanged, skipping embed", zap.String("key", result.Key))
		return result, nil
	}

	if _, err := idx.rows.Insert(ctx, table, key.RowID, row); err != nil {
		return nil, fmt.Errorf("failed to store row: %w", err)
	}
	vec, err := idx.embedder.Embed(ctx, RowText(row))
	if err != nil {
		return result, &UnindexedError{Keys: []string{result.Key}, Err: embedding.AsUpstream("embed row", err)}
	}
	if err := idx.index.Add(result.Key, vec); err != nil {
		return result, &UnindexedError{Keys: []string{result.Key}, Err: err}
	}
	idx.logger.Debug("row indexed", zap.String("key", result.Key))
	return result, nil
}

// InsertRows stores rows in one transaction and indexes the changed ones in embedding batches.
// On an embedding failure the remaining rows stay stored, and the error lists their keys.
func (idx *Indexer) InsertRows(ctx context.Context, table string, rows []models.Row) (*BatchResult, error) {
	result := &BatchResult{Table: table, IDs: make([]string, 0, len(rows))}
	if len(rows) == 0 {
		return result, rowkey.ValidateTable(table)
	}

	prepared := make([]models.Row, 0, len(rows))
	keys := make([]rowkey.Key, 0, len(rows))
	positions := make(map[string]int, len(rows)) // a repeated id keeps its last version
	for _, r := range rows {
		row, key, err := prepareRow(table, r)
		if err != nil {
			return nil, err
		}
		if i, dup := positions[key.RowID]; dup {
			prepared[i] = row
			continue
		}
		positions[key.RowID] = len(prepared)
		prepared = append(prepared, row)
		keys = append(keys, key)
		result.IDs = append(result.IDs, key.RowID)
	}

	var pending []int
	for i, row := range prepared {
		if idx.unchanged(ctx, table, keys[i], row) {
			result.Skipped++
			continue
		}
		pending = append(pending, i)
	}
	if len(pending) == 0 {
		return result, nil
	}

	ids := make([]string, len(pending))
	toStore := make([]models.Row, len(pending))
	for j, i := range pending {
		ids[j] = keys[i].RowID
		toStore[j] = prepared[i]
	}
	if _, err := idx.rows.InsertBatch(ctx, table, ids, toStore); err != nil {
		return nil, fmt.Errorf("failed to store rows: %w", err)
	}

	for start := 0; start < len(pending); start += idx.batchSize {
		end := min(start+idx.batchSize, len(pending))
		chunk := pending[start:end]
		if err := idx.embedAndAdd(ctx, keys, prepared, chunk); err != nil {
			unindexed := make([]string, 0, len(pending)-start)
			for _, i := range pending[start:] {
				unindexed = append(unindexed, keys[i].String())
			}
			return result, &UnindexedError{Keys: unindexed, Err: err}
		}
		result.Indexed += len(chunk)
	}
	idx.logger.Debug("rows indexed",
		zap.String("table", table),
		zap.Int("indexed", result.Indexed),
		zap.Int("skipped", result.Skipped))
	return result, nil
}

func (idx *Indexer) embedAndAdd(ctx context.Context, keys []rowkey.Key, rows []models.Row, chunk []int) error {
	texts := make([]string, len(chunk))
	for j, i := range chunk {
		texts[j] = RowText(rows[i])
	}
	vecs, err := idx.embedder.EmbedBatch(ctx, texts)
	if err != nil {
		return embedding.AsUpstream("embed rows", err)
	}
	if len(vecs) != len(chunk) {
		return &embedding.UpstreamError{Op: "embed rows", Message: fmt.Sprintf("expected %d vectors, got %d", len(chunk), len(vecs))}
	}
	records := make([]vector.Record, len(chunk))
	for j, i := range chunk {
		records[j] = vector.Record{ID: keys[i].String(), Vector: vecs[j]}
	}
	return idx.index.AddBatch(records)
}

// DeleteRow removes a row from the row store and its vector from the index.
// The vector is removed even when the row is already gone.
func (idx *Indexer) DeleteRow(ctx context.Context, table, id string) error {
	key, err := rowkey.New(table, id)
	if err != nil {
		return err
	}
	removed := idx.index.Remove(key.String())
	if err := idx.rows.DeleteRow(ctx, table, id); err != nil {
		if errors.Is(err, storage.ErrNotFound) && removed {
			return nil
		}
		return fmt.Errorf("failed to delete row: %w", err)
	}
	idx.logger.Debug("row deleted", zap.String("key", key.String()))
	return nil
}

// ReindexResult summarizes Reindex.
type ReindexResult struct {
	Tables  []string `json:"tables"`
	Scanned int      `json:"scanned"`
	Indexed int      `json:"indexed"`
}

// Reindex embeds stored rows of table (all tables when empty) whose vectors are missing,
// or every row when force is set. It closes the gap left by failed embeddings.
func (idx *Indexer) Reindex(ctx context.Context, table string, force bool) (*ReindexResult, error) {
	tables := []string{table}
	if table == "" {
		var err error
		if tables, err = idx.rows.Tables(ctx); err != nil {
			return nil, fmt.Errorf("failed to list tables: %w", err)
		}
	}
	result := &ReindexResult{Tables: tables}
	for _, t := range tables {
		for offset := 0; ; offset += listPageSize {
			stored, err := idx.rows.ListRows(ctx, t, offset, listPageSize)
			if err != nil {
				return result, fmt.Errorf("failed to list rows of %s: %w", t, err)
			}
			result.Scanned += len(stored)

			keys := make([]rowkey.Key, 0, len(stored))
			rows := make([]models.Row, 0, len(stored))
			for _, s := range stored {
				key, err := rowkey.New(t, s.ID)
				if err != nil {
					continue
				}
				if !force && idx.index.Contains(key.String()) {
					continue
				}
				keys = append(keys, key)
				rows = append(rows, s.Data)
			}
			for start := 0; start < len(keys); start += idx.batchSize {
				end := min(start+idx.batchSize, len(keys))
				chunk := make([]int, 0, end-start)
				for i := start; i < end; i++ {
					chunk = append(chunk, i)
				}
				if err := idx.embedAndAdd(ctx, keys, rows, chunk); err != nil {
					return result, err
				}
				result.Indexed += len(chunk)
			}
			if len(stored) < listPageSize {
				break
			}
		}
	}
	idx.logger.Info("reindex finished",
		zap.Strings("tables", tables),
		zap.Int("scanned", result.Scanned),
		zap.Int("indexed", result.Indexed))
	return result, nil
}

// IndexFile imports the rows of a data file. If allowedExts is non-empty the file's extension
// must be in it (case-insensitive). A file already imported with the same mtime and size is skipped.
func (idx *Indexer) IndexFile(ctx context.Context, path string, allowedExts []string) ([]*BatchResult, error) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("absolute path: %w", err)
	}
	ext := strings.ToLower(filepath.Ext(absPath))
	if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
		return nil, fmt.Errorf("extension %q not in allowed list", ext)
	}
	info, err := os.Stat(absPath)
	if err != nil {
		return nil, fmt.Errorf("stat file: %w", err)
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("not a regular file: %s", absPath)
	}
	state := fileState{modTime: info.ModTime(), size: info.Size()}
	idx.mu.Lock()
	prev, seen := idx.files[absPath]
	idx.mu.Unlock()
	if seen && prev.modTime.Equal(state.modTime) && prev.size == state.size {
		idx.logger.Debug("indexer skipping unchanged file", zap.String("path", absPath))
		return nil, nil
	}

	batches, err := idx.reader.ReadFile(absPath)
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	results := make([]*BatchResult, 0, len(batches))
	for _, b := range batches {
		res, err := idx.InsertRows(ctx, b.Table, b.Rows)
		if res != nil {
			results = append(results, res)
		}
		if err != nil {
			return results, fmt.Errorf("import %s into %s: %w", filepath.Base(absPath), b.Table, err)
		}
	}

	idx.mu.Lock()
	idx.files[absPath] = state
	idx.mu.Unlock()
	idx.logger.Info("file imported", zap.String("path", absPath), zap.Int("tables", len(results)))
	return results, nil
}

// ForgetFile drops the import state of path so the next IndexFile re-reads it.
// Rows already imported from it are kept.
func (idx *Indexer) ForgetFile(path string) {
	absPath, err := filepath.Abs(path)
	if err != nil {
		return
	}
	idx.mu.Lock()
	delete(idx.files, absPath)
	idx.mu.Unlock()
}

// IndexDirectory walks dir recursively and imports each regular file whose extension is in
// allowedExts (every supported file when empty). Returns the number of files imported and the
// first error encountered, if any.
func (idx *Indexer) IndexDirectory(ctx context.Context, dir string, allowedExts []string) (n int, err error) {
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return 0, fmt.Errorf("absolute path: %w", err)
	}
	info, err := os.Stat(absDir)
	if err != nil {
		return 0, fmt.Errorf("stat directory: %w", err)
	}
	if !info.IsDir() {
		return 0, fmt.Errorf("not a directory: %s", absDir)
	}
	err = filepath.WalkDir(absDir, func(path string, d os.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		ext := strings.ToLower(filepath.Ext(path))
		if len(allowedExts) > 0 && !extensionAllowed(ext, allowedExts) {
			return nil
		}
		if len(allowedExts) == 0 && !ingest.Supported(path) {
			return nil
		}
		if _, err := idx.IndexFile(ctx, path, allowedExts); err != nil {
			return err
		}
		n++
		return nil
	})
	return n, err
}

func extensionAllowed(ext string, allowed []string) bool {
	extNorm := strings.ToLower(strings.TrimPrefix(ext, "."))
	for _, a := range allowed {
		if strings.ToLower(strings.TrimPrefix(a, ".")) == extNorm {
			return true
		}
	}
	return false
}
