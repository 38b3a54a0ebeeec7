package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/dreamdb/internal/config"
	"github.com/hyperjump/dreamdb/internal/embedding"
	"github.com/hyperjump/dreamdb/internal/indexer"
	"github.com/hyperjump/dreamdb/internal/ingest"
	"github.com/hyperjump/dreamdb/internal/models"
	"github.com/hyperjump/dreamdb/internal/rowkey"
	"github.com/hyperjump/dreamdb/internal/search"
	"github.com/hyperjump/dreamdb/internal/storage"
	"github.com/hyperjump/dreamdb/internal/vector"
)

const healthTimeout = 2 * time.Second

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var query models.SearchQuery
	if err := s.decodeBody(w, r, &query); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	s.logger.Debug("search request",
		zap.String("query", query.Query),
		zap.Int("limit", query.Limit),
		zap.Strings("tables", query.Tables))
	response, err := s.engine.Search(r.Context(), &query)
	if err != nil {
		s.respondFailure(w, "search", err)
		return
	}
	s.respondJSON(w, http.StatusOK, response)
}

// handleInsertRows accepts a single JSON object or an array of objects.
func (s *Server) handleInsertRows(w http.ResponseWriter, r *http.Request) {
	table := chi.URLParam(r, "table")
	if err := rowkey.ValidateTable(table); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	var raw json.RawMessage
	if err := s.decodeBody(w, r, &raw); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var rows []models.Row
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			s.respondError(w, http.StatusBadRequest, "rows must be JSON objects")
			return
		}
		for i, row := range rows {
			if row == nil {
				s.respondError(w, http.StatusBadRequest, fmt.Sprintf("row %d is null", i))
				return
			}
		}
		s.logger.Debug("insert rows request", zap.String("table", table), zap.Int("rows", len(rows)))
		result, err := s.indexer.InsertRows(r.Context(), table, rows)
		s.respondWrite(w, result, err)
		return
	}

	var row models.Row
	if err := json.Unmarshal(trimmed, &row); err != nil || row == nil {
		s.respondError(w, http.StatusBadRequest, "row must be a JSON object")
		return
	}
	s.logger.Debug("insert row request", zap.String("table", table))
	result, err := s.indexer.InsertRow(r.Context(), table, row)
	s.respondWrite(w, result, err)
}

// respondWrite reports a write result. Rows stored without a vector are accepted (202)
// and listed so the caller can reindex.
func (s *Server) respondWrite(w http.ResponseWriter, result any, err error) {
	var unindexed *indexer.UnindexedError
	switch {
	case err == nil:
		s.respondJSON(w, http.StatusCreated, result)
	case errors.As(err, &unindexed):
		s.logger.Warn("rows stored but not indexed", zap.Int("rows", len(unindexed.Keys)), zap.Error(err))
		s.respondJSON(w, http.StatusAccepted, map[string]any{
			"result":    result,
			"unindexed": unindexed.Keys,
			"error":     err.Error(),
		})
	default:
		s.respondFailure(w, "insert", err)
	}
}

func (s *Server) handleGetRow(w http.ResponseWriter, r *http.Request) {
	table, id := chi.URLParam(r, "table"), chi.URLParam(r, "id")
	row, err := s.rows.GetRow(r.Context(), table, id)
	if err != nil {
		s.respondFailure(w, "get row", err)
		return
	}
	s.respondJSON(w, http.StatusOK, row)
}

func (s *Server) handleDeleteRow(w http.ResponseWriter, r *http.Request) {
	table, id := chi.URLParam(r, "table"), chi.URLParam(r, "id")
	s.logger.Debug("delete row request", zap.String("table", table), zap.String("id", id))
	if err := s.indexer.DeleteRow(r.Context(), table, id); err != nil {
		s.respondFailure(w, "delete row", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := s.rows.Tables(r.Context())
	if err != nil {
		s.respondFailure(w, "list tables", err)
		return
	}
	if tables == nil {
		tables = []string{}
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"tables": tables})
}

func (s *Server) handlePersist(w http.ResponseWriter, r *http.Request) {
	var err error
	if s.flusher != nil {
		err = s.flusher.Flush()
	} else {
		err = s.index.Persist("")
	}
	if err != nil {
		s.respondFailure(w, "persist", err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{
		"status":  "persisted",
		"path":    s.index.Config().PersistPath,
		"vectors": s.index.Size(),
	})
}

type reindexRequest struct {
	Table string `json:"table"`
	Force bool   `json:"force"`
}

func (s *Server) handleReindex(w http.ResponseWriter, r *http.Request) {
	var req reindexRequest
	if r.ContentLength != 0 {
		if err := s.decodeBody(w, r, &req); err != nil {
			s.respondError(w, http.StatusBadRequest, "invalid request body")
			return
		}
	}
	if req.Table != "" {
		if err := rowkey.ValidateTable(req.Table); err != nil {
			s.respondError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	result, err := s.indexer.Reindex(r.Context(), req.Table, req.Force)
	if err != nil {
		s.respondFailure(w, "reindex", err)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

// StatusResponse is the body of GET /api/v1/status.
type StatusResponse struct {
	Rows             int64              `json:"rows"`
	Tables           []string           `json:"tables"`
	VectorIndexSize  int                `json:"vector_index_size"`
	Unindexed        int64              `json:"unindexed"`
	IndexDirty       bool               `json:"index_dirty"`
	LastFlushError   string             `json:"last_flush_error,omitempty"`
	DiskUsage        *storage.DiskUsage `json:"disk_usage,omitempty"`
	WatchDirectories []string           `json:"watch_directories,omitempty"`
	Config           StatusConfig       `json:"config"`
}

// StatusConfig is the part of the configuration reported by status.
type StatusConfig struct {
	Metric            string `json:"metric"`
	Dimensions        int    `json:"dimensions"`
	EmbeddingProvider string `json:"embedding_provider"`
	StorageDriver     string `json:"storage_driver"`
	DatabasePath      string `json:"database_path"`
	IndexPath         string `json:"index_path,omitempty"`
	Compression       string `json:"compression,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.Status(r.Context())
	if err != nil {
		s.respondFailure(w, "status", err)
		return
	}
	s.respondJSON(w, http.StatusOK, status)
}

// Status reports row counts, index state and disk usage.
func (s *Server) Status(ctx context.Context) (*StatusResponse, error) {
	count, err := s.rows.CountRows(ctx, "")
	if err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}
	tables, err := s.rows.Tables(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list tables: %w", err)
	}
	if tables == nil {
		tables = []string{}
	}
	indexCfg := s.index.Config()
	status := &StatusResponse{
		Rows:            count,
		Tables:          tables,
		VectorIndexSize: s.index.Size(),
		IndexDirty:      s.index.Dirty(),
		Config: StatusConfig{
			Metric:            string(indexCfg.Metric),
			Dimensions:        indexCfg.Dimension,
			EmbeddingProvider: s.config.Embedding.Provider,
			StorageDriver:     s.config.Storage.Driver,
			DatabasePath:      s.config.Storage.DatabasePath,
			IndexPath:         indexCfg.PersistPath,
			Compression:       string(indexCfg.Compression),
		},
	}
	if missing := count - int64(status.VectorIndexSize); missing > 0 {
		status.Unindexed = missing
	}
	if s.flusher != nil {
		if err := s.flusher.LastError(); err != nil {
			status.LastFlushError = err.Error()
		}
	}
	paths := append(storage.DatabaseFiles(s.config.Storage.DatabasePath), indexCfg.PersistPath)
	if usage, err := storage.MeasureDiskUsage(paths...); err == nil {
		status.DiskUsage = usage
	} else {
		s.logger.Warn("status: disk usage failed", zap.Error(err))
	}
	if s.watch != nil {
		status.WatchDirectories = s.watch.Directories()
	}
	return status, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	checker, ok := s.embedder.(embedding.HealthChecker)
	if !ok {
		s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), healthTimeout)
	defer cancel()
	if err := checker.Health(ctx); err != nil {
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status":   "degraded",
			"embedder": err.Error(),
		})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "ok", "embedder": "ok"})
}

func (s *Server) handleWatchDirectoriesList(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"directories": s.watch.Directories()})
}

type watchAddRequest struct {
	Path string `json:"path"`
	Sync *bool  `json:"sync,omitempty"`
}

func (s *Server) handleWatchDirectoriesAdd(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	var req watchAddRequest
	if err := s.decodeBody(w, r, &req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Path == "" {
		s.respondError(w, http.StatusBadRequest, "path is required")
		return
	}
	abs, err := filepath.Abs(req.Path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	info, err := os.Stat(abs)
	switch {
	case os.IsNotExist(err):
		s.respondError(w, http.StatusNotFound, "directory not found")
		return
	case err != nil:
		s.respondError(w, http.StatusInternalServerError, err.Error())
		return
	case !info.IsDir():
		s.respondError(w, http.StatusBadRequest, "path is not a directory")
		return
	}
	syncExisting := req.Sync == nil || *req.Sync
	if err := s.watch.AddDirectory(abs, syncExisting); err != nil {
		s.respondFailure(w, "watch add directory", err)
		return
	}
	s.saveWatchDirectories()
	s.respondJSON(w, http.StatusCreated, map[string]string{"path": abs, "status": "added"})
}

func (s *Server) handleWatchDirectoriesRemove(w http.ResponseWriter, r *http.Request) {
	if s.watch == nil {
		s.respondError(w, http.StatusNotImplemented, "watch not enabled")
		return
	}
	path := r.URL.Query().Get("path")
	if path == "" {
		s.respondError(w, http.StatusBadRequest, "path query parameter is required")
		return
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid path")
		return
	}
	if err := s.watch.RemoveDirectory(abs); err != nil {
		s.respondFailure(w, "watch remove directory", err)
		return
	}
	s.saveWatchDirectories()
	s.respondJSON(w, http.StatusOK, map[string]string{"path": abs, "status": "removed"})
}

// saveWatchDirectories writes the watched roots back to the config file, if one is known.
func (s *Server) saveWatchDirectories() {
	if s.configPath == "" {
		return
	}
	s.configMu.Lock()
	defer s.configMu.Unlock()
	s.config.Ingest.Directories = s.watch.Directories()
	if err := config.Save(s.configPath, s.config); err != nil {
		s.logger.Warn("failed to persist watch config", zap.Error(err))
	}
}

func (s *Server) decodeBody(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	return json.NewDecoder(r.Body).Decode(v)
}

// statusFor maps an error to its HTTP status.
func statusFor(err error) int {
	var (
		verr     *vector.ValidationError
		upstream *embedding.UpstreamError
	)
	switch {
	case errors.Is(err, search.ErrInvalidQuery),
		errors.Is(err, rowkey.ErrInvalidTable),
		errors.Is(err, rowkey.ErrEmptyRowID),
		errors.Is(err, rowkey.ErrNoSeparator),
		errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.Is(err, ingest.ErrUnsupportedFormat):
		return http.StatusUnsupportedMediaType
	case errors.Is(err, storage.ErrNotFound):
		return http.StatusNotFound
	case errors.As(err, &upstream):
		if upstream.Retryable {
			return http.StatusServiceUnavailable
		}
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondFailure(w http.ResponseWriter, op string, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error(op+" failed", zap.Int("status", status), zap.Error(err))
	} else {
		s.logger.Debug(op+" rejected", zap.Int("status", status), zap.Error(err))
	}
	if status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", "1")
	}
	s.respondError(w, status, err.Error())
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
