// Package server provides the HTTP API for DreamDB.
package server

import (
	"context"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/hyperjump/dreamdb/internal/config"
	"github.com/hyperjump/dreamdb/internal/embedding"
	"github.com/hyperjump/dreamdb/internal/indexer"
	"github.com/hyperjump/dreamdb/internal/search"
	"github.com/hyperjump/dreamdb/internal/storage"
	"github.com/hyperjump/dreamdb/internal/vector"
)

const (
	requestTimeout = 60 * time.Second
	maxBodyBytes   = 32 << 20
)

// WatchService manages the watched ingest directories.
type WatchService interface {
	Directories() []string
	AddDirectory(path string, syncExisting bool) error
	RemoveDirectory(path string) error
}

// Server is the HTTP server for the DreamDB API.
type Server struct {
	engine   *search.Engine
	indexer  *indexer.Indexer
	rows     storage.RowStore
	index    *vector.Store
	embedder embedding.Embedder
	config   *config.Config
	logger   *zap.Logger

	flusher    *vector.Flusher
	watch      WatchService
	configPath string
	configMu   sync.Mutex

	server *http.Server
}

// Option configures optional server dependencies.
type Option func(*Server)

// WithFlusher makes persist requests go through the background flusher so its
// last error reflects manual flushes too.
func WithFlusher(f *vector.Flusher) Option {
	return func(s *Server) { s.flusher = f }
}

// WithWatcher enables the watch directory endpoints. When configPath is set, directory
// changes are saved back to the config file.
func WithWatcher(w WatchService, configPath string) Option {
	return func(s *Server) {
		s.watch = w
		s.configPath = configPath
	}
}

// NewServer creates a server with the given dependencies.
func NewServer(
	engine *search.Engine,
	idx *indexer.Indexer,
	rows storage.RowStore,
	index *vector.Store,
	embedder embedding.Embedder,
	cfg *config.Config,
	logger *zap.Logger,
	opts ...Option,
) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		engine:   engine,
		indexer:  idx,
		rows:     rows,
		index:    index,
		embedder: embedder,
		config:   cfg,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns the API routes.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(s.logger))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))
	r.Use(middleware.Compress(5))

	r.Get("/health", s.handleHealth)
	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/search", s.handleSearch)
		r.Get("/status", s.handleStatus)

		r.Get("/tables", s.handleListTables)
		r.Post("/tables/{table}/rows", s.handleInsertRows)
		r.Get("/tables/{table}/rows/{id}", s.handleGetRow)
		r.Delete("/tables/{table}/rows/{id}", s.handleDeleteRow)

		r.Post("/index/persist", s.handlePersist)
		r.Post("/index/reindex", s.handleReindex)

		r.Get("/watch/directories", s.handleWatchDirectoriesList)
		r.Post("/watch/directories", s.handleWatchDirectoriesAdd)
		r.Delete("/watch/directories", s.handleWatchDirectoriesRemove)
	})
	return r
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	addr := s.config.Server.Addr()
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.logger.Info("starting server", zap.String("addr", addr))
	return s.server.ListenAndServe()
}

// Stop gracefully shuts down the server.
func (s *Server) Stop(ctx context.Context) error {
	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// requestLogger logs one line per request with zap.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			defer func() {
				fields := []zap.Field{
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Int("status", ww.Status()),
					zap.Int("bytes", ww.BytesWritten()),
					zap.Duration("took", time.Since(start)),
					zap.String("request_id", middleware.GetReqID(r.Context())),
				}
				if ww.Status() >= http.StatusInternalServerError {
					logger.Warn("request", fields...)
					return
				}
				logger.Debug("request", fields...)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}
