package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"github.com/hyperjump/dreamdb/internal/config"
	"github.com/hyperjump/dreamdb/internal/embedding"
	"github.com/hyperjump/dreamdb/internal/indexer"
	"github.com/hyperjump/dreamdb/internal/ranking"
	"github.com/hyperjump/dreamdb/internal/search"
	"github.com/hyperjump/dreamdb/internal/server"
	"github.com/hyperjump/dreamdb/internal/storage"
	"github.com/hyperjump/dreamdb/internal/vector"
)

const defaultConfigPath = "/usr/local/etc/dreamdb/config.yaml"

// loadConfig loads config from path. When path is the default and config.yaml exists in the
// current directory, that file is used instead so a checkout can run with its own config.
// A missing default config falls back to built-in defaults. Returns the path actually used.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, err := os.Getwd(); err == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, err := os.Stat(fallback); err == nil {
				cfg, err := config.Load(fallback)
				if err != nil {
					return nil, "", err
				}
				return cfg, fallback, nil
			}
		}
		cfg, err := config.LoadOrDefault(path)
		if err != nil {
			return nil, "", err
		}
		return cfg, path, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

// Components holds initialized services.
type Components struct {
	Config   *config.Config
	Storage  *storage.SQLiteStorage
	Embedder embedding.Embedder
	Index    *vector.Store
	Engine   *search.Engine
	Indexer  *indexer.Indexer
	logger   *zap.Logger
}

func initializeComponents(cfg *config.Config, logger *zap.Logger) (*Components, error) {
	store, err := storage.NewSQLiteStorageWithDriver(cfg.Storage.Driver, cfg.Storage.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	metric, err := vector.ParseMetric(cfg.Index.Metric)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	compression, err := vector.ParseCompression(cfg.Index.Compression)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	index, err := vector.Open(vector.Config{
		Dimension:     cfg.Embedding.Dimensions,
		Metric:        metric,
		PersistPath:   cfg.Index.Path,
		AutoPersist:   cfg.Index.AutoPersistOrDefault(),
		FlushInterval: cfg.Index.FlushInterval,
		Compression:   compression,
	})
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to open vector index: %w", err)
	}
	logger.Info("vector index loaded",
		zap.String("path", cfg.Index.Path),
		zap.String("metric", string(metric)),
		zap.Int("vectors", index.Size()))

	embedder, err := embedding.New(embedding.Config{
		Provider:   cfg.Embedding.Provider,
		URL:        cfg.Embedding.URL,
		Timeout:    cfg.Embedding.Timeout,
		Retries:    cfg.Embedding.Retries,
		Dimensions: cfg.Embedding.Dimensions,
		CacheSize:  cfg.Embedding.CacheSize,
		ModelPath:  cfg.Embedding.ModelPath,
		MaxTokens:  cfg.Embedding.MaxTokens,
	}, logger)
	if err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("failed to initialize embedder: %w", err)
	}

	ranker := ranking.NewRanker(&cfg.Ranking)
	engine := search.NewEngine(store, embedder, index, ranker, &cfg.Search, logger.Named("search"))
	idx := indexer.NewIndexer(store, embedder, index, indexer.WithLogger(logger.Named("indexer")))

	return &Components{
		Config:   cfg,
		Storage:  store,
		Embedder: embedder,
		Index:    index,
		Engine:   engine,
		Indexer:  idx,
		logger:   logger,
	}, nil
}

// Server builds the HTTP server over the components.
func (c *Components) Server(opts ...server.Option) *server.Server {
	return server.NewServer(c.Engine, c.Indexer, c.Storage, c.Index, c.Embedder, c.Config, c.logger, opts...)
}

// Status reports row and index counts without going through HTTP.
func (c *Components) Status(ctx context.Context) (*server.StatusResponse, error) {
	return c.Server().Status(ctx)
}

// Persist writes the vector index if it changed and a path is configured.
func (c *Components) Persist() error {
	if c.Index.Config().PersistPath == "" || !c.Index.Dirty() {
		return nil
	}
	if err := c.Index.Persist(""); err != nil {
		return fmt.Errorf("failed to persist vector index: %w", err)
	}
	return nil
}

func (c *Components) Close() {
	if c.Embedder != nil {
		_ = c.Embedder.Close()
	}
	if c.Storage != nil {
		_ = c.Storage.Close()
	}
}
