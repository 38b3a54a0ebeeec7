// Package config provides configuration loading and structs for the DreamDB server and CLI.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hyperjump/dreamdb/internal/ranking"
)

// Environment variables that override the embedder URL, in priority order.
var embedderURLEnv = []string{"DREAMDB_EMBEDDER_URL", "EMBEDDER_URL"}

// Config holds all configuration for the application.
type Config struct {
	Debug     bool                  `yaml:"debug"`
	Server    ServerConfig          `yaml:"server"`
	Storage   StorageConfig         `yaml:"storage"`
	Embedding EmbeddingConfig       `yaml:"embedding"`
	Index     IndexConfig           `yaml:"index"`
	Search    SearchConfig          `yaml:"search"`
	Ranking   ranking.RankingConfig `yaml:"ranking"`
	Ingest    IngestConfig          `yaml:"ingest"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// Addr returns host:port.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// StorageConfig holds the row database settings.
type StorageConfig struct {
	// Driver is "sqlite3" (cgo, mattn/go-sqlite3) or "sqlite" (pure Go, modernc.org/sqlite).
	Driver       string `yaml:"driver"`
	DatabasePath string `yaml:"database_path"`
}

// EmbeddingConfig selects the embedder.
type EmbeddingConfig struct {
	Provider   string        `yaml:"provider"` // http, onnx or mock
	URL        string        `yaml:"url"`
	Timeout    time.Duration `yaml:"timeout"`
	Retries    int           `yaml:"retries"`
	Dimensions int           `yaml:"dimensions"`
	CacheSize  int           `yaml:"cache_size"`
	ModelPath  string        `yaml:"model_path"`
	MaxTokens  int           `yaml:"max_tokens"`
}

// IndexConfig holds vector index settings.
type IndexConfig struct {
	Path          string        `yaml:"path"`
	Metric        string        `yaml:"metric"`
	AutoPersist   *bool         `yaml:"auto_persist"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	Compression   string        `yaml:"compression"`
}

// AutoPersistOrDefault returns whether the index is flushed in the background; defaults to true when unset.
func (c *IndexConfig) AutoPersistOrDefault() bool {
	if c.AutoPersist != nil {
		return *c.AutoPersist
	}
	return true
}

// SearchConfig holds query-time settings.
type SearchConfig struct {
	DefaultLimit int `yaml:"default_limit"`
	MaxLimit     int `yaml:"max_limit"`
	// Overfetch multiplies the limit to get the number of raw vector candidates.
	Overfetch int `yaml:"overfetch"`
	// FetchConcurrency bounds parallel per-table row fetches.
	FetchConcurrency int `yaml:"fetch_concurrency"`
}

// IngestConfig holds the directories watched for row files.
type IngestConfig struct {
	Directories []string      `yaml:"directories"`
	Extensions  []string      `yaml:"extensions"`
	Recursive   *bool         `yaml:"recursive"`
	Debounce    time.Duration `yaml:"debounce"`
}

// RecursiveOrDefault returns whether to watch recursively; defaults to true when unset.
func (c *IngestConfig) RecursiveOrDefault() bool {
	if c.Recursive != nil {
		return *c.Recursive
	}
	return true
}

// Load reads and parses the config file at path, applies defaults and environment
// overrides, and expands paths. Returns an error if the file cannot be read or parsed.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	ApplyDefaults(&cfg)
	ApplyEnv(&cfg)

	configDir := filepath.Dir(path)
	cfg.Storage.DatabasePath = expandPath(cfg.Storage.DatabasePath, configDir)
	cfg.Index.Path = expandPath(cfg.Index.Path, configDir)
	cfg.Embedding.ModelPath = expandPath(cfg.Embedding.ModelPath, configDir)
	for i := range cfg.Ingest.Directories {
		cfg.Ingest.Directories[i] = expandPath(cfg.Ingest.Directories[i], configDir)
	}

	return &cfg, nil
}

// LoadOrDefault loads path when it exists and otherwise returns the defaults
// (with environment overrides applied).
func LoadOrDefault(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	cfg := &Config{}
	ApplyDefaults(cfg)
	ApplyEnv(cfg)
	return cfg, nil
}

// ApplyEnv applies environment overrides. DREAMDB_EMBEDDER_URL wins over EMBEDDER_URL.
func ApplyEnv(cfg *Config) {
	for _, key := range embedderURLEnv {
		if v := strings.TrimSpace(os.Getenv(key)); v != "" {
			cfg.Embedding.URL = v
			return
		}
	}
}

// Save writes the config to path. Used for persisting ingest directory add/remove.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// expandPath converts a path to absolute. Paths starting with "./" are relative to configDir;
// other relative paths are relative to the home directory. Empty paths stay empty.
func expandPath(path string, configDir string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	if strings.HasPrefix(path, "./") || path == "." {
		return filepath.Join(configDir, path)
	}
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, path)
	}
	return path
}
