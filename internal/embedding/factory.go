package embedding

import (
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Providers accepted by New.
const (
	ProviderHTTP = "http"
	ProviderONNX = "onnx"
	ProviderMock = "mock"
)

// Config selects and configures an embedder.
type Config struct {
	Provider   string
	URL        string
	Timeout    time.Duration
	Retries    int
	Dimensions int
	// CacheSize > 0 wraps the embedder in a CachedEmbedder.
	CacheSize int
	ModelPath string
	MaxTokens int
}

// New builds the embedder named by cfg.Provider (http when empty).
func New(cfg Config, logger *zap.Logger) (Embedder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	var (
		e   Embedder
		err error
	)
	switch strings.ToLower(cfg.Provider) {
	case "", ProviderHTTP:
		e = NewHTTPEmbedder(cfg.URL,
			WithTimeout(cfg.Timeout),
			WithDimensions(cfg.Dimensions),
			WithRetries(cfg.Retries, 500*time.Millisecond),
			WithHTTPLogger(logger.Named("embedder")))
	case ProviderONNX:
		e, err = NewONNXEmbedder(cfg.ModelPath, cfg.Dimensions, cfg.MaxTokens)
		if err != nil {
			return nil, err
		}
	case ProviderMock:
		e = NewMockEmbedder(cfg.Dimensions)
	default:
		return nil, fmt.Errorf("unknown embedding provider %q (supported: http, onnx, mock)", cfg.Provider)
	}
	logger.Info("embedder ready",
		zap.String("provider", cfg.Provider),
		zap.Int("dimensions", e.Dimensions()),
		zap.Int("cache_size", cfg.CacheSize))
	if cfg.CacheSize > 0 {
		return NewCachedEmbedder(e, cfg.CacheSize), nil
	}
	return e, nil
}
