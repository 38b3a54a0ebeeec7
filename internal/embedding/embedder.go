// Package embedding turns text into fixed-dimension vectors: a client for the remote
// embedder service, a local ONNX model, a deterministic mock, and an LRU cache in front of any of them.
package embedding

import "context"

// Embedder produces vector embeddings for text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	// Dimensions returns the vector length, or 0 when it is not known yet.
	Dimensions() int
	Close() error
}

// HealthChecker is implemented by embedders backed by a service that can report readiness.
type HealthChecker interface {
	Health(ctx context.Context) error
}
