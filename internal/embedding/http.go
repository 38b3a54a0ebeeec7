package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"strings"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultURL is where the embedder service listens by default.
	DefaultURL = "http://localhost:6789"
	// DefaultTimeout is generous because the service may load its model on the first call.
	DefaultTimeout = 60 * time.Second

	maxErrorBody = 4 << 10
)

// HTTPEmbedder calls the embedder service: POST {url}/embed with {"text": [...]}
// answered by {"vectors": [[...], ...]}, and GET {url}/health.
type HTTPEmbedder struct {
	baseURL    string
	client     *http.Client
	logger     *zap.Logger
	dimensions atomic.Int64
	retries    int
	backoff    time.Duration
}

// HTTPOption configures an HTTPEmbedder.
type HTTPOption func(*HTTPEmbedder)

// WithHTTPClient replaces the default client (whose timeout is DefaultTimeout).
func WithHTTPClient(c *http.Client) HTTPOption {
	return func(e *HTTPEmbedder) { e.client = c }
}

// WithTimeout sets the per-request timeout of the default client.
func WithTimeout(d time.Duration) HTTPOption {
	return func(e *HTTPEmbedder) {
		if d > 0 {
			e.client.Timeout = d
		}
	}
}

// WithDimensions fixes the expected vector length; responses of another length are rejected.
// Without it the length is learned from the first response.
func WithDimensions(n int) HTTPOption {
	return func(e *HTTPEmbedder) { e.dimensions.Store(int64(n)) }
}

// WithRetries retries retryable failures up to n more times with linear backoff.
func WithRetries(n int, backoff time.Duration) HTTPOption {
	return func(e *HTTPEmbedder) {
		e.retries = n
		e.backoff = backoff
	}
}

// WithHTTPLogger sets the logger.
func WithHTTPLogger(l *zap.Logger) HTTPOption {
	return func(e *HTTPEmbedder) { e.logger = l }
}

// NewHTTPEmbedder creates a client for the embedder service at baseURL (DefaultURL when empty).
func NewHTTPEmbedder(baseURL string, opts ...HTTPOption) *HTTPEmbedder {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	e := &HTTPEmbedder{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: DefaultTimeout},
		logger:  zap.NewNop(),
		backoff: 500 * time.Millisecond,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type embedRequest struct {
	Text []string `json:"text"`
}

// the service has answered with either key over its history
type embedResponse struct {
	Vectors    [][]float64 `json:"vectors"`
	Embeddings [][]float64 `json:"embeddings"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Embed returns the embedding of a single text.
func (e *HTTPEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := e.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in one request. The result has one vector per text, in order.
func (e *HTTPEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	body, err := json.Marshal(embedRequest{Text: texts})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal embed request: %w", err)
	}

	var lastErr error
	for attempt := 0; attempt <= e.retries; attempt++ {
		if attempt > 0 {
			wait := time.Duration(attempt) * e.backoff
			e.logger.Debug("retrying embed request",
				zap.Int("attempt", attempt), zap.Duration("wait", wait), zap.Error(lastErr))
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(wait):
			}
		}
		vecs, err := e.embedOnce(ctx, body, len(texts))
		if err == nil {
			return vecs, nil
		}
		lastErr = err
		if !IsRetryable(err) {
			break
		}
	}
	return nil, lastErr
}

func (e *HTTPEmbedder) embedOnce(ctx context.Context, body []byte, want int) ([][]float32, error) {
	const op = "embed"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.baseURL+"/embed", bytes.NewReader(body))
	if err != nil {
		return nil, &UpstreamError{Op: op, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode/100 != 2 {
		return nil, statusError(op, resp)
	}

	var out embedResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, &UpstreamError{Op: op, StatusCode: resp.StatusCode, Message: "invalid response body", Err: err}
	}
	raw := out.Vectors
	if len(raw) == 0 {
		raw = out.Embeddings
	}
	if len(raw) != want {
		return nil, &UpstreamError{Op: op, StatusCode: resp.StatusCode,
			Message: fmt.Sprintf("expected %d vectors, got %d", want, len(raw))}
	}

	vecs := make([][]float32, len(raw))
	for i, r := range raw {
		v, err := e.toVector(r)
		if err != nil {
			return nil, &UpstreamError{Op: op, StatusCode: resp.StatusCode, Message: fmt.Sprintf("vector %d: %v", i, err)}
		}
		vecs[i] = v
	}
	return vecs, nil
}

func (e *HTTPEmbedder) toVector(raw []float64) ([]float32, error) {
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty vector")
	}
	dim := int(e.dimensions.Load())
	if dim == 0 {
		e.dimensions.CompareAndSwap(0, int64(len(raw)))
		dim = int(e.dimensions.Load())
	}
	if len(raw) != dim {
		return nil, fmt.Errorf("expected %d dimensions, got %d", dim, len(raw))
	}
	v := make([]float32, len(raw))
	for i, x := range raw {
		f := float32(x)
		// values beyond float32 range become ±Inf after conversion
		if math.IsNaN(x) || math.IsInf(float64(f), 0) {
			return nil, fmt.Errorf("non-finite component at %d", i)
		}
		v[i] = f
	}
	return v, nil
}

// Health calls GET {url}/health and fails unless the service answers 2xx.
func (e *HTTPEmbedder) Health(ctx context.Context) error {
	const op = "health"
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, e.baseURL+"/health", nil)
	if err != nil {
		return &UpstreamError{Op: op, Err: err}
	}
	resp, err := e.client.Do(req)
	if err != nil {
		return classifyTransportError(ctx, op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		return statusError(op, resp)
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Dimensions returns the configured or learned vector length.
func (e *HTTPEmbedder) Dimensions() int {
	return int(e.dimensions.Load())
}

// URL returns the service base URL.
func (e *HTTPEmbedder) URL() string {
	return e.baseURL
}

// Close releases idle connections.
func (e *HTTPEmbedder) Close() error {
	e.client.CloseIdleConnections()
	return nil
}

func statusError(op string, resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	msg := strings.TrimSpace(string(data))
	var er errorResponse
	if json.Unmarshal(data, &er) == nil && er.Error != "" {
		msg = er.Error
	}
	return &UpstreamError{
		Op:         op,
		StatusCode: resp.StatusCode,
		Retryable:  RetryableStatus(resp.StatusCode),
		Message:    msg,
	}
}
