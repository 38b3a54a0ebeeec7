package embedding

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
)

// UpstreamError reports a failed embedding call. Retryable is set for transient failures:
// timeouts, an unreachable service, 429 and 502/503/504 responses.
type UpstreamError struct {
	Op         string
	StatusCode int // 0 when no response was received
	Retryable  bool
	Message    string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := "embedding " + e.Op
	if e.StatusCode != 0 {
		msg = fmt.Sprintf("%s: http %d", msg, e.StatusCode)
	}
	if e.Message != "" {
		msg += ": " + e.Message
	}
	if e.Err != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Err)
	}
	if e.Retryable {
		msg += " (retryable)"
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

// IsRetryable reports whether err is an UpstreamError worth retrying.
func IsRetryable(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.Retryable
}

// RetryableStatus reports whether an HTTP status signals a transient embedder failure.
func RetryableStatus(code int) bool {
	switch code {
	case http.StatusTooManyRequests, http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
		return true
	default:
		return false
	}
}

// classifyTransportError wraps a failed round trip. Cancellation by the caller is
// returned unchanged; everything else means the service could not be reached in time.
func classifyTransportError(ctx context.Context, op string, err error) error {
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		return ctx.Err()
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &UpstreamError{Op: op, Retryable: true, Message: "timeout", Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &UpstreamError{Op: op, Retryable: true, Message: "timeout", Err: err}
	}
	return &UpstreamError{Op: op, Retryable: true, Message: "service unreachable", Err: err}
}

// AsUpstream wraps any non-typed embedder error as a permanent UpstreamError so callers
// see a single failure type. Context errors and existing UpstreamErrors pass through.
func AsUpstream(op string, err error) error {
	if err == nil {
		return nil
	}
	var ue *UpstreamError
	if errors.As(err, &ue) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return &UpstreamError{Op: op, Err: err}
}
