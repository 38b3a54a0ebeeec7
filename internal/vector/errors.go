package vector

import (
	"errors"
	"fmt"
)

// Validation error kinds. Use errors.Is against a *ValidationError to test the kind.
var (
	// ErrDimensionMismatch is returned when a vector's length differs from the store dimension.
	ErrDimensionMismatch = errors.New("dimension mismatch")
	// ErrNonFinite is returned when a vector contains NaN or an infinity.
	ErrNonFinite = errors.New("non-finite vector component")
	// ErrUnknownMetric is returned when a similarity metric name is not supported.
	ErrUnknownMetric = errors.New("unknown similarity metric")
	// ErrEmptyID is returned when a vector is added without an identifier.
	ErrEmptyID = errors.New("empty vector id")
	// ErrInvalidDimension is returned when a store is configured with a non-positive dimension.
	ErrInvalidDimension = errors.New("invalid dimension")
)

// ValidationError reports a rejected vector, query or store configuration.
// Kind is one of the Err* sentinels above.
type ValidationError struct {
	Kind     error
	ID       string
	Index    int // position in a batch; -1 when not part of a batch
	Expected int
	Actual   int
	Detail   string
}

func (e *ValidationError) Error() string {
	msg := e.Kind.Error()
	switch {
	case errors.Is(e.Kind, ErrDimensionMismatch):
		msg = fmt.Sprintf("%s: expected %d, got %d", msg, e.Expected, e.Actual)
	case e.Detail != "":
		msg = fmt.Sprintf("%s: %s", msg, e.Detail)
	}
	if e.ID != "" {
		msg = fmt.Sprintf("%s (id %q)", msg, e.ID)
	}
	if e.Index >= 0 {
		msg = fmt.Sprintf("batch entry %d: %s", e.Index, msg)
	}
	return "validation: " + msg
}

func (e *ValidationError) Unwrap() error { return e.Kind }

// CorruptFormatError indicates a persisted snapshot that cannot be decoded into a store.
type CorruptFormatError struct {
	Path   string
	Reason string
	Err    error
}

func (e *CorruptFormatError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("corrupt snapshot %s: %s: %v", e.Path, e.Reason, e.Err)
	}
	return fmt.Sprintf("corrupt snapshot %s: %s", e.Path, e.Reason)
}

func (e *CorruptFormatError) Unwrap() error { return e.Err }

// IOError wraps a filesystem failure during persistence.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }
