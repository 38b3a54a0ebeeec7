package vector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Flusher persists a Store in the background once mutations have been quiet for the
// configured interval. Write failures are logged and kept for LastError; the store stays
// dirty so the next cycle retries.
type Flusher struct {
	store    *Store
	path     string
	interval time.Duration
	limiter  *rate.Limiter
	logger   *zap.Logger
	notify   chan struct{}

	mu      sync.Mutex
	lastErr error
}

// FlusherOption configures a Flusher.
type FlusherOption func(*Flusher)

// WithFlushLogger sets the logger used to report flush results.
func WithFlushLogger(l *zap.Logger) FlusherOption {
	return func(f *Flusher) { f.logger = l }
}

// WithFlushInterval overrides the quiet period before a flush.
func WithFlushInterval(d time.Duration) FlusherOption {
	return func(f *Flusher) {
		if d > 0 {
			f.interval = d
		}
	}
}

// NewFlusher creates a flusher for store writing to path (Config.PersistPath when empty).
// It registers itself as the store's mutation hook.
func NewFlusher(store *Store, path string, opts ...FlusherOption) *Flusher {
	if path == "" {
		path = store.cfg.PersistPath
	}
	f := &Flusher{
		store:    store,
		path:     path,
		interval: store.cfg.FlushInterval,
		logger:   zap.NewNop(),
		notify:   make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(f)
	}
	// at most one write per interval, however bursty the mutations are
	f.limiter = rate.NewLimiter(rate.Every(f.interval), 1)
	store.OnMutation(f.Notify)
	return f
}

// Notify schedules a flush. It never blocks.
func (f *Flusher) Notify() {
	select {
	case f.notify <- struct{}{}:
	default:
	}
}

// Run flushes until ctx is cancelled, then performs a final flush. A failed flush is
// retried every interval until it succeeds.
func (f *Flusher) Run(ctx context.Context) {
	timer := time.NewTimer(f.interval)
	if !timer.Stop() {
		<-timer.C
	}
	pending := false
	for {
		select {
		case <-ctx.Done():
			timer.Stop()
			f.Flush()
			return
		case <-f.notify:
			if pending && !timer.Stop() {
				<-timer.C
			}
			timer.Reset(f.interval)
			pending = true
		case <-timer.C:
			pending = false
			if err := f.limiter.Wait(ctx); err != nil {
				continue
			}
			if err := f.Flush(); err != nil {
				// still dirty; retry after another interval even if nothing changes
				timer.Reset(f.interval)
				pending = true
			}
		}
	}
}

// Flush persists the store now and records the outcome.
func (f *Flusher) Flush() error {
	start := time.Now()
	err := f.store.Persist(f.path)
	f.mu.Lock()
	f.lastErr = err
	f.mu.Unlock()
	if err != nil {
		f.logger.Error("vector index flush failed", zap.String("path", f.path), zap.Error(err))
		return err
	}
	f.logger.Debug("vector index flushed",
		zap.String("path", f.path),
		zap.Int("vectors", f.store.Size()),
		zap.Duration("took", time.Since(start)))
	return nil
}

// LastError returns the error of the most recent flush attempt, if it failed.
func (f *Flusher) LastError() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastErr
}
