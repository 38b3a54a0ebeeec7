// Package vector provides an in-memory vector store with brute-force similarity search
// and a JSON snapshot format for persistence.
package vector

import (
	"context"
	"math"
	"sort"
	"sync"
	"time"
)

const (
	defaultTopK          = 5
	defaultFlushInterval = 2 * time.Second
	// scan checks ctx once per this many vectors
	cancelCheckEvery = 1024
)

// Config is the explicit configuration of a Store.
type Config struct {
	Dimension int
	Metric    Metric
	// PersistPath is where Persist/Open read and write snapshots. Empty disables persistence.
	PersistPath string
	// AutoPersist enables the debounced background Flusher.
	AutoPersist   bool
	FlushInterval time.Duration
	Compression   Compression
}

// Record is a single id/vector pair.
type Record struct {
	ID     string
	Vector []float32
}

// Candidate is a similarity hit. Vector is only set when WithVectors is used.
type Candidate struct {
	ID     string
	Score  float64
	Vector []float32
}

// Store is an in-memory vector collection keyed by id. All vectors share the configured dimension.
// Mutations are serialized by mu; readers run concurrently with each other.
type Store struct {
	cfg        Config
	similarity SimilarityFunc

	mu      sync.RWMutex
	vectors map[string][]float32
	version uint64 // incremented on every mutation
	dirty   bool

	hookMu sync.RWMutex
	onMut  func()
}

// NewStore creates an empty store for cfg.
func NewStore(cfg Config) (*Store, error) {
	if cfg.Dimension <= 0 {
		return nil, &ValidationError{Kind: ErrInvalidDimension, Index: -1, Detail: "dimension must be positive"}
	}
	metric, err := ParseMetric(string(cfg.Metric))
	if err != nil {
		return nil, err
	}
	cfg.Metric = metric
	if cfg.FlushInterval <= 0 {
		cfg.FlushInterval = defaultFlushInterval
	}
	if cfg.Compression == "" {
		cfg.Compression = CompressionNone
	}
	return &Store{
		cfg:        cfg,
		similarity: metric.Func(),
		vectors:    make(map[string][]float32),
	}, nil
}

// Config returns the store configuration.
func (s *Store) Config() Config { return s.cfg }

// Dimension returns the configured vector length.
func (s *Store) Dimension() int { return s.cfg.Dimension }

// Metric returns the configured similarity metric.
func (s *Store) Metric() Metric { return s.cfg.Metric }

// OnMutation registers fn to be called after every successful mutation, outside the store lock.
func (s *Store) OnMutation(fn func()) {
	s.hookMu.Lock()
	s.onMut = fn
	s.hookMu.Unlock()
}

func (s *Store) notify() {
	s.hookMu.RLock()
	fn := s.onMut
	s.hookMu.RUnlock()
	if fn != nil {
		fn()
	}
}

// validate checks a vector against the store dimension and rejects NaN/Inf components.
func (s *Store) validate(id string, vec []float32, index int) error {
	if len(vec) != s.cfg.Dimension {
		return &ValidationError{Kind: ErrDimensionMismatch, ID: id, Index: index, Expected: s.cfg.Dimension, Actual: len(vec)}
	}
	for _, v := range vec {
		f := float64(v)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return &ValidationError{Kind: ErrNonFinite, ID: id, Index: index}
		}
	}
	return nil
}

func (s *Store) markDirtyLocked() {
	s.version++
	s.dirty = true
}

// Add validates vec and upserts it under id.
func (s *Store) Add(id string, vec []float32) error {
	if id == "" {
		return &ValidationError{Kind: ErrEmptyID, Index: -1}
	}
	if err := s.validate(id, vec, -1); err != nil {
		return err
	}
	stored := make([]float32, len(vec))
	copy(stored, vec)

	s.mu.Lock()
	s.vectors[id] = stored
	s.markDirtyLocked()
	s.mu.Unlock()

	s.notify()
	return nil
}

// AddBatch validates every record before inserting any of them. On error the store is unchanged
// and the returned *ValidationError carries the offending batch index and id.
func (s *Store) AddBatch(records []Record) error {
	if len(records) == 0 {
		return nil
	}
	copies := make([][]float32, len(records))
	for i, r := range records {
		if r.ID == "" {
			return &ValidationError{Kind: ErrEmptyID, Index: i}
		}
		if err := s.validate(r.ID, r.Vector, i); err != nil {
			return err
		}
		copies[i] = make([]float32, len(r.Vector))
		copy(copies[i], r.Vector)
	}

	s.mu.Lock()
	for i, r := range records {
		s.vectors[r.ID] = copies[i]
	}
	s.markDirtyLocked()
	s.mu.Unlock()

	s.notify()
	return nil
}

// Get returns a copy of the vector stored under id.
func (s *Store) Get(id string) ([]float32, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	vec, ok := s.vectors[id]
	if !ok {
		return nil, false
	}
	out := make([]float32, len(vec))
	copy(out, vec)
	return out, true
}

// Contains reports whether id is stored.
func (s *Store) Contains(id string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.vectors[id]
	return ok
}

// Remove deletes id and reports whether it was present.
func (s *Store) Remove(id string) bool {
	s.mu.Lock()
	_, ok := s.vectors[id]
	if ok {
		delete(s.vectors, id)
		s.markDirtyLocked()
	}
	s.mu.Unlock()
	if ok {
		s.notify()
	}
	return ok
}

// Clear removes every vector.
func (s *Store) Clear() {
	s.mu.Lock()
	s.vectors = make(map[string][]float32)
	s.markDirtyLocked()
	s.mu.Unlock()
	s.notify()
}

// Size returns the number of stored vectors.
func (s *Store) Size() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.vectors)
}

// Dirty reports whether the store has mutations not yet persisted.
func (s *Store) Dirty() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.dirty
}

// IDs returns all stored ids in ascending order.
func (s *Store) IDs() []string {
	s.mu.RLock()
	ids := make([]string, 0, len(s.vectors))
	for id := range s.vectors {
		ids = append(ids, id)
	}
	s.mu.RUnlock()
	sort.Strings(ids)
	return ids
}

type searchOptions struct {
	topK           int
	minScore       float64
	includeVectors bool
	filterIDs      []string
	filtered       bool
	accept         func(id string) bool
}

// SearchOption configures Search.
type SearchOption func(*searchOptions)

// WithTopK caps the number of returned candidates. Non-positive values keep the default of 5.
func WithTopK(k int) SearchOption {
	return func(o *searchOptions) {
		if k > 0 {
			o.topK = k
		}
	}
}

// WithMinScore drops candidates scoring below min.
func WithMinScore(min float64) SearchOption {
	return func(o *searchOptions) { o.minScore = min }
}

// WithVectors attaches a copy of each candidate's vector.
func WithVectors() SearchOption {
	return func(o *searchOptions) { o.includeVectors = true }
}

// WithFilterIDs restricts the scan to the given ids.
func WithFilterIDs(ids ...string) SearchOption {
	return func(o *searchOptions) {
		o.filterIDs = ids
		o.filtered = true
	}
}

// WithIDFilter skips every vector whose id is rejected by accept.
func WithIDFilter(accept func(id string) bool) SearchOption {
	return func(o *searchOptions) { o.accept = accept }
}

// Search scores query against every stored vector (or the filtered subset) and returns
// the best candidates by descending score. Equal scores are ordered by id.
func (s *Store) Search(ctx context.Context, query []float32, opts ...SearchOption) ([]Candidate, error) {
	if err := s.validate("", query, -1); err != nil {
		return nil, err
	}
	o := searchOptions{topK: defaultTopK, minScore: math.Inf(-1)}
	for _, opt := range opts {
		opt(&o)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.vectors) == 0 {
		return []Candidate{}, nil
	}

	var results []Candidate
	score := func(id string, vec []float32) {
		if o.accept != nil && !o.accept(id) {
			return
		}
		sc := s.similarity(query, vec)
		if sc < o.minScore || math.IsNaN(sc) {
			return
		}
		c := Candidate{ID: id, Score: sc}
		if o.includeVectors {
			c.Vector = make([]float32, len(vec))
			copy(c.Vector, vec)
		}
		results = append(results, c)
	}

	n := 0
	if o.filtered {
		results = make([]Candidate, 0, len(o.filterIDs))
		seen := make(map[string]struct{}, len(o.filterIDs))
		for _, id := range o.filterIDs {
			if n++; n%cancelCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			if _, dup := seen[id]; dup {
				continue
			}
			seen[id] = struct{}{}
			if vec, ok := s.vectors[id]; ok {
				score(id, vec)
			}
		}
	} else {
		results = make([]Candidate, 0, len(s.vectors))
		for id, vec := range s.vectors {
			if n++; n%cancelCheckEvery == 0 {
				if err := ctx.Err(); err != nil {
					return nil, err
				}
			}
			score(id, vec)
		}
	}

	sort.Slice(results, func(i, j int) bool {
		if results[i].Score != results[j].Score {
			return results[i].Score > results[j].Score
		}
		return results[i].ID < results[j].ID
	})
	if len(results) > o.topK {
		results = results[:o.topK]
	}
	return results, nil
}

// snapshot is a point-in-time copy of the store state used for persistence.
type snapshot struct {
	version   uint64
	dimension int
	metric    Metric
	vectors   map[string][]float32
}

// snapshot copies the map under the read lock. Stored slices are never mutated in place,
// so sharing them with the snapshot is safe.
func (s *Store) snapshot() (snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.dirty {
		return snapshot{}, false
	}
	vecs := make(map[string][]float32, len(s.vectors))
	for id, v := range s.vectors {
		vecs[id] = v
	}
	return snapshot{version: s.version, dimension: s.cfg.Dimension, metric: s.cfg.Metric, vectors: vecs}, true
}

// markPersisted clears the dirty flag if nothing changed since the snapshot at version.
func (s *Store) markPersisted(version uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version == version {
		s.dirty = false
	}
}
