package vector

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, dim int, metric Metric) *Store {
	t.Helper()
	s, err := NewStore(Config{Dimension: dim, Metric: metric})
	require.NoError(t, err)
	return s
}

func TestStore_AddSearch(t *testing.T) {
	s := newTestStore(t, 3, MetricCosine)
	ctx := context.Background()

	require.NoError(t, s.AddBatch([]Record{
		{ID: "a", Vector: []float32{1, 0, 0}},
		{ID: "b", Vector: []float32{0.9, 0.1, 0}},
		{ID: "c", Vector: []float32{0, 1, 0}},
	}))
	assert.Equal(t, 3, s.Size())

	results, err := s.Search(ctx, []float32{1, 0, 0}, WithTopK(2))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].ID)
	assert.Equal(t, "b", results[1].ID)
}

func TestStore_SearchScenario(t *testing.T) {
	s := newTestStore(t, 2, MetricCosine)
	require.NoError(t, s.Add("A", []float32{1, 0}))
	require.NoError(t, s.Add("B", []float32{0, 1}))
	require.NoError(t, s.Add("C", []float32{0.9, 0.1}))

	results, err := s.Search(context.Background(), []float32{1, 0}, WithTopK(2))
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "A", results[0].ID)
	assert.InDelta(t, 1.0, results[0].Score, 1e-9)
	assert.Equal(t, "C", results[1].ID)
	assert.InDelta(t, 0.9939, results[1].Score, 1e-4)
}

func TestStore_SearchDefaultsAndBounds(t *testing.T) {
	s := newTestStore(t, 2, MetricDotProduct)
	for i := 0; i < 10; i++ {
		require.NoError(t, s.Add(fmt.Sprintf("v%02d", i), []float32{float32(i - 5), 1}))
	}
	ctx := context.Background()

	results, err := s.Search(ctx, []float32{1, 0})
	require.NoError(t, err)
	assert.Len(t, results, 5, "default topK is 5")

	// negative scores survive the default min score
	all, err := s.Search(ctx, []float32{1, 0}, WithTopK(100))
	require.NoError(t, err)
	assert.Len(t, all, 10)
	assert.Less(t, all[len(all)-1].Score, 0.0)

	filtered, err := s.Search(ctx, []float32{1, 0}, WithTopK(100), WithMinScore(2))
	require.NoError(t, err)
	for _, c := range filtered {
		assert.GreaterOrEqual(t, c.Score, 2.0)
	}
	assert.Len(t, filtered, 3)
}

func TestStore_SearchFilterIDsAndVectors(t *testing.T) {
	s := newTestStore(t, 2, MetricCosine)
	require.NoError(t, s.Add("x", []float32{1, 0}))
	require.NoError(t, s.Add("y", []float32{0, 1}))
	require.NoError(t, s.Add("z", []float32{1, 1}))

	results, err := s.Search(context.Background(), []float32{1, 0},
		WithFilterIDs("y", "missing", "y"), WithVectors())
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "y", results[0].ID)
	assert.Equal(t, []float32{0, 1}, results[0].Vector)

	results[0].Vector[0] = 42
	stored, _ := s.Get("y")
	assert.Equal(t, float32(0), stored[0])
}

func TestStore_SearchTieBreakByID(t *testing.T) {
	s := newTestStore(t, 2, MetricCosine)
	for _, id := range []string{"m", "b", "k", "a"} {
		require.NoError(t, s.Add(id, []float32{1, 0}))
	}
	results, err := s.Search(context.Background(), []float32{1, 0}, WithTopK(4))
	require.NoError(t, err)
	ids := make([]string, len(results))
	for i, r := range results {
		ids[i] = r.ID
	}
	assert.Equal(t, []string{"a", "b", "k", "m"}, ids)
}

func TestStore_SearchEmpty(t *testing.T) {
	s := newTestStore(t, 4, MetricEuclidean)
	results, err := s.Search(context.Background(), []float32{1, 2, 3, 4})
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestStore_SearchValidatesQuery(t *testing.T) {
	s := newTestStore(t, 2, MetricCosine)
	_, err := s.Search(context.Background(), []float32{1})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	_, err = s.Search(context.Background(), []float32{float32(math.NaN()), 0})
	assert.ErrorIs(t, err, ErrNonFinite)
}

func TestStore_AddValidation(t *testing.T) {
	s := newTestStore(t, 3, MetricCosine)
	require.NoError(t, s.Add("ok", []float32{1, 2, 3}))

	err := s.Add("short", []float32{1, 2})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.ErrorIs(t, err, ErrDimensionMismatch)
	assert.Equal(t, 3, verr.Expected)
	assert.Equal(t, 2, verr.Actual)
	assert.Equal(t, 1, s.Size(), "size unchanged after rejected add")

	assert.ErrorIs(t, s.Add("inf", []float32{1, float32(math.Inf(1)), 0}), ErrNonFinite)
	assert.ErrorIs(t, s.Add("", []float32{1, 2, 3}), ErrEmptyID)
	assert.Equal(t, 1, s.Size())
}

func TestStore_AddBatchIsAtomic(t *testing.T) {
	s := newTestStore(t, 2, MetricCosine)
	require.NoError(t, s.Add("keep", []float32{1, 1}))

	err := s.AddBatch([]Record{
		{ID: "a", Vector: []float32{1, 0}},
		{ID: "keep", Vector: []float32{0, 1}},
		{ID: "bad", Vector: []float32{1, 2, 3}},
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, 2, verr.Index)
	assert.Equal(t, "bad", verr.ID)

	assert.Equal(t, 1, s.Size())
	assert.False(t, s.Contains("a"))
	v, _ := s.Get("keep")
	assert.Equal(t, []float32{1, 1}, v)
}

func TestStore_GetReturnsCopy(t *testing.T) {
	s := newTestStore(t, 2, MetricCosine)
	in := []float32{0.25, 0.75}
	require.NoError(t, s.Add("id", in))
	in[0] = 9 // caller's slice is not aliased either

	got, ok := s.Get("id")
	require.True(t, ok)
	assert.Equal(t, []float32{0.25, 0.75}, got)
	got[1] = 9
	again, _ := s.Get("id")
	assert.Equal(t, []float32{0.25, 0.75}, again)
}

func TestStore_RemoveAndClear(t *testing.T) {
	s := newTestStore(t, 2, MetricCosine)
	require.NoError(t, s.Add("x", []float32{1, 0}))
	require.NoError(t, s.Add("y", []float32{0, 1}))

	assert.True(t, s.Remove("x"))
	_, ok := s.Get("x")
	assert.False(t, ok)
	assert.False(t, s.Remove("x"), "second remove reports false")
	assert.False(t, s.Remove("never"))
	assert.Equal(t, 1, s.Size())

	s.Clear()
	assert.Equal(t, 0, s.Size())
	assert.True(t, s.Dirty())
}

func TestStore_UpsertReplaces(t *testing.T) {
	s := newTestStore(t, 2, MetricCosine)
	require.NoError(t, s.Add("x", []float32{1, 0}))
	require.NoError(t, s.Add("x", []float32{0, 1}))
	assert.Equal(t, 1, s.Size())
	v, _ := s.Get("x")
	assert.Equal(t, []float32{0, 1}, v)
}

func TestNewStore_InvalidConfig(t *testing.T) {
	_, err := NewStore(Config{Dimension: 0})
	assert.ErrorIs(t, err, ErrInvalidDimension)
	_, err = NewStore(Config{Dimension: 3, Metric: "hamming"})
	assert.ErrorIs(t, err, ErrUnknownMetric)

	s, err := NewStore(Config{Dimension: 3})
	require.NoError(t, err)
	assert.Equal(t, MetricCosine, s.Metric())
}

func TestStore_OnMutation(t *testing.T) {
	s := newTestStore(t, 1, MetricCosine)
	calls := 0
	s.OnMutation(func() { calls++ })
	require.NoError(t, s.Add("a", []float32{1}))
	require.Error(t, s.Add("b", []float32{1, 2}))
	s.Remove("a")
	s.Remove("a")
	assert.Equal(t, 2, calls)
}

func TestStore_SearchCancelled(t *testing.T) {
	s := newTestStore(t, 1, MetricDotProduct)
	recs := make([]Record, 3*cancelCheckEvery)
	for i := range recs {
		recs[i] = Record{ID: fmt.Sprint(i), Vector: []float32{float32(i)}}
	}
	require.NoError(t, s.AddBatch(recs))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Search(ctx, []float32{1})
	assert.True(t, errors.Is(err, context.Canceled))

	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.ID
	}
	_, err = s.Search(ctx, []float32{1}, WithFilterIDs(ids...))
	assert.True(t, errors.Is(err, context.Canceled), "filtered scan honors cancellation")
}

func TestStore_SearchIDFilter(t *testing.T) {
	s := newTestStore(t, 2, MetricCosine)
	require.NoError(t, s.Add("keep_1", []float32{0, 1}))
	require.NoError(t, s.Add("drop_1", []float32{1, 0}))
	require.NoError(t, s.Add("drop_2", []float32{1, 0}))

	accept := func(id string) bool { return strings.HasPrefix(id, "keep_") }
	results, err := s.Search(context.Background(), []float32{1, 0}, WithTopK(1), WithIDFilter(accept))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "keep_1", results[0].ID)

	results, err = s.Search(context.Background(), []float32{1, 0},
		WithFilterIDs("keep_1", "drop_1"), WithIDFilter(accept))
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "keep_1", results[0].ID)
}

func TestStore_ConcurrentAccess(t *testing.T) {
	s := newTestStore(t, 4, MetricCosine)
	ctx := context.Background()
	var wg sync.WaitGroup
	for w := 0; w < 4; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				id := fmt.Sprintf("%d-%d", w, i)
				_ = s.Add(id, []float32{float32(w), float32(i), 1, 0})
				if i%3 == 0 {
					s.Remove(id)
				}
			}
		}(w)
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				res, err := s.Search(ctx, []float32{1, 1, 1, 1}, WithTopK(3))
				if err != nil || len(res) > 3 {
					t.Errorf("search: %v (%d results)", err, len(res))
					return
				}
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 4*(200-67), s.Size())
}
