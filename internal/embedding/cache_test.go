package embedding

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddingCache_GetSet(t *testing.T) {
	c := NewEmbeddingCache(2)
	v, ok := c.Get("a")
	assert.False(t, ok)
	assert.Nil(t, v)

	c.Set("a", []float32{1, 2, 3})
	v, ok = c.Get("a")
	require.True(t, ok)
	assert.Equal(t, []float32{1, 2, 3}, v)

	c.Set("b", []float32{4, 5})
	_, _ = c.Get("a") // a is now most recently used
	c.Set("c", []float32{6})

	_, ok = c.Get("b")
	assert.False(t, ok, "b should be evicted")
	_, ok = c.Get("a")
	assert.True(t, ok)
	_, ok = c.Get("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestEmbeddingCache_CopiesValues(t *testing.T) {
	c := NewEmbeddingCache(4)
	in := []float32{1, 2}
	c.Set("k", in)
	in[0] = 9
	got, _ := c.Get("k")
	got[1] = 9
	again, _ := c.Get("k")
	assert.Equal(t, []float32{1, 2}, again)
}

type countingEmbedder struct {
	*MockEmbedder
	calls  atomic.Int32
	texts  atomic.Int32
	delay  time.Duration
	failOn string
}

func (c *countingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	c.calls.Add(1)
	c.texts.Add(1)
	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	if text == c.failOn {
		return nil, errors.New("boom")
	}
	return c.MockEmbedder.Embed(ctx, text)
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.calls.Add(1)
	c.texts.Add(int32(len(texts)))
	return c.MockEmbedder.EmbedBatch(ctx, texts)
}

func TestCachedEmbedder_Embed(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(16)}
	c := NewCachedEmbedder(inner, 8)
	ctx := context.Background()

	first, err := c.Embed(ctx, "red shoes")
	require.NoError(t, err)
	second, err := c.Embed(ctx, "red shoes")
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, int32(1), inner.calls.Load())
	assert.Equal(t, 16, c.Dimensions())
}

func TestCachedEmbedder_ErrorsAreNotCached(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(4), failOn: "bad"}
	c := NewCachedEmbedder(inner, 8)
	_, err := c.Embed(context.Background(), "bad")
	require.Error(t, err)
	_, err = c.Embed(context.Background(), "bad")
	require.Error(t, err)
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, 0, c.Len())
}

func TestCachedEmbedder_CollapsesConcurrentCalls(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(4), delay: 50 * time.Millisecond}
	c := NewCachedEmbedder(inner, 8)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Embed(context.Background(), "same text")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()
	assert.LessOrEqual(t, inner.calls.Load(), int32(2))
}

func TestCachedEmbedder_EmbedBatchOnlyMisses(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(8)}
	c := NewCachedEmbedder(inner, 8)
	ctx := context.Background()

	_, err := c.Embed(ctx, "a")
	require.NoError(t, err)

	out, err := c.EmbedBatch(ctx, []string{"a", "b", "b", "c"})
	require.NoError(t, err)
	require.Len(t, out, 4)
	assert.Equal(t, out[1], out[2])
	// one Embed call for "a", then one batch carrying b and c
	assert.Equal(t, int32(2), inner.calls.Load())
	assert.Equal(t, int32(3), inner.texts.Load())

	want, _ := inner.MockEmbedder.Embed(ctx, "c")
	assert.Equal(t, want, out[3])
}

// blockingEmbedder holds every Embed until release is closed and reports the ctx error
// it saw.
type blockingEmbedder struct {
	*MockEmbedder
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (b *blockingEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	b.once.Do(func() { close(b.started) })
	select {
	case <-b.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return b.MockEmbedder.Embed(ctx, text)
}

func TestCachedEmbedder_CancelledCallerDoesNotFailOthers(t *testing.T) {
	inner := &blockingEmbedder{
		MockEmbedder: NewMockEmbedder(4),
		started:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	c := NewCachedEmbedder(inner, 8)

	firstCtx, cancelFirst := context.WithCancel(context.Background())
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.Embed(firstCtx, "shared")
		firstErr <- err
	}()
	<-inner.started

	type result struct {
		vec []float32
		err error
	}
	second := make(chan result, 1)
	go func() {
		vec, err := c.Embed(context.Background(), "shared")
		second <- result{vec, err}
	}()

	time.Sleep(20 * time.Millisecond)
	cancelFirst()
	assert.ErrorIs(t, <-firstErr, context.Canceled)

	close(inner.release)
	got := <-second
	require.NoError(t, got.err)
	want, _ := inner.MockEmbedder.Embed(context.Background(), "shared")
	assert.Equal(t, want, got.vec)
	assert.Equal(t, 1, c.Len())
}

func TestCachedEmbedder_CancelledBeforeCall(t *testing.T) {
	inner := &countingEmbedder{MockEmbedder: NewMockEmbedder(4)}
	c := NewCachedEmbedder(inner, 8)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := c.Embed(ctx, "x")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, int32(0), inner.calls.Load())
}
