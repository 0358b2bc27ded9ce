package exchange

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

func TestCacheHitWithinTTL(t *testing.T) {
	t.Parallel()

	c := NewCache(0, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	var fetches atomic.Int32
	fetch := func(context.Context) (any, error) {
		fetches.Add(1)
		return "payload", nil
	}

	v, err := c.GetOrFetch(context.Background(), "k", time.Second, fetch)
	require.NoError(t, err)
	assert.Equal(t, "payload", v)

	v, err = c.GetOrFetch(context.Background(), "k", time.Second, fetch)
	require.NoError(t, err)
	assert.Equal(t, "payload", v)
	assert.Equal(t, int32(1), fetches.Load())

	// Expired: the next lookup fetches again.
	now = now.Add(2 * time.Second)
	_, err = c.GetOrFetch(context.Background(), "k", time.Second, fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestCacheCoalescesConcurrentMisses(t *testing.T) {
	t.Parallel()

	c := NewCache(0, nil)

	var fetches atomic.Int32
	gate := make(chan struct{})
	fetch := func(context.Context) (any, error) {
		fetches.Add(1)
		<-gate
		return "payload", nil
	}

	const callers = 8
	var wg sync.WaitGroup
	results := make([]any, callers)
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := c.GetOrFetch(context.Background(), "k", time.Second, fetch)
			require.NoError(t, err)
			results[i] = v
		}()
	}

	// Give every caller time to join the in-flight fetch, then release it.
	time.Sleep(50 * time.Millisecond)
	close(gate)
	wg.Wait()

	assert.Equal(t, int32(1), fetches.Load(), "concurrent misses must share one fetch")
	for _, v := range results {
		assert.Equal(t, "payload", v)
	}
}

func TestCacheErrorNotCached(t *testing.T) {
	t.Parallel()

	c := NewCache(0, nil)

	var fetches atomic.Int32
	boom := errors.New("upstream down")
	fetch := func(context.Context) (any, error) {
		fetches.Add(1)
		return nil, boom
	}

	_, err := c.GetOrFetch(context.Background(), "k", time.Second, fetch)
	require.ErrorIs(t, err, boom)

	_, err = c.GetOrFetch(context.Background(), "k", time.Second, fetch)
	require.ErrorIs(t, err, boom)
	assert.Equal(t, int32(2), fetches.Load(), "errors must not be cached")
}

func TestCacheNegativeTTL(t *testing.T) {
	t.Parallel()

	c := NewCache(500*time.Millisecond, nil)
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	c.now = func() time.Time { return now }

	var fetches atomic.Int32
	fetch := func(context.Context) (any, error) {
		fetches.Add(1)
		return nil, nil
	}

	v, err := c.GetOrFetch(context.Background(), "k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Nil(t, v)

	// The nil result is held for the negative TTL, not the full TTL.
	v, err = c.GetOrFetch(context.Background(), "k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Nil(t, v)
	assert.Equal(t, int32(1), fetches.Load())

	now = now.Add(time.Second)
	_, err = c.GetOrFetch(context.Background(), "k", time.Minute, fetch)
	require.NoError(t, err)
	assert.Equal(t, int32(2), fetches.Load())
}

func TestCacheInvalidateAndPurge(t *testing.T) {
	t.Parallel()

	c := NewCache(0, nil)

	var fetches atomic.Int32
	fetch := func(context.Context) (any, error) {
		fetches.Add(1)
		return "v", nil
	}

	for _, key := range []string{"a", "b"} {
		_, err := c.GetOrFetch(context.Background(), key, time.Minute, fetch)
		require.NoError(t, err)
	}

	c.Invalidate("a")
	_, _ = c.GetOrFetch(context.Background(), "a", time.Minute, fetch)
	_, _ = c.GetOrFetch(context.Background(), "b", time.Minute, fetch)
	assert.Equal(t, int32(3), fetches.Load())

	c.Purge()
	_, _ = c.GetOrFetch(context.Background(), "b", time.Minute, fetch)
	assert.Equal(t, int32(4), fetches.Load())
}
