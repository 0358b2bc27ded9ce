// cache.go — short-TTL result cache with request coalescing for public
// endpoints. Concurrent misses on the same key collapse into one upstream
// call via singleflight; all callers share the result. Optional negative
// caching holds nil results for a shorter TTL.
package exchange

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"
)

type cacheEntry struct {
	value    any
	expires  time.Time
	negative bool
}

// Cache is a TTL cache keyed by (endpoint, parameters) strings.
type Cache struct {
	mu      sync.RWMutex
	entries map[string]cacheEntry
	sf      singleflight.Group
	negTTL  time.Duration // 0 disables negative caching
	metrics Metrics
	now     func() time.Time // injectable for tests
}

// NewCache creates a cache. negTTL of zero disables negative caching.
func NewCache(negTTL time.Duration, metrics Metrics) *Cache {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	return &Cache{
		entries: make(map[string]cacheEntry),
		negTTL:  negTTL,
		metrics: metrics,
		now:     time.Now,
	}
}

// GetOrFetch returns the cached value for key, or runs fetch once — shared
// across concurrent callers — and caches the result for ttl. A nil result
// is cached for the negative TTL when enabled.
func (c *Cache) GetOrFetch(ctx context.Context, key string, ttl time.Duration, fetch func(ctx context.Context) (any, error)) (any, error) {
	if v, ok := c.lookup(key); ok {
		c.metrics.CacheResult(true)
		return v, nil
	}
	c.metrics.CacheResult(false)

	v, err, _ := c.sf.Do(key, func() (any, error) {
		// A coalesced caller may arrive just after the winner stored.
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := fetch(ctx)
		if err != nil {
			return nil, err
		}
		c.store(key, v, ttl)
		return v, nil
	})
	return v, err
}

// Invalidate removes one key.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Purge removes every entry.
func (c *Cache) Purge() {
	c.mu.Lock()
	c.entries = make(map[string]cacheEntry)
	c.mu.Unlock()
}

func (c *Cache) lookup(key string) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || c.now().After(e.expires) {
		return nil, false
	}
	if e.negative {
		return nil, true
	}
	return e.value, true
}

func (c *Cache) store(key string, v any, ttl time.Duration) {
	negative := v == nil
	if negative {
		if c.negTTL <= 0 {
			return
		}
		ttl = c.negTTL
	}
	c.mu.Lock()
	c.entries[key] = cacheEntry{value: v, expires: c.now().Add(ttl), negative: negative}
	c.mu.Unlock()
}
