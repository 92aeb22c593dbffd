package cache

import (
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Options configures a TTLCache.
type Options struct {
	MaxEntries int64         // capacity, every entry costs 1
	TTL        time.Duration // 0 keeps entries until they are evicted
}

// DefaultOptions keeps up to 1024 entries for 10 minutes.
func DefaultOptions() Options {
	return Options{MaxEntries: 1024, TTL: 10 * time.Minute}
}

// TTLCache is a bounded cache keyed by query fingerprint.
// It is safe for concurrent use.
type TTLCache[V any] struct {
	c   *ristretto.Cache[string, V]
	ttl time.Duration
}

// New creates a TTLCache.
func New[V any](opts Options) (*TTLCache[V], error) {
	if opts.MaxEntries <= 0 {
		opts.MaxEntries = DefaultOptions().MaxEntries
	}
	if opts.TTL < 0 {
		opts.TTL = 0
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, V]{
		NumCounters:        opts.MaxEntries * 10,
		MaxCost:            opts.MaxEntries,
		BufferItems:        64,
		IgnoreInternalCost: true, // cost counts entries, not bytes
	})
	if err != nil {
		return nil, fmt.Errorf("create cache: %w", err)
	}
	return &TTLCache[V]{c: c, ttl: opts.TTL}, nil
}

// Get returns the cached value of the key.
func (c *TTLCache[V]) Get(key string) (V, bool) {
	return c.c.Get(key)
}

// Set stores the value and waits until it is visible to Get.
// It reports false when the admission policy rejected the value.
func (c *TTLCache[V]) Set(key string, v V) bool {
	ok := c.c.SetWithTTL(key, v, 1, c.ttl)
	c.c.Wait()
	return ok
}

// Delete removes the key.
func (c *TTLCache[V]) Delete(key string) {
	c.c.Del(key)
}

// Clear removes every entry.
func (c *TTLCache[V]) Clear() {
	c.c.Clear()
}

// Close stops the background goroutines of the cache.
func (c *TTLCache[V]) Close() {
	c.c.Close()
}
