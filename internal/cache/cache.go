// Package cache provides the in-process L1 cache used for resolved chat
// contexts. It wraps dgraph-io/ristretto; entries are byte slices costed by
// their length and always carry a TTL.
package cache

import (
	"context"
	"time"

	"github.com/dgraph-io/ristretto/v2"
)

// Cache wraps a ristretto cache as an in-process L1 cache.
type Cache struct {
	c *ristretto.Cache[string, []byte]
}

// New creates a ristretto-backed cache. maxCostBytes is the maximum total
// size of cached values in bytes.
func New(maxCostBytes int64) (*Cache, error) {
	if maxCostBytes < 1<<10 {
		maxCostBytes = 1 << 10
	}
	c, err := ristretto.NewCache(&ristretto.Config[string, []byte]{
		NumCounters: maxCostBytes / 100 * 10, // ~10x expected items
		MaxCost:     maxCostBytes,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache{c: c}, nil
}

// Get retrieves a value from the cache.
func (c *Cache) Get(_ context.Context, key string) ([]byte, bool) {
	return c.c.Get(key)
}

// Set stores a value with the given TTL. Admission is asynchronous and may be
// refused under pressure; a refused write reports false.
func (c *Cache) Set(_ context.Context, key string, value []byte, ttl time.Duration) bool {
	if ttl <= 0 {
		return false
	}
	return c.c.SetWithTTL(key, value, int64(len(value)), ttl)
}

// Delete removes a value from the cache.
func (c *Cache) Delete(_ context.Context, key string) {
	c.c.Del(key)
}

// Wait blocks until buffered writes are applied.
func (c *Cache) Wait() { c.c.Wait() }

// Close shuts down the cache and releases resources.
func (c *Cache) Close() { c.c.Close() }
