package client

import (
	"context"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// QueryCache memoises list/detail responses on the client side. Concurrent
// requests for the same key collapse into one fetch, and invalidating a
// resource fences out in-flight fetches that started before the invalidation
// so they can never backfill stale data.
type QueryCache struct {
	mu          sync.Mutex
	entries     map[string]interface{}
	generations map[string]uint64
	group       singleflight.Group
}

// NewQueryCache constructs an empty cache.
func NewQueryCache() *QueryCache {
	return &QueryCache{
		entries:     make(map[string]interface{}),
		generations: make(map[string]uint64),
	}
}

// Key builds a cache key from the resource and a canonical query string.
func Key(resource, queryString string) string {
	return resource + "?" + queryString
}

func resourceOf(key string) string {
	if idx := strings.IndexByte(key, '?'); idx >= 0 {
		return key[:idx]
	}
	return key
}

// Get returns the cached value for key, if any.
func (c *QueryCache) Get(key string) (interface{}, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	value, ok := c.entries[key]
	return value, ok
}

// Load returns the cached value or runs fetch once for all concurrent
// callers. The result is stored only when the resource generation has not
// moved while the fetch was running.
func (c *QueryCache) Load(ctx context.Context, key string, fetch func(ctx context.Context) (interface{}, error)) (interface{}, error) {
	if value, ok := c.Get(key); ok {
		return value, nil
	}

	resource := resourceOf(key)
	c.mu.Lock()
	startGen := c.generations[resource]
	c.mu.Unlock()

	value, err, _ := c.group.Do(key, func() (interface{}, error) {
		return fetch(ctx)
	})
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.generations[resource] == startGen {
		c.entries[key] = value
	}
	c.mu.Unlock()
	return value, nil
}

// Invalidate drops every cached entry for the resource and bumps its
// generation so in-flight fetches are discarded on completion.
func (c *QueryCache) Invalidate(resource string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generations[resource]++
	prefix := resource + "?"
	for key := range c.entries {
		if key == resource || strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
}

// Clear empties the cache entirely, bumping every known generation.
func (c *QueryCache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for resource := range c.generations {
		c.generations[resource]++
	}
	c.entries = make(map[string]interface{})
}
