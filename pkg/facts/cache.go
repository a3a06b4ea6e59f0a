package facts

import (
	"sync"

	"golang.org/x/sync/singleflight"
)

// Cache stores resolved fact values for the lifetime of a run. Concurrent
// lookups of the same key collapse into a single fetch; everyone waiting
// receives the one result. Failed fetches are not stored, so a later
// lookup retries.
type Cache struct {
	mu     sync.RWMutex
	values map[string]any
	group  singleflight.Group
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{values: make(map[string]any)}
}

// Get returns the cached value for key, if present.
func (c *Cache) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	value, ok := c.values[key]
	return value, ok
}

// Put stores value under key, replacing any previous entry.
func (c *Cache) Put(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.values[key] = value
}

// Invalidate drops the entry for key so the next lookup re-fetches.
func (c *Cache) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.values, key)
}

// Len reports the number of cached entries.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.values)
}

// Resolve returns the value for key, fetching it at most once per miss
// regardless of how many goroutines ask concurrently. The cached return
// reports whether the value came from the cache without calling fetch.
func (c *Cache) Resolve(key string, fetch func() (any, error)) (value any, cached bool, err error) {
	if v, ok := c.Get(key); ok {
		return v, true, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		// Re-check under the flight: another caller may have
		// populated the key between our miss and the Do.
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := fetch()
		if err != nil {
			return nil, err
		}
		c.Put(key, v)
		return v, nil
	})
	if err != nil {
		return nil, false, err
	}
	return v, false, nil
}
