// Package cache provides a small TTL + capacity bounded cache. Distinct
// instances are used per data category (attendance batches, emotion
// batches, encoded frame bytes) with independently tuned sizes and TTLs.
package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	data       T
	insertedAt time.Time
	ttl        time.Duration
}

// Cache is a string-keyed cache with per-entry TTL and a bounded size.
// Expired entries are deleted on read. At capacity the single
// oldest-inserted entry is evicted, insertion order, not access order.
type Cache[T any] struct {
	mu         sync.Mutex
	entries    map[string]*entry[T]
	order      []string
	maxSize    int
	defaultTTL time.Duration
	now        func() time.Time
}

// New creates a cache holding at most maxSize entries, each expiring
// defaultTTL after insertion unless Set is given an explicit TTL.
func New[T any](maxSize int, defaultTTL time.Duration) *Cache[T] {
	if maxSize < 1 {
		maxSize = 1
	}
	return &Cache[T]{
		entries:    make(map[string]*entry[T]),
		maxSize:    maxSize,
		defaultTTL: defaultTTL,
		now:        time.Now,
	}
}

// Set stores value under key. A ttl of 0 uses the cache default.
func (c *Cache[T]) Set(key string, value T, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists {
		if len(c.entries) >= c.maxSize {
			c.evictOldestLocked()
		}
		c.order = append(c.order, key)
	}
	c.entries[key] = &entry[T]{data: value, insertedAt: c.now(), ttl: ttl}
}

// Get returns the value for key, or the zero value and false if the key
// is absent or expired. Expired entries are removed.
func (c *Cache[T]) Get(key string) (T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero T
	e, ok := c.entries[key]
	if !ok {
		return zero, false
	}
	if c.now().Sub(e.insertedAt) > e.ttl {
		c.removeLocked(key)
		return zero, false
	}
	return e.data, true
}

// Has reports whether key is present and unexpired.
func (c *Cache[T]) Has(key string) bool {
	_, ok := c.Get(key)
	return ok
}

// Delete removes key if present.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removeLocked(key)
}

// Clear removes all entries.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry[T])
	c.order = c.order[:0]
}

// Len returns the number of stored entries, counting expired ones that
// have not been read yet.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrSet returns the cached value for key, or runs factory, stores its
// result under key and returns it. The factory runs outside the cache
// lock; concurrent misses on the same key may both run it, last store
// wins, which is acceptable for the idempotent producers used here.
func (c *Cache[T]) GetOrSet(key string, factory func() (T, error), ttl time.Duration) (T, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err := factory()
	if err != nil {
		var zero T
		return zero, err
	}
	c.Set(key, v, ttl)
	return v, nil
}

func (c *Cache[T]) evictOldestLocked() {
	if len(c.order) == 0 {
		return
	}
	oldest := c.order[0]
	c.order = c.order[1:]
	delete(c.entries, oldest)
}

func (c *Cache[T]) removeLocked(key string) {
	if _, ok := c.entries[key]; !ok {
		return
	}
	delete(c.entries, key)
	for i, k := range c.order {
		if k == key {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
}
