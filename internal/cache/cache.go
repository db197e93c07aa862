// Package cache provides a small in-process TTL cache with a fixed capacity
// bound.
//
// Entries expire a fixed duration after insertion regardless of access, and
// the cache never holds more than its configured capacity: when full, the
// entry closest to expiry is evicted to make room. Both NLP services use one
// Cache instance each for memoising parse and embedding results.
//
// Cache is safe for concurrent use.
package cache

import (
	"sync"
	"time"
)

// DefaultCapacity is used when a non-positive capacity is supplied.
const DefaultCapacity = 1000

// DefaultTTL is used when a non-positive TTL is supplied.
const DefaultTTL = time.Hour

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache is a string-keyed TTL cache holding values of type V.
type Cache[V any] struct {
	mu       sync.Mutex
	entries  map[string]entry[V]
	capacity int
	ttl      time.Duration

	// now is swapped out in tests to exercise expiry deterministically.
	now func() time.Time
}

// New creates a Cache bounded to capacity entries where every entry expires
// ttl after insertion. Non-positive arguments fall back to [DefaultCapacity]
// and [DefaultTTL].
func New[V any](capacity int, ttl time.Duration) *Cache[V] {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Cache[V]{
		entries:  make(map[string]entry[V], capacity),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Get returns the value stored under key and true, or the zero value and
// false when the key is absent or its entry has expired. Expired entries are
// removed on lookup.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().After(e.expires) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores value under key with a fresh TTL, replacing any previous entry.
// When the cache is full, expired entries are purged first; if it is still
// full, the live entry closest to expiry is evicted.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.capacity {
		c.purgeExpiredLocked()
		if len(c.entries) >= c.capacity {
			c.evictOldestLocked()
		}
	}
	c.entries[key] = entry[V]{value: value, expires: c.now().Add(c.ttl)}
}

// Len returns the number of live (non-expired) entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.purgeExpiredLocked()
	return len(c.entries)
}

// Clear removes all entries.
func (c *Cache[V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[V], c.capacity)
}

// purgeExpiredLocked removes all expired entries. Must be called with c.mu held.
func (c *Cache[V]) purgeExpiredLocked() {
	now := c.now()
	for k, e := range c.entries {
		if now.After(e.expires) {
			delete(c.entries, k)
		}
	}
}

// evictOldestLocked removes the entry closest to expiry, which under a uniform
// TTL is also the least recently inserted. Must be called with c.mu held.
func (c *Cache[V]) evictOldestLocked() {
	var (
		oldestKey string
		oldest    time.Time
		first     = true
	)
	for k, e := range c.entries {
		if first || e.expires.Before(oldest) {
			oldestKey, oldest = k, e.expires
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
	}
}
