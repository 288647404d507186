// Package cache provides a small bounded TTL cache for merchant settings and
// customer profiles, replacing unbounded process-wide maps.
package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value   V
	expires time.Time
}

// Cache is a string-keyed cache with per-entry TTL and a hard size bound.
// When full, the entry closest to expiry is evicted. Safe for concurrent use.
type Cache[V any] struct {
	mu      sync.Mutex
	entries map[string]entry[V]
	max     int
	ttl     time.Duration
}

func New[V any](maxEntries int, ttl time.Duration) *Cache[V] {
	if maxEntries <= 0 {
		maxEntries = 256
	}
	return &Cache[V]{
		entries: make(map[string]entry[V], maxEntries),
		max:     maxEntries,
		ttl:     ttl,
	}
}

// Get returns the cached value and whether it is present and unexpired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expires) {
		if ok {
			delete(c.entries, key)
		}
		var zero V
		return zero, false
	}
	return e.value, true
}

// Put stores a value, evicting the soonest-to-expire entry if full.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[key]; !exists && len(c.entries) >= c.max {
		var victim string
		var soonest time.Time
		for k, e := range c.entries {
			if victim == "" || e.expires.Before(soonest) {
				victim = k
				soonest = e.expires
			}
		}
		delete(c.entries, victim)
	}

	c.entries[key] = entry[V]{value: value, expires: time.Now().Add(c.ttl)}
}

// Delete removes a key.
func (c *Cache[V]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Len returns the number of entries, counting expired ones not yet swept.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
