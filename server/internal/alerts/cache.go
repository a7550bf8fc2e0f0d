package alerts

import (
	"sync"
	"time"
)

type cacheEntry[V any] struct {
	value     V
	expiresAt time.Time
}

// ttlCache is a concurrency-safe map whose entries expire independently.
// Expired entries are invisible to Get and are dropped by Purge.
type ttlCache[K comparable, V any] struct {
	mu      sync.RWMutex
	entries map[K]cacheEntry[V]
	ttl     time.Duration
	now     func() time.Time
}

func newTTLCache[K comparable, V any](ttl time.Duration, now func() time.Time) *ttlCache[K, V] {
	if now == nil {
		now = time.Now
	}
	return &ttlCache[K, V]{
		entries: make(map[K]cacheEntry[V]),
		ttl:     ttl,
		now:     now,
	}
}

// Get returns the live value for k.
func (c *ttlCache[K, V]) Get(k K) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[k]
	if !ok || !c.now().Before(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores v for the cache TTL.
func (c *ttlCache[K, V]) Set(k K, v V) {
	c.SetUntil(k, v, c.now().Add(c.ttl))
}

// SetUntil stores v until the given expiry.
func (c *ttlCache[K, V]) SetUntil(k K, v V, expiresAt time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[k] = cacheEntry[V]{value: v, expiresAt: expiresAt}
}

// Reserve stores v only if no live entry exists for k and reports whether it did.
func (c *ttlCache[K, V]) Reserve(k K, v V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	if e, ok := c.entries[k]; ok && now.Before(e.expiresAt) {
		return false
	}
	c.entries[k] = cacheEntry[V]{value: v, expiresAt: now.Add(c.ttl)}
	return true
}

// Delete removes k.
func (c *ttlCache[K, V]) Delete(k K) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, k)
}

// Purge drops expired entries and returns how many were removed.
func (c *ttlCache[K, V]) Purge() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	removed := 0
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
			removed++
		}
	}
	return removed
}

// Len returns the number of entries held, including expired ones.
func (c *ttlCache[K, V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
