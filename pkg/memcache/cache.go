package memcache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a bounded in-process map with per-entry TTL. When an insert would
// grow the cache past its size limit, expired entries are dropped first and,
// if that is not enough, an arbitrary entry is evicted.
type Cache[K comparable, V any] struct {
	entries map[K]entry[V]
	ttl     time.Duration
	maxSize int
	mux     *sync.Mutex
}

func New[K comparable, V any](maxSize int, ttl time.Duration) *Cache[K, V] {
	return &Cache[K, V]{
		entries: make(map[K]entry[V]),
		ttl:     ttl,
		maxSize: maxSize,
		mux:     &sync.Mutex{},
	}
}

func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mux.Lock()
	defer c.mux.Unlock()
	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

func (c *Cache[K, V]) Set(key K, value V) {
	c.mux.Lock()
	defer c.mux.Unlock()
	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxSize {
		c.evictLocked()
	}
	c.entries[key] = entry[V]{
		value:     value,
		expiresAt: time.Now().Add(c.ttl),
	}
}

func (c *Cache[K, V]) Delete(key K) {
	c.mux.Lock()
	defer c.mux.Unlock()
	delete(c.entries, key)
}

func (c *Cache[K, V]) Len() int {
	c.mux.Lock()
	defer c.mux.Unlock()
	return len(c.entries)
}

func (c *Cache[K, V]) evictLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if now.After(e.expiresAt) {
			delete(c.entries, k)
		}
	}
	if len(c.entries) < c.maxSize {
		return
	}
	for k := range c.entries {
		delete(c.entries, k)
		return
	}
}
