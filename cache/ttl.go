// Package cache implements a keyed TTL cache with single-flight load
// coalescing (spec.md §4.6), generalized from the teacher's
// *RoutingPlan-specific SimpleCache/LRUCache in pkg/routing/cache.go to
// an arbitrary value type and given the single-flight guarantee that
// use case never needed but the dynamic context engine does.
package cache

import (
	"sync"
	"time"
)

type entry[T any] struct {
	value     T
	expiresAt time.Time
}

// pendingLoad is the in-flight promise a concurrent caller joins.
type pendingLoad[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Cache is safe for concurrent use. Distinct keys load independently;
// concurrent GetOrLoad calls on the same expired/missing key coalesce
// into a single loader invocation.
type Cache[T any] struct {
	ttl time.Duration

	mu      sync.Mutex
	entries map[string]entry[T]
	pending map[string]*pendingLoad[T]
}

// New creates a cache whose entries expire ttl after being loaded.
func New[T any](ttl time.Duration) *Cache[T] {
	return &Cache[T]{
		ttl:     ttl,
		entries: make(map[string]entry[T]),
		pending: make(map[string]*pendingLoad[T]),
	}
}

// Loader produces the value for a cache miss.
type Loader[T any] func() (T, error)

// GetOrLoad implements spec.md §4.6's algorithm: a fresh entry is
// returned immediately; an in-flight load is awaited rather than
// duplicated; a miss starts exactly one loader call, which on success
// populates the entry and on failure leaves the cache untouched so the
// next caller retries.
func (c *Cache[T]) GetOrLoad(key string, load Loader[T]) (T, error) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok && time.Now().Before(e.expiresAt) {
		c.mu.Unlock()
		return e.value, nil
	}
	if p, ok := c.pending[key]; ok {
		c.mu.Unlock()
		<-p.done
		return p.value, p.err
	}

	p := &pendingLoad[T]{done: make(chan struct{})}
	c.pending[key] = p
	c.mu.Unlock()

	value, err := load()

	c.mu.Lock()
	delete(c.pending, key)
	if err == nil {
		c.entries[key] = entry[T]{value: value, expiresAt: time.Now().Add(c.ttl)}
	}
	c.mu.Unlock()

	p.value, p.err = value, err
	close(p.done)

	return value, err
}

// Invalidate removes a single key, if present.
func (c *Cache[T]) Invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

// Clear removes every entry. In-flight loads are left to complete and
// populate the cache normally; Clear does not cancel them.
func (c *Cache[T]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]entry[T])
}

// Size returns the number of resident (not necessarily unexpired)
// entries. Expired entries are not proactively evicted — spec.md §4.6 —
// they are simply overwritten on next load.
func (c *Cache[T]) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}
