// Package cache implements the in-memory TTL+LRU tier.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// EvictReason tags why an entry left the cache.
type EvictReason string

const (
	ReasonExpired  EvictReason = "expired"
	ReasonCapacity EvictReason = "capacity"
	ReasonSweep    EvictReason = "sweep"
	ReasonFlush    EvictReason = "flush"
)

// EvictFunc observes evictions for metrics and logs.
type EvictFunc func(cache, key string, reason EvictReason)

// Cache maps string keys to values with a TTL and last-access ordering.
// Reads touch the entry; writes move it to the front.
type Cache[V any] struct {
	name       string
	entries    map[string]*entry[V]
	order      *list.List
	max        int
	defaultTTL time.Duration
	onEvict    EvictFunc
	mu         sync.RWMutex
}

type entry[V any] struct {
	key       string
	value     V
	expiresAt time.Time
	element   *list.Element
}

// New creates a cache. max <= 0 means no insert-time bound.
func New[V any](name string, max int, defaultTTL time.Duration) *Cache[V] {
	if defaultTTL <= 0 {
		defaultTTL = 5 * time.Minute
	}
	return &Cache[V]{
		name:       name,
		entries:    make(map[string]*entry[V]),
		order:      list.New(),
		max:        max,
		defaultTTL: defaultTTL,
	}
}

// SetOnEvict installs the eviction observer. Call before use.
func (c *Cache[V]) SetOnEvict(fn EvictFunc) {
	c.onEvict = fn
}

// Name returns the cache name.
func (c *Cache[V]) Name() string {
	return c.name
}

// Set stores a value with the default TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.SetTTL(key, value, c.defaultTTL)
}

// SetTTL stores a value with an override TTL.
func (c *Cache[V]) SetTTL(key string, value V, ttl time.Duration) {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		e.expiresAt = time.Now().Add(ttl)
		c.order.MoveToFront(e.element)
		return
	}

	for c.max > 0 && len(c.entries) >= c.max {
		c.evictOldest(ReasonCapacity)
	}

	e := &entry[V]{
		key:       key,
		value:     value,
		expiresAt: time.Now().Add(ttl),
	}
	e.element = c.order.PushFront(e)
	c.entries[key] = e
}

// Get retrieves a value, refreshing its access position.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if time.Now().After(e.expiresAt) {
		c.remove(e, ReasonExpired)
		var zero V
		return zero, false
	}

	c.order.MoveToFront(e.element)
	return e.value, true
}

// Peek retrieves a value without touching its access position. Expired
// entries read as absent but are left for the janitor.
func (c *Cache[V]) Peek(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.entries[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Contains reports whether a live entry exists, without touching it.
func (c *Cache[V]) Contains(key string) bool {
	_, ok := c.Peek(key)
	return ok
}

// Delete removes a key.
func (c *Cache[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		c.remove(e, ReasonFlush)
		return true
	}
	return false
}

// Len returns the number of entries, expired ones included.
func (c *Cache[V]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

// Flush removes everything, reporting each eviction.
func (c *Cache[V]) Flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	if c.onEvict != nil {
		for key := range c.entries {
			c.onEvict(c.name, key, ReasonFlush)
		}
	}
	c.entries = make(map[string]*entry[V])
	c.order.Init()
	return n
}

// CleanupExpired removes all expired entries and returns how many.
func (c *Cache[V]) CleanupExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	var toDelete []*entry[V]
	now := time.Now()
	for _, e := range c.entries {
		if now.After(e.expiresAt) {
			toDelete = append(toDelete, e)
		}
	}
	for _, e := range toDelete {
		c.remove(e, ReasonExpired)
	}
	return len(toDelete)
}

// EvictOldest drops least-recently-accessed entries until at most keep
// remain, returning how many were dropped.
func (c *Cache[V]) EvictOldest(keep int) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	if keep < 0 {
		keep = 0
	}
	dropped := 0
	for len(c.entries) > keep {
		c.evictOldest(ReasonSweep)
		dropped++
	}
	return dropped
}

// evictOldest removes the LRU entry. Must be called with the lock held.
func (c *Cache[V]) evictOldest(reason EvictReason) {
	oldest := c.order.Back()
	if oldest == nil {
		return
	}
	if e, ok := oldest.Value.(*entry[V]); ok {
		c.remove(e, reason)
	}
}

// remove deletes an entry. Must be called with the lock held.
func (c *Cache[V]) remove(e *entry[V], reason EvictReason) {
	c.order.Remove(e.element)
	delete(c.entries, e.key)
	if c.onEvict != nil {
		c.onEvict(c.name, e.key, reason)
	}
}
