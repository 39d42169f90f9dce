// Package lru implements a generic, thread-safe LRU cache with optional
// per-entry expiry.
//
// Time complexity: O(1) for Get, Put, Delete, Len.
// Space complexity: O(n) where n is capacity.
//
// Implementation uses a hash map for O(1) key lookup combined with
// a doubly linked list for O(1) eviction ordering.
package lru

import (
	"sync"
	"time"
)

// node is a doubly linked list node holding a key-value pair.
type node[K comparable, V any] struct {
	key       K
	val       V
	expiresAt time.Time // zero means no expiry
	prev      *node[K, V]
	next      *node[K, V]
}

func (n *node[K, V]) expired(now time.Time) bool {
	return !n.expiresAt.IsZero() && now.After(n.expiresAt)
}

// Cache is a generic, thread-safe LRU cache.
// K must be comparable (map key constraint), V can be any type.
type Cache[K comparable, V any] struct {
	mu         sync.Mutex
	capacity   int
	defaultTTL time.Duration
	onEvict    func(K, V)
	now        func() time.Time
	items      map[K]*node[K, V]
	head       *node[K, V] // most recently used (sentinel)
	tail       *node[K, V] // least recently used (sentinel)
	metrics    Metrics
}

// Metrics is a snapshot of cache effectiveness counters.
type Metrics struct {
	Hits        uint64
	Misses      uint64
	Evictions   uint64 // capacity evictions
	Expirations uint64 // TTL expirations observed
}

// HitRate returns hits / (hits + misses), or 0 with no lookups yet.
func (m Metrics) HitRate() float64 {
	total := m.Hits + m.Misses
	if total == 0 {
		return 0
	}
	return float64(m.Hits) / float64(total)
}

// Option configures a Cache.
type Option[K comparable, V any] func(*Cache[K, V])

// WithTTL sets a default time-to-live applied by Put. Entries older than
// the TTL behave as absent.
func WithTTL[K comparable, V any](ttl time.Duration) Option[K, V] {
	return func(c *Cache[K, V]) { c.defaultTTL = ttl }
}

// WithOnEvict sets a callback invoked when an entry is evicted by capacity
// or observed expired. The callback runs under the cache lock and must not
// call back into the cache.
func WithOnEvict[K comparable, V any](fn func(K, V)) Option[K, V] {
	return func(c *Cache[K, V]) { c.onEvict = fn }
}

// New creates an LRU cache with the given capacity.
// Panics if capacity < 1.
func New[K comparable, V any](capacity int, opts ...Option[K, V]) *Cache[K, V] {
	if capacity < 1 {
		panic("lru: capacity must be >= 1")
	}

	head := &node[K, V]{}
	tail := &node[K, V]{}
	head.next = tail
	tail.prev = head

	c := &Cache[K, V]{
		capacity: capacity,
		now:      time.Now,
		items:    make(map[K]*node[K, V], capacity),
		head:     head,
		tail:     tail,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get retrieves a value by key. Returns the value and true if found and
// unexpired, or the zero value and false otherwise. O(1).
func (c *Cache[K, V]) Get(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		c.metrics.Misses++
		var zero V
		return zero, false
	}
	if n.expired(c.now()) {
		c.expire(n)
		c.metrics.Misses++
		var zero V
		return zero, false
	}

	c.moveToFront(n)
	c.metrics.Hits++
	return n.val, true
}

// Put inserts or updates a value, applying the default TTL when one is
// configured. Returns the evicted key/value and true if the insert
// displaced the least recently used entry. O(1).
func (c *Cache[K, V]) Put(key K, val V) (K, V, bool) {
	return c.put(key, val, c.defaultTTL)
}

// PutWithTTL inserts or updates a value with an explicit TTL, overriding
// the default. A zero ttl means no expiry.
func (c *Cache[K, V]) PutWithTTL(key K, val V, ttl time.Duration) (K, V, bool) {
	return c.put(key, val, ttl)
}

func (c *Cache[K, V]) put(key K, val V, ttl time.Duration) (K, V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var expiresAt time.Time
	if ttl > 0 {
		expiresAt = c.now().Add(ttl)
	}

	if n, ok := c.items[key]; ok {
		n.val = val
		n.expiresAt = expiresAt
		c.moveToFront(n)
		var zeroK K
		var zeroV V
		return zeroK, zeroV, false
	}

	n := &node[K, V]{key: key, val: val, expiresAt: expiresAt}
	c.items[key] = n
	c.pushFront(n)

	if len(c.items) > c.capacity {
		lru := c.tail.prev
		c.evict(lru)
		return lru.key, lru.val, true
	}

	var zeroK K
	var zeroV V
	return zeroK, zeroV, false
}

// Metrics returns a snapshot of the effectiveness counters.
func (c *Cache[K, V]) Metrics() Metrics {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.metrics
}

// Delete removes a key. Returns true if the key was present. O(1).
func (c *Cache[K, V]) Delete(key K) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok {
		return false
	}
	c.remove(n)
	delete(c.items, key)
	return true
}

// Len returns the number of stored entries, including ones that have
// expired but not yet been observed. O(1).
func (c *Cache[K, V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}

// Peek retrieves a value without updating its recency. Expired entries
// behave as absent.
func (c *Cache[K, V]) Peek(key K) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.items[key]
	if !ok || n.expired(c.now()) {
		var zero V
		return zero, false
	}
	return n.val, true
}

// Keys returns all unexpired keys, most recently used first.
func (c *Cache[K, V]) Keys() []K {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	keys := make([]K, 0, len(c.items))
	for n := c.head.next; n != c.tail; n = n.next {
		if n.expired(now) {
			continue
		}
		keys = append(keys, n.key)
	}
	return keys
}

// Clear removes all entries.
func (c *Cache[K, V]) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.items = make(map[K]*node[K, V], c.capacity)
	c.head.next = c.tail
	c.tail.prev = c.head
}

// evict removes n due to capacity pressure. Caller holds the lock.
func (c *Cache[K, V]) evict(n *node[K, V]) {
	c.metrics.Evictions++
	c.drop(n)
}

// expire removes n whose TTL has lapsed. Caller holds the lock.
func (c *Cache[K, V]) expire(n *node[K, V]) {
	c.metrics.Expirations++
	c.drop(n)
}

func (c *Cache[K, V]) drop(n *node[K, V]) {
	c.remove(n)
	delete(c.items, n.key)
	if c.onEvict != nil {
		c.onEvict(n.key, n.val)
	}
}

func (c *Cache[K, V]) remove(n *node[K, V]) {
	n.prev.next = n.next
	n.next.prev = n.prev
	n.prev = nil
	n.next = nil
}

func (c *Cache[K, V]) pushFront(n *node[K, V]) {
	n.next = c.head.next
	n.prev = c.head
	c.head.next.prev = n
	c.head.next = n
}

func (c *Cache[K, V]) moveToFront(n *node[K, V]) {
	if c.head.next == n {
		return
	}
	c.remove(n)
	c.pushFront(n)
}
