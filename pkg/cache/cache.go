// Package cache provides a small thread-safe LRU cache with a fixed capacity.
//
// It backs the bounded structures PlantWatch uses for log deduplication and
// rate limiting, where an unbounded map would accumulate entries for the
// lifetime of the process.
package cache

import (
	"container/list"
	"sync"

	"github.com/c360/plantwatch/errors"
)

// EvictCallback is invoked with the key and value of every evicted entry.
type EvictCallback[V any] func(key string, value V)

type entry[V any] struct {
	key   string
	value V
}

// LRU is a thread-safe fixed-capacity cache with least-recently-used eviction.
type LRU[V any] struct {
	mu       sync.Mutex
	capacity int
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	evictFn  EvictCallback[V]

	hits      uint64
	misses    uint64
	evictions uint64
}

// NewLRU creates an LRU cache holding at most capacity entries.
func NewLRU[V any](capacity int, evictFn EvictCallback[V]) (*LRU[V], error) {
	if capacity <= 0 {
		return nil, errors.WrapInvalid(errors.ErrInvalidConfig,
			"cache", "NewLRU", "capacity validation")
	}
	return &LRU[V]{
		capacity: capacity,
		items:    make(map[string]*list.Element, capacity),
		order:    list.New(),
		evictFn:  evictFn,
	}, nil
}

// Get retrieves a value by key and marks it as recently used.
func (c *LRU[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		c.misses++
		var zero V
		return zero, false
	}

	c.order.MoveToFront(element)
	c.hits++
	return element.Value.(*entry[V]).value, true
}

// Set stores a value, evicting the least recently used entry when full.
// Returns true if an existing entry was updated.
func (c *LRU[V]) Set(key string, value V) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if element, ok := c.items[key]; ok {
		element.Value.(*entry[V]).value = value
		c.order.MoveToFront(element)
		return true
	}

	element := c.order.PushFront(&entry[V]{key: key, value: value})
	c.items[key] = element

	if c.order.Len() > c.capacity {
		c.evictOldest()
	}
	return false
}

// Delete removes an entry if present.
func (c *LRU[V]) Delete(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	element, ok := c.items[key]
	if !ok {
		return false
	}
	c.order.Remove(element)
	delete(c.items, key)
	return true
}

// Len returns the current number of entries.
func (c *LRU[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit, miss and eviction counts since creation.
func (c *LRU[V]) Stats() (hits, misses, evictions uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.hits, c.misses, c.evictions
}

// evictOldest removes the least recently used entry. Caller holds the lock.
func (c *LRU[V]) evictOldest() {
	element := c.order.Back()
	if element == nil {
		return
	}
	ev := element.Value.(*entry[V])
	c.order.Remove(element)
	delete(c.items, ev.key)
	c.evictions++

	if c.evictFn != nil {
		c.evictFn(ev.key, ev.value)
	}
}
