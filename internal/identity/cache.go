// Package identity provides the identity map that guarantees at most one
// live instance per (entity type, id value) pair.
//
// Id values are keyed by their fmt string form, so the integer 7 and the
// string "7" address the same record. This matches how remote stores echo
// ids back in payloads.
package identity

import (
	"fmt"
	"sync"
)

// Key addresses one cached instance.
type Key struct {
	Type uint64
	ID   string
}

// KeyOf builds the cache key for an id value. ok is false for nil ids,
// which are never cached.
func KeyOf(typeID uint64, id any) (Key, bool) {
	if id == nil {
		return Key{}, false
	}
	s := fmt.Sprint(id)
	if s == "" {
		return Key{}, false
	}
	return Key{Type: typeID, ID: s}, true
}

// Cache maps keys to the single live instance for that key.
//
// Thread-safety: all methods are safe for concurrent use.
type Cache[T comparable] struct {
	mu      sync.Mutex
	entries map[Key]T
}

// New creates an empty cache.
func New[T comparable]() *Cache[T] {
	return &Cache[T]{entries: make(map[Key]T)}
}

// Get registers candidate under (typeID, id) if the key is free and returns
// it. If an instance is already cached, that instance is returned with
// found=true and the candidate is not stored.
//
// Nil ids are never cached; candidate is returned unchanged.
func (c *Cache[T]) Get(typeID uint64, id any, candidate T) (instance T, found bool) {
	key, ok := KeyOf(typeID, id)
	if !ok {
		return candidate, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, exists := c.entries[key]; exists {
		return existing, true
	}
	c.entries[key] = candidate
	return candidate, false
}

// Lookup returns the cached instance without registering anything.
func (c *Cache[T]) Lookup(typeID uint64, id any) (T, bool) {
	var zero T
	key, ok := KeyOf(typeID, id)
	if !ok {
		return zero, false
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	v, exists := c.entries[key]
	if !exists {
		return zero, false
	}
	return v, true
}

// Rekey moves v from oldID to newID. The old entry is only dropped when it
// still points at v. Returns the instance previously cached under newID when
// it was a different instance (the caller decides how to report it).
func (c *Cache[T]) Rekey(typeID uint64, oldID, newID any, v T) (displaced T, collided bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if oldKey, ok := KeyOf(typeID, oldID); ok {
		if cur, exists := c.entries[oldKey]; exists && cur == v {
			delete(c.entries, oldKey)
		}
	}

	newKey, ok := KeyOf(typeID, newID)
	if !ok {
		return displaced, false
	}
	if cur, exists := c.entries[newKey]; exists && cur != v {
		displaced, collided = cur, true
	}
	c.entries[newKey] = v
	return displaced, collided
}

// Evict removes the entry for (typeID, id) if it points at v.
func (c *Cache[T]) Evict(typeID uint64, id any, v T) {
	key, ok := KeyOf(typeID, id)
	if !ok {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if cur, exists := c.entries[key]; exists && cur == v {
		delete(c.entries, key)
	}
}

// Len returns the number of cached instances.
func (c *Cache[T]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// String implements fmt.Stringer for diagnostics.
func (k Key) String() string {
	return fmt.Sprintf("%d/%s", k.Type, k.ID)
}
