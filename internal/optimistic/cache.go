// Package optimistic keeps in-memory list snapshots that callers patch before a
// write is confirmed and roll back when it fails.
package optimistic

import "sync"

// Identifiable is implemented by list items addressed by a string id.
type Identifiable interface {
	GetID() string
}

// Snapshot captures a list as it was before one mutation.
type Snapshot[T Identifiable] struct {
	Key      string
	Previous []T
	existed  bool
}

// Cache holds lists keyed by string. It performs no conflict detection.
type Cache[T Identifiable] struct {
	mu    sync.Mutex
	lists map[string][]T
}

// New returns an empty cache.
func New[T Identifiable]() *Cache[T] {
	return &Cache[T]{lists: make(map[string][]T)}
}

// Get returns a copy of the list stored under key.
func (c *Cache[T]) Get(key string) ([]T, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items, ok := c.lists[key]
	if !ok {
		return nil, false
	}
	return clone(items), true
}

// Set replaces the list stored under key.
func (c *Cache[T]) Set(key string, items []T) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lists[key] = clone(items)
}

// Delete drops key.
func (c *Cache[T]) Delete(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.lists, key)
}

// Apply replaces the list under key with update(old) and returns the prior state.
func (c *Cache[T]) Apply(key string, update func(old []T) []T) Snapshot[T] {
	c.mu.Lock()
	defer c.mu.Unlock()
	prev, ok := c.lists[key]
	snap := Snapshot[T]{Key: key, Previous: clone(prev), existed: ok}
	c.lists[key] = update(clone(prev))
	return snap
}

// AddItem appends item to the list.
func (c *Cache[T]) AddItem(key string, item T) Snapshot[T] {
	return c.Apply(key, func(old []T) []T {
		return append(old, item)
	})
}

// UpdateItem rewrites the item with the given id.
func (c *Cache[T]) UpdateItem(key, id string, patch func(T) T) Snapshot[T] {
	return c.Apply(key, func(old []T) []T {
		for i, item := range old {
			if item.GetID() == id {
				old[i] = patch(item)
			}
		}
		return old
	})
}

// RemoveItem filters out the item with the given id.
func (c *Cache[T]) RemoveItem(key, id string) Snapshot[T] {
	return c.Apply(key, func(old []T) []T {
		out := old[:0]
		for _, item := range old {
			if item.GetID() != id {
				out = append(out, item)
			}
		}
		return out
	})
}

// Toggle flips the boolean selected by field on the item with the given id.
func (c *Cache[T]) Toggle(key, id string, field func(*T) *bool) Snapshot[T] {
	return c.Apply(key, func(old []T) []T {
		for i := range old {
			if old[i].GetID() == id {
				b := field(&old[i])
				*b = !*b
			}
		}
		return old
	})
}

// Rollback restores the list captured by s. A key that did not exist is removed.
func (c *Cache[T]) Rollback(s Snapshot[T]) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !s.existed {
		delete(c.lists, s.Key)
		return
	}
	c.lists[s.Key] = clone(s.Previous)
}

func clone[T any](items []T) []T {
	if items == nil {
		return nil
	}
	out := make([]T, len(items))
	copy(out, items)
	return out
}
