// Package cache provides a size-bounded LRU cache.
package cache

import (
	"sync"
)

type node[V any] struct {
	next  *node[V]
	prev  *node[V]
	key   string
	value V
}

// Cache is an LRU cache holding at most size entries. It is safe for
// concurrent use.
type Cache[V any] struct {
	mu     sync.Mutex
	head   *node[V]
	tail   *node[V]
	lookup map[string]*node[V]
	size   int
}

// New returns a cache holding at most size entries. A size below one is
// treated as one.
func New[V any](size int) *Cache[V] {
	if size < 1 {
		size = 1
	}

	return &Cache[V]{
		lookup: make(map[string]*node[V]),
		size:   size,
	}
}

// Get returns the value for key, marking it most recently used.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	n, ok := c.lookup[key]
	if !ok {
		var zero V
		return zero, false
	}

	c.moveToFront(n)
	return n.value, true
}

// Put sets the value for key, evicting the least recently used entry if the
// cache is full.
func (c *Cache[V]) Put(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if n, ok := c.lookup[key]; ok {
		n.value = value
		c.moveToFront(n)
		return
	}

	n := &node[V]{
		key:   key,
		value: value,
		next:  c.head,
	}
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
	c.lookup[key] = n

	for len(c.lookup) > c.size {
		evicted := c.tail
		c.unlink(evicted)
		delete(c.lookup, evicted.key)
	}
}

// Len returns the number of cached entries.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.lookup)
}

func (c *Cache[V]) moveToFront(n *node[V]) {
	if n == c.head {
		return
	}

	c.unlink(n)
	n.next = c.head
	if c.head != nil {
		c.head.prev = n
	}
	c.head = n
	if c.tail == nil {
		c.tail = n
	}
}

func (c *Cache[V]) unlink(n *node[V]) {
	if n.prev != nil {
		n.prev.next = n.next
	} else {
		c.head = n.next
	}
	if n.next != nil {
		n.next.prev = n.prev
	} else {
		c.tail = n.prev
	}
	n.next = nil
	n.prev = nil
}
