package cache

import (
	"context"
	"sync"
)

// MemoryProvider is a bounded, thread-safe LRU held in process memory.
type MemoryProvider struct {
	maxEntries int
	mu         sync.Mutex
	entries    map[string]*entry
	head       *entry // most recently used
	tail       *entry // least recently used
}

type entry struct {
	key   string
	value []byte
	prev  *entry
	next  *entry
}

// NewMemoryProvider creates an LRU holding at most maxEntries keys.
// A non-positive maxEntries means unbounded.
func NewMemoryProvider(maxEntries int) *MemoryProvider {
	return &MemoryProvider{
		maxEntries: maxEntries,
		entries:    make(map[string]*entry),
	}
}

// Get returns a copy of the stored value and marks the key recently used.
func (c *MemoryProvider) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return nil, ErrCacheMiss
	}
	c.moveToFront(e)
	return append([]byte(nil), e.value...), nil
}

// Set stores a copy of value, evicting the least recently used key when full.
func (c *MemoryProvider) Set(_ context.Context, key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	value = append([]byte(nil), value...)
	if e, ok := c.entries[key]; ok {
		e.value = value
		c.moveToFront(e)
		return nil
	}

	e := &entry{key: key, value: value}
	c.entries[key] = e
	c.addToFront(e)

	if c.maxEntries > 0 && len(c.entries) > c.maxEntries {
		c.evictTail()
	}
	return nil
}

// Del removes key if present.
func (c *MemoryProvider) Del(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		delete(c.entries, key)
		c.remove(e)
	}
	return nil
}

// Close drops every entry.
func (c *MemoryProvider) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.entries = make(map[string]*entry)
	c.head, c.tail = nil, nil
	return nil
}

// Len reports the number of stored keys.
func (c *MemoryProvider) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

func (c *MemoryProvider) moveToFront(e *entry) {
	if e == c.head {
		return
	}
	c.remove(e)
	c.addToFront(e)
}

func (c *MemoryProvider) addToFront(e *entry) {
	e.next = c.head
	e.prev = nil
	if c.head != nil {
		c.head.prev = e
	}
	c.head = e
	if c.tail == nil {
		c.tail = e
	}
}

func (c *MemoryProvider) remove(e *entry) {
	if e.prev != nil {
		e.prev.next = e.next
	} else {
		c.head = e.next
	}
	if e.next != nil {
		e.next.prev = e.prev
	} else {
		c.tail = e.prev
	}
}

func (c *MemoryProvider) evictTail() {
	if c.tail == nil {
		return
	}
	delete(c.entries, c.tail.key)
	c.remove(c.tail)
}
