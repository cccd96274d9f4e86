package cache

import (
	"container/list"
	"sync"
)

// Memory is an LRU cache bounded by total value size in bytes.
type Memory struct {
	mu       sync.Mutex
	capacity int64
	size     int64
	items    map[string]*list.Element
	order    *list.List // front = most recently used
	stats    Stats
}

type memoryEntry struct {
	key   string
	value []byte
}

// NewMemory creates a memory cache holding at most capacity bytes.
func NewMemory(capacity int64) *Memory {
	return &Memory{
		capacity: capacity,
		items:    make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Get returns the value for key and marks it most recently used.
func (c *Memory) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	elem, ok := c.items[key]
	if !ok {
		c.stats.Misses++
		return nil, false
	}
	c.order.MoveToFront(elem)
	c.stats.Hits++
	return elem.Value.(*memoryEntry).value, true
}

// Put stores value under key, evicting least recently used entries until it
// fits.
func (c *Memory) Put(key string, value []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := int64(len(value))
	if n > c.capacity {
		return ErrItemTooLarge
	}

	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
	for c.size+n > c.capacity && c.order.Len() > 0 {
		c.remove(c.order.Back())
		c.stats.Evictions++
	}

	c.items[key] = c.order.PushFront(&memoryEntry{key: key, value: value})
	c.size += n
	return nil
}

// Delete removes key if present.
func (c *Memory) Delete(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.items[key]; ok {
		c.remove(elem)
	}
	return nil
}

// Clear removes every entry.
func (c *Memory) Clear() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.items = make(map[string]*list.Element)
	c.order.Init()
	c.size = 0
	return nil
}

// Stats returns a snapshot of the counters.
func (c *Memory) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.stats
	s.Capacity = c.capacity
	s.Size = c.size
	s.Items = len(c.items)
	return s
}

// remove must be called with the lock held.
func (c *Memory) remove(elem *list.Element) {
	e := c.order.Remove(elem).(*memoryEntry)
	delete(c.items, e.key)
	c.size -= int64(len(e.value))
}
