package cache

import (
	"container/list"
	"context"
	"sync"
	"time"
)

type memEntry struct {
	key     string
	expires time.Time
}

// MemoryEventCache is a bounded LRU with per-entry TTL for single-node runs.
// The webhook_events table stays the source of truth.
type MemoryEventCache struct {
	mu       sync.Mutex
	capacity int
	ttl      time.Duration
	order    *list.List
	items    map[string]*list.Element
	now      func() time.Time
}

func NewMemoryEventCache(capacity int, ttl time.Duration) *MemoryEventCache {
	if capacity <= 0 {
		capacity = 10000
	}
	return &MemoryEventCache{
		capacity: capacity,
		ttl:      ttl,
		order:    list.New(),
		items:    make(map[string]*list.Element, capacity),
		now:      time.Now,
	}
}

func (c *MemoryEventCache) MarkIfNew(_ context.Context, key string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*memEntry)
		if c.ttl <= 0 || now.Before(e.expires) {
			c.order.MoveToFront(el)
			return false, nil
		}
		c.remove(el)
	}

	el := c.order.PushFront(&memEntry{key: key, expires: now.Add(c.ttl)})
	c.items[key] = el
	for c.order.Len() > c.capacity {
		c.remove(c.order.Back())
	}
	return true, nil
}

func (c *MemoryEventCache) Forget(_ context.Context, key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		c.remove(el)
	}
	return nil
}

func (c *MemoryEventCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

func (c *MemoryEventCache) remove(el *list.Element) {
	c.order.Remove(el)
	delete(c.items, el.Value.(*memEntry).key)
}
