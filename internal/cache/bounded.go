package cache

import (
	"container/list"
	"sync"
	"time"
)

// Bounded is a fixed-capacity cache that evicts the least recently inserted
// entry once an insert pushes it over capacity. Expiry is checked on read.
// Reads do not refresh an entry's position.
type Bounded[V any] struct {
	mu    sync.Mutex
	cap   int
	ttl   time.Duration
	order *list.List // front is oldest
	items map[string]*list.Element
	now   func() time.Time
}

type entry[V any] struct {
	key string
	val V
	exp time.Time
}

func NewBounded[V any](capacity int, ttl time.Duration) *Bounded[V] {
	if capacity <= 0 {
		capacity = 1
	}
	return &Bounded[V]{
		cap:   capacity,
		ttl:   ttl,
		order: list.New(),
		items: make(map[string]*list.Element),
		now:   time.Now,
	}
}

func (c *Bounded[V]) Get(key string) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var zero V
	el, ok := c.items[key]
	if !ok {
		return zero, false
	}
	it := el.Value.(entry[V])
	if c.ttl > 0 && !c.now().Before(it.exp) {
		c.order.Remove(el)
		delete(c.items, key)
		return zero, false
	}
	return it.val, true
}

// Set stores v. Overwriting a key counts as a fresh insertion.
func (c *Bounded[V]) Set(key string, v V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if el, ok := c.items[key]; ok {
		c.order.Remove(el)
	}
	c.items[key] = c.order.PushBack(entry[V]{key: key, val: v, exp: c.now().Add(c.ttl)})

	for c.order.Len() > c.cap {
		front := c.order.Front()
		delete(c.items, front.Value.(entry[V]).key)
		c.order.Remove(front)
	}
}

func (c *Bounded[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}
