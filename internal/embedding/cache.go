package embedding

import (
	"container/list"
	"context"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// CacheStats reports query cache effectiveness.
type CacheStats struct {
	Hits   int64
	Misses int64
	Size   int
}

// QueryCache keeps the most recently used query vectors. Concurrent misses for
// the same text share one embedding call. A non-positive capacity stores nothing
// but still coalesces concurrent calls.
type QueryCache struct {
	capacity int

	mu      sync.Mutex
	entries map[string]*list.Element
	order   *list.List

	calls  singleflight.Group
	hits   atomic.Int64
	misses atomic.Int64
}

type cached struct {
	text   string
	vector []float32
}

// NewQueryCache creates a cache holding at most capacity vectors.
func NewQueryCache(capacity int) *QueryCache {
	return &QueryCache{
		capacity: capacity,
		entries:  make(map[string]*list.Element),
		order:    list.New(),
	}
}

// Lookup returns the vector stored for text.
func (c *QueryCache) Lookup(text string) ([]float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	elem, ok := c.entries[text]
	if !ok {
		return nil, false
	}
	c.order.MoveToFront(elem)
	return elem.Value.(*cached).vector, true
}

// Store records vector for text and evicts the least recently used entry when full.
func (c *QueryCache) Store(text string, vector []float32) {
	if c.capacity <= 0 {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if elem, ok := c.entries[text]; ok {
		elem.Value.(*cached).vector = vector
		c.order.MoveToFront(elem)
		return
	}
	c.entries[text] = c.order.PushFront(&cached{text: text, vector: vector})
	for c.order.Len() > c.capacity {
		oldest := c.order.Back()
		c.order.Remove(oldest)
		delete(c.entries, oldest.Value.(*cached).text)
	}
}

// Fetch returns the cached vector for text, or computes it with embed and stores it.
func (c *QueryCache) Fetch(ctx context.Context, text string, embed func(context.Context, string) ([]float32, error)) ([]float32, error) {
	if v, ok := c.Lookup(text); ok {
		c.hits.Add(1)
		return v, nil
	}
	c.misses.Add(1)
	v, err, _ := c.calls.Do(text, func() (interface{}, error) {
		if v, ok := c.Lookup(text); ok {
			return v, nil
		}
		v, err := embed(ctx, text)
		if err != nil {
			return nil, err
		}
		c.Store(text, v)
		return v, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]float32), nil
}

// Len returns the number of stored vectors.
func (c *QueryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.order.Len()
}

// Stats returns hit and miss counters.
func (c *QueryCache) Stats() CacheStats {
	return CacheStats{Hits: c.hits.Load(), Misses: c.misses.Load(), Size: c.Len()}
}
