package memory

import (
	"context"
	"encoding/json"
	"sync"
	"time"
)

// AggregateCache is an in-process time-boxed cache for cohort aggregates. Values are
// stored JSON-encoded so readers never share memory with the writer. Invalidate
// starts a new generation and writes for older generations are dropped.
type AggregateCache struct {
	mu    sync.Mutex
	ttl   time.Duration
	gen   int64
	items map[string]cachedItem
	now   func() time.Time
}

type cachedItem struct {
	data      []byte
	expiresAt time.Time
}

// NewAggregateCache creates a cache whose entries live for ttl.
func NewAggregateCache(ttl time.Duration) *AggregateCache {
	return &AggregateCache{
		ttl:   ttl,
		items: make(map[string]cachedItem),
		now:   time.Now,
	}
}

// Get implements query.AggregateCache.
func (c *AggregateCache) Get(ctx context.Context, key string, dest interface{}) (int64, bool, error) {
	c.mu.Lock()
	gen := c.gen
	item, ok := c.items[key]
	if ok && !c.now().Before(item.expiresAt) {
		delete(c.items, key)
		ok = false
	}
	c.mu.Unlock()

	if !ok {
		return gen, false, nil
	}
	if err := json.Unmarshal(item.data, dest); err != nil {
		return gen, false, err
	}
	return gen, true, nil
}

// Set implements query.AggregateCache.
func (c *AggregateCache) Set(ctx context.Context, gen int64, key string, value interface{}) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if gen != c.gen {
		return nil
	}
	c.items[key] = cachedItem{data: data, expiresAt: c.now().Add(c.ttl)}
	return nil
}

// Invalidate implements command.CacheInvalidator.
func (c *AggregateCache) Invalidate(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gen++
	c.items = make(map[string]cachedItem)
	return nil
}

// Len returns the number of live entries.
func (c *AggregateCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.items)
}
