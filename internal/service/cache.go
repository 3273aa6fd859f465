package service

import (
	"sync"
	"time"

	"github.com/patrickmn/go-cache"
)

// snapshotCache keeps per-channel entity lists. Every invalidation bumps the
// key's generation so a load that raced with a write is never stored.
type snapshotCache struct {
	store *cache.Cache
	ttl   time.Duration

	mu  sync.Mutex
	gen map[string]uint64
}

func newSnapshotCache(ttl time.Duration) *snapshotCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &snapshotCache{
		store: cache.New(ttl, 2*ttl),
		ttl:   ttl,
		gen:   make(map[string]uint64),
	}
}

func (c *snapshotCache) generation(key string) uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gen[key]
}

func (c *snapshotCache) put(key string, gen uint64, v any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen[key] != gen {
		return
	}
	c.store.Set(key, v, c.ttl)
}

func (c *snapshotCache) invalidate(keys ...string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, k := range keys {
		c.gen[k]++
		c.store.Delete(k)
	}
}

// cached returns the value under key or loads and stores it.
func cached[T any](c *snapshotCache, key string, load func() (T, error)) (T, error) {
	if v, ok := c.store.Get(key); ok {
		if t, ok := v.(T); ok {
			return t, nil
		}
	}
	gen := c.generation(key)
	v, err := load()
	if err != nil {
		var zero T
		return zero, err
	}
	c.put(key, gen, v)
	return v, nil
}
