package cctpr

import (
	"context"
	"sync"
	"time"
)

// DefaultConfigTTL bounds how stale on-chain configuration may get.
const DefaultConfigTTL = 60 * time.Second

type cacheEntry[T any] struct {
	value   T
	fetched time.Time
}

// ConfigCache holds on-chain configuration keyed by contract address.
// Readers may see a value up to ttl old; writers that change the
// configuration call Invalidate.
type ConfigCache[T any] struct {
	mu      sync.RWMutex
	ttl     time.Duration
	entries map[string]cacheEntry[T]
	now     func() time.Time
}

// NewConfigCache returns an empty cache.
func NewConfigCache[T any](ttl time.Duration) *ConfigCache[T] {
	return &ConfigCache[T]{ttl: ttl, entries: make(map[string]cacheEntry[T]), now: time.Now}
}

// Get returns the cached value for address or calls load and stores it.
// Load errors are not cached.
func (c *ConfigCache[T]) Get(ctx context.Context, address string, load func(context.Context) (T, error)) (T, error) {
	c.mu.RLock()
	e, ok := c.entries[address]
	c.mu.RUnlock()
	if ok && c.now().Sub(e.fetched) < c.ttl {
		return e.value, nil
	}

	v, err := load(ctx)
	if err != nil {
		var zero T
		return zero, err
	}
	c.mu.Lock()
	c.entries[address] = cacheEntry[T]{value: v, fetched: c.now()}
	c.mu.Unlock()
	return v, nil
}

// Invalidate drops the entry for address.
func (c *ConfigCache[T]) Invalidate(address string) {
	c.mu.Lock()
	delete(c.entries, address)
	c.mu.Unlock()
}
