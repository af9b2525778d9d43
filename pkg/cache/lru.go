package cache

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/matzehuels/dependents/pkg/observability"
)

// Default sizes shared by the gateway's two caches.
const (
	DefaultSize           = 1000
	DefaultResponseTTL    = 5 * time.Minute
	DefaultConditionalTTL = 24 * time.Hour
)

// LRU is an in-memory [Store] with least-recently-used eviction and a
// fixed time-to-live per entry.
type LRU[V any] struct {
	name string
	lru  *expirable.LRU[string, V]
}

// NewLRU creates a store holding at most size entries for ttl each.
// The name labels cache hook events ("response", "conditional").
// A non-positive size falls back to [DefaultSize].
func NewLRU[V any](name string, size int, ttl time.Duration) *LRU[V] {
	if size <= 0 {
		size = DefaultSize
	}
	return &LRU[V]{
		name: name,
		lru:  expirable.NewLRU[string, V](size, nil, ttl),
	}
}

// Get returns the live value for key.
func (c *LRU[V]) Get(ctx context.Context, key string) (V, bool) {
	v, ok := c.lru.Get(key)
	if ok {
		observability.Cache().OnCacheHit(ctx, c.name)
	} else {
		observability.Cache().OnCacheMiss(ctx, c.name)
	}
	return v, ok
}

// Set stores v under key.
func (c *LRU[V]) Set(ctx context.Context, key string, v V) {
	c.lru.Add(key, v)
	observability.Cache().OnCacheSet(ctx, c.name, c.lru.Len())
}

// Delete removes key.
func (c *LRU[V]) Delete(_ context.Context, key string) {
	c.lru.Remove(key)
}

// Len reports the number of entries, including expired ones not yet swept.
func (c *LRU[V]) Len() int {
	return c.lru.Len()
}

// Purge removes every entry.
func (c *LRU[V]) Purge() {
	c.lru.Purge()
}

// Ensure LRU implements Store.
var _ Store[[]byte] = (*LRU[[]byte])(nil)
