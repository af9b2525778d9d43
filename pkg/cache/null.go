package cache

import "context"

// Null is a no-op store that never keeps anything.
// Useful for testing or when caching should be disabled.
type Null[V any] struct{}

// NewNull creates a null store.
func NewNull[V any]() Store[V] {
	return Null[V]{}
}

// Get always returns a miss.
func (Null[V]) Get(context.Context, string) (V, bool) {
	var zero V
	return zero, false
}

// Set does nothing.
func (Null[V]) Set(context.Context, string, V) {}

// Delete does nothing.
func (Null[V]) Delete(context.Context, string) {}

// Len is always zero.
func (Null[V]) Len() int { return 0 }

// Purge does nothing.
func (Null[V]) Purge() {}
