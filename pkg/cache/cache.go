// Package cache provides the bounded, TTL-bound stores the request gateway
// uses to avoid repeating provider calls.
//
// Two stores share one shape and differ only in lifetime: the response
// cache holds payloads for a few minutes, the conditional-fetch cache holds
// validators (ETags) with their payloads for a day so a revalidation can be
// answered from memory when the provider replies 304.
//
// # Keys
//
// Entries are keyed by a request signature built with [Signature]: the
// upper-cased method, the path, and the query parameters sorted by name.
// Two requests that differ only in parameter order share an entry.
//
// # Implementations
//
//   - [LRU]: in-memory, size-bounded, least-recently-used eviction with a
//     per-entry TTL (hashicorp/golang-lru expirable)
//   - [Null]: a no-op store for tests or when caching is disabled
package cache

import (
	"context"
	"net/url"
	"strings"
)

// Store is a bounded key/value store whose entries expire.
//
// Implementations must be safe for concurrent use.
type Store[V any] interface {
	// Get returns the value stored under key and whether it was present and
	// not yet expired.
	Get(ctx context.Context, key string) (V, bool)

	// Set stores v under key, evicting the least recently used entry when
	// the store is full.
	Set(ctx context.Context, key string, v V)

	// Delete removes key. Missing keys are ignored.
	Delete(ctx context.Context, key string)

	// Len reports the number of live entries.
	Len() int

	// Purge removes every entry.
	Purge()
}

// Signature normalizes a request into a cache key.
// Parameters are sorted by name so ordering never splits the cache.
func Signature(method, path string, params map[string]string) string {
	var b strings.Builder
	b.WriteString(strings.ToUpper(method))
	b.WriteByte(' ')
	b.WriteString(path)
	if len(params) > 0 {
		q := make(url.Values, len(params))
		for k, v := range params {
			q.Set(k, v)
		}
		b.WriteByte('?')
		b.WriteString(q.Encode())
	}
	return b.String()
}
