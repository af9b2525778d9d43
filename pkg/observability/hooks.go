// Package observability lets the binary observe discovery runs, gateway
// traffic and cache behavior without the libraries importing a logging or
// metrics backend.
//
// Libraries emit through the package-level accessors:
//
//	observability.Discovery().OnRunStart(ctx, runID, owner, repo)
//
// and main installs implementations once at startup:
//
//	observability.SetDiscoveryHooks(myHooks)
//
// Until then every accessor returns a no-op.
package observability

import (
	"context"
	"sync/atomic"
	"time"
)

// DiscoveryHooks receives orchestrator events.
type DiscoveryHooks interface {
	OnRunStart(ctx context.Context, runID, owner, repo string)
	OnRunComplete(ctx context.Context, runID, outcome string, found int, duration time.Duration, err error)
	OnPackagesEnumerated(ctx context.Context, owner, repo string, count int, duration time.Duration, err error)
	// OnBatchComplete fires after each batch; found is the number of new
	// repositories the batch contributed.
	OnBatchComplete(ctx context.Context, runID string, batch, processed, total, found int)
}

// CacheHooks receives cache events. keyType names the cache ("response",
// "conditional").
type CacheHooks interface {
	OnCacheHit(ctx context.Context, keyType string)
	OnCacheMiss(ctx context.Context, keyType string)
	// OnCacheSet reports the cache's entry count after the write.
	OnCacheSet(ctx context.Context, keyType string, size int)
}

// HTTPHooks receives gateway events for every outgoing request attempt.
type HTTPHooks interface {
	OnRequest(ctx context.Context, method, host, path string)
	OnResponse(ctx context.Context, method, host, path string, statusCode int, duration time.Duration)
	OnError(ctx context.Context, method, host, path string, err error)
	// OnRateLimited fires when the provider rejects a request for rate
	// reasons; wait is the delay before the retry, zero when giving up.
	OnRateLimited(ctx context.Context, method, host, path string, wait time.Duration)
}

type NoopDiscoveryHooks struct{}

func (NoopDiscoveryHooks) OnRunStart(context.Context, string, string, string) {}
func (NoopDiscoveryHooks) OnRunComplete(context.Context, string, string, int, time.Duration, error) {
}
func (NoopDiscoveryHooks) OnPackagesEnumerated(context.Context, string, string, int, time.Duration, error) {
}
func (NoopDiscoveryHooks) OnBatchComplete(context.Context, string, int, int, int, int) {}

type NoopCacheHooks struct{}

func (NoopCacheHooks) OnCacheHit(context.Context, string)      {}
func (NoopCacheHooks) OnCacheMiss(context.Context, string)     {}
func (NoopCacheHooks) OnCacheSet(context.Context, string, int) {}

type NoopHTTPHooks struct{}

func (NoopHTTPHooks) OnRequest(context.Context, string, string, string)                      {}
func (NoopHTTPHooks) OnResponse(context.Context, string, string, string, int, time.Duration) {}
func (NoopHTTPHooks) OnError(context.Context, string, string, string, error)                 {}
func (NoopHTTPHooks) OnRateLimited(context.Context, string, string, string, time.Duration)   {}

// registry is replaced wholesale on every Set call; readers never lock.
type registry struct {
	discovery DiscoveryHooks
	cache     CacheHooks
	http      HTTPHooks
}

var current atomic.Pointer[registry]

func init() { Reset() }

func update(fn func(r *registry)) {
	for {
		old := current.Load()
		next := *old
		fn(&next)
		if current.CompareAndSwap(old, &next) {
			return
		}
	}
}

// SetDiscoveryHooks installs h. A nil h is ignored.
func SetDiscoveryHooks(h DiscoveryHooks) {
	if h != nil {
		update(func(r *registry) { r.discovery = h })
	}
}

// SetCacheHooks installs h. A nil h is ignored.
func SetCacheHooks(h CacheHooks) {
	if h != nil {
		update(func(r *registry) { r.cache = h })
	}
}

// SetHTTPHooks installs h. A nil h is ignored.
func SetHTTPHooks(h HTTPHooks) {
	if h != nil {
		update(func(r *registry) { r.http = h })
	}
}

func Discovery() DiscoveryHooks { return current.Load().discovery }
func Cache() CacheHooks         { return current.Load().cache }
func HTTP() HTTPHooks           { return current.Load().http }

// Reset restores the no-op hooks.
func Reset() {
	current.Store(&registry{
		discovery: NoopDiscoveryHooks{},
		cache:     NoopCacheHooks{},
		http:      NoopHTTPHooks{},
	})
}
