package cli

import (
	"context"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/dependents/pkg/observability"
)

// logHooks reports gateway, cache and discovery events through the CLI
// logger. Per-request events are debug level.
type logHooks struct {
	logger *log.Logger
}

var (
	_ observability.DiscoveryHooks = logHooks{}
	_ observability.HTTPHooks      = logHooks{}
	_ observability.CacheHooks     = logHooks{}
)

// registerHooks installs logHooks for every hook category.
func registerHooks(logger *log.Logger) {
	h := logHooks{logger: logger}
	observability.SetDiscoveryHooks(h)
	observability.SetHTTPHooks(h)
	observability.SetCacheHooks(h)
}

func (h logHooks) OnRunStart(_ context.Context, runID, owner, repo string) {
	h.logger.Debug("run start", "run", runID, "repo", owner+"/"+repo)
}

func (h logHooks) OnRunComplete(_ context.Context, runID, outcome string, found int, d time.Duration, err error) {
	if err != nil {
		h.logger.Debug("run complete", "run", runID, "outcome", outcome, "found", found, "duration", d, "err", err)
		return
	}
	h.logger.Debug("run complete", "run", runID, "outcome", outcome, "found", found, "duration", d)
}

func (h logHooks) OnPackagesEnumerated(_ context.Context, owner, repo string, count int, d time.Duration, err error) {
	if err != nil {
		h.logger.Warn("package enumeration failed", "repo", owner+"/"+repo, "duration", d, "err", err)
		return
	}
	h.logger.Debug("packages enumerated", "repo", owner+"/"+repo, "count", count, "duration", d)
}

func (h logHooks) OnBatchComplete(_ context.Context, runID string, batch, processed, total, found int) {
	h.logger.Debug("batch", "run", runID, "batch", batch, "processed", processed, "total", total, "new", found)
}

func (h logHooks) OnRequest(_ context.Context, method, host, path string) {
	h.logger.Debug("→", "method", method, "host", host, "path", path)
}

func (h logHooks) OnResponse(_ context.Context, method, host, path string, status int, d time.Duration) {
	h.logger.Debug("←", "method", method, "path", path, "status", status, "duration", d.Round(time.Millisecond))
}

func (h logHooks) OnError(_ context.Context, method, host, path string, err error) {
	h.logger.Debug("request error", "method", method, "path", path, "err", err)
}

func (h logHooks) OnRateLimited(_ context.Context, method, host, path string, wait time.Duration) {
	h.logger.Warn("rate limited", "path", path, "retry_in", wait.Round(time.Second))
}

func (h logHooks) OnCacheHit(_ context.Context, keyType string) {
	h.logger.Debug("cache hit", "cache", keyType)
}

func (h logHooks) OnCacheMiss(_ context.Context, keyType string) {
	h.logger.Debug("cache miss", "cache", keyType)
}

func (h logHooks) OnCacheSet(_ context.Context, keyType string, size int) {
	h.logger.Debug("cache set", "cache", keyType, "entries", size)
}
