// Package integrations provides the request gateway every provider API call
// goes through.
//
// # Overview
//
// A discovery run issues hundreds of GitHub API calls: code searches,
// manifest fetches and repository lookups. [Gateway] makes those calls
// under the provider's limits instead of tripping them:
//
//   - Idempotent reads are served from a short-lived response cache
//   - Duplicate in-flight reads are coalesced into one call
//   - Stale reads are revalidated with If-None-Match; a 304 reuses the
//     stored payload
//   - A fixed cost-point window ([Points]) meters the secondary limit
//   - A weighted semaphore bounds concurrency
//   - A token-bucket limiter paces admissions
//   - Rate-limit rejections are retried after the provider's reset
//   - A circuit breaker stops calls after repeated transport failures
//
// # Budget
//
// [Budget] tracks the primary limits (core and search). Execute fails fast
// with RATE_LIMITED when the request's resource is known to be spent, but
// never reads the limits itself; [Gateway.HasRemainingBudget] does that on
// demand for callers that want to stop before starting new work.
//
// # Shared State
//
// Caches, [Budget] and [Points] are constructed once per process and passed
// in through [Options] so that every component sees the same view:
//
//	responses := cache.NewLRU[[]byte]("response", cache.DefaultSize, cache.DefaultResponseTTL)
//	gw := integrations.NewGateway(integrations.Options{
//	    Token:     os.Getenv("GITHUB_TOKEN"),
//	    Responses: responses,
//	    Logger:    logger,
//	})
//	resp, err := gw.Execute(ctx, integrations.Request{Path: "/repos/acme/widgets"})
//
// Tests inject a [Clock] so waits complete instantly.
//
// Typed endpoints live in the [github] subpackage.
//
// [github]: github.com/matzehuels/dependents/pkg/integrations/github
package integrations
