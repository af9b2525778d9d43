// Package discovery finds the GitHub repositories that depend on the npm
// packages a repository publishes.
//
// A run has three stages:
//
//  1. [Enumerator] lists the repository's packages (packages/*/package.json,
//     optionally the root manifest).
//  2. [Finder] runs a code search per package and confirms each candidate
//     by reading its package.json with [javascript.Manifest.Match].
//  3. [Orchestrator] drives the Finder over the packages in small batches,
//     checking the provider budget before each batch, and merges, sorts
//     and pages the results.
//
// Runs that hit the rate limit or are canceled return what they found so
// far with IsPartial set. Progress can be observed through a channel:
//
//	ch := make(chan discovery.BatchProgress)
//	go func() {
//	    for p := range ch {
//	        fmt.Printf("%d/%d packages\n", p.ProcessedCount, p.TotalCount)
//	    }
//	}()
//	res := o.FindDependents(ctx, discovery.Query{Owner: "acme", Repo: "widgets"}, ch)

package discovery
