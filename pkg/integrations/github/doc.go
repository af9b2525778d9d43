// Package github provides typed access to the GitHub REST endpoints used by
// dependents discovery.
//
// # Overview
//
// [Client] wraps an [Executor] (normally an [integrations.Gateway]) and
// decodes the four endpoints discovery needs:
//
//   - [Client.GetRepo]: GET /repos/{owner}/{repo}
//   - [Client.SearchCode]: GET /search/code, one page at a time
//   - [Client.ListContents]: GET /repos/{owner}/{repo}/contents/{dir}
//   - [Client.GetContent]: GET /repos/{owner}/{repo}/contents/{file}, base64 decoded
//
// The rate-limit endpoint is read by the gateway itself.
//
// # Usage
//
//	gw := integrations.NewGateway(integrations.Options{Token: token})
//	client := github.NewClient(gw)
//
//	repo, err := client.GetRepo(ctx, "acme", "widgets")
//	if errors.Is(err, errors.ErrCodeRepositoryNotFound) {
//	    // ...
//	}
//
// # Authentication
//
// A GitHub personal access token is optional but recommended to avoid rate
// limits. Without a token, the client is limited to 60 requests/hour.
// With a token, the limit is 5000 requests/hour. Code search is limited
// separately.
//
// # Repository References
//
// [ParseRepoRef] accepts "owner/repo" as well as GitHub URLs in HTTPS, SSH
// or git forms, and validates both parts against GitHub's naming rules.
//
// [integrations.Gateway]: github.com/matzehuels/dependents/pkg/integrations.Gateway
package github
