package github

import (
	"regexp"
	"strings"

	"github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/integrations"
)

var (
	// Accounts: up to 39 letters, digits or hyphens, no leading hyphen.
	ownerName = regexp.MustCompile(`^[a-zA-Z0-9][a-zA-Z0-9-]{0,38}$`)
	// Repositories: up to 100 letters, digits, dots, underscores or hyphens.
	repoName = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,100}$`)

	repoURLPattern = regexp.MustCompile(`^https?://(?:www\.)?github\.com/([^/]+)/([^/]+?)(?:\.git)?(?:[/?#]|$)`)
)

// ValidateRepoRef reports INVALID_INPUT unless owner and repo are names
// GitHub could have issued. Both end up in API paths and search qualifiers.
func ValidateRepoRef(owner, repo string) error {
	switch {
	case owner == "":
		return errors.New(errors.ErrCodeInvalidInput, "owner is required")
	case !ownerName.MatchString(owner):
		return errors.New(errors.ErrCodeInvalidInput, "invalid owner %q", owner)
	case repo == "":
		return errors.New(errors.ErrCodeInvalidInput, "repo is required")
	case repo == "." || repo == ".." || !repoName.MatchString(repo):
		return errors.New(errors.ErrCodeInvalidInput, "invalid repo %q", repo)
	}
	return nil
}

// ParseRepoRef parses a repository reference and validates both parts.
// Accepted forms are "owner/repo", "github.com/owner/repo" and any GitHub
// URL that normalizes to https://github.com/owner/repo[/...].
func ParseRepoRef(ref string) (owner, repo string, err error) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "github.com/") || strings.HasPrefix(ref, "www.github.com/") {
		ref = "https://" + ref
	}
	if strings.Contains(ref, "github.com") {
		m := repoURLPattern.FindStringSubmatch(integrations.NormalizeRepoURL(ref))
		if m == nil {
			return "", "", errors.New(errors.ErrCodeInvalidInput, "invalid GitHub URL: %q", ref)
		}
		owner, repo = m[1], m[2]
	} else {
		parts := strings.Split(strings.Trim(ref, "/"), "/")
		if len(parts) != 2 {
			return "", "", errors.New(errors.ErrCodeInvalidInput, "invalid repo format: use owner/repo")
		}
		owner, repo = parts[0], strings.TrimSuffix(parts[1], ".git")
	}
	if err := ValidateRepoRef(owner, repo); err != nil {
		return "", "", err
	}
	return owner, repo, nil
}
