package discovery

import (
	"context"
	stderrors "errors"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/dependents/pkg/deps/javascript"
	"github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/integrations"
	"github.com/matzehuels/dependents/pkg/integrations/github"
)

// Finder defaults.
const (
	// DefaultMaxPages caps code search paging; GitHub serves at most 1000
	// results per query.
	DefaultMaxPages = 10
	// ActiveWindow is how recently a dependent must have been updated to be
	// reported active.
	ActiveWindow = 180 * 24 * time.Hour
)

// Finder locates repositories whose package.json references a package.
type Finder struct {
	provider Provider
	logger   *log.Logger
	clock    integrations.Clock

	PageSize int
	MaxPages int
	Source   string // owner/repo excluded from results
}

// NewFinder creates a finder over provider with GitHub's maximum search
// page size and DefaultMaxPages. The clock decides IsActive; a nil clock
// or logger uses the system clock or log.Default.
func NewFinder(provider Provider, clock integrations.Clock, logger *log.Logger) *Finder {
	if logger == nil {
		logger = log.Default()
	}
	if clock == nil {
		clock = integrations.SystemClock
	}
	return &Finder{
		provider: provider,
		logger:   logger,
		clock:    clock,
		PageSize: github.MaxPerPage,
		MaxPages: DefaultMaxPages,
	}
}

// candidate is a repository surfaced by search, with every matched
// manifest path in page order.
type candidate struct {
	owner, repo string
	fullName    string
	paths       []string
}

// FindDependents returns the confirmed dependents of pkg in search order.
// Candidates that cannot be confirmed are logged and dropped. A
// RATE_LIMITED error ends the search early and is returned together with
// the dependents confirmed so far.
func (f *Finder) FindDependents(ctx context.Context, pkg string) ([]DependentRepository, error) {
	if err := errors.ValidatePackageName(pkg); err != nil {
		return nil, err
	}
	logger := f.logger.With("package", pkg)

	candidates, err := f.search(ctx, logger, pkg)
	if err != nil {
		return nil, err
	}
	logger.Debug("candidates", "count", len(candidates))

	var out []DependentRepository
	for _, c := range candidates {
		dep, err := f.confirm(ctx, c, pkg)
		switch {
		case err == nil && dep != nil:
			out = append(out, *dep)
		case err == nil:
			logger.Debug("candidate not confirmed", "repo", c.fullName)
		case stopsRun(err):
			return out, err
		default:
			logger.Warn("skipping candidate", "repo", c.fullName, "err", err)
		}
	}
	return out, nil
}

// queries returns the code search queries for pkg. Scoped names get a
// second query for the bare name, because code search tokenizes on "@" and
// "/" and can miss manifests that only mention the full scoped name.
func (f *Finder) queries(pkg string) []string {
	qs := []string{`"` + pkg + `" filename:package.json`}
	if javascript.IsScoped(pkg) {
		qs = append(qs, `"`+javascript.Unscoped(pkg)+`" filename:package.json`)
	}
	return qs
}

// search runs every query for pkg and collects candidate repositories in
// first-seen order. Candidates are keyed by lowercased full name and keep
// every manifest path that matched, and the source repository is excluded.
// A failing query is logged and skipped unless the failure must stop the
// run.
func (f *Finder) search(ctx context.Context, logger *log.Logger, pkg string) ([]*candidate, error) {
	var order []*candidate
	byName := make(map[string]*candidate)
	add := func(items []github.CodeItem) {
		for _, it := range items {
			name := it.Repository.FullName
			if name == "" || strings.EqualFold(name, f.Source) {
				continue
			}
			key := strings.ToLower(name)
			c, ok := byName[key]
			if !ok {
				owner, repo, _ := strings.Cut(name, "/")
				if it.Repository.Owner.Login != "" {
					owner = it.Repository.Owner.Login
				}
				if it.Repository.Name != "" {
					repo = it.Repository.Name
				}
				c = &candidate{owner: owner, repo: repo, fullName: name}
				byName[key] = c
				order = append(order, c)
			}
			c.paths = append(c.paths, it.Path)
		}
	}

	for _, q := range f.queries(pkg) {
		err := paginate(ctx, f.provider, q, f.PageSize, f.MaxPages, add)
		switch {
		case err == nil:
		case stopsRun(err):
			return nil, err
		default:
			logger.Warn("search failed", "query", q, "err", err)
		}
	}
	return order, nil
}

// confirm checks the candidate's manifests in order and returns the first
// match decorated with repository metadata, or nil when none matches.
func (f *Finder) confirm(ctx context.Context, c *candidate, pkg string) (*DependentRepository, error) {
	var (
		match javascript.Match
		ok    bool
	)
	for _, p := range c.paths {
		data, err := f.provider.GetContent(ctx, c.owner, c.repo, p)
		if err != nil {
			if stopsRun(err) {
				return nil, err
			}
			f.logger.Debug("manifest unavailable", "repo", c.fullName, "path", p, "err", err)
			continue
		}
		m, err := javascript.Parse(data)
		if err != nil {
			f.logger.Debug("manifest unreadable", "repo", c.fullName, "path", p, "err", err)
			continue
		}
		if match, ok = m.Match(pkg); ok {
			break
		}
	}
	if !ok {
		return nil, nil
	}

	meta, err := f.provider.GetRepo(ctx, c.owner, c.repo)
	if err != nil {
		return nil, err
	}
	if strings.EqualFold(meta.FullName, f.Source) {
		return nil, nil
	}
	return f.dependent(meta, c, pkg, match), nil
}

// dependent builds the reported record from repository metadata and the
// manifest match. LastUpdated prefers the last push over the last metadata
// update, and the URL falls back to the canonical github.com address.
func (f *Finder) dependent(meta *github.Repository, c *candidate, pkg string, m javascript.Match) *DependentRepository {
	name, fullName := meta.Name, meta.FullName
	if name == "" {
		name = c.repo
	}
	if fullName == "" {
		fullName = c.fullName
	}
	url := meta.HTMLURL
	if url == "" {
		url = "https://github.com/" + fullName
	}
	updated := meta.PushedAt
	if updated.IsZero() {
		updated = meta.UpdatedAt
	}
	return &DependentRepository{
		Name:              name,
		FullName:          fullName,
		Description:       meta.Description,
		URL:               url,
		LastUpdated:       updated,
		Stars:             meta.Stars,
		Forks:             meta.Forks,
		DependencyType:    m.Type,
		DependencyVersion: m.Version,
		IsWorkspace:       m.IsWorkspace,
		IsPrivate:         meta.Private,
		Package:           pkg,
		IsActive:          IsActive(updated, f.clock.Now()),
	}
}

// IsActive reports whether a repository updated at updated counts as
// active at now.
func IsActive(updated, now time.Time) bool {
	return !updated.IsZero() && now.Sub(updated) < ActiveWindow
}

// paginate walks the pages of a code search in order, handing each page's
// items to fn. It stops after a short page, once total_count is reached,
// or after maxPages.
func paginate(ctx context.Context, p Provider, query string, perPage, maxPages int, fn func([]github.CodeItem)) error {
	if perPage <= 0 || perPage > github.MaxPerPage {
		perPage = github.MaxPerPage
	}
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	for page := 1; page <= maxPages; page++ {
		res, err := p.SearchCode(ctx, query, page, perPage)
		if err != nil {
			return err
		}
		fn(res.Items)
		if len(res.Items) < perPage || page*perPage >= res.TotalCount {
			return nil
		}
	}
	return nil
}

// stopsRun reports errors that end the whole search rather than one
// candidate.
func stopsRun(err error) bool {
	return errors.Is(err, errors.ErrCodeRateLimited) ||
		errors.Is(err, errors.ErrCodeCanceled) ||
		stderrors.Is(err, context.Canceled) ||
		stderrors.Is(err, context.DeadlineExceeded)
}
