package discovery

import (
	"cmp"
	"context"
	"path"
	"slices"

	"github.com/charmbracelet/log"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/dependents/pkg/deps/javascript"
	"github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/integrations/github"
)

// Mode selects how the enumerator locates package manifests.
type Mode int

const (
	// ModeContents lists the packages directory through the contents API.
	ModeContents Mode = iota
	// ModeSearch finds manifests with a code search scoped to the repository.
	ModeSearch
)

// Enumerator defaults.
const (
	DefaultPackagesDir = "packages"
	manifestName       = "package.json"
	fetchWorkers       = 4
)

// Enumerator lists the packages a repository publishes.
type Enumerator struct {
	provider Provider
	logger   *log.Logger

	Mode        Mode
	Dir         string // directory holding one package per subdirectory
	IncludeRoot bool   // also consider the repository's root package.json
}

// NewEnumerator creates an enumerator in ModeContents over provider.
func NewEnumerator(provider Provider, logger *log.Logger) *Enumerator {
	if logger == nil {
		logger = log.Default()
	}
	return &Enumerator{provider: provider, logger: logger, Dir: DefaultPackagesDir}
}

// Discover returns the repository's packages sorted by manifest path, with
// duplicate names removed. A missing packages directory yields an empty
// slice. Manifests that are missing or carry no name are skipped.
func (e *Enumerator) Discover(ctx context.Context, owner, repo string) ([]PackageDescriptor, error) {
	var (
		paths []string
		err   error
	)
	switch e.Mode {
	case ModeSearch:
		paths, err = e.searchManifests(ctx, owner, repo)
	default:
		paths, err = e.listManifests(ctx, owner, repo)
	}
	if err != nil {
		return nil, err
	}
	if e.IncludeRoot {
		paths = append(paths, manifestName)
	}

	found := make([]*PackageDescriptor, len(paths))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(fetchWorkers)
	for i, p := range paths {
		i, p := i, p
		g.Go(func() error {
			d, err := e.describe(gctx, owner, repo, p)
			if err != nil {
				return err
			}
			found[i] = d
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var pkgs []PackageDescriptor
	for _, d := range found {
		if d != nil {
			pkgs = append(pkgs, *d)
		}
	}
	slices.SortStableFunc(pkgs, func(a, b PackageDescriptor) int { return cmp.Compare(a.Path, b.Path) })

	seen := make(map[string]bool, len(pkgs))
	out := pkgs[:0]
	for _, p := range pkgs {
		if seen[p.Name] {
			e.logger.Debug("duplicate package name", "package", p.Name, "path", p.Path)
			continue
		}
		seen[p.Name] = true
		out = append(out, p)
	}
	return out, nil
}

// listManifests lists the packages directory through the contents API and
// returns one manifest path per subdirectory, plus any manifest lying
// directly in it. A missing directory, or a path that is a file, yields no
// packages rather than an error.
func (e *Enumerator) listManifests(ctx context.Context, owner, repo string) ([]string, error) {
	dir := e.Dir
	if dir == "" {
		dir = DefaultPackagesDir
	}
	items, err := e.provider.ListContents(ctx, owner, repo, dir)
	switch {
	case errors.Is(err, errors.ErrCodeNotFound):
		e.logger.Debug("no packages directory", "repo", owner+"/"+repo, "dir", dir)
		return nil, nil
	case errors.Is(err, errors.ErrCodeInvalidPath):
		e.logger.Warn("packages path is not a directory", "repo", owner+"/"+repo, "dir", dir)
		return nil, nil
	case err != nil:
		return nil, err
	}

	var paths []string
	for _, it := range items {
		switch {
		case it.Type == "dir":
			paths = append(paths, path.Join(it.Path, manifestName))
		case it.Type == "file" && it.Name == manifestName:
			paths = append(paths, it.Path)
		}
	}
	return paths, nil
}

// searchManifests finds manifests under the packages directory with code
// search instead of listing it. This costs search budget rather than core
// budget and also finds manifests nested deeper than one level, but it
// only sees files GitHub has indexed.
func (e *Enumerator) searchManifests(ctx context.Context, owner, repo string) ([]string, error) {
	dir := e.Dir
	if dir == "" {
		dir = DefaultPackagesDir
	}
	query := "repo:" + owner + "/" + repo + " filename:" + manifestName + " path:/" + dir + "/"
	var paths []string
	err := paginate(ctx, e.provider, query, github.MaxPerPage, DefaultMaxPages, func(items []github.CodeItem) {
		for _, it := range items {
			paths = append(paths, it.Path)
		}
	})
	if err != nil {
		return nil, err
	}
	return paths, nil
}

// describe fetches and parses one manifest. It returns nil without error
// for manifests that should be skipped.
func (e *Enumerator) describe(ctx context.Context, owner, repo, p string) (*PackageDescriptor, error) {
	data, err := e.provider.GetContent(ctx, owner, repo, p)
	switch {
	case errors.Is(err, errors.ErrCodeNotFound), errors.Is(err, errors.ErrCodeInvalidPath):
		e.logger.Debug("manifest missing", "path", p)
		return nil, nil
	case errors.Is(err, errors.ErrCodeParseFailure):
		e.logger.Warn("skipping unreadable manifest", "path", p, "err", err)
		return nil, nil
	case err != nil:
		return nil, err
	}

	m, err := javascript.Parse(data)
	if err != nil {
		e.logger.Warn("skipping malformed manifest", "path", p, "err", err)
		return nil, nil
	}
	if p == manifestName && m.Private() {
		e.logger.Debug("root manifest is private", "repo", owner+"/"+repo)
		return nil, nil
	}
	name := m.Name()
	if name == "" {
		e.logger.Warn("skipping manifest without name", "path", p)
		return nil, nil
	}
	if err := errors.ValidatePackageName(name); err != nil {
		e.logger.Warn("skipping manifest with unusable name", "path", p, "name", name, "err", err)
		return nil, nil
	}
	return &PackageDescriptor{Name: name, Path: p, Kind: KindNPM}, nil
}
