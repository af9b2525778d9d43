package discovery

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/integrations"
	"github.com/matzehuels/dependents/pkg/integrations/github"
)

// fakeProvider serves repositories, directories, files and search results
// from memory.
type fakeProvider struct {
	mu sync.Mutex

	repos    map[string]*github.Repository // key: owner/repo
	dirs     map[string][]github.ContentItem
	files    map[string]string
	searches map[string][]github.CodeItem // key: query

	searchErr  map[string]error
	contentErr map[string]error
	repoErr    map[string]error

	searchCalls []string
}

func newFakeProvider() *fakeProvider {
	return &fakeProvider{
		repos:      make(map[string]*github.Repository),
		dirs:       make(map[string][]github.ContentItem),
		files:      make(map[string]string),
		searches:   make(map[string][]github.CodeItem),
		searchErr:  make(map[string]error),
		contentErr: make(map[string]error),
		repoErr:    make(map[string]error),
	}
}

func key(owner, repo, path string) string {
	return owner + "/" + repo + ":" + path
}

func (f *fakeProvider) addRepo(fullName string, stars int) {
	owner, name, _ := strings.Cut(fullName, "/")
	f.repos[fullName] = &github.Repository{
		Name:      name,
		FullName:  fullName,
		Owner:     github.Owner{Login: owner},
		HTMLURL:   "https://github.com/" + fullName,
		Stars:     stars,
		PushedAt:  time.Unix(fakeEpoch, 0).Add(-24 * time.Hour),
		UpdatedAt: time.Unix(fakeEpoch, 0).Add(-24 * time.Hour),
	}
}

// addPackage publishes a package from packages/<dir> of fullName.
func (f *fakeProvider) addPackage(fullName, dir, manifest string) {
	owner, name, _ := strings.Cut(fullName, "/")
	k := key(owner, name, "packages")
	f.dirs[k] = append(f.dirs[k], github.ContentItem{Name: dir, Path: "packages/" + dir, Type: "dir"})
	f.files[key(owner, name, "packages/"+dir+"/package.json")] = manifest
}

// addDependent makes fullName a search hit for query with the given
// package.json.
func (f *fakeProvider) addDependent(query, fullName string, stars int, manifest string) {
	if _, ok := f.repos[fullName]; !ok {
		f.addRepo(fullName, stars)
	}
	owner, name, _ := strings.Cut(fullName, "/")
	f.files[key(owner, name, "package.json")] = manifest
	f.searches[query] = append(f.searches[query], github.CodeItem{
		Name: "package.json",
		Path: "package.json",
		Repository: github.RepoStub{
			Name:     name,
			FullName: fullName,
			Owner:    github.Owner{Login: owner},
		},
	})
}

func (f *fakeProvider) GetRepo(_ context.Context, owner, repo string) (*github.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.repoErr[owner+"/"+repo]; err != nil {
		return nil, err
	}
	r, ok := f.repos[owner+"/"+repo]
	if !ok {
		return nil, errors.Wrap(errors.ErrCodeRepositoryNotFound, errors.New(errors.ErrCodeNotFound, "404"), "repository %s/%s not found", owner, repo)
	}
	cp := *r
	return &cp, nil
}

func (f *fakeProvider) SearchCode(ctx context.Context, query string, page, perPage int) (*github.CodeSearchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCanceled, err, "canceled")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.searchCalls = append(f.searchCalls, fmt.Sprintf("%s#%d", query, page))
	if err := f.searchErr[query]; err != nil {
		return nil, err
	}
	items := f.searches[query]
	start := min((page-1)*perPage, len(items))
	end := min(start+perPage, len(items))
	return &github.CodeSearchResult{TotalCount: len(items), Items: items[start:end]}, nil
}

func (f *fakeProvider) ListContents(_ context.Context, owner, repo, path string) ([]github.ContentItem, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	items, ok := f.dirs[key(owner, repo, path)]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "%s not found", path)
	}
	return items, nil
}

func (f *fakeProvider) GetContent(_ context.Context, owner, repo, path string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.contentErr[key(owner, repo, path)]; err != nil {
		return nil, err
	}
	s, ok := f.files[key(owner, repo, path)]
	if !ok {
		return nil, errors.New(errors.ErrCodeNotFound, "%s not found", path)
	}
	return []byte(s), nil
}

func (f *fakeProvider) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.searchCalls...)
}

// fakeBudget answers HasRemainingBudget from a script; calls past the end
// of the script answer true.
type fakeBudget struct {
	mu     sync.Mutex
	script []bool
	calls  int
	snap   integrations.BudgetSnapshot
}

func (b *fakeBudget) HasRemainingBudget(context.Context) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	i := b.calls
	b.calls++
	if i < len(b.script) {
		return b.script[i]
	}
	return true
}

func (b *fakeBudget) Snapshot() integrations.BudgetSnapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

const fakeEpoch = 1_700_000_000

type fakeClock struct {
	mu    sync.Mutex
	now   time.Time
	slept []time.Duration
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Unix(fakeEpoch, 0)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	return nil
}

func (c *fakeClock) Slept() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.slept...)
}

func quietLogger() *log.Logger {
	return log.New(io.Discard)
}

func query(name string) string {
	return `"` + name + `" filename:package.json`
}

func manifest(name string) string {
	return `{"name": "` + name + `", "version": "1.0.0"}`
}
