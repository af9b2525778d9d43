package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/charmbracelet/log"

	"github.com/matzehuels/dependents/pkg/discovery"
	"github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/integrations"
)

type fakeService struct {
	pkgs     []discovery.PackageDescriptor
	pkgErr   error
	result   *discovery.BatchResult
	progress []discovery.BatchProgress
	limits   integrations.BudgetSnapshot
	healthy  bool

	mu        sync.Mutex
	lastQuery discovery.Query
}

func (f *fakeService) query() discovery.Query {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastQuery
}

func (f *fakeService) DiscoverPackages(context.Context, string, string) ([]discovery.PackageDescriptor, error) {
	return f.pkgs, f.pkgErr
}

func (f *fakeService) FindDependents(_ context.Context, q discovery.Query, ch chan<- discovery.BatchProgress) *discovery.BatchResult {
	f.mu.Lock()
	f.lastQuery = q
	f.mu.Unlock()
	if ch != nil {
		for _, p := range f.progress {
			ch <- p
		}
		ch <- f.result.Progress()
		close(ch)
	}
	return f.result
}

func (f *fakeService) Limits(context.Context) (integrations.BudgetSnapshot, error) {
	return f.limits, nil
}

func (f *fakeService) Healthy() bool { return f.healthy }

func newTestServer(t *testing.T, svc service) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(newRouter(svc, log.New(io.Discard), time.Minute))
	t.Cleanup(srv.Close)
	return srv
}

func decodeBody(t *testing.T, resp *http.Response, v any) {
	t.Helper()
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decode body: %v", err)
	}
}

func TestServePackages(t *testing.T) {
	svc := &fakeService{pkgs: []discovery.PackageDescriptor{{Name: "widgets-core", Path: "packages/widgets-core/package.json", Kind: discovery.KindNPM}}}
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/api/packages?owner=acme&repo=widgets")
	if err != nil {
		t.Fatal(err)
	}
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if resp.Header.Get("Content-Type") != "application/json" {
		t.Errorf("content type = %q", resp.Header.Get("Content-Type"))
	}
	var body packagesResponse
	decodeBody(t, resp, &body)
	if len(body.Packages) != 1 || body.Packages[0].Name != "widgets-core" {
		t.Errorf("packages = %+v", body.Packages)
	}
}

func TestServePackagesEmptyList(t *testing.T) {
	srv := newTestServer(t, &fakeService{})

	resp, err := http.Get(srv.URL + "/api/packages?repo=https://github.com/acme/widgets")
	if err != nil {
		t.Fatal(err)
	}
	b, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || !strings.Contains(string(b), `"packages":[]`) {
		t.Errorf("status = %d body = %s", resp.StatusCode, b)
	}
}

func TestServePackagesErrors(t *testing.T) {
	tests := []struct {
		name   string
		url    string
		err    error
		status int
		code   errors.Code
	}{
		{"missing params", "/api/packages", nil, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"bad owner", "/api/packages?owner=-x&repo=y", nil, http.StatusBadRequest, errors.ErrCodeInvalidInput},
		{"not found", "/api/packages?owner=acme&repo=gone",
			errors.New(errors.ErrCodeRepositoryNotFound, "repository acme/gone not found"), http.StatusNotFound, errors.ErrCodeRepositoryNotFound},
		{"rate limited", "/api/packages?owner=acme&repo=widgets",
			&errors.RateLimitedError{Resource: "core"}, http.StatusTooManyRequests, errors.ErrCodeRateLimited},
		{"network", "/api/packages?owner=acme&repo=widgets",
			errors.New(errors.ErrCodeNetwork, "bad gateway"), http.StatusBadGateway, errors.ErrCodeNetwork},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, &fakeService{pkgErr: tt.err})
			resp, err := http.Get(srv.URL + tt.url)
			if err != nil {
				t.Fatal(err)
			}
			if resp.StatusCode != tt.status {
				t.Errorf("status = %d, want %d", resp.StatusCode, tt.status)
			}
			var body errorResponse
			decodeBody(t, resp, &body)
			if body.Code != tt.code || body.Error == "" {
				t.Errorf("body = %+v, want code %s", body, tt.code)
			}
		})
	}
}

func TestServeGitHubPackages(t *testing.T) {
	svc := &fakeService{pkgs: []discovery.PackageDescriptor{{Name: "a"}, {Name: "b"}}}
	srv := newTestServer(t, svc)

	resp, err := http.Post(srv.URL+"/api/github-packages", "application/json", strings.NewReader(`{"owner":"acme","repo":"widgets"}`))
	if err != nil {
		t.Fatal(err)
	}
	var body packagesResponse
	decodeBody(t, resp, &body)
	if resp.StatusCode != http.StatusOK || len(body.Packages) != 2 {
		t.Errorf("status = %d packages = %+v", resp.StatusCode, body.Packages)
	}

	resp, err = http.Post(srv.URL+"/api/github-packages", "application/json", strings.NewReader(`{"owner":`))
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("malformed body: status = %d, want 400", resp.StatusCode)
	}
}

func TestServeDependents(t *testing.T) {
	svc := &fakeService{result: &discovery.BatchResult{
		Data:        []discovery.DependentRepository{{FullName: "org/repoB", Stars: 80}},
		Page:        2,
		PageSize:    10,
		HasNextPage: true,
		Outcome:     discovery.OutcomeComplete,
	}}
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/api/dependents?owner=acme&repo=widgets&package=widgets-core&package=@acme/ui&page=2&per_page=10")
	if err != nil {
		t.Fatal(err)
	}
	var res discovery.BatchResult
	decodeBody(t, resp, &res)
	if resp.StatusCode != http.StatusOK || len(res.Data) != 1 || !res.HasNextPage {
		t.Errorf("status = %d result = %+v", resp.StatusCode, res)
	}
	q := svc.query()
	if q.Owner != "acme" || q.Repo != "widgets" || q.Page != 2 || q.PageSize != 10 || len(q.Packages) != 2 || q.Packages[1] != "@acme/ui" {
		t.Errorf("query = %+v", q)
	}

	resp, err = http.Get(srv.URL + "/api/dependents?owner=acme&repo=widgets&page=zero")
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("bad page: status = %d, want 400", resp.StatusCode)
	}
}

func TestServeDependentsRejectsPagingParams(t *testing.T) {
	for _, params := range []string{
		"page=0",
		"page=-3",
		"page=99999999999999999999999",
		"per_page=0",
		"per_page=101",
		"per_page=9223372036854775807",
	} {
		t.Run(params, func(t *testing.T) {
			svc := &fakeService{result: &discovery.BatchResult{Outcome: discovery.OutcomeComplete}}
			srv := newTestServer(t, svc)

			resp, err := http.Get(srv.URL + "/api/dependents?owner=acme&repo=widgets&" + params)
			if err != nil {
				t.Fatal(err)
			}
			resp.Body.Close()
			if resp.StatusCode != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", resp.StatusCode)
			}
			if q := svc.query(); q.Owner != "" {
				t.Errorf("discovery ran with %+v", q)
			}
		})
	}
}

func TestServeDependentsPartialIsOK(t *testing.T) {
	reset := time.Unix(1_800_000_000, 0).UTC()
	svc := &fakeService{result: &discovery.BatchResult{
		Data:      []discovery.DependentRepository{},
		IsPartial: true,
		Outcome:   discovery.OutcomePartial,
		Reason:    discovery.ReasonRateLimited,
		ResumeAt:  &reset,
		Error:     "GitHub API rate limit exceeded",
	}}
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/api/dependents?owner=acme&repo=widgets")
	if err != nil {
		t.Fatal(err)
	}
	var res discovery.BatchResult
	decodeBody(t, resp, &res)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if !res.IsPartial || res.Reason != discovery.ReasonRateLimited || res.ResumeAt == nil || !res.ResumeAt.Equal(reset) {
		t.Errorf("result = %+v", res)
	}
}

func TestServeDependentsStream(t *testing.T) {
	svc := &fakeService{
		progress: []discovery.BatchProgress{{ProcessedCount: 3, TotalCount: 6}},
		result: &discovery.BatchResult{
			Data:           []discovery.DependentRepository{{FullName: "org/a"}},
			ProcessedCount: 6,
			TotalCount:     6,
			Outcome:        discovery.OutcomeComplete,
		},
	}
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/api/dependents?owner=acme&repo=widgets&stream=1")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "application/x-ndjson" {
		t.Errorf("content type = %q", ct)
	}

	var lines []string
	sc := bufio.NewScanner(resp.Body)
	for sc.Scan() {
		lines = append(lines, sc.Text())
	}
	if len(lines) != 3 {
		t.Fatalf("got %d lines, want 3:\n%s", len(lines), strings.Join(lines, "\n"))
	}

	var first, terminal discovery.BatchProgress
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil || first.ProcessedCount != 3 || first.Done {
		t.Errorf("first line = %s (%v)", lines[0], err)
	}
	if err := json.Unmarshal([]byte(lines[1]), &terminal); err != nil || !terminal.Done || terminal.ProcessedCount != 6 {
		t.Errorf("terminal progress = %s (%v)", lines[1], err)
	}
	var res discovery.BatchResult
	if err := json.Unmarshal([]byte(lines[2]), &res); err != nil || res.Outcome != discovery.OutcomeComplete {
		t.Errorf("result line = %s (%v)", lines[2], err)
	}
}

func TestServeRateLimit(t *testing.T) {
	svc := &fakeService{limits: integrations.BudgetSnapshot{
		Core:        integrations.Limit{Limit: 5000, Remaining: 4999, Known: true},
		PointsLimit: 900,
	}}
	srv := newTestServer(t, svc)

	resp, err := http.Get(srv.URL + "/api/ratelimit")
	if err != nil {
		t.Fatal(err)
	}
	var snap integrations.BudgetSnapshot
	decodeBody(t, resp, &snap)
	if snap.Core.Remaining != 4999 || snap.PointsLimit != 900 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestServeHealth(t *testing.T) {
	tests := []struct {
		healthy bool
		status  int
	}{
		{true, http.StatusOK},
		{false, http.StatusServiceUnavailable},
	}
	for _, tt := range tests {
		srv := newTestServer(t, &fakeService{healthy: tt.healthy})
		resp, err := http.Get(srv.URL + "/healthz")
		if err != nil {
			t.Fatal(err)
		}
		resp.Body.Close()
		if resp.StatusCode != tt.status {
			t.Errorf("healthy=%v: status = %d, want %d", tt.healthy, resp.StatusCode, tt.status)
		}
	}
}
