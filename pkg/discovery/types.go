package discovery

import (
	"context"
	"time"

	"github.com/matzehuels/dependents/pkg/deps/javascript"
	"github.com/matzehuels/dependents/pkg/integrations"
	"github.com/matzehuels/dependents/pkg/integrations/github"
)

// Provider is the subset of the GitHub API discovery needs.
// [github.Client] implements it; tests substitute fakes.
type Provider interface {
	GetRepo(ctx context.Context, owner, repo string) (*github.Repository, error)
	SearchCode(ctx context.Context, query string, page, perPage int) (*github.CodeSearchResult, error)
	ListContents(ctx context.Context, owner, repo, path string) ([]github.ContentItem, error)
	GetContent(ctx context.Context, owner, repo, path string) ([]byte, error)
}

// Budget reports whether new work should start. [integrations.Gateway]
// implements it.
type Budget interface {
	HasRemainingBudget(ctx context.Context) bool
	Snapshot() integrations.BudgetSnapshot
}

// PackageKind is the ecosystem a package manifest belongs to.
type PackageKind string

// KindNPM marks a package described by a package.json manifest.
const KindNPM PackageKind = "npm"

// PackageDescriptor is one package published from a repository.
type PackageDescriptor struct {
	Name string      `json:"name"`
	Path string      `json:"path"`
	Kind PackageKind `json:"kind"`
}

// DependentRepository is a repository confirmed to depend on one of the
// selected packages. FullName is unique within a run.
type DependentRepository struct {
	Name              string                    `json:"name"`
	FullName          string                    `json:"full_name"`
	Description       string                    `json:"description,omitempty"`
	URL               string                    `json:"url"`
	LastUpdated       time.Time                 `json:"last_updated"`
	Stars             int                       `json:"stars"`
	Forks             int                       `json:"forks"`
	DependencyType    javascript.DependencyType `json:"dependency_type"`
	DependencyVersion string                    `json:"dependency_version"`
	IsWorkspace       bool                      `json:"is_workspace"`
	IsPrivate         bool                      `json:"is_private"`
	Package           string                    `json:"package"`
	IsActive          bool                      `json:"is_active"`
}

// Outcome classifies a finished run.
type Outcome string

// Outcomes.
const (
	OutcomeComplete Outcome = "complete"
	OutcomePartial  Outcome = "partial"
	OutcomeEmpty    Outcome = "empty"
)

// Reason explains a partial or empty outcome.
type Reason string

// Reasons.
const (
	ReasonNone               Reason = ""
	ReasonNoPackages         Reason = "no_packages"
	ReasonNoDependents       Reason = "no_dependents"
	ReasonRepositoryNotFound Reason = "repository_not_found"
	ReasonRateLimited        Reason = "rate_limited"
	ReasonCanceled           Reason = "canceled"
	ReasonFailed             Reason = "failed"
)

// Query selects what a dependents run searches for.
type Query struct {
	Owner    string
	Repo     string
	Packages []string // empty means every enumerated package
	Page     int      // 1-based
	PageSize int
}

// BatchProgress is reported after every batch and once more at the end.
// IsPartial never goes from true back to false within a run.
type BatchProgress struct {
	Data           []DependentRepository `json:"data"`
	ProcessedCount int                   `json:"processed_packages"`
	TotalCount     int                   `json:"total_packages"`
	IsPartial      bool                  `json:"is_partial"`
	Error          string                `json:"error,omitempty"`
	Done           bool                  `json:"done"`
}

// BatchResult is the outcome of a dependents run.
type BatchResult struct {
	RunID          string                `json:"run_id"`
	Data           []DependentRepository `json:"data"`
	Page           int                   `json:"page"`
	PageSize       int                   `json:"page_size"`
	TotalFound     int                   `json:"total_found"`
	HasNextPage    bool                  `json:"has_next_page"`
	IsPartial      bool                  `json:"is_partial"`
	Error          string                `json:"error,omitempty"`
	ProcessedCount int                   `json:"processed_packages"`
	TotalCount     int                   `json:"total_packages"`
	Outcome        Outcome               `json:"outcome"`
	Reason         Reason                `json:"reason,omitempty"`
	ResumeAt       *time.Time            `json:"resume_at,omitempty"`

	// Err is the error that ended the run early, if any.
	Err error `json:"-"`
}

// Progress converts the result into its terminal progress report.
func (r *BatchResult) Progress() BatchProgress {
	return BatchProgress{
		Data:           r.Data,
		ProcessedCount: r.ProcessedCount,
		TotalCount:     r.TotalCount,
		IsPartial:      r.IsPartial,
		Error:          r.Error,
		Done:           true,
	}
}

// State is a step of the orchestrator's run lifecycle.
type State string

// Run states. Aborted is absorbing.
const (
	StateInitializing        State = "initializing"
	StateEnumeratingPackages State = "enumerating_packages"
	StateBatchingDependents  State = "batching_dependents"
	StateCompleted           State = "completed"
	StateAborted             State = "aborted"
)
