package discovery

import (
	"context"
	stderrors "errors"
	"reflect"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/integrations"
	"github.com/matzehuels/dependents/pkg/integrations/github"
	"github.com/matzehuels/dependents/pkg/observability"
)

// Orchestrator defaults.
const (
	DefaultBatchSize  = 3
	DefaultBatchDelay = 2 * time.Second
	DefaultPageSize   = 30

	// MaxPageSize bounds Query.PageSize; larger requests are clamped.
	MaxPageSize = 100
)

// Options configures an Orchestrator. Zero values take the defaults.
type Options struct {
	BatchSize  int
	BatchDelay time.Duration // negative disables the delay
	PageSize   int
	Clock      integrations.Clock
	Logger     *log.Logger
}

// withDefaults fills zero fields with the package defaults and clamps
// PageSize to MaxPageSize. A negative BatchDelay is kept as is and
// disables the pause between batches.
func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = DefaultBatchSize
	}
	if o.BatchDelay == 0 {
		o.BatchDelay = DefaultBatchDelay
	}
	if o.PageSize <= 0 {
		o.PageSize = DefaultPageSize
	}
	o.PageSize = min(o.PageSize, MaxPageSize)
	if o.Clock == nil {
		o.Clock = integrations.SystemClock
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	return o
}

// Orchestrator runs discovery: it enumerates a repository's packages and
// searches for their dependents in budget-checked batches.
type Orchestrator struct {
	provider   Provider
	budget     Budget
	enumerator *Enumerator
	finder     *Finder
	opts       Options
}

// NewOrchestrator wires an enumerator and finder over provider. The
// returned orchestrator is safe for concurrent runs.
//
// budget may be nil, in which case batches are never held back for budget
// reasons. A typed nil pointer (for example a nil *integrations.Gateway)
// is treated the same as an untyped nil.
func NewOrchestrator(provider Provider, budget Budget, opts Options) *Orchestrator {
	opts = opts.withDefaults()
	if isNil(budget) {
		budget = nil
	}
	return &Orchestrator{
		provider:   provider,
		budget:     budget,
		enumerator: NewEnumerator(provider, opts.Logger),
		finder:     NewFinder(provider, opts.Clock, opts.Logger),
		opts:       opts,
	}
}

// isNil reports whether b is nil or an interface holding a nil pointer.
func isNil(b Budget) bool {
	if b == nil {
		return true
	}
	v := reflect.ValueOf(b)
	return v.Kind() == reflect.Pointer && v.IsNil()
}

// Enumerator exposes the package enumerator for configuration.
func (o *Orchestrator) Enumerator() *Enumerator { return o.enumerator }

// Finder exposes the dependent finder for configuration.
func (o *Orchestrator) Finder() *Finder { return o.finder }

// DiscoverPackages verifies the repository exists and lists its packages.
func (o *Orchestrator) DiscoverPackages(ctx context.Context, owner, repo string) ([]PackageDescriptor, error) {
	if err := github.ValidateRepoRef(owner, repo); err != nil {
		return nil, err
	}
	if _, err := o.provider.GetRepo(ctx, owner, repo); err != nil {
		return nil, err
	}
	start := o.opts.Clock.Now()
	pkgs, err := o.enumerator.Discover(ctx, owner, repo)
	observability.Discovery().OnPackagesEnumerated(ctx, owner, repo, len(pkgs), o.opts.Clock.Now().Sub(start), err)
	return pkgs, err
}

// FindDependents runs a full discovery for q. It never returns nil; every
// failure is described by the result's Outcome, Reason and Err.
//
// If progress is non-nil it receives one report per batch and a terminal
// report equal to the result, and is closed before FindDependents returns.
// Sends block until received or ctx is done.
func (o *Orchestrator) FindDependents(ctx context.Context, q Query, progress chan<- BatchProgress) *BatchResult {
	if progress != nil {
		defer close(progress)
	}
	r := o.newRun(q, progress)
	observability.Discovery().OnRunStart(ctx, r.id, q.Owner, q.Repo)
	r.logger.Info("discovery started", "repo", q.Owner+"/"+q.Repo)

	res := r.execute(ctx)

	dur := o.opts.Clock.Now().Sub(r.started)
	observability.Discovery().OnRunComplete(ctx, r.id, string(res.Outcome), res.TotalFound, dur, res.Err)
	r.logger.Info("discovery finished",
		"outcome", res.Outcome, "reason", res.Reason, "found", res.TotalFound,
		"processed", res.ProcessedCount, "total", res.TotalCount, "duration", dur)
	r.emit(ctx, res.Progress())
	return res
}

// run is the state of one FindDependents call.
type run struct {
	o        *Orchestrator
	id       string
	q        Query
	logger   *log.Logger
	finder   Finder
	progress chan<- BatchProgress
	started  time.Time

	state     State
	merged    *merger
	processed int
	total     int
	partial   bool
	reason    Reason
	err       error
	resumeAt  time.Time
}

// newRun normalizes q (page 1 and the configured page size by default,
// page size clamped to MaxPageSize) and prepares a run with a fresh run ID.
// The run works on its own copy of the finder, so the source repository
// and the run-scoped logger never leak between concurrent runs.
func (o *Orchestrator) newRun(q Query, progress chan<- BatchProgress) *run {
	if q.Page <= 0 {
		q.Page = 1
	}
	if q.PageSize <= 0 {
		q.PageSize = o.opts.PageSize
	}
	q.PageSize = min(q.PageSize, MaxPageSize)
	id := uuid.NewString()
	logger := o.opts.Logger.With("run", id)
	finder := *o.finder
	finder.Source = q.Owner + "/" + q.Repo
	finder.logger = logger
	return &run{
		o:        o,
		id:       id,
		q:        q,
		logger:   logger,
		finder:   finder,
		progress: progress,
		started:  o.opts.Clock.Now(),
		state:    StateInitializing,
		merged:   newMerger(),
	}
}

// transition moves the run to s. Aborted is terminal: once a run has been
// aborted, later transitions are ignored so the final state reflects the
// first failure.
func (r *run) transition(s State) {
	if r.state == StateAborted {
		return
	}
	r.logger.Debug("state", "from", r.state, "to", s)
	r.state = s
}

// abort moves the run to Aborted. Partial runs stay partial.
func (r *run) abort(reason Reason, partial bool, err error) {
	r.transition(StateAborted)
	r.reason = reason
	r.partial = r.partial || partial
	r.err = err
}

// execute drives the run through its states and returns the final result.
//
// The repository is checked first; a missing repository ends the run as
// empty with reason repository_not_found. Packages are then enumerated and
// filtered by the query's selection. Each batch is preceded by the batch
// delay, a cancellation check and, when a Budget is configured, a budget
// check; a spent budget stops the run as partial before the batch starts,
// with ResumeAt taken from the budget snapshot.
func (r *run) execute(ctx context.Context) *BatchResult {
	if err := github.ValidateRepoRef(r.q.Owner, r.q.Repo); err != nil {
		r.abort(ReasonFailed, false, err)
		return r.result()
	}

	if _, err := r.o.provider.GetRepo(ctx, r.q.Owner, r.q.Repo); err != nil {
		switch {
		case errors.Is(err, errors.ErrCodeNotFound):
			r.abort(ReasonRepositoryNotFound, false, err)
		default:
			r.fail(err)
		}
		return r.result()
	}

	r.transition(StateEnumeratingPackages)
	start := r.o.opts.Clock.Now()
	pkgs, err := r.o.enumerator.Discover(ctx, r.q.Owner, r.q.Repo)
	observability.Discovery().OnPackagesEnumerated(ctx, r.q.Owner, r.q.Repo, len(pkgs), r.o.opts.Clock.Now().Sub(start), err)
	if err != nil {
		r.fail(err)
		return r.result()
	}
	pkgs = r.selected(pkgs)
	r.total = len(pkgs)
	if len(pkgs) == 0 {
		r.transition(StateCompleted)
		r.reason = ReasonNoPackages
		return r.result()
	}

	r.transition(StateBatchingDependents)
	size := r.o.opts.BatchSize
	for i, batch := 0, 0; i < len(pkgs); i, batch = i+size, batch+1 {
		if i > 0 && r.o.opts.BatchDelay > 0 {
			if err := r.o.opts.Clock.Sleep(ctx, r.o.opts.BatchDelay); err != nil {
				r.abort(ReasonCanceled, true, errors.Wrap(errors.ErrCodeCanceled, err, "discovery canceled"))
				return r.result()
			}
		}
		if err := ctx.Err(); err != nil {
			r.abort(ReasonCanceled, true, errors.Wrap(errors.ErrCodeCanceled, err, "discovery canceled"))
			return r.result()
		}
		if r.o.budget != nil && !r.o.budget.HasRemainingBudget(ctx) {
			snap := r.o.budget.Snapshot()
			r.resumeAt = snap.ResumeAt()
			r.abort(ReasonRateLimited, true, &errors.RateLimitedError{ResetAt: r.resumeAt})
			return r.result()
		}

		stop := r.runBatch(ctx, batch, pkgs[i:min(i+size, len(pkgs))])
		if stop {
			return r.result()
		}
	}
	r.transition(StateCompleted)
	return r.result()
}

// runBatch searches one batch concurrently and merges the results in batch
// order. It reports whether the run must stop.
//
// Every package in the batch runs to completion even when a sibling fails;
// there is no cancellation between them. Dependents returned alongside an
// error are still merged. A RATE_LIMITED or CANCELED package marks the run
// partial and stops it after this batch, while other per-package failures
// are logged and skipped. A snapshot is emitted once the batch is merged.
func (r *run) runBatch(ctx context.Context, batch int, pkgs []PackageDescriptor) bool {
	found := make([][]DependentRepository, len(pkgs))
	errs := make([]error, len(pkgs))

	var g errgroup.Group
	g.SetLimit(len(pkgs))
	for j, p := range pkgs {
		j, p := j, p
		g.Go(func() error {
			found[j], errs[j] = r.finder.FindDependents(ctx, p.Name)
			return nil
		})
	}
	_ = g.Wait()

	var stop error
	added := 0
	for j, p := range pkgs {
		added += r.merged.add(found[j])
		err := errs[j]
		switch {
		case err == nil:
			r.logger.Debug("package searched", "package", p.Name, "dependents", len(found[j]))
		case errors.Is(err, errors.ErrCodeRateLimited):
			r.logger.Warn("rate limited", "package", p.Name, "err", err)
			var rl *errors.RateLimitedError
			if stderrors.As(err, &rl) && rl.ResetAt.After(r.resumeAt) {
				r.resumeAt = rl.ResetAt
			}
			if stop == nil {
				stop = err
			}
		case errors.Is(err, errors.ErrCodeCanceled):
			if stop == nil {
				stop = err
			}
		default:
			r.logger.Warn("package search failed", "package", p.Name, "err", err)
		}
	}
	r.processed += len(pkgs)
	observability.Discovery().OnBatchComplete(ctx, r.id, batch, r.processed, r.total, added)
	r.logger.Debug("batch complete", "batch", batch, "processed", r.processed, "total", r.total, "new", added)

	if stop != nil {
		if errors.Is(stop, errors.ErrCodeRateLimited) {
			if r.resumeAt.IsZero() && r.o.budget != nil {
				r.resumeAt = r.o.budget.Snapshot().ResumeAt()
			}
			r.abort(ReasonRateLimited, true, stop)
		} else {
			r.abort(ReasonCanceled, true, stop)
		}
	}
	r.emit(ctx, r.snapshot())
	return stop != nil
}

// fail aborts the run for an error raised before batching started, while
// checking the repository or enumerating its packages. Rate limits keep
// the provider's reset as ResumeAt. Every such abort is partial, since the
// run could not look at all of the repository's packages.
func (r *run) fail(err error) {
	switch {
	case errors.Is(err, errors.ErrCodeRateLimited):
		var rl *errors.RateLimitedError
		if stderrors.As(err, &rl) {
			r.resumeAt = rl.ResetAt
		}
		r.abort(ReasonRateLimited, true, err)
	case errors.Is(err, errors.ErrCodeCanceled), stderrors.Is(err, context.Canceled), stderrors.Is(err, context.DeadlineExceeded):
		r.abort(ReasonCanceled, true, err)
	default:
		r.abort(ReasonFailed, true, err)
	}
}

// selected filters pkgs to the query's packages, keeping enumeration order.
// An empty selection keeps everything. Selected names the repository does
// not publish are logged and dropped; if none remain the run ends with
// reason no_packages.
func (r *run) selected(pkgs []PackageDescriptor) []PackageDescriptor {
	if len(r.q.Packages) == 0 {
		return pkgs
	}
	want := make(map[string]bool, len(r.q.Packages))
	for _, name := range r.q.Packages {
		want[name] = true
	}
	var out []PackageDescriptor
	for _, p := range pkgs {
		if want[p.Name] {
			out = append(out, p)
			delete(want, p.Name)
		}
	}
	for name := range want {
		r.logger.Warn("selected package not published by repository", "package", name)
	}
	return out
}

// errorMessage is the user-facing text of the run's error, or "" when the
// run has none.
func (r *run) errorMessage() string {
	if r.err == nil {
		return ""
	}
	return errors.UserMessage(r.err)
}

// snapshot is the intermediate progress report after a batch. Its Data is
// the requested page of everything merged so far, in final sort order, so
// a consumer can render it directly.
func (r *run) snapshot() BatchProgress {
	data, _ := paginateResults(r.merged.sorted(), r.q.Page, r.q.PageSize)
	return BatchProgress{
		Data:           data,
		ProcessedCount: r.processed,
		TotalCount:     r.total,
		IsPartial:      r.partial,
		Error:          r.errorMessage(),
	}
}

// result assembles the BatchResult from the run's current state.
//
// A partial run is always OutcomePartial. Otherwise the run is complete
// when it found anything without an error, and empty in every other case,
// with the reason defaulting to no_dependents.
func (r *run) result() *BatchResult {
	all := r.merged.sorted()
	data, next := paginateResults(all, r.q.Page, r.q.PageSize)
	res := &BatchResult{
		RunID:          r.id,
		Data:           data,
		Page:           r.q.Page,
		PageSize:       r.q.PageSize,
		TotalFound:     len(all),
		HasNextPage:    next,
		IsPartial:      r.partial,
		Error:          r.errorMessage(),
		ProcessedCount: r.processed,
		TotalCount:     r.total,
		Reason:         r.reason,
		Err:            r.err,
	}
	if !r.resumeAt.IsZero() {
		at := r.resumeAt
		res.ResumeAt = &at
	}
	switch {
	case r.partial:
		res.Outcome = OutcomePartial
	case len(all) > 0 && r.err == nil:
		res.Outcome = OutcomeComplete
	default:
		res.Outcome = OutcomeEmpty
		if res.Reason == ReasonNone {
			res.Reason = ReasonNoDependents
		}
	}
	return res
}

// emit sends p to the progress channel, if any. It blocks until the
// receiver takes it or ctx ends; reports are dropped after cancellation
// rather than blocking the run forever.
func (r *run) emit(ctx context.Context, p BatchProgress) {
	if r.progress == nil {
		return
	}
	select {
	case r.progress <- p:
	case <-ctx.Done():
	}
}
