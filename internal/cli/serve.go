package cli

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"math"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"

	"github.com/matzehuels/dependents/pkg/buildinfo"
	"github.com/matzehuels/dependents/pkg/discovery"
	"github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/integrations"
	"github.com/matzehuels/dependents/pkg/integrations/github"
)

const shutdownTimeout = 10 * time.Second

// service is what the HTTP API needs from the discovery stack.
type service interface {
	DiscoverPackages(ctx context.Context, owner, repo string) ([]discovery.PackageDescriptor, error)
	FindDependents(ctx context.Context, q discovery.Query, progress chan<- discovery.BatchProgress) *discovery.BatchResult
	Limits(ctx context.Context) (integrations.BudgetSnapshot, error)
	Healthy() bool
}

// serveCommand creates the serve command.
func (c *CLI) serveCommand() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the discovery API over HTTP",
		Long: `Run a JSON HTTP API backed by one shared gateway, so every request draws
from the same caches and API budget.

Endpoints:
  GET  /api/packages?owner=&repo=
  POST /api/github-packages          {"owner": "...", "repo": "..."}
  GET  /api/dependents?owner=&repo=&package=&page=&per_page=&stream=1
  GET  /api/ratelimit
  GET  /healthz`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config, :8080)")

	return cmd
}

func (c *CLI) runServe(ctx context.Context, addr string) error {
	eng, cfg, err := c.newEngine(ctx)
	if err != nil {
		return err
	}
	if addr == "" {
		addr = cfg.Server.Addr
	}

	srv := &http.Server{
		Addr:              addr,
		Handler:           newRouter(eng, c.Logger, cfg.Server.RequestTimeout.Duration),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		c.Logger.Info("listening", "addr", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}

	c.Logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !stderrors.Is(err, http.ErrServerClosed) {
		return err
	}
	return ctx.Err()
}

// =============================================================================
// Router
// =============================================================================

type server struct {
	svc service
}

// newRouter builds the API router. A non-positive timeout disables the
// per-request deadline.
func newRouter(svc service, logger *log.Logger, timeout time.Duration) http.Handler {
	s := &server{svc: svc}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(requestLogger(logger))
	r.Use(middleware.Recoverer)
	if timeout > 0 {
		r.Use(middleware.Timeout(timeout))
	}

	r.Get("/healthz", s.health)
	r.Route("/api", func(r chi.Router) {
		r.Get("/packages", s.packages)
		r.Post("/github-packages", s.githubPackages)
		r.Get("/dependents", s.dependents)
		r.Get("/ratelimit", s.rateLimit)
	})
	return r
}

// requestLogger logs every request and attaches a request-scoped logger to
// the context.
func requestLogger(logger *log.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			l := logger.With("request", middleware.GetReqID(r.Context()))
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			start := time.Now()
			next.ServeHTTP(ww, r.WithContext(withLogger(r.Context(), l)))
			l.Info("request",
				"method", r.Method, "path", r.URL.Path,
				"status", ww.Status(), "bytes", ww.BytesWritten(),
				"duration", time.Since(start).Round(time.Millisecond))
		})
	}
}

// =============================================================================
// Handlers
// =============================================================================

type packagesResponse struct {
	Packages []discovery.PackageDescriptor `json:"packages"`
}

type repoRequest struct {
	Owner string `json:"owner"`
	Repo  string `json:"repo"`
}

type errorResponse struct {
	Error string      `json:"error"`
	Code  errors.Code `json:"code,omitempty"`
}

func (s *server) health(w http.ResponseWriter, r *http.Request) {
	if !s.svc.Healthy() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "version": buildinfo.Version})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": buildinfo.Version})
}

func (s *server) packages(w http.ResponseWriter, r *http.Request) {
	owner, repo, err := repoFromQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	s.listPackages(w, r, owner, repo)
}

func (s *server) githubPackages(w http.ResponseWriter, r *http.Request) {
	var req repoRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		writeError(w, r, errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid request body"))
		return
	}
	if err := github.ValidateRepoRef(req.Owner, req.Repo); err != nil {
		writeError(w, r, err)
		return
	}
	s.listPackages(w, r, req.Owner, req.Repo)
}

func (s *server) listPackages(w http.ResponseWriter, r *http.Request, owner, repo string) {
	pkgs, err := s.svc.DiscoverPackages(r.Context(), owner, repo)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if pkgs == nil {
		pkgs = []discovery.PackageDescriptor{}
	}
	writeJSON(w, http.StatusOK, packagesResponse{Packages: pkgs})
}

func (s *server) dependents(w http.ResponseWriter, r *http.Request) {
	q, err := parseDependentsQuery(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	if r.URL.Query().Get("stream") != "1" {
		writeJSON(w, http.StatusOK, s.svc.FindDependents(r.Context(), q, nil))
		return
	}

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(http.StatusOK)
	rc := http.NewResponseController(w)
	enc := json.NewEncoder(w)

	ch := make(chan discovery.BatchProgress)
	resc := make(chan *discovery.BatchResult, 1)
	go func() {
		resc <- s.svc.FindDependents(r.Context(), q, ch)
	}()
	for p := range ch {
		if err := enc.Encode(p); err != nil {
			loggerFromContext(r.Context()).Debug("stream write failed", "err", err)
			continue
		}
		_ = rc.Flush()
	}
	_ = enc.Encode(<-resc)
	_ = rc.Flush()
}

func (s *server) rateLimit(w http.ResponseWriter, r *http.Request) {
	snap, err := s.svc.Limits(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// =============================================================================
// Helpers
// =============================================================================

func repoFromQuery(r *http.Request) (owner, repo string, err error) {
	v := r.URL.Query()
	owner, repo = v.Get("owner"), v.Get("repo")
	if owner == "" && repo != "" {
		return github.ParseRepoRef(repo)
	}
	if err := github.ValidateRepoRef(owner, repo); err != nil {
		return "", "", err
	}
	return owner, repo, nil
}

func parseDependentsQuery(r *http.Request) (discovery.Query, error) {
	owner, repo, err := repoFromQuery(r)
	if err != nil {
		return discovery.Query{}, err
	}
	v := r.URL.Query()
	q := discovery.Query{Owner: owner, Repo: repo, Packages: v["package"]}
	for _, p := range q.Packages {
		if err := errors.ValidateNpmPackageName(p); err != nil {
			return discovery.Query{}, err
		}
	}
	if q.Page, err = intParam(v.Get("page"), "page", math.MaxInt); err != nil {
		return discovery.Query{}, err
	}
	if q.PageSize, err = intParam(v.Get("per_page"), "per_page", discovery.MaxPageSize); err != nil {
		return discovery.Query{}, err
	}
	return q, nil
}

// intParam parses an optional positive integer query parameter. An empty
// value yields 0 so the orchestrator default applies; values outside
// [1, limit] are rejected as INVALID_INPUT before any discovery work starts.
func intParam(s, name string, limit int) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, errors.New(errors.ErrCodeInvalidInput, "%s must be a positive integer", name)
	}
	if n > limit {
		return 0, errors.New(errors.ErrCodeInvalidInput, "%s must be at most %d", name, limit)
	}
	return n, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := errors.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		loggerFromContext(r.Context()).Error("request failed", "err", err)
	}
	var rl *errors.RateLimitedError
	if stderrors.As(err, &rl) && !rl.ResetAt.IsZero() {
		w.Header().Set("Retry-After", strconv.Itoa(max(int(time.Until(rl.ResetAt).Seconds()), 1)))
	}
	writeJSON(w, status, errorResponse{Error: errors.UserMessage(err), Code: errors.GetCode(err)})
}
