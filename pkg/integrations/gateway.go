package integrations

import (
	"bytes"
	"context"
	stderrors "errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenk/backoff"
	"github.com/charmbracelet/log"
	circuit "github.com/rubyist/circuitbreaker"
	"github.com/tidwall/gjson"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"
	"golang.org/x/time/rate"

	"github.com/matzehuels/dependents/pkg/cache"
	"github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/httputil"
	"github.com/matzehuels/dependents/pkg/observability"
)

// Gateway defaults.
const (
	DefaultBaseURL          = "https://api.github.com"
	DefaultMaxConcurrent    = 100
	DefaultInterval         = time.Second
	DefaultMaxRetries       = 3
	DefaultMaxRetryWait     = 60 * time.Second
	DefaultLimitsTTL        = 10 * time.Second
	DefaultBreakerThreshold = 5

	maxBodySize = 32 << 20
)

// Options configures a [Gateway]. Zero values take the defaults above.
type Options struct {
	BaseURL    string
	Token      string
	UserAgent  string
	HTTPClient *http.Client
	Logger     *log.Logger
	Clock      Clock

	// Shared state. Construct once per process and pass to every gateway
	// that talks to the same provider account.
	Responses   cache.Store[[]byte]
	Conditional cache.Store[Validated]
	Budget      *Budget
	Points      *Points

	MaxConcurrent int
	// Interval between admissions. Negative disables pacing.
	Interval         time.Duration
	MaxRetries       int
	MaxRetryWait     time.Duration
	LimitsTTL        time.Duration
	BreakerThreshold int
}

func (o Options) withDefaults() Options {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	o.BaseURL = strings.TrimSuffix(o.BaseURL, "/")
	if o.UserAgent == "" {
		o.UserAgent = "dependents"
	}
	if o.Logger == nil {
		o.Logger = log.Default()
	}
	if o.Clock == nil {
		o.Clock = SystemClock
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: httpTimeout}
	}
	if o.Responses == nil {
		o.Responses = cache.NewLRU[[]byte]("response", cache.DefaultSize, cache.DefaultResponseTTL)
	}
	if o.Conditional == nil {
		o.Conditional = cache.NewLRU[Validated]("conditional", cache.DefaultSize, cache.DefaultConditionalTTL)
	}
	if o.Budget == nil {
		o.Budget = NewBudget(o.Clock)
	}
	if o.Points == nil {
		o.Points = NewPoints(o.Clock, DefaultPointsLimit, DefaultPointsWindow)
	}
	if o.MaxConcurrent <= 0 {
		o.MaxConcurrent = DefaultMaxConcurrent
	}
	if o.Interval == 0 {
		o.Interval = DefaultInterval
	}
	if o.MaxRetries < 0 {
		o.MaxRetries = 0
	} else if o.MaxRetries == 0 {
		o.MaxRetries = DefaultMaxRetries
	}
	if o.MaxRetryWait <= 0 {
		o.MaxRetryWait = DefaultMaxRetryWait
	}
	if o.LimitsTTL <= 0 {
		o.LimitsTTL = DefaultLimitsTTL
	}
	if o.BreakerThreshold <= 0 {
		o.BreakerThreshold = DefaultBreakerThreshold
	}
	return o
}

// Request is one provider API call.
type Request struct {
	Method string // defaults to GET
	Path   string // e.g. /repos/acme/widgets
	Params map[string]string
}

func (r Request) method() string {
	if r.Method == "" {
		return http.MethodGet
	}
	return strings.ToUpper(r.Method)
}

// Response is a successful provider reply.
type Response struct {
	StatusCode int
	Header     http.Header // nil when served from the response cache
	Body       []byte

	// FromCache is set when no provider call was made.
	FromCache bool
	// NotModified is set when the provider answered 304 and the body is the
	// stored payload.
	NotModified bool
}

// Validated is a conditional-fetch cache entry.
type Validated struct {
	ETag string
	Body []byte
}

// Gateway is the single path to the provider API. It caches idempotent
// reads, coalesces duplicate in-flight reads, meters cost points, bounds
// concurrency, paces admissions, retries rate-limit rejections and trips a
// circuit breaker on repeated transport failures.
type Gateway struct {
	baseURL     string
	token       string
	userAgent   string
	http        *http.Client
	logger      *log.Logger
	clock       Clock
	responses   cache.Store[[]byte]
	conditional cache.Store[Validated]
	budget      *Budget
	points      *Points
	sem         *semaphore.Weighted
	pacer       *rate.Limiter
	breaker     *circuit.Breaker
	group       singleflight.Group

	maxRetries   int
	maxRetryWait time.Duration
	limitsTTL    time.Duration
}

// NewGateway creates a gateway from opts.
func NewGateway(opts Options) *Gateway {
	o := opts.withDefaults()

	g := &Gateway{
		baseURL:      o.BaseURL,
		token:        o.Token,
		userAgent:    o.UserAgent,
		http:         o.HTTPClient,
		logger:       o.Logger,
		clock:        o.Clock,
		responses:    o.Responses,
		conditional:  o.Conditional,
		budget:       o.Budget,
		points:       o.Points,
		sem:          semaphore.NewWeighted(int64(o.MaxConcurrent)),
		breaker:      newBreaker(o.BreakerThreshold),
		maxRetries:   o.MaxRetries,
		maxRetryWait: o.MaxRetryWait,
		limitsTTL:    o.LimitsTTL,
	}
	if o.Interval > 0 {
		g.pacer = rate.NewLimiter(rate.Every(o.Interval), 1)
	}
	return g
}

// newBreaker trips after threshold consecutive transport failures and
// probes again on an exponential schedule.
func newBreaker(threshold int) *circuit.Breaker {
	expBackoff := backoff.NewExponentialBackOff()
	expBackoff.InitialInterval = 10 * time.Second
	expBackoff.MaxInterval = 2 * time.Minute
	expBackoff.Multiplier = 2.0
	expBackoff.Reset()

	return circuit.NewBreakerWithOptions(&circuit.Options{
		BackOff:    expBackoff,
		ShouldTrip: circuit.ConsecutiveTripFunc(int64(threshold)),
	})
}

// Execute performs req. Idempotent reads are served from the response cache
// when possible. It fails fast with RATE_LIMITED when the primary budget for
// the request's resource is known to be spent; it never fetches the limits
// itself.
//
// Concurrent reads with the same signature share one provider call. The
// shared call is not tied to any caller's context: a caller whose context
// ends gets CANCELED at once, while the others keep waiting for the result.
// Writes are never coalesced or cached.
func (g *Gateway) Execute(ctx context.Context, req Request) (*Response, error) {
	method := req.method()
	sig := cache.Signature(method, req.Path, req.Params)
	read := Cost(method) == readCost
	if err := ctx.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeCanceled, err, "%s", sig)
	}

	if read {
		if body, ok := g.responses.Get(ctx, sig); ok {
			g.logger.Debug("cache hit", "request", sig, "sha", cache.Fingerprint(body))
			return &Response{StatusCode: http.StatusOK, Body: body, FromCache: true}, nil
		}
	}

	resource := ResourceFor(req.Path)
	if exhausted, resetAt := g.budget.Exhausted(resource); exhausted {
		g.logger.Debug("budget exhausted", "request", sig, "resource", resource, "reset", resetAt)
		return nil, &errors.RateLimitedError{Resource: resource, ResetAt: resetAt}
	}

	if !read {
		return g.execute(ctx, method, req, sig, false)
	}

	// The shared call outlives any single waiter: it runs detached from the
	// caller that started it, and each waiter stops waiting when its own
	// context ends. The detached call is still bounded by the HTTP client
	// timeout and the retry policy, and its result lands in the cache.
	ch := g.group.DoChan(sig, func() (any, error) {
		return g.execute(context.WithoutCancel(ctx), method, req, sig, true)
	})
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(errors.ErrCodeCanceled, ctx.Err(), "%s", sig)
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		if res.Shared {
			g.logger.Debug("coalesced", "request", sig)
		}
		return res.Val.(*Response), nil
	}
}

// execute runs attempt under the retry policy. Only rate-limit rejections
// are retried, waiting for the provider's reset hint or NextDelay when there
// is none; a wait beyond maxRetryWait ends the retries with RATE_LIMITED.
// Context errors come back wrapped as CANCELED.
func (g *Gateway) execute(ctx context.Context, method string, req Request, sig string, cacheable bool) (*Response, error) {
	var resp *Response
	policy := httputil.Policy{
		Attempts: g.maxRetries + 1,
		MaxWait:  g.maxRetryWait,
		Sleep:    g.clock.Sleep,
		OnRetry: func(attempt int, wait time.Duration, err error) {
			g.logger.Warn("rate limited, retrying", "request", sig, "attempt", attempt+1, "wait", wait)
		},
	}
	err := httputil.Retry(ctx, policy, func(int) error {
		r, err := g.attempt(ctx, method, req, sig, cacheable)
		resp = r
		return err
	})
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil && stderrors.Is(err, ctxErr) {
			return nil, errors.Wrap(errors.ErrCodeCanceled, err, "%s", sig)
		}
		return nil, err
	}
	return resp, nil
}

// attempt makes one provider call. It fails with NETWORK_ERROR without
// touching the network while the circuit breaker is open, and otherwise
// holds an admission slot for the duration of dispatch.
func (g *Gateway) attempt(ctx context.Context, method string, req Request, sig string, cacheable bool) (*Response, error) {
	if !g.breaker.Ready() {
		return nil, errors.Wrap(errors.ErrCodeNetwork, ErrUpstreamDown, "%s", sig)
	}
	if err := g.admit(ctx, method); err != nil {
		return nil, err
	}
	defer g.sem.Release(1)
	return g.dispatch(ctx, method, req, sig, cacheable)
}

// admit reserves cost points, then a concurrency slot, then a pacing
// token. On success the caller owns one semaphore slot.
func (g *Gateway) admit(ctx context.Context, method string) error {
	if err := g.points.Acquire(ctx, Cost(method)); err != nil {
		return err
	}
	if err := g.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	if err := g.pace(ctx); err != nil {
		g.sem.Release(1)
		return err
	}
	return nil
}

// pace waits for the next admission slot of the interval limiter using the
// gateway clock, so tests with a fake clock never sleep. A canceled wait
// returns its reservation so later callers are not delayed by it.
func (g *Gateway) pace(ctx context.Context) error {
	if g.pacer == nil {
		return nil
	}
	now := g.clock.Now()
	r := g.pacer.ReserveN(now, 1)
	if !r.OK() {
		return errors.New(errors.ErrCodeInternal, "pacing reservation refused")
	}
	if err := g.clock.Sleep(ctx, r.DelayFrom(now)); err != nil {
		r.CancelAt(g.clock.Now())
		return err
	}
	return nil
}

// dispatch sends the HTTP request and maps the response.
//
// Cacheable requests carry If-None-Match when a validator is stored, and a
// 304 is answered from the stored body. Rate-limit headers of every
// response update the budget. Transport failures and 5xx responses count
// against the circuit breaker; everything else, including 404 and rate
// limits, counts as a healthy upstream. Rate-limit rejections come back as
// a retryable RateLimitedError carrying the reset hint.
func (g *Gateway) dispatch(ctx context.Context, method string, req Request, sig string, cacheable bool) (*Response, error) {
	u := g.baseURL + req.Path
	if len(req.Params) > 0 {
		q := make(url.Values, len(req.Params))
		for k, v := range req.Params {
			q.Set(k, v)
		}
		u += "?" + q.Encode()
	}
	hreq, err := http.NewRequestWithContext(ctx, method, u, nil)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInternal, err, "build request %s", sig)
	}
	g.setHeaders(hreq)

	var stored Validated
	var haveValidator bool
	if cacheable {
		if stored, haveValidator = g.conditional.Get(ctx, sig); haveValidator {
			hreq.Header.Set("If-None-Match", stored.ETag)
		}
	}

	host := hreq.URL.Host
	observability.HTTP().OnRequest(ctx, method, host, req.Path)
	start := g.clock.Now()

	hresp, err := g.http.Do(hreq)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.breaker.Fail()
		observability.HTTP().OnError(ctx, method, host, req.Path, err)
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "%s", sig)
	}
	defer hresp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(hresp.Body, maxBodySize))
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		g.breaker.Fail()
		observability.HTTP().OnError(ctx, method, host, req.Path, err)
		return nil, errors.Wrap(errors.ErrCodeNetwork, err, "read %s", sig)
	}
	observability.HTTP().OnResponse(ctx, method, host, req.Path, hresp.StatusCode, g.clock.Now().Sub(start))

	resource := ResourceFor(req.Path)
	g.budget.UpdateFromHeaders(hresp.Header, resource)
	code := hresp.StatusCode

	switch {
	case code == http.StatusNotModified && haveValidator:
		g.breaker.Success()
		g.responses.Set(ctx, sig, stored.Body)
		g.logger.Debug("not modified", "request", sig)
		return &Response{StatusCode: http.StatusOK, Header: hresp.Header, Body: stored.Body, NotModified: true}, nil

	case code >= 200 && code < 300:
		g.breaker.Success()
		if cacheable {
			g.responses.Set(ctx, sig, body)
			if etag := hresp.Header.Get("ETag"); etag != "" {
				g.conditional.Set(ctx, sig, Validated{ETag: etag, Body: body})
			}
		}
		return &Response{StatusCode: code, Header: hresp.Header, Body: body}, nil

	case isRateLimited(code, hresp.Header, body):
		g.breaker.Success()
		wait, resetAt := retryWait(hresp.Header, g.clock.Now())
		observability.HTTP().OnRateLimited(ctx, method, host, req.Path, wait)
		rl := &errors.RateLimitedError{Resource: resource, ResetAt: resetAt, Cause: statusError(code, body)}
		return nil, &httputil.RetryableError{Err: rl, After: wait}

	case code == http.StatusNotFound:
		g.breaker.Success()
		return nil, errors.Wrap(errors.ErrCodeNotFound, statusError(code, body), "%s", sig)

	case code >= 500:
		g.breaker.Fail()
		return nil, errors.Wrap(errors.ErrCodeNetwork, statusError(code, body), "%s", sig)

	default:
		g.breaker.Success()
		return nil, errors.Wrap(errors.ErrCodeNetwork, statusError(code, body), "%s", sig)
	}
}

// setHeaders applies the API media type, version, User-Agent and, when
// configured, the bearer token.
func (g *Gateway) setHeaders(req *http.Request) {
	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	req.Header.Set("User-Agent", g.userAgent)
	if g.token != "" {
		req.Header.Set("Authorization", "Bearer "+g.token)
	}
}

// isRateLimited recognizes primary and secondary limit rejections.
func isRateLimited(code int, h http.Header, body []byte) bool {
	switch code {
	case http.StatusTooManyRequests:
		return true
	case http.StatusForbidden:
		return h.Get("X-RateLimit-Remaining") == "0" ||
			h.Get("Retry-After") != "" ||
			bytes.Contains(bytes.ToLower(body), []byte("rate limit"))
	}
	return false
}

// retryWait returns the wait the provider asked for and when the limit
// lifts. A zero wait means the provider gave no hint.
func retryWait(h http.Header, now time.Time) (time.Duration, time.Time) {
	if ra := h.Get("Retry-After"); ra != "" {
		if sec, err := strconv.Atoi(ra); err == nil && sec >= 0 {
			d := time.Duration(sec) * time.Second
			return d, now.Add(d)
		}
		if t, err := http.ParseTime(ra); err == nil {
			return max(t.Sub(now), 0), t
		}
	}
	if rem := h.Get("X-RateLimit-Remaining"); rem == "" || rem == "0" {
		if reset := parseEpoch(h.Get("X-RateLimit-Reset")); !reset.IsZero() {
			return max(reset.Sub(now), 0), reset
		}
	}
	return 0, time.Time{}
}

// statusError describes a non-success response, including the provider's
// "message" field when the body has one.
func statusError(code int, body []byte) error {
	if msg := gjson.GetBytes(body, "message").String(); msg != "" {
		return fmt.Errorf("HTTP %d: %s", code, msg)
	}
	return fmt.Errorf("HTTP %d", code)
}

// HasRemainingBudget reports whether both primary resources have calls
// left. Limits older than the configured TTL are re-read first. When they
// cannot be read it answers true and lets the provider enforce.
func (g *Gateway) HasRemainingBudget(ctx context.Context) bool {
	if g.budget.Stale(g.limitsTTL) {
		if err := g.RefreshLimits(ctx); err != nil {
			g.logger.Warn("could not read rate limits", "err", err)
			return true
		}
	}
	coreOut, _ := g.budget.Exhausted(ResourceCore)
	searchOut, _ := g.budget.Exhausted(ResourceSearch)
	return !coreOut && !searchOut
}

// RefreshLimits reads the primary limits from the rate-limit endpoint.
// The endpoint does not count against any limit, so the call skips the
// caches and admission.
func (g *Gateway) RefreshLimits(ctx context.Context) error {
	const path = "/rate_limit"
	resp, err := g.dispatch(ctx, http.MethodGet, Request{Path: path}, "GET "+path, false)
	if err != nil {
		var re *httputil.RetryableError
		if stderrors.As(err, &re) {
			return re.Err
		}
		return err
	}

	res := gjson.GetBytes(resp.Body, "resources")
	if !res.Exists() {
		return errors.New(errors.ErrCodeParseFailure, "rate limit response has no resources")
	}
	g.budget.Set(ResourceCore, limitFrom(res.Get("core")))
	search := limitFrom(res.Get("search"))
	// Code search is metered separately and is the tighter of the two.
	if cs := res.Get("code_search"); cs.Exists() {
		if l := limitFrom(cs); l.Remaining < search.Remaining {
			search = l
		}
	}
	g.budget.Set(ResourceSearch, search)
	g.budget.MarkFetched()
	return nil
}

// limitFrom reads one resource object of the /rate_limit response. The
// reset field is Unix seconds.
func limitFrom(r gjson.Result) Limit {
	l := Limit{
		Limit:     int(r.Get("limit").Int()),
		Remaining: int(r.Get("remaining").Int()),
	}
	if reset := r.Get("reset").Int(); reset > 0 {
		l.ResetAt = time.Unix(reset, 0)
	}
	return l
}

// Limits re-reads the primary limits and returns a snapshot.
func (g *Gateway) Limits(ctx context.Context) (BudgetSnapshot, error) {
	if err := g.RefreshLimits(ctx); err != nil {
		return BudgetSnapshot{}, err
	}
	return g.Snapshot(), nil
}

// Snapshot returns the last known limits without calling the provider.
func (g *Gateway) Snapshot() BudgetSnapshot {
	core, search, fetchedAt := g.budget.snapshot()
	used, resetAt := g.points.Used()
	return BudgetSnapshot{
		Core:          core,
		Search:        search,
		PointsUsed:    used,
		PointsLimit:   g.points.limit,
		WindowResetAt: resetAt,
		FetchedAt:     fetchedAt,
	}
}

// BreakerOpen reports whether the circuit breaker is currently rejecting
// calls.
func (g *Gateway) BreakerOpen() bool {
	return g.breaker.Tripped()
}
