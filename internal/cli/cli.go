package cli

import (
	"context"
	"io"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/matzehuels/dependents/pkg/buildinfo"
	"github.com/matzehuels/dependents/pkg/cache"
	"github.com/matzehuels/dependents/pkg/discovery"
	"github.com/matzehuels/dependents/pkg/integrations"
	"github.com/matzehuels/dependents/pkg/integrations/github"
)

// =============================================================================
// Constants
// =============================================================================

const (
	// appName is the application name used for directories and display.
	appName = "dependents"
)

// Log levels exported for use in main.go.
const (
	LogDebug = log.DebugLevel
	LogInfo  = log.InfoLevel
)

// =============================================================================
// CLI - Central CLI State
// =============================================================================

// CLI holds shared state for all commands.
type CLI struct {
	Logger *log.Logger

	configPath string
	noCache    bool
}

// New creates a new CLI instance with a default logger.
func New(w io.Writer, level log.Level) *CLI {
	return &CLI{Logger: newLogger(w, level)}
}

// SetLogLevel updates the logger's level.
func (c *CLI) SetLogLevel(level log.Level) {
	c.Logger.SetLevel(level)
}

// RootCommand creates the root cobra command with all subcommands registered.
func (c *CLI) RootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          appName,
		Short:        "Find the GitHub repositories that depend on a repository's npm packages",
		Long:         `dependents enumerates the npm packages a GitHub repository publishes and searches GitHub for the repositories whose package.json references them, staying inside GitHub's rate limits.`,
		Version:      buildinfo.Version,
		SilenceUsage: true,
	}

	root.SetVersionTemplate(buildinfo.Template())
	root.PersistentFlags().StringVar(&c.configPath, "config", "", "config file (default $XDG_CONFIG_HOME/dependents/config.toml)")
	root.PersistentFlags().BoolVar(&c.noCache, "no-cache", false, "disable the in-memory response caches")

	// Register all subcommands
	root.AddCommand(c.packagesCommand())
	root.AddCommand(c.findCommand())
	root.AddCommand(c.rateLimitCommand())
	root.AddCommand(c.serveCommand())
	root.AddCommand(c.completionCommand())

	return root
}

// =============================================================================
// Engine Factory
// =============================================================================

// engine is one process-wide discovery stack: a gateway with its shared
// caches and budget, and an orchestrator on top of it.
type engine struct {
	gateway      *integrations.Gateway
	orchestrator *discovery.Orchestrator
}

func (e *engine) DiscoverPackages(ctx context.Context, owner, repo string) ([]discovery.PackageDescriptor, error) {
	return e.orchestrator.DiscoverPackages(ctx, owner, repo)
}

func (e *engine) FindDependents(ctx context.Context, q discovery.Query, progress chan<- discovery.BatchProgress) *discovery.BatchResult {
	return e.orchestrator.FindDependents(ctx, q, progress)
}

func (e *engine) Limits(ctx context.Context) (integrations.BudgetSnapshot, error) {
	return e.gateway.Limits(ctx)
}

func (e *engine) Healthy() bool {
	return !e.gateway.BreakerOpen()
}

// newEngine loads the configuration and builds the discovery stack. The
// HTTP transport's background work ends with ctx.
func (c *CLI) newEngine(ctx context.Context) (*engine, *Config, error) {
	cfg, err := loadConfig(c.configPath)
	if err != nil {
		return nil, nil, err
	}
	registerHooks(c.Logger)
	if cfg.GitHub.Token == "" {
		c.Logger.Warn("no GitHub token configured; unauthenticated requests are limited to 60 per hour", "env", envToken)
	}
	return buildEngine(ctx, cfg, c.noCache, c.Logger), cfg, nil
}

func buildEngine(ctx context.Context, cfg *Config, noCache bool, logger *log.Logger) *engine {
	opts := integrations.Options{
		BaseURL:       cfg.GitHub.BaseURL,
		Token:         cfg.GitHub.Token,
		UserAgent:     buildinfo.UserAgent(),
		HTTPClient:    integrations.NewHTTPClient(ctx),
		Logger:        logger,
		Points:        integrations.NewPoints(integrations.SystemClock, cfg.Gateway.PointsLimit, integrations.DefaultPointsWindow),
		MaxConcurrent: cfg.Gateway.MaxConcurrent,
		Interval:      cfg.Gateway.Interval.Duration,
		MaxRetries:    cfg.Gateway.MaxRetries,
		MaxRetryWait:  cfg.Gateway.MaxRetryWait.Duration,
	}
	if noCache {
		opts.Responses = cache.NewNull[[]byte]()
		opts.Conditional = cache.NewNull[integrations.Validated]()
	} else if cfg.Gateway.CacheSize > 0 || cfg.Gateway.CacheTTL.Duration > 0 {
		size := cfg.Gateway.CacheSize
		if size <= 0 {
			size = cache.DefaultSize
		}
		ttl := cfg.Gateway.CacheTTL.Duration
		if ttl <= 0 {
			ttl = cache.DefaultResponseTTL
		}
		opts.Responses = cache.NewLRU[[]byte]("response", size, ttl)
	}
	gw := integrations.NewGateway(opts)

	orch := discovery.NewOrchestrator(github.NewClient(gw), gw, discovery.Options{
		BatchSize:  cfg.Discovery.BatchSize,
		BatchDelay: cfg.Discovery.BatchDelay.Duration,
		PageSize:   cfg.Discovery.PageSize,
		Logger:     logger,
	})
	en := orch.Enumerator()
	en.Dir = cfg.Discovery.PackagesDir
	en.IncludeRoot = cfg.Discovery.IncludeRoot
	if cfg.Discovery.Search {
		en.Mode = discovery.ModeSearch
	}
	orch.Finder().MaxPages = cfg.Discovery.MaxPages

	return &engine{gateway: gw, orchestrator: orch}
}
