package cli

import (
	stderrors "errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"

	"github.com/matzehuels/dependents/pkg/discovery"
	"github.com/matzehuels/dependents/pkg/errors"
	"github.com/matzehuels/dependents/pkg/integrations"
)

// Environment variables read on top of the config file.
const (
	envToken   = "GITHUB_TOKEN"
	envBaseURL = "DEPENDENTS_GITHUB_URL"
	envAddr    = "DEPENDENTS_ADDR"
)

// Config is the layered CLI configuration: defaults, then the TOML file,
// then .env and the environment, then flags.
type Config struct {
	GitHub    GitHubConfig    `toml:"github"`
	Gateway   GatewayConfig   `toml:"gateway"`
	Discovery DiscoveryConfig `toml:"discovery"`
	Server    ServerConfig    `toml:"server"`
}

// GitHubConfig selects the provider account.
type GitHubConfig struct {
	Token   string `toml:"token"`
	BaseURL string `toml:"base_url"`
}

// GatewayConfig tunes request admission.
type GatewayConfig struct {
	MaxConcurrent int      `toml:"max_concurrent"`
	Interval      duration `toml:"interval"`
	MaxRetries    int      `toml:"max_retries"`
	MaxRetryWait  duration `toml:"max_retry_wait"`
	PointsLimit   int      `toml:"points_limit"`
	CacheSize     int      `toml:"cache_size"`
	CacheTTL      duration `toml:"cache_ttl"`
}

// DiscoveryConfig tunes discovery runs.
type DiscoveryConfig struct {
	BatchSize   int      `toml:"batch_size"`
	BatchDelay  duration `toml:"batch_delay"`
	PageSize    int      `toml:"page_size"`
	MaxPages    int      `toml:"max_pages"`
	PackagesDir string   `toml:"packages_dir"`
	IncludeRoot bool     `toml:"include_root"`
	Search      bool     `toml:"search"` // enumerate with code search instead of listing
}

// ServerConfig configures the serve command.
type ServerConfig struct {
	Addr           string   `toml:"addr"`
	RequestTimeout duration `toml:"request_timeout"`
}

// duration decodes TOML strings such as "1s" or "2m30s".
type duration struct {
	time.Duration
}

func (d *duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidInput, err, "invalid duration %q", text)
	}
	d.Duration = v
	return nil
}

// defaultConfig returns the built-in defaults.
func defaultConfig() *Config {
	return &Config{
		GitHub: GitHubConfig{BaseURL: integrations.DefaultBaseURL},
		Gateway: GatewayConfig{
			MaxConcurrent: integrations.DefaultMaxConcurrent,
			Interval:      duration{integrations.DefaultInterval},
			MaxRetries:    integrations.DefaultMaxRetries,
			MaxRetryWait:  duration{integrations.DefaultMaxRetryWait},
			PointsLimit:   integrations.DefaultPointsLimit,
		},
		Discovery: DiscoveryConfig{
			BatchSize:   discovery.DefaultBatchSize,
			BatchDelay:  duration{discovery.DefaultBatchDelay},
			PageSize:    discovery.DefaultPageSize,
			MaxPages:    discovery.DefaultMaxPages,
			PackagesDir: discovery.DefaultPackagesDir,
		},
		Server: ServerConfig{
			Addr:           ":8080",
			RequestTimeout: duration{5 * time.Minute},
		},
	}
}

// loadConfig builds the configuration. An explicit path must exist; the
// default path is optional.
func loadConfig(path string) (*Config, error) {
	cfg := defaultConfig()

	explicit := path != ""
	if !explicit {
		dir, err := configDir()
		if err == nil {
			path = filepath.Join(dir, "config.toml")
		}
	}
	if path != "" {
		if _, err := toml.DecodeFile(path, cfg); err != nil {
			if explicit || !stderrors.Is(err, fs.ErrNotExist) {
				return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "load config %s", path)
			}
		}
	}

	// .env never overrides variables already set in the environment.
	if err := godotenv.Load(); err != nil && !stderrors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "load .env")
	}
	cfg.applyEnv(os.Getenv)
	return cfg, nil
}

func (c *Config) applyEnv(getenv func(string) string) {
	if v := getenv(envToken); v != "" {
		c.GitHub.Token = v
	}
	if v := getenv(envBaseURL); v != "" {
		c.GitHub.BaseURL = v
	}
	if v := getenv(envAddr); v != "" {
		c.Server.Addr = v
	}
	if v, err := strconv.Atoi(getenv("DEPENDENTS_BATCH_SIZE")); err == nil && v > 0 {
		c.Discovery.BatchSize = v
	}
}

// configDir returns the config directory using XDG standard (~/.config/dependents/).
func configDir() (string, error) {
	if configHome := os.Getenv("XDG_CONFIG_HOME"); configHome != "" {
		return filepath.Join(configHome, appName), nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", appName), nil
}
