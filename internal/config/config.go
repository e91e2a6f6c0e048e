package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	RendererChromedp = "chromedp"
	RendererRemote   = "remote"

	EnvironmentLocal   = "local"
	EnvironmentManaged = "managed"
)

// Config is the full service configuration, loaded from YAML.
type Config struct {
	Server      ServerConfig      `yaml:"server"`
	Logger      LoggerConfig      `yaml:"logger"`
	Cache       CacheConfig       `yaml:"cache"`
	RateLimiter RateLimiterConfig `yaml:"rate_limiter"`
	Auth        AuthConfig        `yaml:"auth"`
	Preview     PreviewConfig     `yaml:"preview"`
	Chrome      ChromeConfig      `yaml:"chrome"`
	Catalog     CatalogConfig     `yaml:"catalog"`
}

type ServerConfig struct {
	Host    string `yaml:"host"`
	Port    string `yaml:"port"`
	Prefork bool   `yaml:"prefork"`
}

type LoggerConfig struct {
	File       string `yaml:"file"`
	Level      string `yaml:"level"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
	Compress   bool   `yaml:"compress"`
}

type CacheConfig struct {
	RedisHost   string `yaml:"redis_host"`
	RateLimitDB int    `yaml:"redis_rate_db"`
	CooldownDB  int    `yaml:"redis_cooldown_db"`
	// FailureCooldown is how long a failed project URL short-circuits to the
	// fallback. Zero disables the cooldown.
	FailureCooldown time.Duration `yaml:"failure_cooldown"`
}

type RateLimiterConfig struct {
	Interval           time.Duration `yaml:"interval"`
	UserLimit          int           `yaml:"user_limit"`
	EnableUserLimiter  bool          `yaml:"enable_user_limiter"`
	EnableTokenLimiter bool          `yaml:"enable_token_limiter"`
}

type AuthConfig struct {
	Postgres       PostgresConfig `yaml:"postgres"`
	ReloadInterval time.Duration  `yaml:"reload_interval"`
}

// PostgresConfig describes the API token database. Host may also be a full
// postgres:// URL, in which case the remaining fields are ignored.
type PostgresConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Database string `yaml:"database"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"sslmode"`
}

// Enabled reports whether a token database is configured at all.
func (p PostgresConfig) Enabled() bool {
	return strings.TrimSpace(p.Host) != ""
}

type PreviewConfig struct {
	Renderer          string        `yaml:"renderer"`
	RemoteEndpoint    string        `yaml:"remote_endpoint"`
	RemoteTimeout     time.Duration `yaml:"remote_timeout"`
	FallbackPath      string        `yaml:"fallback_path"`
	PublicDir         string        `yaml:"public_dir"`
	ScreenshotsPrefix string        `yaml:"screenshots_prefix"`
	MaxConcurrent     int           `yaml:"max_concurrent"`
	SlotWaitTimeout   time.Duration `yaml:"slot_wait_timeout"`
	CacheMaxAge       time.Duration `yaml:"cache_max_age"`
	Width             int           `yaml:"width"`
	Height            int           `yaml:"height"`
	LaunchTimeout     time.Duration `yaml:"launch_timeout"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	SettleDelay       time.Duration `yaml:"settle_delay"`

	// PrerenderSchedule is a cron spec with seconds ("0 0 3 * * *"); empty disables
	// the in-process refresh of the static tier.
	PrerenderSchedule string `yaml:"prerender_schedule"`
	// PrerenderRate caps prerender captures per second; 0 means no pacing.
	PrerenderRate float64 `yaml:"prerender_rate"`
}

type ChromeConfig struct {
	Environment string `yaml:"environment"`
	ChromePath  string `yaml:"chrome_path"`
	ManagedPath string `yaml:"managed_path"`
	NoSandbox   bool   `yaml:"no_sandbox"`
	UserDataDir string `yaml:"user_data_dir"`
}

type CatalogConfig struct {
	File string `yaml:"file"`
}

// Load reads the configuration from CONFIG_PATH, or config.yaml when unset.
// A .env file in the working directory is loaded first; it never overrides
// variables that are already set.
func Load() Config {
	_ = godotenv.Load()
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = "config.yaml"
	}
	return LoadFrom(path)
}

// LoadFrom reads, defaults and validates the configuration at path.
// It panics on unreadable files or invalid values; the service cannot start without them.
func LoadFrom(path string) Config {
	data, err := os.ReadFile(path)
	if err != nil {
		panic(fmt.Sprintf("config: read %s: %v", path, err))
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		panic(fmt.Sprintf("config: parse %s: %v", path, err))
	}

	cfg.ApplyDefaults()
	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return cfg
}

// ApplyDefaults fills zero values with the service defaults.
func (c *Config) ApplyDefaults() {
	if c.Server.Port == "" {
		c.Server.Port = ":8080"
	}
	if c.Logger.Level == "" {
		c.Logger.Level = "info"
	}
	if c.RateLimiter.Interval == 0 {
		c.RateLimiter.Interval = time.Minute
	}
	if c.Auth.ReloadInterval == 0 {
		c.Auth.ReloadInterval = time.Minute
	}

	p := &c.Preview
	if p.Renderer == "" {
		p.Renderer = RendererChromedp
	}
	if p.RemoteTimeout == 0 {
		p.RemoteTimeout = 45 * time.Second
	}
	if p.FallbackPath == "" {
		p.FallbackPath = "/logo.png"
	}
	if p.PublicDir == "" {
		p.PublicDir = "public"
	}
	if p.ScreenshotsPrefix == "" {
		p.ScreenshotsPrefix = "screenshots"
	}
	if p.MaxConcurrent == 0 {
		p.MaxConcurrent = 1
	}
	if p.SlotWaitTimeout == 0 {
		p.SlotWaitTimeout = 2 * time.Minute
	}
	if p.CacheMaxAge == 0 {
		p.CacheMaxAge = 24 * time.Hour
	}
	if p.Width == 0 {
		p.Width = 1200
	}
	if p.Height == 0 {
		p.Height = 800
	}
	if p.LaunchTimeout == 0 {
		p.LaunchTimeout = 30 * time.Second
	}
	if p.NavigationTimeout == 0 {
		p.NavigationTimeout = 15 * time.Second
	}
	if p.SettleDelay == 0 {
		p.SettleDelay = 2 * time.Second
	}

	if c.Chrome.Environment == "" {
		c.Chrome.Environment = EnvironmentLocal
	}
	if c.Chrome.ManagedPath == "" {
		c.Chrome.ManagedPath = "/opt/chromium/chromium"
	}
}

func (c *Config) applyEnv() {
	// Allow common container env var to override chrome_path.
	if c.Chrome.ChromePath == "" {
		if v := os.Getenv("CHROME_BIN"); v != "" {
			c.Chrome.ChromePath = v
		}
	}
	if v := strings.ToLower(strings.TrimSpace(os.Getenv("PREVIEW_ENVIRONMENT"))); v != "" {
		c.Chrome.Environment = v
	}
}

// Validate reports the first invalid value in the configuration.
func (c Config) Validate() error {
	p := c.Preview
	switch p.Renderer {
	case RendererChromedp:
	case RendererRemote:
		if strings.TrimSpace(p.RemoteEndpoint) == "" {
			return fmt.Errorf("preview.remote_endpoint is required for the remote renderer")
		}
	default:
		return fmt.Errorf("preview.renderer %q is not supported", p.Renderer)
	}
	if p.MaxConcurrent < 1 {
		return fmt.Errorf("preview.max_concurrent must be >= 1, got %d", p.MaxConcurrent)
	}
	if !strings.HasPrefix(p.FallbackPath, "/") {
		return fmt.Errorf("preview.fallback_path must be an absolute path, got %q", p.FallbackPath)
	}
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("preview viewport must be positive, got %dx%d", p.Width, p.Height)
	}
	for name, d := range map[string]time.Duration{
		"preview.slot_wait_timeout":  p.SlotWaitTimeout,
		"preview.cache_max_age":      p.CacheMaxAge,
		"preview.launch_timeout":     p.LaunchTimeout,
		"preview.navigation_timeout": p.NavigationTimeout,
		"preview.settle_delay":       p.SettleDelay,
		"preview.remote_timeout":     p.RemoteTimeout,
		"cache.failure_cooldown":     c.Cache.FailureCooldown,
	} {
		if d < 0 {
			return fmt.Errorf("%s must not be negative", name)
		}
	}
	switch c.Chrome.Environment {
	case EnvironmentLocal, EnvironmentManaged:
	default:
		return fmt.Errorf("chrome.environment %q must be %q or %q", c.Chrome.Environment, EnvironmentLocal, EnvironmentManaged)
	}
	if p.PrerenderRate < 0 {
		return fmt.Errorf("preview.prerender_rate must not be negative")
	}
	if c.RateLimiter.UserLimit < 0 {
		return fmt.Errorf("rate_limiter.user_limit must not be negative")
	}
	if c.RateLimiter.Interval <= 0 {
		return fmt.Errorf("rate_limiter.interval must be positive")
	}
	if c.Auth.ReloadInterval <= 0 {
		return fmt.Errorf("auth.reload_interval must be positive")
	}
	return nil
}
