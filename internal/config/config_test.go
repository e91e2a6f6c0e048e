package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "cfg.yaml")
	if err := os.WriteFile(p, []byte(body), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return p
}

func TestLoadFrom_Defaults(t *testing.T) {
	t.Setenv("CHROME_BIN", "")
	t.Setenv("PREVIEW_ENVIRONMENT", "")
	cfg := LoadFrom(writeConfig(t, "server:\n  host: \"127.0.0.1\"\n"))

	assert.Equal(t, ":8080", cfg.Server.Port)
	assert.Equal(t, RendererChromedp, cfg.Preview.Renderer)
	assert.Equal(t, "/logo.png", cfg.Preview.FallbackPath)
	assert.Equal(t, 1, cfg.Preview.MaxConcurrent)
	assert.Equal(t, 24*time.Hour, cfg.Preview.CacheMaxAge)
	assert.Equal(t, 1200, cfg.Preview.Width)
	assert.Equal(t, 800, cfg.Preview.Height)
	assert.Equal(t, 30*time.Second, cfg.Preview.LaunchTimeout)
	assert.Equal(t, 15*time.Second, cfg.Preview.NavigationTimeout)
	assert.Equal(t, 2*time.Second, cfg.Preview.SettleDelay)
	assert.Equal(t, EnvironmentLocal, cfg.Chrome.Environment)
	assert.Equal(t, time.Duration(0), cfg.Cache.FailureCooldown)
	assert.False(t, cfg.Auth.Postgres.Enabled())
}

func TestLoadFrom_Values(t *testing.T) {
	t.Setenv("CHROME_BIN", "")
	t.Setenv("PREVIEW_ENVIRONMENT", "")
	cfg := LoadFrom(writeConfig(t, `
preview:
  renderer: remote
  remote_endpoint: "http://shots:3000/screenshot"
  max_concurrent: 3
  navigation_timeout: 10s
  settle_delay: 1s
cache:
  redis_host: "127.0.0.1:6379"
  failure_cooldown: 5m
chrome:
  environment: managed
  chrome_path: /usr/bin/chromium
auth:
  postgres:
    host: db
    database: preview
    user: preview
`))
	assert.Equal(t, RendererRemote, cfg.Preview.Renderer)
	assert.Equal(t, 3, cfg.Preview.MaxConcurrent)
	assert.Equal(t, 10*time.Second, cfg.Preview.NavigationTimeout)
	assert.Equal(t, time.Second, cfg.Preview.SettleDelay)
	assert.Equal(t, 5*time.Minute, cfg.Cache.FailureCooldown)
	assert.Equal(t, EnvironmentManaged, cfg.Chrome.Environment)
	assert.Equal(t, "/usr/bin/chromium", cfg.Chrome.ChromePath)
	assert.True(t, cfg.Auth.Postgres.Enabled())
}

func TestLoadFrom_EnvOverrides(t *testing.T) {
	t.Setenv("CHROME_BIN", "/bin/chrome-from-env")
	t.Setenv("PREVIEW_ENVIRONMENT", "Managed")
	cfg := LoadFrom(writeConfig(t, "chrome:\n  environment: local\n"))
	assert.Equal(t, "/bin/chrome-from-env", cfg.Chrome.ChromePath)
	assert.Equal(t, EnvironmentManaged, cfg.Chrome.Environment)

	t.Setenv("PREVIEW_ENVIRONMENT", "")
	cfg = LoadFrom(writeConfig(t, "chrome:\n  chrome_path: /explicit\n"))
	assert.Equal(t, "/explicit", cfg.Chrome.ChromePath, "config value wins over CHROME_BIN")
}

func TestLoadFrom_PanicsOnInvalidValues(t *testing.T) {
	t.Setenv("PREVIEW_ENVIRONMENT", "")
	tests := []struct {
		name string
		yml  string
	}{
		{name: "unknown renderer", yml: "preview:\n  renderer: puppeteer\n"},
		{name: "remote without endpoint", yml: "preview:\n  renderer: remote\n"},
		{name: "negative concurrency", yml: "preview:\n  max_concurrent: -1\n"},
		{name: "relative fallback", yml: "preview:\n  fallback_path: logo.png\n"},
		{name: "negative settle delay", yml: "preview:\n  settle_delay: -1s\n"},
		{name: "unknown environment", yml: "chrome:\n  environment: lambda\n"},
		{name: "negative user limit", yml: "rate_limiter:\n  user_limit: -1\n"},
		{name: "bad yaml", yml: "preview: [\n"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			p := writeConfig(t, tc.yml)
			defer func() {
				if recover() == nil {
					t.Fatalf("expected panic")
				}
			}()
			_ = LoadFrom(p)
		})
	}
}

func TestLoadFrom_PanicsOnMissingFile(t *testing.T) {
	require.Panics(t, func() { LoadFrom(filepath.Join(t.TempDir(), "missing.yaml")) })
}

func TestLoad_UsesConfigPathEnv(t *testing.T) {
	p := writeConfig(t, "preview:\n  fallback_path: /placeholder.png\n")
	t.Setenv("CONFIG_PATH", p)
	t.Setenv("PREVIEW_ENVIRONMENT", "")
	cfg := Load()
	assert.Equal(t, "/placeholder.png", cfg.Preview.FallbackPath)
}

func TestLoad_ReadsDotEnv(t *testing.T) {
	p := writeConfig(t, "preview:\n  prerender_schedule: \"0 0 3 * * *\"\n  prerender_rate: 0.5\n")
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("CONFIG_PATH="+p+"\n"), 0o644))
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	// t.Setenv restores the variable afterwards; unset it so .env may fill it.
	t.Setenv("CONFIG_PATH", "")
	require.NoError(t, os.Unsetenv("CONFIG_PATH"))

	cfg := Load()
	assert.Equal(t, "0 0 3 * * *", cfg.Preview.PrerenderSchedule)
	assert.InDelta(t, 0.5, cfg.Preview.PrerenderRate, 1e-9)
}
