package chrome

import (
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"

	"projectpreview/internal/config"
)

// Options controls one browser launch and capture.
type Options struct {
	Environment string
	ExecPath    string
	ManagedPath string
	NoSandbox   bool
	UserDataDir string

	Width             int
	Height            int
	LaunchTimeout     time.Duration
	NavigationTimeout time.Duration
	SettleDelay       time.Duration
}

// OptionsFromConfig maps the service configuration onto renderer options.
func OptionsFromConfig(cfg config.Config) Options {
	return Options{
		Environment:       cfg.Chrome.Environment,
		ExecPath:          cfg.Chrome.ChromePath,
		ManagedPath:       cfg.Chrome.ManagedPath,
		NoSandbox:         cfg.Chrome.NoSandbox,
		UserDataDir:       cfg.Chrome.UserDataDir,
		Width:             cfg.Preview.Width,
		Height:            cfg.Preview.Height,
		LaunchTimeout:     cfg.Preview.LaunchTimeout,
		NavigationTimeout: cfg.Preview.NavigationTimeout,
		SettleDelay:       cfg.Preview.SettleDelay,
	}
}

func (o Options) managed() bool {
	return o.Environment == config.EnvironmentManaged
}

// execPath picks the browser binary. An explicit path always wins; the managed
// environment otherwise uses its bundled binary and the local one lets chromedp search.
func (o Options) execPath() string {
	if o.ExecPath != "" {
		return o.ExecPath
	}
	if o.managed() {
		return o.ManagedPath
	}
	return ""
}

// launchFlags returns the command-line switches for the environment.
func (o Options) launchFlags() map[string]any {
	flags := map[string]any{
		"disable-gpu":             true,
		"disable-gpu-compositing": true,
		"disable-dev-shm-usage":   true,
		"single-process":          true,
		"hide-scrollbars":         true,
		"mute-audio":              true,
	}
	if o.NoSandbox || o.managed() {
		flags["no-sandbox"] = true
		flags["disable-setuid-sandbox"] = true
	}
	if o.managed() {
		flags["no-zygote"] = true
		flags["use-gl"] = "swiftshader"
		flags["disable-features"] = "Vulkan,UseSkiaRenderer,AudioServiceOutOfProcess"
	}
	return flags
}

func (o Options) allocatorOptions(profileDir string) []chromedp.ExecAllocatorOption {
	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.UserDataDir(profileDir),
		chromedp.WindowSize(o.Width, o.Height),
	)
	for name, value := range o.launchFlags() {
		opts = append(opts, chromedp.Flag(name, value))
	}
	if p := o.execPath(); p != "" {
		opts = append(opts, chromedp.ExecPath(p))
	}
	return opts
}

// createProfileDir makes a throwaway Chrome profile directory under base, or
// under the system temp dir when base is empty.
func createProfileDir(base string) (string, error) {
	if base == "" {
		base = os.TempDir()
	}
	if err := os.MkdirAll(base, 0o755); err != nil {
		return "", fmt.Errorf("cannot create profile base dir: %w", err)
	}
	dir, err := os.MkdirTemp(base, "preview-profile-*")
	if err != nil {
		return "", fmt.Errorf("cannot create temp profile dir: %w", err)
	}
	return dir, nil
}
