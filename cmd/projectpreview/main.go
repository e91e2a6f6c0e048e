package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"projectpreview/internal/capture"
	"projectpreview/internal/catalog"
	"projectpreview/internal/config"
	"projectpreview/internal/http/server"
	"projectpreview/internal/infra/cooldown"
	"projectpreview/internal/infra/logging"
	"projectpreview/internal/infra/postgres"
	"projectpreview/internal/infra/ratelimit"
	"projectpreview/internal/infra/slots"
	"projectpreview/internal/infra/static"
	"projectpreview/internal/prerender"
	"projectpreview/internal/tokens"
)

func main() {
	cfg := config.Load()
	if err := ensureLogDir(cfg.Logger.File); err != nil {
		fmt.Fprintf(os.Stderr, "log dir: %v\n", err)
	}
	logging.InitLogger(
		cfg.Logger.File,
		cfg.Logger.MaxSizeMB,
		cfg.Logger.MaxBackups,
		cfg.Logger.MaxAgeDays,
		cfg.Logger.Compress,
		cfg.Logger.Level,
	)

	if len(os.Args) > 1 && os.Args[1] == "prerender" {
		os.Exit(runPrerender(cfg, os.Args[2:], os.Stdout))
	}

	rdb := newRedis(cfg)
	svc, store, err := buildService(cfg, rdb)
	if err != nil {
		logging.Error("Failed to build preview service", "error", err)
		os.Exit(1)
	}
	logging.Info("Preview service ready",
		"renderer", cfg.Preview.Renderer,
		"environment", cfg.Chrome.Environment,
		"max_concurrent", svc.Guard().Capacity(),
		"static_dir", cfg.Preview.PublicDir)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	cat := loadCatalog(cfg)
	app := server.New(server.Deps{
		Config:  cfg,
		Service: svc,
		Catalog: cat,
		Tokens:  startTokens(ctx, cfg),
		Store:   ratelimit.NewStore(ratelimit.RedisConfigFrom(cfg)),
	})

	sched, err := schedulePrerender(ctx, cfg, cat, svc, store)
	if err != nil {
		logging.Error("Prerender schedule disabled", "error", err)
	}

	idleConnsClosed := make(chan struct{})
	startServer(app, cfg, idleConnsClosed)
	<-idleConnsClosed
	cancel()
	if sched != nil {
		sched.Stop()
	}
	if rdb != nil {
		_ = rdb.Close()
	}
}

// ensureLogDir creates the directory of the log file, if any.
func ensureLogDir(file string) error {
	if file == "" {
		return nil
	}
	return os.MkdirAll(filepath.Dir(file), 0o755)
}

func newRedis(cfg config.Config) *redis.Client {
	if cfg.Cache.RedisHost == "" {
		return nil
	}
	return redis.NewClient(&redis.Options{
		Addr: cfg.Cache.RedisHost,
		DB:   cfg.Cache.CooldownDB,
	})
}

// buildService wires renderer, slot guard, static tier and cooldown.
func buildService(cfg config.Config, rdb *redis.Client) (*capture.Service, *static.Store, error) {
	renderer, err := capture.NewRenderer(cfg)
	if err != nil {
		return nil, nil, err
	}
	guard, err := slots.New(cfg.Preview.MaxConcurrent)
	if err != nil {
		return nil, nil, err
	}
	store, err := static.New(cfg.Preview.PublicDir, cfg.Preview.ScreenshotsPrefix)
	if err != nil {
		return nil, nil, err
	}

	deps := capture.Deps{
		Renderer: renderer,
		Guard:    guard,
		Static:   store,
		Options: capture.Options{
			FallbackPath:    cfg.Preview.FallbackPath,
			CacheMaxAge:     cfg.Preview.CacheMaxAge,
			SlotWaitTimeout: cfg.Preview.SlotWaitTimeout,
		},
	}
	if rdb != nil && cfg.Cache.FailureCooldown > 0 {
		deps.Cooldown = cooldown.NewRedisCooldown(rdb, cfg.Cache.FailureCooldown)
	}

	svc, err := capture.New(deps)
	if err != nil {
		return nil, nil, err
	}
	return svc, store, nil
}

func loadCatalog(cfg config.Config) *catalog.Catalog {
	cat, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		logging.Error("Failed to load project catalog", "file", cfg.Catalog.File, "error", err)
		cat, _ = catalog.Load("")
	}
	return cat
}

// startTokens loads API tokens from Postgres and keeps reloading them. It
// returns nil when no token database is configured.
func startTokens(ctx context.Context, cfg config.Config) *tokens.Cache {
	if !cfg.Auth.Postgres.Enabled() {
		return nil
	}
	dsn, err := postgres.DSN(cfg.Auth.Postgres)
	if err != nil {
		logging.Error("Invalid token database config", "error", err)
		return nil
	}

	cache := tokens.NewCache()
	reloader := tokens.NewReloader(postgres.NewTokenRepository(postgres.NewDB(), dsn), cache, cfg.Auth.ReloadInterval)
	if err := reloader.LoadOnce(ctx); err != nil {
		logging.Error("Failed to load API tokens", "error", err)
	}
	reloader.Start(ctx)
	return cache
}

// schedulePrerender starts the periodic static tier refresh when
// preview.prerender_schedule is set.
func schedulePrerender(ctx context.Context, cfg config.Config, cat *catalog.Catalog, svc *capture.Service, store *static.Store) (*prerender.Scheduler, error) {
	if cfg.Preview.PrerenderSchedule == "" {
		return nil, nil
	}
	limiter := prerender.NewLimiter(cfg.Preview.PrerenderRate)
	sched, err := prerender.NewScheduler(ctx, cfg.Preview.PrerenderSchedule, func(ctx context.Context) (prerender.Report, error) {
		return prerender.Run(ctx, cat, svc, store, prerender.Options{Limiter: limiter})
	})
	if err != nil {
		return nil, err
	}
	sched.Start()
	logging.Info("Prerender scheduled", "schedule", cfg.Preview.PrerenderSchedule, "rate", cfg.Preview.PrerenderRate)
	return sched, nil
}

func runPrerender(cfg config.Config, args []string, out io.Writer) int {
	fs := flag.NewFlagSet("prerender", flag.ContinueOnError)
	fs.SetOutput(out)
	year := fs.Int("year", 0, "only prerender this year (0 = all years)")
	force := fs.Bool("force", false, "re-render screenshots that already exist")
	if err := fs.Parse(args); err != nil {
		return 2
	}

	cat, err := catalog.Load(cfg.Catalog.File)
	if err != nil {
		logging.Error("Failed to load project catalog", "file", cfg.Catalog.File, "error", err)
		return 1
	}
	// Prerendering has no use for the cooldown; every path gets one attempt.
	svc, store, err := buildService(cfg, nil)
	if err != nil {
		logging.Error("Failed to build preview service", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rep, err := prerender.Run(ctx, cat, svc, store, prerender.Options{
		Year:    *year,
		Force:   *force,
		Limiter: prerender.NewLimiter(cfg.Preview.PrerenderRate),
	})
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	_ = enc.Encode(rep)
	if err != nil {
		logging.Warn("Prerender interrupted", "error", err)
		return 1
	}
	if len(rep.Failed) > 0 {
		return 1
	}
	return 0
}

// startServer starts the Fiber app and blocks until SIGINT or SIGTERM.
func startServer(app *fiber.App, cfg config.Config, idleConnsClosed chan struct{}) {
	go func() {
		if err := app.Listen(cfg.Server.Host + cfg.Server.Port); err != nil {
			logging.Error("Server error", "error", err)
		}
	}()

	sigint := make(chan os.Signal, 1)
	signal.Notify(sigint, syscall.SIGINT, syscall.SIGTERM)
	<-sigint
	signal.Stop(sigint)

	logging.Warn("Shutdown signal received, closing server...")

	// In-flight captures may hold a browser for the full navigation timeout.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(ctx); err != nil {
		logging.Error("Server forced to shutdown", "error", err)
	}

	close(idleConnsClosed)
	logging.Info("Server stopped cleanly")
}
