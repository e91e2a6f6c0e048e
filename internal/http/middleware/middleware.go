// Package middleware registers the global Fiber middleware chain.
package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/requestid"
	memoryStorage "github.com/gofiber/storage/memory/v2"
	"github.com/rs/xid"

	"projectpreview/internal/config"
	"projectpreview/internal/infra/logging"
	"projectpreview/internal/tokens"
)

const (
	HealthPath = "/ops/health"
	ReadyPath  = "/ops/ready"
)

// Options carries the optional collaborators of the chain. A nil Tokens
// cache disables API key handling; a nil Store means in-memory limits.
type Options struct {
	Tokens *tokens.Cache
	Store  fiber.Storage
}

func Register(app *fiber.App, cfg config.Config, opts ...Options) {
	var o Options
	if len(opts) > 0 {
		o = opts[0]
	}
	if o.Store == nil {
		o.Store = memoryStorage.New()
	}

	app.Use(cors.New())

	app.Use(requestid.New(requestid.Config{
		Generator: func() string {
			return xid.New().String()
		},
	}))

	app.Use(healthcheck.New(healthcheck.Config{
		LivenessEndpoint:  HealthPath,
		ReadinessEndpoint: ReadyPath,
		ReadinessProbe: func(*fiber.Ctx) bool {
			return o.Tokens == nil || o.Tokens.Ready()
		},
	}))

	rl := RateLimitConfigFrom(cfg)
	if o.Tokens != nil {
		app.Use(APIKey(o.Tokens))
		app.Use(TokenRateLimit(rl, o.Tokens, o.Store, NewLimiterCache()))
	}
	app.Use(UserRateLimit(rl, o.Store))

	app.Use(func(c *fiber.Ctx) error {
		requestID, _ := c.Locals(requestid.ConfigDefault.ContextKey).(string)
		logging.Info("Incoming request", "method", c.Method(), "path", c.Path(), "request_id", requestID)
		return c.Next()
	})
}
