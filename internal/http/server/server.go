// Package server assembles the Fiber application.
package server

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/monitor"

	"projectpreview/internal/capture"
	"projectpreview/internal/catalog"
	"projectpreview/internal/config"
	"projectpreview/internal/http/handlers"
	"projectpreview/internal/http/middleware"
	"projectpreview/internal/infra/logging"
	"projectpreview/internal/infra/metrics"
	"projectpreview/internal/tokens"
)

// Deps are the collaborators of the HTTP layer. Catalog, Tokens and Store are optional.
type Deps struct {
	Config  config.Config
	Service *capture.Service
	Catalog *catalog.Catalog
	Tokens  *tokens.Cache
	Store   fiber.Storage
}

func New(d Deps) *fiber.App {
	app := fiber.New(fiber.Config{
		Prefork:               d.Config.Server.Prefork,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})

	middleware.Register(app, d.Config, middleware.Options{Tokens: d.Tokens, Store: d.Store})

	cat := d.Catalog
	if cat == nil {
		cat, _ = catalog.Load("")
	}

	v1 := app.Group("/v1")
	v1.Get("/preview/stats", middleware.RequireScope(d.Tokens, "stats"), handlers.HandleSlotStats(d.Service.Guard()))
	v1.Get("/preview/:year?/:username?/:project?", middleware.RequireScope(d.Tokens, "preview"), handlers.HandlePreview(d.Service))
	v1.Get("/projects/:year/paths", handlers.HandlePaths(cat))
	v1.Get("/monitor", monitor.New())

	metrics.Init()
	app.Get("/metrics", adaptor.HTTPHandler(metrics.Handler()))

	if dir := d.Config.Preview.PublicDir; dir != "" {
		app.Static("/", dir)
	}

	// Everything unmatched, including missing static files, gets a JSON 404.
	app.Use(func(c *fiber.Ctx) error {
		return fiber.NewError(fiber.StatusNotFound, "Not Found")
	})

	return app
}

func errorHandler(c *fiber.Ctx, err error) error {
	code := fiber.StatusInternalServerError
	msg := "Internal Server Error"

	var fe *fiber.Error
	if errors.As(err, &fe) {
		code = fe.Code
		msg = fe.Message
	}

	logging.Warn("Request failed", "path", c.Path(), "status", code, "message", msg)

	return c.Status(code).JSON(fiber.Map{
		"error": fiber.Map{
			"code":    code,
			"message": msg,
		},
	})
}
