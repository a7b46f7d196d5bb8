package api

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"

	"github.com/birbparty/birb-feathers/internal/telemetry"
)

// SetupRoutes configures all API routes
func SetupRoutes(app *fiber.App, handler *Handler, cfg *Config) {
	// Probes and metrics stay outside auth.
	app.Get("/health", handler.Health)
	app.Get("/ready", handler.Ready)
	app.Get("/metrics", adaptor.HTTPHandler(telemetry.PrometheusHandler()))

	v1 := app.Group("/api/v1")
	v1.Use(AuthMiddleware(cfg.APIKeys))

	features := v1.Group("/features")
	features.Post("/online", handler.GetOnlineFeatures)
	features.Post("/batch", handler.GetBatchFeatures)
	features.Post("/register", handler.RegisterFeature)
	features.Get("/", handler.ListFeatures)
	features.Get("/:name", handler.GetFeature)

	v1.Delete("/cache/invalidate/:entity_id", handler.InvalidateCache)

	// 404 handler
	app.Use(func(c *fiber.Ctx) error {
		return c.Status(fiber.StatusNotFound).JSON(
			NewErrorResponse("Endpoint not found", ErrCodeNotFound),
		)
	})
}
