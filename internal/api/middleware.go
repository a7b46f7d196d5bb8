package api

import (
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/fiber/v2/middleware/requestid"

	"github.com/birbparty/birb-feathers/internal/telemetry"
)

// TenantLocal is the fiber.Ctx local holding the authenticated tenant tag.
const TenantLocal = "tenant"

// SetupMiddleware configures all middleware for the application
func SetupMiddleware(app *fiber.App) {
	app.Use(requestid.New())

	app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowMethods: "GET,POST,DELETE,OPTIONS",
		AllowHeaders: "Origin, Content-Type, Accept, X-API-Key",
	}))

	app.Use(telemetry.FiberMetricsMiddleware())
	app.Use(telemetry.FiberLoggingMiddleware())

	app.Use(timingMiddleware())
}

// timingMiddleware adds request timing headers
func timingMiddleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()

		err := c.Next()

		c.Set("X-Response-Time", fmt.Sprintf("%d ms", time.Since(start).Milliseconds()))
		return err
	}
}

// AuthMiddleware validates the X-API-Key header against the configured key
// table and stores the tenant tag in the request locals. A missing key gets
// a WWW-Authenticate challenge; an unknown key is plain 401.
func AuthMiddleware(keys map[string]string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		key := c.Get("X-API-Key")
		if key == "" {
			c.Set(fiber.HeaderWWWAuthenticate, "ApiKey")
			return c.Status(fiber.StatusUnauthorized).JSON(
				NewErrorResponse("Missing API key", ErrCodeUnauthorized),
			)
		}

		tenant, ok := keys[key]
		if !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(
				NewErrorResponse("Invalid API key", ErrCodeUnauthorized),
			)
		}

		c.Locals(TenantLocal, tenant)
		return c.Next()
	}
}
