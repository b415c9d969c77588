package router

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/noah-isme/modengine-api/internal/config"
	"github.com/noah-isme/modengine-api/internal/handler"
	"github.com/noah-isme/modengine-api/internal/middleware"
	"github.com/noah-isme/modengine-api/internal/observability"
)

// Dependencies groups router dependencies for registration.
type Dependencies struct {
	ModerationHandler   *handler.ModerationCaseHandler
	AuditHandler        *handler.AuditHandler
	NotificationHandler *handler.NotificationHandler
	JWTMiddleware       fiber.Handler
	SubmitRateLimit     int
	SubmitRateWindow    time.Duration
}

// Register wires the HTTP routes into the fiber application.
func Register(app *fiber.App, cfg config.Config, deps Dependencies) {
	app.Get("/metrics", observability.MetricsHandler())

	api := app.Group("/api/v1", func(c *fiber.Ctx) error {
		c.Set("X-Application", cfg.AppName)
		return c.Next()
	})
	api.Get("/health", handler.HealthCheck(cfg))

	// Use provided JWT middleware, or a no-op if nil
	jwtMiddleware := deps.JWTMiddleware
	if jwtMiddleware == nil {
		jwtMiddleware = func(c *fiber.Ctx) error { return c.Next() }
	}

	if deps.ModerationHandler != nil {
		moderation := api.Group("/moderation", jwtMiddleware)
		deps.ModerationHandler.RegisterPublic(moderation,
			middleware.RateLimit("moderation-submit", deps.SubmitRateLimit, deps.SubmitRateWindow),
		)
	}

	if deps.NotificationHandler != nil {
		notifications := api.Group("/notifications", jwtMiddleware)
		deps.NotificationHandler.Register(notifications)
	}

	admin := app.Group("/api/admin", jwtMiddleware, middleware.RequireRole("admin", "moderator"))

	if deps.ModerationHandler != nil {
		deps.ModerationHandler.Register(admin.Group("/moderation"))
	}

	if deps.AuditHandler != nil {
		deps.AuditHandler.Register(admin.Group("/audit"))
	}
}
