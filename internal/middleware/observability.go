package middleware

import (
	"fmt"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/noah-isme/modengine-api/internal/observability"
)

// Observability records metrics and latency logs for the moderation queue
// (admin) and case submission (public) endpoints.
func Observability(logger zerolog.Logger) fiber.Handler {
	observability.RegisterMetrics()

	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		duration := time.Since(start)

		surface, ok := moderationSurface(c.Path())
		if !ok {
			return err
		}

		route := routeTemplate(c)
		method := c.Method()
		status := c.Response().StatusCode()
		statusLabel := fmt.Sprintf("%d", status)

		observability.ModerationRequests().WithLabelValues(surface, method, route, statusLabel).Inc()
		observability.ModerationLatency().WithLabelValues(surface, method, route).Observe(duration.Seconds())
		if status >= fiber.StatusBadRequest {
			observability.ModerationErrors().WithLabelValues(surface, method, route, statusLabel).Inc()
		}

		latencyMs := float64(duration) / float64(time.Millisecond)
		requestLogger := logger.With().
			Str("correlation_id", GetCorrelationID(c)).
			Str("surface", surface).
			Str("route", route).
			Str("method", method).
			Int("status", status).
			Float64("latency_ms", latencyMs).
			Str("latency_bucket", latencyBucket(duration)).
			Logger()

		switch {
		case status >= fiber.StatusInternalServerError:
			requestLogger.Error().Msg("moderation request failed")
		case status >= fiber.StatusBadRequest:
			requestLogger.Warn().Msg("moderation request rejected")
		default:
			requestLogger.Info().Msg("moderation request completed")
		}

		return err
	}
}

// moderationSurface reports which moderation surface a path belongs to.
func moderationSurface(path string) (string, bool) {
	switch {
	case strings.HasPrefix(path, "/api/admin"):
		return "admin", true
	case strings.HasPrefix(path, "/api/v1/moderation"):
		return "public", true
	default:
		return "", false
	}
}

func routeTemplate(c *fiber.Ctx) string {
	if c.Route() != nil && c.Route().Path != "" {
		return c.Route().Path
	}
	return c.Path()
}

func latencyBucket(duration time.Duration) string {
	switch {
	case duration <= 25*time.Millisecond:
		return "<=25ms"
	case duration <= 50*time.Millisecond:
		return "<=50ms"
	case duration <= 100*time.Millisecond:
		return "<=100ms"
	case duration <= 250*time.Millisecond:
		return "<=250ms"
	case duration <= 500*time.Millisecond:
		return "<=500ms"
	default:
		return ">500ms"
	}
}
