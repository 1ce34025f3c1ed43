package observability

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// OrgIDLocal is the fiber locals key the auth middleware stores the tenant under.
const OrgIDLocal = "org_id"

// RequestLogger logs every request and records its latency.
func RequestLogger(logger *zap.Logger, metrics *Metrics) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		elapsed := time.Since(start)

		route := c.Route().Path
		status := c.Response().StatusCode()
		metrics.RecordRequest(route, c.Method(), status, elapsed)

		fields := []zap.Field{
			zap.String("method", c.Method()),
			zap.String("path", c.Path()),
			zap.Int("status", status),
			zap.Duration("latency", elapsed),
		}
		if org, ok := c.Locals(OrgIDLocal).(string); ok && org != "" {
			fields = append(fields, zap.String("org_id", org))
		}
		logger.Info("request", fields...)
		return err
	}
}
