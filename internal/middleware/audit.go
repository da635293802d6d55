package middleware

import (
	"errors"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"
)

// Audit emits one structured log line per request with the caller's subject
// when authenticated. Client errors log at warn, everything else that failed
// at error.
func Audit(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		var fe *fiber.Error
		if errors.As(err, &fe) {
			status = fe.Code
		}

		attrs := []any{
			slog.String("method", c.Method()),
			slog.String("path", c.Path()),
			slog.Int("status", status),
			slog.Duration("duration", time.Since(start)),
			slog.String("ip", c.IP()),
		}
		if requestID := RequestIDFrom(c); requestID != "" {
			attrs = append(attrs, slog.String("request_id", requestID))
		}
		if claims := Claims(c); claims != nil {
			attrs = append(attrs, slog.String("subject", claims.Subject), slog.String("role", claims.Role))
		}

		switch {
		case err == nil:
			logger.Info("request completed", attrs...)
		case fe != nil && fe.Code < fiber.StatusInternalServerError:
			attrs = append(attrs, slog.String("error", fe.Message))
			logger.Warn("request completed", attrs...)
		default:
			attrs = append(attrs, slog.Any("error", err))
			logger.Error("request completed", attrs...)
		}
		return err
	}
}
