package middleware

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"

	"github.com/getsentry/sentry-go"
	"github.com/gofiber/fiber/v2"

	"github.com/digibank/digibank/internal/infra"
)

// ErrorHandler renders handler errors as {"error": message}. Handlers map their
// own domain errors to *fiber.Error; store outages become 503 and anything else
// is reported to Sentry and answered with a generic 500.
func ErrorHandler(logger *slog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var fe *fiber.Error
		switch {
		case errors.As(err, &fe):
			return c.Status(fe.Code).JSON(fiber.Map{"error": fe.Message})
		case errors.Is(err, infra.ErrStoreUnavailable):
			logger.Warn("store unavailable", slog.String("path", c.Path()), slog.Any("error", err))
			return c.Status(http.StatusServiceUnavailable).JSON(fiber.Map{"error": "service temporarily unavailable"})
		default:
			requestID := RequestIDFrom(c)
			sentry.WithScope(func(scope *sentry.Scope) {
				scope.SetTag("request_id", requestID)
				scope.SetTag("path", c.Path())
				sentry.CaptureException(err)
			})
			logger.Error("unhandled error",
				slog.String("method", c.Method()),
				slog.String("path", c.Path()),
				slog.String("request_id", requestID),
				slog.Any("error", err),
			)
			return c.Status(http.StatusInternalServerError).JSON(fiber.Map{"error": "internal server error"})
		}
	}
}

// Recover turns panics into errors for ErrorHandler and reports them to Sentry.
func Recover(logger *slog.Logger) fiber.Handler {
	return func(c *fiber.Ctx) (err error) {
		defer func() {
			if rec := recover(); rec != nil {
				sentry.WithScope(func(scope *sentry.Scope) {
					scope.SetExtra("panic", rec)
					scope.SetExtra("stack", string(debug.Stack()))
					sentry.CaptureMessage("panic in request")
				})
				logger.Error("panic recovered",
					slog.String("method", c.Method()),
					slog.String("path", c.Path()),
					slog.Any("panic", rec),
				)
				err = fiber.NewError(http.StatusInternalServerError, "internal server error")
			}
		}()
		return c.Next()
	}
}

// NotFound answers unmatched routes.
func NotFound(c *fiber.Ctx) error {
	return fiber.NewError(http.StatusNotFound, fmt.Sprintf("route %s %s not found", c.Method(), c.Path()))
}
