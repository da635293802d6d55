package middleware

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/redis/go-redis/v9"

	"github.com/digibank/digibank/internal/infra"
)

// LoginRateLimit caps login requests per client IP and minute. It guards
// against credential stuffing across many emails, which the per-email throttle
// does not see. It fails open when Redis is missing or unreachable.
func LoginRateLimit(cache *redis.Client, maxPerMin int, timeout time.Duration, logger *slog.Logger) fiber.Handler {
	if maxPerMin <= 0 {
		maxPerMin = 30
	}
	return func(c *fiber.Ctx) error {
		if cache == nil {
			return c.Next()
		}
		ctx, cancel := infra.WithStoreTimeout(c.UserContext(), timeout)
		defer cancel()

		key := "rl:login:" + c.Path() + ":" + c.IP()
		cnt, err := cache.Incr(ctx, key).Result()
		if err != nil {
			logger.Warn("login rate limit unavailable", slog.Any("error", err))
			return c.Next()
		}
		if cnt == 1 {
			cache.Expire(ctx, key, time.Minute)
		}
		if cnt > int64(maxPerMin) {
			c.Set(fiber.HeaderRetryAfter, "60")
			return fiber.NewError(http.StatusTooManyRequests, "too many login attempts, try again later")
		}
		return c.Next()
	}
}
