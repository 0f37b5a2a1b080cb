package middleware

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/rs/zerolog/log"

	"proxima/src/config"
	"proxima/src/models"
)

// ClientID prefers proxy headers so clients behind a load balancer are keyed
// separately.
func ClientID(c *fiber.Ctx) string {
	ip := c.Get("X-Forwarded-For")
	if ip == "" {
		ip = c.Get("X-Real-IP")
	}
	if ip == "" {
		ip = c.IP()
	}
	return ip
}

// RateLimiter applies a fixed window per client. It returns nil when rate
// limiting is disabled.
func RateLimiter(cfg config.RateLimitConfig) fiber.Handler {
	if cfg.Disabled {
		return nil
	}

	return limiter.New(limiter.Config{
		Max:          cfg.MaxRequests,
		Expiration:   cfg.Window,
		KeyGenerator: ClientID,
		LimitReached: func(c *fiber.Ctx) error {
			log.Warn().
				Str("client_ip", ClientID(c)).
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("max_requests", cfg.MaxRequests).
				Msg("Rate limit exceeded")
			return c.Status(fiber.StatusTooManyRequests).JSON(models.ErrorResponse{
				Error: "Rate limit exceeded",
			})
		},
	})
}
