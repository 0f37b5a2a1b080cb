package middleware

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func RequestLogger(disabled bool) fiber.Handler {
	shouldLog := !disabled && zerolog.GlobalLevel() <= zerolog.InfoLevel

	return func(c *fiber.Ctx) error {
		if !shouldLog {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		log.Info().
			Str("method", c.Method()).
			Str("path", c.Path()).
			Str("ip", c.IP()).
			Int("status", c.Response().StatusCode()).
			Dur("latency", time.Since(start)).
			Int("bytes_in", len(c.Body())).
			Int("bytes_out", len(c.Response().Body())).
			Msg("HTTP request")

		return err
	}
}
