package routes

import (
	"github.com/gofiber/fiber/v2"

	"proxima/src/config"
	"proxima/src/handlers"
	"proxima/src/middleware"
)

func SetupRoutes(app *fiber.App, orderHandler *handlers.OrderHandler, cfg *config.Config) *middleware.ServiceAvailability {
	availability := middleware.NewServiceAvailability(cfg.Availability)
	app.Use(availability.Middleware())
	app.Use(middleware.RequestLogger(cfg.Log.RequestLoggingDisabled))

	api := app.Group("/api/v1")
	if limiter := middleware.RateLimiter(cfg.RateLimit); limiter != nil {
		api.Use(limiter)
	}

	api.Post("/orders", orderHandler.SubmitOrder)
	api.Delete("/orders/:id", orderHandler.CancelOrder)
	api.Get("/orders/:id", orderHandler.GetOrderStatus)
	api.Get("/orderbook", orderHandler.GetOrderBook)
	api.Get("/trades", orderHandler.GetTrades)

	app.Use("/ws", handlers.UpgradeStream)
	app.Get("/ws", orderHandler.Stream())

	app.Get("/health", orderHandler.HealthCheck)
	app.Get("/metrics", orderHandler.Metrics)

	return availability
}
