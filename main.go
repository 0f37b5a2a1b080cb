package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog/log"

	"proxima/src/broadcast"
	"proxima/src/config"
	"proxima/src/engine"
	"proxima/src/exchange"
	"proxima/src/handlers"
	"proxima/src/logger"
	"proxima/src/models"
	"proxima/src/routes"
	"proxima/src/storage"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid configuration")
	}

	logger.Init(cfg.Log)
	defer logger.CloseLogger()

	log.Info().Msg("Initializing matching engine")

	startCtx, cancelStart := context.WithTimeout(context.Background(), 15*time.Second)
	trades, err := storage.Build(startCtx, cfg)
	cancelStart()
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize trade store")
	}

	hub := broadcast.NewHub(cfg.Broadcast.SubscriberBuffer)
	book := engine.NewMatchingEngine(engine.WithBTreeDegree(cfg.Book.BTreeDegree))
	opts := []exchange.Option{
		exchange.WithPublisher(hub),
		exchange.WithRecorder(trades.Tape()),
		exchange.WithPublishDepth(cfg.Broadcast.Depth),
		exchange.WithQueueSize(cfg.Book.CommandQueue),
	}
	if trades.HasReplicas() {
		opts = append(opts, exchange.WithReplica(
			exchange.RecorderFunc(trades.SaveReplicas),
			cfg.Trades.ReplicaQueue,
			cfg.Trades.ReplicaTimeout,
		))
	}
	x := exchange.New(book, opts...)

	orderHandler := handlers.NewOrderHandler(x, trades, hub, cfg)

	app := fiber.New(fiber.Config{
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			code := fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				code = fe.Code
			}

			log.Error().
				Str("path", c.Path()).
				Str("method", c.Method()).
				Int("status", code).
				Err(err).
				Msg("Request error")

			return c.Status(code).JSON(models.ErrorResponse{Error: err.Error()})
		},
	})

	app.Use(recover.New())
	routes.SetupRoutes(app, orderHandler, cfg)

	addr := ":" + cfg.Server.Port
	serverError := make(chan error, 1)
	go func() {
		if err := app.Listen(addr); err != nil {
			serverError <- err
		}
	}()

	log.Info().
		Str("port", cfg.Server.Port).
		Strs("endpoints", []string{
			"POST   /api/v1/orders",
			"DELETE /api/v1/orders/:id",
			"GET    /api/v1/orders/:id",
			"GET    /api/v1/orderbook",
			"GET    /api/v1/trades",
			"GET    /ws",
			"GET    /health",
			"GET    /metrics",
		}).
		Msg("Matching engine started")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case err := <-serverError:
		log.Error().
			Err(err).
			Str("port", cfg.Server.Port).
			Msg("Server failed")
	case sig := <-quit:
		log.Info().Str("signal", sig.String()).Msg("Received shutdown signal, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	hub.Close()
	if err := app.ShutdownWithContext(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Dur("timeout", cfg.Server.ShutdownTimeout).Msg("Timeout exceeded during shutdown")
		} else {
			log.Error().Err(err).Msg("Error during shutdown")
		}
	}

	if err := x.Close(); err != nil {
		log.Error().Err(err).Msg("Exchange loop exited with error")
	}
	if err := trades.Close(); err != nil {
		log.Error().Err(err).Msg("Error closing trade store")
	}

	stats := x.Stats()
	log.Info().
		Int64("orders_received", stats.OrdersReceived).
		Int64("trades_executed", stats.TradesExecuted).
		Int64("trades_dropped", stats.TradesDropped).
		Int("orders_in_book", stats.OrdersInBook).
		Msg("Shutdown complete")
}
