package handlers

import (
	"context"
	"time"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"proxima/src/broadcast"
)

// UpgradeStream rejects plain HTTP requests to the stream endpoint.
func UpgradeStream(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Stream sends the current book on connect and then every update published
// by the hub. Frames older than the initial snapshot are skipped.
func (h *OrderHandler) Stream() fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		sub := h.Hub.Subscribe()
		defer h.Hub.Unsubscribe(sub)

		remote := conn.RemoteAddr().String()
		log.Info().Str("remote", remote).Uint64("subscriber", sub.ID()).Msg("Stream client connected")
		defer log.Info().Str("remote", remote).Uint64("subscriber", sub.ID()).Msg("Stream client disconnected")

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		snapshot, err := h.Exchange.Snapshot(ctx, h.stream.Depth)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("remote", remote).Msg("Unable to load initial snapshot")
			return
		}
		initial, err := broadcast.Encode(snapshot, nil)
		if err != nil {
			log.Error().Err(err).Msg("Failed to encode initial snapshot")
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, initial.Data); err != nil {
			return
		}

		// Inbound messages are ignored; reading detects the client going away.
		gone := make(chan struct{})
		go func() {
			defer close(gone)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		interval := h.stream.PingInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		ping := time.NewTicker(interval)
		defer ping.Stop()

		for {
			select {
			case <-gone:
				return
			case frame, ok := <-sub.Frames():
				if !ok {
					_ = conn.WriteMessage(websocket.CloseMessage,
						websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
					return
				}
				if frame.Sequence < initial.Sequence {
					continue
				}
				if err := conn.WriteMessage(websocket.TextMessage, frame.Data); err != nil {
					log.Debug().Err(err).Str("remote", remote).Msg("Stream write failed")
					return
				}
			case <-ping.C:
				if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
					return
				}
			}
		}
	})
}
