package handlers

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog/log"

	"proxima/src/broadcast"
	"proxima/src/config"
	"proxima/src/engine"
	"proxima/src/exchange"
	"proxima/src/models"
	"proxima/src/storage"
)

const maxLatencies = 10000

type OrderHandler struct {
	Exchange  *exchange.Exchange
	Trades    storage.TradeStore
	Hub       *broadcast.Hub
	StartTime time.Time

	book   config.BookConfig
	tape   config.TradesConfig
	stream config.BroadcastConfig

	latencies   []time.Duration
	latenciesMu sync.RWMutex
}

func NewOrderHandler(x *exchange.Exchange, trades storage.TradeStore, hub *broadcast.Hub, cfg *config.Config) *OrderHandler {
	return &OrderHandler{
		Exchange:  x,
		Trades:    trades,
		Hub:       hub,
		StartTime: time.Now(),
		book:      cfg.Book,
		tape:      cfg.Trades,
		stream:    cfg.Broadcast,
		latencies: make([]time.Duration, 0, maxLatencies),
	}
}

func (h *OrderHandler) SubmitOrder(c *fiber.Ctx) error {
	var req models.SubmitOrderRequest

	if err := c.BodyParser(&req); err != nil {
		log.Warn().
			Err(err).
			Str("ip", c.IP()).
			Str("path", c.Path()).
			Msg("Invalid request: malformed JSON")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid request: malformed JSON",
		})
	}

	order, err := toOrderRequest(req)
	if err != nil {
		log.Warn().
			Err(err).
			Str("side", req.Side).
			Str("type", req.Type).
			Str("ip", c.IP()).
			Msg("Invalid order request")
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{
			Error: "Invalid order: " + err.Error(),
		})
	}

	start := time.Now()
	result, _, err := h.Exchange.Submit(c.UserContext(), order)
	h.recordLatency(time.Since(start))

	if err != nil {
		status := statusForError(err)
		log.Warn().
			Err(err).
			Uint64("order_id", uint64(order.ID)).
			Str("side", order.Side.String()).
			Str("type", order.Type.String()).
			Int("status", status).
			Msg("Order rejected")
		return c.Status(status).JSON(models.ErrorResponse{Error: err.Error()})
	}

	log.Info().
		Uint64("order_id", uint64(result.OrderID)).
		Str("side", order.Side.String()).
		Str("type", order.Type.String()).
		Int64("price", int64(order.Price)).
		Int64("quantity", int64(order.Quantity)).
		Str("status", string(result.Status)).
		Int64("filled_quantity", int64(result.Filled)).
		Int("trades_count", len(result.Trades)).
		Msg("Order processed")

	response := models.SubmitOrderResponse{
		OrderID:           uint64(result.OrderID),
		Status:            string(result.Status),
		FilledQuantity:    int64(result.Filled),
		RemainingQuantity: int64(result.Remaining),
		Trades:            models.FromTrades(result.Trades),
	}

	switch result.Status {
	case engine.StatusResting:
		response.Message = "Order added to book"
		return c.Status(fiber.StatusCreated).JSON(response)
	case engine.StatusPartiallyFilled:
		response.Message = "Order partially filled, remainder added to book"
		return c.Status(fiber.StatusAccepted).JSON(response)
	case engine.StatusCancelled:
		response.Message = "Unfilled remainder discarded"
	case engine.StatusKilled:
		response.Message = "Order could not be filled in full"
	}
	return c.Status(fiber.StatusOK).JSON(response)
}

func (h *OrderHandler) CancelOrder(c *fiber.Ctx) error {
	id, err := parseOrderID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: err.Error()})
	}

	view, _, err := h.Exchange.Cancel(c.UserContext(), id)
	if err != nil {
		status := statusForError(err)
		log.Warn().
			Err(err).
			Uint64("order_id", uint64(id)).
			Str("ip", c.IP()).
			Msg("Cancel order failed")
		return c.Status(status).JSON(models.ErrorResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(models.CancelOrderResponse{
		OrderID:           uint64(view.ID),
		Status:            string(engine.StatusCancelled),
		RemainingQuantity: int64(view.Remaining),
	})
}

func (h *OrderHandler) GetOrderBook(c *fiber.Ctx) error {
	depth := c.QueryInt("depth", h.book.DefaultDepth)
	if depth <= 0 {
		depth = h.book.DefaultDepth
	}
	if depth > h.book.MaxDepth {
		depth = h.book.MaxDepth
	}

	snapshot, err := h.Exchange.Snapshot(c.UserContext(), depth)
	if err != nil {
		return c.Status(statusForError(err)).JSON(models.ErrorResponse{Error: err.Error()})
	}

	return c.Status(fiber.StatusOK).JSON(models.NewOrderBookResponse(snapshot, time.Now().UnixMilli()))
}

func (h *OrderHandler) GetOrderStatus(c *fiber.Ctx) error {
	id, err := parseOrderID(c)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(models.ErrorResponse{Error: err.Error()})
	}

	view, ok, err := h.Exchange.Order(c.UserContext(), id)
	if err != nil {
		return c.Status(statusForError(err)).JSON(models.ErrorResponse{Error: err.Error()})
	}
	if !ok {
		return c.Status(fiber.StatusNotFound).JSON(models.ErrorResponse{
			Error: "Order not found",
		})
	}

	status := engine.StatusResting
	if view.Filled() > 0 {
		status = engine.StatusPartiallyFilled
	}

	return c.Status(fiber.StatusOK).JSON(models.OrderStatusResponse{
		OrderID:        uint64(view.ID),
		Side:           view.Side.String(),
		Type:           view.Type.String(),
		Price:          int64(view.Price),
		Quantity:       int64(view.Original),
		FilledQuantity: int64(view.Filled()),
		Remaining:      int64(view.Remaining),
		Status:         string(status),
		Sequence:       view.Sequence,
		Timestamp:      view.Timestamp,
	})
}

func (h *OrderHandler) GetTrades(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", h.tape.DefaultLimit)
	if limit <= 0 {
		limit = h.tape.DefaultLimit
	}
	if limit > h.tape.MaxLimit {
		limit = h.tape.MaxLimit
	}

	trades, err := h.Trades.Recent(c.UserContext(), limit)
	if err != nil {
		log.Error().Err(err).Int("limit", limit).Msg("Failed to read trade history")
		return c.Status(fiber.StatusInternalServerError).JSON(models.ErrorResponse{
			Error: "Internal server error",
		})
	}

	return c.Status(fiber.StatusOK).JSON(models.TradesResponse{Trades: models.FromTrades(trades)})
}

func (h *OrderHandler) HealthCheck(c *fiber.Ctx) error {
	status := "healthy"
	code := fiber.StatusOK
	if !h.Exchange.Alive() {
		status = "unavailable"
		code = fiber.StatusServiceUnavailable
	}

	return c.Status(code).JSON(models.HealthResponse{
		Status:          status,
		UptimeSeconds:   int64(time.Since(h.StartTime).Seconds()),
		OrdersProcessed: h.Exchange.Stats().OrdersReceived,
	})
}

func (h *OrderHandler) Metrics(c *fiber.Ctx) error {
	stats := h.Exchange.Stats()
	p50, p99, p999 := h.calculateLatencyPercentiles()

	subscribers := 0
	if h.Hub != nil {
		subscribers = h.Hub.Len()
	}

	return c.Status(fiber.StatusOK).JSON(models.MetricsResponse{
		OrdersReceived:         stats.OrdersReceived,
		OrdersMatched:          stats.OrdersMatched,
		OrdersCancelled:        stats.OrdersCancelled,
		OrdersRejected:         stats.OrdersRejected,
		OrdersInBook:           int64(stats.OrdersInBook),
		TradesExecuted:         stats.TradesExecuted,
		TradesDropped:          stats.TradesDropped,
		Sequence:               stats.Sequence,
		Subscribers:            subscribers,
		LatencyP50Ms:           p50,
		LatencyP99Ms:           p99,
		LatencyP999Ms:          p999,
		ThroughputOrdersPerSec: h.calculateThroughput(stats.OrdersReceived),
	})
}

func (h *OrderHandler) recordLatency(latency time.Duration) {
	h.latenciesMu.Lock()
	defer h.latenciesMu.Unlock()

	h.latencies = append(h.latencies, latency)

	// rolling window
	if len(h.latencies) > maxLatencies {
		h.latencies = h.latencies[len(h.latencies)-maxLatencies:]
	}
}

func (h *OrderHandler) calculateLatencyPercentiles() (p50, p99, p999 float64) {
	h.latenciesMu.RLock()
	sorted := make([]time.Duration, len(h.latencies))
	copy(sorted, h.latencies)
	h.latenciesMu.RUnlock()

	if len(sorted) == 0 {
		return 0, 0, 0
	}

	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i] < sorted[j]
	})

	at := func(q float64) float64 {
		idx := int(float64(len(sorted)) * q)
		if idx >= len(sorted) {
			idx = len(sorted) - 1
		}
		return float64(sorted[idx].Nanoseconds()) / 1e6
	}

	return at(0.50), at(0.99), at(0.999)
}

func (h *OrderHandler) calculateThroughput(received int64) float64 {
	uptime := time.Since(h.StartTime).Seconds()
	if uptime <= 0 {
		return 0
	}
	return float64(received) / uptime
}

func toOrderRequest(req models.SubmitOrderRequest) (engine.OrderRequest, error) {
	side, err := engine.ParseSide(req.Side)
	if err != nil {
		return engine.OrderRequest{}, err
	}
	orderType, err := engine.ParseOrderType(req.Type)
	if err != nil {
		return engine.OrderRequest{}, err
	}

	return engine.OrderRequest{
		ID:       engine.OrderID(req.ID),
		Side:     side,
		Type:     orderType,
		Price:    engine.Price(req.Price),
		Quantity: engine.Quantity(req.Quantity),
	}, nil
}

func parseOrderID(c *fiber.Ctx) (engine.OrderID, error) {
	id, err := strconv.ParseUint(c.Params("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid order id")
	}
	return engine.OrderID(id), nil
}

func statusForError(err error) int {
	switch {
	case errors.Is(err, engine.ErrOrderNotFound):
		return fiber.StatusNotFound
	case errors.Is(err, engine.ErrDuplicateOrderID):
		return fiber.StatusConflict
	case errors.Is(err, engine.ErrInvalidQuantity),
		errors.Is(err, engine.ErrInvalidPrice),
		errors.Is(err, engine.ErrLevelFull),
		errors.Is(err, engine.ErrInvalidSide),
		errors.Is(err, engine.ErrInvalidOrderType):
		return fiber.StatusBadRequest
	case errors.Is(err, exchange.ErrClosed):
		return fiber.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		return fiber.StatusGatewayTimeout
	default:
		return fiber.StatusInternalServerError
	}
}
