package models

import "proxima/src/engine"

type SubmitOrderRequest struct {
	ID       uint64 `json:"id,omitempty"` // optional, generated when zero
	Side     string `json:"side"`
	Type     string `json:"type"`
	Price    int64  `json:"price"` // integer ticks, ignored for MARKET
	Quantity int64  `json:"quantity"`
}

type SubmitOrderResponse struct {
	OrderID           uint64      `json:"order_id"`
	Status            string      `json:"status"`
	Message           string      `json:"message,omitempty"`
	FilledQuantity    int64       `json:"filled_quantity"`
	RemainingQuantity int64       `json:"remaining_quantity"`
	Trades            []TradeInfo `json:"trades"`
}

type TradeInfo struct {
	TradeID     string `json:"trade_id"`
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
	BuyOrderID  uint64 `json:"buy_order_id"`
	SellOrderID uint64 `json:"sell_order_id"`
	Aggressor   string `json:"aggressor"`
	Sequence    uint64 `json:"sequence"`
	Timestamp   int64  `json:"timestamp"` // unix milliseconds
}

type CancelOrderResponse struct {
	OrderID           uint64 `json:"order_id"`
	Status            string `json:"status"`
	RemainingQuantity int64  `json:"remaining_quantity"`
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type OrderBookResponse struct {
	Sequence  uint64           `json:"sequence"`
	Timestamp int64            `json:"timestamp"` // unix milliseconds
	BestBid   *int64           `json:"best_bid"`
	BestAsk   *int64           `json:"best_ask"`
	Spread    *int64           `json:"spread"`
	Bids      []PriceLevelInfo `json:"bids"` // highest first
	Asks      []PriceLevelInfo `json:"asks"` // lowest first
}

type PriceLevelInfo struct {
	Price      int64 `json:"price"`
	Quantity   int64 `json:"quantity"`
	OrderCount int   `json:"order_count"`
}

type OrderStatusResponse struct {
	OrderID        uint64 `json:"order_id"`
	Side           string `json:"side"`
	Type           string `json:"type"`
	Price          int64  `json:"price"`
	Quantity       int64  `json:"quantity"`
	FilledQuantity int64  `json:"filled_quantity"`
	Remaining      int64  `json:"remaining_quantity"`
	Status         string `json:"status"`
	Sequence       uint64 `json:"sequence"`
	Timestamp      int64  `json:"timestamp"`
}

type TradesResponse struct {
	Trades []TradeInfo `json:"trades"`
}

type HealthResponse struct {
	Status          string `json:"status"`
	UptimeSeconds   int64  `json:"uptime_seconds"`
	OrdersProcessed int64  `json:"orders_processed"`
}

type MetricsResponse struct {
	OrdersReceived         int64   `json:"orders_received"`
	OrdersMatched          int64   `json:"orders_matched"`
	OrdersCancelled        int64   `json:"orders_cancelled"`
	OrdersRejected         int64   `json:"orders_rejected"`
	OrdersInBook           int64   `json:"orders_in_book"`
	TradesExecuted         int64   `json:"trades_executed"`
	TradesDropped          int64   `json:"trades_dropped"`
	Sequence               uint64  `json:"sequence"`
	Subscribers            int     `json:"subscribers"`
	LatencyP50Ms           float64 `json:"latency_p50_ms"`
	LatencyP99Ms           float64 `json:"latency_p99_ms"`
	LatencyP999Ms          float64 `json:"latency_p999_ms"`
	ThroughputOrdersPerSec float64 `json:"throughput_orders_per_sec"`
}

// BookFrame is pushed to stream subscribers after every book mutation.
type BookFrame struct {
	Type     string           `json:"type"`
	Sequence uint64           `json:"sequence"`
	Bids     []PriceLevelInfo `json:"bids"`
	Asks     []PriceLevelInfo `json:"asks"`
	Trades   []TradeInfo      `json:"trades"`
}

func FromTrade(t engine.Trade) TradeInfo {
	return TradeInfo{
		TradeID:     t.TradeID,
		Price:       int64(t.Price),
		Quantity:    int64(t.Quantity),
		BuyOrderID:  uint64(t.BuyOrderID),
		SellOrderID: uint64(t.SellOrderID),
		Aggressor:   t.Aggressor.String(),
		Sequence:    t.Sequence,
		Timestamp:   t.Timestamp,
	}
}

func FromTrades(trades []engine.Trade) []TradeInfo {
	out := make([]TradeInfo, 0, len(trades))
	for _, t := range trades {
		out = append(out, FromTrade(t))
	}
	return out
}

func FromLevels(levels []engine.LevelInfo) []PriceLevelInfo {
	out := make([]PriceLevelInfo, 0, len(levels))
	for _, l := range levels {
		out = append(out, PriceLevelInfo{
			Price:      int64(l.Price),
			Quantity:   int64(l.Quantity),
			OrderCount: l.OrderCount,
		})
	}
	return out
}

func NewBookFrame(s engine.Snapshot, trades []engine.Trade) BookFrame {
	return BookFrame{
		Type:     "book",
		Sequence: s.Sequence,
		Bids:     FromLevels(s.Bids),
		Asks:     FromLevels(s.Asks),
		Trades:   FromTrades(trades),
	}
}

func NewOrderBookResponse(s engine.Snapshot, now int64) OrderBookResponse {
	resp := OrderBookResponse{
		Sequence:  s.Sequence,
		Timestamp: now,
		Bids:      FromLevels(s.Bids),
		Asks:      FromLevels(s.Asks),
	}
	if bid, ok := s.BestBid(); ok {
		p := int64(bid.Price)
		resp.BestBid = &p
	}
	if ask, ok := s.BestAsk(); ok {
		p := int64(ask.Price)
		resp.BestAsk = &p
	}
	if spread, ok := s.Spread(); ok {
		p := int64(spread)
		resp.Spread = &p
	}
	return resp
}
