package storage

import (
	"encoding/json"

	"proxima/src/engine"
)

// tradeRecord is the wire form shared by the Redis and Kafka backends.
type tradeRecord struct {
	TradeID     string `json:"trade_id"`
	Price       int64  `json:"price"`
	Quantity    int64  `json:"quantity"`
	BuyOrderID  uint64 `json:"buy_order_id"`
	SellOrderID uint64 `json:"sell_order_id"`
	Aggressor   string `json:"aggressor"`
	Sequence    uint64 `json:"sequence"`
	Timestamp   int64  `json:"timestamp"`
}

func encodeTrade(t engine.Trade) ([]byte, error) {
	return json.Marshal(tradeRecord{
		TradeID:     t.TradeID,
		Price:       int64(t.Price),
		Quantity:    int64(t.Quantity),
		BuyOrderID:  uint64(t.BuyOrderID),
		SellOrderID: uint64(t.SellOrderID),
		Aggressor:   t.Aggressor.String(),
		Sequence:    t.Sequence,
		Timestamp:   t.Timestamp,
	})
}

func decodeTrade(data []byte) (engine.Trade, error) {
	var rec tradeRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return engine.Trade{}, err
	}
	aggressor, err := engine.ParseSide(rec.Aggressor)
	if err != nil {
		return engine.Trade{}, err
	}
	return engine.Trade{
		TradeID:     rec.TradeID,
		Price:       engine.Price(rec.Price),
		Quantity:    engine.Quantity(rec.Quantity),
		BuyOrderID:  engine.OrderID(rec.BuyOrderID),
		SellOrderID: engine.OrderID(rec.SellOrderID),
		Aggressor:   aggressor,
		Sequence:    rec.Sequence,
		Timestamp:   rec.Timestamp,
	}, nil
}
