package storage

import (
	"context"

	"proxima/src/engine"
)

// TradeStore records executed trades. Implementations range from a bounded
// in-memory tape to Redis, PostgreSQL and Kafka.
type TradeStore interface {
	// Save appends trades in execution order.
	Save(ctx context.Context, trades []engine.Trade) error

	// Recent returns up to limit trades, newest first. Write-only stores
	// return an empty slice.
	Recent(ctx context.Context, limit int) ([]engine.Trade, error)

	Close() error
}
