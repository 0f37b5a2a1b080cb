package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"proxima/src/config"
	"proxima/src/engine"
)

const createTradesTable = `
CREATE TABLE IF NOT EXISTS trades (
	id            BIGSERIAL PRIMARY KEY,
	trade_id      TEXT        NOT NULL UNIQUE,
	price         BIGINT      NOT NULL,
	quantity      BIGINT      NOT NULL,
	buy_order_id  BIGINT      NOT NULL,
	sell_order_id BIGINT      NOT NULL,
	aggressor     TEXT        NOT NULL,
	sequence      BIGINT      NOT NULL,
	executed_at   TIMESTAMPTZ NOT NULL
)`

const insertTrade = `
INSERT INTO trades (trade_id, price, quantity, buy_order_id, sell_order_id, aggressor, sequence, executed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
ON CONFLICT (trade_id) DO NOTHING`

const selectRecentTrades = `
SELECT trade_id, price, quantity, buy_order_id, sell_order_id, aggressor, sequence, executed_at
FROM trades
ORDER BY id DESC
LIMIT $1`

// PostgresTradeStore appends the tape to a trades table using pgx batches.
type PostgresTradeStore struct {
	pool *pgxpool.Pool
}

func NewPostgresTradeStore(ctx context.Context, cfg config.PostgresConfig) (*PostgresTradeStore, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolConfig.MaxConns = cfg.MaxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	if _, err := pool.Exec(ctx, createTradesTable); err != nil {
		pool.Close()
		return nil, fmt.Errorf("migrate trades table: %w", err)
	}

	return &PostgresTradeStore{pool: pool}, nil
}

func (s *PostgresTradeStore) Save(ctx context.Context, trades []engine.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, t := range trades {
		batch.Queue(insertTrade,
			t.TradeID, int64(t.Price), int64(t.Quantity),
			int64(t.BuyOrderID), int64(t.SellOrderID),
			t.Aggressor.String(), int64(t.Sequence), time.UnixMilli(t.Timestamp),
		)
	}

	results := s.pool.SendBatch(ctx, batch)
	defer results.Close()

	for range trades {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("insert trade: %w", err)
		}
	}
	return nil
}

func (s *PostgresTradeStore) Recent(ctx context.Context, limit int) ([]engine.Trade, error) {
	if limit <= 0 {
		limit = 100
	}

	rows, err := s.pool.Query(ctx, selectRecentTrades, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent trades: %w", err)
	}
	defer rows.Close()

	trades := make([]engine.Trade, 0, limit)
	for rows.Next() {
		var (
			t                    engine.Trade
			price, qty, buy, sel int64
			seq                  int64
			aggressor            string
			executedAt           time.Time
		)
		if err := rows.Scan(&t.TradeID, &price, &qty, &buy, &sel, &aggressor, &seq, &executedAt); err != nil {
			return nil, fmt.Errorf("scan trade: %w", err)
		}
		side, err := engine.ParseSide(aggressor)
		if err != nil {
			return nil, err
		}
		t.Price = engine.Price(price)
		t.Quantity = engine.Quantity(qty)
		t.BuyOrderID = engine.OrderID(buy)
		t.SellOrderID = engine.OrderID(sel)
		t.Aggressor = side
		t.Sequence = uint64(seq)
		t.Timestamp = executedAt.UnixMilli()
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

func (s *PostgresTradeStore) Close() error {
	s.pool.Close()
	return nil
}
