package storage

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"

	"proxima/src/config"
	"proxima/src/engine"
)

// RedisTradeStore keeps the tape in a sorted set scored by trade sequence,
// trimmed to the newest maxTrades members.
type RedisTradeStore struct {
	client    redis.UniversalClient
	key       string
	maxTrades int
}

func NewRedisTradeStore(ctx context.Context, cfg config.RedisConfig) (*RedisTradeStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", cfg.Addr, err)
	}
	return NewRedisTradeStoreWithClient(client, cfg.Key, cfg.MaxTrades), nil
}

func NewRedisTradeStoreWithClient(client redis.UniversalClient, key string, maxTrades int) *RedisTradeStore {
	if maxTrades < 1 {
		maxTrades = 1
	}
	return &RedisTradeStore{client: client, key: key, maxTrades: maxTrades}
}

func (s *RedisTradeStore) Save(ctx context.Context, trades []engine.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	pipe := s.client.Pipeline()
	for _, t := range trades {
		data, err := encodeTrade(t)
		if err != nil {
			return fmt.Errorf("encode trade %s: %w", t.TradeID, err)
		}
		pipe.ZAdd(ctx, s.key, redis.Z{
			Score:  float64(t.Sequence),
			Member: data,
		})
	}
	pipe.ZRemRangeByRank(ctx, s.key, 0, int64(-s.maxTrades-1))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis save trades: %w", err)
	}
	return nil
}

func (s *RedisTradeStore) Recent(ctx context.Context, limit int) ([]engine.Trade, error) {
	if limit <= 0 {
		limit = s.maxTrades
	}

	members, err := s.client.ZRevRange(ctx, s.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("redis recent trades: %w", err)
	}

	trades := make([]engine.Trade, 0, len(members))
	for _, m := range members {
		t, err := decodeTrade([]byte(m))
		if err != nil {
			log.Warn().Err(err).Str("key", s.key).Msg("Skipping undecodable trade")
			continue
		}
		trades = append(trades, t)
	}
	return trades, nil
}

func (s *RedisTradeStore) Close() error {
	return s.client.Close()
}
