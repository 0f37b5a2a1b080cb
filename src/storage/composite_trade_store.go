package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"proxima/src/config"
	"proxima/src/engine"
)

// CompositeTradeStore fans writes out to every backend and serves reads from
// the primary, which is always the in-memory tape.
type CompositeTradeStore struct {
	primary   TradeStore
	secondary []TradeStore
}

func NewCompositeTradeStore(primary TradeStore, secondary ...TradeStore) *CompositeTradeStore {
	return &CompositeTradeStore{primary: primary, secondary: secondary}
}

// Save writes the primary first; a failing secondary is reported but does not
// stop the others.
func (s *CompositeTradeStore) Save(ctx context.Context, trades []engine.Trade) error {
	if err := s.primary.Save(ctx, trades); err != nil {
		return err
	}
	return s.SaveReplicas(ctx, trades)
}

// Tape is the in-memory store that serves reads.
func (s *CompositeTradeStore) Tape() TradeStore {
	return s.primary
}

func (s *CompositeTradeStore) HasReplicas() bool {
	return len(s.secondary) > 0
}

// SaveReplicas writes only to the network backends. It is meant to run off
// the matching path, after Tape has already recorded the trades.
func (s *CompositeTradeStore) SaveReplicas(ctx context.Context, trades []engine.Trade) error {
	var errs []error
	for _, store := range s.secondary {
		if err := store.Save(ctx, trades); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *CompositeTradeStore) Recent(ctx context.Context, limit int) ([]engine.Trade, error) {
	return s.primary.Recent(ctx, limit)
}

func (s *CompositeTradeStore) Close() error {
	errs := []error{s.primary.Close()}
	for _, store := range s.secondary {
		errs = append(errs, store.Close())
	}
	return errors.Join(errs...)
}

// Build assembles the trade tape from configuration. Backends that fail to
// connect abort startup.
func Build(ctx context.Context, cfg *config.Config) (*CompositeTradeStore, error) {
	var secondary []TradeStore
	closeAll := func() {
		for _, s := range secondary {
			_ = s.Close()
		}
	}

	if cfg.Redis.Enabled {
		store, err := NewRedisTradeStore(ctx, cfg.Redis)
		if err != nil {
			return nil, err
		}
		secondary = append(secondary, store)
		log.Info().Str("addr", cfg.Redis.Addr).Str("key", cfg.Redis.Key).Msg("Redis trade store enabled")
	}

	if cfg.Postgres.Enabled {
		store, err := NewPostgresTradeStore(ctx, cfg.Postgres)
		if err != nil {
			closeAll()
			return nil, err
		}
		secondary = append(secondary, store)
		log.Info().Msg("Postgres trade store enabled")
	}

	if cfg.Kafka.Enabled {
		if cfg.Kafka.Topic == "" {
			closeAll()
			return nil, fmt.Errorf("kafka enabled without topic")
		}
		secondary = append(secondary, NewKafkaTradePublisher(cfg.Kafka))
		log.Info().Strs("brokers", cfg.Kafka.Brokers).Str("topic", cfg.Kafka.Topic).Msg("Kafka trade publisher enabled")
	}

	return NewCompositeTradeStore(NewMemoryTradeStore(cfg.Trades.HistorySize), secondary...), nil
}
