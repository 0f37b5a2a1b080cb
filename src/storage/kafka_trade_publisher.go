package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/segmentio/kafka-go"

	"proxima/src/config"
	"proxima/src/engine"
)

// KafkaTradePublisher streams trades to a topic, keyed by trade id. It is
// write-only.
type KafkaTradePublisher struct {
	writer *kafka.Writer
}

func NewKafkaTradePublisher(cfg config.KafkaConfig) *KafkaTradePublisher {
	return &KafkaTradePublisher{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(cfg.Brokers...),
			Topic:        cfg.Topic,
			Balancer:     &kafka.Hash{},
			RequiredAcks: kafka.RequireAll,
			Async:        false,
			BatchTimeout: 10 * time.Millisecond,
		},
	}
}

func (p *KafkaTradePublisher) Save(ctx context.Context, trades []engine.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(trades))
	for _, t := range trades {
		data, err := encodeTrade(t)
		if err != nil {
			return fmt.Errorf("encode trade %s: %w", t.TradeID, err)
		}
		msgs = append(msgs, kafka.Message{
			Key:   []byte(t.TradeID),
			Value: data,
			Time:  time.UnixMilli(t.Timestamp),
		})
	}

	if err := p.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("kafka publish trades: %w", err)
	}
	return nil
}

func (p *KafkaTradePublisher) Recent(context.Context, int) ([]engine.Trade, error) {
	return []engine.Trade{}, nil
}

func (p *KafkaTradePublisher) Close() error {
	return p.writer.Close()
}
