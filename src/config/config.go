package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all configuration for the venue process.
type Config struct {
	Server       ServerConfig
	Log          LogConfig
	RateLimit    RateLimitConfig
	Availability AvailabilityConfig
	Book         BookConfig
	Broadcast    BroadcastConfig
	Trades       TradesConfig
	Redis        RedisConfig
	Postgres     PostgresConfig
	Kafka        KafkaConfig
}

type ServerConfig struct {
	Port            string        `env:"PORT" envDefault:"8080"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	ReadTimeout     time.Duration `env:"SERVER_READ_TIMEOUT" envDefault:"15s"`
	WriteTimeout    time.Duration `env:"SERVER_WRITE_TIMEOUT" envDefault:"15s"`
}

type LogConfig struct {
	Level                  string `env:"LOG_LEVEL" envDefault:"info"`
	Format                 string `env:"LOG_FORMAT" envDefault:"json"`
	File                   string `env:"LOG_FILE"`
	RequestLoggingDisabled bool   `env:"REQUEST_LOGGING_DISABLED"`
}

type RateLimitConfig struct {
	Disabled    bool          `env:"RATE_LIMIT_DISABLED"`
	MaxRequests int           `env:"RATE_LIMIT_MAX" envDefault:"100"`
	Window      time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1s"`
}

type AvailabilityConfig struct {
	MaintenanceMode       bool  `env:"MAINTENANCE_MODE"`
	MaxConcurrentRequests int64 `env:"MAX_CONCURRENT_REQUESTS"`
}

type BookConfig struct {
	DefaultDepth int `env:"ORDERBOOK_DEFAULT_DEPTH" envDefault:"10"`
	MaxDepth     int `env:"ORDERBOOK_MAX_DEPTH" envDefault:"1000"`
	BTreeDegree  int `env:"ORDERBOOK_BTREE_DEGREE" envDefault:"32"`
	// CommandQueue bounds how many requests may wait for the engine loop.
	CommandQueue int `env:"ENGINE_COMMAND_QUEUE" envDefault:"1024"`
}

type BroadcastConfig struct {
	Depth            int           `env:"BROADCAST_DEPTH" envDefault:"50"`
	SubscriberBuffer int           `env:"BROADCAST_SUBSCRIBER_BUFFER" envDefault:"64"`
	PingInterval     time.Duration `env:"BROADCAST_PING_INTERVAL" envDefault:"30s"`
}

type TradesConfig struct {
	HistorySize  int `env:"TRADE_HISTORY_SIZE" envDefault:"1000"`
	DefaultLimit int `env:"DEFAULT_TRADE_LIMIT" envDefault:"100"`
	MaxLimit     int `env:"MAX_TRADE_LIMIT" envDefault:"1000"`
	// ReplicaQueue bounds trade batches waiting for Redis, Postgres and Kafka.
	ReplicaQueue   int           `env:"TRADE_REPLICA_QUEUE" envDefault:"4096"`
	ReplicaTimeout time.Duration `env:"TRADE_REPLICA_TIMEOUT" envDefault:"5s"`
}

type RedisConfig struct {
	Enabled   bool   `env:"REDIS_ENABLED"`
	Addr      string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	Password  string `env:"REDIS_PASSWORD"`
	DB        int    `env:"REDIS_DB"`
	Key       string `env:"REDIS_TRADES_KEY" envDefault:"proxima:trades"`
	MaxTrades int    `env:"REDIS_MAX_TRADES" envDefault:"10000"`
}

type PostgresConfig struct {
	Enabled  bool   `env:"POSTGRES_ENABLED"`
	DSN      string `env:"POSTGRES_DSN" envDefault:"postgres://postgres@localhost:5432/proxima?sslmode=disable"`
	MaxConns int32  `env:"POSTGRES_MAX_CONNS" envDefault:"10"`
}

type KafkaConfig struct {
	Enabled bool     `env:"KAFKA_ENABLED"`
	Brokers []string `env:"KAFKA_BROKERS" envSeparator:"," envDefault:"localhost:9092"`
	Topic   string   `env:"KAFKA_TRADES_TOPIC" envDefault:"proxima.trades"`
}

// Load reads an optional .env file and then the process environment.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("PORT cannot be empty"))
	}
	switch strings.ToLower(c.Log.Format) {
	case "json", "pretty":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be json or pretty, got %q", c.Log.Format))
	}
	if c.RateLimit.MaxRequests < 1 {
		errs = append(errs, errors.New("RATE_LIMIT_MAX must be > 0"))
	}
	if c.RateLimit.Window <= 0 {
		errs = append(errs, errors.New("RATE_LIMIT_WINDOW must be > 0"))
	}
	if c.Book.DefaultDepth < 1 {
		errs = append(errs, errors.New("ORDERBOOK_DEFAULT_DEPTH must be > 0"))
	}
	if c.Book.MaxDepth < c.Book.DefaultDepth {
		errs = append(errs, errors.New("ORDERBOOK_MAX_DEPTH must be >= ORDERBOOK_DEFAULT_DEPTH"))
	}
	if c.Book.CommandQueue < 1 {
		errs = append(errs, errors.New("ENGINE_COMMAND_QUEUE must be > 0"))
	}
	if c.Broadcast.SubscriberBuffer < 1 {
		errs = append(errs, errors.New("BROADCAST_SUBSCRIBER_BUFFER must be > 0"))
	}
	if c.Trades.HistorySize < 1 {
		errs = append(errs, errors.New("TRADE_HISTORY_SIZE must be > 0"))
	}
	if c.Trades.DefaultLimit < 1 || c.Trades.MaxLimit < c.Trades.DefaultLimit {
		errs = append(errs, errors.New("DEFAULT_TRADE_LIMIT must be > 0 and <= MAX_TRADE_LIMIT"))
	}
	if c.Trades.ReplicaQueue < 1 {
		errs = append(errs, errors.New("TRADE_REPLICA_QUEUE must be > 0"))
	}
	if c.Trades.ReplicaTimeout <= 0 {
		errs = append(errs, errors.New("TRADE_REPLICA_TIMEOUT must be > 0"))
	}
	if c.Kafka.Enabled && len(c.Kafka.Brokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS required when KAFKA_ENABLED"))
	}

	return errors.Join(errs...)
}
