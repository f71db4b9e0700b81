package writer

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/rickgao/orderbook-relay/internal/config"
	"github.com/rickgao/orderbook-relay/internal/database"
)

// NewCommitter builds the committer selected by cfg.Kind. The timescale
// variant connects and pings the database.
func NewCommitter(ctx context.Context, cfg config.SinkConfig, logger *slog.Logger) (Committer, error) {
	if logger == nil {
		logger = slog.Default()
	}
	switch cfg.Kind {
	case config.SinkTimescale:
		pool, err := database.Connect(ctx, cfg.Timescale)
		if err != nil {
			return nil, fmt.Errorf("connect timescale: %w", err)
		}
		return NewTimescaleCommitter(pool, logger), nil
	case config.SinkInflux:
		return NewInfluxCommitter(cfg.Influx, logger), nil
	case config.SinkKafka:
		return NewKafkaCommitter(cfg.Kafka, logger), nil
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Kind)
	}
}

// ConfigFrom converts the writer section of the relay config.
func ConfigFrom(cfg config.WriterConfig) Config {
	return Config{
		BatchSize:      cfg.BatchSize,
		FlushInterval:  cfg.FlushInterval,
		BufferSize:     cfg.BufferSize,
		RetryInterval:  cfg.RetryInterval,
		MaxRetryDelay:  cfg.MaxRetryDelay,
		MaxRetryWindow: cfg.MaxRetryWindow,
	}
}
