package config

import (
	"errors"
	"fmt"
	"time"
)

// Validate checks that all required fields are set and values are valid.
func (c *RelayConfig) Validate() error {
	if c.Sampler.Symbol == "" {
		return errors.New("sampler.symbol is required")
	}
	if _, err := time.LoadLocation(c.Sampler.Timezone); err != nil {
		return fmt.Errorf("sampler.timezone %q is not a known timezone: %w", c.Sampler.Timezone, err)
	}
	if c.Sampler.PollInterval <= 0 {
		return errors.New("sampler.poll_interval must be > 0")
	}

	if c.Writer.BatchSize < 1 {
		return errors.New("writer.batch_size must be >= 1")
	}
	if c.Writer.FlushInterval <= 0 {
		return errors.New("writer.flush_interval must be > 0")
	}
	if c.Writer.BufferSize < c.Writer.BatchSize {
		return fmt.Errorf("writer.buffer_size (%d) cannot be smaller than batch_size (%d)", c.Writer.BufferSize, c.Writer.BatchSize)
	}
	if c.Writer.RetryInterval < 0 || c.Writer.MaxRetryWindow < 0 {
		return errors.New("writer retry settings must be >= 0")
	}

	switch c.Source.Kind {
	case SourceGateway, SourceBridge:
	default:
		return fmt.Errorf("source.kind must be %q or %q, got %q", SourceGateway, SourceBridge, c.Source.Kind)
	}
	if c.Source.URL == "" {
		return errors.New("source.url is required")
	}
	if c.Source.PrivateKeyPath != "" && c.Source.KeyID == "" {
		return errors.New("source.key_id is required when source.private_key_path is set")
	}

	switch c.Sink.Kind {
	case SinkTimescale:
		if err := c.Sink.Timescale.validate("sink.timescale"); err != nil {
			return err
		}
	case SinkInflux:
		if c.Sink.Influx.Token == "" || c.Sink.Influx.Org == "" {
			return errors.New("sink.influx.token and sink.influx.org are required")
		}
	case SinkKafka:
		if len(c.Sink.Kafka.Brokers) == 0 {
			return errors.New("sink.kafka.brokers is required")
		}
	default:
		return fmt.Errorf("sink.kind must be one of %q, %q, %q, got %q", SinkTimescale, SinkInflux, SinkKafka, c.Sink.Kind)
	}

	if c.Metrics.Port < 1 || c.Metrics.Port > 65535 {
		return fmt.Errorf("metrics.port must be between 1 and 65535, got %d", c.Metrics.Port)
	}

	return nil
}

func (db *DBConfig) validate(prefix string) error {
	if db.Host == "" {
		return fmt.Errorf("%s.host is required", prefix)
	}
	if db.Name == "" {
		return fmt.Errorf("%s.name is required", prefix)
	}
	if db.User == "" {
		return fmt.Errorf("%s.user is required", prefix)
	}
	if db.Password == "" {
		return fmt.Errorf("%s.password is required", prefix)
	}
	if db.MaxConns < 1 {
		return fmt.Errorf("%s.max_conns must be >= 1", prefix)
	}
	if db.MinConns < 0 {
		return fmt.Errorf("%s.min_conns must be >= 0", prefix)
	}
	if db.MinConns > db.MaxConns {
		return fmt.Errorf("%s.min_conns (%d) cannot exceed max_conns (%d)", prefix, db.MinConns, db.MaxConns)
	}
	return nil
}
