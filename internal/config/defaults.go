package config

import (
	"strings"
	"time"
)

// Default values for optional configuration fields.
const (
	DefaultSymbol         = "EURUSD"
	DefaultTimezone       = "Asia/Nicosia"
	DefaultPollInterval   = 50 * time.Millisecond
	DefaultBatchSize      = 500
	DefaultFlushInterval  = 250 * time.Millisecond
	DefaultBufferSize     = 100000
	DefaultRetryInterval  = 2 * time.Second
	DefaultMaxRetryDelay  = 10 * time.Second
	DefaultMaxRetryWindow = 30 * time.Second
	DefaultSourceKind     = SourceGateway
	DefaultSourceURL      = "http://localhost:8228"
	DefaultSourceTimeout  = 2 * time.Second
	DefaultSinkKind       = SinkTimescale
	DefaultDBHost         = "localhost"
	DefaultDBPort         = 5432
	DefaultDBName         = "mt5_orderbook"
	DefaultDBSSLMode      = "prefer"
	DefaultMaxConns       = 4
	DefaultMinConns       = 1
	DefaultInfluxURL      = "http://localhost:8086"
	DefaultMetricsPort    = 9090
	DefaultMetricsPath    = "/metrics"
)

func (c *RelayConfig) applyDefaults() {
	// Sampler defaults
	if c.Sampler.Symbol == "" {
		c.Sampler.Symbol = DefaultSymbol
	}
	if c.Sampler.Timezone == "" {
		c.Sampler.Timezone = DefaultTimezone
	}
	if c.Sampler.PollInterval == 0 {
		c.Sampler.PollInterval = DefaultPollInterval
	}

	// Writer defaults
	if c.Writer.BatchSize == 0 {
		c.Writer.BatchSize = DefaultBatchSize
	}
	if c.Writer.FlushInterval == 0 {
		c.Writer.FlushInterval = DefaultFlushInterval
	}
	if c.Writer.BufferSize == 0 {
		c.Writer.BufferSize = DefaultBufferSize
	}
	if c.Writer.RetryInterval == 0 {
		c.Writer.RetryInterval = DefaultRetryInterval
	}
	if c.Writer.MaxRetryDelay == 0 {
		c.Writer.MaxRetryDelay = DefaultMaxRetryDelay
	}
	if c.Writer.MaxRetryWindow == 0 {
		c.Writer.MaxRetryWindow = DefaultMaxRetryWindow
	}

	// Source defaults
	if c.Source.Kind == "" {
		c.Source.Kind = DefaultSourceKind
	}
	if c.Source.URL == "" {
		c.Source.URL = DefaultSourceURL
	}
	if c.Source.Timeout == 0 {
		c.Source.Timeout = DefaultSourceTimeout
	}

	// Sink defaults
	if c.Sink.Kind == "" {
		c.Sink.Kind = DefaultSinkKind
	}
	applyDBDefaults(&c.Sink.Timescale)
	if c.Sink.Influx.URL == "" {
		c.Sink.Influx.URL = DefaultInfluxURL
	}
	if c.Sink.Influx.Bucket == "" {
		c.Sink.Influx.Bucket = "orderbook_" + c.Sampler.Symbol
	}
	if c.Sink.Kafka.Topic == "" {
		c.Sink.Kafka.Topic = "orderbook." + strings.ToLower(c.Sampler.Symbol)
	}

	// Metrics defaults
	if c.Metrics.Port == 0 {
		c.Metrics.Port = DefaultMetricsPort
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
}

func applyDBDefaults(db *DBConfig) {
	if db.Host == "" {
		db.Host = DefaultDBHost
	}
	if db.Port == 0 {
		db.Port = DefaultDBPort
	}
	if db.Name == "" {
		db.Name = DefaultDBName
	}
	if db.SSLMode == "" {
		db.SSLMode = DefaultDBSSLMode
	}
	if db.MaxConns == 0 {
		db.MaxConns = DefaultMaxConns
	}
	if db.MinConns == 0 {
		db.MinConns = DefaultMinConns
	}
}
