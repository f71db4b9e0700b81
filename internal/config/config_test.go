package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoad(t *testing.T) {
	yaml := `
sampler:
  symbol: GBPUSD
  timezone: Europe/London
  poll_interval: 100ms
writer:
  batch_size: 200
  flush_interval: 1s
source:
  kind: bridge
  url: ws://localhost:8229/ws
sink:
  kind: timescale
  timescale:
    host: db.local
    port: 5433
    name: books
    user: relay
    password: secret
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Sampler.Symbol != "GBPUSD" {
		t.Errorf("Sampler.Symbol = %q, want %q", cfg.Sampler.Symbol, "GBPUSD")
	}
	if cfg.Sampler.PollInterval != 100*time.Millisecond {
		t.Errorf("Sampler.PollInterval = %v, want 100ms", cfg.Sampler.PollInterval)
	}
	if cfg.Writer.FlushInterval != time.Second {
		t.Errorf("Writer.FlushInterval = %v, want 1s", cfg.Writer.FlushInterval)
	}
	if cfg.Source.Kind != SourceBridge {
		t.Errorf("Source.Kind = %q, want %q", cfg.Source.Kind, SourceBridge)
	}
	if cfg.Sink.Timescale.Port != 5433 {
		t.Errorf("Sink.Timescale.Port = %d, want 5433", cfg.Sink.Timescale.Port)
	}
}

func TestLoadWithEnvSubstitution(t *testing.T) {
	t.Setenv("TEST_INFLUX_TOKEN", "tok-123")

	yaml := `
sink:
  kind: influx
  influx:
    token: ${TEST_INFLUX_TOKEN}
    org: desk
`
	path := writeTempFile(t, yaml)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.Sink.Influx.Token != "tok-123" {
		t.Errorf("Sink.Influx.Token = %q, want %q", cfg.Sink.Influx.Token, "tok-123")
	}
}

func TestLoadWithDefaults(t *testing.T) {
	yaml := `
sampler:
  symbol: XAUUSD
sink:
  timescale:
    user: relay
    password: secret
`
	path := writeTempFile(t, yaml)

	cfg, err := LoadWithDefaults(path)
	if err != nil {
		t.Fatalf("LoadWithDefaults failed: %v", err)
	}

	if cfg.Sampler.Timezone != DefaultTimezone {
		t.Errorf("Sampler.Timezone = %q, want default %q", cfg.Sampler.Timezone, DefaultTimezone)
	}
	if cfg.Sampler.PollInterval != DefaultPollInterval {
		t.Errorf("Sampler.PollInterval = %v, want default %v", cfg.Sampler.PollInterval, DefaultPollInterval)
	}
	if cfg.Writer.BatchSize != DefaultBatchSize {
		t.Errorf("Writer.BatchSize = %d, want default %d", cfg.Writer.BatchSize, DefaultBatchSize)
	}
	if cfg.Writer.FlushInterval != DefaultFlushInterval {
		t.Errorf("Writer.FlushInterval = %v, want default %v", cfg.Writer.FlushInterval, DefaultFlushInterval)
	}
	if cfg.Sink.Kind != SinkTimescale {
		t.Errorf("Sink.Kind = %q, want default %q", cfg.Sink.Kind, SinkTimescale)
	}
	if cfg.Sink.Timescale.Port != DefaultDBPort {
		t.Errorf("Sink.Timescale.Port = %d, want default %d", cfg.Sink.Timescale.Port, DefaultDBPort)
	}
	if cfg.Sink.Influx.Bucket != "orderbook_XAUUSD" {
		t.Errorf("Sink.Influx.Bucket = %q, want %q", cfg.Sink.Influx.Bucket, "orderbook_XAUUSD")
	}
	if cfg.Sink.Kafka.Topic != "orderbook.xauusd" {
		t.Errorf("Sink.Kafka.Topic = %q, want %q", cfg.Sink.Kafka.Topic, "orderbook.xauusd")
	}
	if cfg.Metrics.Port != DefaultMetricsPort {
		t.Errorf("Metrics.Port = %d, want default %d", cfg.Metrics.Port, DefaultMetricsPort)
	}

	if err := cfg.Validate(); err != nil {
		t.Errorf("defaults should validate, got %v", err)
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("SYMBOL", "USDJPY")
	t.Setenv("TIMEZONE", "UTC")
	t.Setenv("POLL_INTERVAL_MS", "20")
	t.Setenv("WRITE_BATCH_SIZE", "50")
	t.Setenv("WRITE_FLUSH_INTERVAL_MS", "100")
	t.Setenv("SINK_KIND", "influx")
	t.Setenv("INFLUX_TOKEN", "tok")
	t.Setenv("INFLUX_ORG", "desk")
	t.Setenv("INFLUX_BUCKET", "")
	t.Setenv("MT5_LOGIN", "1234")
	t.Setenv("MT5_PASSWORD", "pw")
	t.Setenv("MT5_SERVER", "Broker-Demo")

	cfg, err := LoadFromEnv()
	if err != nil {
		t.Fatalf("LoadFromEnv failed: %v", err)
	}

	if cfg.Sampler.Symbol != "USDJPY" {
		t.Errorf("Sampler.Symbol = %q, want USDJPY", cfg.Sampler.Symbol)
	}
	if cfg.Sampler.PollInterval != 20*time.Millisecond {
		t.Errorf("Sampler.PollInterval = %v, want 20ms", cfg.Sampler.PollInterval)
	}
	if cfg.Writer.BatchSize != 50 {
		t.Errorf("Writer.BatchSize = %d, want 50", cfg.Writer.BatchSize)
	}
	if cfg.Writer.FlushInterval != 100*time.Millisecond {
		t.Errorf("Writer.FlushInterval = %v, want 100ms", cfg.Writer.FlushInterval)
	}
	if cfg.Sink.Influx.Bucket != "orderbook_USDJPY" {
		t.Errorf("Sink.Influx.Bucket = %q, want orderbook_USDJPY", cfg.Sink.Influx.Bucket)
	}
	if !cfg.Terminal.HasCredentials() {
		t.Error("Terminal.HasCredentials() = false, want true")
	}
}

func TestLoadFromEnv_BadInt(t *testing.T) {
	t.Setenv("POLL_INTERVAL_MS", "fast")

	if _, err := LoadFromEnv(); err == nil {
		t.Fatal("expected error for non-numeric POLL_INTERVAL_MS")
	}
}

func TestValidate(t *testing.T) {
	valid := func() RelayConfig {
		return RelayConfig{
			Sampler: SamplerConfig{Symbol: "EURUSD", Timezone: "UTC", PollInterval: 50 * time.Millisecond},
			Writer:  WriterConfig{BatchSize: 500, FlushInterval: 250 * time.Millisecond, BufferSize: 1000},
			Source:  SourceConfig{Kind: SourceGateway, URL: "http://localhost:8228"},
			Sink: SinkConfig{
				Kind:      SinkTimescale,
				Timescale: DBConfig{Host: "localhost", Name: "db", User: "user", Password: "pass", MaxConns: 4, MinConns: 1},
			},
			Metrics: MetricsConfig{Port: 9090},
		}
	}

	tests := []struct {
		name    string
		mutate  func(*RelayConfig)
		wantErr string
	}{
		{
			name:    "valid config",
			mutate:  func(*RelayConfig) {},
			wantErr: "",
		},
		{
			name:    "missing symbol",
			mutate:  func(c *RelayConfig) { c.Sampler.Symbol = "" },
			wantErr: "sampler.symbol is required",
		},
		{
			name:    "zero poll interval",
			mutate:  func(c *RelayConfig) { c.Sampler.PollInterval = 0 },
			wantErr: "sampler.poll_interval must be > 0",
		},
		{
			name:    "zero batch size",
			mutate:  func(c *RelayConfig) { c.Writer.BatchSize = 0 },
			wantErr: "writer.batch_size must be >= 1",
		},
		{
			name:    "buffer smaller than batch",
			mutate:  func(c *RelayConfig) { c.Writer.BufferSize = 100 },
			wantErr: "writer.buffer_size (100) cannot be smaller than batch_size (500)",
		},
		{
			name:    "unknown source kind",
			mutate:  func(c *RelayConfig) { c.Source.Kind = "dll" },
			wantErr: `source.kind must be "gateway" or "bridge", got "dll"`,
		},
		{
			name:    "private key without key id",
			mutate:  func(c *RelayConfig) { c.Source.PrivateKeyPath = "/etc/relay/key.pem" },
			wantErr: "source.key_id is required when source.private_key_path is set",
		},
		{
			name:    "missing timescale password",
			mutate:  func(c *RelayConfig) { c.Sink.Timescale.Password = "" },
			wantErr: "sink.timescale.password is required",
		},
		{
			name:    "min_conns exceeds max_conns",
			mutate:  func(c *RelayConfig) { c.Sink.Timescale.MinConns = 10 },
			wantErr: "sink.timescale.min_conns (10) cannot exceed max_conns (4)",
		},
		{
			name: "influx without token",
			mutate: func(c *RelayConfig) {
				c.Sink.Kind = SinkInflux
				c.Sink.Influx.Org = "desk"
			},
			wantErr: "sink.influx.token and sink.influx.org are required",
		},
		{
			name:    "kafka without brokers",
			mutate:  func(c *RelayConfig) { c.Sink.Kind = SinkKafka },
			wantErr: "sink.kafka.brokers is required",
		},
		{
			name:    "bad metrics port",
			mutate:  func(c *RelayConfig) { c.Metrics.Port = 70000 },
			wantErr: "metrics.port must be between 1 and 65535, got 70000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(&cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() unexpected error: %v", err)
				}
			} else {
				if err == nil {
					t.Errorf("Validate() expected error containing %q, got nil", tt.wantErr)
				} else if err.Error() != tt.wantErr {
					t.Errorf("Validate() error = %q, want %q", err.Error(), tt.wantErr)
				}
			}
		})
	}
}

func TestValidate_UnknownTimezone(t *testing.T) {
	cfg := RelayConfig{Sampler: SamplerConfig{Symbol: "EURUSD", Timezone: "Mars/Olympus", PollInterval: time.Millisecond}}
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown timezone")
	}
}

func writeTempFile(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write temp file: %v", err)
	}
	return path
}
