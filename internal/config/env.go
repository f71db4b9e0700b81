package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// LoadFromEnv builds a config from flat environment variables, applies
// defaults and validates it.
func LoadFromEnv() (*RelayConfig, error) {
	pollMS, err := envInt("POLL_INTERVAL_MS", 0)
	if err != nil {
		return nil, err
	}
	batchSize, err := envInt("WRITE_BATCH_SIZE", 0)
	if err != nil {
		return nil, err
	}
	flushMS, err := envInt("WRITE_FLUSH_INTERVAL_MS", 0)
	if err != nil {
		return nil, err
	}
	retryMS, err := envInt("WRITE_RETRY_INTERVAL_MS", 0)
	if err != nil {
		return nil, err
	}
	dbPort, err := envInt("DB_PORT", 0)
	if err != nil {
		return nil, err
	}
	metricsPort, err := envInt("METRICS_PORT", 0)
	if err != nil {
		return nil, err
	}

	cfg := &RelayConfig{
		Sampler: SamplerConfig{
			Symbol:       envString("SYMBOL"),
			Timezone:     envString("TIMEZONE"),
			PollInterval: time.Duration(pollMS) * time.Millisecond,
		},
		Writer: WriterConfig{
			BatchSize:     batchSize,
			FlushInterval: time.Duration(flushMS) * time.Millisecond,
			RetryInterval: time.Duration(retryMS) * time.Millisecond,
		},
		Source: SourceConfig{
			Kind:           envString("SOURCE_KIND"),
			URL:            envString("SOURCE_URL"),
			KeyID:          envString("SOURCE_KEY_ID"),
			PrivateKeyPath: envString("SOURCE_PRIVATE_KEY_PATH"),
		},
		Terminal: TerminalConfig{
			Path:     envString("MT5_TERMINAL_PATH"),
			Login:    envString("MT5_LOGIN"),
			Password: envString("MT5_PASSWORD"),
			Server:   envString("MT5_SERVER"),
		},
		Sink: SinkConfig{
			Kind: envString("SINK_KIND"),
			Timescale: DBConfig{
				Host:     envString("DB_HOST"),
				Port:     dbPort,
				Name:     envString("DB_NAME"),
				User:     envString("DB_USER"),
				Password: envString("DB_PASSWORD"),
				SSLMode:  envString("DB_SSLMODE"),
			},
			Influx: InfluxConfig{
				URL:    envString("INFLUX_URL"),
				Token:  envString("INFLUX_TOKEN"),
				Org:    envString("INFLUX_ORG"),
				Bucket: envString("INFLUX_BUCKET"),
			},
			Kafka: KafkaConfig{
				Brokers: envList("KAFKA_BROKERS"),
				Topic:   envString("KAFKA_TOPIC"),
			},
		},
		Metrics: MetricsConfig{
			Port: metricsPort,
		},
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}
	return cfg, nil
}

// envString treats unset and empty variables alike.
func envString(key string) string {
	return strings.TrimSpace(os.Getenv(key))
}

func envInt(key string, fallback int) (int, error) {
	value := envString(key)
	if value == "" {
		return fallback, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("convert %s value %q to int: %w", key, value, err)
	}
	return parsed, nil
}

func envList(key string) []string {
	value := envString(key)
	if value == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
