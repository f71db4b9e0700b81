package config

import "time"

// Source kinds.
const (
	SourceGateway = "gateway"
	SourceBridge  = "bridge"
)

// Sink kinds.
const (
	SinkTimescale = "timescale"
	SinkInflux    = "influx"
	SinkKafka     = "kafka"
)

// RelayConfig is the root configuration for a relay instance.
type RelayConfig struct {
	Sampler  SamplerConfig  `yaml:"sampler"`
	Writer   WriterConfig   `yaml:"writer"`
	Source   SourceConfig   `yaml:"source"`
	Terminal TerminalConfig `yaml:"terminal"`
	Sink     SinkConfig     `yaml:"sink"`
	Metrics  MetricsConfig  `yaml:"metrics"`
}

// SamplerConfig holds snapshot poller settings.
type SamplerConfig struct {
	Symbol       string        `yaml:"symbol"`
	Timezone     string        `yaml:"timezone"` // IANA name, also written verbatim as the timezone label
	PollInterval time.Duration `yaml:"poll_interval"`
}

// WriterConfig holds batch writer settings.
type WriterConfig struct {
	BatchSize      int           `yaml:"batch_size"`
	FlushInterval  time.Duration `yaml:"flush_interval"`
	BufferSize     int           `yaml:"buffer_size"`
	RetryInterval  time.Duration `yaml:"retry_interval"`
	MaxRetryDelay  time.Duration `yaml:"max_retry_delay"`
	MaxRetryWindow time.Duration `yaml:"max_retry_window"`
}

// SourceConfig selects and configures the snapshot source.
type SourceConfig struct {
	Kind           string        `yaml:"kind"` // "gateway" or "bridge"
	URL            string        `yaml:"url"`
	Timeout        time.Duration `yaml:"timeout"`
	KeyID          string        `yaml:"key_id"`           // Optional request signing key ID
	PrivateKeyPath string        `yaml:"private_key_path"` // Path to RSA private key PEM file
}

// TerminalConfig holds the trading terminal connection parameters.
// All fields are optional: an empty config means the terminal is assumed to
// be running and logged in already.
type TerminalConfig struct {
	Path     string `yaml:"path"`
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
	Server   string `yaml:"server"`
}

// HasCredentials reports whether login, password and server are all set.
func (t TerminalConfig) HasCredentials() bool {
	return t.Login != "" && t.Password != "" && t.Server != ""
}

// SinkConfig selects and configures the downstream store.
type SinkConfig struct {
	Kind      string       `yaml:"kind"` // "timescale", "influx" or "kafka"
	Timescale DBConfig     `yaml:"timescale"`
	Influx    InfluxConfig `yaml:"influx"`
	Kafka     KafkaConfig  `yaml:"kafka"`
}

// DBConfig holds a single database connection.
type DBConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Name     string `yaml:"name"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	SSLMode  string `yaml:"ssl_mode"`
	MaxConns int    `yaml:"max_conns"`
	MinConns int    `yaml:"min_conns"`
}

// InfluxConfig holds InfluxDB v2 settings.
type InfluxConfig struct {
	URL    string `yaml:"url"`
	Token  string `yaml:"token"`
	Org    string `yaml:"org"`
	Bucket string `yaml:"bucket"` // Defaults to orderbook_<symbol>
}

// KafkaConfig holds Kafka producer settings.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic"` // Defaults to orderbook.<symbol>
}

// MetricsConfig holds Prometheus metrics and health server settings.
type MetricsConfig struct {
	Port int    `yaml:"port"`
	Path string `yaml:"path"`
}
