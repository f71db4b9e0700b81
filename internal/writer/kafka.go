package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/rickgao/orderbook-relay/internal/config"
	"github.com/rickgao/orderbook-relay/internal/model"
)

// BatchIDHeader carries the flush identifier on every message of a batch.
const BatchIDHeader = "batch_id"

// kafkaRecord is the JSON value of one message.
type kafkaRecord struct {
	Symbol    string    `json:"symbol"`
	Side      string    `json:"side"`
	Level     int       `json:"level"`
	Type      int32     `json:"type"`
	Price     float64   `json:"price"`
	Volume    int64     `json:"volume"`
	VolumeDbl float64   `json:"volume_dbl"`
	Timestamp time.Time `json:"timestamp"`
	Timezone  string    `json:"timezone"`
}

type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaCommitter publishes each batch with one synchronous WriteMessages call.
type KafkaCommitter struct {
	writer messageWriter
	topic  string
	logger *slog.Logger
}

// NewKafkaCommitter creates a committer for cfg.Topic.
func NewKafkaCommitter(cfg config.KafkaConfig, logger *slog.Logger) *KafkaCommitter {
	if logger == nil {
		logger = slog.Default()
	}
	w := &kafka.Writer{
		Addr:         kafka.TCP(cfg.Brokers...),
		Topic:        cfg.Topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
		BatchTimeout: 10 * time.Millisecond,
	}
	return &KafkaCommitter{writer: w, topic: cfg.Topic, logger: logger}
}

// Name implements Committer.
func (c *KafkaCommitter) Name() string { return "kafka" }

// Commit publishes one message per record, keyed by symbol.
func (c *KafkaCommitter) Commit(ctx context.Context, records []model.Record) error {
	msgs, err := buildMessages(BatchID(ctx), records)
	if err != nil {
		return err
	}
	if err := c.writer.WriteMessages(ctx, msgs...); err != nil {
		return fmt.Errorf("publish %d messages to %s: %w", len(msgs), c.topic, err)
	}
	return nil
}

// Close flushes and closes the producer.
func (c *KafkaCommitter) Close() error {
	return c.writer.Close()
}

func buildMessages(batchID string, records []model.Record) ([]kafka.Message, error) {
	msgs := make([]kafka.Message, len(records))
	for i, r := range records {
		value, err := json.Marshal(kafkaRecord{
			Symbol:    r.Symbol,
			Side:      r.Side,
			Level:     r.Level,
			Type:      r.Type,
			Price:     r.Price,
			Volume:    r.Volume,
			VolumeDbl: r.VolumeDbl,
			Timestamp: r.Timestamp,
			Timezone:  r.Timezone,
		})
		if err != nil {
			return nil, fmt.Errorf("%w: marshal record %d: %w", ErrNonRetryable, i, err)
		}
		msgs[i] = kafka.Message{
			Key:   []byte(r.Symbol),
			Value: value,
			Time:  r.Timestamp,
		}
		if batchID != "" {
			msgs[i].Headers = []kafka.Header{{Key: BatchIDHeader, Value: []byte(batchID)}}
		}
	}
	return msgs, nil
}
