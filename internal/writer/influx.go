package writer

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/rickgao/orderbook-relay/internal/config"
	"github.com/rickgao/orderbook-relay/internal/model"
)

// Measurement is the line-protocol measurement name.
const Measurement = "orderbook"

var tagEscaper = strings.NewReplacer(",", `\,`, "=", `\=`, " ", `\ `)

// EncodeLine renders a record as one line-protocol line:
//
//	orderbook,symbol=EURUSD,side=bid,timezone=Asia/Nicosia level=0i,type=1i,price=1.085420,volume=100i,volume_dbl=100.000000 1700000000000000000
func EncodeLine(r model.Record) string {
	var sb strings.Builder
	sb.Grow(160)

	sb.WriteString(Measurement)
	sb.WriteString(",symbol=")
	sb.WriteString(tagEscaper.Replace(r.Symbol))
	sb.WriteString(",side=")
	sb.WriteString(tagEscaper.Replace(r.Side))
	sb.WriteString(",timezone=")
	sb.WriteString(tagEscaper.Replace(strings.ReplaceAll(r.Timezone, " ", "_")))

	sb.WriteString(" level=")
	sb.WriteString(strconv.Itoa(r.Level))
	sb.WriteString("i,type=")
	sb.WriteString(strconv.FormatInt(int64(r.Type), 10))
	sb.WriteString("i,price=")
	sb.WriteString(strconv.FormatFloat(r.Price, 'f', 6, 64))
	sb.WriteString(",volume=")
	sb.WriteString(strconv.FormatInt(r.Volume, 10))
	sb.WriteString("i,volume_dbl=")
	sb.WriteString(strconv.FormatFloat(r.VolumeDbl, 'f', 6, 64))

	sb.WriteByte(' ')
	sb.WriteString(strconv.FormatInt(r.Timestamp.UnixNano(), 10))
	return sb.String()
}

// InfluxCommitter writes each batch with one blocking line-protocol write.
type InfluxCommitter struct {
	client influxdb2.Client
	write  api.WriteAPIBlocking
	bucket string
	logger *slog.Logger
}

// NewInfluxCommitter creates a committer for cfg.Bucket.
func NewInfluxCommitter(cfg config.InfluxConfig, logger *slog.Logger) *InfluxCommitter {
	if logger == nil {
		logger = slog.Default()
	}
	opts := influxdb2.DefaultOptions().SetPrecision(time.Nanosecond)
	client := influxdb2.NewClientWithOptions(cfg.URL, cfg.Token, opts)
	return &InfluxCommitter{
		client: client,
		write:  client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		bucket: cfg.Bucket,
		logger: logger,
	}
}

// Name implements Committer.
func (c *InfluxCommitter) Name() string { return "influx" }

// Commit writes all records in a single request.
func (c *InfluxCommitter) Commit(ctx context.Context, records []model.Record) error {
	lines := make([]string, len(records))
	for i, r := range records {
		lines[i] = EncodeLine(r)
	}
	if err := c.write.WriteRecord(ctx, lines...); err != nil {
		return fmt.Errorf("write %d lines to %s: %w", len(lines), c.bucket, err)
	}
	return nil
}

// Close releases the client's idle connections.
func (c *InfluxCommitter) Close() error {
	c.client.Close()
	return nil
}
