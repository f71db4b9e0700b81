package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/orderbook-relay/internal/connection"
	"github.com/rickgao/orderbook-relay/internal/model"
	"github.com/rickgao/orderbook-relay/internal/poller"
	"github.com/rickgao/orderbook-relay/internal/writer"
)

// Namespace prefixes every metric name.
const Namespace = "orderbook_relay"

// NewRegistry returns a registry with the Go runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// Handler serves the registry in the Prometheus exposition format.
func Handler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

func counter(subsystem, name, help string, labels prometheus.Labels, fn func() float64) prometheus.Collector {
	return prometheus.NewCounterFunc(prometheus.CounterOpts{
		Namespace:   Namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	}, fn)
}

func gauge(subsystem, name, help string, labels prometheus.Labels, fn func() float64) prometheus.Collector {
	return prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace:   Namespace,
		Subsystem:   subsystem,
		Name:        name,
		Help:        help,
		ConstLabels: labels,
	}, fn)
}

func register(reg prometheus.Registerer, cs ...prometheus.Collector) error {
	var errs []error
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// RegisterPoller exposes poller counters for one symbol.
func RegisterPoller(reg prometheus.Registerer, symbol string, stats func() poller.Stats) error {
	l := prometheus.Labels{"symbol": symbol}
	return register(reg,
		counter("poller", "polls_total", "Snapshot reads attempted.", l,
			func() float64 { return float64(stats().Polls) }),
		counter("poller", "empty_polls_total", "Snapshot reads that returned no levels.", l,
			func() float64 { return float64(stats().EmptyPolls) }),
		counter("poller", "poll_errors_total", "Snapshot reads that failed.", l,
			func() float64 { return float64(stats().PollErrors) }),
		counter("poller", "emits_total", "Changed snapshots handed to the writer.", l,
			func() float64 { return float64(stats().Emits) }),
		counter("poller", "skips_total", "Snapshots skipped as unchanged.", l,
			func() float64 { return float64(stats().Skips) }),
		counter("poller", "enqueue_errors_total", "Snapshots the writer refused.", l,
			func() float64 { return float64(stats().EnqueueErrors) }),
		counter("poller", "records_total", "Level records handed to the writer.", l,
			func() float64 { return float64(stats().Records) }),
		gauge("poller", "last_emit_timestamp_seconds", "Unix time of the last emitted snapshot.", l,
			func() float64 {
				t := stats().LastEmit
				if t.IsZero() {
					return 0
				}
				return float64(t.UnixNano()) / float64(time.Second)
			}),
	)
}

// RegisterWriter exposes batch writer counters for one sink.
func RegisterWriter(reg prometheus.Registerer, sink string, stats func() writer.Metrics) error {
	l := prometheus.Labels{"sink": sink}
	return register(reg,
		counter("writer", "enqueued_records_total", "Records accepted into the buffer.", l,
			func() float64 { return float64(stats().Enqueued) }),
		counter("writer", "rejected_records_total", "Records refused because the buffer was full.", l,
			func() float64 { return float64(stats().Rejected) }),
		counter("writer", "committed_records_total", "Records committed to the sink.", l,
			func() float64 { return float64(stats().Committed) }),
		counter("writer", "flushes_total", "Successful batch commits.", l,
			func() float64 { return float64(stats().Flushes) }),
		counter("writer", "commit_errors_total", "Failed commit attempts.", l,
			func() float64 { return float64(stats().CommitErrors) }),
		counter("writer", "retries_total", "Commit retries.", l,
			func() float64 { return float64(stats().Retries) }),
		counter("writer", "dropped_batches_total", "Batches dropped after the retry window.", l,
			func() float64 { return float64(stats().Dropped) }),
		counter("writer", "dropped_records_total", "Records in dropped batches.", l,
			func() float64 { return float64(stats().DroppedRecords) }),
		gauge("writer", "buffered_records", "Records waiting for the next flush.", l,
			func() float64 { return float64(stats().Buffered) }),
	)
}

// RegisterStream exposes bridge connection state.
func RegisterStream(reg prometheus.Registerer, stats func() connection.StreamStats) error {
	return register(reg,
		gauge("bridge", "connected", "1 while the bridge connection is up.", nil,
			func() float64 {
				if stats().Connected {
					return 1
				}
				return 0
			}),
		counter("bridge", "reconnects_total", "Successful bridge reconnects.", nil,
			func() float64 { return float64(stats().Reconnects) }),
		counter("bridge", "books_received_total", "Book updates pushed by the bridge.", nil,
			func() float64 { return float64(stats().BooksReceived) }),
		gauge("bridge", "attached_symbols", "Symbols subscribed on the bridge.", nil,
			func() float64 { return float64(stats().Attached) }),
	)
}

// instrumentedCommitter records the latency of every Commit call.
type instrumentedCommitter struct {
	writer.Committer
	ok     prometheus.Observer
	failed prometheus.Observer
}

// InstrumentCommitter wraps c so commit latency lands in a histogram
// labelled by sink name and outcome.
func InstrumentCommitter(reg prometheus.Registerer, c writer.Committer) (writer.Committer, error) {
	hist := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: Namespace,
		Subsystem: "writer",
		Name:      "commit_duration_seconds",
		Help:      "Latency of one commit attempt.",
		Buckets:   prometheus.ExponentialBuckets(0.001, 2, 14),
	}, []string{"sink", "outcome"})
	if err := reg.Register(hist); err != nil {
		return nil, err
	}

	return &instrumentedCommitter{
		Committer: c,
		ok:        hist.WithLabelValues(c.Name(), "ok"),
		failed:    hist.WithLabelValues(c.Name(), "error"),
	}, nil
}

func (c *instrumentedCommitter) Commit(ctx context.Context, records []model.Record) error {
	start := time.Now()
	err := c.Committer.Commit(ctx, records)
	if err != nil {
		c.failed.Observe(time.Since(start).Seconds())
		return err
	}
	c.ok.Observe(time.Since(start).Seconds())
	return nil
}
