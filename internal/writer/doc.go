// Package writer batches order-book records in memory and commits them to a
// time-series sink.
//
// BatchWriter owns the buffer and the flush policy:
//   - size trigger: reaching BatchSize buffered records wakes the flush loop
//   - time trigger: a ticker at FlushInterval flushes whatever is buffered
//   - explicit Flush(ctx) for shutdown
//
// Each flush hands the whole buffer to exactly one Committer.Commit call.
// Commits are serialised, so records reach the sink in submission order.
// Failed commits are retried with exponential backoff and jitter; a batch
// that is still failing when the retry window closes is dropped and the
// failure is reported to the next Enqueue or Flush caller.
//
// Committers:
//   - TimescaleCommitter: one transaction of parameterised INSERTs (pgx)
//   - InfluxCommitter: one line-protocol write (influxdb-client-go)
//   - KafkaCommitter: one WriteMessages call, JSON per record (kafka-go)
package writer
