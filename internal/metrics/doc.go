// Package metrics exposes relay statistics as Prometheus metrics.
//
// Components keep their own counters behind Stats(); this package reads
// them at scrape time with CounterFunc/GaugeFunc collectors. The only
// metric observed inline is commit latency, via InstrumentCommitter.
package metrics
