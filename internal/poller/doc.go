// Package poller implements the order-book sampler.
//
// A Poller attaches to one symbol on a SnapshotSource, then polls it at a
// fixed interval. Each non-empty snapshot is fingerprinted; when the
// fingerprint differs from the last emitted one the snapshot is converted to
// records and handed to the Sink. Unchanged and empty snapshots emit nothing
// and leave the last fingerprint untouched.
//
// On context cancellation the poller stops polling, flushes the sink once and
// releases the symbol. Both steps run even if the other fails.
package poller
