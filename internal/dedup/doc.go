// Package dedup implements the Fingerprint Engine.
//
// A Fingerprint is a compact comparable digest of a snapshot's ordered
// (type, price, volume) triples. The Snapshot Poller compares the current
// fingerprint with the last emitted one and skips the write when they match.
//
//   - Digest: xxhash64 over the little-endian encoding of every level, plus
//     the level count.
//   - The zero Fingerprint is the "no fingerprint" sentinel. It is produced
//     for empty snapshots and never compares equal to anything, itself
//     included.
package dedup
