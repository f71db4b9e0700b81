// Package model defines the data types shared across the order-book relay.
//
// Conventions:
//   - Level order inside a Snapshot is significant: index 0 is the first level
//     reported by the terminal and becomes Record.Level 0.
//   - Type codes are the terminal's raw book entry types (1 = bid, 2 = ask).
//   - Timestamps are captured once per emitted snapshot, in the configured
//     timezone, and shared by every Record built from it.
package model
