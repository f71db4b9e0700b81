// Package database manages the TimescaleDB connection pool used by the
// timescale sink and owns the orderbook_data schema.
//
// The schema is created once per database with EnsureSchema (see cmd/initdb);
// the relay itself only inserts.
package database
