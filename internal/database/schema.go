package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// TableName is the hypertable every timescale sink writes to.
const TableName = "orderbook_data"

// ErrSchemaMissing is returned when the table is absent after creation.
var ErrSchemaMissing = errors.New("orderbook_data table not found after creation")

// SchemaStatements are executed in order by EnsureSchema. Each one is
// idempotent so EnsureSchema can run against an initialised database.
var SchemaStatements = []string{
	`CREATE EXTENSION IF NOT EXISTS timescaledb`,
	`CREATE TABLE IF NOT EXISTS orderbook_data (
		id          BIGSERIAL,
		symbol      VARCHAR(32)      NOT NULL,
		side        VARCHAR(8)       NOT NULL,
		level       INTEGER          NOT NULL,
		order_type  INTEGER          NOT NULL,
		price       DOUBLE PRECISION NOT NULL,
		volume      BIGINT           NOT NULL,
		volume_dbl  DOUBLE PRECISION NOT NULL,
		timestamp   TIMESTAMPTZ      NOT NULL,
		timezone    VARCHAR(50)      NOT NULL,
		created_at  TIMESTAMPTZ      NOT NULL DEFAULT NOW()
	)`,
	`SELECT create_hypertable('orderbook_data', 'timestamp', if_not_exists => TRUE)`,
	`CREATE INDEX IF NOT EXISTS orderbook_data_symbol_ts_idx ON orderbook_data (symbol, timestamp DESC)`,
}

// InsertColumns lists the columns written per record, in bind order.
var InsertColumns = []string{
	"symbol", "side", "level", "order_type", "price",
	"volume", "volume_dbl", "timestamp", "timezone",
}

// Execer is the subset of pgxpool.Pool used for schema management.
type Execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EnsureSchema creates the orderbook_data hypertable if needed and verifies
// that it exists afterwards.
func EnsureSchema(ctx context.Context, db Execer, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	for i, stmt := range SchemaStatements {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("schema statement %d: %w", i+1, err)
		}
	}

	var regclass *string
	if err := db.QueryRow(ctx, `SELECT to_regclass($1)::text`, TableName).Scan(&regclass); err != nil {
		return fmt.Errorf("verify %s: %w", TableName, err)
	}
	if regclass == nil {
		return ErrSchemaMissing
	}

	logger.Info("schema ready", "table", *regclass, "statements", len(SchemaStatements))
	return nil
}
