package writer

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"

	"github.com/rickgao/orderbook-relay/internal/database"
	"github.com/rickgao/orderbook-relay/internal/model"
)

// insertRecordSQL inserts one record into orderbook_data.
var insertRecordSQL = buildInsertSQL(database.TableName, database.InsertColumns)

func buildInsertSQL(table string, columns []string) string {
	params := make([]string, len(columns))
	for i := range columns {
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		table, strings.Join(columns, ", "), strings.Join(params, ", "))
}

// txStarter is satisfied by *pgxpool.Pool.
type txStarter interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Close()
}

// TimescaleCommitter writes each batch in a single transaction.
type TimescaleCommitter struct {
	db     txStarter
	logger *slog.Logger
}

// NewTimescaleCommitter creates a committer over a pool. Close closes the pool.
func NewTimescaleCommitter(db txStarter, logger *slog.Logger) *TimescaleCommitter {
	if logger == nil {
		logger = slog.Default()
	}
	return &TimescaleCommitter{db: db, logger: logger}
}

// Name implements Committer.
func (c *TimescaleCommitter) Name() string { return "timescale" }

// Commit inserts all records or none.
func (c *TimescaleCommitter) Commit(ctx context.Context, records []model.Record) error {
	tx, err := c.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	// No-op once committed.
	defer tx.Rollback(ctx)

	batch := &pgx.Batch{}
	for _, r := range records {
		batch.Queue(insertRecordSQL,
			r.Symbol, r.Side, r.Level, r.Type, r.Price,
			r.Volume, r.VolumeDbl, r.Timestamp, r.Timezone,
		)
	}

	results := tx.SendBatch(ctx, batch)
	for i := range records {
		if _, err := results.Exec(); err != nil {
			results.Close()
			return fmt.Errorf("insert record %d: %w", i, err)
		}
	}
	if err := results.Close(); err != nil {
		return fmt.Errorf("close batch: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// Close closes the underlying pool.
func (c *TimescaleCommitter) Close() error {
	c.db.Close()
	return nil
}
