package writer

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/rickgao/orderbook-relay/internal/model"
)

type fakeResults struct {
	pgx.BatchResults
	err    error
	closed bool
}

func (r *fakeResults) Exec() (pgconn.CommandTag, error) {
	if r.err != nil {
		return pgconn.CommandTag{}, r.err
	}
	return pgconn.NewCommandTag("INSERT 0 1"), nil
}

func (r *fakeResults) Close() error {
	r.closed = true
	return nil
}

type fakeTx struct {
	pgx.Tx
	batch      *pgx.Batch
	results    *fakeResults
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) SendBatch(_ context.Context, b *pgx.Batch) pgx.BatchResults {
	tx.batch = b
	return tx.results
}

func (tx *fakeTx) Commit(context.Context) error {
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(context.Context) error {
	if !tx.committed {
		tx.rolledBack = true
	}
	return nil
}

type fakePool struct {
	tx       *fakeTx
	beginErr error
	closed   bool
}

func (p *fakePool) Begin(context.Context) (pgx.Tx, error) {
	if p.beginErr != nil {
		return nil, p.beginErr
	}
	return p.tx, nil
}

func (p *fakePool) Close() { p.closed = true }

func TestInsertRecordSQL(t *testing.T) {
	want := "INSERT INTO orderbook_data (symbol, side, level, order_type, price, volume, volume_dbl, timestamp, timezone) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)"
	if insertRecordSQL != want {
		t.Errorf("insertRecordSQL = %q, want %q", insertRecordSQL, want)
	}
}

func TestTimescaleCommitter_Commit(t *testing.T) {
	tx := &fakeTx{results: &fakeResults{}}
	pool := &fakePool{tx: tx}
	c := NewTimescaleCommitter(pool, nil)

	ts := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	recs := []model.Record{
		{Symbol: "EURUSD", Side: model.SideBid, Level: 0, Type: model.TypeBid, Price: 1.0854, Volume: 10, VolumeDbl: 10, Timestamp: ts, Timezone: "UTC"},
		{Symbol: "EURUSD", Side: model.SideAsk, Level: 1, Type: model.TypeAsk, Price: 1.0856, Volume: 5, VolumeDbl: 5.5, Timestamp: ts, Timezone: "UTC"},
	}

	if err := c.Commit(context.Background(), recs); err != nil {
		t.Fatalf("Commit() error = %v", err)
	}

	if !tx.committed {
		t.Error("transaction not committed")
	}
	if tx.rolledBack {
		t.Error("transaction rolled back after commit")
	}
	if !tx.results.closed {
		t.Error("batch results not closed")
	}
	if tx.batch.Len() != 2 {
		t.Fatalf("queued %d statements, want 2", tx.batch.Len())
	}

	args := tx.batch.QueuedQueries[1].Arguments
	if len(args) != 9 {
		t.Fatalf("args = %d, want 9", len(args))
	}
	if args[1] != model.SideAsk || args[2] != 1 || args[6] != 5.5 || args[8] != "UTC" {
		t.Errorf("args = %v", args)
	}
}

func TestTimescaleCommitter_InsertFailureRollsBack(t *testing.T) {
	tx := &fakeTx{results: &fakeResults{err: errors.New("value too long")}}
	c := NewTimescaleCommitter(&fakePool{tx: tx}, nil)

	err := c.Commit(context.Background(), []model.Record{{Symbol: "EURUSD"}})
	if err == nil {
		t.Fatal("Commit() expected error")
	}
	if tx.committed {
		t.Error("transaction committed after insert failure")
	}
	if !tx.rolledBack {
		t.Error("transaction not rolled back")
	}
}

func TestTimescaleCommitter_BeginFailure(t *testing.T) {
	c := NewTimescaleCommitter(&fakePool{beginErr: errors.New("connection refused")}, nil)

	if err := c.Commit(context.Background(), []model.Record{{Symbol: "EURUSD"}}); err == nil {
		t.Fatal("Commit() expected error")
	}
}

func TestTimescaleCommitter_CloseClosesPool(t *testing.T) {
	pool := &fakePool{}
	c := NewTimescaleCommitter(pool, nil)
	if err := c.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !pool.closed {
		t.Error("pool not closed")
	}
}
