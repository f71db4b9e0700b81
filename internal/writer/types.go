package writer

import (
	"context"
	"errors"
	"time"

	"github.com/rickgao/orderbook-relay/internal/model"
)

var (
	// ErrBufferFull is returned by Enqueue when accepting the records would
	// exceed the buffer bound. The whole batch is rejected.
	ErrBufferFull = errors.New("writer buffer full")

	// ErrClosed is returned by Enqueue after Stop.
	ErrClosed = errors.New("writer closed")

	// ErrBatchDropped wraps the last commit error of a batch that exhausted
	// its retries.
	ErrBatchDropped = errors.New("batch dropped after retries")

	// ErrNonRetryable marks a commit error that no retry can fix, such as a
	// record the sink cannot encode. The batch is dropped without retrying.
	ErrNonRetryable = errors.New("non-retryable commit error")
)

// Committer writes one batch of records to a store. A nil return means the
// whole batch is durable; an error means none of it should be assumed to be.
type Committer interface {
	Commit(ctx context.Context, records []model.Record) error
	Close() error
	Name() string
}

// Config contains configuration for the batch writer.
type Config struct {
	// BatchSize is the number of buffered records that triggers a flush.
	BatchSize int

	// FlushInterval is the maximum time between flushes.
	FlushInterval time.Duration

	// BufferSize bounds the number of records held in memory.
	BufferSize int

	// RetryInterval is the first retry delay. Zero disables retries.
	RetryInterval time.Duration

	// MaxRetryDelay caps the delay between retries.
	MaxRetryDelay time.Duration

	// MaxRetryWindow bounds the total time spent retrying one batch.
	MaxRetryWindow time.Duration
}

// DefaultConfig returns the relay's write defaults.
func DefaultConfig() Config {
	return Config{
		BatchSize:      500,
		FlushInterval:  250 * time.Millisecond,
		BufferSize:     100000,
		RetryInterval:  2 * time.Second,
		MaxRetryDelay:  10 * time.Second,
		MaxRetryWindow: 30 * time.Second,
	}
}

// Metrics holds counters for a BatchWriter.
type Metrics struct {
	Enqueued       int64 // records accepted
	Rejected       int64 // records refused with ErrBufferFull
	Committed      int64 // records committed
	Flushes        int64 // successful commits
	CommitErrors   int64 // failed commit attempts
	Retries        int64
	Dropped        int64 // batches dropped
	DroppedRecords int64
	Buffered       int // records currently buffered
	LastCommit     time.Duration
}
