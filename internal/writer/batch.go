package writer

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/rickgao/orderbook-relay/internal/model"
)

// initialBufferCap is the ring size before the first growth.
const initialBufferCap = 1024

// BatchWriter buffers records and commits them through a Committer on a size
// or time trigger. Enqueue never performs I/O.
type BatchWriter struct {
	cfg       Config
	committer Committer
	logger    *slog.Logger

	// mu guards everything below it.
	mu         sync.Mutex
	buf        *Buffer[model.Record]
	pendingErr error
	closed     bool
	metrics    Metrics
	// retryAbort is closed by a foreground Flush to end the backoff of a
	// background commit early. Nil when no background commit is running.
	retryAbort chan struct{}

	// commitSem serialises flushes so batches commit in FIFO order. Waiters
	// are served in arrival order.
	commitSem *semaphore.Weighted
	flushCh   chan struct{}

	// Lifecycle
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBatchWriter creates a BatchWriter. Call Start to enable the size and
// time triggers.
func NewBatchWriter(cfg Config, committer Committer, logger *slog.Logger) *BatchWriter {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.BatchSize < 1 {
		cfg.BatchSize = 1
	}
	if cfg.BufferSize < cfg.BatchSize {
		cfg.BufferSize = cfg.BatchSize
	}
	return &BatchWriter{
		cfg:       cfg,
		committer: committer,
		logger:    logger.With("sink", committer.Name()),
		buf:       NewBuffer[model.Record](min(initialBufferCap, cfg.BufferSize), cfg.BufferSize),
		commitSem: semaphore.NewWeighted(1),
		flushCh:   make(chan struct{}, 1),
	}
}

// Start launches the flush loop.
func (w *BatchWriter) Start(ctx context.Context) error {
	if w.cfg.FlushInterval <= 0 {
		return errors.New("flush interval must be > 0")
	}
	w.ctx, w.cancel = context.WithCancel(ctx)

	w.wg.Add(1)
	go w.flushLoop()

	w.logger.Info("batch writer started",
		"batch_size", w.cfg.BatchSize,
		"flush_interval", w.cfg.FlushInterval,
		"buffer_size", w.cfg.BufferSize,
	)
	return nil
}

// Stop halts the flush loop, refuses further records and runs a final flush
// with ctx. It returns the final flush error joined with any failure not yet
// reported. The committer is left open.
func (w *BatchWriter) Stop(ctx context.Context) error {
	w.logger.Info("stopping batch writer")

	if w.cancel != nil {
		w.cancel()
	}

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		w.logger.Warn("batch writer stop timed out")
	}

	w.mu.Lock()
	w.closed = true
	w.mu.Unlock()

	err := w.flush(ctx, false)

	stats := w.Stats()
	w.logger.Info("batch writer stopped",
		"committed", stats.Committed,
		"dropped", stats.DroppedRecords,
		"left", stats.Buffered,
	)
	return err
}

// Enqueue appends records to the buffer. It returns a failure left by an
// earlier background flush (the records are not accepted in that case),
// ErrBufferFull when the records do not fit, or ErrClosed after Stop.
func (w *BatchWriter) Enqueue(records []model.Record) error {
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return ErrClosed
	}
	if err := w.pendingErr; err != nil {
		w.pendingErr = nil
		w.mu.Unlock()
		return err
	}
	if len(records) == 0 {
		w.mu.Unlock()
		return nil
	}
	if !w.buf.PushAll(records) {
		w.metrics.Rejected += int64(len(records))
		w.mu.Unlock()
		return ErrBufferFull
	}
	w.metrics.Enqueued += int64(len(records))
	shouldFlush := w.buf.Len() >= w.cfg.BatchSize
	w.mu.Unlock()

	if shouldFlush {
		select {
		case w.flushCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Flush commits everything buffered now. An empty buffer is a no-op. The
// returned error includes any failure not yet reported. A background commit
// that is waiting to retry gives its batch back so Flush commits it under
// ctx; Flush never waits past ctx.
func (w *BatchWriter) Flush(ctx context.Context) error {
	return w.flush(ctx, false)
}

// Stats returns current metrics.
func (w *BatchWriter) Stats() Metrics {
	w.mu.Lock()
	defer w.mu.Unlock()
	m := w.metrics
	m.Buffered = w.buf.Len()
	return m
}

// flushLoop serves the size trigger and the flush ticker.
func (w *BatchWriter) flushLoop() {
	defer w.wg.Done()

	ticker := time.NewTicker(w.cfg.FlushInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-w.flushCh:
		case <-ticker.C:
		}
		w.flush(w.ctx, true)
	}
}

// flush takes the whole buffer and commits it as one batch. A dropped batch
// from a background flush is kept as the pending error for the next caller;
// a foreground flush returns it, joined with its own result.
func (w *BatchWriter) flush(ctx context.Context, background bool) error {
	var abort chan struct{}
	if !background {
		w.abortRetry()
	}
	if err := w.commitSem.Acquire(ctx, 1); err != nil {
		if background {
			return err
		}
		return errors.Join(w.takePending(), err)
	}
	defer w.commitSem.Release(1)

	var pending error
	w.mu.Lock()
	if background {
		abort = make(chan struct{})
		w.retryAbort = abort
	} else {
		pending = w.pendingErr
		w.pendingErr = nil
	}
	batch := w.buf.DrainTo(0)
	w.mu.Unlock()

	if background {
		defer func() {
			w.mu.Lock()
			if w.retryAbort == abort {
				w.retryAbort = nil
			}
			w.mu.Unlock()
		}()
	}

	if len(batch) == 0 {
		return pending
	}

	batchID := uuid.NewString()
	start := time.Now()

	err := w.commitWithRetry(ctx, abort, batchID, batch)
	switch {
	case err == nil:
		w.logger.Debug("flushed batch",
			"batch_id", batchID,
			"count", len(batch),
			"duration", time.Since(start),
		)
		return pending
	case errors.Is(err, ErrBatchDropped):
		w.mu.Lock()
		w.metrics.Dropped++
		w.metrics.DroppedRecords += int64(len(batch))
		if background {
			w.pendingErr = errors.Join(w.pendingErr, err)
		}
		w.mu.Unlock()
		w.logger.Warn("dropped batch",
			"batch_id", batchID,
			"count", len(batch),
			"error", err,
		)
		return errors.Join(pending, err)
	default:
		// Cancelled or handed over mid-retry: keep the batch for the next flush.
		w.mu.Lock()
		w.buf.Unshift(batch)
		w.mu.Unlock()
		return errors.Join(pending, err)
	}
}

// abortRetry ends the backoff of a running background commit.
func (w *BatchWriter) abortRetry() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.retryAbort != nil {
		close(w.retryAbort)
		w.retryAbort = nil
	}
}

func (w *BatchWriter) takePending() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	err := w.pendingErr
	w.pendingErr = nil
	return err
}

func (w *BatchWriter) count(update func(*Metrics)) {
	w.mu.Lock()
	update(&w.metrics)
	w.mu.Unlock()
}
