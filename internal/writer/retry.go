package writer

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/rickgao/orderbook-relay/internal/model"
)

// errRetryAborted is returned when a foreground flush takes over a batch
// that was waiting to retry.
var errRetryAborted = errors.New("commit retry handed to foreground flush")

// commitWithRetry commits one batch, retrying with exponential backoff and
// jitter until it succeeds, the retry window closes or ctx is cancelled.
// Non-retryable errors drop the batch at once. A cancelled ctx returns
// ctx.Err() and a closed abort returns errRetryAborted so the caller can keep
// the batch. A nil abort never fires.
func (w *BatchWriter) commitWithRetry(ctx context.Context, abort <-chan struct{}, batchID string, records []model.Record) error {
	var lastErr error
	backoff := w.cfg.RetryInterval
	deadline := time.Now().Add(w.cfg.MaxRetryWindow)

	for attempt := 0; ; attempt++ {
		if attempt > 0 {
			if backoff <= 0 {
				break
			}
			// Add jitter: backoff * (0.5 to 1.5)
			wait := backoff/2 + time.Duration(rand.Int64N(int64(backoff)))
			if time.Now().Add(wait).After(deadline) {
				break
			}

			w.logger.Debug("retrying commit",
				"batch_id", batchID,
				"attempt", attempt,
				"backoff", wait,
			)
			w.count(func(m *Metrics) { m.Retries++ })

			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-abort:
				return errRetryAborted
			case <-time.After(wait):
			}

			backoff *= 2
			if w.cfg.MaxRetryDelay > 0 && backoff > w.cfg.MaxRetryDelay {
				backoff = w.cfg.MaxRetryDelay
			}
		}

		start := time.Now()
		err := w.committer.Commit(withBatchID(ctx, batchID), records)
		if err == nil {
			w.count(func(m *Metrics) {
				m.Committed += int64(len(records))
				m.Flushes++
				m.LastCommit = time.Since(start)
			})
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		lastErr = err
		w.count(func(m *Metrics) { m.CommitErrors++ })
		w.logger.Warn("commit failed",
			"batch_id", batchID,
			"attempt", attempt+1,
			"count", len(records),
			"error", err,
		)
		if errors.Is(err, ErrNonRetryable) {
			break
		}
	}

	return fmt.Errorf("%w: %d records to %s: %w", ErrBatchDropped, len(records), w.committer.Name(), lastErr)
}

type batchIDKey struct{}

func withBatchID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, batchIDKey{}, id)
}

// BatchID returns the identifier of the flush a Commit call belongs to, or
// "" outside a BatchWriter commit.
func BatchID(ctx context.Context) string {
	id, _ := ctx.Value(batchIDKey{}).(string)
	return id
}
