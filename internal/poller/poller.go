package poller

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/rickgao/orderbook-relay/internal/dedup"
	"github.com/rickgao/orderbook-relay/internal/model"
)

// ErrAttach is returned by Run when the source refuses the symbol.
var ErrAttach = errors.New("attach order book")

// errorLogEvery limits repeated poll-failure logs to one per this many.
const errorLogEvery = 100

// SnapshotSource provides order-book snapshots for a symbol.
type SnapshotSource interface {
	Attach(ctx context.Context, symbol string) error
	Poll(ctx context.Context, symbol string) (model.Snapshot, error)
	Release(ctx context.Context, symbol string) error
}

// Sink accepts records for asynchronous persistence.
type Sink interface {
	Enqueue(records []model.Record) error
	Flush(ctx context.Context) error
}

// Config holds poller configuration.
type Config struct {
	Symbol          string
	Timezone        string         // label written on every record
	Location        *time.Location // zone of record timestamps
	PollInterval    time.Duration
	PollTimeout     time.Duration // per-poll bound; 0 means none
	ShutdownTimeout time.Duration // bound on flush + release
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		Symbol:          "EURUSD",
		Timezone:        "UTC",
		Location:        time.UTC,
		PollInterval:    50 * time.Millisecond,
		PollTimeout:     2 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// Stats holds poller counters.
type Stats struct {
	Polls         int64
	EmptyPolls    int64
	PollErrors    int64
	Emits         int64
	Skips         int64 // unchanged snapshots
	EnqueueErrors int64
	Records       int64 // records handed to the sink
	LastEmit      time.Time
}

// Poller samples one symbol's order book and emits changed snapshots.
type Poller struct {
	cfg    Config
	source SnapshotSource
	sink   Sink
	logger *slog.Logger
	now    func() time.Time

	state atomic.Int32
	// prev is the fingerprint of the last snapshot accepted by the sink.
	prev       dedup.Fingerprint
	errStreak  int
	polls      atomic.Int64
	emptyPolls atomic.Int64
	pollErrors atomic.Int64
	emits      atomic.Int64
	skips      atomic.Int64
	enqErrors  atomic.Int64
	records    atomic.Int64
	lastEmit   atomic.Int64 // unix nanos

	// Lifecycle for Start/Stop.
	cancel context.CancelFunc
	wg     sync.WaitGroup
	runErr error
}

// New creates a new Poller.
func New(cfg Config, source SnapshotSource, sink Sink, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	return &Poller{
		cfg:    cfg,
		source: source,
		sink:   sink,
		logger: logger.With("symbol", cfg.Symbol, "run_id", uuid.NewString()),
		now:    time.Now,
		prev:   dedup.None,
	}
}

// Run attaches to the symbol and polls until ctx is cancelled, then flushes
// the sink and releases the symbol. It returns an ErrAttach-wrapped error if
// attaching fails, otherwise the joined shutdown errors (nil on a clean
// drain).
func (p *Poller) Run(ctx context.Context) error {
	p.setState(StateInit)

	if err := p.source.Attach(ctx, p.cfg.Symbol); err != nil {
		p.setState(StateTerminated)
		return fmt.Errorf("%w %s: %w", ErrAttach, p.cfg.Symbol, err)
	}
	p.prev = dedup.None

	p.logger.Info("poller started",
		"poll_interval", p.cfg.PollInterval,
		"timezone", p.cfg.Timezone,
	)

loop:
	for ctx.Err() == nil {
		p.setState(StatePolling)
		p.tick(ctx)

		p.setState(StateIdle)
		select {
		case <-ctx.Done():
			break loop
		case <-time.After(p.cfg.PollInterval):
		}
	}

	return p.shutdown(ctx)
}

// Start runs the poller in a goroutine.
func (p *Poller) Start(ctx context.Context) error {
	ctx, p.cancel = context.WithCancel(ctx)

	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.runErr = p.Run(ctx)
	}()
	return nil
}

// Stop cancels a poller launched with Start and waits for its shutdown.
func (p *Poller) Stop(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return p.runErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// State returns the current lifecycle state.
func (p *Poller) State() State {
	return State(p.state.Load())
}

// Stats returns current counters.
func (p *Poller) Stats() Stats {
	s := Stats{
		Polls:         p.polls.Load(),
		EmptyPolls:    p.emptyPolls.Load(),
		PollErrors:    p.pollErrors.Load(),
		Emits:         p.emits.Load(),
		Skips:         p.skips.Load(),
		EnqueueErrors: p.enqErrors.Load(),
		Records:       p.records.Load(),
	}
	if ns := p.lastEmit.Load(); ns != 0 {
		s.LastEmit = time.Unix(0, ns)
	}
	return s
}

// tick runs one poll-compare-emit cycle.
func (p *Poller) tick(ctx context.Context) {
	pollCtx := ctx
	if p.cfg.PollTimeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, p.cfg.PollTimeout)
		defer cancel()
	}

	snap, err := p.source.Poll(pollCtx, p.cfg.Symbol)
	p.polls.Add(1)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		p.pollErrors.Add(1)
		p.errStreak++
		if p.errStreak%errorLogEvery == 1 {
			p.logger.Warn("poll failed", "error", err, "consecutive", p.errStreak)
		}
		return
	}
	if p.errStreak > 0 {
		p.logger.Info("poll recovered", "failed_polls", p.errStreak)
		p.errStreak = 0
	}

	if snap.Empty() {
		p.emptyPolls.Add(1)
		return
	}

	fp := dedup.Compute(snap.Levels)
	if dedup.Equal(fp, p.prev) {
		p.skips.Add(1)
		return
	}

	p.setState(StateEmitting)
	ts := p.now().In(p.cfg.Location)
	records := model.BuildRecords(p.cfg.Symbol, p.cfg.Timezone, snap, ts)
	if err := p.sink.Enqueue(records); err != nil {
		p.enqErrors.Add(1)
		p.logger.Warn("enqueue failed", "error", err, "count", len(records))
		return
	}

	p.prev = fp
	p.emits.Add(1)
	p.records.Add(int64(len(records)))
	p.lastEmit.Store(ts.UnixNano())
	p.logger.Debug("snapshot emitted", "fingerprint", fp, "levels", len(records))
}

// shutdown flushes the sink and releases the symbol, each with a fresh
// deadline detached from the cancelled run context.
func (p *Poller) shutdown(ctx context.Context) error {
	p.setState(StateShuttingDown)
	p.logger.Info("poller shutting down")

	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.ShutdownTimeout)
	defer cancel()

	var errs []error
	if err := p.sink.Flush(ctx); err != nil {
		p.logger.Error("final flush failed", "error", err)
		errs = append(errs, fmt.Errorf("flush: %w", err))
	}
	if err := p.source.Release(ctx, p.cfg.Symbol); err != nil {
		p.logger.Error("release failed", "error", err)
		errs = append(errs, fmt.Errorf("release %s: %w", p.cfg.Symbol, err))
	}

	p.setState(StateTerminated)

	stats := p.Stats()
	p.logger.Info("poller stopped",
		"polls", stats.Polls,
		"emits", stats.Emits,
		"records", stats.Records,
	)
	return errors.Join(errs...)
}

func (p *Poller) setState(s State) {
	p.state.Store(int32(s))
}
