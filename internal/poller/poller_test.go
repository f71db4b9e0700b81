package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rickgao/orderbook-relay/internal/model"
)

type step struct {
	snap model.Snapshot
	err  error
}

// fakeSource replays a script of poll results and repeats the last one.
type fakeSource struct {
	mu        sync.Mutex
	script    []step
	next      int
	polls     int
	attachErr error
	released  int
	release   error
	// onPoll runs after each poll with the 1-based poll number.
	onPoll func(n int)
}

func (f *fakeSource) Attach(context.Context, string) error { return f.attachErr }

func (f *fakeSource) Poll(_ context.Context, symbol string) (model.Snapshot, error) {
	f.mu.Lock()
	f.polls++
	n := f.polls
	s := f.script[f.next]
	if f.next < len(f.script)-1 {
		f.next++
	}
	onPoll := f.onPoll
	f.mu.Unlock()

	if onPoll != nil {
		onPoll(n)
	}
	s.snap.Symbol = symbol
	return s.snap, s.err
}

func (f *fakeSource) Release(context.Context, string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.released++
	return f.release
}

func (f *fakeSource) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

type fakeSink struct {
	mu       sync.Mutex
	batches  [][]model.Record
	flushes  int
	failNext int
	flushErr error
}

func (f *fakeSink) Enqueue(records []model.Record) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext > 0 {
		f.failNext--
		return errors.New("writer buffer full")
	}
	f.batches = append(f.batches, records)
	return nil
}

func (f *fakeSink) Flush(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.flushes++
	return f.flushErr
}

func (f *fakeSink) enqueued() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.batches)
}

func book(prices ...float64) model.Snapshot {
	levels := make([]model.BookLevel, len(prices))
	for i, p := range prices {
		levels[i] = model.BookLevel{Type: model.TypeAsk, Price: p, Volume: 10, VolumeDbl: 10}
	}
	return model.Snapshot{Levels: levels}
}

func testConfig() Config {
	return Config{
		Symbol:       "EURUSD",
		Timezone:     "UTC",
		Location:     time.UTC,
		PollInterval: time.Millisecond,
	}
}

// runPolls runs the poller until n polls have completed and returns Run's
// result.
func runPolls(t *testing.T, p *Poller, src *fakeSource, n int) error {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	src.onPoll = func(got int) {
		if got == n {
			cancel()
		}
	}

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case err := <-done:
		return err
	case <-time.After(5 * time.Second):
		t.Fatal("poller did not stop")
		return nil
	}
}

func TestPoller_IdenticalSnapshotsEmitOnce(t *testing.T) {
	src := &fakeSource{script: []step{{snap: book(1.1, 1.2)}}}
	sink := &fakeSink{}
	p := New(testConfig(), src, sink, nil)

	if err := runPolls(t, p, src, 10); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := sink.enqueued(); got != 1 {
		t.Errorf("enqueued = %d, want 1", got)
	}
	stats := p.Stats()
	if stats.Skips != 9 {
		t.Errorf("Skips = %d, want 9", stats.Skips)
	}
	if stats.Records != 2 {
		t.Errorf("Records = %d, want 2", stats.Records)
	}
}

func TestPoller_ChangesAreEmitted(t *testing.T) {
	a, b := book(1.1, 1.2), book(1.1, 1.3)
	src := &fakeSource{script: []step{{snap: a}, {snap: a}, {snap: b}, {snap: b}, {snap: a}}}
	sink := &fakeSink{}
	p := New(testConfig(), src, sink, nil)

	if err := runPolls(t, p, src, 5); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := sink.enqueued(); got != 3 {
		t.Fatalf("enqueued = %d, want 3 (a, b, a)", got)
	}
	if sink.batches[1][1].Price != 1.3 {
		t.Errorf("second emit price = %v, want 1.3", sink.batches[1][1].Price)
	}
}

func TestPoller_EmptyReadsAreNeutral(t *testing.T) {
	tests := []struct {
		name   string
		script []step
		want   int
	}{
		{
			name:   "same book around empty read",
			script: []step{{snap: book(1.1)}, {snap: book()}, {snap: book(1.1)}},
			want:   1,
		},
		{
			name:   "changed book after empty read",
			script: []step{{snap: book(1.1)}, {snap: book()}, {snap: book(1.2)}},
			want:   2,
		},
		{
			name:   "only empty reads",
			script: []step{{snap: book()}},
			want:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := &fakeSource{script: tt.script}
			sink := &fakeSink{}
			p := New(testConfig(), src, sink, nil)

			if err := runPolls(t, p, src, 3); err != nil {
				t.Fatalf("Run() error = %v", err)
			}
			if got := sink.enqueued(); got != tt.want {
				t.Errorf("enqueued = %d, want %d", got, tt.want)
			}
		})
	}
}

func TestPoller_PollErrorIsIdle(t *testing.T) {
	src := &fakeSource{script: []step{
		{snap: book(1.1)},
		{err: errors.New("terminal not connected")},
		{snap: book(1.1)},
		{snap: book(1.2)},
	}}
	sink := &fakeSink{}
	p := New(testConfig(), src, sink, nil)

	if err := runPolls(t, p, src, 4); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := sink.enqueued(); got != 2 {
		t.Errorf("enqueued = %d, want 2", got)
	}
	if got := p.Stats().PollErrors; got != 1 {
		t.Errorf("PollErrors = %d, want 1", got)
	}
}

func TestPoller_EnqueueFailureRetriesSameSnapshot(t *testing.T) {
	src := &fakeSource{script: []step{{snap: book(1.1)}}}
	sink := &fakeSink{failNext: 1}
	p := New(testConfig(), src, sink, nil)

	if err := runPolls(t, p, src, 3); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := sink.enqueued(); got != 1 {
		t.Errorf("enqueued = %d, want 1", got)
	}
	stats := p.Stats()
	if stats.EnqueueErrors != 1 {
		t.Errorf("EnqueueErrors = %d, want 1", stats.EnqueueErrors)
	}
	if stats.Emits != 1 {
		t.Errorf("Emits = %d, want 1", stats.Emits)
	}
}

func TestPoller_AttachFailure(t *testing.T) {
	src := &fakeSource{attachErr: errors.New("symbol not found"), script: []step{{snap: book(1.1)}}}
	sink := &fakeSink{}
	p := New(testConfig(), src, sink, nil)

	err := p.Run(context.Background())
	if !errors.Is(err, ErrAttach) {
		t.Fatalf("Run() error = %v, want ErrAttach", err)
	}
	if src.pollCount() != 0 {
		t.Errorf("polls = %d, want 0", src.pollCount())
	}
	if sink.flushes != 0 || src.released != 0 {
		t.Errorf("flushes = %d, released = %d, want no shutdown work", sink.flushes, src.released)
	}
	if p.State() != StateTerminated {
		t.Errorf("State() = %v, want terminated", p.State())
	}
}

func TestPoller_GracefulShutdown(t *testing.T) {
	src := &fakeSource{script: []step{{snap: book(1.1)}, {snap: book(1.2)}}}
	sink := &fakeSink{}
	p := New(testConfig(), src, sink, nil)

	if err := runPolls(t, p, src, 2); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if got := src.pollCount(); got != 2 {
		t.Errorf("polls = %d, want 2 (no polls after cancellation)", got)
	}
	if sink.flushes != 1 {
		t.Errorf("flushes = %d, want exactly 1", sink.flushes)
	}
	if src.released != 1 {
		t.Errorf("released = %d, want 1", src.released)
	}
	if sink.enqueued() != 2 {
		t.Errorf("enqueued = %d, want 2", sink.enqueued())
	}
	if p.State() != StateTerminated {
		t.Errorf("State() = %v, want terminated", p.State())
	}
}

func TestPoller_ShutdownErrorsAreJoined(t *testing.T) {
	flushErr := errors.New("batch dropped")
	releaseErr := errors.New("terminal gone")
	src := &fakeSource{script: []step{{snap: book(1.1)}}, release: releaseErr}
	sink := &fakeSink{flushErr: flushErr}
	p := New(testConfig(), src, sink, nil)

	err := runPolls(t, p, src, 1)
	if !errors.Is(err, flushErr) {
		t.Errorf("Run() error = %v, want flush error", err)
	}
	if !errors.Is(err, releaseErr) {
		t.Errorf("Run() error = %v, want release error", err)
	}
	if src.released != 1 {
		t.Errorf("released = %d, want 1 despite flush failure", src.released)
	}
}

func TestPoller_RecordsCarryTimezone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Nicosia")
	if err != nil {
		t.Skipf("zone database unavailable: %v", err)
	}
	cfg := testConfig()
	cfg.Timezone = "Asia/Nicosia"
	cfg.Location = loc

	src := &fakeSource{script: []step{{snap: book(1.1, 1.2)}}}
	sink := &fakeSink{}
	p := New(cfg, src, sink, nil)
	fixed := time.Date(2024, 6, 1, 9, 30, 0, 0, time.UTC)
	p.now = func() time.Time { return fixed }

	if err := runPolls(t, p, src, 1); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	recs := sink.batches[0]
	for i, r := range recs {
		if r.Timezone != "Asia/Nicosia" {
			t.Errorf("record %d Timezone = %q", i, r.Timezone)
		}
		if !r.Timestamp.Equal(fixed) || r.Timestamp.Location() != loc {
			t.Errorf("record %d Timestamp = %v, want %v in %v", i, r.Timestamp, fixed, loc)
		}
		if r.Symbol != "EURUSD" || r.Level != i {
			t.Errorf("record %d = %+v", i, r)
		}
	}
	if !recs[0].Timestamp.Equal(recs[1].Timestamp) {
		t.Error("records of one snapshot must share a timestamp")
	}
}

func TestPoller_StartStop(t *testing.T) {
	src := &fakeSource{script: []step{{snap: book(1.1)}}}
	sink := &fakeSink{}
	cfg := testConfig()
	cfg.PollInterval = 5 * time.Millisecond
	p := New(cfg, src, sink, nil)

	if err := p.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for src.pollCount() < 3 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	stopCtx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}

	if sink.enqueued() != 1 {
		t.Errorf("enqueued = %d, want 1", sink.enqueued())
	}
	if sink.flushes != 1 {
		t.Errorf("flushes = %d, want 1", sink.flushes)
	}
}

func TestStateString(t *testing.T) {
	if StateShuttingDown.String() != "shutting_down" {
		t.Errorf("String() = %q", StateShuttingDown.String())
	}
	if State(99).String() != "unknown" {
		t.Errorf("String() = %q", State(99).String())
	}
}
