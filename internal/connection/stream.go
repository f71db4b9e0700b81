package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rickgao/orderbook-relay/internal/model"
)

type commandResult struct {
	resp Response
	err  error
}

// BookStream is a snapshot source backed by a bridge that pushes book
// updates over a WebSocket.
type BookStream struct {
	cfg       StreamConfig
	logger    *slog.Logger
	newClient func(ClientConfig, *slog.Logger) Client

	nextID        atomic.Int64
	reconnects    atomic.Int64
	booksReceived atomic.Int64

	mu        sync.Mutex
	client    Client
	connected bool
	closed    bool
	session   []Command // initialize and login, replayed on reconnect
	attached  []string
	books     map[string]model.Snapshot
	pending   map[int64]chan commandResult

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBookStream creates a stream. Call Connect before issuing commands.
func NewBookStream(cfg StreamConfig, logger *slog.Logger) *BookStream {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = DefaultStreamConfig().CommandTimeout
	}
	if cfg.ReconnectBaseWait <= 0 {
		cfg.ReconnectBaseWait = DefaultStreamConfig().ReconnectBaseWait
	}
	if cfg.ReconnectMaxWait < cfg.ReconnectBaseWait {
		cfg.ReconnectMaxWait = cfg.ReconnectBaseWait
	}
	if cfg.Client.BufferSize <= 0 {
		cfg.Client.BufferSize = DefaultClientConfig().BufferSize
	}
	if cfg.Client.WriteTimeout <= 0 {
		cfg.Client.WriteTimeout = DefaultClientConfig().WriteTimeout
	}

	return &BookStream{
		cfg:       cfg,
		logger:    logger.With("component", "bookstream"),
		newClient: NewClient,
		books:     make(map[string]model.Snapshot),
		pending:   make(map[int64]chan commandResult),
	}
}

// Connect dials the bridge and starts the read loop. Later connection
// losses are handled in the background.
func (s *BookStream) Connect(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	if s.client != nil {
		s.mu.Unlock()
		return nil
	}
	s.mu.Unlock()

	c := s.newClient(s.cfg.Client, s.logger)
	if err := c.Connect(ctx); err != nil {
		return fmt.Errorf("connect bridge: %w", err)
	}

	s.ctx, s.cancel = context.WithCancel(context.Background())

	s.mu.Lock()
	s.client = c
	s.connected = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.run(c)

	s.logger.Info("bridge connected", "url", s.cfg.Client.URL)
	return nil
}

// Initialize starts the terminal at path (empty = default install).
func (s *BookStream) Initialize(ctx context.Context, path string) error {
	cmd := Command{Cmd: CmdInitialize, Params: InitializeParams{Path: path}}
	if err := s.send(ctx, cmd); err != nil {
		return err
	}
	s.remember(cmd)
	return nil
}

// Login logs the terminal in to a trading account.
func (s *BookStream) Login(ctx context.Context, login, password, server string) error {
	cmd := Command{Cmd: CmdLogin, Params: LoginParams{Login: login, Password: password, Server: server}}
	if err := s.send(ctx, cmd); err != nil {
		return err
	}
	s.remember(cmd)
	return nil
}

// Attach subscribes to book updates for symbol.
func (s *BookStream) Attach(ctx context.Context, symbol string) error {
	s.mu.Lock()
	added := !s.isAttachedLocked(symbol)
	if added {
		s.attached = append(s.attached, symbol)
	}
	s.mu.Unlock()

	if err := s.send(ctx, Command{Cmd: CmdMarketBookAdd, Params: SymbolParams{Symbol: symbol}}); err != nil {
		if added {
			s.detach(symbol)
		}
		return err
	}
	return nil
}

func (s *BookStream) isAttachedLocked(symbol string) bool {
	for _, a := range s.attached {
		if a == symbol {
			return true
		}
	}
	return false
}

func (s *BookStream) detach(symbol string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, a := range s.attached {
		if a == symbol {
			s.attached = append(s.attached[:i], s.attached[i+1:]...)
			break
		}
	}
	delete(s.books, symbol)
}

// Poll returns the latest book pushed for symbol. Before the first update
// arrives the snapshot is empty.
func (s *BookStream) Poll(ctx context.Context, symbol string) (model.Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return model.Snapshot{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return model.Snapshot{}, ErrNotConnected
	}
	if snap, ok := s.books[symbol]; ok {
		return snap, nil
	}
	return model.Snapshot{Symbol: symbol}, nil
}

// Release unsubscribes from symbol and drops its cached book.
func (s *BookStream) Release(ctx context.Context, symbol string) error {
	s.detach(symbol)
	return s.send(ctx, Command{Cmd: CmdMarketBookRelease, Params: SymbolParams{Symbol: symbol}})
}

// Shutdown asks the bridge to close the terminal.
func (s *BookStream) Shutdown(ctx context.Context) error {
	return s.send(ctx, Command{Cmd: CmdShutdown})
}

// Close stops reconnection and closes the connection.
func (s *BookStream) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.connected = false
	c := s.client
	s.failPendingLocked(ErrAlreadyClosed)
	s.mu.Unlock()

	if s.cancel != nil {
		s.cancel()
	}

	var err error
	if c != nil {
		err = c.Close()
	}
	s.wg.Wait()
	return err
}

// Stats returns current stream statistics.
func (s *BookStream) Stats() StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return StreamStats{
		Connected:     s.connected,
		Reconnects:    s.reconnects.Load(),
		BooksReceived: s.booksReceived.Load(),
		Attached:      len(s.attached),
	}
}

// remember records a session command for replay, replacing any earlier
// command of the same kind.
func (s *BookStream) remember(cmd Command) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, c := range s.session {
		if c.Cmd == cmd.Cmd {
			s.session[i] = cmd
			return
		}
	}
	s.session = append(s.session, cmd)
}

// send issues a command and waits for its response.
func (s *BookStream) send(ctx context.Context, cmd Command) error {
	cmd.ID = s.nextID.Add(1)
	ch := make(chan commandResult, 1)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrAlreadyClosed
	}
	if !s.connected || s.client == nil {
		s.mu.Unlock()
		return ErrNotConnected
	}
	c := s.client
	s.pending[cmd.ID] = ch
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, cmd.ID)
		s.mu.Unlock()
	}()

	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", cmd.Cmd, err)
	}
	if err := c.Send(data); err != nil {
		return fmt.Errorf("send %s: %w", cmd.Cmd, err)
	}

	timer := time.NewTimer(s.cfg.CommandTimeout)
	defer timer.Stop()

	select {
	case res := <-ch:
		if res.err != nil {
			return res.err
		}
		if res.resp.Type == "error" {
			var em ErrorMsg
			if err := json.Unmarshal(res.resp.Msg, &em); err != nil || em.Message == "" {
				return fmt.Errorf("%w: %s", ErrCommandFailed, cmd.Cmd)
			}
			return fmt.Errorf("%w: %s: %s", ErrCommandFailed, cmd.Cmd, em.Message)
		}
		return nil
	case <-timer.C:
		return fmt.Errorf("%s: %w", cmd.Cmd, ErrTimeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run reads from c until the stream is closed, reconnecting on error.
func (s *BookStream) run(c Client) {
	defer s.wg.Done()

	for {
		select {
		case <-s.ctx.Done():
			return
		case msg := <-c.Messages():
			s.dispatch(msg)
		case err := <-c.Errors():
			s.logger.Warn("bridge connection lost", "error", err)
			s.markDisconnected()
			c.Close()

			c = s.reconnect()
			if c == nil {
				return
			}
		}
	}
}

func (s *BookStream) markDisconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = false
	clear(s.books)
	s.failPendingLocked(ErrNotConnected)
}

func (s *BookStream) failPendingLocked(err error) {
	for id, ch := range s.pending {
		select {
		case ch <- commandResult{err: err}:
		default:
		}
		delete(s.pending, id)
	}
}

// reconnect dials until it succeeds or the stream is closed. It returns nil
// once closed.
func (s *BookStream) reconnect() Client {
	wait := s.cfg.ReconnectBaseWait

	for attempt := 1; ; attempt++ {
		jitter := time.Duration(rand.Int64N(int64(wait)/2 + 1))
		select {
		case <-s.ctx.Done():
			return nil
		case <-time.After(wait/2 + jitter):
		}

		c := s.newClient(s.cfg.Client, s.logger)
		if err := c.Connect(s.ctx); err != nil {
			s.logger.Warn("bridge reconnect failed",
				"attempt", attempt,
				"wait", wait,
				"error", err,
			)
			wait = min(wait*2, s.cfg.ReconnectMaxWait)
			continue
		}

		s.mu.Lock()
		if s.closed {
			s.mu.Unlock()
			c.Close()
			return nil
		}
		s.client = c
		s.connected = true
		session := append([]Command(nil), s.session...)
		symbols := append([]string(nil), s.attached...)
		s.mu.Unlock()

		s.reconnects.Add(1)
		s.logger.Info("bridge reconnected", "attempt", attempt)

		// Replay runs beside the read loop, which delivers its responses.
		s.wg.Add(1)
		go s.replay(session, symbols)
		return c
	}
}

// replay restores terminal state and subscriptions after a reconnect.
func (s *BookStream) replay(session []Command, symbols []string) {
	defer s.wg.Done()

	var errs []error
	for _, cmd := range session {
		if err := s.send(s.ctx, cmd); err != nil {
			errs = append(errs, err)
		}
	}
	for _, sym := range symbols {
		if err := s.send(s.ctx, Command{Cmd: CmdMarketBookAdd, Params: SymbolParams{Symbol: sym}}); err != nil {
			errs = append(errs, fmt.Errorf("re-attach %s: %w", sym, err))
		}
	}

	if err := errors.Join(errs...); err != nil {
		s.logger.Error("bridge session replay failed", "error", err)
	}
}

// dispatch routes one incoming message.
func (s *BookStream) dispatch(msg TimestampedMessage) {
	var env envelope
	if err := json.Unmarshal(msg.Data, &env); err != nil {
		s.logger.Warn("failed to parse bridge message", "error", err)
		return
	}

	switch env.Type {
	case "book":
		var bm BookMessage
		if err := json.Unmarshal(msg.Data, &bm); err != nil {
			s.logger.Warn("failed to parse book message", "error", err)
			return
		}
		s.booksReceived.Add(1)

		s.mu.Lock()
		if s.isAttachedLocked(bm.Symbol) {
			s.books[bm.Symbol] = bm.ToSnapshot(bm.Symbol)
		}
		s.mu.Unlock()

	case "ok", "error":
		var resp Response
		if err := json.Unmarshal(msg.Data, &resp); err != nil {
			s.logger.Warn("failed to parse response", "error", err)
			return
		}
		s.mu.Lock()
		ch, ok := s.pending[resp.ID]
		s.mu.Unlock()
		if !ok {
			s.logger.Debug("response for unknown command", "id", resp.ID)
			return
		}
		select {
		case ch <- commandResult{resp: resp}:
		default:
		}

	default:
		s.logger.Debug("unknown bridge message type", "type", env.Type)
	}
}
