package connection

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/rickgao/orderbook-relay/internal/api"
	"github.com/rickgao/orderbook-relay/internal/auth"
)

// Errors
var (
	ErrNotConnected    = errors.New("not connected")
	ErrStaleConnection = errors.New("connection stale (no ping)")
	ErrTimeout         = errors.New("operation timeout")
	ErrAlreadyClosed   = errors.New("already closed")
	ErrCommandFailed   = errors.New("bridge command failed")
)

// Bridge command names.
const (
	CmdInitialize        = "initialize"
	CmdLogin             = "login"
	CmdMarketBookAdd     = "market_book_add"
	CmdMarketBookRelease = "market_book_release"
	CmdShutdown          = "shutdown"
)

// TimestampedMessage wraps raw message data with receive timestamp.
type TimestampedMessage struct {
	Data       []byte    // Raw message bytes from WebSocket
	ReceivedAt time.Time // Local timestamp when ReadMessage() returned
}

// Command is a request to the bridge.
type Command struct {
	ID     int64  `json:"id"`
	Cmd    string `json:"cmd"`
	Params any    `json:"params,omitempty"`
}

// InitializeParams are parameters for the initialize command.
type InitializeParams struct {
	Path string `json:"path,omitempty"`
}

// LoginParams are parameters for the login command.
type LoginParams struct {
	Login    string `json:"login"`
	Password string `json:"password"`
	Server   string `json:"server"`
}

// SymbolParams are parameters for market_book_add and market_book_release.
type SymbolParams struct {
	Symbol string `json:"symbol"`
}

// envelope holds the fields needed to route an incoming message.
type envelope struct {
	ID   int64  `json:"id"`
	Type string `json:"type"` // "ok", "error" or "book"
}

// Response is a command response from the bridge.
type Response struct {
	ID   int64           `json:"id"`
	Type string          `json:"type"` // "ok" or "error"
	Msg  json.RawMessage `json:"msg"`
}

// ErrorMsg is the message content for an "error" response.
type ErrorMsg struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// BookMessage is a pushed depth-of-market update. It has the same body as
// the gateway's book response.
type BookMessage struct {
	Type string `json:"type"`
	api.BookResponse
}

// ClientConfig configures a WebSocket client.
type ClientConfig struct {
	URL          string        // WebSocket URL (e.g., ws://localhost:8229/ws)
	Signer       auth.Signer   // Signs the handshake (nil = no auth)
	PingTimeout  time.Duration // Max time without ping/pong before considering connection stale
	WriteTimeout time.Duration // Write deadline for sends
	BufferSize   int           // Message channel buffer size
}

// DefaultClientConfig returns sensible defaults.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		PingTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Second,
		BufferSize:   1000,
	}
}

// StreamConfig configures a BookStream.
type StreamConfig struct {
	Client            ClientConfig
	CommandTimeout    time.Duration // Wait for a command response
	ReconnectBaseWait time.Duration // Base wait time for reconnection
	ReconnectMaxWait  time.Duration // Max wait time for reconnection
}

// DefaultStreamConfig returns sensible defaults.
func DefaultStreamConfig() StreamConfig {
	return StreamConfig{
		Client:            DefaultClientConfig(),
		CommandTimeout:    5 * time.Second,
		ReconnectBaseWait: 500 * time.Millisecond,
		ReconnectMaxWait:  30 * time.Second,
	}
}

// StreamStats holds BookStream counters.
type StreamStats struct {
	Connected     bool
	Reconnects    int64
	BooksReceived int64
	Attached      int
}
