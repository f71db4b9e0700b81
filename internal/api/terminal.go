package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/rickgao/orderbook-relay/internal/model"
)

func bookPath(symbol string) string {
	return "/market_book/" + url.PathEscape(symbol)
}

// Initialize starts the terminal at path, or attaches to a running terminal
// when path is empty.
func (c *Client) Initialize(ctx context.Context, path string) error {
	return c.call(ctx, http.MethodPost, "/initialize", InitializeRequest{Path: path})
}

// Login logs the terminal in to a trading account.
func (c *Client) Login(ctx context.Context, login, password, server string) error {
	return c.call(ctx, http.MethodPost, "/login", LoginRequest{
		Login:    login,
		Password: password,
		Server:   server,
	})
}

// Attach subscribes to the symbol's depth of market.
func (c *Client) Attach(ctx context.Context, symbol string) error {
	return c.call(ctx, http.MethodPost, bookPath(symbol), nil)
}

// Poll reads the symbol's current book. It is not retried.
func (c *Client) Poll(ctx context.Context, symbol string) (model.Snapshot, error) {
	var resp BookResponse
	if err := c.get(ctx, bookPath(symbol), &resp); err != nil {
		return model.Snapshot{}, err
	}
	return resp.ToSnapshot(symbol), nil
}

// Release unsubscribes from the symbol's depth of market.
func (c *Client) Release(ctx context.Context, symbol string) error {
	return c.call(ctx, http.MethodDelete, bookPath(symbol), nil)
}

// Shutdown disconnects the gateway from the terminal.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.call(ctx, http.MethodPost, "/shutdown", nil)
}
