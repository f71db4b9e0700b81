// Package connection implements the WebSocket source: a client for a
// terminal bridge that pushes depth-of-market updates.
//
// Client is a thin WebSocket connection with keepalive. BookStream builds
// on it:
//   - sends commands ({id, cmd, params}) and waits for the matching response
//   - caches the latest pushed book per symbol; Poll reads that cache
//   - reconnects with exponential backoff and replays initialize, login
//     and market_book_add for every attached symbol
//   - returns ErrNotConnected from Poll while the connection is down
package connection
