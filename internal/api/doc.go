// Package api provides the REST client for a terminal gateway: a small HTTP
// service running next to the trading terminal that exposes its order-book
// functions.
//
// Endpoints:
//   - POST   /initialize            start or attach to the terminal
//   - POST   /login                 log in to a trading account
//   - POST   /market_book/{symbol}  subscribe to the symbol's depth of market
//   - GET    /market_book/{symbol}  read the current book
//   - DELETE /market_book/{symbol}  unsubscribe
//   - POST   /shutdown              disconnect from the terminal
//
// Lifecycle calls are retried on 5xx and 429. Book reads are not: the next
// poll is the retry.
package api
