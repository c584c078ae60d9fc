// Package httpserver serves the cligate HTTP API.
//
// The router wraps the handler package with a per-route middleware chain:
// request ids, access logging, panic recovery, optional CORS and per-client
// rate limiting on every route, plus an address allowlist and X-Admin-Key
// check on the admin routes. Server owns the listener, optional TLS and
// graceful shutdown.
package httpserver
