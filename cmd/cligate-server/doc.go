// Package main provides the entry point for cligate-server.
//
// The server issues CLI credentials, arbitrates one live session per
// client type and answers planted trap keys with decoys:
//
//   - POST /login, /verify, /logout for credential lifecycle
//   - GET /prompts and /prompts/{id} behind the credential guard
//   - admin routes under X-Admin-Key
//   - /health and /metrics
//
// Usage:
//
//	cligate-server [flags]
//	cligate-server -config /etc/cligate/config.yaml
//	cligate-server -config /etc/cligate/config.yaml -check
//
// Every setting can also come from CLIGATE_* environment variables or a
// .env file.
package main
