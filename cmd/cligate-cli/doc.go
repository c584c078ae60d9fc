// Package main provides the entry point for cligate-cli.
//
// The CLI logs in and checks credentials against cligate-server, and gives
// operators access to the admin surface:
//
//   - login, verify, logout
//   - tokens, stats, sessions clear, unblock
//   - trap logs, trap stats
//   - watermark extract and strip (local files, no server)
//
// Usage:
//
//	cligate-cli [global flags] command [flags] [args]
//	cligate-cli --server https://gate.example.com login --email dev@example.com
//	cligate-cli -K "$ADMIN_KEY" -o json trap logs --since 24h
package main
