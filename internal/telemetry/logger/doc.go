// Package logger provides structured logging for cligate.
//
//   - logger.go: slog-backed Logger, level control, optional rotated file output
//   - context.go: request scope (logger, request id, extra attrs) carried in a context
//   - redact.go: masking of issued credentials, trap keys and secrets
//   - security.go: security events at WARN with a stable event name
package logger
