// Package token provides opaque credential generation and digest utilities.
//
// Credential format:
//
//   - Prefix: caller supplied (cligate uses "blcli_")
//   - Body: 43 characters of Base64 RawURL encoded random bytes (32 bytes)
//
// Digest format:
//
//   - 64 characters of hex-encoded SHA-256, or HMAC-SHA256 when a
//     server-side pepper is configured
//
// Raw credentials are never stored; only digests are. A digest cannot be
// turned back into the credential that produced it.
package token
