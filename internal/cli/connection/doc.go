// Package connection is the HTTP client cligate-cli talks to the server
// with.
//
// Responses arrive in the server's envelope; Client unwraps data into the
// caller's target and turns error envelopes into *APIError.
package connection
