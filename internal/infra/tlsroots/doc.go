// Package tlsroots builds TLS configurations for cligate.
//
// The server side serves a certificate pair that reloads when the files
// change on disk. The client side trusts the system roots plus an
// optional private CA bundle.
package tlsroots
