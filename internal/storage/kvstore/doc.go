// Package kvstore persists the trap access log in an embedded Badger
// database.
//
// Entries are keyed by their ULID under a fixed prefix, so a prefix scan
// returns them in wall-clock order without a secondary index. Keys are
// written once and never overwritten.
package kvstore
