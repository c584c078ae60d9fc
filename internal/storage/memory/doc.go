// Package memory provides in-memory implementations of every service
// repository.
//
// Records live in sharded concurrent maps (pkg/cmap). Stored values are
// never mutated in place: updates swap in a modified clone under the
// shard lock, and readers receive clones, so a returned record is never
// shared with the store.
//
// Atomicity:
//
//   - SessionStore.Replace is a single Swap on the (user, client type) key.
//   - CredentialStore.RecordUsage checks usability and counts the use
//     under one shard lock, so it is ordered against Deactivate.
//   - Audit entries are append-only.
package memory
