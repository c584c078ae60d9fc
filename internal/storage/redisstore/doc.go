// Package redisstore keeps client sessions in Redis so that several server
// replicas arbitrate against the same state.
//
// Each (user, client type) pair is one string key holding the session as
// JSON. Replace is a single SET ... GET, strict creation is SETNX, and the
// session-id conditional updates are compare-and-swap Lua scripts over the
// stored value.
package redisstore
