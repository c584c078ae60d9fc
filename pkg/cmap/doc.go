// Package cmap provides a sharded concurrent map.
//
// Keys are spread over a power-of-two number of shards, each guarded by
// its own RWMutex. Every single-key operation, including the conditional
// ones (Swap, LoadOrStore, UpdateIf, DeleteIf), runs under one shard lock
// and is therefore atomic with respect to other operations on that key.
// Range walks shard by shard and does not see a consistent snapshot.
//
//	m := cmap.New[string, *Entry]()
//	prev, loaded := m.Swap("k", e)
package cmap
