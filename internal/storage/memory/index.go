package memory

import (
	"sync"

	"github.com/bluelamp/cligate/pkg/cmap"
)

// KeySet is a concurrent set of record keys.
type KeySet struct {
	mu    sync.RWMutex
	items map[string]struct{}
}

// NewKeySet creates an empty set.
func NewKeySet() *KeySet {
	return &KeySet{items: make(map[string]struct{})}
}

// Add inserts key.
func (s *KeySet) Add(key string) {
	s.mu.Lock()
	s.items[key] = struct{}{}
	s.mu.Unlock()
}

// Len returns the number of keys.
func (s *KeySet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}

// Items returns a copy of the keys.
func (s *KeySet) Items() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.items))
	for k := range s.items {
		out = append(out, k)
	}
	return out
}

// OwnerIndex maps an owner id to the keys of the records it owns.
// Records are never physically deleted, so keys are only ever added.
type OwnerIndex struct {
	index *cmap.Map[string, *KeySet]
}

// NewOwnerIndex creates an empty index.
func NewOwnerIndex() *OwnerIndex {
	return &OwnerIndex{index: cmap.New[string, *KeySet]()}
}

// Add records that owner owns key.
func (i *OwnerIndex) Add(owner, key string) {
	set, _ := i.index.LoadOrStore(owner, NewKeySet())
	set.Add(key)
}

// Get returns the keys owned by owner.
func (i *OwnerIndex) Get(owner string) []string {
	set, ok := i.index.Get(owner)
	if !ok {
		return nil
	}
	return set.Items()
}

// Count returns how many keys owner owns.
func (i *OwnerIndex) Count(owner string) int {
	set, ok := i.index.Get(owner)
	if !ok {
		return 0
	}
	return set.Len()
}
