package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/bluelamp/cligate/internal/core/domain"
)

// AuditStore is an append-only list of trap access entries.
type AuditStore struct {
	mu      sync.RWMutex
	entries []*domain.TrapAccessLog
	ids     map[string]struct{}
}

// NewAuditStore creates an empty store.
func NewAuditStore() *AuditStore {
	return &AuditStore{ids: make(map[string]struct{})}
}

// Append adds entry. Entries are never updated or removed.
func (s *AuditStore) Append(_ context.Context, entry *domain.TrapAccessLog) error {
	if entry.ID == "" {
		return domain.ErrBadRequest.WithDetails("audit entry requires id")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, dup := s.ids[entry.ID]; dup {
		return domain.ErrBadRequest.WithDetails("duplicate audit entry " + entry.ID)
	}
	s.ids[entry.ID] = struct{}{}
	s.entries = append(s.entries, entry.Clone())
	return nil
}

// List returns matching entries in id order. Limit is not applied.
func (s *AuditStore) List(_ context.Context, filter domain.AuditFilter) ([]*domain.TrapAccessLog, error) {
	s.mu.RLock()
	out := make([]*domain.TrapAccessLog, 0, len(s.entries))
	for _, e := range s.entries {
		if filter.Match(e) {
			out = append(out, e.Clone())
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Len returns the number of stored entries.
func (s *AuditStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}
