package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bluelamp/cligate/internal/core/domain"
)

var auditPrefix = []byte("audit/")

func auditKey(id string) []byte {
	return append(append([]byte(nil), auditPrefix...), id...)
}

// AuditStore is an append-only trap access log on top of Engine.
type AuditStore struct {
	engine *Engine
}

// NewAuditStore creates a store backed by engine.
func NewAuditStore(engine *Engine) *AuditStore {
	return &AuditStore{engine: engine}
}

// Append writes entry once. An existing id is rejected.
func (s *AuditStore) Append(ctx context.Context, entry *domain.TrapAccessLog) error {
	if entry.ID == "" {
		return domain.ErrBadRequest.WithDetails("audit entry requires id")
	}
	data, err := json.Marshal(entry)
	if err != nil {
		return domain.ErrInternal.WithCause(err)
	}

	if err := s.engine.SetIfAbsent(ctx, auditKey(entry.ID), data); err != nil {
		if errors.Is(err, ErrKeyExists) {
			return domain.ErrBadRequest.WithDetails("duplicate audit entry " + entry.ID)
		}
		return domain.ErrStorage.WithCause(err)
	}
	return nil
}

// Get returns one entry by id.
func (s *AuditStore) Get(ctx context.Context, id string) (*domain.TrapAccessLog, error) {
	data, err := s.engine.Get(ctx, auditKey(id))
	if err != nil {
		if errors.Is(err, ErrKeyNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, domain.ErrStorage.WithCause(err)
	}
	var entry domain.TrapAccessLog
	if err := json.Unmarshal(data, &entry); err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	return &entry, nil
}

// List returns matching entries in id order. Limit is not applied.
func (s *AuditStore) List(ctx context.Context, filter domain.AuditFilter) ([]*domain.TrapAccessLog, error) {
	var (
		out     []*domain.TrapAccessLog
		decodeE error
	)
	err := s.engine.Scan(ctx, auditPrefix, func(key, value []byte) bool {
		var entry domain.TrapAccessLog
		if err := json.Unmarshal(value, &entry); err != nil {
			decodeE = fmt.Errorf("decode %s: %w", key, err)
			return false
		}
		if filter.Match(&entry) {
			out = append(out, &entry)
		}
		return true
	})
	if err == nil {
		err = decodeE
	}
	if err != nil {
		return nil, domain.ErrStorage.WithCause(err)
	}
	return out, nil
}
