package sqlstore

import (
	"context"

	"gorm.io/gorm"

	"github.com/bluelamp/cligate/internal/core/domain"
)

// AuditStore persists trap access entries. Rows are inserted once and
// never updated.
type AuditStore struct {
	db *gorm.DB
}

// NewAuditStore creates a store on db.
func NewAuditStore(db *gorm.DB) *AuditStore {
	return &AuditStore{db: db}
}

// Append inserts entry.
func (s *AuditStore) Append(ctx context.Context, entry *domain.TrapAccessLog) error {
	if entry.ID == "" {
		return domain.ErrBadRequest.WithDetails("audit entry requires id")
	}
	if err := s.db.WithContext(ctx).Create(toAuditModel(entry)).Error; err != nil {
		if isDuplicate(err) {
			return domain.ErrBadRequest.WithDetails("duplicate audit entry " + entry.ID)
		}
		return storageErr(err)
	}
	return nil
}

// List returns matching entries in id order. Limit is not applied.
func (s *AuditStore) List(ctx context.Context, f domain.AuditFilter) ([]*domain.TrapAccessLog, error) {
	q := s.db.WithContext(ctx).Order("id")
	if f.UserID != "" {
		q = q.Where("identified_user_id = ?", f.UserID)
	}
	if f.TrapKey != "" {
		q = q.Where("trap_key_used = ?", f.TrapKey)
	}
	if f.ResponseType != "" {
		q = q.Where("response_type = ?", string(f.ResponseType))
	}
	if !f.Since.IsZero() {
		q = q.Where("timestamp >= ?", f.Since.UTC())
	}
	if !f.Until.IsZero() {
		q = q.Where("timestamp < ?", f.Until.UTC())
	}

	var rows []auditModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, storageErr(err)
	}
	out := make([]*domain.TrapAccessLog, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}

// Count returns the number of stored entries.
func (s *AuditStore) Count(ctx context.Context) (int64, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&auditModel{}).Count(&n).Error
	return n, err
}
