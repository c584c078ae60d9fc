package sqlstore

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/bluelamp/cligate/internal/core/domain"
)

// CredentialStore persists credential records.
type CredentialStore struct {
	db *gorm.DB
}

// NewCredentialStore creates a store on db.
func NewCredentialStore(db *gorm.DB) *CredentialStore {
	return &CredentialStore{db: db}
}

// Create inserts cred. A duplicate digest is domain.ErrCredentialConflict.
func (s *CredentialStore) Create(ctx context.Context, cred *domain.CliCredential) error {
	if err := s.db.WithContext(ctx).Create(toCredentialModel(cred)).Error; err != nil {
		if isDuplicate(err) {
			return domain.ErrCredentialConflict
		}
		return storageErr(err)
	}
	return nil
}

// GetByHash returns the record for tokenHash.
func (s *CredentialStore) GetByHash(ctx context.Context, tokenHash string) (*domain.CliCredential, error) {
	var m credentialModel
	if err := s.db.WithContext(ctx).Where("token_hash = ?", tokenHash).First(&m).Error; err != nil {
		return nil, storageErr(err)
	}
	return m.toDomain(), nil
}

// RecordUsage counts one use if the row is active and unexpired at now.
func (s *CredentialStore) RecordUsage(ctx context.Context, tokenHash string, now time.Time) (*domain.CliCredential, error) {
	now = now.UTC()
	res := s.db.WithContext(ctx).Model(&credentialModel{}).
		Where("token_hash = ? AND is_active = ? AND expires_at > ?", tokenHash, true, now).
		Updates(map[string]any{
			"last_used_at": now,
			"usage_count":  gorm.Expr("usage_count + 1"),
		})
	if res.Error != nil {
		return nil, storageErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return nil, domain.ErrNotFound
	}
	return s.GetByHash(ctx, tokenHash)
}

func (s *CredentialStore) deactivate(ctx context.Context, q *gorm.DB, reason domain.DeactivationReason, now time.Time) (int, error) {
	res := q.WithContext(ctx).Model(&credentialModel{}).
		Where("is_active = ?", true).
		Updates(map[string]any{
			"is_active":           false,
			"deactivation_reason": string(reason),
			"deactivated_at":      now.UTC(),
		})
	if res.Error != nil {
		return 0, storageErr(res.Error)
	}
	return int(res.RowsAffected), nil
}

// Deactivate flips one active record to inactive.
func (s *CredentialStore) Deactivate(ctx context.Context, tokenHash string, reason domain.DeactivationReason, now time.Time) (bool, error) {
	n, err := s.deactivate(ctx, s.db.Where("token_hash = ?", tokenHash), reason, now)
	return n > 0, err
}

// DeactivateAllForUser flips every active record of userID.
func (s *CredentialStore) DeactivateAllForUser(ctx context.Context, userID string, reason domain.DeactivationReason, now time.Time) (int, error) {
	return s.deactivate(ctx, s.db.Where("user_id = ?", userID), reason, now)
}

// DeactivateExpired flips active records whose expiry has passed.
func (s *CredentialStore) DeactivateExpired(ctx context.Context, now time.Time) (int, error) {
	return s.deactivate(ctx, s.db.Where("expires_at <= ?", now.UTC()), domain.ReasonExpired, now)
}

// List returns the records of userID, or all records when userID is empty.
func (s *CredentialStore) List(ctx context.Context, userID string) ([]*domain.CliCredential, error) {
	q := s.db.WithContext(ctx).Order("created_at")
	if userID != "" {
		q = q.Where("user_id = ?", userID)
	}
	var rows []credentialModel
	if err := q.Find(&rows).Error; err != nil {
		return nil, storageErr(err)
	}
	out := make([]*domain.CliCredential, len(rows))
	for i := range rows {
		out[i] = rows[i].toDomain()
	}
	return out, nil
}
