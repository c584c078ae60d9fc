package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/pkg/passhash"
)

// UserStore persists accounts with Argon2id password hashes.
type UserStore struct {
	db     *gorm.DB
	params passhash.Params
	dummy  string
}

// NewUserStore creates a store on db hashing new passwords with params.
func NewUserStore(db *gorm.DB, params passhash.Params) (*UserStore, error) {
	dummy, err := passhash.Hash("cligate-unknown-user", params)
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	return &UserStore{db: db, params: params, dummy: dummy}, nil
}

// AddUser inserts u, or updates it when the id exists. password may be
// plaintext or an encoded Argon2id hash.
func (s *UserStore) AddUser(ctx context.Context, u *domain.User, password string) error {
	if u.ID == "" || u.Email == "" {
		return domain.ErrBadRequest.WithDetails("user requires id and email")
	}
	hash := password
	if !passhash.IsEncoded(password) {
		h, err := passhash.Hash(password, s.params)
		if err != nil {
			return domain.ErrInternal.WithCause(err)
		}
		hash = h
	}

	status := u.Status
	if status == "" {
		status = domain.UserActive
	}
	m := &userModel{
		ID:           u.ID,
		Email:        strings.ToLower(strings.TrimSpace(u.Email)),
		Name:         u.Name,
		Role:         u.Role,
		Status:       string(status),
		PasswordHash: hash,
	}
	if u.Block != nil {
		at := u.Block.BlockedAt.UTC()
		m.BlockReason, m.BlockCanAppeal, m.BlockSource, m.BlockedAt = u.Block.Reason, u.Block.CanAppeal, u.Block.Source, &at
	}

	if err := s.db.WithContext(ctx).Save(m).Error; err != nil {
		if isDuplicate(err) {
			return domain.ErrBadRequest.WithDetails("email already registered")
		}
		return storageErr(err)
	}
	return nil
}

func (s *UserStore) get(ctx context.Context, userID string) (*userModel, error) {
	var m userModel
	if err := s.db.WithContext(ctx).Where("id = ?", userID).First(&m).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrUserNotFound
		}
		return nil, storageErr(err)
	}
	return &m, nil
}

// GetUser returns the account or domain.ErrUserNotFound.
func (s *UserStore) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	m, err := s.get(ctx, userID)
	if err != nil {
		return nil, err
	}
	return m.toDomain(), nil
}

// Authenticate checks email and password. Unknown emails still pay for
// one hash verification.
func (s *UserStore) Authenticate(ctx context.Context, email, password string) (*domain.User, error) {
	var m userModel
	err := s.db.WithContext(ctx).
		Where("email = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		_, _ = passhash.Verify(s.dummy, password, s.params)
		return nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return nil, storageErr(err)
	}

	ok, err := passhash.Verify(m.PasswordHash, password, s.params)
	if err != nil {
		return nil, domain.ErrInternal.WithCause(err)
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	return m.toDomain(), nil
}

func (s *UserStore) update(ctx context.Context, userID string, fields map[string]any) error {
	res := s.db.WithContext(ctx).Model(&userModel{}).Where("id = ?", userID).Updates(fields)
	if res.Error != nil {
		return storageErr(res.Error)
	}
	if res.RowsAffected == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// BlockUser applies a security block.
func (s *UserStore) BlockUser(ctx context.Context, userID string, block domain.BlockInfo) error {
	return s.update(ctx, userID, map[string]any{
		"status":           string(domain.UserBlocked),
		"block_reason":     block.Reason,
		"block_can_appeal": block.CanAppeal,
		"block_source":     block.Source,
		"blocked_at":       block.BlockedAt.UTC(),
	})
}

// UnblockUser lifts a block after a successful appeal.
func (s *UserStore) UnblockUser(ctx context.Context, userID string) error {
	return s.update(ctx, userID, map[string]any{
		"status":           string(domain.UserActive),
		"block_reason":     "",
		"block_can_appeal": false,
		"block_source":     "",
		"blocked_at":       nil,
	})
}
