package memory

import (
	"context"
	"fmt"
	"strings"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/pkg/cmap"
	"github.com/bluelamp/cligate/pkg/passhash"
)

type userRecord struct {
	user         *domain.User
	passwordHash string
}

// UserStore keeps accounts and their Argon2id password hashes.
type UserStore struct {
	users  *cmap.Map[string, *userRecord]
	emails *cmap.Map[string, string]
	params passhash.Params
	dummy  string
}

// NewUserStore creates an empty store hashing passwords with params.
func NewUserStore(params passhash.Params) (*UserStore, error) {
	dummy, err := passhash.Hash("cligate-unknown-user", params)
	if err != nil {
		return nil, fmt.Errorf("dummy hash: %w", err)
	}
	return &UserStore{
		users:  cmap.New[string, *userRecord](),
		emails: cmap.New[string, string](),
		params: params,
		dummy:  dummy,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// AddUser registers u. password may be plaintext or an already encoded
// Argon2id hash.
func (s *UserStore) AddUser(_ context.Context, u *domain.User, password string) error {
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

	email := normalizeEmail(u.Email)
	if owner, loaded := s.emails.LoadOrStore(email, u.ID); loaded && owner != u.ID {
		return domain.ErrBadRequest.WithDetails("email already registered")
	}

	rec := &userRecord{user: u.Clone(), passwordHash: hash}
	if rec.user.Status == "" {
		rec.user.Status = domain.UserActive
	}
	s.users.Set(u.ID, rec)
	return nil
}

// GetUser returns the account or domain.ErrUserNotFound.
func (s *UserStore) GetUser(_ context.Context, userID string) (*domain.User, error) {
	rec, ok := s.users.Get(userID)
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return rec.user.Clone(), nil
}

// Authenticate checks email and password. Unknown emails still pay for
// one hash verification.
func (s *UserStore) Authenticate(_ context.Context, email, password string) (*domain.User, error) {
	var rec *userRecord
	if id, ok := s.emails.Get(normalizeEmail(email)); ok {
		rec, _ = s.users.Get(id)
	}
	if rec == nil {
		_, _ = passhash.Verify(s.dummy, password, s.params)
		return nil, domain.ErrInvalidCredentials
	}

	ok, err := passhash.Verify(rec.passwordHash, password, s.params)
	if err != nil {
		return nil, domain.ErrInternal.WithCause(err)
	}
	if !ok {
		return nil, domain.ErrInvalidCredentials
	}
	return rec.user.Clone(), nil
}

// BlockUser applies a security block.
func (s *UserStore) BlockUser(_ context.Context, userID string, block domain.BlockInfo) error {
	_, ok := s.users.UpdateIf(userID, func(cur *userRecord) (*userRecord, bool) {
		u := cur.user.Clone()
		u.Status = domain.UserBlocked
		b := block
		u.Block = &b
		return &userRecord{user: u, passwordHash: cur.passwordHash}, true
	})
	if !ok {
		return domain.ErrUserNotFound
	}
	return nil
}

// UnblockUser lifts a block after a successful appeal.
func (s *UserStore) UnblockUser(_ context.Context, userID string) error {
	_, ok := s.users.UpdateIf(userID, func(cur *userRecord) (*userRecord, bool) {
		u := cur.user.Clone()
		u.Status = domain.UserActive
		u.Block = nil
		return &userRecord{user: u, passwordHash: cur.passwordHash}, true
	})
	if !ok {
		return domain.ErrUserNotFound
	}
	return nil
}

// Count returns the number of accounts.
func (s *UserStore) Count() int {
	return s.users.Count()
}
