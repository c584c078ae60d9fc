package memory

import (
	"context"
	"time"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/pkg/cmap"
)

// CredentialStore keeps credential records keyed by token digest.
type CredentialStore struct {
	creds  *cmap.Map[string, *domain.CliCredential]
	byUser *OwnerIndex
}

// NewCredentialStore creates an empty store.
func NewCredentialStore() *CredentialStore {
	return &CredentialStore{
		creds:  cmap.New[string, *domain.CliCredential](),
		byUser: NewOwnerIndex(),
	}
}

// Create stores cred. A second record with the same digest is rejected.
func (s *CredentialStore) Create(_ context.Context, cred *domain.CliCredential) error {
	if cred.TokenHash == "" || cred.UserID == "" {
		return domain.ErrBadRequest.WithDetails("credential requires token hash and user id")
	}
	if _, loaded := s.creds.LoadOrStore(cred.TokenHash, cred.Clone()); loaded {
		return domain.ErrCredentialConflict
	}
	s.byUser.Add(cred.UserID, cred.TokenHash)
	return nil
}

// GetByHash returns the record for tokenHash.
func (s *CredentialStore) GetByHash(_ context.Context, tokenHash string) (*domain.CliCredential, error) {
	c, ok := s.creds.Get(tokenHash)
	if !ok {
		return nil, domain.ErrNotFound
	}
	return c.Clone(), nil
}

// RecordUsage counts one use if the record is usable at now.
func (s *CredentialStore) RecordUsage(_ context.Context, tokenHash string, now time.Time) (*domain.CliCredential, error) {
	next, ok := s.creds.UpdateIf(tokenHash, func(cur *domain.CliCredential) (*domain.CliCredential, bool) {
		if !cur.IsUsable(now) {
			return cur, false
		}
		c := cur.Clone()
		c.RecordUse(now)
		return c, true
	})
	if !ok {
		return nil, domain.ErrNotFound
	}
	return next.Clone(), nil
}

// Deactivate flips one active record to inactive.
func (s *CredentialStore) Deactivate(_ context.Context, tokenHash string, reason domain.DeactivationReason, now time.Time) (bool, error) {
	return s.deactivate(tokenHash, reason, now, func(*domain.CliCredential) bool { return true }), nil
}

func (s *CredentialStore) deactivate(tokenHash string, reason domain.DeactivationReason, now time.Time, pred func(*domain.CliCredential) bool) bool {
	_, ok := s.creds.UpdateIf(tokenHash, func(cur *domain.CliCredential) (*domain.CliCredential, bool) {
		if !cur.IsActive || !pred(cur) {
			return cur, false
		}
		c := cur.Clone()
		c.Deactivate(reason, now)
		return c, true
	})
	return ok
}

// DeactivateAllForUser flips every active record of userID.
func (s *CredentialStore) DeactivateAllForUser(_ context.Context, userID string, reason domain.DeactivationReason, now time.Time) (int, error) {
	n := 0
	for _, hash := range s.byUser.Get(userID) {
		if s.deactivate(hash, reason, now, func(*domain.CliCredential) bool { return true }) {
			n++
		}
	}
	return n, nil
}

// DeactivateExpired flips active records whose expiry has passed.
func (s *CredentialStore) DeactivateExpired(_ context.Context, now time.Time) (int, error) {
	var candidates []string
	s.creds.Range(func(hash string, c *domain.CliCredential) bool {
		if c.IsActive && c.IsExpired(now) {
			candidates = append(candidates, hash)
		}
		return true
	})

	expired := func(c *domain.CliCredential) bool { return c.IsExpired(now) }
	n := 0
	for _, hash := range candidates {
		if s.deactivate(hash, domain.ReasonExpired, now, expired) {
			n++
		}
	}
	return n, nil
}

// List returns the records of userID, or all records when userID is empty.
func (s *CredentialStore) List(_ context.Context, userID string) ([]*domain.CliCredential, error) {
	if userID == "" {
		all := s.creds.Values()
		out := make([]*domain.CliCredential, 0, len(all))
		for _, c := range all {
			out = append(out, c.Clone())
		}
		return out, nil
	}

	hashes := s.byUser.Get(userID)
	out := make([]*domain.CliCredential, 0, len(hashes))
	for _, h := range hashes {
		if c, ok := s.creds.Get(h); ok {
			out = append(out, c.Clone())
		}
	}
	return out, nil
}
