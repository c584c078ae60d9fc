package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/pkg/passhash"
)

var testParams = passhash.Params{MemoryKiB: 1024, Iterations: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32}

func newUserStore(t *testing.T) *UserStore {
	t.Helper()
	s, err := NewUserStore(testParams)
	if err != nil {
		t.Fatalf("NewUserStore() error = %v", err)
	}
	if err := s.AddUser(context.Background(), &domain.User{ID: "u1", Email: "Dev@Example.com"}, "s3cret"); err != nil {
		t.Fatalf("AddUser() error = %v", err)
	}
	return s
}

func TestUserStore_Authenticate(t *testing.T) {
	s := newUserStore(t)
	ctx := context.Background()

	u, err := s.Authenticate(ctx, " dev@example.com", "s3cret")
	if err != nil {
		t.Fatalf("Authenticate() error = %v", err)
	}
	if u.ID != "u1" || u.Status != domain.UserActive {
		t.Errorf("Authenticate() = %+v", u)
	}

	if _, err := s.Authenticate(ctx, "dev@example.com", "wrong"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("wrong password error = %v", err)
	}
	if _, err := s.Authenticate(ctx, "nobody@example.com", "s3cret"); !errors.Is(err, domain.ErrInvalidCredentials) {
		t.Errorf("unknown email error = %v", err)
	}
}

func TestUserStore_AddUserPrehashed(t *testing.T) {
	s := newUserStore(t)
	ctx := context.Background()

	hash, _ := passhash.Hash("pw2", testParams)
	if err := s.AddUser(ctx, &domain.User{ID: "u2", Email: "two@example.com"}, hash); err != nil {
		t.Fatalf("AddUser() error = %v", err)
	}
	if _, err := s.Authenticate(ctx, "two@example.com", "pw2"); err != nil {
		t.Errorf("Authenticate(prehashed) error = %v", err)
	}

	err := s.AddUser(ctx, &domain.User{ID: "u3", Email: "DEV@example.com"}, "x")
	if !errors.Is(err, domain.ErrBadRequest) {
		t.Errorf("duplicate email error = %v", err)
	}
}

func TestUserStore_BlockAndUnblock(t *testing.T) {
	s := newUserStore(t)
	ctx := context.Background()

	block := domain.NewSecurityBlock("trap", t0)
	if err := s.BlockUser(ctx, "u1", block); err != nil {
		t.Fatalf("BlockUser() error = %v", err)
	}
	u, _ := s.GetUser(ctx, "u1")
	if !u.IsBlocked() || u.Block == nil || !u.Block.CanAppeal {
		t.Fatalf("GetUser() = %+v", u)
	}

	// Credentials still check out; the block is enforced by the caller.
	if _, err := s.Authenticate(ctx, "dev@example.com", "s3cret"); err != nil {
		t.Errorf("Authenticate(blocked) error = %v", err)
	}

	if err := s.UnblockUser(ctx, "u1"); err != nil {
		t.Fatalf("UnblockUser() error = %v", err)
	}
	u, _ = s.GetUser(ctx, "u1")
	if u.IsBlocked() || u.Block != nil {
		t.Errorf("after unblock = %+v", u)
	}

	if err := s.BlockUser(ctx, "ghost", block); !errors.Is(err, domain.ErrUserNotFound) {
		t.Errorf("BlockUser(ghost) error = %v", err)
	}
}
