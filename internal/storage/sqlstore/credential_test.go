package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/bluelamp/cligate/internal/core/domain"
)

func newCred(id, user, hash string, ttl time.Duration) *domain.CliCredential {
	return &domain.CliCredential{
		ID:         id,
		UserID:     user,
		TokenHash:  hash,
		SessionID:  "cls-1",
		ClientType: domain.ClientCLI,
		CreatedAt:  t0,
		ExpiresAt:  t0.Add(ttl),
		DeviceInfo: domain.DeviceInfo{Name: "laptop", Platform: "linux"},
		IsActive:   true,
	}
}

func TestCredentialStore_RoundTrip(t *testing.T) {
	s := NewCredentialStore(newTestDB(t))
	ctx := context.Background()

	in := newCred("c1", "u1", "h1", time.Hour)
	if err := s.Create(ctx, in); err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if err := s.Create(ctx, newCred("c2", "u1", "h1", time.Hour)); !errors.Is(err, domain.ErrCredentialConflict) {
		t.Fatalf("Create(duplicate hash) error = %v", err)
	}

	got, err := s.GetByHash(ctx, "h1")
	if err != nil {
		t.Fatalf("GetByHash() error = %v", err)
	}
	if got.ID != "c1" || got.ClientType != domain.ClientCLI || got.DeviceInfo.Name != "laptop" || !got.ExpiresAt.Equal(in.ExpiresAt) {
		t.Errorf("GetByHash() = %+v", got)
	}
	if _, err := s.GetByHash(ctx, "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("GetByHash(missing) error = %v", err)
	}
}

func TestCredentialStore_RecordUsageConditions(t *testing.T) {
	s := NewCredentialStore(newTestDB(t))
	ctx := context.Background()
	_ = s.Create(ctx, newCred("c1", "u1", "h1", time.Hour))

	got, err := s.RecordUsage(ctx, "h1", t0.Add(time.Minute))
	if err != nil {
		t.Fatalf("RecordUsage() error = %v", err)
	}
	if got.UsageCount != 1 || got.LastUsedAt == nil || !got.LastUsedAt.Equal(t0.Add(time.Minute)) {
		t.Errorf("RecordUsage() = %+v", got)
	}

	if _, err := s.RecordUsage(ctx, "h1", t0.Add(time.Hour)); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("RecordUsage(at expiry) error = %v", err)
	}
	if _, err := s.RecordUsage(ctx, "h1", t0.Add(time.Hour-time.Millisecond)); err != nil {
		t.Errorf("RecordUsage(1ms before expiry) error = %v", err)
	}

	if ok, _ := s.Deactivate(ctx, "h1", domain.ReasonRevoked, t0); !ok {
		t.Fatal("Deactivate() = false")
	}
	if ok, _ := s.Deactivate(ctx, "h1", domain.ReasonSecurity, t0); ok {
		t.Error("second Deactivate() = true")
	}
	if _, err := s.RecordUsage(ctx, "h1", t0); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("RecordUsage(revoked) error = %v", err)
	}

	got, _ = s.GetByHash(ctx, "h1")
	if got.DeactivationReason != domain.ReasonRevoked || got.DeactivatedAt == nil {
		t.Errorf("after revoke = %+v", got)
	}
}

func TestCredentialStore_BulkDeactivation(t *testing.T) {
	s := NewCredentialStore(newTestDB(t))
	ctx := context.Background()
	_ = s.Create(ctx, newCred("c1", "u1", "h1", time.Minute))
	_ = s.Create(ctx, newCred("c2", "u1", "h2", time.Hour))
	_ = s.Create(ctx, newCred("c3", "u2", "h3", time.Minute))

	n, err := s.DeactivateExpired(ctx, t0.Add(time.Minute))
	if err != nil || n != 2 {
		t.Fatalf("DeactivateExpired() = %d, %v; want 2", n, err)
	}

	n, err = s.DeactivateAllForUser(ctx, "u1", domain.ReasonSecurity, t0)
	if err != nil || n != 1 {
		t.Fatalf("DeactivateAllForUser() = %d, %v; want 1", n, err)
	}

	list, _ := s.List(ctx, "u1")
	if len(list) != 2 {
		t.Fatalf("List(u1) len = %d", len(list))
	}
	reasons := map[string]domain.DeactivationReason{}
	for _, c := range list {
		reasons[c.ID] = c.DeactivationReason
	}
	if reasons["c1"] != domain.ReasonExpired || reasons["c2"] != domain.ReasonSecurity {
		t.Errorf("reasons = %v", reasons)
	}

	all, _ := s.List(ctx, "")
	if len(all) != 3 {
		t.Errorf("List(all) len = %d", len(all))
	}
}
