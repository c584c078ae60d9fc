package sqlstore

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/bluelamp/cligate/internal/core/domain"
)

func TestAuditStore(t *testing.T) {
	s := NewAuditStore(newTestDB(t))
	ctx := context.Background()
	uid := "u1"

	var ids []string
	for i := 0; i < 4; i++ {
		ts := t0.Add(time.Duration(i) * time.Second)
		id := ulid.MustNew(ulid.Timestamp(ts), ulid.DefaultEntropy()).String()
		ids = append(ids, id)
		e := &domain.TrapAccessLog{
			ID:           id,
			Timestamp:    ts,
			TrapKeyUsed:  "sk-proj-losing",
			TrapClass:    "losing_trap",
			IPAddress:    "10.0.0.9",
			ResponseType: domain.ResponseError,
		}
		if i == 2 {
			e.IdentifiedUserID = &uid
			e.ResponseType = domain.ResponseBlocked
		}
		if err := s.Append(ctx, e); err != nil {
			t.Fatalf("Append(%d) error = %v", i, err)
		}
	}

	all, err := s.List(ctx, domain.AuditFilter{})
	if err != nil || len(all) != 4 {
		t.Fatalf("List() = %d, %v", len(all), err)
	}
	for i := range all {
		if all[i].ID != ids[i] {
			t.Errorf("List()[%d] = %s, want %s", i, all[i].ID, ids[i])
		}
	}
	if all[0].IdentifiedUserID != nil {
		t.Error("unattributed entry came back with a user id")
	}

	byUser, _ := s.List(ctx, domain.AuditFilter{UserID: "u1"})
	if len(byUser) != 1 || byUser[0].ResponseType != domain.ResponseBlocked {
		t.Errorf("List(user) = %+v", byUser)
	}

	window, _ := s.List(ctx, domain.AuditFilter{Since: t0.Add(time.Second), Until: t0.Add(3 * time.Second)})
	if len(window) != 2 {
		t.Errorf("List(window) len = %d, want 2", len(window))
	}

	if err := s.Append(ctx, all[0]); !errors.Is(err, domain.ErrBadRequest) {
		t.Errorf("duplicate Append() error = %v", err)
	}
	if n, _ := s.Count(ctx); n != 4 {
		t.Errorf("Count() = %d", n)
	}
}
