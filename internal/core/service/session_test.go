package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/bluelamp/cligate/internal/core/domain"
)

func newTestArbiter(policy SessionPolicy) (*SessionArbiter, *mockSessionRepo, *fakeClock) {
	repo := newMockSessionRepo()
	clock := newFakeClock()
	return NewSessionArbiter(repo, &SessionArbiterConfig{Policy: policy, Now: clock.Now}), repo, clock
}

func TestSessionArbiter_LoginReplaces(t *testing.T) {
	a, _, _ := newTestArbiter(PolicyReplace)
	ctx := context.Background()

	first, err := a.Login(ctx, &SessionRequest{UserID: "U1", ClientType: domain.ClientCLI})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if first.Replaced != nil {
		t.Error("first login should not replace anything")
	}

	second, err := a.Login(ctx, &SessionRequest{UserID: "U1", ClientType: domain.ClientCLI})
	if err != nil {
		t.Fatalf("second Login() error = %v", err)
	}
	if second.Replaced == nil || second.Replaced.SessionID != first.Session.SessionID {
		t.Errorf("Replaced = %+v, want first session", second.Replaced)
	}

	ok, _ := a.ValidateSession(ctx, "U1", domain.ClientCLI, first.Session.SessionID)
	if ok {
		t.Error("taken-over session still validates")
	}
	ok, _ = a.ValidateSession(ctx, "U1", domain.ClientCLI, second.Session.SessionID)
	if !ok {
		t.Error("new session does not validate")
	}
}

func TestSessionArbiter_StrictPolicy(t *testing.T) {
	a, _, _ := newTestArbiter(PolicyStrict)
	ctx := context.Background()

	first, err := a.Login(ctx, &SessionRequest{UserID: "U1"})
	if err != nil {
		t.Fatalf("Login() error = %v", err)
	}
	if first.Session.ClientType != domain.ClientCLI {
		t.Errorf("ClientType = %q, want cli default", first.Session.ClientType)
	}

	_, err = a.Login(ctx, &SessionRequest{UserID: "U1"})
	if !errors.Is(err, domain.ErrActiveSessionExists) {
		t.Fatalf("second Login() error = %v, want ErrActiveSessionExists", err)
	}

	forced, err := a.ForceLogin(ctx, &SessionRequest{UserID: "U1"})
	if err != nil {
		t.Fatalf("ForceLogin() error = %v", err)
	}
	if forced.Replaced == nil {
		t.Error("ForceLogin should report the prior session")
	}
	ok, _ := a.ValidateSession(ctx, "U1", domain.ClientCLI, first.Session.SessionID)
	if ok {
		t.Error("prior session survived ForceLogin")
	}
}

func TestSessionArbiter_ConcurrentLogins(t *testing.T) {
	for _, policy := range []SessionPolicy{PolicyReplace, PolicyStrict} {
		t.Run(string(policy), func(t *testing.T) {
			a, repo, _ := newTestArbiter(policy)
			ctx := context.Background()

			var wg sync.WaitGroup
			for i := 0; i < 64; i++ {
				wg.Add(1)
				go func() {
					defer wg.Done()
					_, err := a.Login(ctx, &SessionRequest{UserID: "U1", ClientType: domain.ClientCLI})
					if err != nil && !errors.Is(err, domain.ErrActiveSessionExists) {
						t.Errorf("Login() error = %v", err)
					}
				}()
			}
			wg.Wait()

			if n := repo.count("U1"); n != 1 {
				t.Fatalf("sessions for U1 = %d, want exactly 1", n)
			}
			if policy == PolicyReplace {
				live, _ := a.GetSession(ctx, "U1", domain.ClientCLI)
				last := repo.commits[len(repo.commits)-1]
				if live.SessionID != last {
					t.Errorf("live session %s is not the last committed %s", live.SessionID, last)
				}
			}
		})
	}
}

func TestSessionArbiter_LogoutPartitionedByClientType(t *testing.T) {
	a, _, _ := newTestArbiter(PolicyReplace)
	ctx := context.Background()

	cli, _ := a.Login(ctx, &SessionRequest{UserID: "U1", ClientType: domain.ClientCLI})
	portal, _ := a.Login(ctx, &SessionRequest{UserID: "U1", ClientType: domain.ClientPortal})

	ok, err := a.Logout(ctx, "U1", domain.ClientPortal, "")
	if err != nil || !ok {
		t.Fatalf("Logout(portal) = %v, %v", ok, err)
	}

	if ok, _ := a.ValidateSession(ctx, "U1", domain.ClientPortal, portal.Session.SessionID); ok {
		t.Error("portal session survived logout")
	}
	if ok, _ := a.ValidateSession(ctx, "U1", domain.ClientCLI, cli.Session.SessionID); !ok {
		t.Error("cli session was affected by portal logout")
	}
}

func TestSessionArbiter_LogoutConditional(t *testing.T) {
	a, _, _ := newTestArbiter(PolicyReplace)
	ctx := context.Background()

	old, _ := a.Login(ctx, &SessionRequest{UserID: "U1"})
	current, _ := a.Login(ctx, &SessionRequest{UserID: "U1"})

	ok, _ := a.Logout(ctx, "U1", domain.ClientCLI, old.Session.SessionID)
	if ok {
		t.Error("logout with a stale session id ended the live session")
	}
	if ok, _ := a.ValidateSession(ctx, "U1", domain.ClientCLI, current.Session.SessionID); !ok {
		t.Error("live session was removed")
	}
}

func TestSessionArbiter_UpdateActivity(t *testing.T) {
	a, repo, clock := newTestArbiter(PolicyReplace)
	ctx := context.Background()

	res, _ := a.Login(ctx, &SessionRequest{UserID: "U1"})
	clock.Advance(5 * time.Minute)

	a.UpdateActivity("U1", domain.ClientCLI, res.Session.SessionID)
	a.Close()

	s, _ := repo.Get(ctx, "U1", domain.ClientCLI)
	if !s.LastActivity.Equal(clock.Now()) {
		t.Errorf("LastActivity = %v, want %v", s.LastActivity, clock.Now())
	}

	// A stale session id leaves the live session alone.
	clock.Advance(time.Minute)
	a.UpdateActivity("U1", domain.ClientCLI, "cls-stale")
	a.Close()
	s, _ = repo.Get(ctx, "U1", domain.ClientCLI)
	if s.LastActivity.Equal(clock.Now()) {
		t.Error("stale session id refreshed the live session")
	}
}

func TestSessionArbiter_ClearSessions(t *testing.T) {
	a, repo, _ := newTestArbiter(PolicyReplace)
	ctx := context.Background()

	for _, ct := range domain.ClientTypes {
		if _, err := a.Login(ctx, &SessionRequest{UserID: "U1", ClientType: ct}); err != nil {
			t.Fatal(err)
		}
	}
	a.Login(ctx, &SessionRequest{UserID: "U2"})

	n, err := a.ClearSessions(ctx, "U1")
	if err != nil || n != len(domain.ClientTypes) {
		t.Fatalf("ClearSessions() = %d, %v", n, err)
	}
	if repo.count("U2") != 1 {
		t.Error("other user's session was cleared")
	}
}

func TestSessionArbiter_InvalidInput(t *testing.T) {
	a, _, _ := newTestArbiter(PolicyReplace)
	ctx := context.Background()

	if _, err := a.Login(ctx, &SessionRequest{UserID: "U1", ClientType: "desktop"}); !errors.Is(err, domain.ErrBadRequest) {
		t.Errorf("unknown client type error = %v", err)
	}
	if _, err := a.Login(ctx, &SessionRequest{}); err == nil {
		t.Error("empty user id accepted")
	}
	if ok, _ := a.ValidateSession(ctx, "U1", domain.ClientCLI, ""); ok {
		t.Error("empty session id validated")
	}
}

func TestParseSessionPolicy(t *testing.T) {
	tests := []struct {
		in      string
		want    SessionPolicy
		wantErr bool
	}{
		{"", PolicyReplace, false},
		{"replace", PolicyReplace, false},
		{"strict", PolicyStrict, false},
		{"lenient", "", true},
	}
	for _, tt := range tests {
		got, err := ParseSessionPolicy(tt.in)
		if (err != nil) != tt.wantErr || got != tt.want {
			t.Errorf("ParseSessionPolicy(%q) = %q, %v", tt.in, got, err)
		}
	}
}
