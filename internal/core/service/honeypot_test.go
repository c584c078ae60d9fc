package service

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bluelamp/cligate/internal/core/domain"
)

const (
	winningKey = "bluelamp_cli_token_x9y8z7w6v5u4t3s2"
	losingKey  = "bluelamp_cli_token_a1b2c3d4e5f6g7h8"
	losingKey2 = "sk-bluelamp-legacy-0f9e8d7c6b5a4932"
)

func testPolicy(t *testing.T) *domain.TrapPolicy {
	t.Helper()
	p, err := domain.NewTrapPolicy([]domain.TrapKey{
		{Value: winningKey, Winning: true, Label: "docs-leak"},
		{Value: losingKey, Label: "gist"},
		{Value: losingKey2, Label: "pastebin"},
	})
	if err != nil {
		t.Fatalf("NewTrapPolicy() error = %v", err)
	}
	return p
}

type honeypotFixture struct {
	det      *HoneypotDetector
	tokens   *tokenFixture
	sessions *mockSessionRepo
	arbiter  *SessionArbiter
	audit    *recordingAudit
}

func newHoneypotFixture(t *testing.T) *honeypotFixture {
	t.Helper()
	tf := newTokenFixture(t)
	sessions := newMockSessionRepo()
	arbiter := NewSessionArbiter(sessions, &SessionArbiterConfig{Now: tf.clock.Now})
	audit := &recordingAudit{}
	det := NewHoneypotDetector(StaticPolicy{P: testPolicy(t)}, tf.svc, tf.svc, tf.users, arbiter, audit,
		&HoneypotConfig{Now: tf.clock.Now})
	return &honeypotFixture{det: det, tokens: tf, sessions: sessions, arbiter: arbiter, audit: audit}
}

func TestHoneypotDetector_Classify(t *testing.T) {
	f := newHoneypotFixture(t)

	tests := []struct {
		in   string
		want domain.TrapClass
	}{
		{winningKey, domain.WinningTrap},
		{losingKey, domain.LosingTrap},
		{losingKey2, domain.LosingTrap},
		{"sk-proj-random-real-looking-key", domain.Real},
		{"", domain.Real},
		{"bluelamp_cli_token_x9y8z7w6v5u4t3s", domain.Real},
		{winningKey + "1", domain.Real},
		{" " + winningKey, domain.Real},
		{"BLUELAMP_CLI_TOKEN_X9Y8Z7W6V5U4T3S2", domain.Real},
		{"bluelamp_cli_token_", domain.Real},
	}
	for _, tt := range tests {
		if got := f.det.Classify(tt.in); got != tt.want {
			t.Errorf("Classify(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestHoneypotDetector_LosingTrapResponseVaries(t *testing.T) {
	i := 0
	det := NewHoneypotDetector(StaticPolicy{P: testPolicy(t)}, nil, nil, nil, nil, &recordingAudit{},
		&HoneypotConfig{IntN: func(n int) int { i++; return i % n }})

	seen := make(map[string]int)
	for n := 0; n < 8; n++ {
		r := det.LosingTrapResponse()
		if r.Status < 400 {
			t.Fatalf("status %d is not an error", r.Status)
		}
		if r.Status == http.StatusTooManyRequests && r.RetryAfter <= 0 {
			t.Error("rate-limited response without Retry-After")
		}
		if r.Code == "" || r.Message == "" {
			t.Errorf("response = %+v", r)
		}
		seen[r.Code] = r.Status
	}
	want := map[string]int{
		domain.CodeInvalidAPIKey:        http.StatusUnauthorized,
		domain.CodeAPIKeyRevoked:        http.StatusUnauthorized,
		domain.CodeSubscriptionRequired: http.StatusPaymentRequired,
		domain.CodeRateLimited:          http.StatusTooManyRequests,
	}
	for code, status := range want {
		if seen[code] != status {
			t.Errorf("response %s: status %d, want %d", code, seen[code], status)
		}
	}
}

func TestHoneypotDetector_WinningTrapBlocksIdentifiedUser(t *testing.T) {
	f := newHoneypotFixture(t)
	ctx := context.Background()

	issued := f.tokens.issue(t, "U1")
	f.arbiter.Login(ctx, &SessionRequest{UserID: "U1", ClientType: domain.ClientCLI})
	f.arbiter.Login(ctx, &SessionRequest{UserID: "U1", ClientType: domain.ClientPortal})

	res, err := f.det.OnTrapTriggered(ctx, RequestContext{
		BearerToken: issued.Token,
		IPAddress:   "203.0.113.7",
		UserAgent:   "curl/8.0",
		Endpoint:    "/prompts/p-1",
		Method:      http.MethodGet,
	}, winningKey, TrapTrigger{ResourceID: "p-1", TrackingID: "tp-p-1-1-abcd", ResponseType: domain.ResponseTrapPrompt})
	if err != nil {
		t.Fatalf("OnTrapTriggered() error = %v", err)
	}

	if !res.Identified || res.UserID != "U1" || !res.Blocked {
		t.Errorf("result = %+v", res)
	}
	if res.TokensRevoked != 1 || res.SessionsCleared != 2 {
		t.Errorf("revoked=%d cleared=%d, want 1 and 2", res.TokensRevoked, res.SessionsCleared)
	}

	cred, _ := f.tokens.svc.LookupByToken(ctx, issued.Token)
	if cred.IsActive || cred.DeactivationReason != domain.ReasonSecurity {
		t.Errorf("credential = %+v, want deactivated for security", cred)
	}
	u, _ := f.tokens.users.GetUser(ctx, "U1")
	if u.Status != domain.UserBlocked || u.Block == nil || !u.Block.CanAppeal {
		t.Errorf("user = %+v, want appealable block", u)
	}
	if u.Block.Source != domain.BlockSourceHoneypot {
		t.Errorf("block source = %q", u.Block.Source)
	}
	if f.sessions.count("U1") != 0 {
		t.Error("sessions survived the block")
	}

	e := res.Entry
	if e.IdentifiedUserID == nil || *e.IdentifiedUserID != "U1" {
		t.Errorf("IdentifiedUserID = %v", e.IdentifiedUserID)
	}
	if e.TrapKeyUsed != winningKey || e.TrapClass != "winning_trap" || e.ResponseType != domain.ResponseTrapPrompt {
		t.Errorf("entry = %+v", e)
	}
	if e.IPAddress != "203.0.113.7" || e.Endpoint != "/prompts/p-1" || e.TrackingID != "tp-p-1-1-abcd" {
		t.Errorf("entry = %+v", e)
	}
}

func TestHoneypotDetector_UnidentifiedStillLogged(t *testing.T) {
	f := newHoneypotFixture(t)

	res, err := f.det.OnTrapTriggered(context.Background(), RequestContext{
		BearerToken: "blcli_not_a_real_token",
		IPAddress:   "198.51.100.1",
	}, winningKey, TrapTrigger{ResponseType: domain.ResponseTrapPrompt})
	if err != nil {
		t.Fatalf("OnTrapTriggered() error = %v", err)
	}
	if res.Identified || res.Blocked {
		t.Errorf("result = %+v", res)
	}
	if len(f.audit.entries) != 1 {
		t.Fatalf("audit entries = %d, want 1", len(f.audit.entries))
	}
	if f.audit.entries[0].IdentifiedUserID != nil {
		t.Error("IdentifiedUserID should be nil")
	}
}

func TestHoneypotDetector_LosingTrapTakesNoAccountAction(t *testing.T) {
	f := newHoneypotFixture(t)
	ctx := context.Background()
	issued := f.tokens.issue(t, "U2")

	res, err := f.det.OnTrapTriggered(ctx, RequestContext{BearerToken: issued.Token},
		losingKey, TrapTrigger{ResponseType: domain.ResponseError})
	if err != nil {
		t.Fatal(err)
	}
	if !res.Identified || res.Blocked || res.TokensRevoked != 0 {
		t.Errorf("result = %+v, want attribution only", res)
	}
	if _, err := f.tokens.svc.VerifyToken(ctx, issued.Token); err != nil {
		t.Errorf("losing trap revoked the caller's token: %v", err)
	}
	if f.audit.entries[0].ResponseType != domain.ResponseError || f.audit.entries[0].TrapClass != "losing_trap" {
		t.Errorf("entry = %+v", f.audit.entries[0])
	}
}

func TestHoneypotDetector_TrapKeyNeverAttributes(t *testing.T) {
	f := newHoneypotFixture(t)

	res, _ := f.det.OnTrapTriggered(context.Background(), RequestContext{
		BearerToken:   winningKey,
		SessionCookie: losingKey,
	}, winningKey, TrapTrigger{ResponseType: domain.ResponseBlocked})
	if res.Identified {
		t.Error("a trap key was used for attribution")
	}
}

func TestHoneypotDetector_SessionCookieAttribution(t *testing.T) {
	f := newHoneypotFixture(t)
	issued := f.tokens.issue(t, "U2")

	res, _ := f.det.OnTrapTriggered(context.Background(), RequestContext{SessionCookie: issued.Token},
		winningKey, TrapTrigger{ResponseType: domain.ResponseTrapPrompt})
	if !res.Identified || res.UserID != "U2" {
		t.Errorf("result = %+v, want U2 from cookie", res)
	}
}

func TestHoneypotDetector_ActionFailureStillAudited(t *testing.T) {
	f := newHoneypotFixture(t)
	f.tokens.users.blockErr = errStorageDown
	issued := f.tokens.issue(t, "U1")

	res, err := f.det.OnTrapTriggered(context.Background(), RequestContext{BearerToken: issued.Token},
		winningKey, TrapTrigger{ResponseType: domain.ResponseTrapPrompt})
	if !errors.Is(err, errStorageDown) {
		t.Errorf("error = %v, want storage failure", err)
	}
	if res == nil || res.Entry == nil || res.Blocked {
		t.Fatalf("result = %+v", res)
	}
	if res.TokensRevoked != 1 {
		t.Errorf("TokensRevoked = %d, want 1", res.TokensRevoked)
	}
	if len(f.audit.entries) != 1 {
		t.Errorf("audit entries = %d, want 1", len(f.audit.entries))
	}
}

func TestHoneypotDetector_RealKeyRejected(t *testing.T) {
	f := newHoneypotFixture(t)
	if _, err := f.det.OnTrapTriggered(context.Background(), RequestContext{}, "sk-proj-random-real-looking-key", TrapTrigger{}); err == nil {
		t.Error("OnTrapTriggered() accepted a non-trap credential")
	}
	if len(f.audit.entries) != 0 {
		t.Error("non-trap credential was audited")
	}
}

func TestAtomicPolicy_Swap(t *testing.T) {
	ap := NewAtomicPolicy(testPolicy(t))
	det := NewHoneypotDetector(ap, nil, nil, nil, nil, &recordingAudit{}, nil)

	if det.Classify(winningKey) != domain.WinningTrap {
		t.Fatal("initial policy not applied")
	}
	next, err := domain.NewTrapPolicy([]domain.TrapKey{{Value: "sk-rotated-trap-key-000111222", Winning: true}})
	if err != nil {
		t.Fatal(err)
	}
	ap.Store(next)

	if det.Classify(winningKey) != domain.Real {
		t.Error("old key still classified as trap after swap")
	}
	if det.Classify("sk-rotated-trap-key-000111222") != domain.WinningTrap {
		t.Error("new key not classified after swap")
	}
}
