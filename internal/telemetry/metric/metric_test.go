package metric

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func scrape(t *testing.T, r *Registry) string {
	t.Helper()
	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	if err != nil {
		t.Fatalf("read metrics: %v", err)
	}
	return string(body)
}

func TestRegistry_Counters(t *testing.T) {
	r := NewRegistry()

	r.TokenIssued()
	r.TokenIssued()
	r.TokenVerified("valid")
	r.TokensDeactivated("security", 3)
	r.TokensDeactivated("revoked", 0)
	r.SessionLogin("cli", "replaced")
	r.TrapTriggered("winning_trap", true)

	out := scrape(t, r)
	for _, want := range []string{
		"cligate_token_issued_total 2",
		`cligate_token_verifications_total{result="valid"} 1`,
		`cligate_token_deactivated_total{reason="security"} 3`,
		`cligate_session_logins_total{client_type="cli",outcome="replaced"} 1`,
		`cligate_honeypot_triggers_total{attributed="true",class="winning_trap"} 1`,
	} {
		if !strings.Contains(out, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
	if strings.Contains(out, `reason="revoked"`) {
		t.Error("zero deactivations should not create a series")
	}
}

func TestRegistry_NilSafe(t *testing.T) {
	var r *Registry
	r.TokenIssued()
	r.TokenVerified("invalid")
	r.AuditWrite("dropped")
	r.ObserveHTTP("GET", "/x", "200", time.Millisecond)
	if r.Prometheus() != nil {
		t.Error("nil registry should expose nil prometheus registry")
	}
}

func TestRegistry_Handler(t *testing.T) {
	r := NewRegistry()
	r.ObserveHTTP("POST", "/login", "200", 5*time.Millisecond)
	r.Prometheus().MustRegister(NewCollector(func() int { return 7 }, func() int { return 3 }))

	body := scrape(t, r)
	for _, want := range []string{
		`cligate_http_requests_total{method="POST",route="/login",status="200"} 1`,
		"cligate_audit_queue_depth 7",
		"cligate_honeypot_trap_keys 3",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}
