package domain

import (
	"strings"
	"testing"
	"time"
)

const winningKey = "bluelamp_cli_token_x9y8z7w6v5u4t3s2"

func fixturePolicy(t *testing.T) *TrapPolicy {
	t.Helper()
	p, err := NewTrapPolicy([]TrapKey{
		{Value: winningKey, Winning: true, Label: "github gist"},
		{Value: "sk-bluelamp-prod-4f9a2c7e1b3d", Label: "pastebin"},
		{Value: "bl_api_key_live_7Hq2Lx9Pz"},
	})
	if err != nil {
		t.Fatalf("NewTrapPolicy() error = %v", err)
	}
	return p
}

func TestTrapPolicy_Classify(t *testing.T) {
	p := fixturePolicy(t)

	tests := []struct {
		name  string
		input string
		want  TrapClass
	}{
		{"winning key", winningKey, WinningTrap},
		{"losing key", "sk-bluelamp-prod-4f9a2c7e1b3d", LosingTrap},
		{"other losing key", "bl_api_key_live_7Hq2Lx9Pz", LosingTrap},
		{"unrelated key", "sk-proj-random-real-looking-key", Real},
		{"prefix of trap", winningKey[:len(winningKey)-1], Real},
		{"trap with suffix", winningKey + "0", Real},
		{"substring of trap", "cli_token_x9y8z7w6", Real},
		{"case variant", strings.ToUpper(winningKey), Real},
		{"padded", " " + winningKey, Real},
		{"empty", "", Real},
		{"issued credential", TokenPrefix + strings.Repeat("x", TokenBodyLength), Real},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := p.Classify(tt.input); got != tt.want {
				t.Errorf("Classify(%q) = %s, want %s", tt.input, got, tt.want)
			}
		})
	}
}

func TestTrapPolicy_ExactlyOneWinner(t *testing.T) {
	p := fixturePolicy(t)
	winners := 0
	for _, k := range p.Keys() {
		if p.Classify(k.Value) == WinningTrap {
			winners++
		}
	}
	if winners != 1 {
		t.Errorf("winning keys = %d, want 1", winners)
	}
	if p.Len() != 3 {
		t.Errorf("Len() = %d, want 3", p.Len())
	}
}

func TestNewTrapPolicy_Validation(t *testing.T) {
	tests := []struct {
		name string
		keys []TrapKey
	}{
		{"empty", nil},
		{"no winner", []TrapKey{{Value: "a-key-1"}}},
		{"two winners", []TrapKey{{Value: "a-key-1", Winning: true}, {Value: "a-key-2", Winning: true}}},
		{"duplicate", []TrapKey{{Value: "a-key-1", Winning: true}, {Value: "a-key-1"}}},
		{"blank", []TrapKey{{Value: "", Winning: true}}},
		{"padded", []TrapKey{{Value: "a-key-1 ", Winning: true}}},
		{"issued prefix", []TrapKey{{Value: TokenPrefix + "abc", Winning: true}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewTrapPolicy(tt.keys); err == nil {
				t.Error("NewTrapPolicy() error = nil, want error")
			}
		})
	}
}

func TestTrapPolicy_KeysIsACopy(t *testing.T) {
	p := fixturePolicy(t)
	keys := p.Keys()
	for i := range keys {
		keys[i].Winning = true
		keys[i].Value = "mutated"
	}
	if p.Classify(winningKey) != WinningTrap || p.Classify("mutated") != Real {
		t.Error("mutating Keys() result changed the policy")
	}
}

func TestNilTrapPolicy(t *testing.T) {
	var p *TrapPolicy
	if p.Classify(winningKey) != Real || p.Len() != 0 {
		t.Error("nil policy should classify everything as Real")
	}
}

func TestNewTrackingID(t *testing.T) {
	now := time.UnixMilli(1700000000123)
	got := NewTrackingID("", "prompt-7", now, "a1b2c3d4")
	if got != "tp-prompt-7-1700000000123-a1b2c3d4" {
		t.Errorf("NewTrackingID() = %s", got)
	}
}

func TestMaskCredential(t *testing.T) {
	if got := MaskCredential(winningKey); got != "bluela...t3s2" {
		t.Errorf("MaskCredential() = %s", got)
	}
	if got := MaskCredential("short"); got != "*****" {
		t.Errorf("MaskCredential(short) = %s", got)
	}
}

func TestAuditFilterAndTally(t *testing.T) {
	u1 := "u1"
	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	entries := []*TrapAccessLog{
		{Timestamp: base, TrapKeyUsed: winningKey, TrapClass: "winning_trap", IdentifiedUserID: &u1, IPAddress: "1.1.1.1", ResponseType: ResponseTrapPrompt},
		{Timestamp: base.Add(time.Minute), TrapKeyUsed: "k2", TrapClass: "losing_trap", IPAddress: "1.1.1.1", ResponseType: ResponseError},
		{Timestamp: base.Add(2 * time.Minute), TrapKeyUsed: "k2", TrapClass: "losing_trap", IPAddress: "2.2.2.2", ResponseType: ResponseError},
	}

	st := TallyAudit(entries)
	if st.Total != 3 || st.UniqueIPs != 2 || st.Unattributed != 2 {
		t.Errorf("stats = %+v", st)
	}
	if len(st.IdentifiedUsers) != 1 || st.IdentifiedUsers[0] != "u1" {
		t.Errorf("IdentifiedUsers = %v", st.IdentifiedUsers)
	}
	if !st.FirstSeen.Equal(base) || !st.LastSeen.Equal(base.Add(2*time.Minute)) {
		t.Errorf("FirstSeen/LastSeen = %v/%v", st.FirstSeen, st.LastSeen)
	}

	f := AuditFilter{ResponseType: ResponseError, Since: base.Add(time.Minute)}
	n := 0
	for _, e := range entries {
		if f.Match(e) {
			n++
		}
	}
	if n != 2 {
		t.Errorf("matched = %d, want 2", n)
	}
	if (AuditFilter{UserID: "u1"}).Match(entries[1]) {
		t.Error("unattributed entry should not match a user filter")
	}
}
