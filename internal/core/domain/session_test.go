package domain

import (
	"strings"
	"testing"
	"time"
)

func TestParseClientType(t *testing.T) {
	tests := []struct {
		in      string
		want    ClientType
		wantErr bool
	}{
		{"", ClientCLI, false},
		{"cli", ClientCLI, false},
		{"Portal", ClientPortal, false},
		{" editor-plugin ", ClientEditorPlugin, false},
		{"desktop", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseClientType(tt.in)
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseClientType(%q) error = %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("ParseClientType(%q) = %s, want %s", tt.in, got, tt.want)
			}
		})
	}
}

func TestNewClientSession(t *testing.T) {
	now := time.Now()
	a := NewClientSession("u1", ClientCLI, "10.0.0.1", "bluelamp-cli/1.0", now)
	b := NewClientSession("u1", ClientCLI, "10.0.0.1", "bluelamp-cli/1.0", now)

	if !strings.HasPrefix(a.SessionID, SessionIDPrefix) {
		t.Errorf("SessionID = %s, want %s prefix", a.SessionID, SessionIDPrefix)
	}
	if a.SessionID == b.SessionID {
		t.Error("session ids must be unique")
	}
	if a.Key() != "u1|cli" {
		t.Errorf("Key() = %s", a.Key())
	}
	if SessionKey("u1", ClientPortal) == a.Key() {
		t.Error("client types must partition keys")
	}
}
