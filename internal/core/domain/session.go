package domain

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionIDPrefix is the prefix for client session ids.
const SessionIDPrefix = "cls-"

// ClientType partitions sessions: a user may hold one live session per type.
type ClientType string

// Supported client types.
const (
	ClientCLI          ClientType = "cli"
	ClientPortal       ClientType = "portal"
	ClientEditorPlugin ClientType = "editor-plugin"
)

// ClientTypes lists every supported client type.
var ClientTypes = []ClientType{ClientCLI, ClientPortal, ClientEditorPlugin}

// ParseClientType converts s to a ClientType. Empty input means cli.
func ParseClientType(s string) (ClientType, error) {
	switch ClientType(strings.ToLower(strings.TrimSpace(s))) {
	case "", ClientCLI:
		return ClientCLI, nil
	case ClientPortal:
		return ClientPortal, nil
	case ClientEditorPlugin:
		return ClientEditorPlugin, nil
	}
	return "", ErrBadRequest.WithDetails("unknown client type: " + s)
}

// ClientSession is the single live session for (UserID, ClientType).
type ClientSession struct {
	UserID       string     `json:"user_id"`
	ClientType   ClientType `json:"client_type"`
	SessionID    string     `json:"session_id"`
	LoginTime    time.Time  `json:"login_time"`
	LastActivity time.Time  `json:"last_activity"`
	IPAddress    string     `json:"ip_address,omitempty"`
	UserAgent    string     `json:"user_agent,omitempty"`
}

// NewClientSession creates a session with a fresh id.
func NewClientSession(userID string, ct ClientType, ip, ua string, now time.Time) *ClientSession {
	return &ClientSession{
		UserID:       userID,
		ClientType:   ct,
		SessionID:    NewSessionID(),
		LoginTime:    now,
		LastActivity: now,
		IPAddress:    ip,
		UserAgent:    ua,
	}
}

// Key returns the partition key the session is stored under.
func (s *ClientSession) Key() string {
	return SessionKey(s.UserID, s.ClientType)
}

// Clone creates a copy of the session.
func (s *ClientSession) Clone() *ClientSession {
	if s == nil {
		return nil
	}
	c := *s
	return &c
}

// SessionKey builds the (user, client type) partition key.
func SessionKey(userID string, ct ClientType) string {
	return userID + "|" + string(ct)
}

// NewSessionID generates a session id: cls-{ulid_lowercase}.
func NewSessionID() string {
	return SessionIDPrefix + strings.ToLower(ulid.Make().String())
}
