package domain

import (
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/bluelamp/cligate/pkg/token"
)

// Credential format constants.
const (
	// TokenPrefix marks credentials issued by this service.
	TokenPrefix = "blcli_"

	// TokenBodyLength is the Base64 RawURL length of 32 random bytes.
	TokenBodyLength = 43

	// TokenLength is the full length of an issued credential.
	TokenLength = len(TokenPrefix) + TokenBodyLength

	// CredentialIDPrefix prefixes credential record ids.
	CredentialIDPrefix = "crd-"

	// DefaultExpirationDays applies when the caller does not choose one.
	DefaultExpirationDays = 30

	// MaxExpirationDays caps caller supplied expirations.
	MaxExpirationDays = 365
)

// DeactivationReason records why a credential stopped being usable.
type DeactivationReason string

// Deactivation reasons. The empty reason means the credential is active.
const (
	ReasonNone     DeactivationReason = ""
	ReasonExpired  DeactivationReason = "expired"
	ReasonRevoked  DeactivationReason = "revoked"
	ReasonReplaced DeactivationReason = "replaced"
	ReasonSecurity DeactivationReason = "security"
)

// Valid reports whether r is a known non-empty reason.
func (r DeactivationReason) Valid() bool {
	switch r {
	case ReasonExpired, ReasonRevoked, ReasonReplaced, ReasonSecurity:
		return true
	}
	return false
}

// DeviceInfo describes the machine a credential was issued to.
type DeviceInfo struct {
	Name      string `json:"name,omitempty"`
	Platform  string `json:"platform,omitempty"`
	Arch      string `json:"arch,omitempty"`
	Hostname  string `json:"hostname,omitempty"`
	IPAddress string `json:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty"`
}

// CliCredential is the stored record of an issued CLI token.
//
// Only TokenHash is persisted; the raw token exists in memory during
// issuance and afterwards only in the caller's possession.
type CliCredential struct {
	ID        string `json:"id"`
	UserID    string `json:"user_id"`
	TokenHash string `json:"token_hash"`

	// SessionID and ClientType bind the credential to the arbiter session
	// that was live when it was issued.
	SessionID  string     `json:"session_id,omitempty"`
	ClientType ClientType `json:"client_type,omitempty"`

	CreatedAt  time.Time  `json:"created_at"`
	ExpiresAt  time.Time  `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
	UsageCount int64      `json:"usage_count"`
	DeviceInfo DeviceInfo `json:"device_info"`

	IsActive           bool               `json:"is_active"`
	DeactivationReason DeactivationReason `json:"deactivation_reason,omitempty"`
	DeactivatedAt      *time.Time         `json:"deactivated_at,omitempty"`
}

// IsUsable reports whether the credential authenticates at now.
// Expiry is exclusive: a credential is unusable at exactly ExpiresAt.
func (c *CliCredential) IsUsable(now time.Time) bool {
	return c.IsActive && now.Before(c.ExpiresAt)
}

// IsExpired reports whether now is at or past ExpiresAt.
func (c *CliCredential) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// Deactivate flips the record to inactive. Already inactive records keep
// their first reason.
func (c *CliCredential) Deactivate(reason DeactivationReason, now time.Time) bool {
	if !c.IsActive {
		return false
	}
	c.IsActive = false
	c.DeactivationReason = reason
	t := now
	c.DeactivatedAt = &t
	return true
}

// RecordUse applies one successful verification.
func (c *CliCredential) RecordUse(now time.Time) {
	t := now
	c.LastUsedAt = &t
	c.UsageCount++
}

// Clone creates a deep copy of the credential.
func (c *CliCredential) Clone() *CliCredential {
	if c == nil {
		return nil
	}
	clone := *c
	if c.LastUsedAt != nil {
		t := *c.LastUsedAt
		clone.LastUsedAt = &t
	}
	if c.DeactivatedAt != nil {
		t := *c.DeactivatedAt
		clone.DeactivatedAt = &t
	}
	return &clone
}

// NewCredentialID returns a new credential record id.
func NewCredentialID() string {
	return CredentialIDPrefix + strings.ToLower(ulid.Make().String())
}

// GenerateToken generates a raw credential and its digest.
//
// The raw token must only be returned to the client once. Never store or
// log it.
func GenerateToken(h token.Hasher) (raw, digest string, err error) {
	raw, err = token.Generate(TokenPrefix)
	if err != nil {
		return "", "", ErrInternal.WithCause(err)
	}
	return raw, h.Digest(raw), nil
}

// ValidateTokenFormat reports whether s has the shape of an issued credential.
func ValidateTokenFormat(s string) bool {
	if len(s) != TokenLength || !strings.HasPrefix(s, TokenPrefix) {
		return false
	}
	for _, c := range s[len(TokenPrefix):] {
		if !isBase64URLChar(c) {
			return false
		}
	}
	return true
}

func isBase64URLChar(c rune) bool {
	return (c >= 'A' && c <= 'Z') ||
		(c >= 'a' && c <= 'z') ||
		(c >= '0' && c <= '9') ||
		c == '-' || c == '_'
}

// MaskToken masks a credential for display, keeping the prefix and the
// last four characters.
func MaskToken(s string) string {
	return MaskCredential(s)
}

// ClampExpirationDays applies the default and upper bound.
func ClampExpirationDays(days int) int {
	if days <= 0 {
		return DefaultExpirationDays
	}
	if days > MaxExpirationDays {
		return MaxExpirationDays
	}
	return days
}

// CredentialStats aggregates credential counts.
type CredentialStats struct {
	Total        int                        `json:"total"`
	Active       int                        `json:"active"`
	Expired      int                        `json:"expired"`
	Inactive     int                        `json:"inactive"`
	RecentlyUsed int                        `json:"recently_used"`
	ByReason     map[DeactivationReason]int `json:"by_reason"`
}

// RecentUseWindow bounds what counts as recently used.
const RecentUseWindow = 24 * time.Hour

// TallyCredentials computes stats over a set of records at now.
// A record still flagged active but past its expiry counts as expired.
func TallyCredentials(creds []*CliCredential, now time.Time) CredentialStats {
	st := CredentialStats{ByReason: make(map[DeactivationReason]int)}
	for _, c := range creds {
		st.Total++
		switch {
		case c.IsUsable(now):
			st.Active++
		case c.IsActive || c.DeactivationReason == ReasonExpired:
			st.Expired++
		default:
			st.Inactive++
		}
		if c.DeactivationReason != ReasonNone {
			st.ByReason[c.DeactivationReason]++
		}
		if c.LastUsedAt != nil && now.Sub(*c.LastUsedAt) <= RecentUseWindow {
			st.RecentlyUsed++
		}
	}
	return st
}
