package domain

import (
	"fmt"
	"strings"
	"time"
)

// TrapClass is the outcome of classifying a presented credential.
type TrapClass int

// Classification outcomes.
const (
	Real TrapClass = iota
	LosingTrap
	WinningTrap
)

// String returns the class name used in logs and audit records.
func (c TrapClass) String() string {
	switch c {
	case LosingTrap:
		return "losing_trap"
	case WinningTrap:
		return "winning_trap"
	default:
		return "real"
	}
}

// TrapKey is one planted credential.
type TrapKey struct {
	Value   string `json:"value" koanf:"value"`
	Winning bool   `json:"winning" koanf:"winning"`
	Label   string `json:"label,omitempty" koanf:"label"`
}

// TrapPolicy is an immutable set of trap keys with exactly one winner.
// Build it with NewTrapPolicy; the zero value classifies everything as Real.
type TrapPolicy struct {
	classes map[string]TrapClass
	labels  map[string]string
	winning string
}

// NewTrapPolicy validates keys and freezes them into a policy.
//
// Rules: at least one key, exactly one winning key, no duplicates, no
// empty or whitespace-padded values, and no value shaped like an issued
// credential.
func NewTrapPolicy(keys []TrapKey) (*TrapPolicy, error) {
	if len(keys) == 0 {
		return nil, ErrInvalidTrapPolicy.WithDetails("no trap keys")
	}
	p := &TrapPolicy{
		classes: make(map[string]TrapClass, len(keys)),
		labels:  make(map[string]string, len(keys)),
	}
	for i, k := range keys {
		if k.Value == "" || strings.TrimSpace(k.Value) != k.Value {
			return nil, ErrInvalidTrapPolicy.WithDetails(fmt.Sprintf("key %d is empty or padded", i))
		}
		if ValidateTokenFormat(k.Value) || strings.HasPrefix(k.Value, TokenPrefix) {
			return nil, ErrInvalidTrapPolicy.WithDetails(fmt.Sprintf("key %d uses the issued credential prefix", i))
		}
		if _, dup := p.classes[k.Value]; dup {
			return nil, ErrInvalidTrapPolicy.WithDetails(fmt.Sprintf("key %d is duplicated", i))
		}
		class := LosingTrap
		if k.Winning {
			if p.winning != "" {
				return nil, ErrInvalidTrapPolicy.WithDetails("more than one winning key")
			}
			p.winning = k.Value
			class = WinningTrap
		}
		p.classes[k.Value] = class
		p.labels[k.Value] = k.Label
	}
	if p.winning == "" {
		return nil, ErrInvalidTrapPolicy.WithDetails("no winning key")
	}
	return p, nil
}

// Classify tests credential for exact membership in the trap set.
// Substrings, prefixes and near matches are Real.
func (p *TrapPolicy) Classify(credential string) TrapClass {
	if p == nil {
		return Real
	}
	if c, ok := p.classes[credential]; ok {
		return c
	}
	return Real
}

// IsTrap reports whether credential is any trap key.
func (p *TrapPolicy) IsTrap(credential string) bool {
	return p.Classify(credential) != Real
}

// Label returns the operator label of a trap key.
func (p *TrapPolicy) Label(credential string) string {
	if p == nil {
		return ""
	}
	return p.labels[credential]
}

// Len returns the number of trap keys.
func (p *TrapPolicy) Len() int {
	if p == nil {
		return 0
	}
	return len(p.classes)
}

// Keys returns a copy of the trap keys.
func (p *TrapPolicy) Keys() []TrapKey {
	if p == nil {
		return nil
	}
	out := make([]TrapKey, 0, len(p.classes))
	for v, c := range p.classes {
		out = append(out, TrapKey{Value: v, Winning: c == WinningTrap, Label: p.labels[v]})
	}
	return out
}

// MaskCredential hides all but the first six and last four characters.
func MaskCredential(s string) string {
	if len(s) <= 12 {
		return strings.Repeat("*", len(s))
	}
	return s[:6] + "..." + s[len(s)-4:]
}

// ResponseType records what a trap caller was served.
type ResponseType string

// Audit response types.
const (
	ResponseTrapPrompt ResponseType = "trap_prompt"
	ResponseError      ResponseType = "error"
	ResponseBlocked    ResponseType = "blocked"
)

// DefaultTrackingType is used when a TrapPrompt does not set one.
const DefaultTrackingType = "tp"

// TrapPrompt is decoy content served in place of a real resource.
type TrapPrompt struct {
	ID             string    `json:"id" koanf:"id"`
	RealResourceID string    `json:"real_resource_id" koanf:"real_resource_id"`
	Title          string    `json:"title" koanf:"title"`
	Description    string    `json:"description" koanf:"description"`
	Content        string    `json:"content" koanf:"content"`
	Category       string    `json:"category" koanf:"category"`
	Tags           []string  `json:"tags" koanf:"tags"`
	TrackingType   string    `json:"tracking_type" koanf:"tracking_type"`
	AccessCount    int64     `json:"access_count" koanf:"-"`
	CreatedAt      time.Time `json:"created_at" koanf:"-"`
	UpdatedAt      time.Time `json:"updated_at" koanf:"-"`
}

// Clone creates a deep copy of the trap prompt.
func (p *TrapPrompt) Clone() *TrapPrompt {
	if p == nil {
		return nil
	}
	c := *p
	c.Tags = append([]string(nil), p.Tags...)
	return &c
}

// NewTrackingID formats {type}-{resourceId}-{unixMillis}-{random}.
func NewTrackingID(trackingType, resourceID string, now time.Time, random string) string {
	if trackingType == "" {
		trackingType = DefaultTrackingType
	}
	return fmt.Sprintf("%s-%s-%d-%s", trackingType, resourceID, now.UnixMilli(), random)
}

// TrapAccessLog is one append-only record of a trap trigger.
type TrapAccessLog struct {
	ID               string       `json:"id"`
	Timestamp        time.Time    `json:"timestamp"`
	TrapKeyUsed      string       `json:"trap_key_used"`
	TrapClass        string       `json:"trap_class"`
	ResourceID       string       `json:"resource_id,omitempty"`
	IdentifiedUserID *string      `json:"identified_user_id"`
	IPAddress        string       `json:"ip_address"`
	UserAgent        string       `json:"user_agent"`
	Endpoint         string       `json:"endpoint"`
	Method           string       `json:"method"`
	TrackingID       string       `json:"tracking_id,omitempty"`
	ResponseType     ResponseType `json:"response_type"`
}

// Clone creates a copy of the entry.
func (l *TrapAccessLog) Clone() *TrapAccessLog {
	if l == nil {
		return nil
	}
	c := *l
	if l.IdentifiedUserID != nil {
		id := *l.IdentifiedUserID
		c.IdentifiedUserID = &id
	}
	return &c
}

// AuditFilter narrows audit queries. Zero fields match everything.
type AuditFilter struct {
	UserID       string
	TrapKey      string
	ResponseType ResponseType
	Since        time.Time
	Until        time.Time
	Limit        int
}

// Match reports whether l passes the filter (Limit is applied by callers).
func (f AuditFilter) Match(l *TrapAccessLog) bool {
	if f.UserID != "" && (l.IdentifiedUserID == nil || *l.IdentifiedUserID != f.UserID) {
		return false
	}
	if f.TrapKey != "" && l.TrapKeyUsed != f.TrapKey {
		return false
	}
	if f.ResponseType != "" && l.ResponseType != f.ResponseType {
		return false
	}
	if !f.Since.IsZero() && l.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !l.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

// AuditStats summarizes trap activity.
type AuditStats struct {
	Total           int                  `json:"total"`
	ByResponseType  map[ResponseType]int `json:"by_response_type"`
	ByTrapClass     map[string]int       `json:"by_trap_class"`
	UniqueIPs       int                  `json:"unique_ips"`
	IdentifiedUsers []string             `json:"identified_users"`
	Unattributed    int                  `json:"unattributed"`
	FirstSeen       *time.Time           `json:"first_seen,omitempty"`
	LastSeen        *time.Time           `json:"last_seen,omitempty"`
}

// TallyAudit computes AuditStats over entries in any order.
func TallyAudit(entries []*TrapAccessLog) AuditStats {
	st := AuditStats{
		ByResponseType:  make(map[ResponseType]int),
		ByTrapClass:     make(map[string]int),
		IdentifiedUsers: []string{},
	}
	ips := make(map[string]bool)
	users := make(map[string]bool)
	for _, e := range entries {
		st.Total++
		st.ByResponseType[e.ResponseType]++
		st.ByTrapClass[e.TrapClass]++
		if e.IPAddress != "" {
			ips[e.IPAddress] = true
		}
		if e.IdentifiedUserID == nil {
			st.Unattributed++
		} else if !users[*e.IdentifiedUserID] {
			users[*e.IdentifiedUserID] = true
			st.IdentifiedUsers = append(st.IdentifiedUsers, *e.IdentifiedUserID)
		}
		ts := e.Timestamp
		if st.FirstSeen == nil || ts.Before(*st.FirstSeen) {
			st.FirstSeen = &ts
		}
		if st.LastSeen == nil || ts.After(*st.LastSeen) {
			t2 := ts
			st.LastSeen = &t2
		}
	}
	st.UniqueIPs = len(ips)
	return st
}
