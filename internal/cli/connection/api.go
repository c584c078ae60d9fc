package connection

import (
	"context"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

// DeviceInfo describes the machine a credential was issued to.
type DeviceInfo struct {
	Name      string `json:"name,omitempty" yaml:"name,omitempty"`
	Platform  string `json:"platform,omitempty" yaml:"platform,omitempty"`
	Arch      string `json:"arch,omitempty" yaml:"arch,omitempty"`
	Hostname  string `json:"hostname,omitempty" yaml:"hostname,omitempty"`
	IPAddress string `json:"ipAddress,omitempty" yaml:"ipAddress,omitempty"`
	UserAgent string `json:"userAgent,omitempty" yaml:"userAgent,omitempty"`
}

// LoginRequest is the body of POST /login.
type LoginRequest struct {
	Email          string      `json:"email"`
	Password       string      `json:"password"`
	DeviceInfo     *DeviceInfo `json:"deviceInfo,omitempty"`
	ClientType     string      `json:"clientType,omitempty"`
	ExpirationDays int         `json:"expirationDays,omitempty"`
	Force          bool        `json:"force,omitempty"`
}

// LoginResult is the data of a successful login.
type LoginResult struct {
	Token      string     `json:"token" yaml:"token"`
	UserID     string     `json:"userId" yaml:"userId"`
	ExpiresIn  int64      `json:"expiresIn" yaml:"expiresIn"`
	ExpiresAt  time.Time  `json:"expiresAt" yaml:"expiresAt"`
	DeviceInfo DeviceInfo `json:"deviceInfo" yaml:"deviceInfo"`
	SessionID  string     `json:"sessionId" yaml:"sessionId"`
	ClientType string     `json:"clientType" yaml:"clientType"`
	TookOver   bool       `json:"tookOver" yaml:"tookOver"`
}

// VerifyResult is the data of POST /verify.
type VerifyResult struct {
	UserID        string    `json:"userId" yaml:"userId"`
	TokenValid    bool      `json:"tokenValid" yaml:"tokenValid"`
	ExpiresAt     time.Time `json:"expiresAt" yaml:"expiresAt"`
	RemainingTime int64     `json:"remainingTime" yaml:"remainingTime"`
}

// TokenView is one credential in a token listing.
type TokenView struct {
	ID         string     `json:"id" yaml:"id"`
	ClientType string     `json:"clientType,omitempty" yaml:"clientType,omitempty"`
	DeviceInfo DeviceInfo `json:"deviceInfo" yaml:"deviceInfo" table:"-"`
	CreatedAt  time.Time  `json:"createdAt" yaml:"createdAt"`
	ExpiresAt  time.Time  `json:"expiresAt" yaml:"expiresAt"`
	LastUsedAt *time.Time `json:"lastUsedAt,omitempty" yaml:"lastUsedAt,omitempty"`
	UsageCount int64      `json:"usageCount" yaml:"usageCount"`
}

// TokenList is the data of GET /tokens/{userId}.
type TokenList struct {
	UserID string      `json:"userId" yaml:"userId"`
	Tokens []TokenView `json:"tokens" yaml:"tokens"`
	Count  int         `json:"count" yaml:"count"`
}

// CredentialStats counts credentials by state.
type CredentialStats struct {
	Total        int            `json:"total" yaml:"total"`
	Active       int            `json:"active" yaml:"active"`
	Expired      int            `json:"expired" yaml:"expired"`
	Inactive     int            `json:"inactive" yaml:"inactive"`
	RecentlyUsed int            `json:"recently_used" yaml:"recently_used"`
	ByReason     map[string]int `json:"by_reason" yaml:"by_reason"`
}

// Stats is the data of GET /stats.
type Stats struct {
	UserID          string          `json:"userId,omitempty" yaml:"userId,omitempty"`
	Tokens          CredentialStats `json:"tokens" yaml:"tokens"`
	AuditQueueDepth int             `json:"auditQueueDepth" yaml:"auditQueueDepth"`
	TrapKeys        int             `json:"trapKeys" yaml:"trapKeys"`
}

// TrapLog is one audit entry. TrapKey arrives masked.
type TrapLog struct {
	ID               string    `json:"id" yaml:"id"`
	Timestamp        time.Time `json:"timestamp" yaml:"timestamp"`
	TrapKey          string    `json:"trapKey" yaml:"trapKey"`
	TrapClass        string    `json:"trapClass" yaml:"trapClass"`
	ResourceID       string    `json:"resourceId,omitempty" yaml:"resourceId,omitempty" table:"wide"`
	IdentifiedUserID *string   `json:"identifiedUserId" yaml:"identifiedUserId"`
	IPAddress        string    `json:"ipAddress" yaml:"ipAddress"`
	UserAgent        string    `json:"userAgent" yaml:"userAgent" table:"wide"`
	Endpoint         string    `json:"endpoint" yaml:"endpoint" table:"wide"`
	Method           string    `json:"method" yaml:"method" table:"wide"`
	TrackingID       string    `json:"trackingId,omitempty" yaml:"trackingId,omitempty" table:"wide"`
	ResponseType     string    `json:"responseType" yaml:"responseType"`
}

// TrapLogs is the data of GET /admin/trap/logs.
type TrapLogs struct {
	Entries []TrapLog `json:"entries" yaml:"entries"`
	Count   int       `json:"count" yaml:"count"`
}

// TrapStats is the data of GET /admin/trap/stats.
type TrapStats struct {
	Total           int            `json:"total" yaml:"total"`
	ByResponseType  map[string]int `json:"by_response_type" yaml:"by_response_type"`
	ByTrapClass     map[string]int `json:"by_trap_class" yaml:"by_trap_class"`
	UniqueIPs       int            `json:"unique_ips" yaml:"unique_ips"`
	IdentifiedUsers []string       `json:"identified_users" yaml:"identified_users"`
	Unattributed    int            `json:"unattributed" yaml:"unattributed"`
	FirstSeen       *time.Time     `json:"first_seen,omitempty" yaml:"first_seen,omitempty"`
	LastSeen        *time.Time     `json:"last_seen,omitempty" yaml:"last_seen,omitempty"`
}

// TrapFilter narrows trap log queries. Zero fields are ignored.
type TrapFilter struct {
	UserID       string
	TrapKey      string
	ResponseType string
	Since        time.Time
	Until        time.Time
	Limit        int
}

func (f TrapFilter) query() string {
	q := url.Values{}
	if f.UserID != "" {
		q.Set("userId", f.UserID)
	}
	if f.TrapKey != "" {
		q.Set("trapKey", f.TrapKey)
	}
	if f.ResponseType != "" {
		q.Set("responseType", f.ResponseType)
	}
	if !f.Since.IsZero() {
		q.Set("since", f.Since.UTC().Format(time.RFC3339))
	}
	if !f.Until.IsZero() {
		q.Set("until", f.Until.UTC().Format(time.RFC3339))
	}
	if f.Limit > 0 {
		q.Set("limit", strconv.Itoa(f.Limit))
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// ClearResult is the data of DELETE /admin/sessions/{userId}.
type ClearResult struct {
	UserID  string `json:"userId" yaml:"userId"`
	Cleared int    `json:"cleared" yaml:"cleared"`
}

// UnblockResult is the data of POST /admin/users/{userId}/unblock.
type UnblockResult struct {
	UserID string `json:"userId" yaml:"userId"`
	Status string `json:"status" yaml:"status"`
}

// Health is the data of GET /health.
type Health struct {
	Status  string `json:"status" yaml:"status"`
	Version string `json:"version" yaml:"version"`
	Time    string `json:"time" yaml:"time"`
}

// Login exchanges email and password for a credential.
func (c *Client) Login(ctx context.Context, req LoginRequest) (*LoginResult, error) {
	var out LoginResult
	if err := c.Do(ctx, http.MethodPost, "/login", req, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Verify checks a credential.
func (c *Client) Verify(ctx context.Context, token string) (*VerifyResult, error) {
	var out VerifyResult
	if err := c.Do(ctx, http.MethodPost, "/verify", map[string]string{"token": token}, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes a credential and ends its session.
func (c *Client) Logout(ctx context.Context, token string) error {
	return c.Do(ctx, http.MethodPost, "/logout", map[string]string{"token": token}, nil, nil)
}

// ListTokens lists the active credentials of a user.
func (c *Client) ListTokens(ctx context.Context, userID string) (*TokenList, error) {
	var out TokenList
	if err := c.Do(ctx, http.MethodGet, "/tokens/"+url.PathEscape(userID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Stats returns credential statistics, for one user when userID is set.
func (c *Client) Stats(ctx context.Context, userID string) (*Stats, error) {
	path := "/stats"
	if userID != "" {
		path += "?userId=" + url.QueryEscape(userID)
	}
	var out Stats
	if err := c.Do(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrapLogs lists trap audit entries, newest first.
func (c *Client) TrapLogs(ctx context.Context, f TrapFilter) (*TrapLogs, error) {
	var out TrapLogs
	if err := c.Do(ctx, http.MethodGet, "/admin/trap/logs"+f.query(), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// TrapStats summarizes trap activity.
func (c *Client) TrapStats(ctx context.Context, f TrapFilter) (*TrapStats, error) {
	var out TrapStats
	if err := c.Do(ctx, http.MethodGet, "/admin/trap/stats"+f.query(), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ClearSessions ends every session of a user.
func (c *Client) ClearSessions(ctx context.Context, userID string) (*ClearResult, error) {
	var out ClearResult
	if err := c.Do(ctx, http.MethodDelete, "/admin/sessions/"+url.PathEscape(userID), nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Unblock lifts a security block.
func (c *Client) Unblock(ctx context.Context, userID string) (*UnblockResult, error) {
	var out UnblockResult
	if err := c.Do(ctx, http.MethodPost, "/admin/users/"+url.PathEscape(userID)+"/unblock", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Health reports server liveness.
func (c *Client) Health(ctx context.Context) (*Health, error) {
	var out Health
	if err := c.Do(ctx, http.MethodGet, "/health", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}
