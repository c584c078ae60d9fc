package handler

import (
	"time"

	"github.com/bluelamp/cligate/internal/core/domain"
)

// Response is the standard API response envelope. Every JSON response
// except /metrics and losing-trap errors uses it.
type Response struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
	Timestamp int64  `json:"timestamp"`
	Data      any    `json:"data,omitempty"`
	Details   any    `json:"details,omitempty"`
}

// NewResponse creates a success response.
func NewResponse(requestID string, data any) *Response {
	return &Response{
		Code:      "OK",
		Message:   "Success",
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Data:      data,
	}
}

// NewErrorResponse creates an error response.
func NewErrorResponse(requestID, code, message string, details any) *Response {
	return &Response{
		Code:      code,
		Message:   message,
		RequestID: requestID,
		Timestamp: time.Now().UnixMilli(),
		Details:   details,
	}
}

// LoginRequest is the request body for POST /login.
type LoginRequest struct {
	Email          string             `json:"email"`
	Password       string             `json:"password"`
	DeviceInfo     *domain.DeviceInfo `json:"deviceInfo,omitempty"`
	ClientType     string             `json:"clientType,omitempty"`
	ExpirationDays int                `json:"expirationDays,omitempty"`
	Force          bool               `json:"force,omitempty"`
}

// LoginResponse is the response body for POST /login.
type LoginResponse struct {
	Token      string            `json:"token"`
	UserID     string            `json:"userId"`
	ExpiresIn  int64             `json:"expiresIn"`
	ExpiresAt  time.Time         `json:"expiresAt"`
	DeviceInfo domain.DeviceInfo `json:"deviceInfo"`
	SessionID  string            `json:"sessionId"`
	ClientType string            `json:"clientType"`
	TookOver   bool              `json:"tookOver"`
}

// TokenRequest is the request body for POST /verify and POST /logout.
type TokenRequest struct {
	Token string `json:"token"`
}

// VerifyResponse is the response body for POST /verify.
type VerifyResponse struct {
	UserID     string    `json:"userId"`
	TokenValid bool      `json:"tokenValid"`
	ExpiresAt  time.Time `json:"expiresAt"`

	// RemainingTime is whole seconds until expiry.
	RemainingTime int64 `json:"remainingTime"`
}

// BlockedDetails accompanies ACCOUNT_BLOCKED.
type BlockedDetails struct {
	Reason    string `json:"reason"`
	CanAppeal bool   `json:"canAppeal"`
	AppealURL string `json:"appealUrl,omitempty"`
}

// TokenView is one credential in GET /tokens/{userId}. It never carries
// the raw token or its digest.
type TokenView struct {
	ID         string            `json:"id"`
	ClientType string            `json:"clientType,omitempty"`
	DeviceInfo domain.DeviceInfo `json:"deviceInfo"`
	CreatedAt  time.Time         `json:"createdAt"`
	ExpiresAt  time.Time         `json:"expiresAt"`
	LastUsedAt *time.Time        `json:"lastUsedAt,omitempty"`
	UsageCount int64             `json:"usageCount"`
}

// TokenListResponse is the response body for GET /tokens/{userId}.
type TokenListResponse struct {
	UserID string      `json:"userId"`
	Tokens []TokenView `json:"tokens"`
	Count  int         `json:"count"`
}

// StatsResponse is the response body for GET /stats.
type StatsResponse struct {
	UserID          string                 `json:"userId,omitempty"`
	Tokens          domain.CredentialStats `json:"tokens"`
	AuditQueueDepth int                    `json:"auditQueueDepth"`
	TrapKeys        int                    `json:"trapKeys"`
}

// TrapLogView is one audit entry in GET /admin/trap/logs. The trap key is
// masked.
type TrapLogView struct {
	ID               string    `json:"id"`
	Timestamp        time.Time `json:"timestamp"`
	TrapKey          string    `json:"trapKey"`
	TrapClass        string    `json:"trapClass"`
	ResourceID       string    `json:"resourceId,omitempty"`
	IdentifiedUserID *string   `json:"identifiedUserId"`
	IPAddress        string    `json:"ipAddress"`
	UserAgent        string    `json:"userAgent"`
	Endpoint         string    `json:"endpoint"`
	Method           string    `json:"method"`
	TrackingID       string    `json:"trackingId,omitempty"`
	ResponseType     string    `json:"responseType"`
}

// TrapLogResponse is the response body for GET /admin/trap/logs.
type TrapLogResponse struct {
	Entries []TrapLogView `json:"entries"`
	Count   int           `json:"count"`
}

// ClearSessionsResponse is the response body for DELETE /admin/sessions/{userId}.
type ClearSessionsResponse struct {
	UserID  string `json:"userId"`
	Cleared int    `json:"cleared"`
}

// UnblockResponse is the response body for POST /admin/users/{userId}/unblock.
type UnblockResponse struct {
	UserID string `json:"userId"`
	Status string `json:"status"`
}

func newTokenView(c *domain.CliCredential) TokenView {
	return TokenView{
		ID:         c.ID,
		ClientType: string(c.ClientType),
		DeviceInfo: c.DeviceInfo,
		CreatedAt:  c.CreatedAt,
		ExpiresAt:  c.ExpiresAt,
		LastUsedAt: c.LastUsedAt,
		UsageCount: c.UsageCount,
	}
}

func newTrapLogView(l *domain.TrapAccessLog) TrapLogView {
	return TrapLogView{
		ID:               l.ID,
		Timestamp:        l.Timestamp,
		TrapKey:          domain.MaskCredential(l.TrapKeyUsed),
		TrapClass:        l.TrapClass,
		ResourceID:       l.ResourceID,
		IdentifiedUserID: l.IdentifiedUserID,
		IPAddress:        l.IPAddress,
		UserAgent:        l.UserAgent,
		Endpoint:         l.Endpoint,
		Method:           l.Method,
		TrackingID:       l.TrackingID,
		ResponseType:     string(l.ResponseType),
	}
}
