package domain

import (
	"errors"
	"fmt"
)

// DomainError is an error with a stable machine code. Code and Message
// reach HTTP clients; Details and Cause stay in server logs.
type DomainError struct {
	Code    string
	Message string
	Details string
	Cause   error
}

func (e *DomainError) Error() string {
	if e.Details == "" {
		return "[" + e.Code + "] " + e.Message
	}
	return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
}

func (e *DomainError) Unwrap() error { return e.Cause }

// Is matches any DomainError with the same code, so a sentinel still
// matches after WithDetails or WithCause.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	return ok && t.Code == e.Code
}

// NewDomainError returns a sentinel for code.
func NewDomainError(code, message string) *DomainError {
	return &DomainError{Code: code, Message: message}
}

// The With* methods return modified copies; sentinels are never mutated.

func (e *DomainError) WithDetails(details string) *DomainError {
	c := *e
	c.Details = details
	return &c
}

func (e *DomainError) WithCause(cause error) *DomainError {
	c := *e
	c.Cause = cause
	return &c
}

func (e *DomainError) WithMessage(message string) *DomainError {
	c := *e
	c.Message = message
	return &c
}

// IsDomainError reports whether err wraps a DomainError with code, or any
// DomainError when code is empty.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	return errors.As(err, &de) && (code == "" || de.Code == code)
}

// GetErrorCode returns the code of the DomainError in err's chain, or "".
func GetErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return ""
}

// Error codes. These strings are part of the HTTP contract with the CLI.
const (
	CodeMissingCredentials  = "MISSING_CREDENTIALS"
	CodeInvalidCredentials  = "INVALID_CREDENTIALS"
	CodeAccountDisabled     = "ACCOUNT_DISABLED"
	CodeAccountBlocked      = "ACCOUNT_BLOCKED"
	CodeInvalidToken        = "INVALID_TOKEN"
	CodeSessionTerminated   = "SESSION_TERMINATED"
	CodeMissingToken        = "MISSING_TOKEN"
	CodeSecurityViolation   = "SECURITY_VIOLATION"
	CodeActiveSessionExists = "ACTIVE_SESSION_EXISTS"
	CodeTokenNotFound       = "TOKEN_NOT_FOUND"
	CodeUserNotFound        = "USER_NOT_FOUND"
	CodeNotFound            = "NOT_FOUND"
	CodeBadRequest          = "BAD_REQUEST"
	CodeForbidden           = "FORBIDDEN"
	CodeStorage             = "STORAGE_ERROR"
	CodeInternal            = "INTERNAL_ERROR"

	// Rate limiter and losing trap keys.
	CodeRateLimited = "RATE_LIMITED"

	// Served to losing trap keys only.
	CodeInvalidAPIKey        = "INVALID_API_KEY"
	CodeAPIKeyRevoked        = "API_KEY_REVOKED"
	CodeSubscriptionRequired = "SUBSCRIPTION_REQUIRED"
)

// Authentication.
var (
	ErrMissingCredentials = NewDomainError(CodeMissingCredentials, "email and password are required")

	// ErrInvalidCredentials covers both a wrong password and an unknown email.
	ErrInvalidCredentials = NewDomainError(CodeInvalidCredentials, "invalid email or password")

	// ErrAccountDisabled is an operator action, unlike ErrAccountBlocked.
	ErrAccountDisabled = NewDomainError(CodeAccountDisabled, "account is disabled")

	// ErrAccountBlocked indicates a security block. Always appealable.
	ErrAccountBlocked = NewDomainError(CodeAccountBlocked, "account is blocked for a security review")

	ErrUserNotFound = NewDomainError(CodeUserNotFound, "user not found")
)

// Tokens and sessions.
var (
	ErrMissingToken = NewDomainError(CodeMissingToken, "authentication token is required")

	// ErrInvalidToken collapses unknown, expired and revoked tokens.
	ErrInvalidToken = NewDomainError(CodeInvalidToken, "invalid or expired token")

	// ErrTokenNotFound is returned by logout when no record matches.
	ErrTokenNotFound = NewDomainError(CodeTokenNotFound, "token not found")

	// ErrSessionTerminated indicates a newer login took over the session.
	ErrSessionTerminated = NewDomainError(CodeSessionTerminated, "session was terminated by a newer login, re-login required")

	// ErrActiveSessionExists is returned by strict arbitration.
	ErrActiveSessionExists = NewDomainError(CodeActiveSessionExists, "an active session already exists for this client, use force login to take over")

	// ErrCredentialConflict indicates a digest collision on insert.
	ErrCredentialConflict = NewDomainError(CodeInternal, "credential digest conflict")
)

// Honeypot.
var (
	// ErrSecurityViolation is recorded when a trap credential is used.
	ErrSecurityViolation = NewDomainError(CodeSecurityViolation, "security violation detected")

	// ErrInvalidTrapPolicy indicates a trap policy failed validation.
	ErrInvalidTrapPolicy = NewDomainError(CodeBadRequest, "invalid trap policy")
)

// General.
var (
	ErrNotFound   = NewDomainError(CodeNotFound, "resource not found")
	ErrBadRequest = NewDomainError(CodeBadRequest, "bad request")
	ErrForbidden  = NewDomainError(CodeForbidden, "admin scope required")
	ErrStorage    = NewDomainError(CodeStorage, "storage error")
	ErrInternal   = NewDomainError(CodeInternal, "internal server error")
)
