package domain

import (
	"errors"
	"time"
)

// UserStatus is the account state consulted at login.
type UserStatus string

// Account states.
const (
	UserActive   UserStatus = "active"
	UserDisabled UserStatus = "disabled"
	UserBlocked  UserStatus = "blocked"
)

// BlockSourceHoneypot marks blocks raised by trap detection.
const BlockSourceHoneypot = "honeypot"

// BlockInfo describes a security block.
type BlockInfo struct {
	Reason    string    `json:"reason"`
	CanAppeal bool      `json:"can_appeal"`
	Source    string    `json:"source"`
	BlockedAt time.Time `json:"blocked_at"`
}

// User is the slice of the account model this service reads and writes.
// Passwords stay behind the user-credential store.
type User struct {
	ID     string     `json:"id"`
	Email  string     `json:"email"`
	Name   string     `json:"name,omitempty"`
	Role   string     `json:"role,omitempty"`
	Status UserStatus `json:"status"`
	Block  *BlockInfo `json:"block,omitempty"`
}

// Clone creates a copy of the user.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	if u.Block != nil {
		b := *u.Block
		c.Block = &b
	}
	return &c
}

// IsBlocked reports whether a security block is in place.
func (u *User) IsBlocked() bool {
	return u.Status == UserBlocked
}

// CheckLoginAllowed decides whether u may authenticate.
func CheckLoginAllowed(u *User) error {
	switch u.Status {
	case UserActive, "":
		return nil
	case UserDisabled:
		return ErrAccountDisabled
	case UserBlocked:
		block := BlockInfo{Reason: "security review", CanAppeal: true}
		if u.Block != nil {
			block = *u.Block
		}
		return &AccountBlockedError{Block: block}
	}
	return ErrAccountDisabled.WithDetails("unknown status " + string(u.Status))
}

// NewSecurityBlock builds the block applied after a trap trigger.
// Security blocks are always appealable.
func NewSecurityBlock(reason string, now time.Time) BlockInfo {
	return BlockInfo{
		Reason:    reason,
		CanAppeal: true,
		Source:    BlockSourceHoneypot,
		BlockedAt: now,
	}
}

// AccountBlockedError carries the block details the client needs to render
// an appeal prompt. It unwraps to ErrAccountBlocked.
type AccountBlockedError struct {
	Block     BlockInfo
	AppealURL string
}

// Error implements the error interface.
func (e *AccountBlockedError) Error() string {
	return ErrAccountBlocked.WithDetails(e.Block.Reason).Error()
}

// Unwrap returns the ACCOUNT_BLOCKED domain error.
func (e *AccountBlockedError) Unwrap() error {
	return ErrAccountBlocked.WithDetails(e.Block.Reason)
}

// AsAccountBlocked extracts block details from err.
func AsAccountBlocked(err error) (*AccountBlockedError, bool) {
	var be *AccountBlockedError
	if errors.As(err, &be) {
		return be, true
	}
	return nil, false
}
