package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/internal/telemetry/logger"
)

// UserAuthenticator checks primary login credentials. Password hashing
// lives behind this interface.
//
// Unknown emails and wrong passwords both return
// domain.ErrInvalidCredentials.
type UserAuthenticator interface {
	Authenticate(ctx context.Context, email, password string) (*domain.User, error)
}

// UserBlocker applies a security block to an account.
type UserBlocker interface {
	BlockUser(ctx context.Context, userID string, block domain.BlockInfo) error
}

// UserStore is the full user-credential store.
type UserStore interface {
	UserLookup
	UserAuthenticator
	UserBlocker
}

// AuthService orchestrates login, logout and per-request authentication
// on top of TokenService and SessionArbiter.
type AuthService struct {
	tokens    *TokenService
	arbiter   *SessionArbiter
	users     UserAuthenticator
	appealURL string
	log       logger.Logger
}

// AuthServiceConfig holds configuration for AuthService.
type AuthServiceConfig struct {
	// AppealURL is attached to ACCOUNT_BLOCKED responses.
	AppealURL string

	Logger logger.Logger
}

// NewAuthService creates a new AuthService.
func NewAuthService(tokens *TokenService, arbiter *SessionArbiter, users UserAuthenticator, cfg *AuthServiceConfig) *AuthService {
	if cfg == nil {
		cfg = &AuthServiceConfig{}
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &AuthService{
		tokens:    tokens,
		arbiter:   arbiter,
		users:     users,
		appealURL: cfg.AppealURL,
		log:       log.With("component", "auth"),
	}
}

// LoginRequest contains primary login parameters.
type LoginRequest struct {
	Email          string
	Password       string
	DeviceInfo     domain.DeviceInfo
	ClientType     domain.ClientType
	ExpirationDays int

	// Force takes over a live session even under the strict policy.
	Force bool

	IPAddress string
	UserAgent string
}

// LoginResult is returned on a successful login.
type LoginResult struct {
	Token      string
	UserID     string
	ExpiresIn  int64
	ExpiresAt  time.Time
	DeviceInfo domain.DeviceInfo
	SessionID  string
	ClientType domain.ClientType

	// TookOver reports that an older session of the same client type ended.
	TookOver bool
}

// Login authenticates email/password, opens a session and issues a fresh
// credential. Earlier credentials of the user are deactivated.
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*LoginResult, error) {
	// 1. Shape
	email := strings.TrimSpace(req.Email)
	if email == "" || req.Password == "" {
		return nil, domain.ErrMissingCredentials
	}

	// 2. Primary credentials
	user, err := s.users.Authenticate(ctx, email, req.Password)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidCredentials) || errors.Is(err, domain.ErrUserNotFound) {
			s.log.Info("login failed", "reason", "invalid credentials")
			return nil, domain.ErrInvalidCredentials
		}
		return nil, err
	}

	// 3. Account policy
	if err := domain.CheckLoginAllowed(user); err != nil {
		if blocked, ok := domain.AsAccountBlocked(err); ok {
			blocked.AppealURL = s.appealURL
			logger.Security(s.log, logger.EventBlockedLogin, "blocked account attempted login", "user_id", user.ID)
			return nil, blocked
		}
		return nil, err
	}

	// 4. Session arbitration
	sreq := &SessionRequest{
		UserID:     user.ID,
		ClientType: req.ClientType,
		IPAddress:  req.IPAddress,
		UserAgent:  req.UserAgent,
	}
	var sess *SessionResult
	if req.Force {
		sess, err = s.arbiter.ForceLogin(ctx, sreq)
	} else {
		sess, err = s.arbiter.Login(ctx, sreq)
	}
	if err != nil {
		return nil, err
	}

	// 5. Credential bound to the session
	device := req.DeviceInfo
	if device.IPAddress == "" {
		device.IPAddress = req.IPAddress
	}
	if device.UserAgent == "" {
		device.UserAgent = req.UserAgent
	}
	issued, err := s.tokens.IssueToken(ctx, &IssueTokenRequest{
		UserID:         user.ID,
		DeviceInfo:     device,
		ExpirationDays: req.ExpirationDays,
		SessionID:      sess.Session.SessionID,
		ClientType:     sess.Session.ClientType,
	})
	if err != nil {
		if _, rbErr := s.arbiter.Logout(ctx, user.ID, sess.Session.ClientType, sess.Session.SessionID); rbErr != nil {
			s.log.Error("session rollback failed", "user_id", user.ID, "error", rbErr)
		}
		return nil, err
	}

	s.log.Info("login succeeded",
		"user_id", user.ID,
		"client_type", string(sess.Session.ClientType),
		"took_over", sess.Replaced != nil)

	return &LoginResult{
		Token:      issued.Token,
		UserID:     user.ID,
		ExpiresIn:  issued.ExpiresIn,
		ExpiresAt:  issued.ExpiresAt,
		DeviceInfo: device,
		SessionID:  sess.Session.SessionID,
		ClientType: sess.Session.ClientType,
		TookOver:   sess.Replaced != nil,
	}, nil
}

// Logout revokes raw and ends its session if that session is still live.
// Unknown or already inactive credentials yield domain.ErrTokenNotFound.
func (s *AuthService) Logout(ctx context.Context, raw string) error {
	if raw == "" {
		return domain.ErrMissingToken
	}
	cred, err := s.tokens.LookupByToken(ctx, raw)
	if err != nil {
		return err
	}
	changed, err := s.tokens.RevokeToken(ctx, raw, domain.ReasonRevoked)
	if err != nil {
		return err
	}
	if !changed {
		return domain.ErrTokenNotFound
	}
	if cred.SessionID != "" {
		if _, err := s.arbiter.Logout(ctx, cred.UserID, cred.ClientType, cred.SessionID); err != nil {
			s.log.Warn("session end failed after logout", "user_id", cred.UserID, "error", err)
		}
	}
	s.log.Info("logout", "user_id", cred.UserID, "token_id", cred.ID)
	return nil
}

// Principal is the authenticated caller of a guarded request.
type Principal struct {
	UserID     string
	User       *domain.User
	Credential *domain.CliCredential
}

// Authenticate verifies raw for a guarded request. A credential whose
// session was taken over yields domain.ErrSessionTerminated.
func (s *AuthService) Authenticate(ctx context.Context, raw string) (*Principal, error) {
	if raw == "" {
		return nil, domain.ErrMissingToken
	}
	res, err := s.tokens.VerifyToken(ctx, raw)
	if err != nil {
		if blocked, ok := domain.AsAccountBlocked(err); ok {
			blocked.AppealURL = s.appealURL
			return nil, blocked
		}
		return nil, err
	}
	cred := res.Credential
	if cred.SessionID != "" {
		live, err := s.arbiter.ValidateSession(ctx, cred.UserID, cred.ClientType, cred.SessionID)
		if err != nil {
			return nil, err
		}
		if !live {
			return nil, domain.ErrSessionTerminated
		}
		s.arbiter.UpdateActivity(cred.UserID, cred.ClientType, cred.SessionID)
	}
	return &Principal{UserID: res.UserID, User: res.User, Credential: cred}, nil
}

// AppealURL returns the configured appeal link.
func (s *AuthService) AppealURL() string {
	return s.appealURL
}
