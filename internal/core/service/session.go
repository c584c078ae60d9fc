package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/internal/telemetry/logger"
	"github.com/bluelamp/cligate/internal/telemetry/metric"
)

// SessionRepository stores at most one ClientSession per (user, client type).
//
// Replace and CreateIfAbsent must each be a single atomic storage
// operation; the arbiter never reads before it writes.
type SessionRepository interface {
	// Replace stores s, overwriting any session under the same key, and
	// returns the overwritten session (nil if none).
	Replace(ctx context.Context, s *domain.ClientSession) (prior *domain.ClientSession, err error)

	// CreateIfAbsent stores s only if the key is free. Otherwise it returns
	// the existing session and created=false.
	CreateIfAbsent(ctx context.Context, s *domain.ClientSession) (existing *domain.ClientSession, created bool, err error)

	// Get returns the session for the key or domain.ErrNotFound.
	Get(ctx context.Context, userID string, ct domain.ClientType) (*domain.ClientSession, error)

	// Delete removes the session for the key. A non-empty sessionID makes
	// the delete conditional on the stored session id.
	Delete(ctx context.Context, userID string, ct domain.ClientType, sessionID string) (bool, error)

	// DeleteAllForUser removes the sessions of every client type.
	DeleteAllForUser(ctx context.Context, userID string) (int, error)

	// Touch sets LastActivity if the stored session id still equals sessionID.
	Touch(ctx context.Context, userID string, ct domain.ClientType, sessionID string, at time.Time) (bool, error)
}

// SessionPolicy selects what Login does when a session is already live.
type SessionPolicy string

const (
	// PolicyReplace lets the newest login win.
	PolicyReplace SessionPolicy = "replace"
	// PolicyStrict rejects the login with ACTIVE_SESSION_EXISTS.
	PolicyStrict SessionPolicy = "strict"
)

// ParseSessionPolicy accepts "", "replace" and "strict".
func ParseSessionPolicy(s string) (SessionPolicy, error) {
	switch SessionPolicy(s) {
	case "", PolicyReplace:
		return PolicyReplace, nil
	case PolicyStrict:
		return PolicyStrict, nil
	}
	return "", domain.ErrBadRequest.WithDetails("unknown session policy: " + s)
}

// SessionArbiterConfig holds configuration for SessionArbiter.
type SessionArbiterConfig struct {
	Policy SessionPolicy

	// ActivityTimeout bounds one UpdateActivity write (default: 2s).
	ActivityTimeout time.Duration

	// MaxPendingActivity bounds in-flight activity writes; extra updates
	// are dropped (default: 256).
	MaxPendingActivity int

	Now     func() time.Time
	Logger  logger.Logger
	Metrics *metric.Registry
}

// SessionArbiter keeps one live session per (user, client type).
type SessionArbiter struct {
	repo    SessionRepository
	policy  SessionPolicy
	timeout time.Duration
	slots   chan struct{}
	wg      sync.WaitGroup
	now     func() time.Time
	log     logger.Logger
	metrics *metric.Registry
}

// NewSessionArbiter creates a new SessionArbiter.
func NewSessionArbiter(repo SessionRepository, cfg *SessionArbiterConfig) *SessionArbiter {
	if cfg == nil {
		cfg = &SessionArbiterConfig{}
	}
	policy := cfg.Policy
	if policy == "" {
		policy = PolicyReplace
	}
	timeout := cfg.ActivityTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	pending := cfg.MaxPendingActivity
	if pending <= 0 {
		pending = 256
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &SessionArbiter{
		repo:    repo,
		policy:  policy,
		timeout: timeout,
		slots:   make(chan struct{}, pending),
		now:     now,
		log:     log.With("component", "session"),
		metrics: cfg.Metrics,
	}
}

// Policy returns the configured login policy.
func (a *SessionArbiter) Policy() SessionPolicy {
	return a.policy
}

// SessionRequest describes a session to open.
type SessionRequest struct {
	UserID     string
	ClientType domain.ClientType
	IPAddress  string
	UserAgent  string
}

// SessionResult describes the opened session.
type SessionResult struct {
	Session *domain.ClientSession

	// Replaced is the session that was taken over, if any.
	Replaced *domain.ClientSession
}

// Login opens a session under the configured policy. With PolicyStrict a
// live session yields domain.ErrActiveSessionExists.
func (a *SessionArbiter) Login(ctx context.Context, req *SessionRequest) (*SessionResult, error) {
	if a.policy == PolicyStrict {
		return a.createStrict(ctx, req)
	}
	return a.replace(ctx, req, "login")
}

// ForceLogin replaces any live session of req.ClientType. The caller can
// tell from Replaced whether a prior session existed.
func (a *SessionArbiter) ForceLogin(ctx context.Context, req *SessionRequest) (*SessionResult, error) {
	return a.replace(ctx, req, "force")
}

func (a *SessionArbiter) createStrict(ctx context.Context, req *SessionRequest) (*SessionResult, error) {
	s, err := a.newSession(req)
	if err != nil {
		return nil, err
	}
	existing, created, err := a.repo.CreateIfAbsent(ctx, s)
	if err != nil {
		return nil, err
	}
	if !created {
		a.metrics.SessionLogin(string(s.ClientType), "rejected")
		a.log.Info("login rejected, session active",
			"user_id", req.UserID,
			"client_type", string(s.ClientType),
			"session_id", existing.SessionID)
		return nil, domain.ErrActiveSessionExists.WithDetails(string(s.ClientType))
	}
	a.metrics.SessionLogin(string(s.ClientType), "created")
	return &SessionResult{Session: s}, nil
}

func (a *SessionArbiter) replace(ctx context.Context, req *SessionRequest, mode string) (*SessionResult, error) {
	s, err := a.newSession(req)
	if err != nil {
		return nil, err
	}
	prior, err := a.repo.Replace(ctx, s)
	if err != nil {
		return nil, err
	}
	outcome := "created"
	if prior != nil {
		outcome = "replaced"
		logger.Security(a.log, logger.EventSessionTakeover, "session taken over",
			"mode", mode,
			"user_id", req.UserID,
			"client_type", string(s.ClientType),
			"prior_session_id", prior.SessionID,
			"session_id", s.SessionID)
	}
	a.metrics.SessionLogin(string(s.ClientType), outcome)
	return &SessionResult{Session: s, Replaced: prior}, nil
}

func (a *SessionArbiter) newSession(req *SessionRequest) (*domain.ClientSession, error) {
	if req.UserID == "" {
		return nil, domain.ErrUserNotFound
	}
	ct, err := domain.ParseClientType(string(req.ClientType))
	if err != nil {
		return nil, err
	}
	return domain.NewClientSession(req.UserID, ct, req.IPAddress, req.UserAgent, a.now()), nil
}

// Logout ends the session of one client type. Other client types of the
// same user are untouched. A non-empty sessionID only ends that session.
func (a *SessionArbiter) Logout(ctx context.Context, userID string, ct domain.ClientType, sessionID string) (bool, error) {
	ok, err := a.repo.Delete(ctx, userID, ct, sessionID)
	if err != nil {
		return false, err
	}
	if ok {
		a.log.Debug("session ended", "user_id", userID, "client_type", string(ct))
	}
	return ok, nil
}

// ValidateSession reports whether sessionID is still the live session for
// (userID, ct). A takeover makes older session ids invalid.
func (a *SessionArbiter) ValidateSession(ctx context.Context, userID string, ct domain.ClientType, sessionID string) (bool, error) {
	if sessionID == "" {
		return false, nil
	}
	s, err := a.repo.Get(ctx, userID, ct)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return false, nil
		}
		return false, err
	}
	return s.SessionID == sessionID, nil
}

// GetSession returns the live session for (userID, ct).
func (a *SessionArbiter) GetSession(ctx context.Context, userID string, ct domain.ClientType) (*domain.ClientSession, error) {
	return a.repo.Get(ctx, userID, ct)
}

// UpdateActivity refreshes LastActivity in the background. It never
// blocks the caller; when too many updates are pending it drops this one.
func (a *SessionArbiter) UpdateActivity(userID string, ct domain.ClientType, sessionID string) {
	select {
	case a.slots <- struct{}{}:
	default:
		return
	}
	at := a.now()
	a.wg.Add(1)
	go func() {
		defer func() {
			<-a.slots
			a.wg.Done()
		}()
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if _, err := a.repo.Touch(ctx, userID, ct, sessionID, at); err != nil {
			a.log.Debug("activity update failed", "user_id", userID, "error", err)
		}
	}()
}

// ClearSessions removes every session of userID across client types.
func (a *SessionArbiter) ClearSessions(ctx context.Context, userID string) (int, error) {
	n, err := a.repo.DeleteAllForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		a.log.Info("sessions cleared", "user_id", userID, "count", n)
	}
	return n, nil
}

// Close waits for pending activity updates.
func (a *SessionArbiter) Close() {
	a.wg.Wait()
}
