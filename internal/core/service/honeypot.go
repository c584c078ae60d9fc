package service

import (
	"context"
	"errors"
	"math/rand/v2"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/internal/telemetry/logger"
	"github.com/bluelamp/cligate/internal/telemetry/metric"
)

// PolicySource yields the current trap policy. Policies are immutable;
// a reload swaps the whole value.
type PolicySource interface {
	Policy() *domain.TrapPolicy
}

// StaticPolicy is a PolicySource that never changes.
type StaticPolicy struct {
	P *domain.TrapPolicy
}

// Policy implements PolicySource.
func (s StaticPolicy) Policy() *domain.TrapPolicy { return s.P }

// AtomicPolicy is a PolicySource updated by hot reload.
type AtomicPolicy struct {
	p atomic.Pointer[domain.TrapPolicy]
}

// NewAtomicPolicy creates an AtomicPolicy holding p.
func NewAtomicPolicy(p *domain.TrapPolicy) *AtomicPolicy {
	a := &AtomicPolicy{}
	a.p.Store(p)
	return a
}

// Policy implements PolicySource.
func (a *AtomicPolicy) Policy() *domain.TrapPolicy { return a.p.Load() }

// Store swaps in p.
func (a *AtomicPolicy) Store(p *domain.TrapPolicy) { a.p.Store(p) }

// TokenIdentifier resolves the owner of a usable credential.
type TokenIdentifier interface {
	Identify(ctx context.Context, raw string) (userID string, ok bool)
}

// TokenRevoker bulk-revokes a user's credentials.
type TokenRevoker interface {
	RevokeAllForUser(ctx context.Context, userID string, reason domain.DeactivationReason) (int, error)
}

// SessionClearer ends every session of a user.
type SessionClearer interface {
	ClearSessions(ctx context.Context, userID string) (int, error)
}

// AuditRecorder accepts trap access records.
type AuditRecorder interface {
	Record(entry domain.TrapAccessLog) *domain.TrapAccessLog
}

// RequestContext is what the detector knows about the triggering request.
type RequestContext struct {
	// BearerToken and SessionCookie may carry the caller's real credential
	// next to the trap key. Both are used for attribution only.
	BearerToken   string
	SessionCookie string

	IPAddress string
	UserAgent string
	Endpoint  string
	Method    string
}

// TrapTrigger describes what the trap caller was served.
type TrapTrigger struct {
	ResourceID   string
	TrackingID   string
	ResponseType domain.ResponseType
}

// AuditResult reports what OnTrapTriggered did.
type AuditResult struct {
	Entry           *domain.TrapAccessLog
	Class           domain.TrapClass
	UserID          string
	Identified      bool
	TokensRevoked   int
	SessionsCleared int
	Blocked         bool
}

// TrapErrorResponse is a realistic failure served for losing trap keys.
// It is written through the same error envelope as every other rejected
// credential, so only the code and message differ.
type TrapErrorResponse struct {
	Status     int
	Code       string
	Message    string
	RetryAfter int // seconds, 429 only
}

var losingTrapResponses = []TrapErrorResponse{
	{
		Status:  http.StatusUnauthorized,
		Code:    domain.CodeInvalidAPIKey,
		Message: "Incorrect API key provided. You can find your API key in your account settings.",
	},
	{
		Status:  http.StatusUnauthorized,
		Code:    domain.CodeAPIKeyRevoked,
		Message: "This API key has been revoked. Generate a new key to continue.",
	},
	{
		Status:  http.StatusPaymentRequired,
		Code:    domain.CodeSubscriptionRequired,
		Message: "An active subscription is required to access this resource.",
	},
	{
		Status:  http.StatusTooManyRequests,
		Code:    domain.CodeRateLimited,
		Message: "Rate limit reached for requests. Please try again later.",
	},
}

// HoneypotConfig holds configuration for HoneypotDetector.
type HoneypotConfig struct {
	// BlockReason is stored on accounts blocked by a trap trigger.
	BlockReason string

	// ActionTimeout bounds revocation and blocking (default: 5s). Account
	// action outlives the request context.
	ActionTimeout time.Duration

	// IntN picks losing responses; defaults to math/rand/v2.IntN.
	IntN func(n int) int

	Now     func() time.Time
	Logger  logger.Logger
	Metrics *metric.Registry
}

// HoneypotDetector classifies presented credentials and acts on trap use.
//
// Only the winning key leads to account action. Losing keys are audited
// and answered with a randomized realistic error.
type HoneypotDetector struct {
	policy   PolicySource
	ident    TokenIdentifier
	revoker  TokenRevoker
	blocker  UserBlocker
	sessions SessionClearer
	audit    AuditRecorder

	blockReason string
	timeout     time.Duration
	intN        func(int) int
	now         func() time.Time
	log         logger.Logger
	metrics     *metric.Registry
}

// NewHoneypotDetector creates a new HoneypotDetector.
func NewHoneypotDetector(
	policy PolicySource,
	ident TokenIdentifier,
	revoker TokenRevoker,
	blocker UserBlocker,
	sessions SessionClearer,
	audit AuditRecorder,
	cfg *HoneypotConfig,
) *HoneypotDetector {
	if cfg == nil {
		cfg = &HoneypotConfig{}
	}
	reason := cfg.BlockReason
	if reason == "" {
		reason = "Use of a leaked credential was detected on this account."
	}
	timeout := cfg.ActionTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	intN := cfg.IntN
	if intN == nil {
		intN = rand.IntN
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &HoneypotDetector{
		policy:      policy,
		ident:       ident,
		revoker:     revoker,
		blocker:     blocker,
		sessions:    sessions,
		audit:       audit,
		blockReason: reason,
		timeout:     timeout,
		intN:        intN,
		now:         now,
		log:         log.With("component", "honeypot"),
		metrics:     cfg.Metrics,
	}
}

// Classify is an exact-match lookup against the current policy.
func (d *HoneypotDetector) Classify(credential string) domain.TrapClass {
	return d.policy.Policy().Classify(credential)
}

// LosingTrapResponse picks one of the realistic failures at random.
func (d *HoneypotDetector) LosingTrapResponse() TrapErrorResponse {
	r := losingTrapResponses[d.intN(len(losingTrapResponses))]
	if r.Status == http.StatusTooManyRequests {
		r.RetryAfter = 20 + d.intN(100)
	}
	return r
}

// OnTrapTriggered records the trigger and, for the winning key, revokes
// the identified user's credentials, ends their sessions and blocks the
// account with appeal allowed. The entry is recorded even when nobody
// can be identified or when account action fails; such failures are
// returned alongside the result.
func (d *HoneypotDetector) OnTrapTriggered(ctx context.Context, rc RequestContext, trapKey string, trigger TrapTrigger) (*AuditResult, error) {
	class := d.Classify(trapKey)
	if class == domain.Real {
		return nil, domain.ErrBadRequest.WithDetails("credential is not a trap key")
	}

	res := &AuditResult{Class: class}
	res.UserID, res.Identified = d.identify(ctx, rc, trapKey)

	var actionErr error
	if class == domain.WinningTrap && res.Identified {
		actionErr = d.blockAccount(ctx, res)
	}

	entry := domain.TrapAccessLog{
		TrapKeyUsed:  trapKey,
		TrapClass:    class.String(),
		ResourceID:   trigger.ResourceID,
		IPAddress:    rc.IPAddress,
		UserAgent:    rc.UserAgent,
		Endpoint:     rc.Endpoint,
		Method:       rc.Method,
		TrackingID:   trigger.TrackingID,
		ResponseType: trigger.ResponseType,
	}
	if res.Identified {
		uid := res.UserID
		entry.IdentifiedUserID = &uid
	}
	res.Entry = d.audit.Record(entry)

	d.metrics.TrapTriggered(class.String(), res.Identified)
	logger.Security(d.log, logger.EventTrapTriggered, "trap key used",
		"class", class.String(),
		"trap_key_mask", domain.MaskCredential(trapKey),
		"label", d.policy.Policy().Label(trapKey),
		"user_id", res.UserID,
		"identified", res.Identified,
		"blocked", res.Blocked,
		"ip", rc.IPAddress,
		"endpoint", rc.Endpoint,
		"response_type", string(trigger.ResponseType),
		"audit_id", res.Entry.ID)

	return res, actionErr
}

// identify tries each attribution source that is not itself a trap key.
func (d *HoneypotDetector) identify(ctx context.Context, rc RequestContext, trapKey string) (string, bool) {
	if d.ident == nil {
		return "", false
	}
	for _, raw := range []string{rc.BearerToken, rc.SessionCookie} {
		if raw == "" || raw == trapKey || d.Classify(raw) != domain.Real {
			continue
		}
		if uid, ok := d.ident.Identify(ctx, raw); ok {
			return uid, true
		}
	}
	return "", false
}

func (d *HoneypotDetector) blockAccount(ctx context.Context, res *AuditResult) error {
	actx, cancel := context.WithTimeout(context.WithoutCancel(ctx), d.timeout)
	defer cancel()

	var errs []error
	n, err := d.revoker.RevokeAllForUser(actx, res.UserID, domain.ReasonSecurity)
	if err != nil {
		errs = append(errs, err)
	}
	res.TokensRevoked = n

	if d.sessions != nil {
		n, err := d.sessions.ClearSessions(actx, res.UserID)
		if err != nil {
			errs = append(errs, err)
		}
		res.SessionsCleared = n
	}

	if err := d.blocker.BlockUser(actx, res.UserID, domain.NewSecurityBlock(d.blockReason, d.now())); err != nil {
		errs = append(errs, err)
	} else {
		res.Blocked = true
		d.metrics.AccountBlocked()
		logger.Security(d.log, logger.EventAccountBlocked, "account blocked",
			"user_id", res.UserID,
			"tokens_revoked", res.TokensRevoked,
			"sessions_cleared", res.SessionsCleared)
	}

	if len(errs) > 0 {
		err := errors.Join(errs...)
		d.log.Error("trap account action incomplete", "user_id", res.UserID, "error", err)
		return err
	}
	return nil
}
