package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/internal/telemetry/logger"
	"github.com/bluelamp/cligate/internal/telemetry/metric"
	"github.com/bluelamp/cligate/pkg/token"
)

// CredentialRepository defines the storage interface for issued credentials.
//
// Implementations store digests only. Not-found lookups return
// domain.ErrNotFound.
type CredentialRepository interface {
	// Create inserts a new record. A duplicate digest is
	// domain.ErrCredentialConflict.
	Create(ctx context.Context, cred *domain.CliCredential) error

	// GetByHash returns the record for a digest, active or not.
	GetByHash(ctx context.Context, tokenHash string) (*domain.CliCredential, error)

	// RecordUsage atomically checks that the record is active and not
	// expired at now, then bumps UsageCount and LastUsedAt. Records that
	// fail the check are left untouched and yield domain.ErrNotFound.
	RecordUsage(ctx context.Context, tokenHash string, now time.Time) (*domain.CliCredential, error)

	// Deactivate flips one active record to inactive. Reports whether
	// anything changed.
	Deactivate(ctx context.Context, tokenHash string, reason domain.DeactivationReason, now time.Time) (bool, error)

	// DeactivateAllForUser flips every active record of userID.
	DeactivateAllForUser(ctx context.Context, userID string, reason domain.DeactivationReason, now time.Time) (int, error)

	// DeactivateExpired flips active records with ExpiresAt <= now to
	// inactive with reason expired.
	DeactivateExpired(ctx context.Context, now time.Time) (int, error)

	// List returns records of userID, or of every user when userID is empty.
	List(ctx context.Context, userID string) ([]*domain.CliCredential, error)
}

// UserLookup resolves user ids. Unknown ids return domain.ErrUserNotFound.
type UserLookup interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// TokenService handles credential issuance, verification and revocation.
type TokenService struct {
	repo        CredentialRepository
	users       UserLookup
	hasher      token.Hasher
	cache       *VerifyCache
	defaultDays int
	now         func() time.Time
	log         logger.Logger
	metrics     *metric.Registry
}

// TokenServiceConfig holds configuration for TokenService.
type TokenServiceConfig struct {
	// DefaultExpirationDays applies when a request does not set one (default: 30).
	DefaultExpirationDays int

	// Pepper keys the credential digest. Empty means plain SHA-256.
	Pepper string

	// CacheTTL is the lifetime of cached verifications (default: 30s, <0 disables).
	CacheTTL time.Duration

	// CacheSize bounds the verification cache (default: 10,000).
	CacheSize int

	Now     func() time.Time
	Logger  logger.Logger
	Metrics *metric.Registry
}

// DefaultTokenServiceConfig returns default configuration.
func DefaultTokenServiceConfig() *TokenServiceConfig {
	return &TokenServiceConfig{
		DefaultExpirationDays: domain.DefaultExpirationDays,
		CacheTTL:              30 * time.Second,
		CacheSize:             10000,
	}
}

// NewTokenService creates a new TokenService.
func NewTokenService(repo CredentialRepository, users UserLookup, cfg *TokenServiceConfig) *TokenService {
	if cfg == nil {
		cfg = DefaultTokenServiceConfig()
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	return &TokenService{
		repo:        repo,
		users:       users,
		hasher:      token.NewHasher(cfg.Pepper),
		cache:       NewVerifyCache(cfg.CacheSize, cfg.CacheTTL, now),
		defaultDays: domain.ClampExpirationDays(cfg.DefaultExpirationDays),
		now:         now,
		log:         log.With("component", "token"),
		metrics:     cfg.Metrics,
	}
}

// Cache exposes the verification cache.
func (s *TokenService) Cache() *VerifyCache {
	return s.cache
}

// IssueTokenRequest contains parameters for IssueToken.
type IssueTokenRequest struct {
	UserID         string
	DeviceInfo     domain.DeviceInfo
	ExpirationDays int

	// KeepExisting leaves the user's other credentials active. By default
	// every active credential is deactivated with reason replaced first.
	KeepExisting bool

	// SessionID and ClientType bind the credential to an arbiter session.
	SessionID  string
	ClientType domain.ClientType
}

// IssueTokenResponse contains the raw token. It is the only place the raw
// value ever leaves this service.
type IssueTokenResponse struct {
	Token      string
	ExpiresAt  time.Time
	ExpiresIn  int64 // seconds
	Credential *domain.CliCredential
	Replaced   int
}

// IssueToken generates a credential for req.UserID and stores its digest.
func (s *TokenService) IssueToken(ctx context.Context, req *IssueTokenRequest) (*IssueTokenResponse, error) {
	// 1. The user must exist
	if req.UserID == "" {
		return nil, domain.ErrUserNotFound
	}
	if _, err := s.users.GetUser(ctx, req.UserID); err != nil {
		return nil, err
	}

	now := s.now()
	days := s.defaultDays
	if req.ExpirationDays > 0 {
		days = domain.ClampExpirationDays(req.ExpirationDays)
	}

	// 2. Revoke prior credentials
	replaced := 0
	if !req.KeepExisting {
		n, err := s.RevokeAllForUser(ctx, req.UserID, domain.ReasonReplaced)
		if err != nil {
			return nil, err
		}
		replaced = n
	}

	// 3. Generate and persist; a digest collision gets one retry
	var (
		raw  string
		cred *domain.CliCredential
	)
	for attempt := 0; attempt < 2; attempt++ {
		var (
			digest string
			err    error
		)
		raw, digest, err = domain.GenerateToken(s.hasher)
		if err != nil {
			return nil, err
		}
		cred = &domain.CliCredential{
			ID:         domain.NewCredentialID(),
			UserID:     req.UserID,
			TokenHash:  digest,
			SessionID:  req.SessionID,
			ClientType: req.ClientType,
			CreatedAt:  now,
			ExpiresAt:  now.Add(time.Duration(days) * 24 * time.Hour),
			DeviceInfo: req.DeviceInfo,
			IsActive:   true,
		}
		err = s.repo.Create(ctx, cred)
		if err == nil {
			break
		}
		if !errors.Is(err, domain.ErrCredentialConflict) || attempt == 1 {
			return nil, err
		}
	}

	s.metrics.TokenIssued()
	s.log.Info("credential issued",
		"user_id", req.UserID,
		"token_id", cred.ID,
		"client_type", string(req.ClientType),
		"replaced", replaced)

	return &IssueTokenResponse{
		Token:      raw,
		ExpiresAt:  cred.ExpiresAt,
		ExpiresIn:  int64(cred.ExpiresAt.Sub(now) / time.Second),
		Credential: cred.Clone(),
		Replaced:   replaced,
	}, nil
}

// VerifyResult is returned for a usable credential.
type VerifyResult struct {
	UserID     string
	User       *domain.User
	Credential *domain.CliCredential
}

// VerifyToken authenticates raw and records one use.
//
// Unknown, malformed, expired and revoked credentials all return
// domain.ErrInvalidToken; the distinction is only logged. A credential
// whose owner is blocked or disabled returns the account error.
func (s *TokenService) VerifyToken(ctx context.Context, raw string) (*VerifyResult, error) {
	// 1. Shape check before touching storage
	if !domain.ValidateTokenFormat(raw) {
		s.rejected(ctx, "", "malformed")
		return nil, domain.ErrInvalidToken
	}
	digest := s.hasher.Digest(raw)
	now := s.now()
	gen := s.cache.Generation()

	// 2. Atomic check-and-count; this is the revocation barrier
	cred, err := s.repo.RecordUsage(ctx, digest, now)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return nil, err
		}
		s.cache.Forget(digest)
		s.rejected(ctx, digest, "")
		return nil, domain.ErrInvalidToken
	}

	// 3. Owner lookup, served from cache when possible
	if cached, ok := s.cache.Get(digest); ok && cached.UserID == cred.UserID {
		s.metrics.VerifyCache("hit")
		s.metrics.TokenVerified("valid")
		return &VerifyResult{UserID: cred.UserID, User: cached.User.Clone(), Credential: cred}, nil
	}
	s.metrics.VerifyCache("miss")

	user, err := s.users.GetUser(ctx, cred.UserID)
	if err != nil {
		if errors.Is(err, domain.ErrUserNotFound) {
			s.rejected(ctx, digest, "owner missing")
			return nil, domain.ErrInvalidToken
		}
		return nil, err
	}
	if err := domain.CheckLoginAllowed(user); err != nil {
		s.metrics.TokenVerified("account")
		return nil, err
	}

	s.cache.Put(digest, CachedVerification{UserID: user.ID, User: user.Clone(), ExpiresAt: cred.ExpiresAt}, gen)
	s.metrics.TokenVerified("valid")
	return &VerifyResult{UserID: cred.UserID, User: user, Credential: cred}, nil
}

// rejected logs why a verification failed. The caller only ever sees
// INVALID_TOKEN.
func (s *TokenService) rejected(ctx context.Context, digest, reason string) {
	s.metrics.TokenVerified("invalid")
	if reason == "" && digest != "" {
		reason = "unknown"
		if cred, err := s.repo.GetByHash(ctx, digest); err == nil {
			switch {
			case !cred.IsActive:
				reason = "inactive:" + string(cred.DeactivationReason)
			case cred.IsExpired(s.now()):
				reason = "expired"
			}
		}
	}
	logger.L(ctx).Debug("credential rejected", "component", "token", "reason", reason)
}

// Identify resolves the owner of a usable credential without recording use.
func (s *TokenService) Identify(ctx context.Context, raw string) (string, bool) {
	if !domain.ValidateTokenFormat(raw) {
		return "", false
	}
	cred, err := s.repo.GetByHash(ctx, s.hasher.Digest(raw))
	if err != nil || !cred.IsUsable(s.now()) {
		return "", false
	}
	return cred.UserID, true
}

// LookupByToken returns the record for raw whatever its state.
func (s *TokenService) LookupByToken(ctx context.Context, raw string) (*domain.CliCredential, error) {
	if !domain.ValidateTokenFormat(raw) {
		return nil, domain.ErrTokenNotFound
	}
	cred, err := s.repo.GetByHash(ctx, s.hasher.Digest(raw))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrTokenNotFound
		}
		return nil, err
	}
	return cred, nil
}

// RevokeToken deactivates the credential raw. Reports whether an active
// credential was deactivated.
func (s *TokenService) RevokeToken(ctx context.Context, raw string, reason domain.DeactivationReason) (bool, error) {
	if !domain.ValidateTokenFormat(raw) {
		return false, nil
	}
	digest := s.hasher.Digest(raw)
	changed, err := s.repo.Deactivate(ctx, digest, reason, s.now())
	s.cache.Invalidate(digest)
	if err != nil {
		return false, err
	}
	if changed {
		s.metrics.TokensDeactivated(string(reason), 1)
	}
	return changed, nil
}

// RevokeAllForUser deactivates every active credential of userID.
func (s *TokenService) RevokeAllForUser(ctx context.Context, userID string, reason domain.DeactivationReason) (int, error) {
	n, err := s.repo.DeactivateAllForUser(ctx, userID, reason, s.now())
	s.cache.InvalidateUser(userID)
	if err != nil {
		return 0, err
	}
	s.metrics.TokensDeactivated(string(reason), n)
	if n > 0 {
		s.log.Info("credentials deactivated", "user_id", userID, "reason", string(reason), "count", n)
	}
	return n, nil
}

// GetActiveTokens returns the usable credentials of userID, newest first.
func (s *TokenService) GetActiveTokens(ctx context.Context, userID string) ([]*domain.CliCredential, error) {
	all, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	active := make([]*domain.CliCredential, 0, len(all))
	for _, c := range all {
		if c.IsUsable(now) {
			active = append(active, c)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	return active, nil
}

// GetStats aggregates credential counts for userID, or globally when empty.
func (s *TokenService) GetStats(ctx context.Context, userID string) (*domain.CredentialStats, error) {
	all, err := s.repo.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	st := domain.TallyCredentials(all, s.now())
	return &st, nil
}

// CleanupExpired marks expired credentials inactive. Verification checks
// expiry on its own, so this only keeps records tidy.
func (s *TokenService) CleanupExpired(ctx context.Context) (int, error) {
	n, err := s.repo.DeactivateExpired(ctx, s.now())
	if err != nil {
		return 0, err
	}
	s.metrics.TokensDeactivated(string(domain.ReasonExpired), n)
	if n > 0 {
		s.log.Info("expired credentials swept", "count", n)
	}
	return n, nil
}
