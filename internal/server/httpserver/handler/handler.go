package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/internal/core/service"
	"github.com/bluelamp/cligate/internal/telemetry/logger"
)

// UserAdmin is the slice of the user store the admin routes use.
type UserAdmin interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
	UnblockUser(ctx context.Context, userID string) error
}

// Config wires the handler to its services. Detector and Deception may
// be nil when the honeypot is disabled.
type Config struct {
	Auth      *service.AuthService
	Tokens    *service.TokenService
	Sessions  *service.SessionArbiter
	Prompts   *service.PromptService
	Detector  *service.HoneypotDetector
	Deception *service.DeceptionService
	Audit     *service.AuditLog
	Users     UserAdmin

	// Policy reports the trap key count for /stats.
	Policy service.PolicySource

	// TrustProxyHeaders takes the client address from X-Forwarded-For.
	TrustProxyHeaders bool

	// MaxBodyBytes bounds request bodies read by the credential guard.
	MaxBodyBytes int64

	Version string
	Now     func() time.Time
	Logger  logger.Logger
}

// Handler is the main HTTP handler that routes requests to appropriate handlers.
type Handler struct {
	auth      *service.AuthService
	tokens    *service.TokenService
	sessions  *service.SessionArbiter
	prompts   *service.PromptService
	detector  *service.HoneypotDetector
	deception *service.DeceptionService
	audit     *service.AuditLog
	users     UserAdmin
	policy    service.PolicySource

	trustProxy bool
	maxBody    int64
	version    string
	now        func() time.Time
	log        logger.Logger
	mux        *http.ServeMux
}

// New creates a new Handler.
func New(cfg *Config) *Handler {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	log := cfg.Logger
	if log == nil {
		log = logger.Nop()
	}
	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = 1 << 20
	}
	h := &Handler{
		auth:       cfg.Auth,
		tokens:     cfg.Tokens,
		sessions:   cfg.Sessions,
		prompts:    cfg.Prompts,
		detector:   cfg.Detector,
		deception:  cfg.Deception,
		audit:      cfg.Audit,
		users:      cfg.Users,
		policy:     cfg.Policy,
		trustProxy: cfg.TrustProxyHeaders,
		maxBody:    maxBody,
		version:    cfg.Version,
		now:        now,
		log:        log.With("component", "http"),
		mux:        http.NewServeMux(),
	}
	h.registerRoutes()
	return h
}

// ServeHTTP implements http.Handler.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Routes lists every pattern the handler serves, for the router.
var Routes = struct {
	Public []string
	Admin  []string
}{
	Public: []string{
		"GET /health",
		"POST /login",
		"POST /verify",
		"POST /logout",
		"GET /prompts",
		"GET /prompts/{id}",
	},
	Admin: []string{
		"GET /tokens/{userId}",
		"GET /stats",
		"GET /admin/trap/logs",
		"GET /admin/trap/stats",
		"DELETE /admin/sessions/{userId}",
		"POST /admin/users/{userId}/unblock",
	},
}

func (h *Handler) registerRoutes() {
	h.mux.HandleFunc("GET /health", h.handleHealth)

	h.mux.HandleFunc("POST /login", h.handleLogin)
	h.mux.HandleFunc("POST /verify", h.handleVerify)
	h.mux.HandleFunc("POST /logout", h.handleLogout)

	h.mux.HandleFunc("GET /prompts", h.guard(h.handleListPrompts, h.handleListDecoys))
	h.mux.HandleFunc("GET /prompts/{id}", h.guard(h.handleGetPrompt, h.handleGetDecoy))

	h.mux.HandleFunc("GET /tokens/{userId}", h.handleListTokens)
	h.mux.HandleFunc("GET /stats", h.handleStats)
	h.mux.HandleFunc("GET /admin/trap/logs", h.handleTrapLogs)
	h.mux.HandleFunc("GET /admin/trap/stats", h.handleTrapStats)
	h.mux.HandleFunc("DELETE /admin/sessions/{userId}", h.handleClearSessions)
	h.mux.HandleFunc("POST /admin/users/{userId}/unblock", h.handleUnblock)
}

// writeJSON writes a JSON response with standard envelope format.
func (h *Handler) writeJSON(w http.ResponseWriter, r *http.Request, status int, data any) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(NewResponse(requestID, data)); err != nil {
		logger.L(r.Context()).Error("failed to encode response", "error", err)
	}
}

// writeError writes an error response with standard envelope format.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	requestID := logger.RequestIDFromContext(r.Context())
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Error-Code", code)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(NewErrorResponse(requestID, code, message, details))
}

// handleServiceError converts service errors to HTTP responses. Only the
// domain message reaches the client; details and causes are logged.
func (h *Handler) handleServiceError(w http.ResponseWriter, r *http.Request, err error) {
	log := logger.L(r.Context())

	if blocked, ok := domain.AsAccountBlocked(err); ok {
		appeal := blocked.AppealURL
		if appeal == "" && h.auth != nil {
			appeal = h.auth.AppealURL()
		}
		h.writeError(w, r, http.StatusForbidden, domain.CodeAccountBlocked, domain.ErrAccountBlocked.Message, BlockedDetails{
			Reason:    blocked.Block.Reason,
			CanAppeal: blocked.Block.CanAppeal,
			AppealURL: appeal,
		})
		return
	}

	var de *domain.DomainError
	if errors.As(err, &de) {
		status := statusForCode(de.Code)
		if status >= http.StatusInternalServerError {
			log.Error("request failed", "code", de.Code, "error", err)
			h.writeError(w, r, http.StatusInternalServerError, domain.CodeInternal, domain.ErrInternal.Message, nil)
			return
		}
		if de.Details != "" {
			log.Debug("request rejected", "code", de.Code, "details", de.Details)
		}
		h.writeError(w, r, status, de.Code, de.Message, nil)
		return
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		log.Warn("request aborted", "error", err)
	} else {
		log.Error("internal error", "error", err)
	}
	h.writeError(w, r, http.StatusInternalServerError, domain.CodeInternal, domain.ErrInternal.Message, nil)
}

// statusForCode maps error codes to HTTP status codes.
func statusForCode(code string) int {
	switch code {
	case domain.CodeMissingCredentials, domain.CodeBadRequest:
		return http.StatusBadRequest
	case domain.CodeInvalidCredentials, domain.CodeAccountDisabled, domain.CodeInvalidToken,
		domain.CodeSessionTerminated, domain.CodeMissingToken:
		return http.StatusUnauthorized
	case domain.CodeAccountBlocked, domain.CodeSecurityViolation, domain.CodeForbidden:
		return http.StatusForbidden
	case domain.CodeTokenNotFound, domain.CodeUserNotFound, domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeActiveSessionExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON decodes a bounded request body into v. An empty body leaves
// v untouched.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return true
	}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, h.maxBody))
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		h.writeError(w, r, http.StatusBadRequest, domain.CodeBadRequest, "invalid request body", nil)
		return false
	}
	return true
}

// ClientIP extracts the client address. Proxy headers are honored only
// when trustProxy is set.
func ClientIP(r *http.Request, trustProxy bool) string {
	if trustProxy {
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			first, _, _ := strings.Cut(xff, ",")
			return strings.TrimSpace(first)
		}
		if xri := r.Header.Get("X-Real-IP"); xri != "" {
			return strings.TrimSpace(xri)
		}
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// requestContext describes r for the honeypot.
func (h *Handler) requestContext(r *http.Request) service.RequestContext {
	rc := service.RequestContext{
		IPAddress: ClientIP(r, h.trustProxy),
		UserAgent: r.UserAgent(),
		Endpoint:  r.URL.Path,
		Method:    r.Method,
	}
	if bearer, ok := bearerToken(r); ok {
		rc.BearerToken = bearer
	}
	if rc.BearerToken == "" {
		rc.BearerToken = strings.TrimSpace(r.Header.Get(HeaderCLIToken))
	}
	if c, err := r.Cookie(SessionCookie); err == nil {
		rc.SessionCookie = c.Value
	}
	return rc
}
