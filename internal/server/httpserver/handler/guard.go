package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/internal/core/service"
	"github.com/bluelamp/cligate/internal/telemetry/logger"
)

// decoyFunc serves the winning trap key in place of a real handler.
type decoyFunc func(w http.ResponseWriter, r *http.Request, rc service.RequestContext, trapKey string)

type principalKey struct{}

// PrincipalFromContext returns the caller authenticated by the guard.
func PrincipalFromContext(ctx context.Context) *service.Principal {
	p, _ := ctx.Value(principalKey{}).(*service.Principal)
	return p
}

// guard classifies the presented credential before real runs. Trap keys
// never reach real.
func (h *Handler) guard(real http.HandlerFunc, decoy decoyFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cred := guardCredential(r, h.maxBody)
		if cred == "" {
			h.handleServiceError(w, r, domain.ErrMissingToken)
			return
		}

		if h.detector != nil {
			switch h.detector.Classify(cred) {
			case domain.WinningTrap:
				if h.deception == nil || decoy == nil {
					h.serveBlockedTrap(w, r, cred)
					return
				}
				decoy(w, r, h.requestContext(r), cred)
				return
			case domain.LosingTrap:
				h.serveLosingTrap(w, r, cred)
				return
			}
		}

		p, err := h.auth.Authenticate(r.Context(), cred)
		if err != nil {
			h.handleServiceError(w, r, err)
			return
		}
		real(w, r.WithContext(context.WithValue(r.Context(), principalKey{}, p)))
	}
}

// interceptTrap answers raw when it is a trap key and reports whether it
// did. Used on routes that have no decoy.
func (h *Handler) interceptTrap(w http.ResponseWriter, r *http.Request, raw string) bool {
	if h.detector == nil || raw == "" {
		return false
	}
	switch h.detector.Classify(raw) {
	case domain.WinningTrap:
		h.serveBlockedTrap(w, r, raw)
		return true
	case domain.LosingTrap:
		h.serveLosingTrap(w, r, raw)
		return true
	}
	return false
}

// serveBlockedTrap answers the winning key on a route without decoy
// content.
func (h *Handler) serveBlockedTrap(w http.ResponseWriter, r *http.Request, trapKey string) {
	h.recordTrap(r, h.requestContext(r), trapKey, service.TrapTrigger{
		ResourceID:   r.PathValue("id"),
		ResponseType: domain.ResponseBlocked,
	})
	h.writeError(w, r, http.StatusForbidden, domain.CodeSecurityViolation, domain.ErrSecurityViolation.Message, nil)
}

// serveLosingTrap answers a losing key with a randomized failure in the
// standard error envelope.
func (h *Handler) serveLosingTrap(w http.ResponseWriter, r *http.Request, trapKey string) {
	h.recordTrap(r, h.requestContext(r), trapKey, service.TrapTrigger{
		ResourceID:   r.PathValue("id"),
		ResponseType: domain.ResponseError,
	})

	resp := h.detector.LosingTrapResponse()
	if resp.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(resp.RetryAfter))
	}
	h.writeError(w, r, resp.Status, resp.Code, resp.Message, nil)
}

// recordTrap hands the trigger to the detector. Account action failures
// are logged; the response to the caller does not change.
func (h *Handler) recordTrap(r *http.Request, rc service.RequestContext, trapKey string, trigger service.TrapTrigger) {
	res, err := h.detector.OnTrapTriggered(r.Context(), rc, trapKey, trigger)
	if err != nil {
		attrs := []any{"error", err}
		if res != nil && res.Entry != nil {
			attrs = append(attrs, "audit_id", res.Entry.ID)
		}
		logger.L(r.Context()).Error("trap handling incomplete", attrs...)
	}
}
