package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/internal/telemetry/logger"
)

// handleListTokens handles GET /tokens/{userId}.
func (h *Handler) handleListTokens(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if userID == "" {
		h.writeError(w, r, http.StatusBadRequest, domain.CodeBadRequest, "userId is required", nil)
		return
	}

	creds, err := h.tokens.GetActiveTokens(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	views := make([]TokenView, 0, len(creds))
	for _, c := range creds {
		views = append(views, newTokenView(c))
	}
	h.writeJSON(w, r, http.StatusOK, TokenListResponse{UserID: userID, Tokens: views, Count: len(views)})
}

// handleStats handles GET /stats.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	st, err := h.tokens.GetStats(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	resp := StatsResponse{UserID: userID, Tokens: *st}
	if h.audit != nil {
		resp.AuditQueueDepth = h.audit.QueueDepth()
	}
	if h.policy != nil {
		resp.TrapKeys = h.policy.Policy().Len()
	}
	h.writeJSON(w, r, http.StatusOK, resp)
}

// auditFilter reads the trap audit filter from the query string.
func auditFilter(r *http.Request) (domain.AuditFilter, error) {
	q := r.URL.Query()
	f := domain.AuditFilter{
		UserID:       q.Get("userId"),
		TrapKey:      q.Get("trapKey"),
		ResponseType: domain.ResponseType(q.Get("responseType")),
	}
	switch f.ResponseType {
	case "", domain.ResponseTrapPrompt, domain.ResponseError, domain.ResponseBlocked:
	default:
		return f, domain.ErrBadRequest.WithMessage("unknown responseType")
	}
	for _, p := range []struct {
		name string
		dst  *time.Time
	}{{"since", &f.Since}, {"until", &f.Until}} {
		v := q.Get(p.name)
		if v == "" {
			continue
		}
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, domain.ErrBadRequest.WithMessage(p.name + " must be RFC 3339")
		}
		*p.dst = t
	}
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return f, domain.ErrBadRequest.WithMessage("limit must be a non-negative integer")
		}
		f.Limit = n
	}
	return f, nil
}

// handleTrapLogs handles GET /admin/trap/logs.
func (h *Handler) handleTrapLogs(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		h.handleServiceError(w, r, domain.ErrNotFound.WithDetails("audit log disabled"))
		return
	}
	f, err := auditFilter(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	entries, err := h.audit.List(r.Context(), f)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	views := make([]TrapLogView, 0, len(entries))
	for _, e := range entries {
		views = append(views, newTrapLogView(e))
	}
	h.writeJSON(w, r, http.StatusOK, TrapLogResponse{Entries: views, Count: len(views)})
}

// handleTrapStats handles GET /admin/trap/stats.
func (h *Handler) handleTrapStats(w http.ResponseWriter, r *http.Request) {
	if h.audit == nil {
		h.handleServiceError(w, r, domain.ErrNotFound.WithDetails("audit log disabled"))
		return
	}
	f, err := auditFilter(r)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	st, err := h.audit.Stats(r.Context(), f)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, st)
}

// handleClearSessions handles DELETE /admin/sessions/{userId}.
func (h *Handler) handleClearSessions(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	n, err := h.sessions.ClearSessions(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, ClearSessionsResponse{UserID: userID, Cleared: n})
}

// handleUnblock handles POST /admin/users/{userId}/unblock. Security
// blocks are only ever lifted here.
func (h *Handler) handleUnblock(w http.ResponseWriter, r *http.Request) {
	userID := r.PathValue("userId")
	if h.users == nil {
		h.handleServiceError(w, r, domain.ErrNotFound)
		return
	}
	if err := h.users.UnblockUser(r.Context(), userID); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	u, err := h.users.GetUser(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	logger.Security(h.log, logger.EventAccountUnblock, "account unblocked", "user_id", userID)
	h.writeJSON(w, r, http.StatusOK, UnblockResponse{UserID: u.ID, Status: string(u.Status)})
}

// handleHealth handles GET /health.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": h.version,
		"time":    h.now().UTC().Format(time.RFC3339),
	})
}
