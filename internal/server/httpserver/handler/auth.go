package handler

import (
	"net/http"
	"strings"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/internal/core/service"
)

// handleLogin handles POST /login.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Email) == "" || req.Password == "" {
		h.handleServiceError(w, r, domain.ErrMissingCredentials)
		return
	}
	ct, err := domain.ParseClientType(req.ClientType)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	var device domain.DeviceInfo
	if req.DeviceInfo != nil {
		device = *req.DeviceInfo
	}
	res, err := h.auth.Login(r.Context(), &service.LoginRequest{
		Email:          req.Email,
		Password:       req.Password,
		DeviceInfo:     device,
		ClientType:     ct,
		ExpirationDays: req.ExpirationDays,
		Force:          req.Force,
		IPAddress:      ClientIP(r, h.trustProxy),
		UserAgent:      r.UserAgent(),
	})
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	h.writeJSON(w, r, http.StatusOK, LoginResponse{
		Token:      res.Token,
		UserID:     res.UserID,
		ExpiresIn:  res.ExpiresIn,
		ExpiresAt:  res.ExpiresAt,
		DeviceInfo: res.DeviceInfo,
		SessionID:  res.SessionID,
		ClientType: string(res.ClientType),
		TookOver:   res.TookOver,
	})
}

// handleVerify handles POST /verify.
func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	raw := cliToken(r, req.Token)
	if raw == "" {
		h.handleServiceError(w, r, domain.ErrMissingToken)
		return
	}
	if h.interceptTrap(w, r, raw) {
		return
	}

	p, err := h.auth.Authenticate(r.Context(), raw)
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}

	expiresAt := p.Credential.ExpiresAt
	remaining := int64(expiresAt.Sub(h.now()).Seconds())
	if remaining < 0 {
		remaining = 0
	}
	h.writeJSON(w, r, http.StatusOK, VerifyResponse{
		UserID:        p.UserID,
		TokenValid:    true,
		ExpiresAt:     expiresAt,
		RemainingTime: remaining,
	})
}

// handleLogout handles POST /logout.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	var req TokenRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	raw := cliToken(r, req.Token)
	if raw == "" {
		h.handleServiceError(w, r, domain.ErrMissingToken)
		return
	}
	if h.interceptTrap(w, r, raw) {
		return
	}

	if err := h.auth.Logout(r.Context(), raw); err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, map[string]string{"message": "logged out"})
}
