package handler

import (
	"net/http"
	"strconv"

	"github.com/bluelamp/cligate/internal/core/domain"
	"github.com/bluelamp/cligate/internal/core/service"
)

// listParams reads the listing contract from the query string. Invalid
// numbers fall back to defaults.
func listParams(r *http.Request) domain.ListParams {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	limit, _ := strconv.Atoi(q.Get("limit"))
	return domain.ListParams{
		Page:     page,
		Limit:    limit,
		Sort:     q.Get("sort"),
		Order:    q.Get("order"),
		Category: q.Get("category"),
	}.Normalize()
}

// handleListPrompts handles GET /prompts.
func (h *Handler) handleListPrompts(w http.ResponseWriter, r *http.Request) {
	list, err := h.prompts.List(r.Context(), listParams(r))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, list)
}

// handleGetPrompt handles GET /prompts/{id}.
func (h *Handler) handleGetPrompt(w http.ResponseWriter, r *http.Request) {
	view, err := h.prompts.Get(r.Context(), r.PathValue("id"))
	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, view)
}

// handleListDecoys serves GET /prompts to the winning trap key.
func (h *Handler) handleListDecoys(w http.ResponseWriter, r *http.Request, rc service.RequestContext, trapKey string) {
	list, err := h.deception.ListDecoyResources(r.Context(), listParams(r), rc)
	trigger := service.TrapTrigger{ResponseType: domain.ResponseTrapPrompt}
	if err != nil {
		trigger.ResponseType = domain.ResponseError
	}
	h.recordTrap(r, rc, trapKey, trigger)

	if err != nil {
		h.handleServiceError(w, r, err)
		return
	}
	h.writeJSON(w, r, http.StatusOK, list)
}

// handleGetDecoy serves GET /prompts/{id} to the winning trap key. Ids
// without a decoy get the same NOT_FOUND as unknown real ids.
func (h *Handler) handleGetDecoy(w http.ResponseWriter, r *http.Request, rc service.RequestContext, trapKey string) {
	id := r.PathValue("id")
	trigger := service.TrapTrigger{ResourceID: id, ResponseType: domain.ResponseTrapPrompt}

	resp, err := h.deception.GetDecoyResource(r.Context(), id, rc)
	if err != nil {
		trigger.ResponseType = domain.ResponseError
		h.recordTrap(r, rc, trapKey, trigger)
		h.handleServiceError(w, r, err)
		return
	}

	trigger.TrackingID = resp.TrackingID
	h.recordTrap(r, rc, trapKey, trigger)
	h.writeJSON(w, r, http.StatusOK, resp.View)
}
