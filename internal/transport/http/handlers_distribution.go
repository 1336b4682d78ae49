package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storyledger/internal/distribution"
	"storyledger/internal/platform/middleware"
	domainerrors "storyledger/pkg/domain-errors"
)

type distributionHandler struct {
	svc *distribution.Service
}

func (h *distributionHandler) Register(r chi.Router) {
	r.Post("/stories/{storyID}/distributions", h.create)
	r.Get("/stories/{storyID}/distributions", h.list)
	r.Delete("/stories/{storyID}/distributions", h.revokeAll)
	r.Delete("/stories/{storyID}/distributions/{distributionID}", h.revoke)
}

type createDistributionRequest struct {
	Platform string `json:"platform"`
	URL      string `json:"url,omitempty"`
}

func (h *distributionHandler) create(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFrom(r.Context())

	var req createDistributionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}

	d, err := h.svc.Create(r.Context(), actor, chi.URLParam(r, "storyID"), distribution.Platform(req.Platform), req.URL)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, d)
}

func (h *distributionHandler) list(w http.ResponseWriter, r *http.Request) {
	records, err := h.svc.ListByStory(r.Context(), chi.URLParam(r, "storyID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"distributions": records})
}

type revokeRequest struct {
	Reason string `json:"reason"`
}

func (h *distributionHandler) revoke(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFrom(r.Context())

	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}

	d, err := h.svc.Revoke(r.Context(), actor, chi.URLParam(r, "storyID"), chi.URLParam(r, "distributionID"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (h *distributionHandler) revokeAll(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFrom(r.Context())

	var req revokeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}

	revoked, err := h.svc.RevokeAll(r.Context(), actor, chi.URLParam(r, "storyID"), req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"revoked": revoked})
}
