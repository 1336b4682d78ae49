package http

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"storyledger/internal/gdpr"
	"storyledger/internal/platform/middleware"
	domainerrors "storyledger/pkg/domain-errors"
)

type gdprHandler struct {
	svc *gdpr.Service
}

func (h *gdprHandler) Register(r chi.Router) {
	r.Post("/gdpr/requests", h.createRequest)
	r.Post("/gdpr/requests/verify", h.verifyRequest)
	r.Get("/gdpr/requests/{requestID}", h.getRequest)
	r.Post("/gdpr/requests/{requestID}/process", h.processRequest)
	r.Post("/gdpr/export", h.buildExport)
}

type createGDPRRequest struct {
	RequestType string `json:"request_type"`
	StoryID     string `json:"story_id,omitempty"`
}

func (h *gdprHandler) createRequest(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFrom(r.Context())

	var req createGDPRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}

	request, err := h.svc.CreateRequest(r.Context(), actor, gdpr.RequestType(req.RequestType), req.StoryID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, request)
}

type verifyGDPRRequest struct {
	Token string `json:"token"`
}

func (h *gdprHandler) verifyRequest(w http.ResponseWriter, r *http.Request) {
	var req verifyGDPRRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}

	request, err := h.svc.VerifyRequest(r.Context(), req.Token)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *gdprHandler) getRequest(w http.ResponseWriter, r *http.Request) {
	request, err := h.svc.GetRequest(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *gdprHandler) processRequest(w http.ResponseWriter, r *http.Request) {
	request, err := h.svc.ProcessRequest(r.Context(), chi.URLParam(r, "requestID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

func (h *gdprHandler) buildExport(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFrom(r.Context())

	artifact, err := h.svc.BuildExportArtifact(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, artifact)
}

func (h *gdprHandler) downloadExport(w http.ResponseWriter, r *http.Request) {
	payload, err := h.svc.DownloadExport(r.Context(), chi.URLParam(r, "token"))
	if err != nil {
		writeError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="data-export.json"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(payload)
}
