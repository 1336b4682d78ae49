package http

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"storyledger/internal/consent"
	"storyledger/internal/platform/middleware"
	domainerrors "storyledger/pkg/domain-errors"
)

type consentHandler struct {
	ledger *consent.Ledger
}

func (h *consentHandler) Register(r chi.Router) {
	r.Post("/stories/{storyID}/consent", h.grant)
	r.Delete("/stories/{storyID}/consent", h.withdraw)
	r.Post("/stories/{storyID}/consent/verify", h.verify)
	r.Get("/stories/{storyID}/consent/history", h.history)
	r.Get("/stories/{storyID}/eligibility", h.eligibility)
	r.Get("/consent/export", h.export)
}

type grantRequest struct {
	Method       string   `json:"method"`
	Purpose      string   `json:"purpose"`
	Scope        []string `json:"scope,omitempty"`
	Duration     string   `json:"duration,omitempty"`
	Restrictions []string `json:"restrictions,omitempty"`
	WitnessID    string   `json:"witness_id,omitempty"`
	WitnessName  string   `json:"witness_name,omitempty"`
}

func (h *consentHandler) grant(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFrom(r.Context())

	var req grantRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}

	record, err := h.ledger.GrantConsent(r.Context(), actor, consent.GrantInput{
		StoryID: chi.URLParam(r, "storyID"),
		Method:  consent.Method(req.Method),
		Details: consent.Details{
			Purpose:      req.Purpose,
			Scope:        req.Scope,
			Duration:     req.Duration,
			Restrictions: req.Restrictions,
		},
		WitnessID:   req.WitnessID,
		WitnessName: req.WitnessName,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

type withdrawRequest struct {
	Scope               string   `json:"scope"`
	Reason              string   `json:"reason"`
	PartialRestrictions []string `json:"partial_restrictions,omitempty"`
}

func (h *consentHandler) withdraw(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFrom(r.Context())

	var req withdrawRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}

	withdrawal, err := h.ledger.WithdrawConsent(r.Context(), actor, consent.WithdrawInput{
		StoryID:             chi.URLParam(r, "storyID"),
		Scope:               consent.WithdrawalScope(req.Scope),
		Reason:              req.Reason,
		PartialRestrictions: req.PartialRestrictions,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, withdrawal)
}

type verifyRequest struct {
	Approved bool   `json:"approved"`
	Notes    string `json:"notes,omitempty"`
}

func (h *consentHandler) verify(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFrom(r.Context())

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, domainerrors.New(domainerrors.CodeBadRequest, "invalid request body"))
		return
	}

	record, err := h.ledger.VerifyConsent(r.Context(), actor, chi.URLParam(r, "storyID"), req.Approved, req.Notes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

func (h *consentHandler) history(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 50)
	offset := queryInt(r, "offset", 0)

	entries, err := h.ledger.GetConsentHistory(r.Context(), chi.URLParam(r, "storyID"), limit, offset)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *consentHandler) eligibility(w http.ResponseWriter, r *http.Request) {
	elig, err := h.ledger.CheckDistributionEligibility(r.Context(), chi.URLParam(r, "storyID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, elig)
}

func (h *consentHandler) export(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFrom(r.Context())

	records, err := h.ledger.ExportConsentRecords(r.Context(), actor.TenantID, actor.ID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"stories": records})
}

func queryInt(r *http.Request, name string, fallback int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
