package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"storyledger/internal/audit"
	"storyledger/internal/platform/middleware"
	domainerrors "storyledger/pkg/domain-errors"
)

type auditHandler struct {
	log *audit.Log
}

func (h *auditHandler) Register(r chi.Router) {
	r.Get("/audit/search", h.search)
	r.Get("/audit/activity", h.activity)
	r.Get("/audit/entities/{entityType}/{entityID}", h.history)
	r.Get("/audit/entities/{entityType}/{entityID}/report", h.report)
}

func (h *auditHandler) history(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := audit.HistoryFilter{
		Limit:  queryInt(r, "limit", 50),
		Offset: queryInt(r, "offset", 0),
	}
	for _, a := range q["action"] {
		filter.Actions = append(filter.Actions, audit.Action(a))
	}
	for _, c := range q["category"] {
		filter.Categories = append(filter.Categories, audit.Category(c))
	}

	entries, err := h.log.History(r.Context(), chi.URLParam(r, "entityType"), chi.URLParam(r, "entityID"), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *auditHandler) activity(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFrom(r.Context())

	filter := audit.ActivityFilter{}
	var err error
	if filter.Start, err = queryTime(r, "start"); err != nil {
		writeError(w, err)
		return
	}
	if filter.End, err = queryTime(r, "end"); err != nil {
		writeError(w, err)
		return
	}

	entries, err := h.log.UserActivity(r.Context(), actor.ID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (h *auditHandler) search(w http.ResponseWriter, r *http.Request) {
	actor, _ := middleware.ActorFrom(r.Context())
	q := r.URL.Query()

	filter := audit.SearchFilter{
		Term:       q.Get("term"),
		EntityType: q.Get("entity_type"),
		Action:     audit.Action(q.Get("action")),
		ActorID:    q.Get("actor_id"),
		Limit:      queryInt(r, "limit", 50),
		Offset:     queryInt(r, "offset", 0),
	}
	var err error
	if filter.Start, err = queryTime(r, "start"); err != nil {
		writeError(w, err)
		return
	}
	if filter.End, err = queryTime(r, "end"); err != nil {
		writeError(w, err)
		return
	}

	result, err := h.log.Search(r.Context(), actor.TenantID, filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"entries": result.Entries,
		"total":   result.Total,
	})
}

func (h *auditHandler) report(w http.ResponseWriter, r *http.Request) {
	report, err := h.log.ExportReport(r.Context(), chi.URLParam(r, "entityType"), chi.URLParam(r, "entityID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, domainerrors.Newf(domainerrors.CodeBadRequest, "invalid %s timestamp, want RFC3339", name)
	}
	return &t, nil
}
