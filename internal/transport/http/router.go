// Package http is the transport layer: routing, auth, request decoding and
// the domain-error to status mapping. Handlers stay thin; all rules live in
// the services.
package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"storyledger/internal/audit"
	"storyledger/internal/consent"
	"storyledger/internal/distribution"
	"storyledger/internal/gdpr"
	"storyledger/internal/platform/middleware"
)

// Services are the wired domain services the router exposes.
type Services struct {
	Ledger        *consent.Ledger
	Audit         *audit.Log
	Distributions *distribution.Service
	GDPR          *gdpr.Service
}

func NewRouter(svcs Services, signingKey []byte, log *slog.Logger) chi.Router {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Handle("/metrics", promhttp.Handler())

	consentH := &consentHandler{ledger: svcs.Ledger}
	auditH := &auditHandler{log: svcs.Audit}
	distH := &distributionHandler{svc: svcs.Distributions}
	gdprH := &gdprHandler{svc: svcs.GDPR}

	r.Route("/v1", func(r chi.Router) {
		// Download tokens are unguessable and short-lived; the link arrives
		// by email, so this route skips bearer auth.
		r.Get("/gdpr/exports/{token}", gdprH.downloadExport)

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAuth(signingKey, log))
			consentH.Register(r)
			auditH.Register(r)
			distH.Register(r)
			gdprH.Register(r)
		})
	})

	return r
}
