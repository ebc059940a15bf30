package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(deps Deps, log logrus.FieldLogger) http.Handler {
	h := &Handlers{Deps: deps, log: log.WithField("component", "api")}
	if h.MaxUploadBytes <= 0 {
		h.MaxUploadBytes = 64 << 20
	}

	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Source data.
		r.Post("/uploads/{table}", h.Upload)
		r.Get("/quarantine", h.ListQuarantine)

		// Reconciliation.
		r.Post("/reconciliations", h.Reconcile)
		r.Get("/summary", h.Summary)

		// Report jobs.
		r.Post("/reports", h.CreateReport)
		r.Get("/reports", h.ListReports)
		r.Get("/reports/{id}", h.GetReport)
		r.Get("/reports/{id}/download", h.DownloadReport)
	})

	return r
}
