package server

import (
	"github.com/go-chi/chi/v5"
)

// SetupRoutes configures the API routes.
func SetupRoutes(r chi.Router, h *Handlers) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Get("/units", h.ListUnits)
		r.Get("/units/{id}", h.GetUnit)
		r.Post("/units/{id}/execute", h.ExecuteUnit)

		r.Get("/runs", h.ListRuns)
		r.Get("/runs/{id}", h.GetRun)

		r.Get("/tension", h.TensionReport)
	})
}
