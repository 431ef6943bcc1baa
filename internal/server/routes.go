package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes registers every endpoint on router.
func SetupRoutes(router chi.Router, h *Handlers) {
	router.Route("/api", func(r chi.Router) {
		r.Post("/query", h.Query)
		r.Post("/variables", h.Variables)
		r.Get("/health", h.Health)
		r.Get("/sessions", h.Sessions)
		r.Get("/sessions/updates", h.SessionUpdates)
	})

	if h.gatherer != nil {
		router.Handle("/metrics", promhttp.HandlerFor(h.gatherer, promhttp.HandlerOpts{}))
	}
}
