package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter creates a new router with all routes configured
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware (all routes)
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(LoggingMiddleware)
	r.Use(RecoveryMiddleware)

	r.Route("/api/v1", func(r chi.Router) {
		// Health is public so supervisors can probe without the key.
		r.Get("/health", h.Health)

		// Protected routes (auth required)
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(h.apiKey))

			r.Get("/status", h.Status)
			r.Get("/stats", h.Stats)
			r.Post("/sync", h.TriggerSync)

			r.Route("/entries", func(r chi.Router) {
				r.Post("/", h.CreateEntry)
				r.Get("/", h.ListEntries)
				r.Get("/{id}", h.GetEntry)
				r.Patch("/{id}", h.UpdateEntry)
				r.Delete("/{id}", h.DeleteEntry)
			})

			r.Route("/airports", func(r chi.Router) {
				r.Get("/search", h.SearchAirports)
				r.Get("/{icao}", h.GetAirport)
			})

			r.Get("/night-estimate", h.NightEstimate)
		})
	})

	return r
}
