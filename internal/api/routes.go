package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures the HTTP routes.
func SetupRoutes(h *Handlers) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	// Liveness check
	r.Get("/health", h.HealthCheck)

	r.Route("/api", func(r chi.Router) {
		r.Post("/retention/recompute", h.Recompute)
		r.Post("/playbooks/advance", h.AdvancePlaybooks)

		r.Get("/churn/high-risk", h.HighRisk)

		r.Route("/accounts/{id}", func(r chi.Router) {
			r.Get("/health", h.AccountHealth)
			r.Get("/churn", h.AccountChurn)
			r.Get("/retention", h.AccountRetention)
			r.Post("/satisfaction", h.RecordSatisfaction)
			r.Post("/lifecycle", h.SetLifecycle)
		})
	})

	return r
}
