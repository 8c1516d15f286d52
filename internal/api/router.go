package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates the Chi router with all API routes mounted.
func NewRouter(h *Handlers, corsOrigins []string) http.Handler {
	r := chi.NewRouter()

	// Middleware.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	if len(corsOrigins) > 0 {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins:   corsOrigins,
			AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Content-Type"},
			ExposedHeaders:   []string{"Content-Disposition"},
			AllowCredentials: true,
		}))
	}
	r.Use(middleware.SetHeader("Content-Type", "application/json"))

	r.Get("/healthz", h.Health)

	r.Route("/api/v1", func(r chi.Router) {
		// Pipeline.
		r.Post("/uploads", h.Upload)
		r.Post("/transfers", h.Transfer)
		r.Post("/exports", h.Export)

		// Batch history.
		r.Get("/batches", h.ListBatches)
		r.Get("/batches/{id}", h.GetBatch)

		// Dashboard.
		r.Get("/dashboard", h.GetDashboard)
	})

	return r
}
