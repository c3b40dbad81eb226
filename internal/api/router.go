package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// buildRouter creates the HTTP router with all routes and middleware.
func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(s.requestIDMiddleware)
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	r.Use(s.corsMiddleware)
	r.Use(s.bodySizeLimitMiddleware)

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)

		// Entity registry endpoints
		r.Route("/entities", func(r chi.Router) {
			r.Get("/", s.handleListEntities)
			r.Post("/", s.handleCreateEntity)
			r.Get("/stats", s.handleEntityStats)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetEntity)
				r.Patch("/", s.handleUpdateEntity)
				r.Delete("/", s.handleDeleteEntity)
				r.Post("/migrate-source", s.handleMigrateSource)
			})
		})

		// Sync engine endpoints
		r.Route("/sync", func(r chi.Router) {
			r.Post("/run", s.handleRunSync)
			r.Post("/duplicates", s.handleCheckDuplicates)
			r.Post("/cleanup", s.handleDeletionCleanup)
			r.Post("/restore", s.handleDeletionRestore)
		})
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"version":  s.version,
		"entities": s.registry.Count(),
	})
}
