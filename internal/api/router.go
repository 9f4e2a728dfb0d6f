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
		// Liveness check
		r.Get("/health", s.handleHealth)

		// Sync engine status
		r.Get("/status", s.handleStatus)

		// State tree browsing and writes
		r.Route("/tree", func(r chi.Router) {
			r.Get("/", s.handleListTree)
			r.Get("/*", s.handleGetNode)
			r.Put("/*", s.handleSetNode)
		})

		// Bridge registration
		r.Post("/pair", s.handlePair)
	})

	return r
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"version": s.version,
	})
}
