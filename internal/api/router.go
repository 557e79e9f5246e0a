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
		// Health check (no identity resolution)
		r.Get("/health", s.handleHealth)

		// Everything else resolves identity first. Anonymous requests
		// proceed; the policy evaluator decides what they may do.
		r.Group(func(r chi.Router) {
			r.Use(s.identityMiddleware)

			r.Post("/auth/login", s.handleLogin)
			r.Get("/auth/me", s.handleMe)

			r.Route("/access-codes", func(r chi.Router) {
				r.Post("/validate", s.handleValidateCode)
				r.Post("/consume", s.handleConsumeCode)

				// Admin lifecycle operations
				r.Get("/", s.handleListCodes)
				r.Post("/", s.handleGenerateCode)
				r.Post("/{code}/deactivate", s.handleDeactivateCode)
				r.Post("/{code}/reset", s.handleResetCode)
			})

			r.Route("/principals", func(r chi.Router) {
				r.Get("/", s.handleListPrincipals)
				r.Get("/{id}", s.handleGetPrincipal)
				r.Put("/{id}", s.handleUpdatePrincipal)
				r.Put("/{id}/role", s.handleChangeRole)
				r.Post("/{id}/archive", s.handleArchivePrincipal)
			})

			r.Route("/deliberations", func(r chi.Router) {
				r.Get("/", s.handleListDeliberations)
				r.Post("/", s.handleCreateDeliberation)

				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", s.handleGetDeliberation)
					r.Put("/status", s.handleUpdateStatus)
					r.Post("/join", s.handleJoinDeliberation)
					r.Get("/participants", s.handleListParticipants)
					r.Get("/messages", s.handleListMessages)
					r.Post("/messages", s.handleCreateMessage)
				})
			})

			// Audit log (admin)
			r.Get("/events", s.handleListEvents)

			// Live security-event feed: ticket issued here, redeemed on /ws
			r.With(s.requireAuth).Post("/auth/ws-ticket", s.handleWSTicket)
			r.Get("/ws", s.handleWebSocket)
		})
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
