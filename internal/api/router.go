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
		// Health check (no auth required)
		r.Get("/health", s.handleHealth)

		// Auth endpoints (no auth required)
		r.Post("/auth/login", s.handleLogin)

		// Public portfolio surface: visitors view published portfolios,
		// record views, submit contact forms and testimonials.
		r.Get("/portfolios/slug/{slug}", s.handleGetPortfolioBySlug)
		r.Route("/portfolios/{id}", func(r chi.Router) {
			r.Get("/", s.handleGetPortfolio)
			r.Get("/sections", s.handleListSections)
			r.Post("/views", s.handleRecordView)
			r.Post("/contact", s.handleSubmitContactForm)
			r.Post("/testimonials", s.handleAddTestimonial)
		})

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(s.authMiddleware)

			r.Get("/auth/me", s.handleMe)

			// Owner mutations
			r.Post("/portfolios", s.handleCreatePortfolio)
			r.Get("/portfolios", s.handleListPortfolios)
			r.Patch("/portfolios/{id}", s.handleUpdatePortfolio)
			r.Post("/portfolios/{id}/sections", s.handleCreateSection)
			r.Patch("/portfolios/{id}/sections/{sectionID}", s.handleUpdateSection)
		})

	})

	// WebSocket endpoint, mounted from config (auth in handler, before
	// upgrade).
	r.Get(s.webSocketPath(), s.handleWebSocket)

	return r
}

// defaultWebSocketPath is used when the websocket path is left unset.
const defaultWebSocketPath = "/api/v1/ws"

// webSocketPath returns the configured websocket mount path.
func (s *Server) webSocketPath() string {
	if s.wsCfg.Path == "" {
		return defaultWebSocketPath
	}
	return s.wsCfg.Path
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      "ok",
		"version":     s.version,
		"connections": s.registry.ConnectionCount(),
	})
}
