package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/ignite/keylock/internal/auth"
)

var defaultOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, hc *HealthChecker, guard *auth.AdminGuard, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "keylock-v1")
			next.ServeHTTP(w, req)
		})
	})

	if len(allowedOrigins) == 0 {
		allowedOrigins = defaultOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		ExposedHeaders:   []string{"X-Request-ID"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health checks (no auth required)
	if hc != nil {
		r.Get("/health", hc.HandleHealth)
		r.Get("/health/live", hc.HandleLiveness)
		r.Get("/health/ready", hc.HandleReadiness)
		r.Get("/health/db", hc.HandleDBStats)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/join", h.Join)
		r.Post("/leave", h.Leave)

		r.Route("/streamers/{streamerID}", func(r chi.Router) {
			r.Get("/keys", h.ListKeys)
			r.Get("/violations", h.ListViolations)
		})

		r.Route("/admin", func(r chi.Router) {
			r.Use(guard.RequireAdmin)
			r.Post("/keys/force-unlock", h.ForceUnlock)
			r.Get("/rules/{id}", h.GetRule)
			r.Post("/violations/{id}/resolve", h.ResolveViolation)
			r.Post("/violations/{id}/override", h.OverrideViolation)
		})
	})

	return r
}
