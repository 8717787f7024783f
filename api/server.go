/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for frontend
  5. RateLimit:  Per-member token bucket, enrollment writes only

ROUTE GROUPS:
  /api/classes/*        Class sessions, roster, enrollments
  /api/users/*          Member credit accounts and bookings
  /api/admin/*          Consistency audit (admin store only)
  /api/scenarios/*      Demo scenarios (admin store only)
  /healthz              Liveness

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
// A nil limiter disables rate limiting.
func NewRouter(h *Handler, limiters *Limiters) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", UserHeader},
		AllowCredentials: true,
	}))

	limited := func(next http.Handler) http.Handler { return next }
	if limiters != nil {
		limited = RateLimit(limiters, nil)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Class routes
		r.Route("/classes", func(r chi.Router) {
			r.Post("/", h.CreateClass)
			r.Get("/{id}", h.GetClass)
			r.Delete("/{id}", h.CancelClass)
			r.Get("/{id}/roster", h.GetRoster)

			r.With(limited).Post("/{id}/enrollments", h.Enroll)
			r.With(limited).Delete("/{id}/enrollments/{userID}", h.CancelEnrollment)
		})

		// Admin routes
		if h.Admin != nil {
			if h.Audit != nil {
				r.Get("/admin/audit", h.GetAudit)
				r.Post("/admin/audit", h.RunAudit)
			}

			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetDatabase)
			})
		}

		// Member routes
		r.Route("/users", func(r chi.Router) {
			r.Post("/", h.OpenAccount)
			r.Get("/{id}/bookings", h.GetBookings)
			r.Get("/{id}/credits", h.GetCredits)
			r.Post("/{id}/credits", h.GrantCredits)
		})
	})

	return r
}
