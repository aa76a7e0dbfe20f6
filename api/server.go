/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. instrument: Prometheus request counter and latency histogram
  5. CORS:       Cross-origin requests for the web app

ROUTE GROUPS:
  /api/guides/*         Guides and purchases
  /api/purchases/*      Refunds
  /api/creators/*       Profiles, earnings, payouts
  /api/payouts/*        Payout transitions
  /api/users/*          Notifications
  /api/admin/*          Outbox inspection
  /api/scenarios/*      Demo scenarios (not mounted in production)
  /health, /metrics     Liveness, Prometheus

SECURITY NOTE:
  Buyer identity comes from the X-User-ID header set by the auth proxy in
  front of this service. /api/admin and /metrics must not be exposed
  publicly.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// RouterOptions configures NewRouter.
type RouterOptions struct {
	AllowedOrigins  []string
	EnableScenarios bool
}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, opts RouterOptions) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(instrument)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   opts.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key", "X-User-ID"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	r.Handle("/metrics", promhttp.Handler())

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Guide routes
		r.Route("/guides", func(r chi.Router) {
			r.Get("/", h.ListGuides)
			r.Post("/", h.CreateGuide)
			r.Get("/{id}", h.GetGuide)
			r.Put("/{id}/status", h.UpdateGuideStatus)
			r.Get("/{id}/purchase", h.GetPurchaseStatus)
			r.Post("/{id}/purchase", h.PurchaseGuide)
		})

		r.Post("/purchases/{id}/refund", h.RefundPurchase)

		// Creator routes
		r.Route("/creators", func(r chi.Router) {
			r.Post("/", h.UpsertCreator)
			r.Get("/{id}", h.GetCreator)
			r.Get("/{id}/earnings", h.GetEarnings)
			r.Get("/{id}/audit", h.GetAudit)
			r.Get("/{id}/payouts", h.ListPayouts)
			r.Post("/{id}/payouts", h.RequestPayout)
		})

		r.Put("/payouts/{id}/status", h.UpdatePayoutStatus)
		r.Get("/users/{id}/notifications", h.ListNotifications)

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Get("/outbox", h.ListOutbox)
			r.Post("/outbox/process", h.ProcessOutbox)
		})

		// Scenario routes
		if opts.EnableScenarios {
			r.Route("/scenarios", func(r chi.Router) {
				r.Get("/", h.ListScenarios)
				r.Get("/current", h.GetCurrentScenario)
				r.Post("/load", h.LoadScenario)
				r.Post("/reset", h.ResetDatabase)
			})
		}
	})

	return r
}
