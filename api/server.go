/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the embedded admin app

ROUTE GROUPS:
  /webhooks/shopify     Order webhook intake (signature-verified)
  /api/points/*         Balances and manual adjustments
  /api/webhooks/*       Delivery activity
  /api/inventory/*      Shop catalog and quantity writes
  /health               Liveness
  /metrics              Prometheus (when enabled)

SECURITY NOTE:
  The webhook route is authenticated by its HMAC signature. The admin
  routes rely on the deployment boundary (the platform's embedded-app
  proxy); they carry no session auth of their own.

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

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/health", h.Health)
	if h.Metrics {
		r.Handle("/metrics", promhttp.Handler())
	}

	// Webhook intake (platform-facing, HMAC-verified)
	r.Post("/webhooks/shopify", h.HandleShopifyWebhook)

	// API routes (merchant-facing)
	r.Route("/api", func(r chi.Router) {
		// Points routes
		r.Route("/points", func(r chi.Router) {
			r.Get("/", h.ListPoints)
			r.Get("/{id}", h.GetPoints)
			r.Post("/{id}/adjust", h.Adjust)
			r.Get("/{id}/adjustments", h.ListAdjustments)
		})

		// Webhook activity routes
		r.Route("/webhooks", func(r chi.Router) {
			r.Get("/recent", h.RecentWebhooks)
		})

		// Inventory routes
		r.Route("/inventory", func(r chi.Router) {
			r.Get("/variants", h.ListVariants)
			r.Get("/locations", h.ListLocations)
			r.Post("/quantities", h.SetQuantities)
		})
	})

	return r
}
