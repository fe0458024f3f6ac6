/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the dashboard
  5. Tenant:     X-Tenant-ID / X-Actor-ID from the auth gateway (/payroll only)

ROUTES:
  GET    /healthz
  GET    /payroll                         Sync and read a run
  GET    /payroll/runs                    List runs
  GET    /payroll/runs/{runID}            Read a run
  GET    /payroll/runs/{runID}/export     XLSX download
  PATCH  /payroll/runs/{runID}            Month units, marked-by name
  POST   /payroll/runs/{runID}/finalize   Lock the run
  PATCH  /payroll/items/{itemID}          Allowances, payment status

SECURITY NOTE:
  Authentication happens upstream. The router trusts the tenant and
  actor headers it is given.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", HeaderTenantID, HeaderActorID},
		ExposedHeaders:   []string{"Content-Disposition"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", h.Health)

	r.Route("/payroll", func(r chi.Router) {
		r.Use(RequireTenant)

		r.Get("/", h.SyncRun)

		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.ListRuns)
			r.Get("/{runID}", h.GetRun)
			r.Get("/{runID}/export", h.ExportRun)
			r.Patch("/{runID}", h.PatchRun)
			r.Post("/{runID}/finalize", h.FinalizeRun)
		})

		r.Route("/items", func(r chi.Router) {
			r.Patch("/{itemID}", h.PatchItem)
		})
	})

	return r
}
