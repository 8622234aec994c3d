// Package httpapi assembles the HTTP surface. It is a thin layer: routing and
// middleware order live here, behavior lives in the per-domain handlers.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"immigo/pkg/platform/httputil"
	"immigo/pkg/platform/middleware/admin"
	"immigo/pkg/platform/middleware/auth"
	"immigo/pkg/platform/middleware/requestid"
	"immigo/pkg/platform/middleware/requesttime"
)

// Registrar is implemented by every per-domain handler.
type Registrar interface {
	Register(r chi.Router)
}

// HealthChecker reports whether a backing dependency is reachable.
type HealthChecker interface {
	Health(ctx context.Context) error
}

// Deps carries everything the router needs. Health checkers may be nil when
// the dependency is not configured; they are then reported as skipped.
type Deps struct {
	Validator auth.TokenValidator
	Logger    *slog.Logger

	Public    []Registrar
	Protected []Registrar

	// Admin registrars sit behind the X-Admin-Token check in addition to
	// bearer auth. An empty AdminToken keeps them unreachable.
	Admin      []Registrar
	AdminToken string

	Postgres HealthChecker
	Redis    HealthChecker
}

// NewRouter wires middleware and mounts all endpoints. Ingest, checklist,
// and preference endpoints require a bearer token; the manual detection
// triggers additionally require the operator token; health and metrics stay
// open for probes and scrapers.
func NewRouter(deps Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.Recoverer)
	r.Use(requestid.Middleware)
	r.Use(requesttime.Middleware)

	r.Get("/healthz", handleHealth(deps))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())
	for _, reg := range deps.Public {
		reg.Register(r)
	}

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireAuth(deps.Validator, deps.Logger))
		for _, reg := range deps.Protected {
			reg.Register(r)
		}
	})

	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(deps.AdminToken, deps.Logger))
		for _, reg := range deps.Admin {
			reg.Register(r)
		}
	})

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	check := func(ctx context.Context, hc HealthChecker) string {
		if hc == nil {
			return "skipped"
		}
		if err := hc.Health(ctx); err != nil {
			return "failed"
		}
		return "ok"
	}

	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		checks := map[string]string{
			"postgres": check(ctx, deps.Postgres),
			"redis":    check(ctx, deps.Redis),
		}
		status := http.StatusOK
		overall := "ok"
		for _, result := range checks {
			if result == "failed" {
				status = http.StatusServiceUnavailable
				overall = "degraded"
			}
		}
		httputil.WriteJSON(w, status, map[string]any{
			"status": overall,
			"checks": checks,
		})
	}
}
