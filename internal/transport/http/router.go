// Package httptransport assembles the HTTP surface: shared middleware, health
// and metrics endpoints, and the auth and trial handlers.
package httptransport

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"minimizer/internal/platform/metrics"
	"minimizer/pkg/platform/httputil"
	auth "minimizer/pkg/platform/middleware/auth"
	"minimizer/pkg/platform/middleware/metadata"
	request "minimizer/pkg/platform/middleware/request"
	"minimizer/pkg/platform/middleware/requesttime"
)

// AuthRoutes mounts public and authenticated account routes.
type AuthRoutes interface {
	Register(r chi.Router, requireAuth func(http.Handler) http.Handler)
}

// TrialRoutes mounts routes that always run behind authentication.
type TrialRoutes interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

// Deps is everything the router needs.
type Deps struct {
	Logger      *slog.Logger
	Metrics     *metrics.Metrics
	Validator   auth.JWTValidator
	Revocations auth.TokenRevocationChecker
	Auth        AuthRoutes
	AuthLimiter func(http.Handler) http.Handler
	Trials      TrialRoutes
	Health      map[string]HealthCheck
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// NewRouter wires the middleware chain and mounts every route.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.Recovery(d.Logger))
	r.Use(request.RequestID)
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	r.Use(request.Logger(d.Logger))
	if d.Metrics != nil {
		r.Use(d.Metrics.Instrument)
		r.Handle("/metrics", metrics.Handler())
	}

	r.Get("/healthz", healthHandler(d.Health))

	requireAuth := auth.RequireAuth(d.Validator, d.Revocations, d.Logger)
	if d.Auth != nil {
		r.Group(func(r chi.Router) {
			if d.AuthLimiter != nil {
				r.Use(d.AuthLimiter)
			}
			d.Auth.Register(r, requireAuth)
		})
	}
	if d.Trials != nil {
		r.Group(func(r chi.Router) {
			r.Use(requireAuth)
			d.Trials.Register(r)
		})
	}
	return r
}

func healthHandler(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{Status: "ok"}
		status := http.StatusOK
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
