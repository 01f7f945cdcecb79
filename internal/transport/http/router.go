package httptransport

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"amlcore/pkg/platform/httputil"
	"amlcore/pkg/platform/middleware/auth"
	"amlcore/pkg/platform/middleware/metadata"
	"amlcore/pkg/platform/middleware/requesttime"
)

// Registrar mounts a feature's routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// Config lists what the router needs. Checks are probed by /healthz.
type Config struct {
	Logger    *slog.Logger
	Validator auth.TokenValidator
	Checks    map[string]HealthCheck
	Features  []Registrar
}

// NewRouter wires the public endpoints. Every feature route sits behind
// owner authentication; /healthz does not.
func NewRouter(cfg Config) http.Handler {
	r := chi.NewRouter()
	r.Use(metadata.RequestID)
	r.Use(metadata.ClientMetadata)
	r.Use(requesttime.Middleware)
	r.Use(chimiddleware.Recoverer)

	r.Get("/healthz", health(cfg.Checks))

	r.Group(func(r chi.Router) {
		r.Use(auth.RequireOwner(cfg.Validator, cfg.Logger))
		for _, f := range cfg.Features {
			f.Register(r)
		}
	})
	return r
}

func health(checks map[string]HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		results := make(map[string]string, len(checks))
		for name, check := range checks {
			if err := check(ctx); err != nil {
				results[name] = "unavailable"
				status = http.StatusServiceUnavailable
				continue
			}
			results[name] = "ok"
		}
		httputil.WriteJSON(w, status, map[string]any{"status": http.StatusText(status), "checks": results})
	}
}
