package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/chalkboard-sms/chalkboard/internal/access"
	"github.com/chalkboard-sms/chalkboard/internal/identity"
	"github.com/chalkboard-sms/chalkboard/internal/observability"
	"github.com/chalkboard-sms/chalkboard/internal/registry"
	"github.com/chalkboard-sms/chalkboard/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	RegistryHandler    *registry.Handler
	PermissionsHandler *access.PermissionsHandler
	IdentityHandler    *identity.Handler
	AccessMiddleware   access.Middleware
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Chalkboard defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	require := params.AccessMiddleware.Require

	if params.RegistryHandler != nil {
		r.Route("/schools", func(r chi.Router) {
			r.Use(require(access.PermManageSchools))
			params.RegistryHandler.MountRoutes(r)
		})
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", func(r chi.Router) {
			r.Use(require(access.PermManageOverrides))
			params.PermissionsHandler.MountRoutes(r)
		})
	}
	if params.IdentityHandler != nil {
		r.Route("/identities", func(r chi.Router) {
			params.IdentityHandler.MountRoutes(r, require)
		})
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			params.JobHandler.MountRoutes(r, require(access.PermManageSchools))
		})
	}
	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
