package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"

	"github.com/sentra-auth/sentra/internal/auth"
	"github.com/sentra-auth/sentra/internal/observability"
	"github.com/sentra-auth/sentra/internal/rbac"
	"github.com/sentra-auth/sentra/internal/users"
	"github.com/sentra-auth/sentra/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	Authenticator      auth.Authenticator
	Gate               rbac.Gate
	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	AdminHandler       *rbac.AdminHandler
	PermissionsHandler *rbac.PermissionsHandler
	JobHandler         *jobs.Handler
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with Sentra defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:        params.Logger,
		Config:        params.Config,
		Authenticator: params.Authenticator,
		Metrics:       params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	r.Route("/api/auth", func(r chi.Router) {
		// Credential endpoints stay reachable without a token and carry a
		// per-IP rate limit.
		r.Group(func(r chi.Router) {
			if params.Config != nil && params.Config.LoginRateLimit > 0 {
				r.Use(httprate.LimitByIP(params.Config.LoginRateLimit, params.Config.LoginRateWindow))
			}
			params.UsersHandler.MountPublicRoutes(r)
			params.AuthHandler.MountPublicRoutes(r)
		})

		r.Group(func(r chi.Router) {
			r.Use(params.Gate.RequireAuthenticated)
			params.AuthHandler.MountProtectedRoutes(r)
			params.UsersHandler.MountProfileRoutes(r)
			r.Route("/permissions", params.PermissionsHandler.MountRoutes)
		})
	})

	r.Route("/api/admin", func(r chi.Router) {
		r.Route("/roles", func(r chi.Router) {
			r.Use(params.Gate.Require("roles"))
			params.AdminHandler.MountRoleRoutes(r)
		})
		r.Route("/elements", func(r chi.Router) {
			r.Use(params.Gate.Require("business_elements"))
			params.AdminHandler.MountElementRoutes(r)
		})
		r.Route("/rules", func(r chi.Router) {
			r.Use(params.Gate.Require("access_rules"))
			params.AdminHandler.MountRuleRoutes(r)
		})
		r.Route("/user-roles", func(r chi.Router) {
			r.Use(params.Gate.Require("user_roles"))
			params.AdminHandler.MountAssignmentRoutes(r)
		})
	})

	return r
}
