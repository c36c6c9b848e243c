package access

import (
	"log/slog"
	"net/http"

	"github.com/chalkboard-sms/chalkboard/internal/platform/httpx"
	"github.com/chalkboard-sms/chalkboard/internal/registry"
	"github.com/chalkboard-sms/chalkboard/internal/shared"
)

// Middleware is the single authorization interceptor: it canonicalizes the
// caller's school identifier, runs the permission decision, and rewrites the
// request identity with the canonical code for downstream handlers.
type Middleware struct {
	Registry *registry.Service
	Resolver *Resolver
	Logger   *slog.Logger
}

// Require gates a route on one permission key.
func (m Middleware) Require(key string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := shared.IdentityFromContext(r.Context())
			if !ok || identity.Role == "" {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "missing caller identity")
				return
			}

			code := identity.School
			if identity.Role != RoleSuperadmin || code != "" {
				resolved, err := m.Registry.Resolve(r.Context(), code)
				if err != nil {
					httpx.RespondError(w, err)
					return
				}
				code = resolved
			}

			allowed, err := m.Resolver.IsAllowed(r.Context(), identity.Role, code, key)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("access check",
						slog.String("role", identity.Role),
						slog.String("school", code),
						slog.String("permission", key),
						slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if !allowed {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "permission denied")
				return
			}

			identity.School = code
			ctx := shared.ContextWithIdentity(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
