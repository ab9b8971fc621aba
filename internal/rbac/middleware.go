package rbac

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/netpanel/netpanel/internal/platform/httpx"
	"github.com/netpanel/netpanel/internal/shared"
)

// Middleware wires authorization checks for HTTP handlers. Requests without
// an authenticated principal are rejected outright.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// RequireAny ensures the current user holds at least one of the actions on
// the resource.
func (m Middleware) RequireAny(resource string, actions ...string) func(http.Handler) http.Handler {
	return m.require(resource, actions, m.Resolver.CheckAny)
}

// RequireAll ensures the current user holds every listed action on the
// resource.
func (m Middleware) RequireAll(resource string, actions ...string) func(http.Handler) http.Handler {
	return m.require(resource, actions, m.Resolver.CheckAll)
}

type checkFunc func(ctx context.Context, userID int64, resource string, actions []string) (bool, error)

func (m Middleware) require(resource string, actions []string, check checkFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, ok := shared.PrincipalFromContext(r.Context())
			if !ok {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			allowed, err := check(r.Context(), userID, resource, actions)
			if err != nil {
				if m.Logger != nil {
					m.Logger.Error("authorization check", slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			if !allowed {
				httpx.Problem(w, http.StatusForbidden, "Forbidden", "")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
