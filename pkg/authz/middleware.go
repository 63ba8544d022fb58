package authz

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/concord-hq/concord/pkg/httputil"
	"github.com/concord-hq/concord/pkg/identity"
)

// CapabilityChecker is the slice of the identity service the middleware needs.
type CapabilityChecker interface {
	CheckCapability(user *identity.User, capability identity.Capability) bool
}

// RequireCapability gates a route subtree on a named capability. The actor
// must already be on the request context; requests without one get 401,
// requests without the capability get 403.
func RequireCapability(checker CapabilityChecker, capability identity.Capability) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := identity.ActorFromContext(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			if !checker.CheckCapability(actor, capability) {
				httputil.WriteForbidden(w, "missing capability: "+string(capability))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// RequireRole gates a route subtree on a minimum role tier. Admin passes
// every gate; management passes the management gate.
func RequireRole(role identity.Role) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := identity.ActorFromContext(r.Context())
			if !ok {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}
			allowed := actor.IsAdmin()
			switch role {
			case identity.RoleManagement:
				allowed = allowed || actor.IsManagement()
			case identity.RoleProjectUser:
				allowed = true
			}
			if !allowed {
				httputil.WriteForbidden(w, "insufficient role")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
