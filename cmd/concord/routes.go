package main

import (
	"net/http"
	"strings"

	"github.com/gorilla/mux"

	"github.com/concord-hq/concord/pkg/audit"
	"github.com/concord-hq/concord/pkg/authz"
	"github.com/concord-hq/concord/pkg/httputil"
	"github.com/concord-hq/concord/pkg/identity"
	"github.com/concord-hq/concord/pkg/invitations"
	"github.com/concord-hq/concord/pkg/middleware"
	"github.com/concord-hq/concord/pkg/notify"
	"github.com/concord-hq/concord/pkg/observability"
	"github.com/concord-hq/concord/pkg/tracker"
)

type routerDeps struct {
	logger         *observability.Logger
	metrics        *observability.Metrics
	metricsEnabled bool
	authn          *middleware.Authenticator
	limit          mux.MiddlewareFunc
	identities     *identity.Service
	identityH      *identity.Handlers
	trackerH       *tracker.Handlers
	invitationH    *invitations.Handlers
	notifyH        *notify.Handlers
	auditRecorder  *audit.Recorder
	auditH         *audit.Handlers
}

// buildRouter assembles the full HTTP surface. Request ID, logging and
// metrics run for every request; authentication, rate limiting and
// capability gates apply under /api/v1 only.
func buildRouter(d routerDeps) *mux.Router {
	router := mux.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Logging(d.logger))
	if d.metricsEnabled {
		router.Use(middleware.Metrics(d.metrics))
	}

	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(d.authn.Middleware)
	if d.limit != nil {
		api.Use(d.limit)
	}
	api.Use(capabilityGate(d.identities))
	if d.auditRecorder != nil {
		api.Use(d.auditRecorder.Middleware)
	}

	d.identityH.RegisterRoutes(api)
	d.trackerH.RegisterRoutes(api)
	d.invitationH.RegisterRoutes(api)
	d.notifyH.RegisterRoutes(api)
	if d.auditH != nil {
		d.auditH.RegisterRoutes(api)
	}

	return router
}

// gateRules map feature areas onto the capability that unlocks them.
// First prefix+suffix match wins; paths with no entry pass ungated and
// rely on the policy layer alone. Progress quick-updates come before the
// general deliverables entry so assignees without the manage flag can
// still report progress.
var gateRules = []struct {
	prefix     string
	suffix     string
	capability identity.Capability
}{
	{prefix: "/api/v1/deliverables/", suffix: "/progress", capability: identity.CapTrackProgress},
	{prefix: "/api/v1/deliverables", capability: identity.CapManageDeliverables},
	{prefix: "/api/v1/projects", capability: identity.CapViewProjects},
	{prefix: "/api/v1/calendar", capability: identity.CapViewCalendar},
	{prefix: "/api/v1/reports", capability: identity.CapViewReports},
	{prefix: "/api/v1/decisions", capability: identity.CapViewDecisions},
	{prefix: "/api/v1/events/", suffix: "/decisions", capability: identity.CapViewDecisions},
	{prefix: "/api/v1/events/", suffix: "/invitations", capability: identity.CapManageInvitations},
	{prefix: "/api/v1/events/", suffix: "/eligible-invitees", capability: identity.CapManageInvitations},
	{prefix: "/api/v1/events", capability: identity.CapViewEvents},
}

func gateFor(path string) (identity.Capability, bool) {
	for _, rule := range gateRules {
		if strings.HasPrefix(path, rule.prefix) && strings.HasSuffix(path, rule.suffix) {
			return rule.capability, true
		}
	}
	return "", false
}

// capabilityGate enforces per-area capability flags after authentication.
func capabilityGate(checker authz.CapabilityChecker) mux.MiddlewareFunc {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			capability, gated := gateFor(r.URL.Path)
			if !gated {
				next.ServeHTTP(w, r)
				return
			}
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
