package audit

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/concord-hq/concord/pkg/httputil"
	"github.com/concord-hq/concord/pkg/identity"
)

// Handlers exposes the audit trail to administrators
type Handlers struct {
	store *Store
}

// NewHandlers creates new audit handlers
func NewHandlers(store *Store) *Handlers {
	return &Handlers{store: store}
}

// RegisterRoutes registers audit trail routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/audit", h.List).Methods(http.MethodGet)
	router.HandleFunc("/audit", h.Purge).Methods(http.MethodDelete)
}

func adminOrAbort(w http.ResponseWriter, r *http.Request) (*identity.User, bool) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	if !actor.IsAdmin() {
		httputil.WriteForbidden(w, "audit trail is admin only")
		return nil, false
	}
	return actor, true
}

// List handles GET /audit
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	if _, ok := adminOrAbort(w, r); !ok {
		return
	}

	page, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	var filter Filter
	filter.Action = Action(httputil.ParseQueryString(r, "action", ""))
	actorID, err := httputil.ParseQueryInt64(r, "actor_id", 0)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid actor_id")
		return
	}
	if actorID != 0 {
		filter.ActorID = &actorID
	}
	since, err := httputil.ParseQueryTime(r, "since", time.Time{})
	if err != nil {
		httputil.WriteBadRequest(w, "invalid since timestamp")
		return
	}
	if !since.IsZero() {
		filter.Since = &since
	}
	until, err := httputil.ParseQueryTime(r, "until", time.Time{})
	if err != nil {
		httputil.WriteBadRequest(w, "invalid until timestamp")
		return
	}
	if !until.IsZero() {
		filter.Until = &until
	}

	entries, err := h.store.List(r.Context(), filter, page.Limit, page.Offset)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"entries": entries})
}

// Purge handles DELETE /audit. The before parameter is required so a purge
// is always an explicit decision about a cutoff.
func (h *Handlers) Purge(w http.ResponseWriter, r *http.Request) {
	if _, ok := adminOrAbort(w, r); !ok {
		return
	}

	before, err := httputil.ParseQueryTime(r, "before", time.Time{})
	if err != nil || before.IsZero() {
		httputil.WriteBadRequest(w, "before timestamp is required")
		return
	}

	deleted, err := h.store.Purge(r.Context(), before)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"deleted": deleted})
}
