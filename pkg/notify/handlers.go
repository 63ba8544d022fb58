package notify

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/concord-hq/concord/pkg/httputil"
	"github.com/concord-hq/concord/pkg/identity"
)

// Handlers exposes the notification HTTP API. Every route operates on the
// authenticated actor's own notifications; recipient scoping is baked into
// the queries.
type Handlers struct {
	service *Service
}

// NewHandlers returns HTTP handlers over the service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes attaches the notification routes to the router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/notifications", h.List).Methods(http.MethodGet)
	router.HandleFunc("/notifications/unread-count", h.UnreadCount).Methods(http.MethodGet)
	router.HandleFunc("/notifications/read-all", h.MarkAllRead).Methods(http.MethodPost)
	router.HandleFunc("/notifications/{id:[0-9]+}/read", h.MarkRead).Methods(http.MethodPost)
	router.HandleFunc("/notifications/{id:[0-9]+}", h.Delete).Methods(http.MethodDelete)
}

// List handles GET /notifications.
func (h *Handlers) List(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	unreadOnly, err := httputil.ParseQueryBool(r, "unread", false)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid unread parameter")
		return
	}
	page, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid pagination parameters")
		return
	}

	notifications, err := h.service.List(r.Context(), actor.ID, unreadOnly, page.Limit, page.Offset)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	if notifications == nil {
		notifications = []*Notification{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"notifications": notifications,
		"limit":         page.Limit,
		"offset":        page.Offset,
	})
}

// UnreadCount handles GET /notifications/unread-count.
func (h *Handlers) UnreadCount(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	count, err := h.service.UnreadCount(r.Context(), actor.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"unread": count})
}

// MarkRead handles POST /notifications/{id}/read.
func (h *Handlers) MarkRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.MarkRead(r.Context(), id, actor.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "notification not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// MarkAllRead handles POST /notifications/read-all.
func (h *Handlers) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}

	count, err := h.service.MarkAllRead(r.Context(), actor.ID)
	if err != nil {
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]int64{"marked_read": count})
}

// Delete handles DELETE /notifications/{id}.
func (h *Handlers) Delete(w http.ResponseWriter, r *http.Request) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), id, actor.ID); err != nil {
		if errors.Is(err, ErrNotFound) {
			httputil.WriteNotFoundError(w, "notification not found")
			return
		}
		httputil.WriteInternalError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
