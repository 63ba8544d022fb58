package invitations

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/concord-hq/concord/pkg/httputil"
	"github.com/concord-hq/concord/pkg/identity"
)

// Handlers exposes the invitation HTTP API.
type Handlers struct {
	service *Service
}

// NewHandlers returns HTTP handlers over the service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes attaches the invitation routes to the router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/invitations", h.ListMine).Methods(http.MethodGet)
	router.HandleFunc("/invitations/{id:[0-9]+}/respond", h.Respond).Methods(http.MethodPost)
	router.HandleFunc("/invitations/{id:[0-9]+}", h.Revoke).Methods(http.MethodDelete)
	router.HandleFunc("/events/{id:[0-9]+}/invitations", h.Invite).Methods(http.MethodPost)
	router.HandleFunc("/events/{id:[0-9]+}/invitations", h.ListForEvent).Methods(http.MethodGet)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, ErrValidation):
		httputil.WriteBadRequest(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}

func actorOrAbort(w http.ResponseWriter, r *http.Request) (*identity.User, bool) {
	actor, ok := identity.ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	return actor, true
}

type inviteRequest struct {
	UserID int64 `json:"user_id"`
}

// Invite handles POST /events/{id}/invitations.
func (h *Handlers) Invite(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	eventID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req inviteRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	inv, created, err := h.service.Invite(r.Context(), actor, eventID, req.UserID)
	if err != nil {
		writeError(w, err)
		return
	}
	if created {
		httputil.WriteCreated(w, inv)
		return
	}
	httputil.WriteSuccess(w, inv)
}

type respondRequest struct {
	Response Status `json:"response"`
}

// Respond handles POST /invitations/{id}/respond.
func (h *Handlers) Respond(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req respondRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	inv, err := h.service.Respond(r.Context(), actor, id, req.Response)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, inv)
}

// ListMine handles GET /invitations.
func (h *Handlers) ListMine(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	page, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteBadRequest(w, "invalid pagination parameters")
		return
	}
	status := Status(httputil.ParseQueryString(r, "status", ""))

	invitations, err := h.service.ListMine(r.Context(), actor, status, page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	if invitations == nil {
		invitations = []*Invitation{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"invitations": invitations,
		"limit":       page.Limit,
		"offset":      page.Offset,
	})
}

// ListForEvent handles GET /events/{id}/invitations.
func (h *Handlers) ListForEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	eventID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	invitations, err := h.service.ListForEvent(r.Context(), actor, eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	if invitations == nil {
		invitations = []*Invitation{}
	}
	httputil.WriteSuccess(w, map[string]interface{}{"invitations": invitations})
}

// Revoke handles DELETE /invitations/{id}.
func (h *Handlers) Revoke(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	if err := h.service.Revoke(r.Context(), actor, id); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}
