package tracker

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/concord-hq/concord/pkg/httputil"
	"github.com/concord-hq/concord/pkg/identity"
)

// Handlers exposes the project, event, decision, and deliverable HTTP API.
type Handlers struct {
	service *Service
}

// NewHandlers returns HTTP handlers over the service.
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes attaches the tracker routes to the router.
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/projects", h.CreateProject).Methods(http.MethodPost)
	router.HandleFunc("/projects", h.ListProjects).Methods(http.MethodGet)
	router.HandleFunc("/projects/{id:[0-9]+}", h.GetProject).Methods(http.MethodGet)
	router.HandleFunc("/projects/{id:[0-9]+}", h.UpdateProject).Methods(http.MethodPut)
	router.HandleFunc("/projects/{id:[0-9]+}", h.DeleteProject).Methods(http.MethodDelete)

	router.HandleFunc("/events", h.CreateEvent).Methods(http.MethodPost)
	router.HandleFunc("/events", h.ListEvents).Methods(http.MethodGet)
	router.HandleFunc("/events/{id:[0-9]+}", h.GetEvent).Methods(http.MethodGet)
	router.HandleFunc("/events/{id:[0-9]+}", h.UpdateEvent).Methods(http.MethodPut)
	router.HandleFunc("/events/{id:[0-9]+}", h.DeleteEvent).Methods(http.MethodDelete)
	router.HandleFunc("/events/{id:[0-9]+}/participants", h.AddParticipant).Methods(http.MethodPost)
	router.HandleFunc("/events/{id:[0-9]+}/participants/{userID:[0-9]+}", h.RemoveParticipant).Methods(http.MethodDelete)
	router.HandleFunc("/events/{id:[0-9]+}/links", h.LinkEvents).Methods(http.MethodPost)
	router.HandleFunc("/events/{id:[0-9]+}/links", h.ListLinks).Methods(http.MethodGet)
	router.HandleFunc("/events/{id:[0-9]+}/links/{toID:[0-9]+}", h.UnlinkEvents).Methods(http.MethodDelete)
	router.HandleFunc("/events/{id:[0-9]+}/conflicts", h.Conflicts).Methods(http.MethodGet)
	router.HandleFunc("/events/{id:[0-9]+}/eligible-invitees", h.EligibleInvitees).Methods(http.MethodGet)
	router.HandleFunc("/events/{id:[0-9]+}/decisions", h.CreateDecisions).Methods(http.MethodPost)

	router.HandleFunc("/decisions", h.ListDecisions).Methods(http.MethodGet)
	router.HandleFunc("/decisions/{id:[0-9]+}", h.GetDecision).Methods(http.MethodGet)
	router.HandleFunc("/decisions/{id:[0-9]+}", h.UpdateDecision).Methods(http.MethodPut)
	router.HandleFunc("/decisions/{id:[0-9]+}", h.DeleteDecision).Methods(http.MethodDelete)

	router.HandleFunc("/deliverables", h.CreateDeliverable).Methods(http.MethodPost)
	router.HandleFunc("/deliverables", h.ListDeliverables).Methods(http.MethodGet)
	router.HandleFunc("/deliverables/{id:[0-9]+}", h.GetDeliverable).Methods(http.MethodGet)
	router.HandleFunc("/deliverables/{id:[0-9]+}", h.UpdateDeliverable).Methods(http.MethodPut)
	router.HandleFunc("/deliverables/{id:[0-9]+}", h.DeleteDeliverable).Methods(http.MethodDelete)
	router.HandleFunc("/deliverables/{id:[0-9]+}/progress", h.UpdateProgress).Methods(http.MethodPost)

	router.HandleFunc("/calendar", h.ListEvents).Methods(http.MethodGet)

	router.HandleFunc("/dashboard", h.Dashboard).Methods(http.MethodGet)
	router.HandleFunc("/reports/workload", h.Workload).Methods(http.MethodGet)
	router.HandleFunc("/users/assignable", h.AssignableUsers).Methods(http.MethodGet)
}

func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, ErrValidation):
		httputil.WriteBadRequest(w, err.Error())
	case errors.Is(err, ErrConflict):
		httputil.WriteConflict(w, err.Error())
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

// --- projects ---

// CreateProject handles POST /projects.
func (h *Handlers) CreateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	var in CreateProjectInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	project, err := h.service.CreateProject(r.Context(), actor, in)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteCreated(w, project)
}

// ListProjects handles GET /projects.
func (h *Handlers) ListProjects(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	page, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	projects, err := h.service.ListProjects(r.Context(), actor, page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"projects": projects})
}

// GetProject handles GET /projects/{id}.
func (h *Handlers) GetProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	project, err := h.service.GetProject(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

// UpdateProject handles PUT /projects/{id}.
func (h *Handlers) UpdateProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var in UpdateProjectInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	project, err := h.service.UpdateProject(r.Context(), actor, id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, project)
}

// DeleteProject handles DELETE /projects/{id}.
func (h *Handlers) DeleteProject(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteProject(r.Context(), actor, id); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// --- events ---

type eventResponse struct {
	Event     *Event   `json:"event"`
	Conflicts []*Event `json:"conflicts"`
}

// CreateEvent handles POST /events. Schedule conflicts come back alongside
// the created event; they do not block creation.
func (h *Handlers) CreateEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	var in CreateEventInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	event, conflicts, err := h.service.CreateEvent(r.Context(), actor, in)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteCreated(w, eventResponse{Event: event, Conflicts: conflicts})
}

// ListEvents handles GET /events with optional project_id, from, to filters.
func (h *Handlers) ListEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	page, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	var filter EventFilter
	if filter.ProjectID, err = httputil.ParseQueryInt64(r, "project_id", 0); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	from, err := httputil.ParseQueryTime(r, "from", time.Time{})
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	to, err := httputil.ParseQueryTime(r, "to", time.Time{})
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if !from.IsZero() {
		filter.From = &from
	}
	if !to.IsZero() {
		filter.To = &to
	}

	events, err := h.service.ListEvents(r.Context(), actor, filter, page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"events": events})
}

// GetEvent handles GET /events/{id}.
func (h *Handlers) GetEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	event, err := h.service.GetEvent(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, event)
}

// UpdateEvent handles PUT /events/{id}.
func (h *Handlers) UpdateEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var in UpdateEventInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	event, conflicts, err := h.service.UpdateEvent(r.Context(), actor, id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, eventResponse{Event: event, Conflicts: conflicts})
}

// DeleteEvent handles DELETE /events/{id}.
func (h *Handlers) DeleteEvent(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteEvent(r.Context(), actor, id); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// --- participants ---

type participantRequest struct {
	UserID int64 `json:"user_id"`
}

// AddParticipant handles POST /events/{id}/participants.
func (h *Handlers) AddParticipant(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	eventID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req participantRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if err := h.service.AddParticipant(r.Context(), actor, eventID, req.UserID); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// RemoveParticipant handles DELETE /events/{id}/participants/{userID}.
func (h *Handlers) RemoveParticipant(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	eventID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	userID, ok := httputil.ParsePathInt64OrError(w, r, "userID")
	if !ok {
		return
	}
	if err := h.service.RemoveParticipant(r.Context(), actor, eventID, userID); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// --- links ---

type linkRequest struct {
	ToEventID int64    `json:"to_event_id"`
	LinkType  LinkType `json:"link_type"`
}

// LinkEvents handles POST /events/{id}/links.
func (h *Handlers) LinkEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	fromID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req linkRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	link, created, err := h.service.LinkEvents(r.Context(), actor, fromID, req.ToEventID, req.LinkType)
	if err != nil {
		writeError(w, err)
		return
	}
	if created {
		httputil.WriteCreated(w, link)
		return
	}
	httputil.WriteSuccess(w, link)
}

// ListLinks handles GET /events/{id}/links.
func (h *Handlers) ListLinks(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	eventID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	outgoing, incoming, err := h.service.ListLinks(r.Context(), actor, eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{
		"outgoing": outgoing,
		"incoming": incoming,
	})
}

// UnlinkEvents handles DELETE /events/{id}/links/{toID}.
func (h *Handlers) UnlinkEvents(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	fromID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	toID, ok := httputil.ParsePathInt64OrError(w, r, "toID")
	if !ok {
		return
	}
	if err := h.service.UnlinkEvents(r.Context(), actor, fromID, toID); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// Conflicts handles GET /events/{id}/conflicts.
func (h *Handlers) Conflicts(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	eventID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	conflicts, err := h.service.Conflicts(r.Context(), actor, eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"conflicts": conflicts})
}

// EligibleInvitees handles GET /events/{id}/eligible-invitees.
func (h *Handlers) EligibleInvitees(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	eventID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	users, err := h.service.EligibleInvitees(r.Context(), actor, eventID)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"users": users})
}

// --- decisions ---

type createDecisionsRequest struct {
	Descriptions []string `json:"descriptions"`
}

type updateDecisionRequest struct {
	Description string `json:"description"`
}

// CreateDecisions handles POST /events/{id}/decisions, accepting one or more
// descriptions in a single request.
func (h *Handlers) CreateDecisions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	eventID, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req createDecisionsRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	decisions, err := h.service.CreateDecisions(r.Context(), actor, eventID, req.Descriptions)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteCreated(w, map[string]interface{}{"decisions": decisions})
}

// ListDecisions handles GET /decisions with an optional event_id filter.
func (h *Handlers) ListDecisions(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	page, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	eventID, err := httputil.ParseQueryInt64(r, "event_id", 0)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	decisions, err := h.service.ListDecisions(r.Context(), actor, eventID, page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"decisions": decisions})
}

// GetDecision handles GET /decisions/{id}.
func (h *Handlers) GetDecision(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	decision, err := h.service.GetDecision(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, decision)
}

// UpdateDecision handles PUT /decisions/{id}.
func (h *Handlers) UpdateDecision(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req updateDecisionRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	decision, err := h.service.UpdateDecision(r.Context(), actor, id, req.Description)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, decision)
}

// DeleteDecision handles DELETE /decisions/{id}.
func (h *Handlers) DeleteDecision(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteDecision(r.Context(), actor, id); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// --- deliverables ---

type progressRequest struct {
	Progress int `json:"progress"`
}

// CreateDeliverable handles POST /deliverables.
func (h *Handlers) CreateDeliverable(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	var in CreateDeliverableInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	deliverable, err := h.service.CreateDeliverable(r.Context(), actor, in)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteCreated(w, deliverable)
}

// ListDeliverables handles GET /deliverables with optional status,
// assignee_id, decision_id, and overdue filters.
func (h *Handlers) ListDeliverables(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	page, err := httputil.ParsePagination(r)
	if err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	var filter DeliverableFilter
	filter.Status = DeliverableStatus(httputil.ParseQueryString(r, "status", ""))
	if filter.AssigneeID, err = httputil.ParseQueryInt64(r, "assignee_id", 0); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if filter.DecisionID, err = httputil.ParseQueryInt64(r, "decision_id", 0); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}
	if filter.OverdueOnly, err = httputil.ParseQueryBool(r, "overdue", false); err != nil {
		httputil.WriteBadRequest(w, err.Error())
		return
	}

	deliverables, err := h.service.ListDeliverables(r.Context(), actor, filter, page.Limit, page.Offset)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"deliverables": deliverables})
}

// GetDeliverable handles GET /deliverables/{id}.
func (h *Handlers) GetDeliverable(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	deliverable, err := h.service.GetDeliverable(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, deliverable)
}

// UpdateDeliverable handles PUT /deliverables/{id}.
func (h *Handlers) UpdateDeliverable(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var in UpdateDeliverableInput
	if !httputil.ParseJSONOrError(w, r, &in) {
		return
	}
	deliverable, err := h.service.UpdateDeliverable(r.Context(), actor, id, in)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, deliverable)
}

// UpdateProgress handles POST /deliverables/{id}/progress.
func (h *Handlers) UpdateProgress(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	var req progressRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	deliverable, err := h.service.UpdateProgress(r.Context(), actor, id, req.Progress)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, deliverable)
}

// DeleteDeliverable handles DELETE /deliverables/{id}.
func (h *Handlers) DeleteDeliverable(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	if err := h.service.DeleteDeliverable(r.Context(), actor, id); err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteNoContent(w)
}

// --- aggregates ---

// Dashboard handles GET /dashboard.
func (h *Handlers) Dashboard(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	dashboard, err := h.service.Dashboard(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, dashboard)
}

// Workload handles GET /reports/workload.
func (h *Handlers) Workload(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	entries, err := h.service.Workload(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"workload": entries})
}

// AssignableUsers handles GET /users/assignable.
func (h *Handlers) AssignableUsers(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	users, err := h.service.AssignableUsers(r.Context(), actor)
	if err != nil {
		writeError(w, err)
		return
	}
	httputil.WriteSuccess(w, map[string]interface{}{"users": users})
}
