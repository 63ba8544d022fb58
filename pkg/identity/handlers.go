package identity

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/concord-hq/concord/pkg/httputil"
)

// Handlers provides HTTP handlers for the account-management API
type Handlers struct {
	service *Service
}

// NewHandlers creates new identity handlers
func NewHandlers(service *Service) *Handlers {
	return &Handlers{service: service}
}

// RegisterRoutes registers account-management routes
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/users", h.createUser).Methods("POST")
	router.HandleFunc("/users", h.listUsers).Methods("GET")
	router.HandleFunc("/users/{id:[0-9]+}", h.getUser).Methods("GET")
	router.HandleFunc("/users/{id:[0-9]+}/role", h.updateRole).Methods("PUT")
	router.HandleFunc("/users/{id:[0-9]+}/capabilities", h.listCapabilities).Methods("GET")
	router.HandleFunc("/users/{id:[0-9]+}/capabilities/{capability}", h.grantCapability).Methods("POST")
	router.HandleFunc("/users/{id:[0-9]+}/capabilities/{capability}", h.revokeCapability).Methods("DELETE")
	router.HandleFunc("/users/{id:[0-9]+}/tokens", h.issueToken).Methods("POST")
	router.HandleFunc("/users/{id:[0-9]+}/tokens", h.listTokens).Methods("GET")
	router.HandleFunc("/users/{id:[0-9]+}/tokens/{token_id:[0-9]+}", h.revokeToken).Methods("DELETE")
	router.HandleFunc("/me", h.me).Methods("GET")
}

// writeError maps identity errors onto HTTP statuses
func writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		httputil.WriteForbidden(w, err.Error())
	case errors.Is(err, ErrNotFound):
		httputil.WriteNotFoundError(w, err.Error())
	case errors.Is(err, ErrUnknownCapability), errors.Is(err, ErrValidation):
		httputil.WriteBadRequest(w, err.Error())
	default:
		httputil.WriteInternalError(w, err)
	}
}

func actorOrAbort(w http.ResponseWriter, r *http.Request) (*User, bool) {
	actor, ok := ActorFromContext(r.Context())
	if !ok {
		httputil.WriteUnauthorized(w, "authentication required")
		return nil, false
	}
	return actor, true
}

type createUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
	Role     Role   `json:"role"`
}

// createUser handles POST /users
func (h *Handlers) createUser(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}

	var req createUserRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}
	if req.Role == "" {
		req.Role = RoleProjectUser
	}

	user, err := h.service.CreateUser(r.Context(), actor, req.Username, req.Email, req.FullName, req.Role)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteCreated(w, user)
}

// listUsers handles GET /users
func (h *Handlers) listUsers(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorOrAbort(w, r); !ok {
		return
	}

	var users []*User
	var err error
	if role := r.URL.Query().Get("role"); role != "" {
		users, err = h.service.ListUsersByRole(r.Context(), Role(role))
	} else {
		users, err = h.service.ListUsers(r.Context())
	}
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"users": users,
		"count": len(users),
	})
}

// getUser handles GET /users/{id}
func (h *Handlers) getUser(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorOrAbort(w, r); !ok {
		return
	}

	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	user, err := h.service.GetUser(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteSuccess(w, user)
}

// me handles GET /me
func (h *Handlers) me(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}
	httputil.WriteSuccess(w, actor)
}

type updateRoleRequest struct {
	Role Role `json:"role"`
}

// updateRole handles PUT /users/{id}/role
func (h *Handlers) updateRole(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}

	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req updateRoleRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	if err := h.service.UpdateRole(r.Context(), actor, id, req.Role); err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

// listCapabilities handles GET /users/{id}/capabilities
func (h *Handlers) listCapabilities(w http.ResponseWriter, r *http.Request) {
	if _, ok := actorOrAbort(w, r); !ok {
		return
	}

	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	caps, err := h.service.Capabilities(r.Context(), id)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"user_id":      id,
		"capabilities": caps,
	})
}

// grantCapability handles POST /users/{id}/capabilities/{capability}
func (h *Handlers) grantCapability(w http.ResponseWriter, r *http.Request) {
	h.setCapability(w, r, true)
}

// revokeCapability handles DELETE /users/{id}/capabilities/{capability}
func (h *Handlers) revokeCapability(w http.ResponseWriter, r *http.Request) {
	h.setCapability(w, r, false)
}

func (h *Handlers) setCapability(w http.ResponseWriter, r *http.Request, enabled bool) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}

	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	capability := Capability(mux.Vars(r)["capability"])

	var err error
	if enabled {
		err = h.service.GrantCapability(r.Context(), actor, id, capability)
	} else {
		err = h.service.RevokeCapability(r.Context(), actor, id, capability)
	}
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}

type issueTokenRequest struct {
	Name string `json:"name"`
}

// issueToken handles POST /users/{id}/tokens
func (h *Handlers) issueToken(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}

	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	var req issueTokenRequest
	if !httputil.ParseJSONOrError(w, r, &req) {
		return
	}

	token, plaintext, err := h.service.IssueToken(r.Context(), actor, id, req.Name)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteCreated(w, map[string]interface{}{
		"token_id":   token.ID,
		"token":      plaintext,
		"expires_at": token.ExpiresAt,
	})
}

// listTokens handles GET /users/{id}/tokens
func (h *Handlers) listTokens(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}

	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}

	tokens, err := h.service.ListTokens(r.Context(), actor, id)
	if err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteSuccess(w, map[string]interface{}{
		"tokens": tokens,
		"count":  len(tokens),
	})
}

// revokeToken handles DELETE /users/{id}/tokens/{token_id}
func (h *Handlers) revokeToken(w http.ResponseWriter, r *http.Request) {
	actor, ok := actorOrAbort(w, r)
	if !ok {
		return
	}

	id, ok := httputil.ParsePathInt64OrError(w, r, "id")
	if !ok {
		return
	}
	tokenID, ok := httputil.ParsePathInt64OrError(w, r, "token_id")
	if !ok {
		return
	}

	if err := h.service.RevokeToken(r.Context(), actor, tokenID, id); err != nil {
		writeError(w, err)
		return
	}

	httputil.WriteNoContent(w)
}
