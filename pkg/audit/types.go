package audit

import "time"

// Action categorizes what kind of change an entry records
type Action string

const (
	ActionCreate Action = "create"
	ActionUpdate Action = "update"
	ActionDelete Action = "delete"
)

// ActionForMethod maps an HTTP method onto an audit action. Read methods
// map to the empty action and are not recorded.
func ActionForMethod(method string) Action {
	switch method {
	case "POST":
		return ActionCreate
	case "PUT", "PATCH":
		return ActionUpdate
	case "DELETE":
		return ActionDelete
	default:
		return ""
	}
}

// Entry is one row in the audit trail. ActorID is nil when the actor's
// account has since been deleted.
type Entry struct {
	ID         int64     `json:"id"`
	ActorID    *int64    `json:"actor_id,omitempty"`
	Action     Action    `json:"action"`
	Method     string    `json:"method"`
	Path       string    `json:"path"`
	StatusCode int       `json:"status_code"`
	RequestID  string    `json:"request_id,omitempty"`
	RemoteAddr string    `json:"remote_addr,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// Filter narrows an audit trail listing
type Filter struct {
	ActorID *int64
	Action  Action
	Since   *time.Time
	Until   *time.Time
}
