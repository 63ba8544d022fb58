package invitations

import (
	"time"
)

// Status is the invitation lifecycle state. Invitations start pending and
// move to accepted or declined on response; re-responding overwrites the
// stored status, there is no revoke-and-reinvite transition.
type Status string

const (
	StatusPending  Status = "pending"
	StatusAccepted Status = "accepted"
	StatusDeclined Status = "declined"
)

// Valid reports whether s is a known status.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusAccepted, StatusDeclined:
		return true
	}
	return false
}

// Invitation asks one user to join one event. The (event, invitee) pair is
// unique and the invitee never changes after creation.
type Invitation struct {
	ID          int64      `json:"id"`
	EventID     int64      `json:"event_id"`
	UserID      int64      `json:"user_id"`
	InvitedBy   int64      `json:"invited_by"`
	Status      Status     `json:"status"`
	RespondedAt *time.Time `json:"responded_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// EventSummary carries the facts about an event the invitation workflow
// needs for authorization and notification fan-out.
type EventSummary struct {
	ID               int64
	Title            string
	ProjectID        int64
	ProjectCreatorID int64
	OrganizerID      int64
}
