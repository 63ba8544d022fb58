package notify

import (
	"time"
)

// Type tags a notification with the workflow transition that produced it.
type Type string

const (
	TypeEventInvitation     Type = "event_invitation"
	TypeInvitationResponse  Type = "invitation_response"
	TypeEventUpdate         Type = "event_update"
	TypeDecisionCreated     Type = "decision_created"
	TypeDeliverableAssigned Type = "deliverable_assigned"
	TypeDeliverableDue      Type = "deliverable_due"
	TypeSystem              Type = "system"
)

// Valid reports whether the type is one of the known tags.
func (t Type) Valid() bool {
	switch t {
	case TypeEventInvitation, TypeInvitationResponse, TypeEventUpdate,
		TypeDecisionCreated, TypeDeliverableAssigned, TypeDeliverableDue, TypeSystem:
		return true
	}
	return false
}

// Notification is a record addressed to exactly one recipient. The optional
// references point at whichever entity triggered it.
type Notification struct {
	ID            int64      `json:"id"`
	UserID        int64      `json:"user_id"`
	Type          Type       `json:"type"`
	Message       string     `json:"message"`
	EventID       *int64     `json:"event_id,omitempty"`
	DecisionID    *int64     `json:"decision_id,omitempty"`
	DeliverableID *int64     `json:"deliverable_id,omitempty"`
	InvitationID  *int64     `json:"invitation_id,omitempty"`
	Read          bool       `json:"read"`
	CreatedAt     time.Time  `json:"created_at"`
}

// DueDeliverable is a sweep candidate: an incomplete deliverable whose due
// date falls inside the reminder window and that has not been reminded today.
type DueDeliverable struct {
	ID         int64
	Title      string
	AssigneeID int64
	DueDate    time.Time
}
