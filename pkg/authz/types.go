package authz

import (
	"context"
)

// EntityKind identifies the kind of entity an authorization decision applies to.
type EntityKind string

const (
	KindProject      EntityKind = "project"
	KindEvent        EntityKind = "event"
	KindDecision     EntityKind = "decision"
	KindDeliverable  EntityKind = "deliverable"
	KindInvitation   EntityKind = "invitation"
	KindNotification EntityKind = "notification"
)

// Valid reports whether the kind is one the policy knows about.
func (k EntityKind) Valid() bool {
	switch k {
	case KindProject, KindEvent, KindDecision, KindDeliverable, KindInvitation, KindNotification:
		return true
	}
	return false
}

// Action identifies the operation the actor is attempting.
type Action string

const (
	ActionView          Action = "view"
	ActionCreate        Action = "create"
	ActionEdit          Action = "edit"
	ActionDelete        Action = "delete"
	ActionRespond       Action = "respond"
	ActionTrackProgress Action = "track_progress"
)

// Target carries the relationship facts the policy needs to evaluate a rule
// for a single entity. Callers populate the fields relevant to the kind;
// zero values mean "no such relationship". Targets hold IDs, never loaded
// rows, so building one is cheap and the policy stays storage-agnostic.
type Target struct {
	Kind EntityKind
	ID   int64

	// Ownership chain. ProjectCreatorID is the creator of the project the
	// entity ultimately belongs to, resolved by the caller.
	ProjectID        int64
	ProjectCreatorID int64

	// Event relationships. EventID is the parent event for decisions,
	// invitations, and notifications; for events it equals ID.
	EventID     int64
	OrganizerID int64

	// Entity-level relationships.
	CreatorID         int64
	DecisionCreatorID int64
	AssigneeID        int64
	InviterID         int64
	InviteeID         int64
	RecipientID       int64

	// Standalone marks a deliverable with no parent decision.
	Standalone bool
}

// EventForMembership returns the event ID participant checks should use.
func (t Target) EventForMembership() int64 {
	if t.Kind == KindEvent {
		return t.ID
	}
	return t.EventID
}

// Decision is the outcome of a policy evaluation. Reason is set on denials
// and is safe to surface to the end user.
type Decision struct {
	Allowed bool
	Reason  string
}

// Allow is the affirmative decision.
var Allow = Decision{Allowed: true}

// Deny builds a denial with the given user-facing reason.
func Deny(reason string) Decision {
	return Decision{Allowed: false, Reason: reason}
}

// MembershipChecker answers the participation questions the policy cannot
// decide from a Target alone. The workflow store implements it.
type MembershipChecker interface {
	// IsEventParticipant reports whether the user is a participant of the event.
	IsEventParticipant(ctx context.Context, userID, eventID int64) (bool, error)

	// ParticipatesInProject reports whether the user participates in at
	// least one event under the project.
	ParticipatesInProject(ctx context.Context, userID, projectID int64) (bool, error)
}
