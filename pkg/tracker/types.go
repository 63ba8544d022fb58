package tracker

import (
	"time"
)

// Project groups events under one management-tier owner. Ownership is set at
// creation and never reassigned.
type Project struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatorID   int64     `json:"creator_id"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Event is a meeting inside a project with a half-open [start, end) time
// window. Participants is populated on detail fetches.
type Event struct {
	ID          int64     `json:"id"`
	ProjectID   int64     `json:"project_id"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Location    string    `json:"location"`
	OrganizerID int64     `json:"organizer_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Participants []UserRef `json:"participants,omitempty"`
}

// UserRef is the short user form embedded in workflow responses.
type UserRef struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	FullName string `json:"full_name"`
}

// LinkType classifies a directed edge between two events.
type LinkType string

const (
	LinkFollowUp     LinkType = "follow_up"
	LinkReference    LinkType = "reference"
	LinkContinuation LinkType = "continuation"
)

// Valid reports whether t is a known link type.
func (t LinkType) Valid() bool {
	switch t {
	case LinkFollowUp, LinkReference, LinkContinuation:
		return true
	}
	return false
}

// EventLink is a typed, directed edge between two events, unique per
// (source, target) pair.
type EventLink struct {
	FromEventID int64     `json:"from_event_id"`
	ToEventID   int64     `json:"to_event_id"`
	Type        LinkType  `json:"type"`
	CreatedAt   time.Time `json:"created_at"`
}

// Decision is an outcome recorded against an event.
type Decision struct {
	ID          int64     `json:"id"`
	EventID     int64     `json:"event_id"`
	Description string    `json:"description"`
	CreatedBy   int64     `json:"created_by"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// DeliverableStatus is the deliverable lifecycle state.
type DeliverableStatus string

const (
	StatusPending    DeliverableStatus = "pending"
	StatusInProgress DeliverableStatus = "in-progress"
	StatusCompleted  DeliverableStatus = "completed"
)

// Valid reports whether s is a known status.
func (s DeliverableStatus) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Deliverable is a unit of work, optionally spawned by a decision. A nil
// DecisionID marks it standalone.
type Deliverable struct {
	ID          int64             `json:"id"`
	DecisionID  *int64            `json:"decision_id,omitempty"`
	Title       string            `json:"title"`
	Description string            `json:"description"`
	AssigneeID  *int64            `json:"assignee_id,omitempty"`
	DueDate     *time.Time        `json:"due_date,omitempty"`
	Status      DeliverableStatus `json:"status"`
	Progress    int               `json:"progress"`
	CreatedAt   time.Time         `json:"created_at"`
	UpdatedAt   time.Time         `json:"updated_at"`
	Overdue     bool              `json:"is_overdue"`
}

// Standalone reports whether the deliverable has no parent decision.
func (d *Deliverable) Standalone() bool {
	return d.DecisionID == nil
}

// IsOverdue reports whether the deliverable is past due and not completed.
func (d *Deliverable) IsOverdue(now time.Time) bool {
	return d.DueDate != nil && d.DueDate.Before(now) && d.Status != StatusCompleted
}

// ApplyProgress sets progress and keeps status consistent at the edges:
// reaching 100 completes the deliverable, and any progress on a pending one
// starts it. Used by the quick-update path; the general edit path sets the
// fields independently.
func (d *Deliverable) ApplyProgress(progress int) {
	d.Progress = progress
	switch {
	case progress == 100:
		d.Status = StatusCompleted
	case progress > 0 && d.Status == StatusPending:
		d.Status = StatusInProgress
	}
}

// Dashboard aggregates the actor's visible workload.
type Dashboard struct {
	Projects              int64   `json:"projects"`
	Events                int64   `json:"events"`
	UpcomingEvents        int64   `json:"upcoming_events"`
	Deliverables          int64   `json:"deliverables"`
	CompletedDeliverables int64   `json:"completed_deliverables"`
	OverdueDeliverables   int64   `json:"overdue_deliverables"`
	PendingInvitations    int64   `json:"pending_invitations"`
	CompletionRate        float64 `json:"completion_rate"`
}

// WorkloadEntry is one team member's slice of a management workload report.
type WorkloadEntry struct {
	User      UserRef `json:"user"`
	Assigned  int64   `json:"assigned"`
	Completed int64   `json:"completed"`
	Overdue   int64   `json:"overdue"`
}
