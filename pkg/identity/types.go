package identity

import (
	"encoding/json"
	"fmt"
	"time"
)

// Role represents the account-level role tier
type Role string

const (
	// RoleAdmin has unrestricted access to everything
	RoleAdmin Role = "admin"
	// RoleManagement can see and steer all projects and assign work
	RoleManagement Role = "management"
	// RoleProjectUser only sees work they organize, participate in, or are assigned
	RoleProjectUser Role = "project_user"
)

// Valid reports whether the role is one of the known tiers
func (r Role) Valid() bool {
	switch r {
	case RoleAdmin, RoleManagement, RoleProjectUser:
		return true
	}
	return false
}

// User represents an account
type User struct {
	ID        int64     `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email,omitempty"`
	FullName  string    `json:"full_name,omitempty"`
	Role      Role      `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Capabilities is the resolved per-user capability set
	Capabilities CapabilitySet `json:"capabilities"`
}

// IsAdmin reports whether the user is an admin
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// IsManagement reports whether the user is management
func (u *User) IsManagement() bool {
	return u.Role == RoleManagement
}

// IsProjectUser reports whether the user is a regular project user
func (u *User) IsProjectUser() bool {
	return u.Role == RoleProjectUser
}

// HasCapability reports whether the user holds a capability. Role
// supersedes the per-user flags: admin and management implicitly hold
// every capability, project users are checked against their resolved
// set. Unknown capabilities are always false.
func (u *User) HasCapability(cap Capability) bool {
	if !cap.Known() {
		return false
	}
	if u.IsAdmin() || u.IsManagement() {
		return true
	}
	return u.Capabilities.Has(cap)
}

// Capability is a per-user feature flag gating an area of the system
type Capability string

const (
	CapViewProjects       Capability = "can_view_projects"
	CapViewEvents         Capability = "can_view_events"
	CapViewDecisions      Capability = "can_view_decisions"
	CapManageDeliverables Capability = "can_manage_deliverables"
	CapManageInvitations  Capability = "can_manage_invitations"
	CapTrackProgress      Capability = "can_track_progress"
	CapViewCalendar       Capability = "can_view_calendar"
	CapUseTimeTracker     Capability = "can_use_time_tracker"
	CapViewReports        Capability = "can_view_reports"
)

// capabilityBits assigns each known capability a stable bit position
var capabilityBits = map[Capability]CapabilitySet{
	CapViewProjects:       1 << 0,
	CapViewEvents:         1 << 1,
	CapViewDecisions:      1 << 2,
	CapManageDeliverables: 1 << 3,
	CapManageInvitations:  1 << 4,
	CapTrackProgress:      1 << 5,
	CapViewCalendar:       1 << 6,
	CapUseTimeTracker:     1 << 7,
	CapViewReports:        1 << 8,
}

// AllCapabilities lists every known capability in display order
func AllCapabilities() []Capability {
	return []Capability{
		CapViewProjects,
		CapViewEvents,
		CapViewDecisions,
		CapManageDeliverables,
		CapManageInvitations,
		CapTrackProgress,
		CapViewCalendar,
		CapUseTimeTracker,
		CapViewReports,
	}
}

// Known reports whether the capability is one of the enumerated flags
func (c Capability) Known() bool {
	_, ok := capabilityBits[c]
	return ok
}

// CapabilitySet is a bit-set of capabilities
type CapabilitySet uint16

// DefaultCapabilities returns the set granted to new accounts
func DefaultCapabilities() CapabilitySet {
	var s CapabilitySet
	s = s.With(CapViewProjects)
	s = s.With(CapViewEvents)
	s = s.With(CapViewCalendar)
	s = s.With(CapManageDeliverables)
	s = s.With(CapManageInvitations)
	s = s.With(CapTrackProgress)
	return s
}

// Has reports whether the set contains the capability.
// Unknown capabilities are never contained.
func (s CapabilitySet) Has(cap Capability) bool {
	bit, ok := capabilityBits[cap]
	if !ok {
		return false
	}
	return s&bit != 0
}

// With returns a copy of the set with the capability enabled
func (s CapabilitySet) With(cap Capability) CapabilitySet {
	bit, ok := capabilityBits[cap]
	if !ok {
		return s
	}
	return s | bit
}

// Without returns a copy of the set with the capability disabled
func (s CapabilitySet) Without(cap Capability) CapabilitySet {
	bit, ok := capabilityBits[cap]
	if !ok {
		return s
	}
	return s &^ bit
}

// List returns the enabled capabilities in display order
func (s CapabilitySet) List() []Capability {
	var caps []Capability
	for _, cap := range AllCapabilities() {
		if s.Has(cap) {
			caps = append(caps, cap)
		}
	}
	return caps
}

// MarshalJSON renders the set as a list of capability names
func (s CapabilitySet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.List())
}

// UnmarshalJSON parses a list of capability names. Unknown names are
// rejected so a typo cannot silently grant nothing.
func (s *CapabilitySet) UnmarshalJSON(data []byte) error {
	var names []Capability
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}

	var set CapabilitySet
	for _, cap := range names {
		if !cap.Known() {
			return fmt.Errorf("unknown capability: %s", cap)
		}
		set = set.With(cap)
	}
	*s = set
	return nil
}

// APIToken represents an issued API token. The plaintext token is
// returned exactly once at creation; only the hash is stored.
type APIToken struct {
	ID         int64      `json:"id"`
	UserID     int64      `json:"user_id"`
	TokenHash  string     `json:"-"` // Never expose hash
	Name       string     `json:"name"`
	ExpiresAt  time.Time  `json:"expires_at"`
	CreatedAt  time.Time  `json:"created_at"`
	LastUsedAt *time.Time `json:"last_used_at,omitempty"`
}
