package identity

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRole_Valid(t *testing.T) {
	assert.True(t, RoleAdmin.Valid())
	assert.True(t, RoleManagement.Valid())
	assert.True(t, RoleProjectUser.Valid())
	assert.False(t, Role("superuser").Valid())
	assert.False(t, Role("").Valid())
}

func TestDefaultCapabilities(t *testing.T) {
	defaults := DefaultCapabilities()

	enabled := []Capability{
		CapViewProjects,
		CapViewEvents,
		CapViewCalendar,
		CapManageDeliverables,
		CapManageInvitations,
		CapTrackProgress,
	}
	for _, cap := range enabled {
		assert.True(t, defaults.Has(cap), "expected %s enabled by default", cap)
	}

	disabled := []Capability{
		CapViewDecisions,
		CapUseTimeTracker,
		CapViewReports,
	}
	for _, cap := range disabled {
		assert.False(t, defaults.Has(cap), "expected %s disabled by default", cap)
	}
}

func TestCapabilitySet_WithWithout(t *testing.T) {
	var s CapabilitySet

	s = s.With(CapViewReports)
	assert.True(t, s.Has(CapViewReports))

	s = s.Without(CapViewReports)
	assert.False(t, s.Has(CapViewReports))

	// Unknown capabilities are no-ops and never contained
	s = s.With(Capability("can_fly"))
	assert.False(t, s.Has(Capability("can_fly")))
}

func TestCapabilitySet_List(t *testing.T) {
	var s CapabilitySet
	s = s.With(CapViewReports)
	s = s.With(CapViewProjects)

	assert.Equal(t, []Capability{CapViewProjects, CapViewReports}, s.List())
}

func TestCapabilitySet_JSON(t *testing.T) {
	t.Run("round trip", func(t *testing.T) {
		var s CapabilitySet
		s = s.With(CapViewProjects)
		s = s.With(CapViewDecisions)

		data, err := json.Marshal(s)
		require.NoError(t, err)
		assert.JSONEq(t, `["can_view_projects","can_view_decisions"]`, string(data))

		var decoded CapabilitySet
		require.NoError(t, json.Unmarshal(data, &decoded))
		assert.Equal(t, s, decoded)
	})

	t.Run("unknown name rejected", func(t *testing.T) {
		var decoded CapabilitySet
		err := json.Unmarshal([]byte(`["can_fly"]`), &decoded)
		assert.Error(t, err)
	})
}

func TestUser_HasCapability(t *testing.T) {
	tests := []struct {
		name string
		user User
		cap  Capability
		want bool
	}{
		{
			name: "admin holds everything",
			user: User{Role: RoleAdmin},
			cap:  CapViewReports,
			want: true,
		},
		{
			name: "admin does not hold unknown capability",
			user: User{Role: RoleAdmin},
			cap:  Capability("can_fly"),
			want: false,
		},
		{
			name: "project user checked against set",
			user: User{Role: RoleProjectUser, Capabilities: DefaultCapabilities()},
			cap:  CapViewEvents,
			want: true,
		},
		{
			name: "project user missing non-default capability",
			user: User{Role: RoleProjectUser, Capabilities: DefaultCapabilities()},
			cap:  CapViewReports,
			want: false,
		},
		{
			name: "management holds flags outside its set",
			user: User{Role: RoleManagement, Capabilities: DefaultCapabilities()},
			cap:  CapViewReports,
			want: true,
		},
		{
			name: "management does not hold unknown capability",
			user: User{Role: RoleManagement},
			cap:  Capability("can_fly"),
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.user.HasCapability(tt.cap))
		})
	}
}

func TestElevatedRolesHoldEveryCapability(t *testing.T) {
	users := map[string]User{
		"admin":      {Role: RoleAdmin},
		"management": {Role: RoleManagement, Capabilities: DefaultCapabilities()},
	}
	for name, user := range users {
		for _, cap := range AllCapabilities() {
			assert.True(t, user.HasCapability(cap), "%s should hold %s", name, cap)
		}
	}
}

func TestRoleHelpers(t *testing.T) {
	admin := User{Role: RoleAdmin}
	mgmt := User{Role: RoleManagement}
	pu := User{Role: RoleProjectUser}

	assert.True(t, admin.IsAdmin())
	assert.False(t, admin.IsManagement())
	assert.True(t, mgmt.IsManagement())
	assert.False(t, mgmt.IsProjectUser())
	assert.True(t, pu.IsProjectUser())
	assert.False(t, pu.IsAdmin())
}
