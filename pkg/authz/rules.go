package authz

import (
	"context"
	"fmt"

	"github.com/concord-hq/concord/pkg/identity"
)

// rule is a single authorization predicate. Rules are composed with anyOf
// and allOf into the per-(kind, action) table in policy.go. A rule returns an error
// only when a membership lookup fails; a plain "no" is (false, nil).
type rule func(ctx context.Context, actor *identity.User, t Target, m MembershipChecker) (bool, error)

// anyOf allows when at least one of the given rules allows.
func anyOf(rules ...rule) rule {
	return func(ctx context.Context, actor *identity.User, t Target, m MembershipChecker) (bool, error) {
		for _, r := range rules {
			ok, err := r(ctx, actor, t, m)
			if err != nil {
				return false, err
			}
			if ok {
				return true, nil
			}
		}
		return false, nil
	}
}

// allOf allows only when every one of the given rules allows.
func allOf(rules ...rule) rule {
	return func(ctx context.Context, actor *identity.User, t Target, m MembershipChecker) (bool, error) {
		for _, r := range rules {
			ok, err := r(ctx, actor, t, m)
			if err != nil {
				return false, err
			}
			if !ok {
				return false, nil
			}
		}
		return true, nil
	}
}

// isAdmin allows admins.
func isAdmin(_ context.Context, actor *identity.User, _ Target, _ MembershipChecker) (bool, error) {
	return actor.IsAdmin(), nil
}

// anyAuthenticated allows every actor. The policy is only ever consulted
// with an authenticated actor, so this is "any signed-in user".
func anyAuthenticated(_ context.Context, _ *identity.User, _ Target, _ MembershipChecker) (bool, error) {
	return true, nil
}

// isManagementTier allows admins and management.
func isManagementTier(_ context.Context, actor *identity.User, _ Target, _ MembershipChecker) (bool, error) {
	return actor.IsAdmin() || actor.IsManagement(), nil
}

// ownsProject allows a management actor who created the target's project.
func ownsProject(_ context.Context, actor *identity.User, t Target, _ MembershipChecker) (bool, error) {
	return actor.IsManagement() && t.ProjectCreatorID == actor.ID, nil
}

// isOrganizer allows the event organizer.
func isOrganizer(_ context.Context, actor *identity.User, t Target, _ MembershipChecker) (bool, error) {
	return t.OrganizerID == actor.ID, nil
}

// isCreator allows the entity's creator.
func isCreator(_ context.Context, actor *identity.User, t Target, _ MembershipChecker) (bool, error) {
	return t.CreatorID == actor.ID, nil
}

// isDecisionCreator allows a management actor who created the deliverable's
// parent decision.
func isDecisionCreator(_ context.Context, actor *identity.User, t Target, _ MembershipChecker) (bool, error) {
	return actor.IsManagement() && !t.Standalone && t.DecisionCreatorID == actor.ID, nil
}

// isAssignee allows the deliverable's assignee.
func isAssignee(_ context.Context, actor *identity.User, t Target, _ MembershipChecker) (bool, error) {
	return t.AssigneeID == actor.ID, nil
}

// isInvitee allows the invitation's invitee.
func isInvitee(_ context.Context, actor *identity.User, t Target, _ MembershipChecker) (bool, error) {
	return t.InviteeID == actor.ID, nil
}

// isInviter allows the invitation's inviter.
func isInviter(_ context.Context, actor *identity.User, t Target, _ MembershipChecker) (bool, error) {
	return t.InviterID == actor.ID, nil
}

// isRecipient allows the notification's recipient.
func isRecipient(_ context.Context, actor *identity.User, t Target, _ MembershipChecker) (bool, error) {
	return t.RecipientID == actor.ID, nil
}

// isStandaloneManagement allows any management actor when the deliverable
// has no parent decision. Standalone deliverables are manageable by the
// whole management tier, not just the owning chain.
func isStandaloneManagement(_ context.Context, actor *identity.User, t Target, _ MembershipChecker) (bool, error) {
	return actor.IsManagement() && t.Standalone, nil
}

// isParticipant allows a participant of the target's event. Looks up
// membership through the checker.
func isParticipant(ctx context.Context, actor *identity.User, t Target, m MembershipChecker) (bool, error) {
	eventID := t.EventForMembership()
	if eventID == 0 {
		return false, nil
	}
	ok, err := m.IsEventParticipant(ctx, actor.ID, eventID)
	if err != nil {
		return false, fmt.Errorf("checking event participation: %w", err)
	}
	return ok, nil
}

// projectUserOnly gates a rule to project_user actors. Management access to
// projects runs through the ownership chain, never through participation.
func projectUserOnly(r rule) rule {
	return func(ctx context.Context, actor *identity.User, t Target, m MembershipChecker) (bool, error) {
		if !actor.IsProjectUser() {
			return false, nil
		}
		return r(ctx, actor, t, m)
	}
}

// participatesInProject allows an actor who participates in at least one
// event under the target project.
func participatesInProject(ctx context.Context, actor *identity.User, t Target, m MembershipChecker) (bool, error) {
	projectID := t.ProjectID
	if t.Kind == KindProject {
		projectID = t.ID
	}
	if projectID == 0 {
		return false, nil
	}
	ok, err := m.ParticipatesInProject(ctx, actor.ID, projectID)
	if err != nil {
		return false, fmt.Errorf("checking project participation: %w", err)
	}
	return ok, nil
}
