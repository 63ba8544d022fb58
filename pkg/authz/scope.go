package authz

import (
	"context"
	"fmt"

	"github.com/concord-hq/concord/pkg/identity"
)

// Predicate is a visibility filter for list queries. Where is a SQL fragment
// over the entity's base table (placeholders numbered from the firstArg given
// to Scope) and Args are its bind values. Matches evaluates the same filter
// in memory against a Target, which lets tests prove the list filter and the
// single-entity view rule agree.
type Predicate struct {
	Where string
	Args  []any

	matches func(ctx context.Context, t Target) (bool, error)
}

// Matches reports whether the predicate admits the target.
func (p Predicate) Matches(ctx context.Context, t Target) (bool, error) {
	if p.matches == nil {
		return true, nil
	}
	return p.matches(ctx, t)
}

// Scope returns the filter selecting exactly the rows of kind that actor may
// enumerate. The filter admits a row iff Can(actor, view, row) allows it.
// firstArg is the placeholder number the fragment starts at, so callers can
// prepend their own bind values.
func (p *Policy) Scope(actor *identity.User, kind EntityKind, firstArg int) Predicate {
	if actor.IsAdmin() {
		return Predicate{Where: "1=1"}
	}

	switch kind {
	case KindProject:
		return p.scopeProject(actor, firstArg)
	case KindEvent:
		return p.scopeEvent(actor, firstArg)
	case KindDecision:
		return p.scopeDecision(actor, firstArg)
	case KindDeliverable:
		return p.scopeDeliverable(actor, firstArg)
	case KindInvitation:
		return p.scopeInvitation(actor, firstArg)
	case KindNotification:
		return Predicate{
			Where: fmt.Sprintf("notifications.user_id = $%d", firstArg),
			Args:  []any{actor.ID},
			matches: func(_ context.Context, t Target) (bool, error) {
				return t.RecipientID == actor.ID, nil
			},
		}
	}
	// Unknown kinds match nothing.
	return Predicate{Where: "1=0", matches: func(context.Context, Target) (bool, error) { return false, nil }}
}

func (p *Policy) scopeProject(actor *identity.User, firstArg int) Predicate {
	if actor.IsManagement() {
		return Predicate{
			Where: fmt.Sprintf("projects.creator_id = $%d", firstArg),
			Args:  []any{actor.ID},
			matches: func(_ context.Context, t Target) (bool, error) {
				return t.ProjectCreatorID == actor.ID, nil
			},
		}
	}
	return Predicate{
		Where: fmt.Sprintf(
			"EXISTS (SELECT 1 FROM events e JOIN event_participants ep ON ep.event_id = e.id WHERE e.project_id = projects.id AND ep.user_id = $%d)",
			firstArg),
		Args: []any{actor.ID},
		matches: func(ctx context.Context, t Target) (bool, error) {
			return p.members.ParticipatesInProject(ctx, actor.ID, t.ID)
		},
	}
}

func (p *Policy) scopeEvent(actor *identity.User, firstArg int) Predicate {
	organizer := fmt.Sprintf("events.organizer_id = $%d", firstArg)
	participant := func(n int) string {
		return fmt.Sprintf("EXISTS (SELECT 1 FROM event_participants ep WHERE ep.event_id = events.id AND ep.user_id = $%d)", n)
	}
	if actor.IsManagement() {
		return Predicate{
			Where: fmt.Sprintf("(%s OR EXISTS (SELECT 1 FROM projects p WHERE p.id = events.project_id AND p.creator_id = $%d) OR %s)",
				organizer, firstArg+1, participant(firstArg+2)),
			Args: []any{actor.ID, actor.ID, actor.ID},
			matches: func(ctx context.Context, t Target) (bool, error) {
				if t.OrganizerID == actor.ID || t.ProjectCreatorID == actor.ID {
					return true, nil
				}
				return p.members.IsEventParticipant(ctx, actor.ID, t.ID)
			},
		}
	}
	return Predicate{
		Where: fmt.Sprintf("(%s OR %s)", organizer, participant(firstArg+1)),
		Args:  []any{actor.ID, actor.ID},
		matches: func(ctx context.Context, t Target) (bool, error) {
			if t.OrganizerID == actor.ID {
				return true, nil
			}
			return p.members.IsEventParticipant(ctx, actor.ID, t.ID)
		},
	}
}

func (p *Policy) scopeDecision(actor *identity.User, firstArg int) Predicate {
	creator := fmt.Sprintf("decisions.created_by = $%d", firstArg)
	participant := func(n int) string {
		return fmt.Sprintf("EXISTS (SELECT 1 FROM event_participants ep WHERE ep.event_id = decisions.event_id AND ep.user_id = $%d)", n)
	}
	if actor.IsManagement() {
		return Predicate{
			Where: fmt.Sprintf("(%s OR EXISTS (SELECT 1 FROM events e JOIN projects p ON p.id = e.project_id WHERE e.id = decisions.event_id AND p.creator_id = $%d) OR %s)",
				creator, firstArg+1, participant(firstArg+2)),
			Args: []any{actor.ID, actor.ID, actor.ID},
			matches: func(ctx context.Context, t Target) (bool, error) {
				if t.CreatorID == actor.ID || t.ProjectCreatorID == actor.ID {
					return true, nil
				}
				return p.members.IsEventParticipant(ctx, actor.ID, t.EventID)
			},
		}
	}
	return Predicate{
		Where: fmt.Sprintf("(%s OR %s)", creator, participant(firstArg+1)),
		Args:  []any{actor.ID, actor.ID},
		matches: func(ctx context.Context, t Target) (bool, error) {
			if t.CreatorID == actor.ID {
				return true, nil
			}
			return p.members.IsEventParticipant(ctx, actor.ID, t.EventID)
		},
	}
}

func (p *Policy) scopeDeliverable(actor *identity.User, firstArg int) Predicate {
	assignee := fmt.Sprintf("deliverables.assignee_id = $%d", firstArg)
	if actor.IsManagement() {
		return Predicate{
			Where: fmt.Sprintf(
				"(%s OR deliverables.decision_id IS NULL"+
					" OR EXISTS (SELECT 1 FROM decisions d WHERE d.id = deliverables.decision_id AND d.created_by = $%d)"+
					" OR EXISTS (SELECT 1 FROM decisions d JOIN events e ON e.id = d.event_id JOIN projects p ON p.id = e.project_id WHERE d.id = deliverables.decision_id AND p.creator_id = $%d))",
				assignee, firstArg+1, firstArg+2),
			Args: []any{actor.ID, actor.ID, actor.ID},
			matches: func(_ context.Context, t Target) (bool, error) {
				return t.AssigneeID == actor.ID || t.Standalone ||
					t.DecisionCreatorID == actor.ID || t.ProjectCreatorID == actor.ID, nil
			},
		}
	}
	return Predicate{
		Where: assignee,
		Args:  []any{actor.ID},
		matches: func(_ context.Context, t Target) (bool, error) {
			return t.AssigneeID == actor.ID, nil
		},
	}
}

func (p *Policy) scopeInvitation(actor *identity.User, firstArg int) Predicate {
	own := fmt.Sprintf("(invitations.user_id = $%d OR invitations.invited_by = $%d)", firstArg, firstArg+1)
	if actor.IsManagement() {
		return Predicate{
			Where: fmt.Sprintf("(invitations.user_id = $%d OR invitations.invited_by = $%d OR EXISTS (SELECT 1 FROM events e JOIN projects p ON p.id = e.project_id WHERE e.id = invitations.event_id AND p.creator_id = $%d))",
				firstArg, firstArg+1, firstArg+2),
			Args: []any{actor.ID, actor.ID, actor.ID},
			matches: func(_ context.Context, t Target) (bool, error) {
				return t.InviteeID == actor.ID || t.InviterID == actor.ID || t.ProjectCreatorID == actor.ID, nil
			},
		}
	}
	return Predicate{
		Where: own,
		Args:  []any{actor.ID, actor.ID},
		matches: func(_ context.Context, t Target) (bool, error) {
			return t.InviteeID == actor.ID || t.InviterID == actor.ID, nil
		},
	}
}
