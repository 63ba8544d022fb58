package authz

import (
	"context"
	"fmt"
	"time"

	"github.com/concord-hq/concord/pkg/identity"
	"github.com/concord-hq/concord/pkg/observability"
)

// Policy evaluates authorization decisions against a fixed rule table.
// Deny is the default: a (kind, action) pair with no table entry is denied
// for every actor except the blanket admin view rule.
type Policy struct {
	members MembershipChecker
	metrics *observability.Metrics
	table   map[EntityKind]map[Action]rule
}

// NewPolicy builds the policy. metrics may be nil.
func NewPolicy(members MembershipChecker, metrics *observability.Metrics) *Policy {
	return &Policy{
		members: members,
		metrics: metrics,
		table:   ruleTable(),
	}
}

// ruleTable enumerates the allows. Ownership chains grant management-tier
// access, entity-level relationships grant per-user access, and admins pass
// everywhere. Edit rules double as delete rules.
func ruleTable() map[EntityKind]map[Action]rule {
	projectEdit := anyOf(isAdmin, ownsProject)
	eventEdit := anyOf(isAdmin, isOrganizer, ownsProject)
	eventView := anyOf(eventEdit, isParticipant)
	decisionEdit := anyOf(isAdmin, isCreator, ownsProject)
	deliverableEdit := anyOf(isAdmin, isAssignee, ownsProject, isDecisionCreator, isStandaloneManagement)
	invitationView := anyOf(isAdmin, isInvitee, isInviter, ownsProject)

	return map[EntityKind]map[Action]rule{
		KindProject: {
			ActionView:   anyOf(isAdmin, ownsProject, projectUserOnly(participatesInProject)),
			ActionCreate: isManagementTier,
			ActionEdit:   projectEdit,
			ActionDelete: projectEdit,
		},
		KindEvent: {
			ActionView:   eventView,
			ActionCreate: anyAuthenticated,
			ActionEdit:   eventEdit,
			ActionDelete: eventEdit,
		},
		KindDecision: {
			ActionView:   anyOf(decisionEdit, isParticipant),
			ActionCreate: eventView,
			ActionEdit:   decisionEdit,
			ActionDelete: decisionEdit,
		},
		KindDeliverable: {
			ActionView:          deliverableEdit,
			ActionCreate:        anyOf(isManagementTier, isAssignee),
			ActionEdit:          deliverableEdit,
			ActionDelete:        deliverableEdit,
			ActionTrackProgress: deliverableEdit,
		},
		KindInvitation: {
			ActionView:    invitationView,
			ActionCreate:  anyOf(isAdmin, allOf(isManagementTier, eventView)),
			ActionRespond: isInvitee,
			ActionDelete:  anyOf(isAdmin, isInviter),
		},
		KindNotification: {
			ActionView:   anyOf(isAdmin, isRecipient),
			ActionEdit:   isRecipient,
			ActionDelete: isRecipient,
		},
	}
}

// Can decides whether actor may perform action on target. The returned
// Decision carries a user-facing reason on denials. An error is returned
// only when a membership lookup against the store fails.
func (p *Policy) Can(ctx context.Context, actor *identity.User, action Action, target Target) (Decision, error) {
	if actor == nil {
		return Deny("authentication required"), nil
	}
	if !target.Kind.Valid() {
		return Deny(fmt.Sprintf("unknown entity kind %q", target.Kind)), nil
	}

	start := time.Now()
	decision, err := p.evaluate(ctx, actor, action, target)
	if err != nil {
		return Decision{}, err
	}
	p.record(target.Kind, action, decision, time.Since(start))
	return decision, nil
}

func (p *Policy) evaluate(ctx context.Context, actor *identity.User, action Action, target Target) (Decision, error) {
	// Admins may view everything.
	if action == ActionView && actor.IsAdmin() {
		return Allow, nil
	}

	r, ok := p.table[target.Kind][action]
	if !ok {
		return Deny(denialReason(action, target.Kind)), nil
	}
	allowed, err := r(ctx, actor, target, p.members)
	if err != nil {
		return Decision{}, err
	}
	if !allowed {
		return Deny(denialReason(action, target.Kind)), nil
	}
	return Allow, nil
}

func (p *Policy) record(kind EntityKind, action Action, d Decision, elapsed time.Duration) {
	if p.metrics == nil {
		return
	}
	outcome := "deny"
	if d.Allowed {
		outcome = "allow"
	}
	p.metrics.AuthzDecisionsTotal.WithLabelValues(string(kind), string(action), outcome).Inc()
	p.metrics.AuthzDecisionDuration.WithLabelValues(string(kind), string(action)).Observe(elapsed.Seconds())
}

func denialReason(action Action, kind EntityKind) string {
	verb := string(action)
	switch action {
	case ActionRespond:
		return "only the invitee may respond to this invitation"
	case ActionTrackProgress:
		verb = "update progress on"
	}
	return fmt.Sprintf("you do not have permission to %s this %s", verb, kind)
}
