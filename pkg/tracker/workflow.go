package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/concord-hq/concord/pkg/authz"
	"github.com/concord-hq/concord/pkg/identity"
	"github.com/concord-hq/concord/pkg/notify"
	"github.com/concord-hq/concord/pkg/observability"
)

// --- decisions ---

// CreateDecisions records one or more decisions under an event and notifies
// the other participants, all in one transaction. Anyone who may view the
// event may record decisions on it.
func (s *Service) CreateDecisions(ctx context.Context, actor *identity.User, eventID int64, descriptions []string) ([]*Decision, error) {
	if len(descriptions) == 0 {
		return nil, fmt.Errorf("%w: at least one decision is required", ErrValidation)
	}
	for _, desc := range descriptions {
		if strings.TrimSpace(desc) == "" {
			return nil, fmt.Errorf("%w: decision description is required", ErrValidation)
		}
	}

	eventTarget, err := s.store.EventFacts(ctx, eventID)
	if err != nil {
		return nil, err
	}
	createTarget := authz.Target{
		Kind:             authz.KindDecision,
		EventID:          eventID,
		ProjectID:        eventTarget.ProjectID,
		ProjectCreatorID: eventTarget.ProjectCreatorID,
		OrganizerID:      eventTarget.OrganizerID,
	}
	if err := s.authorize(ctx, actor, authz.ActionCreate, createTarget); err != nil {
		return nil, err
	}

	participants, err := s.store.ListParticipants(ctx, eventID)
	if err != nil {
		return nil, err
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	decisions := make([]*Decision, 0, len(descriptions))
	for _, desc := range descriptions {
		d := &Decision{EventID: eventID, Description: desc, CreatedBy: actor.ID}
		if err := s.store.CreateDecision(ctx, tx, d); err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}

	var notified []int64
	for _, p := range participants {
		if p.ID == actor.ID {
			continue
		}
		for _, d := range decisions {
			err = s.notify.Emit(ctx, tx, &notify.Notification{
				UserID:     p.ID,
				Type:       notify.TypeDecisionCreated,
				Message:    fmt.Sprintf("%s recorded a decision: %s", actor.Username, d.Description),
				EventID:    &eventID,
				DecisionID: &d.ID,
			})
			if err != nil {
				return nil, err
			}
		}
		notified = append(notified, p.ID)
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing decisions: %w", err)
	}
	s.notify.Committed(ctx, notified...)

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"event_id":  eventID,
		"decisions": len(decisions),
	}).Info("decisions recorded")
	return decisions, nil
}

// GetDecision returns one decision the actor may view.
func (s *Service) GetDecision(ctx context.Context, actor *identity.User, id int64) (*Decision, error) {
	target, err := s.store.DecisionFacts(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, authz.ActionView, target); err != nil {
		return nil, err
	}
	return s.store.GetDecision(ctx, id)
}

// ListDecisions returns the decisions visible to the actor, optionally
// narrowed to one event.
func (s *Service) ListDecisions(ctx context.Context, actor *identity.User, eventID int64, limit, offset int) ([]*Decision, error) {
	pred := s.policy.Scope(actor, authz.KindDecision, 1)
	return s.store.ListDecisions(ctx, pred, eventID, limit, offset)
}

// UpdateDecision rewrites the description of a decision the actor may edit.
func (s *Service) UpdateDecision(ctx context.Context, actor *identity.User, id int64, description string) (*Decision, error) {
	if strings.TrimSpace(description) == "" {
		return nil, fmt.Errorf("%w: decision description is required", ErrValidation)
	}
	target, err := s.store.DecisionFacts(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, authz.ActionEdit, target); err != nil {
		return nil, err
	}
	decision, err := s.store.GetDecision(ctx, id)
	if err != nil {
		return nil, err
	}
	decision.Description = description
	if err := s.store.UpdateDecision(ctx, decision); err != nil {
		return nil, err
	}
	return decision, nil
}

// DeleteDecision removes a decision the actor may edit, along with its
// deliverables.
func (s *Service) DeleteDecision(ctx context.Context, actor *identity.User, id int64) error {
	target, err := s.store.DecisionFacts(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actor, authz.ActionDelete, target); err != nil {
		return err
	}
	return s.store.DeleteDecision(ctx, id)
}

// --- deliverables ---

// CreateDeliverableInput carries the fields for a new deliverable. A nil
// DecisionID makes it standalone.
type CreateDeliverableInput struct {
	DecisionID  *int64     `json:"decision_id"`
	Title       string     `json:"title"`
	Description string     `json:"description"`
	AssigneeID  *int64     `json:"assignee_id"`
	DueDate     *time.Time `json:"due_date"`
}

// UpdateDeliverableInput carries partial deliverable edits; nil fields are
// left unchanged. Status and progress are saved exactly as given, with no
// coupling between them.
type UpdateDeliverableInput struct {
	Title       *string            `json:"title"`
	Description *string            `json:"description"`
	AssigneeID  *int64             `json:"assignee_id"`
	DueDate     *time.Time         `json:"due_date"`
	Status      *DeliverableStatus `json:"status"`
	Progress    *int               `json:"progress"`
}

// CreateDeliverable creates a deliverable and notifies the assignee when one
// is set. Management may create any deliverable; a project user may only
// create one assigned to themselves.
func (s *Service) CreateDeliverable(ctx context.Context, actor *identity.User, in CreateDeliverableInput) (*Deliverable, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", ErrValidation)
	}

	createTarget := authz.Target{Kind: authz.KindDeliverable, Standalone: in.DecisionID == nil}
	if in.AssigneeID != nil {
		createTarget.AssigneeID = *in.AssigneeID
	}
	if in.DecisionID != nil {
		decisionTarget, err := s.store.DecisionFacts(ctx, *in.DecisionID)
		if err != nil {
			return nil, err
		}
		createTarget.DecisionCreatorID = decisionTarget.CreatorID
		createTarget.EventID = decisionTarget.EventID
		createTarget.ProjectID = decisionTarget.ProjectID
		createTarget.ProjectCreatorID = decisionTarget.ProjectCreatorID
	}
	if err := s.authorize(ctx, actor, authz.ActionCreate, createTarget); err != nil {
		return nil, err
	}

	deliverable := &Deliverable{
		DecisionID:  in.DecisionID,
		Title:       in.Title,
		Description: in.Description,
		AssigneeID:  in.AssigneeID,
		DueDate:     in.DueDate,
		Status:      StatusPending,
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.store.CreateDeliverable(ctx, tx, deliverable); err != nil {
		return nil, err
	}
	notifyAssignee := in.AssigneeID != nil && *in.AssigneeID != actor.ID
	if notifyAssignee {
		err = s.notify.Emit(ctx, tx, &notify.Notification{
			UserID:        *in.AssigneeID,
			Type:          notify.TypeDeliverableAssigned,
			Message:       fmt.Sprintf("%s assigned you %q", actor.Username, deliverable.Title),
			DeliverableID: &deliverable.ID,
		})
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing deliverable: %w", err)
	}
	if notifyAssignee {
		s.notify.Committed(ctx, *in.AssigneeID)
	}

	observability.FromContext(ctx).WithField("deliverable_id", deliverable.ID).Info("deliverable created")
	return deliverable, nil
}

// GetDeliverable returns one deliverable the actor may view, with its
// overdue flag computed.
func (s *Service) GetDeliverable(ctx context.Context, actor *identity.User, id int64) (*Deliverable, error) {
	target, err := s.store.DeliverableFacts(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, authz.ActionView, target); err != nil {
		return nil, err
	}
	deliverable, err := s.store.GetDeliverable(ctx, id)
	if err != nil {
		return nil, err
	}
	deliverable.Overdue = deliverable.IsOverdue(s.now())
	return deliverable, nil
}

// ListDeliverables returns the deliverables visible to the actor, narrowed
// by filter, with overdue flags computed.
func (s *Service) ListDeliverables(ctx context.Context, actor *identity.User, filter DeliverableFilter, limit, offset int) ([]*Deliverable, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, filter.Status)
	}
	now := s.now()
	pred := s.policy.Scope(actor, authz.KindDeliverable, 1)
	deliverables, err := s.store.ListDeliverables(ctx, pred, filter, now, limit, offset)
	if err != nil {
		return nil, err
	}
	for _, d := range deliverables {
		d.Overdue = d.IsOverdue(now)
	}
	return deliverables, nil
}

// UpdateDeliverable applies partial edits to a deliverable the actor may
// edit. A changed assignee is notified. Status and progress are taken as
// given; the coupled quick path is UpdateProgress.
func (s *Service) UpdateDeliverable(ctx context.Context, actor *identity.User, id int64, in UpdateDeliverableInput) (*Deliverable, error) {
	target, err := s.store.DeliverableFacts(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, authz.ActionEdit, target); err != nil {
		return nil, err
	}

	deliverable, err := s.store.GetDeliverable(ctx, id)
	if err != nil {
		return nil, err
	}
	previousAssignee := int64(0)
	if deliverable.AssigneeID != nil {
		previousAssignee = *deliverable.AssigneeID
	}

	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return nil, fmt.Errorf("%w: title is required", ErrValidation)
		}
		deliverable.Title = *in.Title
	}
	if in.Description != nil {
		deliverable.Description = *in.Description
	}
	if in.AssigneeID != nil {
		deliverable.AssigneeID = in.AssigneeID
	}
	if in.DueDate != nil {
		deliverable.DueDate = in.DueDate
	}
	if in.Status != nil {
		if !in.Status.Valid() {
			return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, *in.Status)
		}
		deliverable.Status = *in.Status
	}
	if in.Progress != nil {
		if *in.Progress < 0 || *in.Progress > 100 {
			return nil, fmt.Errorf("%w: progress must be between 0 and 100", ErrValidation)
		}
		deliverable.Progress = *in.Progress
	}

	newAssignee := int64(0)
	if deliverable.AssigneeID != nil {
		newAssignee = *deliverable.AssigneeID
	}
	notifyAssignee := newAssignee != 0 && newAssignee != previousAssignee && newAssignee != actor.ID

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.store.UpdateDeliverable(ctx, tx, deliverable); err != nil {
		return nil, err
	}
	if notifyAssignee {
		err = s.notify.Emit(ctx, tx, &notify.Notification{
			UserID:        newAssignee,
			Type:          notify.TypeDeliverableAssigned,
			Message:       fmt.Sprintf("%s assigned you %q", actor.Username, deliverable.Title),
			DeliverableID: &deliverable.ID,
		})
		if err != nil {
			return nil, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing deliverable update: %w", err)
	}
	if notifyAssignee {
		s.notify.Committed(ctx, newAssignee)
	}

	deliverable.Overdue = deliverable.IsOverdue(s.now())
	return deliverable, nil
}

// UpdateProgress is the quick progress path: it runs the progress through
// the coupled setter, so 100 completes the deliverable and the first
// progress on a pending one starts it.
func (s *Service) UpdateProgress(ctx context.Context, actor *identity.User, id int64, progress int) (*Deliverable, error) {
	if progress < 0 || progress > 100 {
		return nil, fmt.Errorf("%w: progress must be between 0 and 100", ErrValidation)
	}
	target, err := s.store.DeliverableFacts(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, authz.ActionTrackProgress, target); err != nil {
		return nil, err
	}

	deliverable, err := s.store.GetDeliverable(ctx, id)
	if err != nil {
		return nil, err
	}
	deliverable.ApplyProgress(progress)
	if err := s.store.UpdateDeliverableProgress(ctx, id, deliverable.Progress, deliverable.Status); err != nil {
		return nil, err
	}
	deliverable.Overdue = deliverable.IsOverdue(s.now())
	return deliverable, nil
}

// DeleteDeliverable removes a deliverable the actor may edit.
func (s *Service) DeleteDeliverable(ctx context.Context, actor *identity.User, id int64) error {
	target, err := s.store.DeliverableFacts(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actor, authz.ActionDelete, target); err != nil {
		return err
	}
	return s.store.DeleteDeliverable(ctx, id)
}

// --- aggregates ---

// Dashboard summarizes what the actor can see: entity counts, deliverable
// completion, and their pending invitations.
func (s *Service) Dashboard(ctx context.Context, actor *identity.User) (*Dashboard, error) {
	now := s.now()
	var d Dashboard
	var err error

	if d.Projects, err = s.store.CountProjects(ctx, s.policy.Scope(actor, authz.KindProject, 1)); err != nil {
		return nil, err
	}
	eventPred := s.policy.Scope(actor, authz.KindEvent, 1)
	if d.Events, err = s.store.CountEvents(ctx, eventPred, nil); err != nil {
		return nil, err
	}
	if d.UpcomingEvents, err = s.store.CountEvents(ctx, eventPred, &now); err != nil {
		return nil, err
	}
	total, completed, overdue, err := s.store.DeliverableStats(ctx, s.policy.Scope(actor, authz.KindDeliverable, 1), now)
	if err != nil {
		return nil, err
	}
	d.Deliverables = total
	d.CompletedDeliverables = completed
	d.OverdueDeliverables = overdue
	if total > 0 {
		d.CompletionRate = float64(completed) / float64(total)
	}

	pending, err := s.invitations.CountPending(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	d.PendingInvitations = pending
	return &d, nil
}

// Workload summarizes deliverables per assignee for management and admins,
// scoped to what the actor can see.
func (s *Service) Workload(ctx context.Context, actor *identity.User) ([]WorkloadEntry, error) {
	if actor == nil || (!actor.IsAdmin() && !actor.IsManagement()) {
		return nil, fmt.Errorf("%w: workload reporting requires the management tier", ErrPermissionDenied)
	}
	pred := s.policy.Scope(actor, authz.KindDeliverable, 1)
	return s.store.Workload(ctx, pred, s.now())
}

// EligibleInvitees lists the users an inviter may still invite to an event:
// those neither participating nor already invited.
func (s *Service) EligibleInvitees(ctx context.Context, actor *identity.User, eventID int64) ([]UserRef, error) {
	eventTarget, err := s.store.EventFacts(ctx, eventID)
	if err != nil {
		return nil, err
	}
	createTarget := authz.Target{
		Kind:             authz.KindInvitation,
		EventID:          eventID,
		ProjectID:        eventTarget.ProjectID,
		ProjectCreatorID: eventTarget.ProjectCreatorID,
		OrganizerID:      eventTarget.OrganizerID,
	}
	if err := s.authorize(ctx, actor, authz.ActionCreate, createTarget); err != nil {
		return nil, err
	}
	return s.store.EligibleInvitees(ctx, eventID)
}

// AssignableUsers lists every user, for assignment pickers. Management tier
// only; a project user assigns only to themselves.
func (s *Service) AssignableUsers(ctx context.Context, actor *identity.User) ([]UserRef, error) {
	if actor == nil || (!actor.IsAdmin() && !actor.IsManagement()) {
		return nil, fmt.Errorf("%w: assignment requires the management tier", ErrPermissionDenied)
	}
	return s.store.AssignableUsers(ctx)
}
