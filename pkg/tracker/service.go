package tracker

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/concord-hq/concord/pkg/authz"
	"github.com/concord-hq/concord/pkg/identity"
	"github.com/concord-hq/concord/pkg/invitations"
	"github.com/concord-hq/concord/pkg/notify"
	"github.com/concord-hq/concord/pkg/observability"
)

// Service coordinates the project and event workflows: authorization, the
// write transaction, notification fan-out, and schedule conflict checks.
type Service struct {
	store       *Store
	invitations *invitations.Store
	notify      *notify.Service
	policy      *authz.Policy
	metrics     *observability.Metrics
	now         func() time.Time
}

// NewService builds the service. metrics may be nil.
func NewService(store *Store, invStore *invitations.Store, notifier *notify.Service, policy *authz.Policy, metrics *observability.Metrics) *Service {
	return &Service{
		store:       store,
		invitations: invStore,
		notify:      notifier,
		policy:      policy,
		metrics:     metrics,
		now:         time.Now,
	}
}

func (s *Service) authorize(ctx context.Context, actor *identity.User, action authz.Action, target authz.Target) error {
	decision, err := s.policy.Can(ctx, actor, action, target)
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, decision.Reason)
	}
	return nil
}

// --- projects ---

// CreateProjectInput carries the fields for a new project.
type CreateProjectInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// UpdateProjectInput carries partial project edits; nil fields are left
// unchanged.
type UpdateProjectInput struct {
	Name        *string `json:"name"`
	Description *string `json:"description"`
}

// CreateProject creates a project owned by the actor.
func (s *Service) CreateProject(ctx context.Context, actor *identity.User, in CreateProjectInput) (*Project, error) {
	if err := s.authorize(ctx, actor, authz.ActionCreate, authz.Target{Kind: authz.KindProject}); err != nil {
		return nil, err
	}
	if strings.TrimSpace(in.Name) == "" {
		return nil, fmt.Errorf("%w: name is required", ErrValidation)
	}

	project := &Project{
		Name:        in.Name,
		Description: in.Description,
		CreatorID:   actor.ID,
	}
	if err := s.store.CreateProject(ctx, project); err != nil {
		return nil, err
	}
	observability.FromContext(ctx).WithField("project_id", project.ID).Info("project created")
	return project, nil
}

// GetProject returns one project the actor may view.
func (s *Service) GetProject(ctx context.Context, actor *identity.User, id int64) (*Project, error) {
	target, err := s.store.ProjectFacts(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, authz.ActionView, target); err != nil {
		return nil, err
	}
	return s.store.GetProject(ctx, id)
}

// ListProjects returns the projects visible to the actor.
func (s *Service) ListProjects(ctx context.Context, actor *identity.User, limit, offset int) ([]*Project, error) {
	pred := s.policy.Scope(actor, authz.KindProject, 1)
	return s.store.ListProjects(ctx, pred, limit, offset)
}

// UpdateProject applies partial edits to a project the actor may edit.
func (s *Service) UpdateProject(ctx context.Context, actor *identity.User, id int64, in UpdateProjectInput) (*Project, error) {
	target, err := s.store.ProjectFacts(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, authz.ActionEdit, target); err != nil {
		return nil, err
	}

	project, err := s.store.GetProject(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		if strings.TrimSpace(*in.Name) == "" {
			return nil, fmt.Errorf("%w: name is required", ErrValidation)
		}
		project.Name = *in.Name
	}
	if in.Description != nil {
		project.Description = *in.Description
	}
	if err := s.store.UpdateProject(ctx, project); err != nil {
		return nil, err
	}
	return project, nil
}

// DeleteProject removes a project the actor may edit.
func (s *Service) DeleteProject(ctx context.Context, actor *identity.User, id int64) error {
	target, err := s.store.ProjectFacts(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actor, authz.ActionDelete, target); err != nil {
		return err
	}
	return s.store.DeleteProject(ctx, id)
}

// --- events ---

// CreateEventInput carries the fields for a new event. ParticipantIDs are
// added to the event immediately, with an auto-accepted invitation record and
// a notification each.
type CreateEventInput struct {
	ProjectID      int64     `json:"project_id"`
	Title          string    `json:"title"`
	Description    string    `json:"description"`
	Location       string    `json:"location"`
	StartTime      time.Time `json:"start_time"`
	EndTime        time.Time `json:"end_time"`
	ParticipantIDs []int64   `json:"participant_ids"`
}

// UpdateEventInput carries partial event edits; nil fields are left
// unchanged.
type UpdateEventInput struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Location    *string    `json:"location"`
	StartTime   *time.Time `json:"start_time"`
	EndTime     *time.Time `json:"end_time"`
}

func validateInterval(start, end time.Time) error {
	if start.IsZero() || end.IsZero() {
		return fmt.Errorf("%w: start and end times are required", ErrValidation)
	}
	if !end.After(start) {
		return fmt.Errorf("%w: end time must be after start time", ErrValidation)
	}
	return nil
}

// CreateEvent creates an event organized by the actor. The organizer and any
// listed participants join the participant list in the same transaction;
// each listed participant gets an accepted invitation record and an
// invitation notification. The returned slice holds the schedule conflicts
// the new event introduces; conflicts warn, they never block.
func (s *Service) CreateEvent(ctx context.Context, actor *identity.User, in CreateEventInput) (*Event, []*Event, error) {
	if strings.TrimSpace(in.Title) == "" {
		return nil, nil, fmt.Errorf("%w: title is required", ErrValidation)
	}
	if err := validateInterval(in.StartTime, in.EndTime); err != nil {
		return nil, nil, err
	}

	projectTarget, err := s.store.ProjectFacts(ctx, in.ProjectID)
	if err != nil {
		return nil, nil, err
	}
	createTarget := authz.Target{
		Kind:             authz.KindEvent,
		ProjectID:        in.ProjectID,
		ProjectCreatorID: projectTarget.ProjectCreatorID,
		OrganizerID:      actor.ID,
	}
	if err := s.authorize(ctx, actor, authz.ActionCreate, createTarget); err != nil {
		return nil, nil, err
	}

	event := &Event{
		ProjectID:   in.ProjectID,
		Title:       in.Title,
		Description: in.Description,
		Location:    in.Location,
		OrganizerID: actor.ID,
		StartTime:   in.StartTime,
		EndTime:     in.EndTime,
	}

	now := s.now()
	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.store.CreateEvent(ctx, tx, event); err != nil {
		return nil, nil, err
	}
	if err := s.store.AddParticipant(ctx, tx, event.ID, actor.ID); err != nil {
		return nil, nil, err
	}

	var notified []int64
	for _, userID := range dedupe(in.ParticipantIDs) {
		if userID == actor.ID {
			continue
		}
		if err := s.store.AddParticipant(ctx, tx, event.ID, userID); err != nil {
			return nil, nil, err
		}
		inv, _, err := s.invitations.CreateAccepted(ctx, tx, event.ID, userID, actor.ID, now)
		if err != nil {
			return nil, nil, err
		}
		err = s.notify.Emit(ctx, tx, &notify.Notification{
			UserID:       userID,
			Type:         notify.TypeEventInvitation,
			Message:      fmt.Sprintf("%s added you to %q", actor.Username, event.Title),
			EventID:      &event.ID,
			InvitationID: &inv.ID,
		})
		if err != nil {
			return nil, nil, err
		}
		notified = append(notified, userID)
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing event: %w", err)
	}
	s.notify.Committed(ctx, notified...)

	conflicts, err := s.checkConflicts(ctx, event.ID, event.StartTime, event.EndTime)
	if err != nil {
		return nil, nil, err
	}

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"event_id":     event.ID,
		"project_id":   event.ProjectID,
		"participants": len(notified) + 1,
		"conflicts":    len(conflicts),
	}).Info("event created")
	return event, conflicts, nil
}

// GetEvent returns one event, with its participant list, to an actor who may
// view it.
func (s *Service) GetEvent(ctx context.Context, actor *identity.User, id int64) (*Event, error) {
	target, err := s.store.EventFacts(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, authz.ActionView, target); err != nil {
		return nil, err
	}
	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, err
	}
	event.Participants, err = s.store.ListParticipants(ctx, id)
	if err != nil {
		return nil, err
	}
	return event, nil
}

// ListEvents returns the events visible to the actor, narrowed by filter.
func (s *Service) ListEvents(ctx context.Context, actor *identity.User, filter EventFilter, limit, offset int) ([]*Event, error) {
	if filter.From != nil && filter.To != nil && !filter.To.After(*filter.From) {
		return nil, fmt.Errorf("%w: range end must be after range start", ErrValidation)
	}
	pred := s.policy.Scope(actor, authz.KindEvent, 1)
	return s.store.ListEvents(ctx, pred, filter, limit, offset)
}

// UpdateEvent applies partial edits to an event the actor may edit and
// notifies every other participant. The returned slice holds the schedule
// conflicts of the edited interval.
func (s *Service) UpdateEvent(ctx context.Context, actor *identity.User, id int64, in UpdateEventInput) (*Event, []*Event, error) {
	target, err := s.store.EventFacts(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authorize(ctx, actor, authz.ActionEdit, target); err != nil {
		return nil, nil, err
	}

	event, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if in.Title != nil {
		if strings.TrimSpace(*in.Title) == "" {
			return nil, nil, fmt.Errorf("%w: title is required", ErrValidation)
		}
		event.Title = *in.Title
	}
	if in.Description != nil {
		event.Description = *in.Description
	}
	if in.Location != nil {
		event.Location = *in.Location
	}
	if in.StartTime != nil {
		event.StartTime = *in.StartTime
	}
	if in.EndTime != nil {
		event.EndTime = *in.EndTime
	}
	if err := validateInterval(event.StartTime, event.EndTime); err != nil {
		return nil, nil, err
	}

	participants, err := s.store.ListParticipants(ctx, id)
	if err != nil {
		return nil, nil, err
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.store.UpdateEvent(ctx, tx, event); err != nil {
		return nil, nil, err
	}
	var notified []int64
	for _, p := range participants {
		if p.ID == actor.ID {
			continue
		}
		err = s.notify.Emit(ctx, tx, &notify.Notification{
			UserID:  p.ID,
			Type:    notify.TypeEventUpdate,
			Message: fmt.Sprintf("%q was updated by %s", event.Title, actor.Username),
			EventID: &event.ID,
		})
		if err != nil {
			return nil, nil, err
		}
		notified = append(notified, p.ID)
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("committing event update: %w", err)
	}
	s.notify.Committed(ctx, notified...)

	conflicts, err := s.checkConflicts(ctx, event.ID, event.StartTime, event.EndTime)
	if err != nil {
		return nil, nil, err
	}
	return event, conflicts, nil
}

// DeleteEvent removes an event the actor may edit.
func (s *Service) DeleteEvent(ctx context.Context, actor *identity.User, id int64) error {
	target, err := s.store.EventFacts(ctx, id)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actor, authz.ActionDelete, target); err != nil {
		return err
	}
	return s.store.DeleteEvent(ctx, id)
}

// --- participants ---

// AddParticipant puts a user on an event the actor may edit, recording an
// accepted invitation and notifying the user. Re-adding a participant is a
// no-op.
func (s *Service) AddParticipant(ctx context.Context, actor *identity.User, eventID, userID int64) error {
	target, err := s.store.EventFacts(ctx, eventID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actor, authz.ActionEdit, target); err != nil {
		return err
	}
	if userID == 0 {
		return fmt.Errorf("%w: user is required", ErrValidation)
	}

	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return err
	}

	tx, err := s.store.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.store.AddParticipant(ctx, tx, eventID, userID); err != nil {
		return err
	}
	inv, created, err := s.invitations.CreateAccepted(ctx, tx, eventID, userID, actor.ID, s.now())
	if err != nil {
		return err
	}
	if created {
		err = s.notify.Emit(ctx, tx, &notify.Notification{
			UserID:       userID,
			Type:         notify.TypeEventInvitation,
			Message:      fmt.Sprintf("%s added you to %q", actor.Username, event.Title),
			EventID:      &event.ID,
			InvitationID: &inv.ID,
		})
		if err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("committing participant: %w", err)
	}
	if created {
		s.notify.Committed(ctx, userID)
	}
	return nil
}

// RemoveParticipant takes a user off an event the actor may edit.
func (s *Service) RemoveParticipant(ctx context.Context, actor *identity.User, eventID, userID int64) error {
	target, err := s.store.EventFacts(ctx, eventID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actor, authz.ActionEdit, target); err != nil {
		return err
	}
	return s.store.RemoveParticipant(ctx, s.store.db.Primary(), eventID, userID)
}

// --- links ---

// LinkEvents records a typed edge from one event to another. The actor must
// be able to edit the source and view the target. Re-linking a pair returns
// the existing edge.
func (s *Service) LinkEvents(ctx context.Context, actor *identity.User, fromID, toID int64, linkType LinkType) (*EventLink, bool, error) {
	if !linkType.Valid() {
		return nil, false, fmt.Errorf("%w: unknown link type %q", ErrValidation, linkType)
	}
	if fromID == toID {
		return nil, false, fmt.Errorf("%w: an event cannot link to itself", ErrValidation)
	}

	fromTarget, err := s.store.EventFacts(ctx, fromID)
	if err != nil {
		return nil, false, err
	}
	if err := s.authorize(ctx, actor, authz.ActionEdit, fromTarget); err != nil {
		return nil, false, err
	}
	toTarget, err := s.store.EventFacts(ctx, toID)
	if err != nil {
		return nil, false, err
	}
	if err := s.authorize(ctx, actor, authz.ActionView, toTarget); err != nil {
		return nil, false, err
	}

	return s.store.LinkEvents(ctx, fromID, toID, linkType)
}

// ListLinks returns the edges touching an event the actor may view.
func (s *Service) ListLinks(ctx context.Context, actor *identity.User, eventID int64) (outgoing, incoming []*EventLink, err error) {
	target, err := s.store.EventFacts(ctx, eventID)
	if err != nil {
		return nil, nil, err
	}
	if err := s.authorize(ctx, actor, authz.ActionView, target); err != nil {
		return nil, nil, err
	}
	return s.store.ListLinks(ctx, eventID)
}

// UnlinkEvents removes an edge from an event the actor may edit.
func (s *Service) UnlinkEvents(ctx context.Context, actor *identity.User, fromID, toID int64) error {
	target, err := s.store.EventFacts(ctx, fromID)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, actor, authz.ActionEdit, target); err != nil {
		return err
	}
	return s.store.UnlinkEvents(ctx, fromID, toID)
}

// --- conflicts ---

// Conflicts returns the events overlapping an event the actor may view.
func (s *Service) Conflicts(ctx context.Context, actor *identity.User, eventID int64) ([]*Event, error) {
	target, err := s.store.EventFacts(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, actor, authz.ActionView, target); err != nil {
		return nil, err
	}
	event, err := s.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	return s.checkConflicts(ctx, event.ID, event.StartTime, event.EndTime)
}

func (s *Service) checkConflicts(ctx context.Context, excludeID int64, start, end time.Time) ([]*Event, error) {
	conflicts, err := s.store.ConflictingEvents(ctx, excludeID, start, end)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		outcome := "clean"
		if len(conflicts) > 0 {
			outcome = "conflict"
			s.metrics.ConflictsDetectedTotal.Add(float64(len(conflicts)))
		}
		s.metrics.ConflictChecksTotal.WithLabelValues(outcome).Inc()
	}
	return conflicts, nil
}

func dedupe(ids []int64) []int64 {
	seen := make(map[int64]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
