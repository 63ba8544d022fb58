package invitations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/concord-hq/concord/pkg/authz"
	"github.com/concord-hq/concord/pkg/identity"
	"github.com/concord-hq/concord/pkg/notify"
	"github.com/concord-hq/concord/pkg/observability"
	"github.com/concord-hq/concord/pkg/storage"
)

// Service errors surfaced to handlers.
var (
	ErrPermissionDenied = errors.New("permission denied")
	ErrValidation       = errors.New("validation failed")
)

// EventDirectory is the slice of the workflow store the invitation service
// needs: event facts for authorization and participant membership mutation
// inside the response transaction.
type EventDirectory interface {
	EventSummary(ctx context.Context, eventID int64) (EventSummary, error)
	AddParticipant(ctx context.Context, q storage.Queryer, eventID, userID int64) error
	RemoveParticipant(ctx context.Context, q storage.Queryer, eventID, userID int64) error
}

// Service drives the invitation state machine. A response and its side
// effects (participant membership, notification fan-out) commit atomically.
type Service struct {
	store   *Store
	events  EventDirectory
	notify  *notify.Service
	policy  *authz.Policy
	db      *sql.DB
	metrics *observability.Metrics
	now     func() time.Time
}

// NewService builds the service. metrics may be nil.
func NewService(store *Store, events EventDirectory, notifier *notify.Service, policy *authz.Policy, db *sql.DB, metrics *observability.Metrics) *Service {
	return &Service{
		store:   store,
		events:  events,
		notify:  notifier,
		policy:  policy,
		db:      db,
		metrics: metrics,
		now:     time.Now,
	}
}

func (s *Service) target(inv *Invitation, summary EventSummary) authz.Target {
	return authz.Target{
		Kind:             authz.KindInvitation,
		ID:               inv.ID,
		EventID:          inv.EventID,
		ProjectID:        summary.ProjectID,
		ProjectCreatorID: summary.ProjectCreatorID,
		OrganizerID:      summary.OrganizerID,
		InviterID:        inv.InvitedBy,
		InviteeID:        inv.UserID,
	}
}

// Invite creates a pending invitation for inviteeID on the event. Inviting
// an already-invited user returns the existing invitation unchanged. A
// fresh invitation notifies the invitee.
func (s *Service) Invite(ctx context.Context, actor *identity.User, eventID, inviteeID int64) (*Invitation, bool, error) {
	summary, err := s.events.EventSummary(ctx, eventID)
	if err != nil {
		return nil, false, err
	}

	createTarget := authz.Target{
		Kind:             authz.KindInvitation,
		EventID:          eventID,
		ProjectID:        summary.ProjectID,
		ProjectCreatorID: summary.ProjectCreatorID,
		OrganizerID:      summary.OrganizerID,
	}
	decision, err := s.policy.Can(ctx, actor, authz.ActionCreate, createTarget)
	if err != nil {
		return nil, false, err
	}
	if !decision.Allowed {
		return nil, false, fmt.Errorf("%w: %s", ErrPermissionDenied, decision.Reason)
	}
	if inviteeID == 0 {
		return nil, false, fmt.Errorf("%w: invitee is required", ErrValidation)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, false, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	inv, created, err := s.store.Create(ctx, tx, eventID, inviteeID, actor.ID)
	if err != nil {
		return nil, false, err
	}
	if created {
		invitationID := inv.ID
		err = s.notify.Emit(ctx, tx, &notify.Notification{
			UserID:       inviteeID,
			Type:         notify.TypeEventInvitation,
			Message:      fmt.Sprintf("%s invited you to %q", actor.Username, summary.Title),
			EventID:      &summary.ID,
			InvitationID: &invitationID,
		})
		if err != nil {
			return nil, false, err
		}
	}
	if err := tx.Commit(); err != nil {
		return nil, false, fmt.Errorf("committing invitation: %w", err)
	}
	if created {
		s.notify.Committed(ctx, inviteeID)
	}

	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"invitation_id": inv.ID,
		"event_id":      eventID,
		"invitee_id":    inviteeID,
		"created":       created,
	}).Info("invitation issued")
	return inv, created, nil
}

// Respond records the invitee's answer and applies its side effects in one
// transaction: accept adds the invitee to the participant list and notifies
// the organizer plus, when distinct, the project creator; decline removes
// the invitee and notifies the organizer only. Responding again overwrites
// the previous answer.
func (s *Service) Respond(ctx context.Context, actor *identity.User, invitationID int64, response Status) (*Invitation, error) {
	if response != StatusAccepted && response != StatusDeclined {
		return nil, fmt.Errorf("%w: response must be accepted or declined", ErrValidation)
	}

	inv, err := s.store.Get(ctx, invitationID)
	if err != nil {
		return nil, err
	}
	summary, err := s.events.EventSummary(ctx, inv.EventID)
	if err != nil {
		return nil, err
	}

	decision, err := s.policy.Can(ctx, actor, authz.ActionRespond, s.target(inv, summary))
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, decision.Reason)
	}

	now := s.now()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := s.store.UpdateStatus(ctx, tx, inv.ID, response, now); err != nil {
		return nil, err
	}

	// Never notify the responder about their own response.
	recipients := make([]int64, 0, 2)
	if summary.OrganizerID != actor.ID {
		recipients = append(recipients, summary.OrganizerID)
	}
	if response == StatusAccepted {
		if err := s.events.AddParticipant(ctx, tx, inv.EventID, inv.UserID); err != nil {
			return nil, err
		}
		if summary.ProjectCreatorID != summary.OrganizerID && summary.ProjectCreatorID != actor.ID {
			recipients = append(recipients, summary.ProjectCreatorID)
		}
	} else {
		if err := s.events.RemoveParticipant(ctx, tx, inv.EventID, inv.UserID); err != nil {
			return nil, err
		}
	}

	message := fmt.Sprintf("%s accepted the invitation to %q", actor.Username, summary.Title)
	if response == StatusDeclined {
		message = fmt.Sprintf("%s declined the invitation to %q", actor.Username, summary.Title)
	}
	for _, recipient := range recipients {
		err = s.notify.Emit(ctx, tx, &notify.Notification{
			UserID:       recipient,
			Type:         notify.TypeInvitationResponse,
			Message:      message,
			EventID:      &summary.ID,
			InvitationID: &inv.ID,
		})
		if err != nil {
			return nil, err
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("committing invitation response: %w", err)
	}
	s.notify.Committed(ctx, recipients...)

	if s.metrics != nil {
		s.metrics.InvitationTransitionsTotal.WithLabelValues(string(response)).Inc()
	}
	observability.FromContext(ctx).WithFields(map[string]interface{}{
		"invitation_id": inv.ID,
		"event_id":      inv.EventID,
		"response":      response,
	}).Info("invitation response recorded")

	inv.Status = response
	inv.RespondedAt = &now
	inv.UpdatedAt = now
	return inv, nil
}

// ListMine returns the actor's own invitations.
func (s *Service) ListMine(ctx context.Context, actor *identity.User, status Status, limit, offset int) ([]*Invitation, error) {
	if status != "" && !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", ErrValidation, status)
	}
	return s.store.ListForUser(ctx, actor.ID, status, limit, offset)
}

// ListForEvent returns an event's invitations to an actor who may view the
// event.
func (s *Service) ListForEvent(ctx context.Context, actor *identity.User, eventID int64) ([]*Invitation, error) {
	summary, err := s.events.EventSummary(ctx, eventID)
	if err != nil {
		return nil, err
	}
	eventTarget := authz.Target{
		Kind:             authz.KindEvent,
		ID:               eventID,
		ProjectID:        summary.ProjectID,
		ProjectCreatorID: summary.ProjectCreatorID,
		OrganizerID:      summary.OrganizerID,
	}
	decision, err := s.policy.Can(ctx, actor, authz.ActionView, eventTarget)
	if err != nil {
		return nil, err
	}
	if !decision.Allowed {
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, decision.Reason)
	}
	return s.store.ListForEvent(ctx, eventID)
}

// Revoke deletes an invitation. Allowed to the inviter and admins.
func (s *Service) Revoke(ctx context.Context, actor *identity.User, invitationID int64) error {
	inv, err := s.store.Get(ctx, invitationID)
	if err != nil {
		return err
	}
	summary, err := s.events.EventSummary(ctx, inv.EventID)
	if err != nil {
		return err
	}
	decision, err := s.policy.Can(ctx, actor, authz.ActionDelete, s.target(inv, summary))
	if err != nil {
		return err
	}
	if !decision.Allowed {
		return fmt.Errorf("%w: %s", ErrPermissionDenied, decision.Reason)
	}
	return s.store.Delete(ctx, invitationID)
}

// PendingCount returns the actor's number of unanswered invitations.
func (s *Service) PendingCount(ctx context.Context, actor *identity.User) (int64, error) {
	return s.store.CountPending(ctx, actor.ID)
}
