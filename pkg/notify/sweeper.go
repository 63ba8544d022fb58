package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/concord-hq/concord/pkg/observability"
)

// Sweeper generates deliverable_due reminders for work coming due. Each
// eligible deliverable gets at most one reminder per calendar day, enforced
// by the candidate query, so re-running a sweep is harmless.
type Sweeper struct {
	store   *Store
	service *Service
	window  time.Duration
	now     func() time.Time
}

// NewSweeper builds a sweeper that reminds about deliverables due within
// window.
func NewSweeper(store *Store, service *Service, window time.Duration) *Sweeper {
	return &Sweeper{store: store, service: service, window: window, now: time.Now}
}

// Run performs one sweep and returns how many reminders were created.
func (s *Sweeper) Run(ctx context.Context) (int, error) {
	logger := observability.FromContext(ctx)
	now := s.now()

	candidates, err := s.store.DueSoonCandidates(ctx, now, s.window)
	if err != nil {
		return 0, fmt.Errorf("collecting due deliverables: %w", err)
	}

	created := 0
	recipients := make([]int64, 0, len(candidates))
	for _, d := range candidates {
		deliverableID := d.ID
		n := &Notification{
			UserID:        d.AssigneeID,
			Type:          TypeDeliverableDue,
			Message:       fmt.Sprintf("Deliverable %q is due %s", d.Title, d.DueDate.Format("Jan 2 15:04")),
			DeliverableID: &deliverableID,
		}
		if err := s.service.Emit(ctx, s.store.DB(), n); err != nil {
			logger.WithError(err).WithField("deliverable_id", d.ID).Error("emitting due reminder")
			continue
		}
		created++
		recipients = append(recipients, d.AssigneeID)
	}
	s.service.Committed(ctx, recipients...)

	if created > 0 {
		logger.WithField("count", created).Info("due-soon reminders created")
	}
	return created, nil
}
