package tracker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/concord-hq/concord/pkg/authz"
	"github.com/concord-hq/concord/pkg/storage"
)

// --- decisions ---

const decisionColumns = "id, event_id, description, created_by, created_at, updated_at"

// CreateDecision inserts a decision through q.
func (s *Store) CreateDecision(ctx context.Context, q storage.Queryer, d *Decision) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO decisions (event_id, description, created_by)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at`,
		d.EventID, d.Description, d.CreatedBy,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting decision: %w", err)
	}
	return nil
}

// GetDecision returns one decision.
func (s *Store) GetDecision(ctx context.Context, id int64) (*Decision, error) {
	row := s.db.Replica().QueryRowContext(ctx,
		"SELECT "+decisionColumns+" FROM decisions WHERE id = $1", id)
	d, err := scanDecision(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("decision %d: %w", id, ErrNotFound)
	}
	return d, err
}

// ListDecisions returns the decisions admitted by pred, newest first, with an
// optional event filter. pred must have been built with its placeholders
// starting at 1.
func (s *Store) ListDecisions(ctx context.Context, pred authz.Predicate, eventID int64, limit, offset int) ([]*Decision, error) {
	query := "SELECT " + decisionColumns + " FROM decisions WHERE " + pred.Where
	args := append([]interface{}{}, pred.Args...)

	if eventID != 0 {
		query += fmt.Sprintf(" AND event_id = $%d", len(args)+1)
		args = append(args, eventID)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing decisions: %w", err)
	}
	defer rows.Close()

	var decisions []*Decision
	for rows.Next() {
		d, err := scanDecision(rows)
		if err != nil {
			return nil, err
		}
		decisions = append(decisions, d)
	}
	return decisions, rows.Err()
}

// UpdateDecision saves the description.
func (s *Store) UpdateDecision(ctx context.Context, d *Decision) error {
	res, err := s.db.Primary().ExecContext(ctx, `
		UPDATE decisions
		SET description = $1, updated_at = $2
		WHERE id = $3`,
		d.Description, time.Now(), d.ID)
	if err != nil {
		return fmt.Errorf("updating decision: %w", err)
	}
	return requireAffected(res, d.ID)
}

// DeleteDecision removes a decision and, via cascade, its deliverables.
func (s *Store) DeleteDecision(ctx context.Context, id int64) error {
	res, err := s.db.Primary().ExecContext(ctx, "DELETE FROM decisions WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting decision: %w", err)
	}
	return requireAffected(res, id)
}

func scanDecision(row scanner) (*Decision, error) {
	var d Decision
	err := row.Scan(&d.ID, &d.EventID, &d.Description, &d.CreatedBy, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// --- deliverables ---

const deliverableColumns = "id, decision_id, title, description, assignee_id, due_date, status, progress, created_at, updated_at"

// CreateDeliverable inserts a deliverable through q.
func (s *Store) CreateDeliverable(ctx context.Context, q storage.Queryer, d *Deliverable) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO deliverables (decision_id, title, description, assignee_id, due_date, status, progress)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		d.DecisionID, d.Title, d.Description, d.AssigneeID, d.DueDate, d.Status, d.Progress,
	).Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting deliverable: %w", err)
	}
	return nil
}

// GetDeliverable returns one deliverable.
func (s *Store) GetDeliverable(ctx context.Context, id int64) (*Deliverable, error) {
	row := s.db.Replica().QueryRowContext(ctx,
		"SELECT "+deliverableColumns+" FROM deliverables WHERE id = $1", id)
	d, err := scanDeliverable(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("deliverable %d: %w", id, ErrNotFound)
	}
	return d, err
}

// DeliverableFilter narrows deliverable listings.
type DeliverableFilter struct {
	Status      DeliverableStatus
	AssigneeID  int64
	DecisionID  int64
	OverdueOnly bool
}

// ListDeliverables returns the deliverables admitted by pred and the filter,
// due-date order with undated items last. pred must have been built with its
// placeholders starting at 1.
func (s *Store) ListDeliverables(ctx context.Context, pred authz.Predicate, filter DeliverableFilter, now time.Time, limit, offset int) ([]*Deliverable, error) {
	query := "SELECT " + deliverableColumns + " FROM deliverables WHERE " + pred.Where
	args := append([]interface{}{}, pred.Args...)

	if filter.Status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, filter.Status)
	}
	if filter.AssigneeID != 0 {
		query += fmt.Sprintf(" AND assignee_id = $%d", len(args)+1)
		args = append(args, filter.AssigneeID)
	}
	if filter.DecisionID != 0 {
		query += fmt.Sprintf(" AND decision_id = $%d", len(args)+1)
		args = append(args, filter.DecisionID)
	}
	if filter.OverdueOnly {
		query += fmt.Sprintf(" AND due_date < $%d AND status != $%d", len(args)+1, len(args)+2)
		args = append(args, now, StatusCompleted)
	}
	query += fmt.Sprintf(" ORDER BY due_date IS NULL, due_date, id LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing deliverables: %w", err)
	}
	defer rows.Close()

	var deliverables []*Deliverable
	for rows.Next() {
		d, err := scanDeliverable(rows)
		if err != nil {
			return nil, err
		}
		deliverables = append(deliverables, d)
	}
	return deliverables, rows.Err()
}

// UpdateDeliverable saves all mutable fields through q.
func (s *Store) UpdateDeliverable(ctx context.Context, q storage.Queryer, d *Deliverable) error {
	res, err := q.ExecContext(ctx, `
		UPDATE deliverables
		SET title = $1, description = $2, assignee_id = $3, due_date = $4, status = $5, progress = $6, updated_at = $7
		WHERE id = $8`,
		d.Title, d.Description, d.AssigneeID, d.DueDate, d.Status, d.Progress, time.Now(), d.ID)
	if err != nil {
		return fmt.Errorf("updating deliverable: %w", err)
	}
	return requireAffected(res, d.ID)
}

// UpdateDeliverableProgress saves only progress and status.
func (s *Store) UpdateDeliverableProgress(ctx context.Context, id int64, progress int, status DeliverableStatus) error {
	res, err := s.db.Primary().ExecContext(ctx, `
		UPDATE deliverables
		SET progress = $1, status = $2, updated_at = $3
		WHERE id = $4`,
		progress, status, time.Now(), id)
	if err != nil {
		return fmt.Errorf("updating deliverable progress: %w", err)
	}
	return requireAffected(res, id)
}

// DeleteDeliverable removes a deliverable.
func (s *Store) DeleteDeliverable(ctx context.Context, id int64) error {
	res, err := s.db.Primary().ExecContext(ctx, "DELETE FROM deliverables WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting deliverable: %w", err)
	}
	return requireAffected(res, id)
}

func scanDeliverable(row scanner) (*Deliverable, error) {
	var d Deliverable
	err := row.Scan(&d.ID, &d.DecisionID, &d.Title, &d.Description, &d.AssigneeID,
		&d.DueDate, &d.Status, &d.Progress, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// --- aggregates ---

// CountProjects counts the projects admitted by pred.
func (s *Store) CountProjects(ctx context.Context, pred authz.Predicate) (int64, error) {
	var count int64
	err := s.db.Replica().QueryRowContext(ctx,
		"SELECT COUNT(*) FROM projects WHERE "+pred.Where, pred.Args...,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting projects: %w", err)
	}
	return count, nil
}

// CountEvents counts the events admitted by pred, optionally only those
// ending after since.
func (s *Store) CountEvents(ctx context.Context, pred authz.Predicate, since *time.Time) (int64, error) {
	query := "SELECT COUNT(*) FROM events WHERE " + pred.Where
	args := append([]interface{}{}, pred.Args...)
	if since != nil {
		query += fmt.Sprintf(" AND end_time > $%d", len(args)+1)
		args = append(args, *since)
	}
	var count int64
	err := s.db.Replica().QueryRowContext(ctx, query, args...).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting events: %w", err)
	}
	return count, nil
}

// DeliverableStats returns total, completed, and overdue counts for the
// deliverables admitted by pred.
func (s *Store) DeliverableStats(ctx context.Context, pred authz.Predicate, now time.Time) (total, completed, overdue int64, err error) {
	query := fmt.Sprintf(`
		SELECT COUNT(*),
			COUNT(*) FILTER (WHERE status = $%d),
			COUNT(*) FILTER (WHERE due_date < $%d AND status != $%d)
		FROM deliverables WHERE %s`,
		len(pred.Args)+1, len(pred.Args)+2, len(pred.Args)+3, pred.Where)
	args := append(append([]interface{}{}, pred.Args...), StatusCompleted, now, StatusCompleted)
	err = s.db.Replica().QueryRowContext(ctx, query, args...).Scan(&total, &completed, &overdue)
	if err != nil {
		return 0, 0, 0, fmt.Errorf("counting deliverables: %w", err)
	}
	return total, completed, overdue, nil
}

// Workload aggregates the deliverables admitted by pred per assignee.
// Unassigned deliverables are excluded.
func (s *Store) Workload(ctx context.Context, pred authz.Predicate, now time.Time) ([]WorkloadEntry, error) {
	query := fmt.Sprintf(`
		SELECT u.id, u.username, u.full_name,
			COUNT(*),
			COUNT(*) FILTER (WHERE deliverables.status = $%d),
			COUNT(*) FILTER (WHERE deliverables.due_date < $%d AND deliverables.status != $%d)
		FROM deliverables
		JOIN users u ON u.id = deliverables.assignee_id
		WHERE %s
		GROUP BY u.id, u.username, u.full_name
		ORDER BY u.username`,
		len(pred.Args)+1, len(pred.Args)+2, len(pred.Args)+3, pred.Where)
	args := append(append([]interface{}{}, pred.Args...), StatusCompleted, now, StatusCompleted)

	rows, err := s.db.Replica().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("aggregating workload: %w", err)
	}
	defer rows.Close()

	var entries []WorkloadEntry
	for rows.Next() {
		var e WorkloadEntry
		if err := rows.Scan(&e.User.ID, &e.User.Username, &e.User.FullName,
			&e.Assigned, &e.Completed, &e.Overdue); err != nil {
			return nil, err
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// EligibleInvitees returns users who are neither participants of nor invited
// to the event.
func (s *Store) EligibleInvitees(ctx context.Context, eventID int64) ([]UserRef, error) {
	rows, err := s.db.Replica().QueryContext(ctx, `
		SELECT u.id, u.username, u.full_name
		FROM users u
		WHERE NOT EXISTS (
			SELECT 1 FROM event_participants ep WHERE ep.event_id = $1 AND ep.user_id = u.id
		) AND NOT EXISTS (
			SELECT 1 FROM invitations i WHERE i.event_id = $2 AND i.user_id = u.id
		)
		ORDER BY u.username`, eventID, eventID)
	if err != nil {
		return nil, fmt.Errorf("listing eligible invitees: %w", err)
	}
	defer rows.Close()
	return scanUserRefs(rows)
}

// AssignableUsers returns every user, for deliverable assignment pickers.
func (s *Store) AssignableUsers(ctx context.Context) ([]UserRef, error) {
	rows, err := s.db.Replica().QueryContext(ctx,
		"SELECT id, username, full_name FROM users ORDER BY username")
	if err != nil {
		return nil, fmt.Errorf("listing assignable users: %w", err)
	}
	defer rows.Close()
	return scanUserRefs(rows)
}
