package notify

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/concord-hq/concord/pkg/storage"
)

// ErrNotFound is returned when a notification does not exist or belongs to
// another user.
var ErrNotFound = errors.New("notification not found")

// Store persists notifications.
type Store struct {
	db *sql.DB
}

// NewStore returns a store over the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for transaction-scoped work.
func (s *Store) DB() *sql.DB {
	return s.db
}

const notificationColumns = "id, user_id, type, message, event_id, decision_id, deliverable_id, invitation_id, read, created_at"

// Create inserts a notification through q, which may be a transaction.
func (s *Store) Create(ctx context.Context, q storage.Queryer, n *Notification) error {
	err := q.QueryRowContext(ctx, `
		INSERT INTO notifications (user_id, type, message, event_id, decision_id, deliverable_id, invitation_id)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`,
		n.UserID, n.Type, n.Message, n.EventID, n.DecisionID, n.DeliverableID, n.InvitationID,
	).Scan(&n.ID, &n.CreatedAt)
	if err != nil {
		return fmt.Errorf("inserting notification: %w", err)
	}
	return nil
}

// ListForUser returns the user's notifications, newest first.
func (s *Store) ListForUser(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]*Notification, error) {
	query := `
		SELECT ` + notificationColumns + `
		FROM notifications
		WHERE user_id = $1`
	args := []interface{}{userID}
	if unreadOnly {
		query += " AND read = FALSE"
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing notifications: %w", err)
	}
	defer rows.Close()

	var notifications []*Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, err
		}
		notifications = append(notifications, n)
	}
	return notifications, rows.Err()
}

// Get returns one notification owned by userID.
func (s *Store) Get(ctx context.Context, id, userID int64) (*Notification, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE id = $1 AND user_id = $2`, id, userID)
	n, err := scanNotification(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return n, err
}

// CountUnread returns the number of unread notifications for the user.
func (s *Store) CountUnread(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM notifications WHERE user_id = $1 AND read = FALSE",
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting unread notifications: %w", err)
	}
	return count, nil
}

// MarkRead marks one notification read. Only the recipient's own rows match.
func (s *Store) MarkRead(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = TRUE WHERE id = $1 AND user_id = $2",
		id, userID)
	if err != nil {
		return fmt.Errorf("marking notification read: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// MarkAllRead marks every unread notification of the user read and returns
// how many rows changed.
func (s *Store) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"UPDATE notifications SET read = TRUE WHERE user_id = $1 AND read = FALSE",
		userID)
	if err != nil {
		return 0, fmt.Errorf("marking notifications read: %w", err)
	}
	return res.RowsAffected()
}

// Delete removes one notification owned by userID.
func (s *Store) Delete(ctx context.Context, id, userID int64) error {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM notifications WHERE id = $1 AND user_id = $2",
		id, userID)
	if err != nil {
		return fmt.Errorf("deleting notification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DueSoonCandidates returns incomplete, assigned deliverables whose due date
// falls in [now, now+window) and that have not been reminded since startOfDay.
// One reminder per deliverable per day.
func (s *Store) DueSoonCandidates(ctx context.Context, now time.Time, window time.Duration) ([]DueDeliverable, error) {
	startOfDay := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location())
	rows, err := s.db.QueryContext(ctx, `
		SELECT deliverables.id, deliverables.title, deliverables.assignee_id, deliverables.due_date
		FROM deliverables
		WHERE deliverables.due_date >= $1
		  AND deliverables.due_date < $2
		  AND deliverables.status != 'completed'
		  AND deliverables.assignee_id IS NOT NULL
		  AND NOT EXISTS (
			SELECT 1 FROM notifications n
			WHERE n.deliverable_id = deliverables.id
			  AND n.type = 'deliverable_due'
			  AND n.created_at >= $3
		  )
		ORDER BY deliverables.due_date`,
		now, now.Add(window), startOfDay)
	if err != nil {
		return nil, fmt.Errorf("querying due deliverables: %w", err)
	}
	defer rows.Close()

	var due []DueDeliverable
	for rows.Next() {
		var d DueDeliverable
		if err := rows.Scan(&d.ID, &d.Title, &d.AssigneeID, &d.DueDate); err != nil {
			return nil, fmt.Errorf("scanning due deliverable: %w", err)
		}
		due = append(due, d)
	}
	return due, rows.Err()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanNotification(row scanner) (*Notification, error) {
	var n Notification
	err := row.Scan(&n.ID, &n.UserID, &n.Type, &n.Message,
		&n.EventID, &n.DecisionID, &n.DeliverableID, &n.InvitationID,
		&n.Read, &n.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &n, nil
}
