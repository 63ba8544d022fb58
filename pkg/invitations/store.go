package invitations

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/concord-hq/concord/pkg/storage"
)

// ErrNotFound is returned when an invitation does not exist.
var ErrNotFound = errors.New("invitation not found")

// Store persists invitations.
type Store struct {
	db *sql.DB
}

// NewStore returns a store over the given database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const invitationColumns = "id, event_id, user_id, invited_by, status, responded_at, created_at, updated_at"

// Create inserts a pending invitation for (eventID, inviteeID). Creating a
// duplicate is idempotent: the existing row comes back untouched and created
// is false.
func (s *Store) Create(ctx context.Context, q storage.Queryer, eventID, inviteeID, inviterID int64) (*Invitation, bool, error) {
	inv, inserted, err := s.insert(ctx, q, eventID, inviteeID, inviterID, StatusPending, nil)
	if err != nil {
		return nil, false, err
	}
	return inv, inserted, nil
}

// CreateAccepted inserts an already-accepted invitation. Used when a
// participant is added directly rather than through the invite flow, so the
// audit row agrees with their membership.
func (s *Store) CreateAccepted(ctx context.Context, q storage.Queryer, eventID, inviteeID, inviterID int64, respondedAt time.Time) (*Invitation, bool, error) {
	return s.insert(ctx, q, eventID, inviteeID, inviterID, StatusAccepted, &respondedAt)
}

func (s *Store) insert(ctx context.Context, q storage.Queryer, eventID, inviteeID, inviterID int64, status Status, respondedAt *time.Time) (*Invitation, bool, error) {
	row := q.QueryRowContext(ctx, `
		INSERT INTO invitations (event_id, user_id, invited_by, status, responded_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (event_id, user_id) DO NOTHING
		RETURNING `+invitationColumns,
		eventID, inviteeID, inviterID, status, respondedAt)

	inv, err := scanInvitation(row)
	if err == nil {
		return inv, true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, false, fmt.Errorf("inserting invitation: %w", err)
	}

	// Conflict: the pair already has an invitation, fetch it.
	inv, err = s.getByEventAndUser(ctx, q, eventID, inviteeID)
	if err != nil {
		return nil, false, err
	}
	return inv, false, nil
}

// Get returns one invitation by ID.
func (s *Store) Get(ctx context.Context, id int64) (*Invitation, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+invitationColumns+" FROM invitations WHERE id = $1", id)
	inv, err := scanInvitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching invitation: %w", err)
	}
	return inv, nil
}

// GetByEventAndUser returns the invitation for the (event, invitee) pair.
func (s *Store) GetByEventAndUser(ctx context.Context, eventID, userID int64) (*Invitation, error) {
	return s.getByEventAndUser(ctx, s.db, eventID, userID)
}

func (s *Store) getByEventAndUser(ctx context.Context, q storage.Queryer, eventID, userID int64) (*Invitation, error) {
	row := q.QueryRowContext(ctx,
		"SELECT "+invitationColumns+" FROM invitations WHERE event_id = $1 AND user_id = $2",
		eventID, userID)
	inv, err := scanInvitation(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("fetching invitation: %w", err)
	}
	return inv, nil
}

// ListForUser returns the user's invitations, optionally filtered by status,
// newest first.
func (s *Store) ListForUser(ctx context.Context, userID int64, status Status, limit, offset int) ([]*Invitation, error) {
	query := "SELECT " + invitationColumns + " FROM invitations WHERE user_id = $1"
	args := []interface{}{userID}
	if status != "" {
		query += fmt.Sprintf(" AND status = $%d", len(args)+1)
		args = append(args, status)
	}
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d OFFSET $%d", len(args)+1, len(args)+2)
	args = append(args, limit, offset)

	return s.list(ctx, query, args...)
}

// ListForEvent returns every invitation on the event.
func (s *Store) ListForEvent(ctx context.Context, eventID int64) ([]*Invitation, error) {
	return s.list(ctx,
		"SELECT "+invitationColumns+" FROM invitations WHERE event_id = $1 ORDER BY created_at, id",
		eventID)
}

func (s *Store) list(ctx context.Context, query string, args ...interface{}) ([]*Invitation, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing invitations: %w", err)
	}
	defer rows.Close()

	var invitations []*Invitation
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

// UpdateStatus records a response. Re-responding overwrites the previous
// status.
func (s *Store) UpdateStatus(ctx context.Context, q storage.Queryer, id int64, status Status, respondedAt time.Time) error {
	res, err := q.ExecContext(ctx, `
		UPDATE invitations
		SET status = $1, responded_at = $2, updated_at = $3
		WHERE id = $4`,
		status, respondedAt, respondedAt, id)
	if err != nil {
		return fmt.Errorf("updating invitation status: %w", err)
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

// Delete removes an invitation.
func (s *Store) Delete(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM invitations WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting invitation: %w", err)
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

// CountPending returns the user's number of unanswered invitations.
func (s *Store) CountPending(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM invitations WHERE user_id = $1 AND status = 'pending'",
		userID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("counting pending invitations: %w", err)
	}
	return count, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanInvitation(row scanner) (*Invitation, error) {
	var inv Invitation
	err := row.Scan(&inv.ID, &inv.EventID, &inv.UserID, &inv.InvitedBy,
		&inv.Status, &inv.RespondedAt, &inv.CreatedAt, &inv.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &inv, nil
}
