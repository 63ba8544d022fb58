package audit

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store persists the audit trail
type Store struct {
	db *sql.DB
}

// NewStore creates a new audit store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const entryColumns = "id, actor_id, action, method, path, status_code, request_id, remote_addr, created_at"

// Record appends one entry to the trail
func (s *Store) Record(ctx context.Context, e *Entry) error {
	query := `
		INSERT INTO audit_log (actor_id, action, method, path, status_code, request_id, remote_addr)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`

	err := s.db.QueryRowContext(ctx, query,
		e.ActorID, e.Action, e.Method, e.Path, e.StatusCode, e.RequestID, e.RemoteAddr,
	).Scan(&e.ID, &e.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record audit entry: %w", err)
	}
	return nil
}

// List returns entries newest first, narrowed by the filter
func (s *Store) List(ctx context.Context, f Filter, limit, offset int) ([]*Entry, error) {
	query := "SELECT " + entryColumns + " FROM audit_log WHERE 1=1"
	args := []interface{}{}

	if f.ActorID != nil {
		args = append(args, *f.ActorID)
		query += fmt.Sprintf(" AND actor_id = $%d", len(args))
	}
	if f.Action != "" {
		args = append(args, f.Action)
		query += fmt.Sprintf(" AND action = $%d", len(args))
	}
	if f.Since != nil {
		args = append(args, *f.Since)
		query += fmt.Sprintf(" AND created_at >= $%d", len(args))
	}
	if f.Until != nil {
		args = append(args, *f.Until)
		query += fmt.Sprintf(" AND created_at < $%d", len(args))
	}

	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", len(args))
	args = append(args, offset)
	query += fmt.Sprintf(" OFFSET $%d", len(args))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var actorID sql.NullInt64
		if err := rows.Scan(&e.ID, &actorID, &e.Action, &e.Method, &e.Path,
			&e.StatusCode, &e.RequestID, &e.RemoteAddr, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}
		if actorID.Valid {
			e.ActorID = &actorID.Int64
		}
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// Purge removes entries recorded before the cutoff and reports how many
// rows were deleted
func (s *Store) Purge(ctx context.Context, before time.Time) (int64, error) {
	result, err := s.db.ExecContext(ctx, `DELETE FROM audit_log WHERE created_at < $1`, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge audit entries: %w", err)
	}
	return result.RowsAffected()
}
