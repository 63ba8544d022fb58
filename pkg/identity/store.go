package identity

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when a user or token does not exist
var ErrNotFound = errors.New("not found")

// Store persists users, capabilities, and API tokens
type Store struct {
	db *sql.DB
}

// NewStore creates a new identity store
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// CreateUser inserts a new user account
func (s *Store) CreateUser(ctx context.Context, username, email, fullName string, role Role) (*User, error) {
	query := `
		INSERT INTO users (username, email, full_name, role)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	user := &User{
		Username:     username,
		Email:        email,
		FullName:     fullName,
		Role:         role,
		Capabilities: DefaultCapabilities(),
	}
	err := s.db.QueryRowContext(ctx, query, username, email, fullName, role).
		Scan(&user.ID, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	return user, nil
}

// GetUser retrieves a user by ID with resolved capabilities
func (s *Store) GetUser(ctx context.Context, id int64) (*User, error) {
	query := `
		SELECT id, username, email, full_name, role, created_at, updated_at
		FROM users
		WHERE id = $1
	`
	user, err := s.scanUser(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		return nil, err
	}

	caps, err := s.Capabilities(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Capabilities = caps

	return user, nil
}

// GetUserByUsername retrieves a user by username with resolved capabilities
func (s *Store) GetUserByUsername(ctx context.Context, username string) (*User, error) {
	query := `
		SELECT id, username, email, full_name, role, created_at, updated_at
		FROM users
		WHERE username = $1
	`
	user, err := s.scanUser(s.db.QueryRowContext(ctx, query, username))
	if err != nil {
		return nil, err
	}

	caps, err := s.Capabilities(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Capabilities = caps

	return user, nil
}

func (s *Store) scanUser(row *sql.Row) (*User, error) {
	user := &User{}
	var email, fullName sql.NullString
	err := row.Scan(&user.ID, &user.Username, &email, &fullName, &user.Role,
		&user.CreatedAt, &user.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("user: %w", ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get user: %w", err)
	}

	if email.Valid {
		user.Email = email.String
	}
	if fullName.Valid {
		user.FullName = fullName.String
	}

	return user, nil
}

// ListUsers retrieves all users with resolved capabilities
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	query := `
		SELECT id, username, email, full_name, role, created_at, updated_at
		FROM users
		ORDER BY username ASC
	`
	return s.listUsers(ctx, query)
}

// ListUsersByRole retrieves all users holding a role
func (s *Store) ListUsersByRole(ctx context.Context, role Role) ([]*User, error) {
	query := `
		SELECT id, username, email, full_name, role, created_at, updated_at
		FROM users
		WHERE role = $1
		ORDER BY username ASC
	`
	return s.listUsers(ctx, query, role)
}

func (s *Store) listUsers(ctx context.Context, query string, args ...interface{}) ([]*User, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list users: %w", err)
	}
	defer rows.Close()

	var users []*User
	byID := make(map[int64]*User)
	for rows.Next() {
		user := &User{Capabilities: DefaultCapabilities()}
		var email, fullName sql.NullString
		if err := rows.Scan(&user.ID, &user.Username, &email, &fullName, &user.Role,
			&user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		if email.Valid {
			user.Email = email.String
		}
		if fullName.Valid {
			user.FullName = fullName.String
		}
		users = append(users, user)
		byID[user.ID] = user
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	if err := s.overlayAllCapabilities(ctx, byID); err != nil {
		return nil, err
	}

	return users, nil
}

// UpdateUserRole changes a user's role tier
func (s *Store) UpdateUserRole(ctx context.Context, id int64, role Role) error {
	query := `UPDATE users SET role = $1, updated_at = $2 WHERE id = $3`
	result, err := s.db.ExecContext(ctx, query, role, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update user role: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user: %w", ErrNotFound)
	}

	return nil
}

// Capabilities resolves a user's capability set: account defaults with
// stored per-capability overrides applied on top.
func (s *Store) Capabilities(ctx context.Context, userID int64) (CapabilitySet, error) {
	query := `SELECT capability, enabled FROM user_capabilities WHERE user_id = $1`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return 0, fmt.Errorf("failed to load capabilities: %w", err)
	}
	defer rows.Close()

	set := DefaultCapabilities()
	for rows.Next() {
		var cap Capability
		var enabled bool
		if err := rows.Scan(&cap, &enabled); err != nil {
			return 0, fmt.Errorf("failed to scan capability: %w", err)
		}
		if enabled {
			set = set.With(cap)
		} else {
			set = set.Without(cap)
		}
	}
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("failed to iterate capabilities: %w", err)
	}

	return set, nil
}

// overlayAllCapabilities applies stored overrides to an already loaded user map
func (s *Store) overlayAllCapabilities(ctx context.Context, byID map[int64]*User) error {
	if len(byID) == 0 {
		return nil
	}

	query := `SELECT user_id, capability, enabled FROM user_capabilities`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return fmt.Errorf("failed to load capabilities: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var userID int64
		var cap Capability
		var enabled bool
		if err := rows.Scan(&userID, &cap, &enabled); err != nil {
			return fmt.Errorf("failed to scan capability: %w", err)
		}
		user, ok := byID[userID]
		if !ok {
			continue
		}
		if enabled {
			user.Capabilities = user.Capabilities.With(cap)
		} else {
			user.Capabilities = user.Capabilities.Without(cap)
		}
	}
	return rows.Err()
}

// SetCapability persists a capability override for a user. The upsert
// makes repeated grants and revocations idempotent.
func (s *Store) SetCapability(ctx context.Context, userID int64, cap Capability, enabled bool) error {
	query := `
		INSERT INTO user_capabilities (user_id, capability, enabled)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id, capability) DO UPDATE SET enabled = $3
	`
	if _, err := s.db.ExecContext(ctx, query, userID, cap, enabled); err != nil {
		return fmt.Errorf("failed to set capability: %w", err)
	}

	return nil
}

// CreateToken stores a new API token
func (s *Store) CreateToken(ctx context.Context, token *APIToken) error {
	query := `
		INSERT INTO api_tokens (user_id, token_hash, name, expires_at)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query, token.UserID, token.TokenHash, token.Name, token.ExpiresAt).
		Scan(&token.ID, &token.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create token: %w", err)
	}

	return nil
}

// GetUserByTokenHash looks up an unexpired token and its owner
func (s *Store) GetUserByTokenHash(ctx context.Context, tokenHash string, now time.Time) (*User, error) {
	query := `
		SELECT u.id, u.username, u.email, u.full_name, u.role, u.created_at, u.updated_at
		FROM api_tokens t
		JOIN users u ON u.id = t.user_id
		WHERE t.token_hash = $1 AND t.expires_at > $2
	`
	user, err := s.scanUser(s.db.QueryRowContext(ctx, query, tokenHash, now))
	if err != nil {
		return nil, err
	}

	caps, err := s.Capabilities(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	user.Capabilities = caps

	return user, nil
}

// TouchToken records token usage
func (s *Store) TouchToken(ctx context.Context, tokenHash string, now time.Time) error {
	query := `UPDATE api_tokens SET last_used_at = $1 WHERE token_hash = $2`
	if _, err := s.db.ExecContext(ctx, query, now, tokenHash); err != nil {
		return fmt.Errorf("failed to touch token: %w", err)
	}
	return nil
}

// ListUserTokens lists a user's tokens, newest first
func (s *Store) ListUserTokens(ctx context.Context, userID int64) ([]*APIToken, error) {
	query := `
		SELECT id, user_id, token_hash, name, expires_at, created_at, last_used_at
		FROM api_tokens
		WHERE user_id = $1
		ORDER BY created_at DESC
	`
	rows, err := s.db.QueryContext(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list tokens: %w", err)
	}
	defer rows.Close()

	var tokens []*APIToken
	for rows.Next() {
		token := &APIToken{}
		var lastUsed sql.NullTime
		if err := rows.Scan(&token.ID, &token.UserID, &token.TokenHash, &token.Name,
			&token.ExpiresAt, &token.CreatedAt, &lastUsed); err != nil {
			return nil, fmt.Errorf("failed to scan token: %w", err)
		}
		if lastUsed.Valid {
			token.LastUsedAt = &lastUsed.Time
		}
		tokens = append(tokens, token)
	}

	return tokens, rows.Err()
}

// DeleteToken removes a token owned by the user
func (s *Store) DeleteToken(ctx context.Context, tokenID, userID int64) error {
	query := `DELETE FROM api_tokens WHERE id = $1 AND user_id = $2`
	result, err := s.db.ExecContext(ctx, query, tokenID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete token: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("token: %w", ErrNotFound)
	}

	return nil
}

// DeleteExpiredTokens removes all expired tokens
func (s *Store) DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error) {
	query := `DELETE FROM api_tokens WHERE expires_at <= $1`
	result, err := s.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired tokens: %w", err)
	}

	return result.RowsAffected()
}
