package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/concord-hq/concord/pkg/observability"
)

// ErrPermissionDenied is returned when the acting user may not perform
// an account-management operation
var ErrPermissionDenied = errors.New("permission denied")

// ErrUnknownCapability is returned for capability names outside the
// enumerated set. Mutations of unknown capabilities are reported, not
// silently ignored.
var ErrUnknownCapability = errors.New("unknown capability")

// ErrValidation is returned for malformed account-management input
var ErrValidation = errors.New("validation failed")

// Service implements account, capability, and token management
type Service struct {
	store     *Store
	generator *TokenGenerator
	metrics   *observability.Metrics
	tokenTTL  time.Duration
}

// NewService creates a new identity service. metrics may be nil.
func NewService(store *Store, metrics *observability.Metrics, tokenTTL time.Duration) *Service {
	return &Service{
		store:     store,
		generator: NewTokenGenerator(),
		metrics:   metrics,
		tokenTTL:  tokenTTL,
	}
}

// Store exposes the underlying store for wiring
func (s *Service) Store() *Store {
	return s.store
}

// CreateUser creates an account. Only admins manage accounts.
func (s *Service) CreateUser(ctx context.Context, actor *User, username, email, fullName string, role Role) (*User, error) {
	if !actor.IsAdmin() {
		return nil, fmt.Errorf("create user: %w", ErrPermissionDenied)
	}
	if username == "" {
		return nil, fmt.Errorf("%w: username is required", ErrValidation)
	}
	if !role.Valid() {
		return nil, fmt.Errorf("%w: invalid role %q", ErrValidation, role)
	}

	user, err := s.store.CreateUser(ctx, username, email, fullName, role)
	if err != nil {
		return nil, err
	}

	observability.FromContext(ctx).
		WithField("user_id", user.ID).
		WithField("role", string(role)).
		Info("User created")

	return user, nil
}

// GetUser retrieves a single account
func (s *Service) GetUser(ctx context.Context, id int64) (*User, error) {
	return s.store.GetUser(ctx, id)
}

// ListUsers retrieves all accounts
func (s *Service) ListUsers(ctx context.Context) ([]*User, error) {
	return s.store.ListUsers(ctx)
}

// ListUsersByRole retrieves all accounts holding a role tier
func (s *Service) ListUsersByRole(ctx context.Context, role Role) ([]*User, error) {
	if !role.Valid() {
		return nil, fmt.Errorf("%w: invalid role %q", ErrValidation, role)
	}
	return s.store.ListUsersByRole(ctx, role)
}

// UpdateRole changes an account's role tier. Only admins manage roles.
func (s *Service) UpdateRole(ctx context.Context, actor *User, userID int64, role Role) error {
	if !actor.IsAdmin() {
		return fmt.Errorf("update role: %w", ErrPermissionDenied)
	}
	if !role.Valid() {
		return fmt.Errorf("%w: invalid role %q", ErrValidation, role)
	}

	if err := s.store.UpdateUserRole(ctx, userID, role); err != nil {
		return err
	}

	observability.FromContext(ctx).
		WithField("user_id", userID).
		WithField("role", string(role)).
		Info("User role updated")

	return nil
}

// GrantCapability enables a capability for a user. Admins and
// management may grant; the operation is idempotent.
func (s *Service) GrantCapability(ctx context.Context, actor *User, userID int64, cap Capability) error {
	return s.setCapability(ctx, actor, userID, cap, true)
}

// RevokeCapability disables a capability for a user. Admins and
// management may revoke; the operation is idempotent.
func (s *Service) RevokeCapability(ctx context.Context, actor *User, userID int64, cap Capability) error {
	return s.setCapability(ctx, actor, userID, cap, false)
}

func (s *Service) setCapability(ctx context.Context, actor *User, userID int64, cap Capability, enabled bool) error {
	if !actor.IsAdmin() && !actor.IsManagement() {
		return fmt.Errorf("modify capabilities: %w", ErrPermissionDenied)
	}
	if !cap.Known() {
		return fmt.Errorf("%w: %s", ErrUnknownCapability, cap)
	}

	// Confirm the target exists so a bad ID is reported, not absorbed
	// by the upsert.
	if _, err := s.store.GetUser(ctx, userID); err != nil {
		return err
	}

	if err := s.store.SetCapability(ctx, userID, cap, enabled); err != nil {
		return err
	}

	mutation := "revoke"
	if enabled {
		mutation = "grant"
	}
	if s.metrics != nil {
		s.metrics.CapabilityMutationsTotal.WithLabelValues(string(cap), mutation).Inc()
	}

	observability.FromContext(ctx).
		WithField("user_id", userID).
		WithField("capability", string(cap)).
		WithField("mutation", mutation).
		Info("Capability updated")

	return nil
}

// Capabilities returns a user's resolved capability set
func (s *Service) Capabilities(ctx context.Context, userID int64) (CapabilitySet, error) {
	return s.store.Capabilities(ctx, userID)
}

// CheckCapability reports whether a user holds a capability. The check
// fails closed: unknown capabilities and lookup errors are both false.
func (s *Service) CheckCapability(user *User, cap Capability) bool {
	allowed := user.HasCapability(cap)

	if s.metrics != nil {
		outcome := "deny"
		if allowed {
			outcome = "allow"
		}
		s.metrics.CapabilityChecksTotal.WithLabelValues(string(cap), outcome).Inc()
	}

	return allowed
}

// IssueToken creates an API token for a user. Users issue tokens for
// themselves; admins may issue for anyone. The plaintext token is
// returned exactly once.
func (s *Service) IssueToken(ctx context.Context, actor *User, userID int64, name string) (*APIToken, string, error) {
	if actor.ID != userID && !actor.IsAdmin() {
		return nil, "", fmt.Errorf("issue token: %w", ErrPermissionDenied)
	}

	plaintext, hash, err := s.generator.GenerateToken()
	if err != nil {
		return nil, "", err
	}

	token := &APIToken{
		UserID:    userID,
		TokenHash: hash,
		Name:      name,
		ExpiresAt: time.Now().UTC().Add(s.tokenTTL),
	}
	if err := s.store.CreateToken(ctx, token); err != nil {
		return nil, "", err
	}

	observability.FromContext(ctx).
		WithField("user_id", userID).
		WithField("token_id", token.ID).
		Info("API token issued")

	return token, plaintext, nil
}

// Authenticate resolves a bearer token to its user, failing closed on
// malformed, unknown, or expired tokens.
func (s *Service) Authenticate(ctx context.Context, token string) (*User, error) {
	if err := s.generator.ValidateTokenFormat(token); err != nil {
		return nil, fmt.Errorf("invalid token format: %w", err)
	}

	now := time.Now().UTC()
	hash := s.generator.HashToken(token)

	user, err := s.store.GetUserByTokenHash(ctx, hash, now)
	if err != nil {
		return nil, err
	}

	// Usage tracking is best effort
	if err := s.store.TouchToken(ctx, hash, now); err != nil {
		observability.FromContext(ctx).WithError(err).Warn("Failed to record token usage")
	}

	return user, nil
}

// ListTokens lists a user's tokens
func (s *Service) ListTokens(ctx context.Context, actor *User, userID int64) ([]*APIToken, error) {
	if actor.ID != userID && !actor.IsAdmin() {
		return nil, fmt.Errorf("list tokens: %w", ErrPermissionDenied)
	}
	return s.store.ListUserTokens(ctx, userID)
}

// RevokeToken deletes a token
func (s *Service) RevokeToken(ctx context.Context, actor *User, tokenID, userID int64) error {
	if actor.ID != userID && !actor.IsAdmin() {
		return fmt.Errorf("revoke token: %w", ErrPermissionDenied)
	}
	return s.store.DeleteToken(ctx, tokenID, userID)
}
