package notify

import (
	"context"
	"fmt"

	"github.com/concord-hq/concord/pkg/observability"
	"github.com/concord-hq/concord/pkg/storage"
)

// Service is the notification fan-out and read-state layer. The unread badge
// count is cached in redis when a cache is configured; the database stays the
// source of truth and the cache is invalidated on every read-state change.
type Service struct {
	store   *Store
	cache   *storage.Cache
	metrics *observability.Metrics
}

// NewService builds the service. cache and metrics may be nil.
func NewService(store *Store, cache *storage.Cache, metrics *observability.Metrics) *Service {
	return &Service{store: store, cache: cache, metrics: metrics}
}

// Emit inserts a notification through q, which is usually the caller's open
// transaction. Cache and metrics bookkeeping for transactional emits must
// wait for the commit; call Committed afterwards.
func (s *Service) Emit(ctx context.Context, q storage.Queryer, n *Notification) error {
	if !n.Type.Valid() {
		return fmt.Errorf("unknown notification type %q", n.Type)
	}
	if err := s.store.Create(ctx, q, n); err != nil {
		return err
	}
	if s.metrics != nil {
		s.metrics.NotificationsEmittedTotal.WithLabelValues(string(n.Type)).Inc()
	}
	return nil
}

// Committed invalidates the cached unread counts of the given recipients.
// Called after the transaction that emitted their notifications commits.
// Cache failures are logged and swallowed; the next UnreadCount falls back
// to the database.
func (s *Service) Committed(ctx context.Context, userIDs ...int64) {
	if s.cache == nil {
		return
	}
	logger := observability.FromContext(ctx)
	seen := make(map[int64]struct{}, len(userIDs))
	for _, id := range userIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if err := s.cache.InvalidateUnreadCount(ctx, id); err != nil {
			logger.WithError(err).WithField("user_id", id).Warn("invalidating unread count cache")
		}
	}
}

// List returns the actor's notifications, newest first.
func (s *Service) List(ctx context.Context, userID int64, unreadOnly bool, limit, offset int) ([]*Notification, error) {
	return s.store.ListForUser(ctx, userID, unreadOnly, limit, offset)
}

// UnreadCount returns the actor's unread badge count, serving from cache
// when possible.
func (s *Service) UnreadCount(ctx context.Context, userID int64) (int64, error) {
	if s.cache != nil {
		count, ok, err := s.cache.GetUnreadCount(ctx, userID)
		if err != nil {
			observability.FromContext(ctx).WithError(err).Warn("reading unread count cache")
		} else if ok {
			return count, nil
		}
	}

	count, err := s.store.CountUnread(ctx, userID)
	if err != nil {
		return 0, err
	}
	if s.cache != nil {
		if err := s.cache.SetUnreadCount(ctx, userID, count); err != nil {
			observability.FromContext(ctx).WithError(err).Warn("priming unread count cache")
		}
	}
	return count, nil
}

// MarkRead marks one of the actor's notifications read and drops the cached
// badge count.
func (s *Service) MarkRead(ctx context.Context, id, userID int64) error {
	if err := s.store.MarkRead(ctx, id, userID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

// MarkAllRead marks everything read and returns how many changed.
func (s *Service) MarkAllRead(ctx context.Context, userID int64) (int64, error) {
	count, err := s.store.MarkAllRead(ctx, userID)
	if err != nil {
		return 0, err
	}
	s.invalidate(ctx, userID)
	return count, nil
}

// Delete removes one of the actor's notifications.
func (s *Service) Delete(ctx context.Context, id, userID int64) error {
	if err := s.store.Delete(ctx, id, userID); err != nil {
		return err
	}
	s.invalidate(ctx, userID)
	return nil
}

func (s *Service) invalidate(ctx context.Context, userID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.InvalidateUnreadCount(ctx, userID); err != nil {
		observability.FromContext(ctx).WithError(err).WithField("user_id", userID).Warn("invalidating unread count cache")
	}
}
