package storage

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/go-redis/redis/v8"
)

// unreadCountTTL bounds staleness if an invalidation is ever missed
const unreadCountTTL = 10 * time.Minute

// Cache holds the Redis client used for the unread-notification counters
type Cache struct {
	client *redis.Client
}

// NewCache creates a new Redis cache client
func NewCache(config Config) (*Cache, error) {
	opts, err := redis.ParseURL(config.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	if config.RedisPassword != "" {
		opts.Password = config.RedisPassword
	}
	if config.RedisDB >= 0 {
		opts.DB = config.RedisDB
	}
	if config.RedisPoolSize > 0 {
		opts.PoolSize = config.RedisPoolSize
	}

	opts.DialTimeout = 5 * time.Second
	opts.ReadTimeout = 3 * time.Second
	opts.WriteTimeout = 3 * time.Second
	opts.PoolTimeout = 4 * time.Second

	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &Cache{client: client}, nil
}

func unreadKey(userID int64) string {
	return fmt.Sprintf("notifications:unread:%d", userID)
}

// GetUnreadCount returns the cached unread-notification count for a user.
// The second return value is false on a cache miss.
func (c *Cache) GetUnreadCount(ctx context.Context, userID int64) (int64, bool, error) {
	data, err := c.client.Get(ctx, unreadKey(userID)).Result()
	if err == redis.Nil {
		return 0, false, nil
	} else if err != nil {
		return 0, false, fmt.Errorf("redis get failed: %w", err)
	}

	count, err := strconv.ParseInt(data, 10, 64)
	if err != nil {
		// Corrupt value, drop it and treat as a miss
		c.client.Del(ctx, unreadKey(userID))
		return 0, false, nil
	}

	return count, true, nil
}

// SetUnreadCount stores the unread-notification count for a user
func (c *Cache) SetUnreadCount(ctx context.Context, userID, count int64) error {
	return c.client.Set(ctx, unreadKey(userID), count, unreadCountTTL).Err()
}

// IncrUnreadCount bumps the cached count when a notification is emitted.
// A miss is left as a miss so the next read repopulates from the database.
func (c *Cache) IncrUnreadCount(ctx context.Context, userID int64) error {
	key := unreadKey(userID)

	exists, err := c.client.Exists(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("redis exists failed: %w", err)
	}
	if exists == 0 {
		return nil
	}

	return c.client.Incr(ctx, key).Err()
}

// InvalidateUnreadCount drops the cached count, forcing a database reload
func (c *Cache) InvalidateUnreadCount(ctx context.Context, userID int64) error {
	return c.client.Del(ctx, unreadKey(userID)).Err()
}

// Client exposes the underlying Redis client for health checks
func (c *Cache) Client() *redis.Client {
	return c.client
}

// Ping checks the Redis connection
func (c *Cache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// PoolStats returns Redis connection pool statistics
func (c *Cache) PoolStats() *redis.PoolStats {
	return c.client.PoolStats()
}

// Close closes the Redis connection
func (c *Cache) Close() error {
	return c.client.Close()
}
