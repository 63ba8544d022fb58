package storage

import "time"

// Config holds storage configuration
type Config struct {
	Driver string // "postgres" or "sqlite"

	// PostgreSQL config
	PostgresURL         string
	PostgresReplicaURLs string // comma-separated read replica URLs

	// SQLite config
	SQLitePath string

	// Connection pool config
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnectTimeout  time.Duration

	// Redis config
	RedisURL      string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	// CacheEnabled controls the Redis unread-notification counter cache
	CacheEnabled bool
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() Config {
	return Config{
		Driver:          "sqlite",
		SQLitePath:      "concord.db",
		MaxOpenConns:    25,
		MaxIdleConns:    5,
		ConnMaxLifetime: 5 * time.Minute,
		ConnectTimeout:  10 * time.Second,
		RedisDB:         0,
		RedisPoolSize:   10,
		CacheEnabled:    false,
	}
}
