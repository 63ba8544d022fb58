// Package config provides application configuration management.
//
// # Overview
//
// This package loads configuration from an optional YAML file overlaid by
// CONCORD_* environment variables, with sensible defaults for all settings.
// Environment variables always take precedence over file values.
//
// # Configuration Structure
//
// Server settings:
//
//	CONCORD_HOST="0.0.0.0"
//	CONCORD_PORT="8080"
//	CONCORD_HEALTH_PORT="9090"
//	CONCORD_READ_TIMEOUT="15s"
//	CONCORD_WRITE_TIMEOUT="15s"
//
// Storage settings:
//
//	CONCORD_STORAGE_DRIVER="postgres"  # postgres, sqlite
//	CONCORD_POSTGRES_URL="postgres://localhost/concord"
//	CONCORD_SQLITE_PATH="concord.db"
//	CONCORD_DB_MAX_OPEN_CONNS="25"
//	CONCORD_REDIS_URL="redis://localhost:6379"
//	CONCORD_CACHE_ENABLED="true"
//
// Auth settings:
//
//	CONCORD_TOKEN_TTL="720h"
//	CONCORD_TOKEN_CACHE_SIZE="1024"
//
// Reminder settings:
//
//	CONCORD_REMINDER_SCHEDULE="0 * * * *"
//	CONCORD_REMINDER_DUE_SOON_WINDOW="24h"
//
// Observability settings:
//
//	CONCORD_LOG_LEVEL="info"  # debug, info, warn, error
//	CONCORD_METRICS_ENABLED="true"
//	CONCORD_OTEL_ENABLED="true"
//	CONCORD_OTEL_ENDPOINT="otel-collector:4317"
//
// # Usage Example
//
//	cfg, err := config.LoadConfig()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	fmt.Printf("Server: %s:%s\n", cfg.Server.Host, cfg.Server.Port)
//	fmt.Printf("Storage: %s\n", cfg.Storage.Driver)
//
// # Related Packages
//
//   - pkg/storage: Uses storage configuration
//   - pkg/observability: Uses observability configuration
package config
