package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/concord-hq/concord/pkg/observability"
	"github.com/concord-hq/concord/pkg/storage"
)

// Config holds all application configuration
type Config struct {
	// Server configuration
	Server ServerConfig

	// Storage configuration
	Storage storage.Config

	// Auth configuration
	Auth AuthConfig

	// Reminder sweep configuration
	Reminder ReminderConfig

	// Observability configuration
	Observability ObservabilityConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Health/metrics server (separate port for k8s probes)
	HealthPort string
}

// AuthConfig holds token authentication settings
type AuthConfig struct {
	// TokenTTL is how long issued API tokens remain valid
	TokenTTL time.Duration

	// TokenCacheSize bounds the in-process LRU of validated tokens
	TokenCacheSize int

	// TokenCacheTTL is how long a validated token stays cached before
	// it is re-checked against the database
	TokenCacheTTL time.Duration
}

// ReminderConfig holds deliverable reminder sweep settings
type ReminderConfig struct {
	// Schedule is a cron expression for the due-soon sweep
	Schedule string

	// DueSoonWindow is how far ahead the sweep looks for deliverables
	// approaching their due date
	DueSoonWindow time.Duration
}

// ObservabilityConfig holds observability settings
type ObservabilityConfig struct {
	// Logging
	LogLevel observability.LogLevel

	// Metrics
	MetricsEnabled bool

	// OpenTelemetry
	OTelEnabled        bool
	OTelEndpoint       string
	OTelServiceName    string
	OTelServiceVersion string
	OTelInsecure       bool // Use insecure gRPC connection
}

// LoadConfig loads configuration from an optional YAML file overlaid by
// environment variables. The file path comes from CONCORD_CONFIG_FILE;
// environment variables always win over file values.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		Server:        defaultServerConfig(),
		Storage:       storage.DefaultConfig(),
		Auth:          defaultAuthConfig(),
		Reminder:      defaultReminderConfig(),
		Observability: defaultObservabilityConfig(),
	}

	if path := os.Getenv("CONCORD_CONFIG_FILE"); path != "" {
		if err := cfg.applyFile(path); err != nil {
			return nil, fmt.Errorf("loading config file %s: %w", path, err)
		}
	}

	cfg.applyEnv()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func defaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:            "0.0.0.0",
		Port:            "8080",
		ReadTimeout:     15 * time.Second,
		WriteTimeout:    15 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		HealthPort:      "9090",
	}
}

func defaultAuthConfig() AuthConfig {
	return AuthConfig{
		TokenTTL:       30 * 24 * time.Hour,
		TokenCacheSize: 1024,
		TokenCacheTTL:  time.Minute,
	}
}

func defaultReminderConfig() ReminderConfig {
	return ReminderConfig{
		Schedule:      "0 * * * *",
		DueSoonWindow: 24 * time.Hour,
	}
}

func defaultObservabilityConfig() ObservabilityConfig {
	return ObservabilityConfig{
		LogLevel:           observability.InfoLevel,
		MetricsEnabled:     true,
		OTelEnabled:        false,
		OTelEndpoint:       "localhost:4317",
		OTelServiceName:    "concord",
		OTelServiceVersion: "1.0.0",
		OTelInsecure:       true,
	}
}

// fileConfig mirrors Config for YAML decoding. Durations are strings in
// time.ParseDuration syntax, log level is a string.
type fileConfig struct {
	Server struct {
		Host            string `yaml:"host"`
		Port            string `yaml:"port"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		IdleTimeout     string `yaml:"idle_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
		HealthPort      string `yaml:"health_port"`
	} `yaml:"server"`

	Storage struct {
		Driver              string `yaml:"driver"`
		PostgresURL         string `yaml:"postgres_url"`
		PostgresReplicaURLs string `yaml:"postgres_replica_urls"`
		SQLitePath          string `yaml:"sqlite_path"`
		MaxOpenConns        int    `yaml:"max_open_conns"`
		MaxIdleConns        int    `yaml:"max_idle_conns"`
		ConnMaxLifetime     string `yaml:"conn_max_lifetime"`
		RedisURL            string `yaml:"redis_url"`
		RedisPassword       string `yaml:"redis_password"`
		RedisDB             *int   `yaml:"redis_db"`
		RedisPoolSize       int    `yaml:"redis_pool_size"`
		CacheEnabled        *bool  `yaml:"cache_enabled"`
	} `yaml:"storage"`

	Auth struct {
		TokenTTL       string `yaml:"token_ttl"`
		TokenCacheSize int    `yaml:"token_cache_size"`
		TokenCacheTTL  string `yaml:"token_cache_ttl"`
	} `yaml:"auth"`

	Reminder struct {
		Schedule      string `yaml:"schedule"`
		DueSoonWindow string `yaml:"due_soon_window"`
	} `yaml:"reminder"`

	Observability struct {
		LogLevel           string `yaml:"log_level"`
		MetricsEnabled     *bool  `yaml:"metrics_enabled"`
		OTelEnabled        *bool  `yaml:"otel_enabled"`
		OTelEndpoint       string `yaml:"otel_endpoint"`
		OTelServiceName    string `yaml:"otel_service_name"`
		OTelServiceVersion string `yaml:"otel_service_version"`
		OTelInsecure       *bool  `yaml:"otel_insecure"`
	} `yaml:"observability"`
}

// applyFile overlays values from a YAML file onto the config
func (c *Config) applyFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parsing YAML: %w", err)
	}

	setString(&c.Server.Host, fc.Server.Host)
	setString(&c.Server.Port, fc.Server.Port)
	setString(&c.Server.HealthPort, fc.Server.HealthPort)
	if err := setDuration(&c.Server.ReadTimeout, fc.Server.ReadTimeout); err != nil {
		return fmt.Errorf("server.read_timeout: %w", err)
	}
	if err := setDuration(&c.Server.WriteTimeout, fc.Server.WriteTimeout); err != nil {
		return fmt.Errorf("server.write_timeout: %w", err)
	}
	if err := setDuration(&c.Server.IdleTimeout, fc.Server.IdleTimeout); err != nil {
		return fmt.Errorf("server.idle_timeout: %w", err)
	}
	if err := setDuration(&c.Server.ShutdownTimeout, fc.Server.ShutdownTimeout); err != nil {
		return fmt.Errorf("server.shutdown_timeout: %w", err)
	}

	setString(&c.Storage.Driver, fc.Storage.Driver)
	setString(&c.Storage.PostgresURL, fc.Storage.PostgresURL)
	setString(&c.Storage.PostgresReplicaURLs, fc.Storage.PostgresReplicaURLs)
	setString(&c.Storage.SQLitePath, fc.Storage.SQLitePath)
	if fc.Storage.MaxOpenConns > 0 {
		c.Storage.MaxOpenConns = fc.Storage.MaxOpenConns
	}
	if fc.Storage.MaxIdleConns > 0 {
		c.Storage.MaxIdleConns = fc.Storage.MaxIdleConns
	}
	if err := setDuration(&c.Storage.ConnMaxLifetime, fc.Storage.ConnMaxLifetime); err != nil {
		return fmt.Errorf("storage.conn_max_lifetime: %w", err)
	}
	setString(&c.Storage.RedisURL, fc.Storage.RedisURL)
	setString(&c.Storage.RedisPassword, fc.Storage.RedisPassword)
	if fc.Storage.RedisDB != nil {
		c.Storage.RedisDB = *fc.Storage.RedisDB
	}
	if fc.Storage.RedisPoolSize > 0 {
		c.Storage.RedisPoolSize = fc.Storage.RedisPoolSize
	}
	if fc.Storage.CacheEnabled != nil {
		c.Storage.CacheEnabled = *fc.Storage.CacheEnabled
	}

	if err := setDuration(&c.Auth.TokenTTL, fc.Auth.TokenTTL); err != nil {
		return fmt.Errorf("auth.token_ttl: %w", err)
	}
	if fc.Auth.TokenCacheSize > 0 {
		c.Auth.TokenCacheSize = fc.Auth.TokenCacheSize
	}
	if err := setDuration(&c.Auth.TokenCacheTTL, fc.Auth.TokenCacheTTL); err != nil {
		return fmt.Errorf("auth.token_cache_ttl: %w", err)
	}

	setString(&c.Reminder.Schedule, fc.Reminder.Schedule)
	if err := setDuration(&c.Reminder.DueSoonWindow, fc.Reminder.DueSoonWindow); err != nil {
		return fmt.Errorf("reminder.due_soon_window: %w", err)
	}

	if fc.Observability.LogLevel != "" {
		c.Observability.LogLevel = ParseLogLevel(fc.Observability.LogLevel)
	}
	if fc.Observability.MetricsEnabled != nil {
		c.Observability.MetricsEnabled = *fc.Observability.MetricsEnabled
	}
	if fc.Observability.OTelEnabled != nil {
		c.Observability.OTelEnabled = *fc.Observability.OTelEnabled
	}
	setString(&c.Observability.OTelEndpoint, fc.Observability.OTelEndpoint)
	setString(&c.Observability.OTelServiceName, fc.Observability.OTelServiceName)
	setString(&c.Observability.OTelServiceVersion, fc.Observability.OTelServiceVersion)
	if fc.Observability.OTelInsecure != nil {
		c.Observability.OTelInsecure = *fc.Observability.OTelInsecure
	}

	return nil
}

// applyEnv overlays CONCORD_* environment variables onto the config
func (c *Config) applyEnv() {
	c.Server.Host = getEnv("CONCORD_HOST", c.Server.Host)
	c.Server.Port = getEnv("CONCORD_PORT", c.Server.Port)
	c.Server.ReadTimeout = getEnvDuration("CONCORD_READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getEnvDuration("CONCORD_WRITE_TIMEOUT", c.Server.WriteTimeout)
	c.Server.IdleTimeout = getEnvDuration("CONCORD_IDLE_TIMEOUT", c.Server.IdleTimeout)
	c.Server.ShutdownTimeout = getEnvDuration("CONCORD_SHUTDOWN_TIMEOUT", c.Server.ShutdownTimeout)
	c.Server.HealthPort = getEnv("CONCORD_HEALTH_PORT", c.Server.HealthPort)

	c.Storage.Driver = getEnv("CONCORD_STORAGE_DRIVER", c.Storage.Driver)
	c.Storage.PostgresURL = getEnv("CONCORD_POSTGRES_URL", c.Storage.PostgresURL)
	c.Storage.PostgresReplicaURLs = getEnv("CONCORD_POSTGRES_REPLICA_URLS", c.Storage.PostgresReplicaURLs)
	c.Storage.SQLitePath = getEnv("CONCORD_SQLITE_PATH", c.Storage.SQLitePath)
	c.Storage.MaxOpenConns = getEnvInt("CONCORD_DB_MAX_OPEN_CONNS", c.Storage.MaxOpenConns)
	c.Storage.MaxIdleConns = getEnvInt("CONCORD_DB_MAX_IDLE_CONNS", c.Storage.MaxIdleConns)
	c.Storage.ConnMaxLifetime = getEnvDuration("CONCORD_DB_CONN_MAX_LIFETIME", c.Storage.ConnMaxLifetime)
	c.Storage.RedisURL = getEnv("CONCORD_REDIS_URL", c.Storage.RedisURL)
	c.Storage.RedisPassword = getEnv("CONCORD_REDIS_PASSWORD", c.Storage.RedisPassword)
	c.Storage.RedisDB = getEnvInt("CONCORD_REDIS_DB", c.Storage.RedisDB)
	c.Storage.RedisPoolSize = getEnvInt("CONCORD_REDIS_POOL_SIZE", c.Storage.RedisPoolSize)
	c.Storage.CacheEnabled = getEnvBool("CONCORD_CACHE_ENABLED", c.Storage.CacheEnabled)

	c.Auth.TokenTTL = getEnvDuration("CONCORD_TOKEN_TTL", c.Auth.TokenTTL)
	c.Auth.TokenCacheSize = getEnvInt("CONCORD_TOKEN_CACHE_SIZE", c.Auth.TokenCacheSize)
	c.Auth.TokenCacheTTL = getEnvDuration("CONCORD_TOKEN_CACHE_TTL", c.Auth.TokenCacheTTL)

	c.Reminder.Schedule = getEnv("CONCORD_REMINDER_SCHEDULE", c.Reminder.Schedule)
	c.Reminder.DueSoonWindow = getEnvDuration("CONCORD_REMINDER_DUE_SOON_WINDOW", c.Reminder.DueSoonWindow)

	if level := os.Getenv("CONCORD_LOG_LEVEL"); level != "" {
		c.Observability.LogLevel = ParseLogLevel(level)
	}
	c.Observability.MetricsEnabled = getEnvBool("CONCORD_METRICS_ENABLED", c.Observability.MetricsEnabled)
	c.Observability.OTelEnabled = getEnvBool("CONCORD_OTEL_ENABLED", c.Observability.OTelEnabled)
	c.Observability.OTelEndpoint = getEnv("CONCORD_OTEL_ENDPOINT", c.Observability.OTelEndpoint)
	c.Observability.OTelServiceName = getEnv("CONCORD_OTEL_SERVICE_NAME", c.Observability.OTelServiceName)
	c.Observability.OTelServiceVersion = getEnv("CONCORD_OTEL_SERVICE_VERSION", c.Observability.OTelServiceVersion)
	c.Observability.OTelInsecure = getEnvBool("CONCORD_OTEL_INSECURE", c.Observability.OTelInsecure)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Server.Port == "" {
		return fmt.Errorf("server port is required")
	}
	if c.Server.HealthPort == "" {
		return fmt.Errorf("health port is required")
	}
	if c.Server.Port == c.Server.HealthPort {
		return fmt.Errorf("server port and health port must be different")
	}

	switch c.Storage.Driver {
	case "postgres":
		if c.Storage.PostgresURL == "" {
			return fmt.Errorf("postgres URL is required for postgres storage")
		}
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("sqlite path is required for sqlite storage")
		}
	default:
		return fmt.Errorf("invalid storage driver: %s (must be postgres or sqlite)", c.Storage.Driver)
	}

	if c.Auth.TokenTTL <= 0 {
		return fmt.Errorf("token TTL must be positive")
	}
	if c.Auth.TokenCacheSize <= 0 {
		return fmt.Errorf("token cache size must be positive")
	}

	if c.Reminder.Schedule == "" {
		return fmt.Errorf("reminder schedule is required")
	}
	if c.Reminder.DueSoonWindow <= 0 {
		return fmt.Errorf("reminder due-soon window must be positive")
	}

	if c.Observability.OTelEnabled {
		if c.Observability.OTelEndpoint == "" {
			return fmt.Errorf("OpenTelemetry endpoint is required when OTel is enabled")
		}
		if c.Observability.OTelServiceName == "" {
			return fmt.Errorf("OpenTelemetry service name is required when OTel is enabled")
		}
	}

	return nil
}

// ParseLogLevel parses a log level string
func ParseLogLevel(level string) observability.LogLevel {
	switch strings.ToLower(level) {
	case "debug":
		return observability.DebugLevel
	case "info":
		return observability.InfoLevel
	case "warn", "warning":
		return observability.WarnLevel
	case "error":
		return observability.ErrorLevel
	default:
		return observability.InfoLevel
	}
}

func setString(dst *string, val string) {
	if val != "" {
		*dst = val
	}
}

func setDuration(dst *time.Duration, val string) error {
	if val == "" {
		return nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}

// getEnv returns an environment variable value or a default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvBool returns a boolean environment variable or a default
func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		return strings.ToLower(value) == "true" || value == "1"
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable or a default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration returns a duration environment variable or a default
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
