package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL driver
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Database manages the primary connection and optional read replicas.
// SQLite deployments always run primary-only; replicas only apply to
// the postgres driver.
type Database struct {
	primary  *sql.DB
	replicas []*sql.DB
	current  uint32 // Atomic counter for round-robin selection
	mu       sync.RWMutex
	config   Config
}

// Open connects to the configured database and verifies the connection
func Open(config Config) (*Database, error) {
	db := &Database{
		config:   config,
		replicas: make([]*sql.DB, 0),
	}

	driver, dsn, err := driverDSN(config)
	if err != nil {
		return nil, err
	}

	primary, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open primary connection: %w", err)
	}

	primary.SetMaxOpenConns(config.MaxOpenConns)
	primary.SetMaxIdleConns(config.MaxIdleConns)
	primary.SetConnMaxLifetime(config.ConnMaxLifetime)

	ctx, cancel := context.WithTimeout(context.Background(), config.ConnectTimeout)
	defer cancel()

	if err := primary.PingContext(ctx); err != nil {
		primary.Close()
		return nil, fmt.Errorf("failed to ping primary: %w", err)
	}

	db.primary = primary

	if config.Driver == "postgres" {
		db.connectReplicas(ParseReplicaURLs(config.PostgresReplicaURLs))
	}

	return db, nil
}

func driverDSN(config Config) (driver, dsn string, err error) {
	switch config.Driver {
	case "postgres":
		if config.PostgresURL == "" {
			return "", "", fmt.Errorf("postgres URL is required")
		}
		return "postgres", config.PostgresURL, nil
	case "sqlite":
		if config.SQLitePath == "" {
			return "", "", fmt.Errorf("sqlite path is required")
		}
		// Foreign keys are off by default in SQLite
		return "sqlite3", config.SQLitePath + "?_foreign_keys=on", nil
	default:
		return "", "", fmt.Errorf("unsupported storage driver: %s", config.Driver)
	}
}

// connectReplicas opens replica connections. Replicas are optional, a
// failed replica is skipped rather than failing startup.
func (d *Database) connectReplicas(urls []string) {
	for _, replicaURL := range urls {
		replica, err := sql.Open("postgres", replicaURL)
		if err != nil {
			continue
		}

		replicaMaxConns := d.config.MaxOpenConns / 2
		if replicaMaxConns < 2 {
			replicaMaxConns = 2
		}
		replica.SetMaxOpenConns(replicaMaxConns)
		replica.SetMaxIdleConns(d.config.MaxIdleConns)
		replica.SetConnMaxLifetime(d.config.ConnMaxLifetime)

		ctx, cancel := context.WithTimeout(context.Background(), d.config.ConnectTimeout)
		err = replica.PingContext(ctx)
		cancel()

		if err != nil {
			replica.Close()
			continue
		}

		d.mu.Lock()
		d.replicas = append(d.replicas, replica)
		d.mu.Unlock()
	}
}

// Driver returns the configured driver name
func (d *Database) Driver() string {
	return d.config.Driver
}

// Primary returns the primary database connection (for writes)
func (d *Database) Primary() *sql.DB {
	return d.primary
}

// Replica returns a read replica using round-robin selection.
// Falls back to primary if no replicas are available.
func (d *Database) Replica() *sql.DB {
	d.mu.RLock()
	replicaCount := len(d.replicas)
	d.mu.RUnlock()

	if replicaCount == 0 {
		return d.primary
	}

	index := atomic.AddUint32(&d.current, 1)
	replicaIndex := int(index % uint32(replicaCount))

	d.mu.RLock()
	replica := d.replicas[replicaIndex]
	d.mu.RUnlock()

	return replica
}

// HealthCheck checks the health of the primary and all replicas
func (d *Database) HealthCheck(ctx context.Context) error {
	if err := d.primary.PingContext(ctx); err != nil {
		return fmt.Errorf("primary unhealthy: %w", err)
	}

	d.mu.RLock()
	replicas := make([]*sql.DB, len(d.replicas))
	copy(replicas, d.replicas)
	d.mu.RUnlock()

	var unhealthy []string
	for i, replica := range replicas {
		if err := replica.PingContext(ctx); err != nil {
			unhealthy = append(unhealthy, fmt.Sprintf("replica-%d", i))
		}
	}

	if len(unhealthy) > 0 && len(unhealthy) == len(replicas) {
		return fmt.Errorf("all replicas unhealthy: %s", strings.Join(unhealthy, ", "))
	}

	return nil
}

// Stats returns connection pool statistics for the primary connection
func (d *Database) Stats() sql.DBStats {
	return d.primary.Stats()
}

// Close closes all database connections
func (d *Database) Close() error {
	var errs []error

	if err := d.primary.Close(); err != nil {
		errs = append(errs, fmt.Errorf("primary close error: %w", err))
	}

	d.mu.Lock()
	replicas := d.replicas
	d.replicas = nil
	d.mu.Unlock()

	for i, replica := range replicas {
		if err := replica.Close(); err != nil {
			errs = append(errs, fmt.Errorf("replica-%d close error: %w", i, err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("connection close errors: %v", errs)
	}

	return nil
}

// StartHealthCheckRoutine periodically drops replicas that fail pings
func (d *Database) StartHealthCheckRoutine(ctx context.Context, interval time.Duration) {
	if interval == 0 {
		interval = 30 * time.Second
	}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				checkCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				d.removeUnhealthyReplicas(checkCtx)
				cancel()

			case <-ctx.Done():
				return
			}
		}
	}()
}

func (d *Database) removeUnhealthyReplicas(ctx context.Context) int {
	d.mu.Lock()
	defer d.mu.Unlock()

	healthy := make([]*sql.DB, 0, len(d.replicas))
	removed := 0

	for _, replica := range d.replicas {
		if err := replica.PingContext(ctx); err != nil {
			replica.Close()
			removed++
		} else {
			healthy = append(healthy, replica)
		}
	}

	d.replicas = healthy
	return removed
}

// ParseReplicaURLs parses a comma-separated list of replica URLs
func ParseReplicaURLs(replicaURLsStr string) []string {
	if replicaURLsStr == "" {
		return nil
	}

	urls := strings.Split(replicaURLsStr, ",")
	result := make([]string, 0, len(urls))

	for _, url := range urls {
		trimmed := strings.TrimSpace(url)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
