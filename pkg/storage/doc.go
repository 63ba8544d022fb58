// Package storage provides database connectivity and schema management.
//
// # Overview
//
// This package opens and manages the SQL database (PostgreSQL in
// production, SQLite for development and small deployments), bootstraps
// the schema, and provides the optional Redis cache used for
// unread-notification counters.
//
// # Connections
//
// Open a database from config:
//
//	db, err := storage.Open(cfg.Storage)
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	if err := db.EnsureSchema(ctx); err != nil {
//		log.Fatal(err)
//	}
//
// Writes go to the primary, reads may use replicas:
//
//	db.Primary().ExecContext(ctx, ...)
//	db.Replica().QueryContext(ctx, ...)
//
// With the postgres driver, comma-separated replica URLs are load
// balanced round-robin; unhealthy replicas are dropped by the
// background health check routine. SQLite always runs primary-only.
//
// # Redis Cache
//
// The Redis cache keeps per-user unread-notification counts so the
// badge query does not hit the database on every request:
//
//	cache, err := storage.NewCache(cfg.Storage)
//	count, ok, err := cache.GetUnreadCount(ctx, userID)
//
// The cache is optional; when disabled, counts are read directly from
// the notifications table.
//
// # Related Packages
//
//   - pkg/config: Loads storage configuration
//   - pkg/notify: Uses the unread-count cache
package storage
