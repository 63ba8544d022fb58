package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/concord-hq/concord/pkg/audit"
	"github.com/concord-hq/concord/pkg/authz"
	"github.com/concord-hq/concord/pkg/config"
	"github.com/concord-hq/concord/pkg/identity"
	"github.com/concord-hq/concord/pkg/invitations"
	"github.com/concord-hq/concord/pkg/middleware"
	"github.com/concord-hq/concord/pkg/notify"
	"github.com/concord-hq/concord/pkg/observability"
	"github.com/concord-hq/concord/pkg/storage"
	"github.com/concord-hq/concord/pkg/tracker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger := observability.NewLogger(cfg.Observability.LogLevel, os.Stdout)
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := storage.Open(cfg.Storage)
	if err != nil {
		logger.WithError(err).Error("Failed to open database")
		os.Exit(1)
	}

	bootCtx, cancelBoot := context.WithTimeout(ctx, 30*time.Second)
	if err := db.EnsureSchema(bootCtx); err != nil {
		cancelBoot()
		logger.WithError(err).Error("Failed to bootstrap schema")
		os.Exit(1)
	}
	cancelBoot()
	db.StartHealthCheckRoutine(ctx, 30*time.Second)

	var cache *storage.Cache
	var redisClient *redis.Client
	if cfg.Storage.CacheEnabled {
		cache, err = storage.NewCache(cfg.Storage)
		if err != nil {
			logger.WithError(err).Error("Failed to connect to redis")
			os.Exit(1)
		}
		redisClient = cache.Client()
	}

	otelProviders, err := observability.InitOTel(ctx, observability.OTelConfig{
		Enabled:        cfg.Observability.OTelEnabled,
		Endpoint:       cfg.Observability.OTelEndpoint,
		ServiceName:    cfg.Observability.OTelServiceName,
		ServiceVersion: cfg.Observability.OTelServiceVersion,
		Insecure:       cfg.Observability.OTelInsecure,
	}, logger)
	if err != nil {
		logger.WithError(err).Error("Failed to initialize OpenTelemetry")
		os.Exit(1)
	}

	identities := identity.NewService(identity.NewStore(db.Primary()), metrics, cfg.Auth.TokenTTL)
	trackerStore := tracker.NewStore(db)
	policy := authz.NewPolicy(trackerStore, metrics)
	notifier := notify.NewService(notify.NewStore(db.Primary()), cache, metrics)
	invitationStore := invitations.NewStore(db.Primary())
	invitationSvc := invitations.NewService(invitationStore, trackerStore, notifier, policy, db.Primary(), metrics)
	trackerSvc := tracker.NewService(trackerStore, invitationStore, notifier, policy, metrics)

	authn := middleware.NewAuthenticator(identities, cfg.Auth.TokenCacheSize, cfg.Auth.TokenCacheTTL)
	auditStore := audit.NewStore(db.Primary())

	deps := routerDeps{
		logger:         logger,
		metrics:        metrics,
		metricsEnabled: cfg.Observability.MetricsEnabled,
		authn:          authn,
		identities:     identities,
		identityH:      identity.NewHandlers(identities),
		trackerH:       tracker.NewHandlers(trackerSvc),
		invitationH:    invitations.NewHandlers(invitationSvc),
		notifyH:        notify.NewHandlers(notifier),
		auditRecorder:  audit.NewRecorder(auditStore),
		auditH:         audit.NewHandlers(auditStore),
	}
	if redisClient != nil {
		deps.limit = middleware.NewDistributedRateLimiter(redisClient, middleware.DefaultRateLimitConfig(), "").Middleware
	} else {
		deps.limit = middleware.NewRateLimiter(middleware.DefaultRateLimitConfig()).Middleware
	}

	apiServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.Port),
		Handler:      buildRouter(deps),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	healthMux := http.NewServeMux()
	observability.RegisterHealthRoutes(healthMux, observability.NewHealthChecker(db.Primary(), redisClient))
	if cfg.Observability.MetricsEnabled {
		healthMux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}
	healthServer := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, cfg.Server.HealthPort),
		Handler:      healthMux,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go reportPoolStats(ctx, db, metrics)

	sm := observability.NewShutdownManager(logger, apiServer, cfg.Server.ShutdownTimeout)
	sm.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
		return healthServer.Shutdown(shutdownCtx)
	})
	sm.RegisterShutdownFunc(func(context.Context) error {
		cancel()
		return db.Close()
	})
	if cache != nil {
		sm.RegisterShutdownFunc(func(context.Context) error {
			return cache.Close()
		})
	}
	if otelProviders != nil {
		sm.RegisterShutdownFunc(func(shutdownCtx context.Context) error {
			return observability.ShutdownOTel(shutdownCtx, otelProviders, logger)
		})
	}

	g := new(errgroup.Group)
	g.Go(func() error {
		logger.Infof("API server listening on %s", apiServer.Addr)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("api server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		logger.Infof("Health server listening on %s", healthServer.Addr)
		if err := healthServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("health server: %w", err)
		}
		return nil
	})

	errs := make(chan error, 2)
	go func() {
		if err := g.Wait(); err != nil {
			errs <- err
		}
	}()
	go func() {
		errs <- sm.WaitForShutdown()
	}()

	if err := <-errs; err != nil {
		logger.WithError(err).Error("concord exited with error")
		os.Exit(1)
	}
	logger.Info("concord stopped")
}

// reportPoolStats mirrors database pool statistics into gauges until the
// context is cancelled.
func reportPoolStats(ctx context.Context, db *storage.Database, metrics *observability.Metrics) {
	ticker := time.NewTicker(15 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			stats := db.Stats()
			metrics.DBConnectionsActive.Set(float64(stats.InUse))
			metrics.DBConnectionsIdle.Set(float64(stats.Idle))
			metrics.DBConnectionsWaitCount.Set(float64(stats.WaitCount))
			metrics.DBConnectionsWaitDuration.Set(stats.WaitDuration.Seconds())
		}
	}
}
