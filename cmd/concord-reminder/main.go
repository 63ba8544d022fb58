package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/concord-hq/concord/pkg/config"
	"github.com/concord-hq/concord/pkg/identity"
	"github.com/concord-hq/concord/pkg/notify"
	"github.com/concord-hq/concord/pkg/storage"
)

var (
	runOnce         = flag.Bool("run-once", false, "Run one sweep and exit (for testing)")
	logLevel        = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
	cleanupSchedule = flag.String("cleanup-schedule", "30 2 * * *", "Cron schedule for expired token cleanup (default: 02:30)")
)

func main() {
	flag.Parse()

	logger := setupLogger(*logLevel)

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := storage.Open(cfg.Storage)
	if err != nil {
		logger.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	var cache *storage.Cache
	if cfg.Storage.CacheEnabled {
		cache, err = storage.NewCache(cfg.Storage)
		if err != nil {
			logger.Fatalf("Failed to connect to redis: %v", err)
		}
		defer cache.Close()
	}

	notifyStore := notify.NewStore(db.Primary())
	notifier := notify.NewService(notifyStore, cache, nil)
	sweeper := notify.NewSweeper(notifyStore, notifier, cfg.Reminder.DueSoonWindow)
	identityStore := identity.NewStore(db.Primary())

	if *runOnce {
		ctx := context.Background()
		created, err := sweeper.Run(ctx)
		if err != nil {
			logger.Fatalf("Sweep failed: %v", err)
		}
		logger.Infof("Sweep complete, %d reminders created", created)
		return
	}

	c := cron.New()

	_, err = c.AddFunc(cfg.Reminder.Schedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
		defer cancel()

		created, err := sweeper.Run(ctx)
		if err != nil {
			logger.WithError(err).Error("Due-soon sweep failed")
			return
		}
		if created > 0 {
			logger.WithField("count", created).Info("Due-soon sweep complete")
		}
	})
	if err != nil {
		logger.Fatalf("Failed to schedule due-soon sweep: %v", err)
	}

	_, err = c.AddFunc(*cleanupSchedule, func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
		defer cancel()

		deleted, err := identityStore.DeleteExpiredTokens(ctx, time.Now().UTC())
		if err != nil {
			logger.WithError(err).Error("Token cleanup failed")
			return
		}
		if deleted > 0 {
			logger.WithField("count", deleted).Info("Expired tokens removed")
		}
	})
	if err != nil {
		logger.Fatalf("Failed to schedule token cleanup: %v", err)
	}

	c.Start()
	logger.Infof("Concord reminder started, sweep schedule: %s, window: %s", cfg.Reminder.Schedule, cfg.Reminder.DueSoonWindow)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	<-sigChan
	logger.Info("Shutting down gracefully...")

	ctx := c.Stop()
	<-ctx.Done()

	logger.Info("Reminder stopped")
}

func setupLogger(level string) *logrus.Logger {
	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp: true,
	})

	parsed, err := logrus.ParseLevel(level)
	if err != nil {
		parsed = logrus.InfoLevel
	}
	logger.SetLevel(parsed)
	return logger
}
