package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/robfig/cron/v3"

	"bilancio/internal/amqp"
	"bilancio/internal/config"
	applog "bilancio/internal/log"
	"bilancio/internal/notify"
	"bilancio/internal/provider"
	"bilancio/internal/services"
	"bilancio/internal/storage"
)

func main() {
	// Load .env file for local development (ignore errors in production/docker)
	_ = godotenv.Load()

	logger := applog.New(applog.DefaultConfig())
	applog.SetDefault(logger)

	logger.Info("starting bilanciod")

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("configuration validation failed", "error", err)
		os.Exit(1)
	}

	repo, err := storage.NewSQLiteRepository(cfg.SQLiteDBPath)
	if err != nil {
		logger.Error("failed to initialize SQLite repository", "error", err, "path", cfg.SQLiteDBPath)
		os.Exit(1)
	}
	defer repo.Close()

	providerClient := provider.NewHTTPClient(provider.HTTPConfig{
		BaseURL:  cfg.ProviderBaseURL,
		ClientID: cfg.ProviderClientID,
		Secret:   cfg.ProviderSecret,
		Timeout:  cfg.ProviderTimeout,
	}, logger)

	syncCfg := services.DefaultSyncConfig()
	syncCfg.PageDelay = cfg.SyncPageDelay
	syncCfg.Concurrency = cfg.SyncConcurrency

	pipeline := services.NewSyncPipeline(repo, repo, providerClient, syncCfg, logger)
	budgets := services.NewBudgetService(repo, repo, logger)
	notifier := notify.NewLogNotifier(logger)
	alerts := services.NewAlertEngine(repo, repo, budgets, notifier, cfg.AlertRecipient, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Consume provider webhook events when AMQP is configured; without it
	// the daemon still runs on the cron schedule alone.
	if cfg.AMQPURL != "" {
		amqpClient, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Warn("failed to initialize AMQP client, continuing on schedule only", "error", err)
		} else {
			defer amqpClient.Close()
			go func() {
				handler := func(ctx context.Context, ev *amqp.WebhookEvent) error {
					if err := pipeline.HandleWebhook(ctx, ev.WebhookType, ev.WebhookCode, ev.ItemID); err != nil {
						return err
					}
					_, err := alerts.CheckAll(ctx)
					return err
				}
				if err := amqpClient.ConsumeWebhookEvents(ctx, handler); err != nil && !errors.Is(err, context.Canceled) {
					logger.Error("webhook consumption failed", "error", err)
				}
			}()
		}
	} else {
		logger.Info("AMQP disabled - relying on scheduled syncs only")
	}

	scheduler := cron.New()

	_, err = scheduler.AddFunc(cfg.SyncSchedule, func() {
		report, err := pipeline.SyncAll(ctx)
		if err != nil {
			logger.Error("scheduled sync failed", "error", err)
			return
		}
		logger.Info("scheduled sync complete",
			"succeeded", report.Succeeded(), "failed", report.Failed())

		if created, err := alerts.CheckAll(ctx); err != nil {
			logger.Error("scheduled budget check failed", "error", err)
		} else if len(created) > 0 {
			logger.Info("budget alerts created", "count", len(created))
		}
	})
	if err != nil {
		logger.Error("invalid sync schedule", "schedule", cfg.SyncSchedule, "error", err)
		os.Exit(1)
	}

	_, err = scheduler.AddFunc(cfg.DigestSchedule, func() {
		if err := alerts.SendDigest(ctx); err != nil {
			logger.Error("digest failed", "error", err)
		}
	})
	if err != nil {
		logger.Error("invalid digest schedule", "schedule", cfg.DigestSchedule, "error", err)
		os.Exit(1)
	}

	scheduler.Start()
	logger.Info("scheduler started",
		"sync_schedule", cfg.SyncSchedule,
		"digest_schedule", cfg.DigestSchedule)

	// Run an initial sync on startup so a fresh daemon catches up
	// without waiting for the first scheduled tick.
	go func() {
		if report, err := pipeline.SyncAll(ctx); err != nil {
			logger.Error("startup sync failed", "error", err)
		} else {
			logger.Info("startup sync complete",
				"succeeded", report.Succeeded(), "failed", report.Failed())
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigChan:
		logger.Info("shutdown signal received", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("context cancelled")
	}

	logger.Info("shutting down bilanciod...")
	cancel()

	stopCtx := scheduler.Stop()
	select {
	case <-stopCtx.Done():
		logger.Info("scheduler stopped")
	case <-time.After(30 * time.Second):
		logger.Warn("scheduler stop timed out")
	}

	logger.Info("bilanciod shutdown complete")
}
