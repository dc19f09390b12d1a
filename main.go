// Command heavy-status runs the notification backend for the Heavy Status
// news PWA: it polls the WordPress GraphQL backend for new posts, relays
// push notifications through OneSignal, and serves the search, feed and
// sitemap endpoints.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"time"

	gcs "cloud.google.com/go/storage"
	"github.com/robfig/cron/v3"

	"github.com/BrandonHVX/heavy-status/config"
	"github.com/BrandonHVX/heavy-status/detect"
	"github.com/BrandonHVX/heavy-status/push"
	"github.com/BrandonHVX/heavy-status/server"
	"github.com/BrandonHVX/heavy-status/storage"
	"github.com/BrandonHVX/heavy-status/wordpress"
)

func main() {
	ctx := context.Background()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	cfg, err := config.Load(logger)
	if err != nil {
		logger.Error("Invalid configuration", "error", err)
		os.Exit(1)
	}

	httpClient := &http.Client{Timeout: 30 * time.Second}

	content := wordpress.New(cfg.GraphQLURL, httpClient, logger)

	// Push provider selection. Without credentials the notify endpoints
	// report a configuration error, except in local development where a
	// recording mock stands in.
	var provider push.Provider
	pushConfigured := cfg.PushConfigured()
	switch {
	case pushConfigured:
		logger.Info("OneSignal configured", "api_version", cfg.PushAPIVersion.String())
		provider = push.NewOneSignal(cfg.OneSignalAppID, cfg.OneSignalAPIKey, cfg.PushAPIVersion, httpClient, logger)
	case cfg.LocalStorage != "":
		logger.Info("Mock push mode enabled (no OneSignal credentials)")
		provider = push.NewMock(logger)
		pushConfigured = true
	default:
		logger.Warn("OneSignal credentials missing; notification endpoints disabled")
		provider = push.NewMock(logger)
	}

	// Durable marker store: local directory in development, Cloud Storage
	// bucket in production, absent otherwise.
	var journal server.Journal
	switch {
	case cfg.LocalStorage != "":
		if err := os.MkdirAll(cfg.LocalStorage, 0o755); err != nil {
			logger.Error("Failed to create local storage directory", "error", err)
			os.Exit(1)
		}
		logger.Info("Using local marker storage", "path", cfg.LocalStorage)
		journal = storage.New(nil, "", cfg.LocalStorage, logger)
	case cfg.StorageBucket != "":
		client, err := gcs.NewClient(ctx)
		if err != nil {
			logger.Error("Failed to initialize Storage client", "error", err)
			os.Exit(1)
		}
		defer func() {
			if err := client.Close(); err != nil {
				logger.Warn("Failed to close storage client", "error", err)
			}
		}()
		logger.Info("Using Cloud Storage markers", "bucket", cfg.StorageBucket)
		journal = storage.New(client, cfg.StorageBucket, "", logger)
	default:
		logger.Info("No marker storage configured, running ledger-only")
	}

	detector := detect.New(cfg.SiteURL, cfg.CheckWindow, logger)
	dispatcher := push.New(provider, cfg.SiteURL, logger)

	srv := server.New(&server.Config{
		Content:        content,
		Pusher:         dispatcher,
		Ledger:         provider,
		Journal:        journal,
		Detector:       detector,
		Logger:         logger,
		SiteURL:        cfg.SiteURL,
		WebhookSecret:  cfg.WebhookSecret,
		PushConfigured: pushConfigured,
	})

	// The periodic trigger is normally an external scheduler hitting
	// /api/check-new-posts; self-polling is opt-in for deployments without
	// one.
	if cfg.SelfPollCron != "" {
		c := cron.New()
		if _, err := c.AddFunc(cfg.SelfPollCron, func() {
			runCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
			defer cancel()
			notified, err := srv.CheckNow(runCtx)
			if err != nil {
				logger.Error("Scheduled check failed", "error", err)
				return
			}
			logger.Info("Scheduled check completed", "notified", notified)
		}); err != nil {
			logger.Error("Invalid SELF_POLL_CRON expression", "expr", cfg.SelfPollCron, "error", err)
			os.Exit(1)
		}
		c.Start()
		defer c.Stop()
		logger.Info("Self-poll scheduler started", "expr", cfg.SelfPollCron)
	}

	if err := srv.Serve(cfg.Port); err != nil {
		logger.Error("Server failed", "error", err)
		os.Exit(1)
	}
}
