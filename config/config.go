// Package config loads service configuration from the environment.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"

	"github.com/BrandonHVX/heavy-status/push"
)

const (
	defaultGraphQLURL = "https://heavy-status.com/graphql"
	defaultSiteURL    = "https://heavy-status.com"
	defaultPort       = "8080"

	// defaultWindowMinutes is how far back the polling endpoint looks.
	defaultWindowMinutes = 10
)

// Config holds every recognized environment option. The push API version is
// resolved once here, from the key format, so no call site re-sniffs the
// credential.
type Config struct {
	GraphQLURL      string
	OneSignalAppID  string
	OneSignalAPIKey string
	SiteURL         string
	WebhookSecret   string
	StorageBucket   string
	LocalStorage    string
	Port            string
	SelfPollCron    string
	CheckWindow     time.Duration
	PushAPIVersion  push.APIVersion
}

// Load reads configuration from the environment, with an optional .env file
// for development.
func Load(logger *slog.Logger) (*Config, error) {
	if err := godotenv.Load(); err == nil {
		logger.Info("Loaded environment from .env file")
	}

	cfg := &Config{
		GraphQLURL:      getenv("WORDPRESS_GRAPHQL_URL", defaultGraphQLURL),
		OneSignalAppID:  os.Getenv("ONESIGNAL_APP_ID"),
		OneSignalAPIKey: os.Getenv("ONESIGNAL_API_KEY"),
		SiteURL:         getenv("SITE_URL", defaultSiteURL),
		WebhookSecret:   os.Getenv("WEBHOOK_SECRET"),
		StorageBucket:   os.Getenv("STORAGE_BUCKET"),
		LocalStorage:    os.Getenv("LOCAL_STORAGE"),
		Port:            getenv("PORT", defaultPort),
		SelfPollCron:    os.Getenv("SELF_POLL_CRON"),
		CheckWindow:     defaultWindowMinutes * time.Minute,
	}

	if raw := os.Getenv("CHECK_WINDOW_MINUTES"); raw != "" {
		minutes, err := strconv.Atoi(raw)
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("invalid CHECK_WINDOW_MINUTES %q", raw)
		}
		cfg.CheckWindow = time.Duration(minutes) * time.Minute
	}

	cfg.PushAPIVersion = push.ResolveAPIVersion(cfg.OneSignalAPIKey)

	return cfg, nil
}

// PushConfigured reports whether the delivery-service credentials are set.
func (c *Config) PushConfigured() bool {
	return c.OneSignalAppID != "" && c.OneSignalAPIKey != ""
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
