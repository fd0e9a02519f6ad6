package config

import (
	"fmt"
	"os"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// Load reads, validates and defaults the application configuration.
// Environment variables override file values for secrets: MONGO_URI and
// FCM_CREDENTIALS_FILE.
func Load(path string) (AppConfig, error) {
	var cfg AppConfig

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}

	if uri := os.Getenv("MONGO_URI"); uri != "" {
		cfg.Mongo.URI = uri
	}
	if creds := os.Getenv("FCM_CREDENTIALS_FILE"); creds != "" {
		cfg.FCM.CredentialsFile = creds
	}

	applyDefaults(&cfg)

	v := validator.New()
	if err := v.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("validate config: %w", err)
	}
	if cfg.Mongo.URI == "" {
		return cfg, fmt.Errorf("mongo URI missing: set mongo.uri or MONGO_URI")
	}
	return cfg, nil
}

func applyDefaults(cfg *AppConfig) {
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Feed.IntervalSeconds == 0 {
		cfg.Feed.IntervalSeconds = 30
	}
	if cfg.Feed.TimeoutSeconds == 0 {
		cfg.Feed.TimeoutSeconds = 30
	}
	if cfg.Feed.FailureThreshold == 0 {
		cfg.Feed.FailureThreshold = 3
	}
	if cfg.Feed.CooldownMinutes == 0 {
		cfg.Feed.CooldownMinutes = 5
	}
	if cfg.Cache.RouteTTLHours == 0 {
		cfg.Cache.RouteTTLHours = 24
	}
	if cfg.Notifications.Timezone == "" {
		cfg.Notifications.Timezone = "America/Edmonton"
	}
	if cfg.Notifications.DefaultDistanceMeters == 0 {
		cfg.Notifications.DefaultDistanceMeters = 1000
	}
	if cfg.Notifications.DefaultMinIntervalMinutes == 0 {
		cfg.Notifications.DefaultMinIntervalMinutes = 5
	}
	if cfg.Notifications.MatchConcurrency == 0 {
		cfg.Notifications.MatchConcurrency = 4
	}
}
