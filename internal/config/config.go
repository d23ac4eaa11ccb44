package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Config is the top-level application configuration. Values are read from a
// YAML file and may be overridden per-key by environment variables, so a
// containerized deployment can run without a config file at all.
type Config struct {
	// FeedURL is the published ICS feed to sync from.
	FeedURL string `yaml:"feed_url"`

	// CalendarID is the destination Google Calendar.
	CalendarID string `yaml:"calendar_id"`

	// Account names the token file (token-<account>.json) holding the
	// refresh token obtained via the auth command.
	Account string `yaml:"account"`

	// OAuth client credentials for the Google API.
	ClientID     string `yaml:"client_id"`
	ClientSecret string `yaml:"client_secret"`

	// WindowPastDays and WindowFutureDays bound the destination read
	// window around "now".
	WindowPastDays   int `yaml:"window_past_days"`
	WindowFutureDays int `yaml:"window_future_days"`

	// AllowEmptySource disables the safety guard that skips the deletion
	// pass when the feed comes back empty but synced events still exist.
	AllowEmptySource bool `yaml:"allow_empty_source"`

	// Listen is the HTTP listen address for the serve command.
	Listen string `yaml:"listen"`

	// SyncToken guards the on-demand /sync endpoint. Empty disables it.
	SyncToken string `yaml:"sync_token"`

	// Schedule is a cron expression for periodic sync (e.g. "*/15 * * * *").
	Schedule string `yaml:"schedule"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level"`
}

// Load reads configuration from the given YAML path, then applies
// environment overrides and defaults. A missing file is not an error: the
// environment alone can carry a complete configuration.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	cfg.applyEnv()
	cfg.normalize()

	return cfg, nil
}

// applyEnv overrides file values with environment variables when set.
func (c *Config) applyEnv() {
	setString(&c.FeedURL, "ICS_FEED_URL")
	setString(&c.CalendarID, "GOOGLE_CALENDAR_ID")
	setString(&c.Account, "GOOGLE_ACCOUNT")
	setString(&c.ClientID, "GOOGLE_CLIENT_ID")
	setString(&c.ClientSecret, "GOOGLE_CLIENT_SECRET")
	setString(&c.Listen, "LISTEN_ADDR")
	setString(&c.SyncToken, "SYNC_TOKEN")
	setString(&c.Schedule, "SYNC_SCHEDULE")
	setString(&c.LogLevel, "LOG_LEVEL")
	setInt(&c.WindowPastDays, "WINDOW_PAST_DAYS")
	setInt(&c.WindowFutureDays, "WINDOW_FUTURE_DAYS")
	setBool(&c.AllowEmptySource, "ALLOW_EMPTY_SOURCE")
}

// normalize fills in missing/zero values with sensible defaults so that a
// partially-filled config still behaves correctly.
func (c *Config) normalize() {
	if c.Account == "" {
		c.Account = "default"
	}
	if c.CalendarID == "" {
		c.CalendarID = "primary"
	}
	if c.WindowPastDays <= 0 {
		c.WindowPastDays = 30
	}
	if c.WindowFutureDays <= 0 {
		c.WindowFutureDays = 365
	}
	if c.Listen == "" {
		c.Listen = "127.0.0.1:8080"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
}

// Validate checks the fields a sync run cannot proceed without.
func (c *Config) Validate() error {
	if c.FeedURL == "" {
		return errors.New("feed_url is required (or set ICS_FEED_URL)")
	}
	if c.ClientID == "" || c.ClientSecret == "" {
		return errors.New("client_id and client_secret are required (or set GOOGLE_CLIENT_ID / GOOGLE_CLIENT_SECRET)")
	}
	return nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func setInt(dst *int, key string) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func setBool(dst *bool, key string) {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			*dst = b
		}
	}
}
