// Package config defines service configuration structures and loading hooks.
//
// Conventions:
// - Provide New(ctx) to build a Config with defaults.
// - All functions accept context.Context as the first parameter.
// - Validation failures wrap ErrInvalidConfig.
package config

import (
	"context"
	"fmt"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects the handler: json or text.
	LogFormat string `koanf:"log_format"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr"`

	// DatabaseDSN selects the PostgreSQL store when set; otherwise the
	// in-memory store is used.
	DatabaseDSN string `koanf:"database_dsn"`

	// Pool settings for the PostgreSQL store.
	DBMaxOpenConns        int `koanf:"db_max_open_conns"`
	DBMaxIdleConns        int `koanf:"db_max_idle_conns"`
	DBConnMaxLifetimeSecs int `koanf:"db_conn_max_lifetime_sec"`

	// AutoMigrate applies the embedded schema at startup.
	AutoMigrate bool `koanf:"auto_migrate"`

	// TimetablePath points at a YAML timetable; empty uses the built-in one.
	TimetablePath string `koanf:"timetable_path"`

	// RosterPath points at a YAML student roster loaded at startup.
	RosterPath string `koanf:"roster_path"`

	// Timezone is the IANA zone used to derive "today" and the wall clock
	// for current-session lookups.
	Timezone string `koanf:"timezone"`

	// HistoryPageSize is the number of records per history page.
	HistoryPageSize int `koanf:"history_page_size"`

	// JWTSecret enables HS256 bearer token identities when non-empty.
	JWTSecret string `koanf:"jwt_secret"`
}

// New creates a Config populated with defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:              "info",
		LogFormat:             "text",
		Addr:                  ":9080",
		DBMaxOpenConns:        10,
		DBMaxIdleConns:        5,
		DBConnMaxLifetimeSecs: 1800,
		Timezone:              "Local",
		HistoryPageSize:       7,
	}
}

// Location resolves Timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("%w: timezone %q: %v", ErrInvalidConfig, c.Timezone, err)
	}
	return loc, nil
}

// ConnMaxLifetime returns DBConnMaxLifetimeSecs as a duration.
func (c *Config) ConnMaxLifetime() time.Duration {
	return time.Duration(c.DBConnMaxLifetimeSecs) * time.Second
}

// Validate checks the values Load cannot type-check.
func (c *Config) Validate() error {
	if c.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", ErrInvalidConfig)
	}
	if c.HistoryPageSize <= 0 {
		return fmt.Errorf("%w: history_page_size must be positive, got %d", ErrInvalidConfig, c.HistoryPageSize)
	}
	switch c.LogFormat {
	case "json", "text":
	default:
		return fmt.Errorf("%w: log_format must be json or text, got %q", ErrInvalidConfig, c.LogFormat)
	}
	if c.DBMaxOpenConns < 0 || c.DBMaxIdleConns < 0 || c.DBConnMaxLifetimeSecs < 0 {
		return fmt.Errorf("%w: database pool settings must not be negative", ErrInvalidConfig)
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}
