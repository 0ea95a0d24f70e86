// Package config defines service configuration structures and loading hooks.
package config

import (
	"context"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level" validate:"required|in:debug,info,warn,warning,error"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format" validate:"required|in:text,json"`

	// Addr configures the HTTP listen address, e.g. ":8080".
	Addr string `koanf:"addr" validate:"required"`

	// Backend selects the storage implementation: memory, redis or sqlite.
	Backend string `koanf:"backend" validate:"required|in:memory,redis,sqlite"`

	// Compression wraps stored payloads: none or zstd.
	Compression string `koanf:"compression" validate:"required|in:none,zstd"`

	Redis       RedisConfig       `koanf:"redis"`
	SQLite      SQLiteConfig      `koanf:"sqlite"`
	Leaderboard LeaderboardConfig `koanf:"leaderboard"`
	Presence    PresenceConfig    `koanf:"presence"`
	Cache       CacheConfig       `koanf:"cache"`
	Coupon      CouponConfig      `koanf:"coupon"`
	Metrics     MetricsConfig     `koanf:"metrics"`
}

// RedisConfig configures the shared backend.
type RedisConfig struct {
	Addr     string `koanf:"addr"`
	Password string `koanf:"password"`
	DB       int    `koanf:"db" validate:"min:0"`
	// LockTTL bounds how long a crashed holder keeps a namespace lock.
	LockTTL time.Duration `koanf:"lock_ttl" validate:"min:1"`
	// EventRetention expires idle presence streams. Zero disables it.
	EventRetention time.Duration `koanf:"event_retention" validate:"min:0"`
}

// SQLiteConfig configures the durable single-node backend.
type SQLiteConfig struct {
	Path string `koanf:"path"`
}

type LeaderboardConfig struct {
	Capacity int `koanf:"capacity" validate:"required|min:1"`
}

type PresenceConfig struct {
	Window time.Duration `koanf:"window" validate:"required|min:1"`
}

// CacheConfig sizes the in-process leaderboard read cache.
type CacheConfig struct {
	Enabled bool          `koanf:"enabled"`
	SizeMB  int           `koanf:"size_mb" validate:"min:0"`
	TTL     time.Duration `koanf:"ttl" validate:"min:0"`
}

type CouponConfig struct {
	MaxAttempts int `koanf:"max_attempts" validate:"required|min:1"`
}

// MetricsConfig names and labels the exported Prometheus series.
type MetricsConfig struct {
	Namespace string `koanf:"namespace" validate:"required"`
	Subsystem string `koanf:"subsystem"`

	// Buckets overrides the latency histogram buckets; they must increase.
	Buckets     []float64         `koanf:"buckets"`
	ConstLabels map[string]string `koanf:"const_labels"`
}

// New creates a Config holding the defaults.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:    "info",
		LogFormat:   "text",
		Addr:        ":9080",
		Backend:     "memory",
		Compression: "none",
		Redis: RedisConfig{
			Addr:           "localhost:6379",
			LockTTL:        5 * time.Second,
			EventRetention: 48 * time.Hour,
		},
		SQLite: SQLiteConfig{
			Path: "data/ludus.db",
		},
		Leaderboard: LeaderboardConfig{Capacity: 10},
		Presence:    PresenceConfig{Window: 24 * time.Hour},
		Cache: CacheConfig{
			Enabled: true,
			SizeMB:  8,
			TTL:     5 * time.Second,
		},
		Coupon: CouponConfig{MaxAttempts: 32},
		Metrics: MetricsConfig{
			Namespace: "ludus",
			Subsystem: "api",
		},
	}
}
