// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

// Package config provides centralized configuration for all Milkcheck
// components: HTTP server, DuckDB analytics store, Badger verification
// cache, Gemini client, object storage, and logging.
//
// Configuration Loading Order (Koanf v2):
//  1. Defaults: Built-in sensible defaults for all optional settings
//  2. Config File: Optional YAML config file (config.yaml)
//  3. Environment Variables: Override any setting
//
// Config is immutable after Load() and safe for concurrent read access.
package config

import (
	"fmt"
	"time"
)

// Config holds all application configuration loaded from environment
// variables and config files.
type Config struct {
	Server    ServerConfig    `koanf:"server"`
	Database  DatabaseConfig  `koanf:"database"`
	Cache     CacheConfig     `koanf:"cache"`
	Gemini    GeminiConfig    `koanf:"gemini"`
	Storage   StorageConfig   `koanf:"storage"`
	Analytics AnalyticsConfig `koanf:"analytics"`
	Upload    UploadConfig    `koanf:"upload"`
	Logging   LoggingConfig   `koanf:"logging"`
}

// ServerConfig holds HTTP server settings.
//
// Environment Variables:
//   - HTTP_PORT: Listen port (default: 8490)
//   - HTTP_HOST: Bind address (default: 0.0.0.0)
//   - HTTP_TIMEOUT: Read/write timeout (default: 30s)
type ServerConfig struct {
	Port            int           `koanf:"port"`
	Host            string        `koanf:"host"`
	Timeout         time.Duration `koanf:"timeout"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
	RateLimitReqs   int           `koanf:"rate_limit_reqs"`
	RateLimitWindow time.Duration `koanf:"rate_limit_window"`
	CORSOrigins     []string      `koanf:"cors_origins"`
	MaxUploadBytes  int64         `koanf:"max_upload_bytes"`
}

// DatabaseConfig holds DuckDB settings for the durable verification and
// analytics store.
//
// Environment Variables:
//   - DUCKDB_PATH: Database file path (default: /data/milkcheck.duckdb)
//   - DUCKDB_MAX_MEMORY: Memory limit (default: 1GB)
type DatabaseConfig struct {
	Path      string `koanf:"path"`
	MaxMemory string `koanf:"max_memory"`
	Threads   int    `koanf:"threads"` // 0 = use runtime.NumCPU()
}

// CacheConfig holds two-tier verification cache settings. The memory tier
// is a fixed-capacity map; the persistent tier is a Badger store that
// survives restarts.
type CacheConfig struct {
	TTL             time.Duration `koanf:"ttl"`
	MemoryCapacity  int           `koanf:"memory_capacity"`
	PersistPath     string        `koanf:"persist_path"`
	PersistInMemory bool          `koanf:"persist_in_memory"` // Badger in-memory mode, used by tests
	SweepInterval   time.Duration `koanf:"sweep_interval"`
}

// GeminiConfig holds the AI verification client settings.
//
// Environment Variables:
//   - GEMINI_API_KEY: API key (required unless verification is disabled)
//   - GEMINI_MODEL: Model name (default: gemini-2.5-flash)
type GeminiConfig struct {
	Enabled     bool          `koanf:"enabled"`
	APIKey      string        `koanf:"api_key"`
	Model       string        `koanf:"model"`
	BaseURL     string        `koanf:"base_url"`
	Timeout     time.Duration `koanf:"timeout"`
	MaxRetries  int           `koanf:"max_retries"`
	RetryDelay  time.Duration `koanf:"retry_delay"`
	RateLimit   float64       `koanf:"rate_limit"` // requests per second, 0 = unlimited
	RateBurst   int           `koanf:"rate_burst"`
}

// StorageConfig holds object storage settings for uploaded collection
// photos. The store speaks the Supabase storage REST protocol.
type StorageConfig struct {
	BaseURL        string        `koanf:"base_url"`
	ServiceKey     string        `koanf:"service_key"`
	Bucket         string        `koanf:"bucket"`
	Timeout        time.Duration `koanf:"timeout"`
	BreakerEnabled bool          `koanf:"breaker_enabled"`
}

// AnalyticsConfig holds performance tracking settings: ring buffer size,
// batch flush cadence, and the window for rolling averages.
type AnalyticsConfig struct {
	BufferCapacity int           `koanf:"buffer_capacity"`
	BatchSize      int           `koanf:"batch_size"`
	FlushInterval  time.Duration `koanf:"flush_interval"`
	RecentWindow   int           `koanf:"recent_window"`
}

// UploadConfig holds orchestrator settings for the compress-upload-verify
// pipeline.
type UploadConfig struct {
	CompressionQuality int   `koanf:"compression_quality"` // JPEG quality 1-100
	MaxDimension       int   `koanf:"max_dimension"`       // longest edge after resize
	TargetBytes        int64 `koanf:"target_bytes"`        // best-effort size target
}

// LoggingConfig holds log output settings.
type LoggingConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"` // json or console
	Caller bool   `koanf:"caller"`
}

// Validate checks the configuration for missing or malformed values.
// Called by Load(); exported so tests can exercise hand-built configs.
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be 1-65535, got %d", c.Server.Port)
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Cache.TTL <= 0 {
		return fmt.Errorf("cache.ttl must be positive, got %s", c.Cache.TTL)
	}
	if c.Cache.MemoryCapacity < 1 {
		return fmt.Errorf("cache.memory_capacity must be at least 1, got %d", c.Cache.MemoryCapacity)
	}
	if c.Gemini.Enabled && c.Gemini.APIKey == "" {
		return fmt.Errorf("gemini.api_key is required when gemini.enabled is true")
	}
	if c.Gemini.Model == "" {
		return fmt.Errorf("gemini.model is required")
	}
	if c.Analytics.BufferCapacity < 1 {
		return fmt.Errorf("analytics.buffer_capacity must be at least 1, got %d", c.Analytics.BufferCapacity)
	}
	if c.Analytics.BatchSize < 1 || c.Analytics.BatchSize > c.Analytics.BufferCapacity {
		return fmt.Errorf("analytics.batch_size must be 1-%d, got %d", c.Analytics.BufferCapacity, c.Analytics.BatchSize)
	}
	if c.Upload.CompressionQuality < 1 || c.Upload.CompressionQuality > 100 {
		return fmt.Errorf("upload.compression_quality must be 1-100, got %d", c.Upload.CompressionQuality)
	}
	if c.Storage.BaseURL != "" && c.Storage.Bucket == "" {
		return fmt.Errorf("storage.bucket is required when storage.base_url is set")
	}
	return nil
}
