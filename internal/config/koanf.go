// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists the paths where config files are searched in
// order of priority. The first file found wins.
var DefaultConfigPaths = []string{
	"config.yaml",
	"config.yml",
	"/etc/milkcheck/config.yaml",
	"/etc/milkcheck/config.yml",
}

// ConfigPathEnvVar overrides the config file search path.
const ConfigPathEnvVar = "CONFIG_PATH"

// defaultConfig returns a Config with all default values. Defaults are
// applied first, then overridden by config file and env vars.
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Port:            8490,
			Host:            "0.0.0.0",
			Timeout:         30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
			RateLimitReqs:   100,
			RateLimitWindow: time.Minute,
			CORSOrigins:     nil, // cross-origin clients need explicit configuration
			MaxUploadBytes:  20 << 20, // 20MB, covers full-resolution phone photos
		},
		Database: DatabaseConfig{
			Path:      "/data/milkcheck.duckdb",
			MaxMemory: "1GB",
			Threads:   0, // 0 = use runtime.NumCPU()
		},
		Cache: CacheConfig{
			TTL:             5 * time.Minute,
			MemoryCapacity:  100,
			PersistPath:     "/data/verification-cache",
			PersistInMemory: false,
			SweepInterval:   time.Minute,
		},
		Gemini: GeminiConfig{
			Enabled:    true,
			APIKey:     "",
			Model:      "gemini-2.5-flash",
			BaseURL:    "https://generativelanguage.googleapis.com/v1beta",
			Timeout:    60 * time.Second,
			MaxRetries: 3,
			RetryDelay: time.Second,
			RateLimit:  0, // unlimited by default
			RateBurst:  1,
		},
		Storage: StorageConfig{
			BaseURL:        "",
			ServiceKey:     "",
			Bucket:         "milk-collections",
			Timeout:        45 * time.Second,
			BreakerEnabled: true,
		},
		Analytics: AnalyticsConfig{
			BufferCapacity: 1000,
			BatchSize:      100,
			FlushInterval:  5 * time.Minute,
			RecentWindow:   10,
		},
		Upload: UploadConfig{
			CompressionQuality: 78,
			MaxDimension:       1600,
			TargetBytes:        400 << 10, // ~400KB
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Load loads configuration using Koanf v2 with layered sources:
//  1. Defaults: Built-in sensible defaults
//  2. Config File: Optional YAML config file (if exists)
//  3. Environment Variables: Override any setting
func Load() (*Config, error) {
	k := koanf.New(".")

	// Layer 1: defaults from struct
	if err := k.Load(structs.Provider(defaultConfig(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	// Layer 2: config file (optional)
	if configPath := findConfigFile(); configPath != "" {
		if err := k.Load(file.Provider(configPath), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", configPath, err)
		}
	}

	// Layer 3: environment variables (highest priority)
	// GEMINI_API_KEY -> gemini.api_key, HTTP_PORT -> server.port
	if err := k.Load(env.Provider("", ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := processSliceFields(k); err != nil {
		return nil, fmt.Errorf("failed to process slice fields: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// findConfigFile searches for a config file in the default paths.
// Returns the first path found, or empty string if none exists.
func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// sliceConfigPaths defines which config paths should be parsed as
// comma-separated slices when set via env vars.
var sliceConfigPaths = []string{
	"server.cors_origins",
}

// processSliceFields converts comma-separated string values to slices for
// known slice fields. Env vars always arrive as strings.
func processSliceFields(k *koanf.Koanf) error {
	for _, path := range sliceConfigPaths {
		val := k.Get(path)
		if val == nil {
			continue
		}
		if _, ok := val.([]interface{}); ok {
			continue
		}
		if _, ok := val.([]string); ok {
			continue
		}
		strVal, ok := val.(string)
		if !ok || strVal == "" {
			continue
		}
		parts := strings.Split(strVal, ",")
		trimmed := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				trimmed = append(trimmed, p)
			}
		}
		if len(trimmed) > 0 {
			if err := k.Set(path, trimmed); err != nil {
				return fmt.Errorf("failed to set %s: %w", path, err)
			}
		}
	}
	return nil
}

// envTransformFunc maps well-known environment variable names to koanf
// config paths. Unknown variables are dropped so unrelated environment
// noise cannot override config keys.
//
// Examples:
//   - GEMINI_API_KEY -> gemini.api_key
//   - DUCKDB_PATH -> database.path
//   - HTTP_PORT -> server.port
func envTransformFunc(key string) string {
	key = strings.ToLower(key)

	envMappings := map[string]string{
		// Server
		"http_port":             "server.port",
		"http_host":             "server.host",
		"http_timeout":          "server.timeout",
		"http_max_upload_bytes": "server.max_upload_bytes",
		"cors_origins":          "server.cors_origins",
		"rate_limit_reqs":       "server.rate_limit_reqs",
		"rate_limit_window":     "server.rate_limit_window",

		// Database
		"duckdb_path":       "database.path",
		"duckdb_max_memory": "database.max_memory",
		"duckdb_threads":    "database.threads",

		// Cache
		"cache_ttl":             "cache.ttl",
		"cache_memory_capacity": "cache.memory_capacity",
		"cache_persist_path":    "cache.persist_path",
		"cache_sweep_interval":  "cache.sweep_interval",

		// Gemini
		"gemini_enabled":     "gemini.enabled",
		"gemini_api_key":     "gemini.api_key",
		"gemini_model":       "gemini.model",
		"gemini_base_url":    "gemini.base_url",
		"gemini_timeout":     "gemini.timeout",
		"gemini_max_retries": "gemini.max_retries",
		"gemini_rate_limit":  "gemini.rate_limit",

		// Storage
		"storage_base_url":    "storage.base_url",
		"storage_service_key": "storage.service_key",
		"storage_bucket":      "storage.bucket",
		"storage_timeout":     "storage.timeout",

		// Analytics
		"analytics_buffer_capacity": "analytics.buffer_capacity",
		"analytics_batch_size":      "analytics.batch_size",
		"analytics_flush_interval":  "analytics.flush_interval",
		"analytics_recent_window":   "analytics.recent_window",

		// Upload
		"upload_compression_quality": "upload.compression_quality",
		"upload_max_dimension":       "upload.max_dimension",
		"upload_target_bytes":        "upload.target_bytes",

		// Logging
		"log_level":  "logging.level",
		"log_format": "logging.format",
		"log_caller": "logging.caller",
	}

	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
