// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

// TestDefaultConfig verifies that defaultConfig() returns proper defaults
func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Server.Port != 8490 {
		t.Errorf("Server.Port = %d, want 8490", cfg.Server.Port)
	}
	if cfg.Server.Timeout != 30*time.Second {
		t.Errorf("Server.Timeout = %v, want 30s", cfg.Server.Timeout)
	}
	if len(cfg.Server.CORSOrigins) != 0 {
		t.Errorf("Server.CORSOrigins = %v, want empty (explicit configuration required)", cfg.Server.CORSOrigins)
	}

	if cfg.Cache.TTL != 5*time.Minute {
		t.Errorf("Cache.TTL = %v, want 5m", cfg.Cache.TTL)
	}
	if cfg.Cache.MemoryCapacity != 100 {
		t.Errorf("Cache.MemoryCapacity = %d, want 100", cfg.Cache.MemoryCapacity)
	}

	if cfg.Gemini.Model != "gemini-2.5-flash" {
		t.Errorf("Gemini.Model = %q, want gemini-2.5-flash", cfg.Gemini.Model)
	}
	if cfg.Gemini.APIKey != "" {
		t.Errorf("Gemini.APIKey should be empty by default, got %q", cfg.Gemini.APIKey)
	}

	if cfg.Analytics.BufferCapacity != 1000 {
		t.Errorf("Analytics.BufferCapacity = %d, want 1000", cfg.Analytics.BufferCapacity)
	}
	if cfg.Analytics.BatchSize != 100 {
		t.Errorf("Analytics.BatchSize = %d, want 100", cfg.Analytics.BatchSize)
	}
	if cfg.Analytics.FlushInterval != 5*time.Minute {
		t.Errorf("Analytics.FlushInterval = %v, want 5m", cfg.Analytics.FlushInterval)
	}
	if cfg.Analytics.RecentWindow != 10 {
		t.Errorf("Analytics.RecentWindow = %d, want 10", cfg.Analytics.RecentWindow)
	}

	if cfg.Database.Path != "/data/milkcheck.duckdb" {
		t.Errorf("Database.Path = %q, want /data/milkcheck.duckdb", cfg.Database.Path)
	}
	if cfg.Storage.Bucket != "milk-collections" {
		t.Errorf("Storage.Bucket = %q, want milk-collections", cfg.Storage.Bucket)
	}
}

// TestValidate exercises the validation rules on hand-built configs
func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg := defaultConfig()
		cfg.Gemini.APIKey = "test-key"
		return cfg
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("valid config failed validation: %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero port", func(c *Config) { c.Server.Port = 0 }},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }},
		{"empty database path", func(c *Config) { c.Database.Path = "" }},
		{"zero cache ttl", func(c *Config) { c.Cache.TTL = 0 }},
		{"zero memory capacity", func(c *Config) { c.Cache.MemoryCapacity = 0 }},
		{"gemini enabled without key", func(c *Config) { c.Gemini.APIKey = "" }},
		{"empty model", func(c *Config) { c.Gemini.Model = "" }},
		{"batch exceeds buffer", func(c *Config) { c.Analytics.BatchSize = c.Analytics.BufferCapacity + 1 }},
		{"quality out of range", func(c *Config) { c.Upload.CompressionQuality = 0 }},
		{"storage url without bucket", func(c *Config) {
			c.Storage.BaseURL = "https://example.supabase.co"
			c.Storage.Bucket = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error, got nil")
			}
		})
	}
}

// TestGeminiDisabledSkipsKeyCheck verifies the API key is optional when
// the verification client is disabled
func TestGeminiDisabledSkipsKeyCheck(t *testing.T) {
	cfg := defaultConfig()
	cfg.Gemini.Enabled = false
	cfg.Gemini.APIKey = ""
	if err := cfg.Validate(); err != nil {
		t.Errorf("disabled gemini should not require api key: %v", err)
	}
}

// TestEnvTransformFunc verifies env var to config path mapping
func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		env  string
		want string
	}{
		{"GEMINI_API_KEY", "gemini.api_key"},
		{"DUCKDB_PATH", "database.path"},
		{"HTTP_PORT", "server.port"},
		{"CACHE_TTL", "cache.ttl"},
		{"ANALYTICS_BATCH_SIZE", "analytics.batch_size"},
		{"LOG_LEVEL", "logging.level"},
		{"UNRELATED_VAR", ""},
		{"PATH", ""},
	}
	for _, tt := range tests {
		if got := envTransformFunc(tt.env); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.env, got, tt.want)
		}
	}
}

// TestLoadWithEnvOverride verifies environment variables override defaults
func TestLoadWithEnvOverride(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "env-key")
	t.Setenv("HTTP_PORT", "9000")
	t.Setenv("CACHE_MEMORY_CAPACITY", "50")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Gemini.APIKey != "env-key" {
		t.Errorf("Gemini.APIKey = %q, want env-key", cfg.Gemini.APIKey)
	}
	if cfg.Server.Port != 9000 {
		t.Errorf("Server.Port = %d, want 9000", cfg.Server.Port)
	}
	if cfg.Cache.MemoryCapacity != 50 {
		t.Errorf("Cache.MemoryCapacity = %d, want 50", cfg.Cache.MemoryCapacity)
	}
	if len(cfg.Server.CORSOrigins) != 2 || cfg.Server.CORSOrigins[0] != "https://a.example" {
		t.Errorf("Server.CORSOrigins = %v, want [https://a.example https://b.example]", cfg.Server.CORSOrigins)
	}
}

// TestLoadWithConfigFile verifies YAML file layering between defaults and env
func TestLoadWithConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yaml := `
server:
  port: 9100
gemini:
  api_key: file-key
cache:
  ttl: 10m
`
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	// Env overrides file for the same key
	t.Setenv("GEMINI_API_KEY", "env-wins")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() failed: %v", err)
	}
	if cfg.Server.Port != 9100 {
		t.Errorf("Server.Port = %d, want 9100 from file", cfg.Server.Port)
	}
	if cfg.Cache.TTL != 10*time.Minute {
		t.Errorf("Cache.TTL = %v, want 10m from file", cfg.Cache.TTL)
	}
	if cfg.Gemini.APIKey != "env-wins" {
		t.Errorf("Gemini.APIKey = %q, want env-wins (env over file)", cfg.Gemini.APIKey)
	}
}
