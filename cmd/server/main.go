// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

// Package main is the entry point for the Milkcheck server.
//
// Milkcheck verifies milk collection photos with AI: collectors upload a
// photo of the measured container next to the recorded liter reading,
// and a vision model estimates the fill level and confirms or flags the
// reading. Results are cached in a two-tier verification cache so the
// same photo and reading never pay for a second model call.
//
// # Application Architecture
//
// The server initializes components in the following order:
//
//  1. Configuration: environment variables and config files (Koanf v2)
//  2. Database: DuckDB for verification results and analytics
//  3. Verification cache: in-memory tier plus optional Badger tier
//  4. Gemini client: photo verification with retry and rate limiting
//  5. Object storage: Supabase-compatible bucket for photos
//  6. Upload orchestrator: compress, cache check, concurrent upload and verify
//  7. Supervisor tree: HTTP server, analytics flush, cache sweep
//
// # Configuration
//
// Configuration is loaded via Koanf v2 with layered sources (highest
// priority wins):
//   - Environment variables (GEMINI_API_KEY, DUCKDB_PATH, ...)
//   - Config file (config.yaml, or CONFIG_PATH)
//   - Built-in defaults
//
// # Signal Handling
//
// The server handles graceful shutdown on SIGINT and SIGTERM:
//   - Stops accepting new connections
//   - Waits for in-flight requests to complete
//   - Flushes buffered analytics to DuckDB
//   - Closes the cache and database
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dairystack/milkcheck/internal/analytics"
	"github.com/dairystack/milkcheck/internal/api"
	"github.com/dairystack/milkcheck/internal/cache"
	"github.com/dairystack/milkcheck/internal/config"
	"github.com/dairystack/milkcheck/internal/database"
	"github.com/dairystack/milkcheck/internal/gemini"
	"github.com/dairystack/milkcheck/internal/logging"
	"github.com/dairystack/milkcheck/internal/optimize"
	"github.com/dairystack/milkcheck/internal/storage"
	"github.com/dairystack/milkcheck/internal/supervisor"
	"github.com/dairystack/milkcheck/internal/supervisor/services"
	"github.com/dairystack/milkcheck/internal/upload"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to load configuration")
	}

	logging.Init(logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Caller: cfg.Logging.Caller,
	})

	logging.Info().Msg("Starting Milkcheck with supervisor tree")
	logging.Info().
		Str("db_path", cfg.Database.Path).
		Str("model", cfg.Gemini.Model).
		Str("bucket", cfg.Storage.Bucket).
		Msg("Configuration loaded")

	if !cfg.Gemini.Enabled {
		logging.Fatal().Msg("AI verification is disabled (GEMINI_ENABLED=false); Milkcheck cannot verify collections without it")
	}

	db, err := database.New(cfg.Database)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to initialize database")
	}
	defer func() {
		if err := db.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing database")
		}
	}()
	logging.Info().Msg("Database initialized successfully")

	persist, err := openPersistentCache(cfg.Cache)
	if err != nil {
		logging.Fatal().Err(err).Msg("Failed to open persistent cache tier")
	}
	verificationCache := cache.New(cfg.Cache, persist)
	defer func() {
		if err := verificationCache.Close(); err != nil {
			logging.Error().Err(err).Msg("Error closing verification cache")
		}
	}()

	verifier := gemini.NewClient(cfg.Gemini, db)
	objectStore := storage.NewSupabaseStore(cfg.Storage)
	optimizer := optimize.New(cfg.Upload)
	tracker := analytics.NewTracker(cfg.Analytics, db)

	orchestrator := upload.New(optimizer, objectStore, verifier, verificationCache, tracker, db)

	handler := api.NewHandler(orchestrator, tracker, verificationCache, db, db, cfg)
	router := api.NewRouter(handler, api.NewMiddleware(cfg.Server))

	server := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      router.Setup(),
		ReadTimeout:  cfg.Server.Timeout,
		WriteTimeout: cfg.Server.Timeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.TreeConfig{
		ShutdownTimeout: cfg.Server.ShutdownTimeout,
	})
	tree.AddPipelineService(services.NewFlushService(tracker, cfg.Analytics.FlushInterval))
	tree.AddPipelineService(services.NewSweepService(verificationCache, cfg.Cache.SweepInterval))
	tree.AddAPIService(services.NewHTTPServerService(server, cfg.Server.ShutdownTimeout))
	logging.Info().Str("addr", server.Addr).Msg("HTTP server service added")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logging.Info().Str("signal", sig.String()).Msg("Received shutdown signal")
		cancel()
	}()

	logging.Info().Msg("Starting supervisor tree...")
	errCh := tree.ServeBackground(ctx)

	for err := range errCh {
		if err != nil && !errors.Is(err, context.Canceled) {
			logging.Error().Err(err).Msg("Supervisor tree error")
		}
	}

	unstopped, _ := tree.UnstoppedServiceReport()
	for _, svc := range unstopped {
		logging.Warn().Str("service", svc.Name).Msg("Service failed to stop within timeout")
	}

	// Final flush so the buffered analytics survive the restart
	flushCtx, flushCancel := context.WithTimeout(context.Background(), 10*time.Second)
	if err := tracker.Flush(flushCtx); err != nil {
		logging.Warn().Err(err).Msg("Final analytics flush failed")
	}
	flushCancel()

	logging.Info().Msg("Application stopped gracefully")
}

// openPersistentCache opens the Badger tier, or returns nil when the
// cache should run memory-only.
func openPersistentCache(cfg config.CacheConfig) (cache.PersistentStore, error) {
	if cfg.PersistInMemory {
		return cache.NewBadgerStoreInMemory()
	}
	if cfg.PersistPath == "" {
		return nil, nil
	}
	return cache.NewBadgerStore(cfg.PersistPath)
}
