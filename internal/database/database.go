// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

// Package database is the DuckDB-backed durable store: verification
// results, flushed analytics, AI instruction records, and the collection
// rows they link to.
package database

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"

	_ "github.com/duckdb/duckdb-go/v2"

	"github.com/dairystack/milkcheck/internal/config"
	"github.com/dairystack/milkcheck/internal/logging"
)

// DB wraps the DuckDB connection and provides data access methods.
type DB struct {
	conn *sql.DB
	cfg  config.DatabaseConfig
}

// New opens (or creates) the DuckDB database and initializes the schema.
func New(cfg config.DatabaseConfig) (*DB, error) {
	numThreads := cfg.Threads
	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
	}

	// In-memory mode when the path is empty, used by tests
	connStr := ""
	if cfg.Path != "" {
		// Parent directory must exist before DuckDB opens the file
		dbDir := filepath.Dir(cfg.Path)
		if dbDir != "" && dbDir != "." {
			if err := os.MkdirAll(dbDir, 0o750); err != nil {
				return nil, fmt.Errorf("failed to create database directory %s: %w", dbDir, err)
			}
		}
		connStr = fmt.Sprintf("%s?access_mode=read_write&threads=%d&max_memory=%s",
			cfg.Path, numThreads, cfg.MaxMemory)
	}

	conn, err := sql.Open("duckdb", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db := &DB{conn: conn, cfg: cfg}
	if err := db.createTables(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Msg("database initialized")
	return db, nil
}

// createTables creates the schema if absent. All statements are
// idempotent; restarting against an existing database is a no-op.
func (db *DB) createTables() error {
	statements := []string{
		`CREATE SEQUENCE IF NOT EXISTS seq_verification_analytics START 1`,
		`CREATE TABLE IF NOT EXISTS collections (
			id VARCHAR PRIMARY KEY,
			farmer_id VARCHAR NOT NULL,
			collector_id VARCHAR,
			liters DOUBLE NOT NULL,
			photo_url VARCHAR,
			storage_path VARCHAR,
			ai_verification_id VARCHAR,
			status VARCHAR DEFAULT 'pending',
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS ai_verification_results (
			id VARCHAR PRIMARY KEY,
			collection_id VARCHAR NOT NULL,
			estimated_liters DOUBLE NOT NULL,
			recorded_liters DOUBLE NOT NULL,
			matches_recorded BOOLEAN NOT NULL,
			confidence_score DOUBLE NOT NULL,
			explanation VARCHAR,
			verification_passed BOOLEAN NOT NULL,
			status VARCHAR NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE TABLE IF NOT EXISTS verification_analytics (
			id BIGINT PRIMARY KEY DEFAULT nextval('seq_verification_analytics'),
			collection_id VARCHAR,
			farmer_id VARCHAR,
			compression_time BIGINT NOT NULL,
			upload_duration BIGINT NOT NULL,
			verification_latency BIGINT NOT NULL,
			total_time BIGINT NOT NULL,
			cache_hit BOOLEAN NOT NULL,
			original_size BIGINT,
			optimized_size BIGINT,
			compression_ratio DOUBLE,
			success BOOLEAN NOT NULL,
			error_message VARCHAR,
			created_at TIMESTAMP NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ai_instructions (
			id VARCHAR PRIMARY KEY,
			instructions VARCHAR NOT NULL,
			model_name VARCHAR NOT NULL,
			confidence_threshold DOUBLE NOT NULL,
			created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
			updated_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
		)`,
		`CREATE INDEX IF NOT EXISTS idx_verification_collection
			ON ai_verification_results (collection_id)`,
		`CREATE INDEX IF NOT EXISTS idx_analytics_created
			ON verification_analytics (created_at)`,
	}

	for _, stmt := range statements {
		if _, err := db.conn.Exec(stmt); err != nil {
			return fmt.Errorf("schema statement failed: %w", err)
		}
	}
	return nil
}

// Ping checks if the database connection is alive.
func (db *DB) Ping(ctx context.Context) error {
	if db.conn == nil {
		return fmt.Errorf("database connection is nil")
	}
	return db.conn.PingContext(ctx)
}

// Checkpoint forces DuckDB to flush the WAL into the database file.
func (db *DB) Checkpoint(ctx context.Context) error {
	_, err := db.conn.ExecContext(ctx, "CHECKPOINT")
	return err
}

// Close checkpoints and closes the connection. The checkpoint is best
// effort; a failure is logged, not returned.
func (db *DB) Close() error {
	if db.conn == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	if err := db.Checkpoint(ctx); err != nil {
		logging.Warn().Err(err).Msg("failed to checkpoint database before close")
	}
	cancel()
	return db.conn.Close()
}
