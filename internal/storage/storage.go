// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

// Package storage uploads collection photos to an object store speaking
// the Supabase storage REST protocol. Uploads go through a circuit
// breaker so a dead storage backend fails fast instead of stalling the
// whole pipeline.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	gobreaker "github.com/sony/gobreaker/v2"

	"github.com/dairystack/milkcheck/internal/config"
	"github.com/dairystack/milkcheck/internal/logging"
)

// UploadResult is the outcome of a successful object upload.
type UploadResult struct {
	URL  string // public URL of the stored object
	Path string // bucket-qualified storage path
}

// ObjectStore uploads collection photos. The orchestrator depends on
// this interface; tests substitute fakes.
type ObjectStore interface {
	Upload(ctx context.Context, objectKey string, data []byte, contentType string) (*UploadResult, error)
}

// uploadOutcome travels through the generic circuit breaker.
type uploadOutcome = *UploadResult

// SupabaseStore implements ObjectStore over the Supabase storage REST
// API.
type SupabaseStore struct {
	cfg        config.StorageConfig
	httpClient *http.Client
	breaker    *gobreaker.CircuitBreaker[uploadOutcome]
	logger     zerolog.Logger
}

// NewSupabaseStore creates a store from configuration.
func NewSupabaseStore(cfg config.StorageConfig) *SupabaseStore {
	s := &SupabaseStore{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logging.With().Str("component", "storage").Logger(),
	}

	if cfg.BreakerEnabled {
		settings := gobreaker.Settings{
			Name:        "storage-upload",
			MaxRequests: 1,
			Interval:    time.Minute,
			Timeout:     30 * time.Second,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				s.logger.Warn().
					Str("breaker", name).
					Str("from", from.String()).
					Str("to", to.String()).
					Msg("storage circuit breaker state change")
			},
		}
		s.breaker = gobreaker.NewCircuitBreaker[uploadOutcome](settings)
	}
	return s
}

// Upload stores data under objectKey in the configured bucket and
// returns the public URL and bucket-qualified path.
func (s *SupabaseStore) Upload(ctx context.Context, objectKey string, data []byte, contentType string) (*UploadResult, error) {
	if s.cfg.BaseURL == "" {
		return nil, fmt.Errorf("storage is not configured")
	}
	if s.breaker == nil {
		return s.upload(ctx, objectKey, data, contentType)
	}
	return s.breaker.Execute(func() (uploadOutcome, error) {
		return s.upload(ctx, objectKey, data, contentType)
	})
}

func (s *SupabaseStore) upload(ctx context.Context, objectKey string, data []byte, contentType string) (*UploadResult, error) {
	if contentType == "" {
		contentType = "image/jpeg"
	}

	url := fmt.Sprintf("%s/storage/v1/object/%s/%s",
		strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.Bucket, objectKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("create upload request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+s.cfg.ServiceKey)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("x-upsert", "false")

	start := time.Now()
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("upload failed with status %d: %s", resp.StatusCode, string(body))
	}

	result := &UploadResult{
		URL: fmt.Sprintf("%s/storage/v1/object/public/%s/%s",
			strings.TrimRight(s.cfg.BaseURL, "/"), s.cfg.Bucket, objectKey),
		Path: s.cfg.Bucket + "/" + objectKey,
	}

	s.logger.Debug().
		Str("path", result.Path).
		Int("bytes", len(data)).
		Dur("elapsed", time.Since(start)).
		Msg("object uploaded")
	return result, nil
}
