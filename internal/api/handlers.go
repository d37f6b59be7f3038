// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

// Package api exposes the verification pipeline over HTTP: photo upload,
// analytics, cache administration, and AI instruction editing.
package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/goccy/go-json"

	"github.com/dairystack/milkcheck/internal/analytics"
	"github.com/dairystack/milkcheck/internal/cache"
	"github.com/dairystack/milkcheck/internal/config"
	"github.com/dairystack/milkcheck/internal/logging"
	"github.com/dairystack/milkcheck/internal/models"
	"github.com/dairystack/milkcheck/internal/upload"
)

// Uploader runs one upload-and-verify attempt. The upload package
// implements it.
type Uploader interface {
	FastUploadAndVerify(ctx context.Context, image []byte, opts upload.Options) *models.FastUploadResult
}

// InstructionStore reads and writes the configurable AI instruction
// block. The database package implements it.
type InstructionStore interface {
	LatestInstructions(ctx context.Context) (*models.AIInstructions, error)
	UpdateInstructions(ctx context.Context, instr *models.AIInstructions) error
}

// Pinger reports readiness of the durable store.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler holds the dependencies shared by all endpoints.
type Handler struct {
	uploader     Uploader
	tracker      *analytics.Tracker
	cache        *cache.VerificationCache
	instructions InstructionStore
	db           Pinger
	cfg          *config.Config
	startTime    time.Time
}

// NewHandler creates the API handler. instructions and db may be nil when
// the corresponding endpoints are not served (tests, degraded mode).
func NewHandler(uploader Uploader, tracker *analytics.Tracker, vc *cache.VerificationCache, instructions InstructionStore, db Pinger, cfg *config.Config) *Handler {
	return &Handler{
		uploader:     uploader,
		tracker:      tracker,
		cache:        vc,
		instructions: instructions,
		db:           db,
		cfg:          cfg,
		startTime:    time.Now(),
	}
}

// respondJSON sends the standard response envelope.
func respondJSON(w http.ResponseWriter, status int, response *models.APIResponse) {
	w.Header().Set("Content-Type", "application/json")

	data, err := json.Marshal(response)
	if err != nil {
		logging.Error().Err(err).Msg("Failed to marshal JSON response")
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	w.WriteHeader(status)
	if _, err := w.Write(data); err != nil {
		logging.Error().Err(err).Msg("Failed to write JSON response")
	}
}

// respondData wraps a payload in a success envelope.
func respondData(w http.ResponseWriter, status int, data interface{}, start time.Time) {
	respondJSON(w, status, &models.APIResponse{
		Status: "success",
		Data:   data,
		Metadata: models.Metadata{
			Timestamp:   time.Now(),
			QueryTimeMS: time.Since(start).Milliseconds(),
		},
	})
}

// respondError sends an error envelope with a stable machine code.
func respondError(w http.ResponseWriter, status int, code, message string, err error) {
	if err != nil {
		logging.Error().Str("code", code).Err(err).Msg("API error")
	}
	respondJSON(w, status, &models.APIResponse{
		Status:   "error",
		Metadata: models.Metadata{Timestamp: time.Now()},
		Error:    &models.APIError{Code: code, Message: message},
	})
}

// getIntParam extracts an integer query parameter with a default value.
func getIntParam(r *http.Request, key string, defaultValue int) int {
	value := r.URL.Query().Get(key)
	if value == "" {
		return defaultValue
	}
	intValue, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return intValue
}

// getFloatParam extracts a float form value, reporting whether it parsed.
func getFloatParam(value string) (float64, bool) {
	f, err := strconv.ParseFloat(value, 64)
	return f, err == nil
}
