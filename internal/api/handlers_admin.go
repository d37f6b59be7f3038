// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/goccy/go-json"

	"github.com/dairystack/milkcheck/internal/database"
	"github.com/dairystack/milkcheck/internal/gemini"
	"github.com/dairystack/milkcheck/internal/logging"
	"github.com/dairystack/milkcheck/internal/models"
	"github.com/dairystack/milkcheck/internal/validation"
)

// CacheStats handles GET /api/v1/cache/stats.
func (h *Handler) CacheStats(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, h.cache.Stats(), time.Now())
}

// CacheClear handles POST /api/v1/cache/clear. Empties both tiers.
func (h *Handler) CacheClear(w http.ResponseWriter, r *http.Request) {
	h.cache.Clear()
	logging.Info().Msg("Verification cache cleared via API")
	respondData(w, http.StatusOK, h.cache.Stats(), time.Now())
}

// GetInstructions handles GET /api/v1/instructions. When no custom
// instructions are stored, the built-in defaults are returned.
func (h *Handler) GetInstructions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	instr, err := h.instructions.LatestInstructions(r.Context())
	if errors.Is(err, database.ErrNotFound) {
		respondData(w, http.StatusOK, gemini.DefaultInstructions(h.cfg.Gemini.Model), start)
		return
	}
	if err != nil {
		respondError(w, http.StatusInternalServerError, "INSTRUCTIONS_FAILED", "failed to load AI instructions", err)
		return
	}
	respondData(w, http.StatusOK, instr, start)
}

// instructionsUpdateRequest is the validated PUT body.
type instructionsUpdateRequest struct {
	Instructions        string  `json:"instructions" validate:"required,max=20000"`
	ModelName           string  `json:"model_name" validate:"required,max=128"`
	ConfidenceThreshold float64 `json:"confidence_threshold" validate:"gte=0,lte=1"`
}

// UpdateInstructions handles PUT /api/v1/instructions. Updates take
// effect on the next verification; in-flight requests keep the
// instructions they started with.
func (h *Handler) UpdateInstructions(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req instructionsUpdateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "INVALID_JSON", "request body is not valid JSON", err)
		return
	}
	if verr := validation.ValidateStruct(&req); verr != nil {
		apiErr := verr.ToAPIError()
		respondError(w, http.StatusBadRequest, apiErr.Code, apiErr.Message, nil)
		return
	}

	instr := &models.AIInstructions{
		Instructions:        req.Instructions,
		ModelName:           req.ModelName,
		ConfidenceThreshold: req.ConfidenceThreshold,
	}
	if err := h.instructions.UpdateInstructions(r.Context(), instr); err != nil {
		respondError(w, http.StatusInternalServerError, "INSTRUCTIONS_UPDATE_FAILED", "failed to store AI instructions", err)
		return
	}

	logging.Info().Str("model", req.ModelName).Msg("AI instructions updated")
	respondData(w, http.StatusOK, instr, start)
}

// healthStatus is the payload for the health endpoints.
type healthStatus struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// HealthLive handles GET /api/v1/health/live. Always healthy while the
// process serves requests.
func (h *Handler) HealthLive(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, healthStatus{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}, time.Now())
}

// HealthReady handles GET /api/v1/health/ready. Ready means the durable
// store answers a ping.
func (h *Handler) HealthReady(w http.ResponseWriter, r *http.Request) {
	status := healthStatus{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(h.startTime).Seconds()),
	}
	if h.db != nil {
		if err := h.db.Ping(r.Context()); err != nil {
			status.Status = "degraded"
			respondJSON(w, http.StatusServiceUnavailable, &models.APIResponse{
				Status:   "error",
				Data:     status,
				Metadata: models.Metadata{Timestamp: time.Now()},
				Error:    &models.APIError{Code: "DATABASE_UNAVAILABLE", Message: "durable store is not reachable"},
			})
			return
		}
	}
	respondData(w, http.StatusOK, status, time.Now())
}
