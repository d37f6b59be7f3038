// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package api

import (
	"net/http"
	"time"

	"github.com/dairystack/milkcheck/internal/analytics"
)

// maxDashboardDays caps the daily-stat window a client can request.
const maxDashboardDays = 365

// AnalyticsDashboard handles GET /api/v1/analytics/dashboard?days=7.
// Aggregates come from the durable store, not the in-memory buffer.
func (h *Handler) AnalyticsDashboard(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	days := getIntParam(r, "days", 7)
	if days < 1 || days > maxDashboardDays {
		respondError(w, http.StatusBadRequest, "INVALID_DAYS", "days must be between 1 and 365", nil)
		return
	}

	stats, err := h.tracker.DashboardStats(r.Context(), days)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "DASHBOARD_FAILED", "failed to compute dashboard stats", err)
		return
	}
	respondData(w, http.StatusOK, stats, start)
}

// AnalyticsAverages handles GET /api/v1/analytics/averages?count=10.
// Averages are computed over the most recent buffered attempts.
func (h *Handler) AnalyticsAverages(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	count := getIntParam(r, "count", analytics.DefaultRecentWindow)
	if count < 1 {
		respondError(w, http.StatusBadRequest, "INVALID_COUNT", "count must be at least 1", nil)
		return
	}
	respondData(w, http.StatusOK, h.tracker.AverageMetrics(count), start)
}

// AnalyticsPercentiles handles GET /api/v1/analytics/percentiles.
func (h *Handler) AnalyticsPercentiles(w http.ResponseWriter, r *http.Request) {
	respondData(w, http.StatusOK, h.tracker.Percentiles(), time.Now())
}
