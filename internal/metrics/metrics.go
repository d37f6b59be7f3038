// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

// Package metrics exposes Prometheus metrics for the verification
// pipeline: attempt outcomes, per-stage latencies, cache effectiveness,
// and AI call results.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// UploadAttemptsTotal counts upload-and-verify attempts by outcome
	// and cache result.
	UploadAttemptsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milkcheck_upload_attempts_total",
			Help: "Total number of upload-and-verify attempts",
		},
		[]string{"outcome", "cache"},
	)

	// StageDuration tracks per-stage latency of upload attempts.
	StageDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "milkcheck_stage_duration_seconds",
			Help:    "Duration of upload pipeline stages in seconds",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"stage"},
	)

	// CacheRequestsTotal counts verification cache lookups by result.
	CacheRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milkcheck_cache_requests_total",
			Help: "Total number of verification cache lookups",
		},
		[]string{"result"},
	)

	// VerificationResultsTotal counts AI verification outcomes.
	VerificationResultsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milkcheck_verification_results_total",
			Help: "Total number of AI verification results by status",
		},
		[]string{"status"},
	)

	// VerificationErrorsTotal counts AI verification failures by kind.
	VerificationErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milkcheck_verification_errors_total",
			Help: "Total number of AI verification failures by error kind",
		},
		[]string{"kind"},
	)

	// AnalyticsFlushTotal counts analytics flush attempts by outcome.
	AnalyticsFlushTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "milkcheck_analytics_flush_total",
			Help: "Total number of analytics flush attempts",
		},
		[]string{"outcome"},
	)
)

// ObserveStage records one stage duration.
func ObserveStage(stage string, d time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

// RecordAttempt records one upload attempt outcome.
func RecordAttempt(success, cacheHit bool) {
	outcome := "failure"
	if success {
		outcome = "success"
	}
	cache := "miss"
	if cacheHit {
		cache = "hit"
	}
	UploadAttemptsTotal.WithLabelValues(outcome, cache).Inc()
}

// RecordCacheLookup records one cache lookup result.
func RecordCacheLookup(hit bool) {
	result := "miss"
	if hit {
		result = "hit"
	}
	CacheRequestsTotal.WithLabelValues(result).Inc()
}
