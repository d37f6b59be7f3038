// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

// Package models defines the shared data types of the verification pipeline.
package models

import (
	"time"

	"github.com/google/uuid"
)

// VerificationAnalysis is the structured outcome of an AI photo analysis.
// It mirrors the JSON object the model is instructed to return.
type VerificationAnalysis struct {
	EstimatedLiters    float64 `json:"estimatedLiters"`
	MatchesRecorded    bool    `json:"matchesRecorded"`
	Confidence         float64 `json:"confidence"`
	Explanation        string  `json:"explanation"`
	VerificationPassed bool    `json:"verificationPassed"`
}

// ConfidenceInRange reports whether the confidence score is in [0, 1].
// The model is instructed to stay in range but is not trusted to; callers
// may flag out-of-range values as a data-quality signal.
func (a *VerificationAnalysis) ConfidenceInRange() bool {
	return a.Confidence >= 0 && a.Confidence <= 1
}

// CachedVerification is a verification result held in the cache, keyed by
// the compressed image's content hash and the recorded volume.
type CachedVerification struct {
	CacheKey       string               `json:"cacheKey"`
	RecordedLiters float64              `json:"recordedLiters"`
	Result         VerificationAnalysis `json:"result"`
	CreatedAt      time.Time            `json:"createdAt"`
	ExpiresAt      time.Time            `json:"expiresAt"`
}

// Expired reports whether the entry is past its TTL at the given instant.
// An expired entry is logically absent even if still physically stored.
func (c *CachedVerification) Expired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// VerificationRecord is the durable row written for every successful
// verification, linked back to the originating collection.
type VerificationRecord struct {
	ID                 uuid.UUID `json:"id"`
	CollectionID       string    `json:"collection_id"`
	EstimatedLiters    float64   `json:"estimated_liters"`
	RecordedLiters     float64   `json:"recorded_liters"`
	MatchesRecorded    bool      `json:"matches_recorded"`
	ConfidenceScore    float64   `json:"confidence_score"`
	Explanation        string    `json:"explanation"`
	VerificationPassed bool      `json:"verification_passed"`
	Status             string    `json:"status"`
	CreatedAt          time.Time `json:"created_at"`
}

// Verification record status values.
const (
	StatusVerified = "verified"
	StatusFlagged  = "flagged"
)

// PerformanceMetric captures the per-stage timings and outcome of one
// upload-and-verify attempt. Appended to the analytics ring buffer on
// every attempt, success or failure.
type PerformanceMetric struct {
	Timestamp           time.Time `json:"timestamp"`
	CompressionTime     int64     `json:"compressionTime"`     // milliseconds
	UploadDuration      int64     `json:"uploadDuration"`      // milliseconds
	VerificationLatency int64     `json:"verificationLatency"` // milliseconds
	TotalTime           int64     `json:"totalTime"`           // milliseconds
	CacheHit            bool      `json:"cacheHit"`
	ImageSize           int64     `json:"imageSize"`
	OptimizedSize       int64     `json:"optimizedSize"`
	CompressionRatio    float64   `json:"compressionRatio"`
	CollectionID        string    `json:"collectionId"`
	FarmerID            string    `json:"farmerId"`
	Success             bool      `json:"success"`
	Error               string    `json:"error,omitempty"`
}

// AverageMetrics are arithmetic means over the most recent tracked attempts.
type AverageMetrics struct {
	AvgCompressionTime     int64   `json:"avgCompressionTime"`
	AvgUploadDuration      int64   `json:"avgUploadDuration"`
	AvgVerificationLatency int64   `json:"avgVerificationLatency"`
	AvgTotalTime           int64   `json:"avgTotalTime"`
	CacheHitRate           float64 `json:"cacheHitRate"`
	AvgCompressionRatio    float64 `json:"avgCompressionRatio"`
	SuccessRate            float64 `json:"successRate"`
}

// Percentiles are nearest-rank percentiles over buffered total times.
type Percentiles struct {
	P50 int64 `json:"p50"`
	P90 int64 `json:"p90"`
	P95 int64 `json:"p95"`
	P99 int64 `json:"p99"`
}

// DailyStat is one calendar-day bucket of durable analytics.
type DailyStat struct {
	Date     string `json:"date"` // YYYY-MM-DD
	Count    int    `json:"count"`
	AvgTime  int64  `json:"avgTime"`
}

// DashboardStats are aggregates computed from the durable store, not the
// in-memory ring buffer.
type DashboardStats struct {
	TotalVerifications int         `json:"totalVerifications"`
	AvgResponseTime    int64       `json:"avgResponseTime"`
	CacheHitRate       float64     `json:"cacheHitRate"`
	SuccessRate        float64     `json:"successRate"`
	DailyStats         []DailyStat `json:"dailyStats"`
}

// UploadStage identifies where an upload attempt currently is.
type UploadStage string

// Upload attempt stages, in order of progression.
const (
	StageCompressing UploadStage = "compressing"
	StageUploading   UploadStage = "uploading"
	StageVerifying   UploadStage = "verifying"
	StageSaving      UploadStage = "saving"
	StageComplete    UploadStage = "complete"
	StageError       UploadStage = "error"
)

// UploadProgress is a progress report emitted during an upload attempt.
// Progress is monotonic in [0, 100] across the stage sub-ranges.
type UploadProgress struct {
	Stage    UploadStage `json:"stage"`
	Progress float64     `json:"progress"`
	Message  string      `json:"message"`
}

// Timings are per-stage wall-clock durations in milliseconds.
type Timings struct {
	Compression  int64 `json:"compression"`
	Upload       int64 `json:"upload"`
	Verification int64 `json:"verification"`
	Total        int64 `json:"total"`
}

// FastUploadResult is the discriminated outcome of one upload attempt:
// Success=true with URL, path, and (when the AI step completed)
// Verification populated, or Success=false with Error populated.
type FastUploadResult struct {
	Success      bool                  `json:"success"`
	UploadURL    string                `json:"uploadUrl,omitempty"`
	StoragePath  string                `json:"storagePath,omitempty"`
	Verification *VerificationAnalysis `json:"verification,omitempty"`
	Error        string                `json:"error,omitempty"`
	Timings      Timings               `json:"timings"`
}

// AIInstructions is the remotely configurable instruction block for the
// verification model, with a confidence threshold used by review flows.
type AIInstructions struct {
	Instructions        string  `json:"instructions"`
	ModelName           string  `json:"model_name"`
	ConfidenceThreshold float64 `json:"confidence_threshold"`
}
