// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

// Package analytics tracks per-attempt performance of the upload and
// verification pipeline. Metrics land in a bounded in-memory buffer and
// are periodically flushed to DuckDB in batches; rolling averages and
// percentiles are computed from the buffer without touching the store.
package analytics

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/rs/zerolog"

	"github.com/dairystack/milkcheck/internal/config"
	"github.com/dairystack/milkcheck/internal/logging"
	"github.com/dairystack/milkcheck/internal/models"
)

// DefaultRecentWindow is how many recent attempts feed the rolling
// averages when the caller does not say.
const DefaultRecentWindow = 10

// Store is the durable sink for flushed metrics. The database package
// implements this over the verification_analytics table.
type Store interface {
	InsertAnalyticsBatch(ctx context.Context, batch []models.PerformanceMetric) error
	DashboardStats(ctx context.Context, days int) (*models.DashboardStats, error)
}

// Tracker is the in-memory metrics buffer. Safe for concurrent use.
type Tracker struct {
	mu       sync.Mutex
	buffer   []models.PerformanceMetric
	capacity int
	batch    int
	store    Store
	logger   zerolog.Logger
}

// NewTracker creates a Tracker from configuration. store may be nil, in
// which case Flush is a no-op and metrics only live in the buffer.
func NewTracker(cfg config.AnalyticsConfig, store Store) *Tracker {
	capacity := cfg.BufferCapacity
	if capacity < 1 {
		capacity = 1000
	}
	batch := cfg.BatchSize
	if batch < 1 {
		batch = 100
	}
	return &Tracker{
		buffer:   make([]models.PerformanceMetric, 0, capacity),
		capacity: capacity,
		batch:    batch,
		store:    store,
		logger:   logging.With().Str("component", "analytics").Logger(),
	}
}

// Track appends one attempt's metrics. When the buffer is at capacity
// the oldest entries are dropped to make room.
func (t *Tracker) Track(metric models.PerformanceMetric) {
	t.mu.Lock()
	t.buffer = append(t.buffer, metric)
	if len(t.buffer) > t.capacity {
		t.buffer = t.buffer[len(t.buffer)-t.capacity:]
	}
	t.mu.Unlock()

	t.logger.Debug().
		Int64("total_ms", metric.TotalTime).
		Int64("compression_ms", metric.CompressionTime).
		Int64("upload_ms", metric.UploadDuration).
		Int64("verification_ms", metric.VerificationLatency).
		Bool("cache_hit", metric.CacheHit).
		Bool("success", metric.Success).
		Str("collection_id", metric.CollectionID).
		Msg("attempt tracked")
}

// AverageMetrics returns arithmetic means over the most recent count
// attempts. count <= 0 uses DefaultRecentWindow. An empty buffer yields
// all zeros.
func (t *Tracker) AverageMetrics(count int) models.AverageMetrics {
	if count <= 0 {
		count = DefaultRecentWindow
	}

	t.mu.Lock()
	recent := t.buffer
	if len(recent) > count {
		recent = recent[len(recent)-count:]
	}
	snapshot := make([]models.PerformanceMetric, len(recent))
	copy(snapshot, recent)
	t.mu.Unlock()

	if len(snapshot) == 0 {
		return models.AverageMetrics{}
	}

	var (
		compression, upload, verification, total int64
		ratio                                    float64
		cacheHits, successes                     int
	)
	for _, m := range snapshot {
		compression += m.CompressionTime
		upload += m.UploadDuration
		verification += m.VerificationLatency
		total += m.TotalTime
		ratio += m.CompressionRatio
		if m.CacheHit {
			cacheHits++
		}
		if m.Success {
			successes++
		}
	}
	n := int64(len(snapshot))
	return models.AverageMetrics{
		AvgCompressionTime:     int64(math.Round(float64(compression) / float64(n))),
		AvgUploadDuration:      int64(math.Round(float64(upload) / float64(n))),
		AvgVerificationLatency: int64(math.Round(float64(verification) / float64(n))),
		AvgTotalTime:           int64(math.Round(float64(total) / float64(n))),
		CacheHitRate:           float64(cacheHits) / float64(n) * 100,
		AvgCompressionRatio:    ratio / float64(n),
		SuccessRate:            float64(successes) / float64(n) * 100,
	}
}

// Percentiles returns nearest-rank percentiles of total attempt time over
// the whole buffer. An empty buffer yields all zeros.
func (t *Tracker) Percentiles() models.Percentiles {
	t.mu.Lock()
	times := make([]int64, len(t.buffer))
	for i, m := range t.buffer {
		times[i] = m.TotalTime
	}
	t.mu.Unlock()

	if len(times) == 0 {
		return models.Percentiles{}
	}
	sort.Slice(times, func(i, j int) bool { return times[i] < times[j] })

	return models.Percentiles{
		P50: nearestRank(times, 50),
		P90: nearestRank(times, 90),
		P95: nearestRank(times, 95),
		P99: nearestRank(times, 99),
	}
}

// nearestRank picks the p-th percentile from sorted values:
// index = ceil(p/100 * n) - 1, clamped to 0.
func nearestRank(sorted []int64, p int) int64 {
	index := int(math.Ceil(float64(p)/100*float64(len(sorted)))) - 1
	if index < 0 {
		index = 0
	}
	return sorted[index]
}

// Len returns the number of buffered metrics.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buffer)
}

// Clear drops all buffered metrics without flushing.
func (t *Tracker) Clear() {
	t.mu.Lock()
	t.buffer = t.buffer[:0]
	t.mu.Unlock()
}

// Flush drains the buffer into the store in batches. Batches that insert
// successfully are gone for good; on a batch failure the unflushed
// remainder is put back at the front of the buffer and the error is
// returned, so the next flush retries it.
func (t *Tracker) Flush(ctx context.Context) error {
	if t.store == nil {
		return nil
	}

	t.mu.Lock()
	pending := t.buffer
	t.buffer = make([]models.PerformanceMetric, 0, t.capacity)
	t.mu.Unlock()

	if len(pending) == 0 {
		return nil
	}

	flushed := 0
	for flushed < len(pending) {
		end := flushed + t.batch
		if end > len(pending) {
			end = len(pending)
		}
		if err := t.store.InsertAnalyticsBatch(ctx, pending[flushed:end]); err != nil {
			t.requeue(pending[flushed:])
			t.logger.Warn().Err(err).
				Int("flushed", flushed).
				Int("requeued", len(pending)-flushed).
				Msg("analytics flush failed mid-batch")
			return err
		}
		flushed = end
	}

	t.logger.Debug().Int("count", flushed).Msg("analytics flushed")
	return nil
}

// DashboardStats returns durable aggregates for the last days calendar
// days, computed by the store rather than the buffer.
func (t *Tracker) DashboardStats(ctx context.Context, days int) (*models.DashboardStats, error) {
	if t.store == nil {
		return &models.DashboardStats{DailyStats: []models.DailyStat{}}, nil
	}
	if days <= 0 {
		days = 7
	}
	return t.store.DashboardStats(ctx, days)
}

// requeue puts unflushed metrics back at the front of the buffer,
// trimming oldest-first if new arrivals already refilled it.
func (t *Tracker) requeue(unflushed []models.PerformanceMetric) {
	t.mu.Lock()
	defer t.mu.Unlock()
	combined := make([]models.PerformanceMetric, 0, len(unflushed)+len(t.buffer))
	combined = append(combined, unflushed...)
	combined = append(combined, t.buffer...)
	if len(combined) > t.capacity {
		combined = combined[len(combined)-t.capacity:]
	}
	t.buffer = combined
}
