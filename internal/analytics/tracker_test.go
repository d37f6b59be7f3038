// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package analytics

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dairystack/milkcheck/internal/config"
	"github.com/dairystack/milkcheck/internal/models"
)

func testAnalyticsConfig() config.AnalyticsConfig {
	return config.AnalyticsConfig{
		BufferCapacity: 1000,
		BatchSize:      100,
		FlushInterval:  5 * time.Minute,
		RecentWindow:   10,
	}
}

func metric(totalMS int64, cacheHit, success bool) models.PerformanceMetric {
	return models.PerformanceMetric{
		Timestamp:           time.Now(),
		CompressionTime:     totalMS / 10,
		UploadDuration:      totalMS / 2,
		VerificationLatency: totalMS / 4,
		TotalTime:           totalMS,
		CacheHit:            cacheHit,
		CompressionRatio:    60,
		CollectionID:        "col-1",
		FarmerID:            "farmer-1",
		Success:             success,
	}
}

// recordingStore captures flushed batches and can fail on demand
type recordingStore struct {
	batches   [][]models.PerformanceMetric
	failAfter int // fail on batch number failAfter (1-based), 0 = never
	calls     int
}

func (s *recordingStore) InsertAnalyticsBatch(_ context.Context, batch []models.PerformanceMetric) error {
	s.calls++
	if s.failAfter > 0 && s.calls >= s.failAfter {
		return errors.New("duckdb unavailable")
	}
	copied := make([]models.PerformanceMetric, len(batch))
	copy(copied, batch)
	s.batches = append(s.batches, copied)
	return nil
}

func (s *recordingStore) DashboardStats(context.Context, int) (*models.DashboardStats, error) {
	return &models.DashboardStats{}, nil
}

func TestBufferCapacityDropsOldest(t *testing.T) {
	cfg := testAnalyticsConfig()
	cfg.BufferCapacity = 5
	tr := NewTracker(cfg, nil)

	for i := 1; i <= 8; i++ {
		tr.Track(metric(int64(i*100), false, true))
	}
	if tr.Len() != 5 {
		t.Fatalf("Len = %d, want 5", tr.Len())
	}
	// Oldest three (100..300) gone; p50 of [400..800] is 600
	if p := tr.Percentiles(); p.P50 != 600 {
		t.Errorf("P50 = %d, want 600 after oldest dropped", p.P50)
	}
}

func TestAverageMetricsEmptyBuffer(t *testing.T) {
	tr := NewTracker(testAnalyticsConfig(), nil)
	avg := tr.AverageMetrics(0)
	if avg != (models.AverageMetrics{}) {
		t.Errorf("empty buffer averages = %+v, want zero value", avg)
	}
}

func TestAverageMetricsRecentWindow(t *testing.T) {
	tr := NewTracker(testAnalyticsConfig(), nil)

	// 5 old slow attempts, then 10 fast ones; default window sees only the fast
	for i := 0; i < 5; i++ {
		tr.Track(metric(10000, false, false))
	}
	for i := 0; i < 10; i++ {
		tr.Track(metric(1000, true, true))
	}

	avg := tr.AverageMetrics(0)
	if avg.AvgTotalTime != 1000 {
		t.Errorf("AvgTotalTime = %d, want 1000 (window excludes old)", avg.AvgTotalTime)
	}
	if avg.CacheHitRate != 100 {
		t.Errorf("CacheHitRate = %v, want 100", avg.CacheHitRate)
	}
	if avg.SuccessRate != 100 {
		t.Errorf("SuccessRate = %v, want 100", avg.SuccessRate)
	}

	// Wider window mixes them: (5*10000 + 10*1000) / 15 = 4000
	wide := tr.AverageMetrics(15)
	if wide.AvgTotalTime != 4000 {
		t.Errorf("AvgTotalTime over 15 = %d, want 4000", wide.AvgTotalTime)
	}
	if wide.SuccessRate < 66 || wide.SuccessRate > 67 {
		t.Errorf("SuccessRate over 15 = %v, want ~66.7", wide.SuccessRate)
	}
}

func TestPercentilesNearestRank(t *testing.T) {
	tr := NewTracker(testAnalyticsConfig(), nil)
	// 1..100ms, sorted positions are exact
	for i := 1; i <= 100; i++ {
		tr.Track(metric(int64(i), false, true))
	}

	p := tr.Percentiles()
	if p.P50 != 50 {
		t.Errorf("P50 = %d, want 50", p.P50)
	}
	if p.P90 != 90 {
		t.Errorf("P90 = %d, want 90", p.P90)
	}
	if p.P95 != 95 {
		t.Errorf("P95 = %d, want 95", p.P95)
	}
	if p.P99 != 99 {
		t.Errorf("P99 = %d, want 99", p.P99)
	}
}

func TestPercentilesSingleSample(t *testing.T) {
	tr := NewTracker(testAnalyticsConfig(), nil)
	tr.Track(metric(123, false, true))

	p := tr.Percentiles()
	if p.P50 != 123 || p.P99 != 123 {
		t.Errorf("percentiles = %+v, want all 123 for single sample", p)
	}
}

func TestPercentilesEmpty(t *testing.T) {
	tr := NewTracker(testAnalyticsConfig(), nil)
	if p := tr.Percentiles(); p != (models.Percentiles{}) {
		t.Errorf("empty percentiles = %+v, want zero value", p)
	}
}

func TestFlushBatches(t *testing.T) {
	cfg := testAnalyticsConfig()
	cfg.BatchSize = 100
	store := &recordingStore{}
	tr := NewTracker(cfg, store)

	for i := 0; i < 250; i++ {
		tr.Track(metric(100, false, true))
	}
	if err := tr.Flush(context.Background()); err != nil {
		t.Fatalf("Flush failed: %v", err)
	}

	if len(store.batches) != 3 {
		t.Fatalf("batches = %d, want 3 (100+100+50)", len(store.batches))
	}
	if len(store.batches[0]) != 100 || len(store.batches[1]) != 100 || len(store.batches[2]) != 50 {
		t.Errorf("batch sizes = %d/%d/%d, want 100/100/50",
			len(store.batches[0]), len(store.batches[1]), len(store.batches[2]))
	}
	if tr.Len() != 0 {
		t.Errorf("buffer length after flush = %d, want 0", tr.Len())
	}
}

func TestFlushEmptyIsNoop(t *testing.T) {
	store := &recordingStore{}
	tr := NewTracker(testAnalyticsConfig(), store)
	if err := tr.Flush(context.Background()); err != nil {
		t.Fatalf("Flush of empty buffer failed: %v", err)
	}
	if store.calls != 0 {
		t.Errorf("store called %d times for empty flush, want 0", store.calls)
	}
}

func TestFlushPartialFailureRequeues(t *testing.T) {
	cfg := testAnalyticsConfig()
	cfg.BatchSize = 100
	store := &recordingStore{failAfter: 2} // first batch lands, second fails
	tr := NewTracker(cfg, store)

	for i := 0; i < 250; i++ {
		tr.Track(metric(100, false, true))
	}
	if err := tr.Flush(context.Background()); err == nil {
		t.Fatal("expected flush error")
	}

	if len(store.batches) != 1 {
		t.Errorf("stored batches = %d, want 1", len(store.batches))
	}
	// 150 unflushed metrics back in the buffer for the next attempt
	if tr.Len() != 150 {
		t.Errorf("requeued = %d, want 150", tr.Len())
	}
}

func TestFlushWithoutStore(t *testing.T) {
	tr := NewTracker(testAnalyticsConfig(), nil)
	tr.Track(metric(100, false, true))
	if err := tr.Flush(context.Background()); err != nil {
		t.Errorf("Flush without store should be no-op, got %v", err)
	}
	if tr.Len() != 1 {
		t.Errorf("buffer drained without a store, Len = %d, want 1", tr.Len())
	}
}

func TestConcurrentTracking(t *testing.T) {
	tr := NewTracker(testAnalyticsConfig(), nil)

	done := make(chan struct{})
	for g := 0; g < 8; g++ {
		go func() {
			defer func() { done <- struct{}{} }()
			for i := 0; i < 500; i++ {
				tr.Track(metric(int64(i), i%2 == 0, true))
				tr.AverageMetrics(10)
			}
		}()
	}
	for g := 0; g < 8; g++ {
		<-done
	}

	if tr.Len() != 1000 {
		t.Errorf("Len = %d, want capacity 1000", tr.Len())
	}
}
