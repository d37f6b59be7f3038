// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/dairystack/milkcheck/internal/config"
	"github.com/dairystack/milkcheck/internal/models"
)

// testDB opens an in-memory DuckDB with the schema applied
func testDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(config.DatabaseConfig{Path: "", MaxMemory: "256MB"})
	if err != nil {
		t.Fatalf("open in-memory database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func sampleAnalysis() *models.VerificationAnalysis {
	return &models.VerificationAnalysis{
		EstimatedLiters:    10.2,
		MatchesRecorded:    true,
		Confidence:         0.9,
		Explanation:        "fill level matches reading",
		VerificationPassed: true,
	}
}

func TestInsertVerificationDerivesStatus(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	passed, err := db.InsertVerification(ctx, "col-1", 10.5, sampleAnalysis())
	if err != nil {
		t.Fatalf("InsertVerification failed: %v", err)
	}
	if passed.Status != models.StatusVerified {
		t.Errorf("Status = %q, want verified", passed.Status)
	}

	failing := sampleAnalysis()
	failing.VerificationPassed = false
	flagged, err := db.InsertVerification(ctx, "col-2", 10.5, failing)
	if err != nil {
		t.Fatalf("InsertVerification failed: %v", err)
	}
	if flagged.Status != models.StatusFlagged {
		t.Errorf("Status = %q, want flagged", flagged.Status)
	}

	got, err := db.GetVerification(ctx, passed.ID)
	if err != nil {
		t.Fatalf("GetVerification failed: %v", err)
	}
	if got.EstimatedLiters != 10.2 || got.RecordedLiters != 10.5 {
		t.Errorf("round trip liters = %v/%v, want 10.2/10.5", got.EstimatedLiters, got.RecordedLiters)
	}
	if got.CollectionID != "col-1" {
		t.Errorf("CollectionID = %q, want col-1", got.CollectionID)
	}
}

func TestLinkVerification(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if err := db.UpsertCollection(ctx, "col-1", "farmer-1", "collector-1", 10.5, "http://x/p.jpg", "milk-collections/farmer-1/p.jpg"); err != nil {
		t.Fatalf("UpsertCollection failed: %v", err)
	}
	record, err := db.InsertVerification(ctx, "col-1", 10.5, sampleAnalysis())
	if err != nil {
		t.Fatalf("InsertVerification failed: %v", err)
	}

	if err := db.LinkVerification(ctx, "col-1", record.ID); err != nil {
		t.Fatalf("LinkVerification failed: %v", err)
	}

	// Linking to a collection that was never created
	if err := db.LinkVerification(ctx, "ghost", record.ID); !errors.Is(err, ErrNotFound) {
		t.Errorf("LinkVerification(ghost) = %v, want ErrNotFound", err)
	}
}

func TestVerificationsForCollection(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		if _, err := db.InsertVerification(ctx, "col-1", float64(10+i), sampleAnalysis()); err != nil {
			t.Fatalf("InsertVerification failed: %v", err)
		}
	}
	if _, err := db.InsertVerification(ctx, "col-other", 5, sampleAnalysis()); err != nil {
		t.Fatalf("InsertVerification failed: %v", err)
	}

	records, err := db.VerificationsForCollection(ctx, "col-1")
	if err != nil {
		t.Fatalf("VerificationsForCollection failed: %v", err)
	}
	if len(records) != 3 {
		t.Errorf("records = %d, want 3", len(records))
	}
}

func TestGetVerificationNotFound(t *testing.T) {
	db := testDB(t)
	if _, err := db.GetVerification(context.Background(), uuid.New()); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetVerification(random) = %v, want ErrNotFound", err)
	}
}

func TestInsertAnalyticsBatchAndDashboard(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	now := time.Now().UTC()
	batch := make([]models.PerformanceMetric, 0, 10)
	for i := 0; i < 10; i++ {
		m := models.PerformanceMetric{
			Timestamp:           now.Add(-time.Duration(i) * time.Hour),
			CompressionTime:     50,
			UploadDuration:      400,
			VerificationLatency: 900,
			TotalTime:           1500,
			CacheHit:            i%2 == 0,
			ImageSize:           2_000_000,
			OptimizedSize:       400_000,
			CompressionRatio:    80,
			CollectionID:        "col-1",
			FarmerID:            "farmer-1",
			Success:             i != 9,
		}
		if i == 9 {
			m.Error = "verification timed out"
		}
		batch = append(batch, m)
	}

	if err := db.InsertAnalyticsBatch(ctx, batch); err != nil {
		t.Fatalf("InsertAnalyticsBatch failed: %v", err)
	}
	count, err := db.AnalyticsCount(ctx)
	if err != nil {
		t.Fatalf("AnalyticsCount failed: %v", err)
	}
	if count != 10 {
		t.Errorf("count = %d, want 10", count)
	}

	stats, err := db.DashboardStats(ctx, 7)
	if err != nil {
		t.Fatalf("DashboardStats failed: %v", err)
	}
	if stats.TotalVerifications != 10 {
		t.Errorf("TotalVerifications = %d, want 10", stats.TotalVerifications)
	}
	if stats.AvgResponseTime != 1500 {
		t.Errorf("AvgResponseTime = %d, want 1500", stats.AvgResponseTime)
	}
	if stats.CacheHitRate != 50 {
		t.Errorf("CacheHitRate = %v, want 50", stats.CacheHitRate)
	}
	if stats.SuccessRate != 90 {
		t.Errorf("SuccessRate = %v, want 90", stats.SuccessRate)
	}
	if len(stats.DailyStats) == 0 {
		t.Error("DailyStats empty, want at least one day bucket")
	}
	var total int
	for _, day := range stats.DailyStats {
		total += day.Count
	}
	if total != 10 {
		t.Errorf("daily counts sum = %d, want 10", total)
	}
}

func TestInsertAnalyticsEmptyBatch(t *testing.T) {
	db := testDB(t)
	if err := db.InsertAnalyticsBatch(context.Background(), nil); err != nil {
		t.Errorf("empty batch insert = %v, want nil", err)
	}
}

func TestDashboardStatsEmpty(t *testing.T) {
	db := testDB(t)
	stats, err := db.DashboardStats(context.Background(), 7)
	if err != nil {
		t.Fatalf("DashboardStats failed: %v", err)
	}
	if stats.TotalVerifications != 0 || stats.CacheHitRate != 0 || stats.SuccessRate != 0 {
		t.Errorf("empty stats = %+v, want zeros", stats)
	}
	if len(stats.DailyStats) != 0 {
		t.Errorf("DailyStats = %v, want empty", stats.DailyStats)
	}
}

func TestInstructionsLifecycle(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()

	if _, err := db.LatestInstructions(ctx); !errors.Is(err, ErrNotFound) {
		t.Errorf("LatestInstructions on empty table = %v, want ErrNotFound", err)
	}

	first := &models.AIInstructions{
		Instructions:        "Count churns.",
		ModelName:           "gemini-2.5-flash",
		ConfidenceThreshold: 0.8,
	}
	if err := db.UpdateInstructions(ctx, first); err != nil {
		t.Fatalf("UpdateInstructions insert failed: %v", err)
	}

	got, err := db.LatestInstructions(ctx)
	if err != nil {
		t.Fatalf("LatestInstructions failed: %v", err)
	}
	if got.Instructions != "Count churns." {
		t.Errorf("Instructions = %q, want Count churns.", got.Instructions)
	}

	// Second update replaces in place rather than stacking records
	second := &models.AIInstructions{
		Instructions:        "Count churns and check lids.",
		ModelName:           "gemini-2.5-flash",
		ConfidenceThreshold: 0.85,
	}
	if err := db.UpdateInstructions(ctx, second); err != nil {
		t.Fatalf("UpdateInstructions update failed: %v", err)
	}
	got, err = db.LatestInstructions(ctx)
	if err != nil {
		t.Fatalf("LatestInstructions failed: %v", err)
	}
	if got.ConfidenceThreshold != 0.85 {
		t.Errorf("ConfidenceThreshold = %v, want 0.85", got.ConfidenceThreshold)
	}

	var count int
	if err := db.conn.QueryRow(`SELECT COUNT(*) FROM ai_instructions`).Scan(&count); err != nil {
		t.Fatalf("count instructions: %v", err)
	}
	if count != 1 {
		t.Errorf("instruction rows = %d, want 1", count)
	}
}

func TestPingAndCheckpoint(t *testing.T) {
	db := testDB(t)
	ctx := context.Background()
	if err := db.Ping(ctx); err != nil {
		t.Errorf("Ping failed: %v", err)
	}
	if err := db.Checkpoint(ctx); err != nil {
		t.Errorf("Checkpoint failed: %v", err)
	}
}
