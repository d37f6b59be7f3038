// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package database

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/dairystack/milkcheck/internal/models"
)

// InsertAnalyticsBatch appends one flush batch to verification_analytics
// as a single multi-row insert. An empty batch is a no-op.
func (db *DB) InsertAnalyticsBatch(ctx context.Context, batch []models.PerformanceMetric) error {
	if len(batch) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO verification_analytics
		(collection_id, farmer_id, compression_time, upload_duration, verification_latency,
		 total_time, cache_hit, original_size, optimized_size, compression_ratio,
		 success, error_message, created_at)
	VALUES `)

	args := make([]any, 0, len(batch)*13)
	for i, m := range batch {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)")
		errMsg := sql.NullString{String: m.Error, Valid: m.Error != ""}
		args = append(args,
			m.CollectionID, m.FarmerID, m.CompressionTime, m.UploadDuration,
			m.VerificationLatency, m.TotalTime, m.CacheHit, m.ImageSize,
			m.OptimizedSize, m.CompressionRatio, m.Success, errMsg,
			m.Timestamp.UTC())
	}

	if _, err := db.conn.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("insert analytics batch: %w", err)
	}
	return nil
}

// DashboardStats aggregates verification_analytics over the last days
// calendar days: totals, rates, and per-day buckets ordered by date.
func (db *DB) DashboardStats(ctx context.Context, days int) (*models.DashboardStats, error) {
	if days <= 0 {
		days = 7
	}
	since := time.Now().UTC().AddDate(0, 0, -days)

	stats := &models.DashboardStats{DailyStats: []models.DailyStat{}}

	row := db.conn.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(AVG(total_time), 0),
		       COALESCE(AVG(CASE WHEN cache_hit THEN 1.0 ELSE 0.0 END) * 100, 0),
		       COALESCE(AVG(CASE WHEN success THEN 1.0 ELSE 0.0 END) * 100, 0)
		FROM verification_analytics
		WHERE created_at >= ?`, since)

	var avgTime float64
	if err := row.Scan(&stats.TotalVerifications, &avgTime, &stats.CacheHitRate, &stats.SuccessRate); err != nil {
		return nil, fmt.Errorf("aggregate analytics: %w", err)
	}
	stats.AvgResponseTime = int64(math.Round(avgTime))

	if stats.TotalVerifications == 0 {
		// Rates are meaningless with no data; keep them at zero
		stats.CacheHitRate = 0
		stats.SuccessRate = 0
		return stats, nil
	}

	rows, err := db.conn.QueryContext(ctx, `
		SELECT strftime(created_at, '%Y-%m-%d') AS day,
		       COUNT(*),
		       ROUND(AVG(total_time))
		FROM verification_analytics
		WHERE created_at >= ?
		GROUP BY day
		ORDER BY day`, since)
	if err != nil {
		return nil, fmt.Errorf("query daily stats: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var day models.DailyStat
		var avg float64
		if err := rows.Scan(&day.Date, &day.Count, &avg); err != nil {
			return nil, fmt.Errorf("scan daily stat: %w", err)
		}
		day.AvgTime = int64(avg)
		stats.DailyStats = append(stats.DailyStats, day)
	}
	return stats, rows.Err()
}

// AnalyticsCount returns the number of durable analytics rows.
func (db *DB) AnalyticsCount(ctx context.Context) (int, error) {
	var count int
	err := db.conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM verification_analytics`).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count analytics: %w", err)
	}
	return count, nil
}
