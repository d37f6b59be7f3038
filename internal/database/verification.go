// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/dairystack/milkcheck/internal/models"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("database: not found")

// InsertVerification stores a verification outcome and returns the row
// with its generated ID. Status is derived from the pass/fail outcome.
func (db *DB) InsertVerification(ctx context.Context, collectionID string, recordedLiters float64, analysis *models.VerificationAnalysis) (*models.VerificationRecord, error) {
	record := &models.VerificationRecord{
		ID:                 uuid.New(),
		CollectionID:       collectionID,
		EstimatedLiters:    analysis.EstimatedLiters,
		RecordedLiters:     recordedLiters,
		MatchesRecorded:    analysis.MatchesRecorded,
		ConfidenceScore:    analysis.Confidence,
		Explanation:        analysis.Explanation,
		VerificationPassed: analysis.VerificationPassed,
		Status:             models.StatusFlagged,
		CreatedAt:          time.Now().UTC(),
	}
	if analysis.VerificationPassed {
		record.Status = models.StatusVerified
	}

	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO ai_verification_results
			(id, collection_id, estimated_liters, recorded_liters, matches_recorded,
			 confidence_score, explanation, verification_passed, status, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		record.ID.String(), record.CollectionID, record.EstimatedLiters, record.RecordedLiters,
		record.MatchesRecorded, record.ConfidenceScore, record.Explanation,
		record.VerificationPassed, record.Status, record.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert verification: %w", err)
	}
	return record, nil
}

// LinkVerification points a collection row at its verification record.
// Returns ErrNotFound when the collection does not exist; the
// verification row itself is kept either way.
func (db *DB) LinkVerification(ctx context.Context, collectionID string, verificationID uuid.UUID) error {
	res, err := db.conn.ExecContext(ctx, `
		UPDATE collections
		SET ai_verification_id = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`,
		verificationID.String(), collectionID)
	if err != nil {
		return fmt.Errorf("link verification: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("link verification rows: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetVerification loads one verification record by ID.
func (db *DB) GetVerification(ctx context.Context, id uuid.UUID) (*models.VerificationRecord, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT id, collection_id, estimated_liters, recorded_liters, matches_recorded,
		       confidence_score, explanation, verification_passed, status, created_at
		FROM ai_verification_results WHERE id = ?`, id.String())
	return scanVerification(row)
}

// VerificationsForCollection lists verification records for a collection,
// newest first.
func (db *DB) VerificationsForCollection(ctx context.Context, collectionID string) ([]*models.VerificationRecord, error) {
	rows, err := db.conn.QueryContext(ctx, `
		SELECT id, collection_id, estimated_liters, recorded_liters, matches_recorded,
		       confidence_score, explanation, verification_passed, status, created_at
		FROM ai_verification_results
		WHERE collection_id = ? ORDER BY created_at DESC`, collectionID)
	if err != nil {
		return nil, fmt.Errorf("query verifications: %w", err)
	}
	defer rows.Close()

	var records []*models.VerificationRecord
	for rows.Next() {
		record, err := scanVerification(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, record)
	}
	return records, rows.Err()
}

// UpsertCollection creates or updates a collection row. The orchestrator
// writes the photo URL and storage path here after a successful upload.
func (db *DB) UpsertCollection(ctx context.Context, id, farmerID, collectorID string, liters float64, photoURL, storagePath string) error {
	_, err := db.conn.ExecContext(ctx, `
		INSERT INTO collections (id, farmer_id, collector_id, liters, photo_url, storage_path)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id) DO UPDATE SET
			photo_url = excluded.photo_url,
			storage_path = excluded.storage_path,
			liters = excluded.liters,
			updated_at = CURRENT_TIMESTAMP`,
		id, farmerID, collectorID, liters, photoURL, storagePath)
	if err != nil {
		return fmt.Errorf("upsert collection: %w", err)
	}
	return nil
}

// scanner covers both sql.Row and sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanVerification(s scanner) (*models.VerificationRecord, error) {
	var record models.VerificationRecord
	var id string
	var explanation sql.NullString
	err := s.Scan(&id, &record.CollectionID, &record.EstimatedLiters, &record.RecordedLiters,
		&record.MatchesRecorded, &record.ConfidenceScore, &explanation,
		&record.VerificationPassed, &record.Status, &record.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan verification: %w", err)
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("parse verification id: %w", err)
	}
	record.ID = parsed
	record.Explanation = explanation.String
	return &record, nil
}
