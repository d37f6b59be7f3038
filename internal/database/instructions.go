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

	"github.com/google/uuid"

	"github.com/dairystack/milkcheck/internal/models"
)

// LatestInstructions returns the most recent AI instruction record.
// Returns ErrNotFound when no instructions have ever been stored; the
// caller falls back to the built-in defaults.
func (db *DB) LatestInstructions(ctx context.Context) (*models.AIInstructions, error) {
	row := db.conn.QueryRowContext(ctx, `
		SELECT instructions, model_name, confidence_threshold
		FROM ai_instructions
		ORDER BY created_at DESC
		LIMIT 1`)

	var instr models.AIInstructions
	err := row.Scan(&instr.Instructions, &instr.ModelName, &instr.ConfidenceThreshold)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query instructions: %w", err)
	}
	return &instr, nil
}

// UpdateInstructions replaces the current instruction set. The latest
// existing record is updated in place; with no prior record a new one is
// inserted.
func (db *DB) UpdateInstructions(ctx context.Context, instr *models.AIInstructions) error {
	var existingID string
	err := db.conn.QueryRowContext(ctx, `
		SELECT id FROM ai_instructions ORDER BY created_at DESC LIMIT 1`).Scan(&existingID)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		_, err = db.conn.ExecContext(ctx, `
			INSERT INTO ai_instructions (id, instructions, model_name, confidence_threshold)
			VALUES (?, ?, ?, ?)`,
			uuid.New().String(), instr.Instructions, instr.ModelName, instr.ConfidenceThreshold)
		if err != nil {
			return fmt.Errorf("insert instructions: %w", err)
		}
	case err != nil:
		return fmt.Errorf("query existing instructions: %w", err)
	default:
		_, err = db.conn.ExecContext(ctx, `
			UPDATE ai_instructions
			SET instructions = ?, model_name = ?, confidence_threshold = ?, updated_at = CURRENT_TIMESTAMP
			WHERE id = ?`,
			instr.Instructions, instr.ModelName, instr.ConfidenceThreshold, existingID)
		if err != nil {
			return fmt.Errorf("update instructions: %w", err)
		}
	}
	return nil
}
