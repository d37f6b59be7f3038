// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package upload

import (
	"context"

	"github.com/dairystack/milkcheck/internal/models"
)

// BatchItem pairs one photo with its attempt options.
type BatchItem struct {
	Image   []byte
	Options Options
}

// BatchUploadAndVerify runs attempts sequentially, reporting completion
// after each. One failed attempt does not stop the rest; each result
// carries its own outcome. A cancelled context stops the batch and marks
// the remaining items as failed.
func (o *Orchestrator) BatchUploadAndVerify(ctx context.Context, items []BatchItem, onBatchProgress func(completed, total int)) []*models.FastUploadResult {
	results := make([]*models.FastUploadResult, 0, len(items))

	for i, item := range items {
		if err := ctx.Err(); err != nil {
			for range items[i:] {
				results = append(results, &models.FastUploadResult{
					Success: false,
					Error:   "batch cancelled: " + err.Error(),
				})
			}
			break
		}

		results = append(results, o.FastUploadAndVerify(ctx, item.Image, item.Options))
		if onBatchProgress != nil {
			onBatchProgress(i+1, len(items))
		}
	}
	return results
}
