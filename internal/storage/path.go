// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package storage

import (
	"fmt"
	"strings"
	"time"
)

// ObjectKey builds the object key for a collection photo:
// {farmerID}/{collectionID}_{unix-millis}{ext}. The timestamp keeps
// retries of the same collection from colliding.
func ObjectKey(farmerID, collectionID string, at time.Time, ext string) string {
	if ext == "" {
		ext = ".jpg"
	}
	if !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}
	return fmt.Sprintf("%s/%s_%d%s",
		sanitizeSegment(farmerID), sanitizeSegment(collectionID), at.UnixMilli(), ext)
}

// sanitizeSegment strips path separators and whitespace from an
// identifier so caller-provided IDs cannot escape their prefix.
func sanitizeSegment(s string) string {
	s = strings.TrimSpace(s)
	replacer := strings.NewReplacer("/", "-", "\\", "-", "..", "-", " ", "-")
	out := replacer.Replace(s)
	if out == "" {
		out = "unknown"
	}
	return out
}
