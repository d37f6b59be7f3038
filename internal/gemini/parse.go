// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package gemini

import (
	"regexp"
	"strings"

	"github.com/goccy/go-json"

	"github.com/dairystack/milkcheck/internal/models"
)

// excerptLimit caps how much raw model output a parse error carries.
const excerptLimit = 200

// keyedObjectPattern matches a single JSON object containing all five
// required keys in their instructed order. Used before the general brace
// match so prose around the object cannot poison the extraction.
var keyedObjectPattern = regexp.MustCompile(
	`\{[^}]*"estimatedLiters"[^}]*"matchesRecorded"[^}]*"confidence"[^}]*"explanation"[^}]*"verificationPassed"[^}]*\}`)

// bracePattern is the last-ditch extraction: the widest brace-delimited
// span in the response.
var bracePattern = regexp.MustCompile(`(?s)\{.*\}`)

// requiredKeys are the fields every model answer must carry. An object
// missing any of them is not an analysis, no matter how cleanly it
// parses.
var requiredKeys = [...]string{
	"estimatedLiters",
	"matchesRecorded",
	"confidence",
	"explanation",
	"verificationPassed",
}

// parseAnalysis recovers a VerificationAnalysis from raw model output.
// The model is instructed to answer with bare JSON but routinely wraps it
// in markdown fences or prose, so parsing is a three-step chain:
//
//  1. Parse the whole response as JSON.
//  2. Extract an object carrying all five required keys and parse that.
//  3. Extract the widest brace-delimited span and parse that.
//
// Every step verifies all five required keys are present before
// accepting a candidate; a valid-but-incomplete object is a parse
// failure, never a zero-valued analysis. When all three steps fail the
// error carries a truncated excerpt of the raw response for diagnosis.
func parseAnalysis(text string) (*models.VerificationAnalysis, error) {
	trimmed := strings.TrimSpace(text)

	if analysis, ok := decodeAnalysis(trimmed); ok {
		return analysis, nil
	}

	if match := keyedObjectPattern.FindString(trimmed); match != "" {
		if analysis, ok := decodeAnalysis(match); ok {
			return analysis, nil
		}
	}

	if match := bracePattern.FindString(trimmed); match != "" {
		if analysis, ok := decodeAnalysis(match); ok {
			return analysis, nil
		}
	}

	return nil, parseError("failed to parse AI response: "+excerpt(trimmed), nil)
}

// decodeAnalysis parses candidate as a JSON object and accepts it only
// when all required keys are present.
func decodeAnalysis(candidate string) (*models.VerificationAnalysis, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(candidate), &fields); err != nil {
		return nil, false
	}
	for _, key := range requiredKeys {
		if _, ok := fields[key]; !ok {
			return nil, false
		}
	}

	var analysis models.VerificationAnalysis
	if err := json.Unmarshal([]byte(candidate), &analysis); err != nil {
		return nil, false
	}
	return &analysis, true
}

// excerpt truncates s to excerptLimit characters, marking the cut.
func excerpt(s string) string {
	if len(s) <= excerptLimit {
		return s
	}
	return s[:excerptLimit] + "..."
}
