// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package gemini

import (
	"context"
	"fmt"

	"github.com/dairystack/milkcheck/internal/models"
)

// DefaultConfidenceThreshold is applied when no instruction record exists.
const DefaultConfidenceThreshold = 0.8

// defaultInstructions is the fallback instruction block used when the
// instruction store is unavailable or empty.
const defaultInstructions = `You are an AI assistant that verifies milk collection photos. Your task is to:

1. Analyze images of milk collections
2. Estimate the volume of milk shown in the image
3. Compare your estimate with the recorded liters
4. Determine if the collection appears legitimate

Focus on:
- Measuring containers and their fill levels
- Standard milk collection jugs or tanks
- Any numerical indicators of volume
- Overall plausibility of the collection

Be conservative in your estimates. If uncertain, recommend human review.`

// InstructionSource provides the current AI instruction block. The
// database package implements this over the ai_instructions table.
type InstructionSource interface {
	LatestInstructions(ctx context.Context) (*models.AIInstructions, error)
}

// DefaultInstructions returns the built-in instruction set.
func DefaultInstructions(model string) *models.AIInstructions {
	return &models.AIInstructions{
		Instructions:        defaultInstructions,
		ModelName:           model,
		ConfidenceThreshold: DefaultConfidenceThreshold,
	}
}

// buildPrompt assembles the verification prompt around the instruction
// block and the recorded reading. The JSON contract at the end is what
// the parse chain depends on.
func buildPrompt(instructions string, recordedLiters float64) string {
	return fmt.Sprintf(`%s

Recorded liters: %gL

Please analyze the image and:
1. Identify any containers, measuring devices, or indicators of milk volume
2. Estimate the total liters of milk shown in the image
3. Compare your estimate with the recorded liters
4. Provide a confidence score (0.0 to 1.0) for your analysis
5. Explain your reasoning

Respond ONLY with a valid JSON object in this exact format:
{
  "estimatedLiters": 10.5,
  "matchesRecorded": true,
  "confidence": 0.85,
  "explanation": "Based on the container size and fill level, this appears to be approximately 10.5 liters of milk.",
  "verificationPassed": true
}

CRITICAL: Respond with ONLY the JSON object. No other text, no markdown, no explanations outside the JSON.
CRITICAL: Ensure all values are valid JSON types.
CRITICAL: Do not wrap the JSON in markdown code blocks or any other formatting.
CRITICAL: The confidence value must be between 0.0 and 1.0.

Be conservative in your estimates. If you cannot clearly determine the volume, set verificationPassed to false.`, instructions, recordedLiters)
}
