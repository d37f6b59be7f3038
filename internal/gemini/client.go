// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

// Package gemini implements the AI verification client. A collection
// photo plus the collector's recorded reading goes in; a structured
// VerificationAnalysis comes out. The client speaks the Gemini
// generateContent REST API directly and classifies every failure as
// credential, transport, or parse so the orchestrator can decide what
// to do with it.
package gemini

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/dairystack/milkcheck/internal/config"
	"github.com/dairystack/milkcheck/internal/logging"
	"github.com/dairystack/milkcheck/internal/models"
)

// Verifier is the AI photo verification interface the orchestrator
// depends on.
type Verifier interface {
	VerifyCollectionPhoto(ctx context.Context, image []byte, mimeType string, recordedLiters float64) (*models.VerificationAnalysis, error)
}

// Client verifies collection photos against recorded readings via the
// Gemini generateContent REST API.
type Client struct {
	cfg          config.GeminiConfig
	httpClient   *http.Client
	limiter      *rate.Limiter
	instructions InstructionSource
	logger       zerolog.Logger
}

// NewClient creates a Gemini verification client. instructions may be
// nil, in which case the built-in instruction set is always used.
func NewClient(cfg config.GeminiConfig, instructions InstructionSource) *Client {
	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}
	return &Client{
		cfg:          cfg,
		httpClient:   &http.Client{Timeout: cfg.Timeout},
		limiter:      limiter,
		instructions: instructions,
		logger:       logging.With().Str("component", "gemini").Logger(),
	}
}

// VerifyCollectionPhoto analyzes a collection photo and compares the
// model's volume estimate against the collector's recorded reading.
//
// Transport failures are retried with exponential backoff up to the
// configured attempt limit. Credential and parse failures are returned
// immediately; retrying them cannot help.
func (c *Client) VerifyCollectionPhoto(ctx context.Context, image []byte, mimeType string, recordedLiters float64) (*models.VerificationAnalysis, error) {
	if c.cfg.APIKey == "" {
		return nil, credentialError("Gemini API key is missing")
	}
	if len(image) == 0 {
		return nil, parseError("empty image payload", nil)
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	if _, hasDeadline := ctx.Deadline(); !hasDeadline {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	instr := c.currentInstructions(ctx)
	reqBody := GeminiRequest{
		Contents: []GeminiContent{
			{
				Role: "user",
				Parts: []GeminiPart{
					{Text: buildPrompt(instr.Instructions, recordedLiters)},
					{InlineData: &GeminiInlineData{
						MimeType: mimeType,
						Data:     base64.StdEncoding.EncodeToString(image),
					}},
				},
			},
		},
		GenerationConfig: GeminiGenerationConfig{
			Temperature:      0.1,
			TopP:             0.95,
			TopK:             64,
			MaxOutputTokens:  8192,
			ResponseMimeType: "application/json",
		},
		SafetySettings: defaultSafetySettings,
	}

	model := instr.ModelName
	if model == "" {
		model = c.cfg.Model
	}
	url := fmt.Sprintf("%s/models/%s:generateContent?key=%s", c.cfg.BaseURL, model, c.cfg.APIKey)

	start := time.Now()
	text, err := c.doWithRetry(ctx, url, &reqBody)
	if err != nil {
		c.logger.Error().Err(err).Dur("elapsed", time.Since(start)).Msg("verification request failed")
		return nil, err
	}

	analysis, err := parseAnalysis(text)
	if err != nil {
		c.logger.Error().Err(err).Msg("verification response unparseable")
		return nil, err
	}

	c.logger.Debug().
		Float64("estimated_liters", analysis.EstimatedLiters).
		Float64("recorded_liters", recordedLiters).
		Float64("confidence", analysis.Confidence).
		Bool("passed", analysis.VerificationPassed).
		Dur("elapsed", time.Since(start)).
		Msg("verification completed")
	return analysis, nil
}

// currentInstructions fetches the latest instruction block, falling back
// to the built-in set when the source is absent or failing.
func (c *Client) currentInstructions(ctx context.Context) *models.AIInstructions {
	if c.instructions == nil {
		return DefaultInstructions(c.cfg.Model)
	}
	instr, err := c.instructions.LatestInstructions(ctx)
	if err != nil || instr == nil || strings.TrimSpace(instr.Instructions) == "" {
		if err != nil {
			c.logger.Warn().Err(err).Msg("instruction fetch failed, using defaults")
		}
		return DefaultInstructions(c.cfg.Model)
	}
	return instr
}

// doWithRetry posts the request, retrying transport-class failures with
// exponential backoff. Returns the concatenated candidate text.
func (c *Client) doWithRetry(ctx context.Context, url string, reqBody *GeminiRequest) (string, error) {
	payload, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	maxRetries := c.cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	retryDelay := c.cfg.RetryDelay
	if retryDelay <= 0 {
		retryDelay = time.Second
	}

	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			backoff := retryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return "", transportError("context cancelled during backoff", ctx.Err())
			case <-time.After(backoff):
			}
		}

		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return "", transportError("rate limiter wait", err)
			}
		}

		text, err := c.doOnce(ctx, url, payload)
		if err == nil {
			return text, nil
		}
		if ve, ok := err.(*VerifyError); ok && !ve.Retryable() {
			return "", err
		}
		lastErr = err
		c.logger.Warn().Err(err).Int("attempt", attempt+1).Msg("verification attempt failed")
	}
	return "", transportError("max retries exceeded", lastErr)
}

// doOnce performs a single generateContent round trip.
func (c *Client) doOnce(ctx context.Context, url string, payload []byte) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", transportError("create request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", transportError("request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", transportError("read response", err)
	}

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return "", credentialError(fmt.Sprintf("API key rejected (status %d)", resp.StatusCode))
	case resp.StatusCode == http.StatusBadRequest && strings.Contains(string(body), "API key not valid"):
		return "", credentialError("invalid Gemini API key")
	case resp.StatusCode == http.StatusTooManyRequests:
		return "", transportError("rate limit exceeded (429)", nil)
	case resp.StatusCode >= 500:
		return "", transportError(fmt.Sprintf("server error (status %d)", resp.StatusCode), nil)
	case resp.StatusCode != http.StatusOK:
		return "", parseError(fmt.Sprintf("API request failed with status %d: %s", resp.StatusCode, excerpt(string(body))), nil)
	}

	var geminiResp GeminiResponse
	if err := json.Unmarshal(body, &geminiResp); err != nil {
		return "", parseError("failed to decode API response", err)
	}
	if geminiResp.Error != nil {
		return "", transportError(fmt.Sprintf("API error: %s", geminiResp.Error.Message), nil)
	}
	if len(geminiResp.Candidates) == 0 || len(geminiResp.Candidates[0].Content.Parts) == 0 {
		return "", parseError("no completion returned", nil)
	}

	var sb strings.Builder
	for _, part := range geminiResp.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	return strings.TrimSpace(sb.String()), nil
}
