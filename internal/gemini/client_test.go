// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package gemini

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/goccy/go-json"

	"github.com/dairystack/milkcheck/internal/config"
	"github.com/dairystack/milkcheck/internal/models"
)

func testGeminiConfig(baseURL string) config.GeminiConfig {
	return config.GeminiConfig{
		Enabled:    true,
		APIKey:     "test-key",
		Model:      "gemini-2.5-flash",
		BaseURL:    baseURL,
		Timeout:    5 * time.Second,
		MaxRetries: 2,
		RetryDelay: 10 * time.Millisecond,
	}
}

// candidateResponse wraps text in the generateContent response envelope
func candidateResponse(text string) string {
	resp := map[string]any{
		"candidates": []map[string]any{
			{
				"content": map[string]any{
					"parts": []map[string]any{{"text": text}},
					"role":  "model",
				},
				"finishReason": "STOP",
			},
		},
	}
	data, _ := json.Marshal(resp)
	return string(data)
}

func TestVerifyCollectionPhotoSuccess(t *testing.T) {
	var captured GeminiRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "models/gemini-2.5-flash:generateContent") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.URL.Query().Get("key") != "test-key" {
			t.Errorf("api key not in query, got %q", r.URL.Query().Get("key"))
		}
		body, _ := io.ReadAll(r.Body)
		if err := json.Unmarshal(body, &captured); err != nil {
			t.Errorf("request body undecodable: %v", err)
		}
		io.WriteString(w, candidateResponse(validJSON))
	}))
	defer server.Close()

	c := NewClient(testGeminiConfig(server.URL), nil)
	got, err := c.VerifyCollectionPhoto(context.Background(), []byte("jpegdata"), "image/jpeg", 10.5)
	if err != nil {
		t.Fatalf("VerifyCollectionPhoto failed: %v", err)
	}
	if got.EstimatedLiters != 10.5 {
		t.Errorf("EstimatedLiters = %v, want 10.5", got.EstimatedLiters)
	}

	// Request shape
	gc := captured.GenerationConfig
	if gc.Temperature != 0.1 || gc.TopP != 0.95 || gc.TopK != 64 || gc.MaxOutputTokens != 8192 {
		t.Errorf("generation config = %+v, want 0.1/0.95/64/8192", gc)
	}
	if gc.ResponseMimeType != "application/json" {
		t.Errorf("ResponseMimeType = %q, want application/json", gc.ResponseMimeType)
	}
	if len(captured.SafetySettings) != 4 {
		t.Errorf("safety settings count = %d, want 4", len(captured.SafetySettings))
	}
	if len(captured.Contents) != 1 || len(captured.Contents[0].Parts) != 2 {
		t.Fatalf("contents shape wrong: %+v", captured.Contents)
	}
	prompt := captured.Contents[0].Parts[0].Text
	if !strings.Contains(prompt, "Recorded liters: 10.5L") {
		t.Error("prompt missing recorded liters")
	}
	if !strings.Contains(prompt, "verificationPassed") {
		t.Error("prompt missing JSON contract")
	}
	img := captured.Contents[0].Parts[1].InlineData
	if img == nil || img.MimeType != "image/jpeg" || img.Data == "" {
		t.Errorf("inline data = %+v, want base64 jpeg", img)
	}
}

func TestVerifyMissingAPIKey(t *testing.T) {
	cfg := testGeminiConfig("http://unused.invalid")
	cfg.APIKey = ""
	c := NewClient(cfg, nil)

	_, err := c.VerifyCollectionPhoto(context.Background(), []byte("x"), "image/jpeg", 1)
	if KindOf(err) != KindCredential {
		t.Errorf("error kind = %s, want credential (err=%v)", KindOf(err), err)
	}
}

func TestVerifyCredentialRejectionNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	c := NewClient(testGeminiConfig(server.URL), nil)
	_, err := c.VerifyCollectionPhoto(context.Background(), []byte("x"), "image/jpeg", 1)
	if KindOf(err) != KindCredential {
		t.Errorf("error kind = %s, want credential", KindOf(err))
	}
	if calls != 1 {
		t.Errorf("credential failure retried: %d calls, want 1", calls)
	}
}

func TestVerifyInvalidKeyMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		io.WriteString(w, `{"error": {"code": 400, "message": "API key not valid. Please pass a valid API key."}}`)
	}))
	defer server.Close()

	c := NewClient(testGeminiConfig(server.URL), nil)
	_, err := c.VerifyCollectionPhoto(context.Background(), []byte("x"), "image/jpeg", 1)
	if KindOf(err) != KindCredential {
		t.Errorf("error kind = %s, want credential", KindOf(err))
	}
}

func TestVerifyRetriesTransportThenSucceeds(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		io.WriteString(w, candidateResponse(validJSON))
	}))
	defer server.Close()

	c := NewClient(testGeminiConfig(server.URL), nil)
	got, err := c.VerifyCollectionPhoto(context.Background(), []byte("x"), "image/jpeg", 1)
	if err != nil {
		t.Fatalf("VerifyCollectionPhoto failed after retries: %v", err)
	}
	if got == nil || calls != 3 {
		t.Errorf("calls = %d, want 3 (two 429s then success)", calls)
	}
}

func TestVerifyRetriesExhausted(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := NewClient(testGeminiConfig(server.URL), nil)
	_, err := c.VerifyCollectionPhoto(context.Background(), []byte("x"), "image/jpeg", 1)
	if KindOf(err) != KindTransport {
		t.Errorf("error kind = %s, want transport", KindOf(err))
	}
	// initial attempt + MaxRetries
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestVerifyParseFailureNotRetried(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		io.WriteString(w, candidateResponse("I cannot analyze this image, sorry."))
	}))
	defer server.Close()

	c := NewClient(testGeminiConfig(server.URL), nil)
	_, err := c.VerifyCollectionPhoto(context.Background(), []byte("x"), "image/jpeg", 1)
	if KindOf(err) != KindParse {
		t.Errorf("error kind = %s, want parse", KindOf(err))
	}
	if calls != 1 {
		t.Errorf("parse failure retried: %d calls, want 1", calls)
	}
}

// staticInstructions is a canned InstructionSource
type staticInstructions struct {
	instr *models.AIInstructions
	err   error
}

func (s *staticInstructions) LatestInstructions(context.Context) (*models.AIInstructions, error) {
	return s.instr, s.err
}

func TestInstructionSourceUsed(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GeminiRequest
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		prompt = req.Contents[0].Parts[0].Text
		io.WriteString(w, candidateResponse(validJSON))
	}))
	defer server.Close()

	src := &staticInstructions{instr: &models.AIInstructions{
		Instructions:        "Count the blue churns only.",
		ModelName:           "gemini-2.5-flash",
		ConfidenceThreshold: 0.9,
	}}
	c := NewClient(testGeminiConfig(server.URL), src)
	if _, err := c.VerifyCollectionPhoto(context.Background(), []byte("x"), "image/jpeg", 1); err != nil {
		t.Fatalf("VerifyCollectionPhoto failed: %v", err)
	}
	if !strings.Contains(prompt, "Count the blue churns only.") {
		t.Error("custom instructions not in prompt")
	}
}

func TestInstructionSourceFailureFallsBack(t *testing.T) {
	var prompt string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req GeminiRequest
		body, _ := io.ReadAll(r.Body)
		json.Unmarshal(body, &req)
		prompt = req.Contents[0].Parts[0].Text
		io.WriteString(w, candidateResponse(validJSON))
	}))
	defer server.Close()

	src := &staticInstructions{err: errors.New("table missing")}
	c := NewClient(testGeminiConfig(server.URL), src)
	if _, err := c.VerifyCollectionPhoto(context.Background(), []byte("x"), "image/jpeg", 1); err != nil {
		t.Fatalf("VerifyCollectionPhoto failed: %v", err)
	}
	if !strings.Contains(prompt, "verifies milk collection photos") {
		t.Error("default instructions not used on source failure")
	}
}

func TestDefaultInstructions(t *testing.T) {
	instr := DefaultInstructions("gemini-2.5-flash")
	if instr.ConfidenceThreshold != 0.8 {
		t.Errorf("ConfidenceThreshold = %v, want 0.8", instr.ConfidenceThreshold)
	}
	if !strings.Contains(instr.Instructions, "conservative") {
		t.Error("default instructions missing conservative guidance")
	}
}
