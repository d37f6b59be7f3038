// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package storage

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dairystack/milkcheck/internal/config"
)

func testStorageConfig(baseURL string) config.StorageConfig {
	return config.StorageConfig{
		BaseURL:        baseURL,
		ServiceKey:     "service-key",
		Bucket:         "milk-collections",
		Timeout:        5 * time.Second,
		BreakerEnabled: false,
	}
}

func TestUpload(t *testing.T) {
	var gotPath, gotAuth, gotContentType string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	s := NewSupabaseStore(testStorageConfig(server.URL))
	result, err := s.Upload(context.Background(), "farmer-1/col-1_1700000000000.jpg", []byte("jpegdata"), "image/jpeg")
	if err != nil {
		t.Fatalf("Upload failed: %v", err)
	}

	if gotPath != "/storage/v1/object/milk-collections/farmer-1/col-1_1700000000000.jpg" {
		t.Errorf("request path = %q", gotPath)
	}
	if gotAuth != "Bearer service-key" {
		t.Errorf("Authorization = %q, want Bearer service-key", gotAuth)
	}
	if gotContentType != "image/jpeg" {
		t.Errorf("Content-Type = %q, want image/jpeg", gotContentType)
	}
	if string(gotBody) != "jpegdata" {
		t.Errorf("body = %q, want jpegdata", gotBody)
	}
	if result.Path != "milk-collections/farmer-1/col-1_1700000000000.jpg" {
		t.Errorf("Path = %q", result.Path)
	}
	if !strings.HasSuffix(result.URL, "/storage/v1/object/public/milk-collections/farmer-1/col-1_1700000000000.jpg") {
		t.Errorf("URL = %q", result.URL)
	}
}

func TestUploadServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error":"Duplicate"}`)
	}))
	defer server.Close()

	s := NewSupabaseStore(testStorageConfig(server.URL))
	_, err := s.Upload(context.Background(), "k", []byte("x"), "image/jpeg")
	if err == nil {
		t.Fatal("expected upload error")
	}
	if !strings.Contains(err.Error(), "409") {
		t.Errorf("error %q should carry the status code", err)
	}
}

func TestUploadUnconfigured(t *testing.T) {
	s := NewSupabaseStore(config.StorageConfig{Timeout: time.Second})
	if _, err := s.Upload(context.Background(), "k", []byte("x"), ""); err == nil {
		t.Error("expected error when storage is unconfigured")
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	var calls int
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	cfg := testStorageConfig(server.URL)
	cfg.BreakerEnabled = true
	s := NewSupabaseStore(cfg)

	for i := 0; i < 7; i++ {
		_, _ = s.Upload(context.Background(), "k", []byte("x"), "image/jpeg")
	}

	// Breaker trips after 5 consecutive failures; later calls short-circuit
	if calls > 5 {
		t.Errorf("backend called %d times, want at most 5 once breaker opened", calls)
	}
}

func TestObjectKey(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	got := ObjectKey("farmer-1", "col-9", at, ".jpg")
	want := "farmer-1/col-9_1700000000000.jpg"
	if got != want {
		t.Errorf("ObjectKey = %q, want %q", got, want)
	}

	// Extension normalization
	if got := ObjectKey("f", "c", at, "webp"); !strings.HasSuffix(got, ".webp") {
		t.Errorf("ObjectKey ext = %q, want .webp suffix", got)
	}
	if got := ObjectKey("f", "c", at, ""); !strings.HasSuffix(got, ".jpg") {
		t.Errorf("ObjectKey default ext = %q, want .jpg suffix", got)
	}
}

func TestObjectKeySanitizesIDs(t *testing.T) {
	at := time.UnixMilli(1700000000000)
	got := ObjectKey("../etc", "col/1", at, ".jpg")
	if strings.Contains(got, "..") {
		t.Errorf("ObjectKey %q contains path traversal", got)
	}
	if strings.Count(got, "/") != 1 {
		t.Errorf("ObjectKey %q should have exactly one separator", got)
	}
}
