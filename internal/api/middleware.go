// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"

	"github.com/dairystack/milkcheck/internal/config"
)

// healthRateLimit is permissive so monitoring can poll freely.
const healthRateLimit = 1000

// Middleware builds the chi-compatible middleware stack from server
// config. CORS origins default to empty, requiring explicit
// configuration before any cross-origin client works.
type Middleware struct {
	cfg  config.ServerConfig
	cors func(http.Handler) http.Handler
}

// NewMiddleware creates the middleware factory.
func NewMiddleware(cfg config.ServerConfig) *Middleware {
	return &Middleware{
		cfg: cfg,
		cors: cors.Handler(cors.Options{
			AllowedOrigins: cfg.CORSOrigins,
			AllowedMethods: []string{"GET", "POST", "PUT", "OPTIONS"},
			AllowedHeaders: []string{"Content-Type", "Authorization"},
			MaxAge:         86400,
		}),
	}
}

// CORS returns the cross-origin middleware. Global so OPTIONS preflight
// reaches it before routing.
func (m *Middleware) CORS() func(http.Handler) http.Handler {
	return m.cors
}

// RateLimit returns the per-IP limiter for data endpoints.
func (m *Middleware) RateLimit() func(http.Handler) http.Handler {
	requests := m.cfg.RateLimitReqs
	if requests <= 0 {
		return passthrough
	}
	window := m.cfg.RateLimitWindow
	if window <= 0 {
		window = time.Minute
	}
	return httprate.Limit(requests, window, httprate.WithKeyFuncs(httprate.KeyByIP))
}

// RateLimitHealth returns the permissive limiter for health endpoints.
func (m *Middleware) RateLimitHealth() func(http.Handler) http.Handler {
	return httprate.Limit(healthRateLimit, time.Minute, httprate.WithKeyFuncs(httprate.KeyByIP))
}

func passthrough(next http.Handler) http.Handler {
	return next
}
