// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Router assembles the HTTP surface.
type Router struct {
	handler    *Handler
	middleware *Middleware
}

// NewRouter creates a Router from an assembled handler and middleware
// stack.
func NewRouter(handler *Handler, middleware *Middleware) *Router {
	return &Router{handler: handler, middleware: middleware}
}

// Setup configures all routes.
func (router *Router) Setup() http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(chimiddleware.Recoverer)
	r.Use(router.middleware.CORS())

	r.Route("/api/v1/health", func(r chi.Router) {
		r.Use(router.middleware.RateLimitHealth())
		r.Get("/live", router.handler.HealthLive)
		r.Get("/ready", router.handler.HealthReady)
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(router.middleware.RateLimit())

		r.Post("/collections/{collectionID}/photo", router.handler.UploadPhoto)

		r.Route("/analytics", func(r chi.Router) {
			r.Get("/dashboard", router.handler.AnalyticsDashboard)
			r.Get("/averages", router.handler.AnalyticsAverages)
			r.Get("/percentiles", router.handler.AnalyticsPercentiles)
		})

		r.Route("/cache", func(r chi.Router) {
			r.Get("/stats", router.handler.CacheStats)
			r.Post("/clear", router.handler.CacheClear)
		})

		r.Route("/instructions", func(r chi.Router) {
			r.Get("/", router.handler.GetInstructions)
			r.Put("/", router.handler.UpdateInstructions)
		})
	})

	r.Handle("/metrics", promhttp.Handler())

	return r
}
