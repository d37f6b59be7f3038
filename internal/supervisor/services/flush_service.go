// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package services

import (
	"context"
	"time"

	"github.com/dairystack/milkcheck/internal/logging"
	"github.com/dairystack/milkcheck/internal/metrics"
)

// Flusher drains buffered analytics to the durable store. Satisfied by
// *analytics.Tracker.
type Flusher interface {
	Flush(ctx context.Context) error
}

// FlushService periodically flushes the analytics buffer. A failed flush
// is logged and retried on the next tick; the records stay buffered.
type FlushService struct {
	flusher  Flusher
	interval time.Duration
	name     string
}

// NewFlushService creates the flush loop.
func NewFlushService(flusher Flusher, interval time.Duration) *FlushService {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &FlushService{
		flusher:  flusher,
		interval: interval,
		name:     "analytics-flush",
	}
}

// Serve implements suture.Service. A best-effort final flush runs when
// the context is canceled so shutdown loses as little as possible.
func (s *FlushService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flush(ctx)

		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			s.flush(flushCtx)
			cancel()
			return ctx.Err()
		}
	}
}

func (s *FlushService) flush(ctx context.Context) {
	if err := s.flusher.Flush(ctx); err != nil {
		metrics.AnalyticsFlushTotal.WithLabelValues("failure").Inc()
		logging.Warn().Err(err).Msg("Analytics flush failed, records remain buffered")
		return
	}
	metrics.AnalyticsFlushTotal.WithLabelValues("success").Inc()
}

// String implements fmt.Stringer for supervisor logging.
func (s *FlushService) String() string {
	return s.name
}
