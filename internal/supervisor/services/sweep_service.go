// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package services

import (
	"context"
	"time"

	"github.com/dairystack/milkcheck/internal/logging"
)

// Sweeper removes expired entries from both cache tiers. Satisfied by
// *cache.VerificationCache.
type Sweeper interface {
	Sweep() int
}

// SweepService periodically sweeps the verification cache. The cache is
// correct without it (expiry is checked on read); sweeping just bounds
// the space dead entries occupy.
type SweepService struct {
	sweeper  Sweeper
	interval time.Duration
	name     string
}

// NewSweepService creates the sweep loop.
func NewSweepService(sweeper Sweeper, interval time.Duration) *SweepService {
	if interval <= 0 {
		interval = time.Minute
	}
	return &SweepService{
		sweeper:  sweeper,
		interval: interval,
		name:     "cache-sweep",
	}
}

// Serve implements suture.Service.
func (s *SweepService) Serve(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if removed := s.sweeper.Sweep(); removed > 0 {
				logging.Debug().Int("removed", removed).Msg("Swept expired cache entries")
			}

		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// String implements fmt.Stringer for supervisor logging.
func (s *SweepService) String() string {
	return s.name
}
