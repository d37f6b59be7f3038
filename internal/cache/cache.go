// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

// Package cache implements the two-tier verification cache: a small
// fixed-capacity memory tier in front of a persistent BadgerDB tier.
// Entries are keyed by image content hash plus recorded volume, so a
// retry of the same photo with the same reading is answered without a
// second AI call.
//
// Tier semantics:
//   - Reads check memory first, then the persistent tier. A persistent
//     hit is promoted into memory.
//   - Writes go to both tiers. Persistent tier failures are logged and
//     swallowed; the memory tier alone still provides caching.
//   - Expiry is lazy: entries past their TTL are treated as absent at
//     read time and removed on sight. A periodic sweep reclaims the rest.
package cache

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/dairystack/milkcheck/internal/config"
	"github.com/dairystack/milkcheck/internal/logging"
	"github.com/dairystack/milkcheck/internal/models"
)

// Key derives the cache key for an image hash and recorded volume.
// The volume is formatted with minimal digits so 12.0 and 12 collide,
// matching how readings round-trip through JSON.
func Key(imageHash string, recordedLiters float64) string {
	return imageHash + "_" + strconv.FormatFloat(recordedLiters, 'f', -1, 64)
}

// Stats are point-in-time counters for the cache.
type Stats struct {
	MemoryEntries  int   `json:"memoryEntries"`
	MemoryCapacity int   `json:"memoryCapacity"`
	Hits           int64 `json:"hits"`
	Misses         int64 `json:"misses"`
	Promotions     int64 `json:"promotions"`
}

// VerificationCache is the two-tier cache service.
type VerificationCache struct {
	memory  *memoryTier
	persist PersistentStore
	ttl     time.Duration
	now     func() time.Time
	logger  zerolog.Logger

	countersMu sync.Mutex
	counters   struct {
		hits       int64
		misses     int64
		promotions int64
	}
}

// New creates a VerificationCache from configuration. The persistent
// store may be nil, in which case the cache runs memory-only.
func New(cfg config.CacheConfig, persist PersistentStore) *VerificationCache {
	return &VerificationCache{
		memory:  newMemoryTier(cfg.MemoryCapacity),
		persist: persist,
		ttl:     cfg.TTL,
		now:     time.Now,
		logger:  logging.With().Str("component", "cache").Logger(),
	}
}

// SetClock replaces the cache's time source. Tests inject a fake clock to
// exercise expiry without sleeping.
func (c *VerificationCache) SetClock(now func() time.Time) {
	c.now = now
}

// Get returns the cached verification for key, or nil when absent or
// expired. A hit in the persistent tier is promoted into memory with its
// original expiry preserved.
func (c *VerificationCache) Get(key string) *models.VerificationAnalysis {
	now := c.now()

	if entry, ok := c.memory.get(key, now); ok {
		c.countHit()
		result := entry.Result
		return &result
	}

	if c.persist != nil {
		entry, err := c.persist.Get(key, now)
		if err == nil {
			c.memory.set(key, entry)
			c.countPromotion()
			c.countHit()
			result := entry.Result
			return &result
		}
		if !errors.Is(err, ErrNotFound) {
			// Persistent tier trouble degrades to memory-only, never fails a read
			c.logger.Warn().Err(err).Str("key", key).Msg("persistent cache read failed")
		}
	}

	c.countMiss()
	return nil
}

// Set stores a verification result under key in both tiers. The TTL
// starts at the time of the write. Persistent tier failures are logged
// and swallowed.
func (c *VerificationCache) Set(key string, recordedLiters float64, result models.VerificationAnalysis) {
	now := c.now()
	entry := &models.CachedVerification{
		CacheKey:       key,
		RecordedLiters: recordedLiters,
		Result:         result,
		CreatedAt:      now,
		ExpiresAt:      now.Add(c.ttl),
	}

	c.memory.set(key, entry)

	if c.persist != nil {
		if err := c.persist.Set(key, entry); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("persistent cache write failed")
		}
	}
}

// Delete removes key from both tiers.
func (c *VerificationCache) Delete(key string) {
	c.memory.delete(key)
	if c.persist != nil {
		if err := c.persist.Delete(key); err != nil {
			c.logger.Warn().Err(err).Str("key", key).Msg("persistent cache delete failed")
		}
	}
}

// Sweep removes expired entries from both tiers and returns the total
// number removed.
func (c *VerificationCache) Sweep() int {
	now := c.now()
	removed := c.memory.sweep(now)
	if c.persist != nil {
		n, err := c.persist.Sweep(now)
		if err != nil {
			c.logger.Warn().Err(err).Msg("persistent cache sweep failed")
		}
		removed += n
	}
	return removed
}

// Clear unconditionally empties both tiers. A persistent tier failure
// leaves its entries to expire naturally.
func (c *VerificationCache) Clear() {
	c.memory.clear()
	if c.persist != nil {
		if err := c.persist.Clear(); err != nil {
			c.logger.Warn().Err(err).Msg("persistent cache clear failed")
		}
	}
}

// Stats returns a snapshot of the cache counters.
func (c *VerificationCache) Stats() Stats {
	c.countersMu.Lock()
	defer c.countersMu.Unlock()
	return Stats{
		MemoryEntries:  c.memory.len(),
		MemoryCapacity: c.memory.capacity,
		Hits:           c.counters.hits,
		Misses:         c.counters.misses,
		Promotions:     c.counters.promotions,
	}
}

// Close closes the persistent tier, if any.
func (c *VerificationCache) Close() error {
	if c.persist == nil {
		return nil
	}
	return c.persist.Close()
}

func (c *VerificationCache) countHit() {
	c.countersMu.Lock()
	c.counters.hits++
	c.countersMu.Unlock()
}

func (c *VerificationCache) countMiss() {
	c.countersMu.Lock()
	c.counters.misses++
	c.countersMu.Unlock()
}

func (c *VerificationCache) countPromotion() {
	c.countersMu.Lock()
	c.counters.promotions++
	c.countersMu.Unlock()
}
