// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package cache

import (
	"sync"
	"time"

	"github.com/dairystack/milkcheck/internal/models"
)

// memoryTier is the fixed-capacity in-memory cache tier. Eviction is by
// insertion order: when full, the oldest inserted entry is dropped
// regardless of access pattern. All methods are safe for concurrent use.
type memoryTier struct {
	mu       sync.Mutex
	capacity int
	entries  map[string]*models.CachedVerification
	order    []string // insertion order, oldest first
}

func newMemoryTier(capacity int) *memoryTier {
	return &memoryTier{
		capacity: capacity,
		entries:  make(map[string]*models.CachedVerification, capacity),
		order:    make([]string, 0, capacity),
	}
}

// get returns the entry for key if present and not expired at now.
// Expired entries are deleted on sight and reported as a miss.
func (m *memoryTier) get(key string, now time.Time) (*models.CachedVerification, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	entry, ok := m.entries[key]
	if !ok {
		return nil, false
	}
	if entry.Expired(now) {
		m.removeLocked(key)
		return nil, false
	}
	return entry, true
}

// set inserts or replaces the entry for key. Replacing an existing key
// refreshes its position in the insertion order. When the tier is full,
// the oldest entry is evicted first.
func (m *memoryTier) set(key string, entry *models.CachedVerification) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.entries[key]; exists {
		m.removeLocked(key)
	}
	for len(m.entries) >= m.capacity && len(m.order) > 0 {
		m.removeLocked(m.order[0])
	}
	m.entries[key] = entry
	m.order = append(m.order, key)
}

// delete removes the entry for key if present.
func (m *memoryTier) delete(key string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(key)
}

// sweep removes all entries expired at now and returns how many were removed.
func (m *memoryTier) sweep(now time.Time) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	removed := 0
	for key, entry := range m.entries {
		if entry.Expired(now) {
			m.removeLocked(key)
			removed++
		}
	}
	return removed
}

// len returns the number of stored entries, expired or not.
func (m *memoryTier) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// clear drops all entries.
func (m *memoryTier) clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = make(map[string]*models.CachedVerification, m.capacity)
	m.order = m.order[:0]
}

// removeLocked deletes key from both the map and the order slice.
// Caller must hold mu.
func (m *memoryTier) removeLocked(key string) {
	if _, ok := m.entries[key]; !ok {
		return
	}
	delete(m.entries, key)
	for i, k := range m.order {
		if k == key {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
}
