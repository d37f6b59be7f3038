// Milkcheck - AI Photo Verification for Dairy Collection Cooperatives
// Copyright 2026 Dairystack
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/dairystack/milkcheck

package cache

import (
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/dairystack/milkcheck/internal/models"
)

// Key prefix for verification entries in BadgerDB.
const verificationKeyPrefix = "verification:"

// ErrNotFound is returned by the persistent tier when a key is absent or
// expired.
var ErrNotFound = errors.New("cache: entry not found")

// PersistentStore is the durable cache tier. Implementations must be safe
// for concurrent use.
type PersistentStore interface {
	Get(key string, now time.Time) (*models.CachedVerification, error)
	Set(key string, entry *models.CachedVerification) error
	Delete(key string) error
	Sweep(now time.Time) (int, error)
	Clear() error
	Close() error
}

// BadgerStore implements PersistentStore on BadgerDB. Entries are stored
// as JSON under a namespaced prefix with a BadgerDB TTL matching the
// entry's expiry, so the store reclaims space even without sweeps.
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens a BadgerDB at path and returns a store backed by it.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	opts.Logger = nil // Suppress BadgerDB internal logs
	// Small value log; cached verifications are a few hundred bytes each
	opts.ValueLogFileSize = 16 << 20 // 16MB
	opts.SyncWrites = true

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger db for verification cache: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStoreInMemory opens an in-memory BadgerDB. Used by tests and
// deployments without a writable data directory.
func NewBadgerStoreInMemory() (*BadgerStore, error) {
	opts := badger.DefaultOptions("").WithInMemory(true).WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open in-memory badger db: %w", err)
	}
	return &BadgerStore{db: db}, nil
}

// NewBadgerStoreFromDB wraps an existing BadgerDB connection. Useful when
// sharing one BadgerDB instance across multiple stores.
func NewBadgerStoreFromDB(db *badger.DB) *BadgerStore {
	return &BadgerStore{db: db}
}

// Get retrieves the entry for key. Returns ErrNotFound when the key is
// absent or the stored entry is expired at now; expired entries are left
// for BadgerDB's TTL reclamation or the next Sweep.
func (s *BadgerStore) Get(key string, now time.Time) (*models.CachedVerification, error) {
	var entry models.CachedVerification

	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(verificationKeyPrefix + key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("get verification: %w", err)
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &entry)
		})
	})
	if err != nil {
		return nil, err
	}

	if entry.Expired(now) {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// Set stores the entry under key with a BadgerDB TTL derived from the
// entry's ExpiresAt.
func (s *BadgerStore) Set(key string, entry *models.CachedVerification) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal verification: %w", err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry([]byte(verificationKeyPrefix+key), data)
		if ttl := time.Until(entry.ExpiresAt); ttl > 0 {
			e = e.WithTTL(ttl)
		}
		if err := txn.SetEntry(e); err != nil {
			return fmt.Errorf("set verification: %w", err)
		}
		return nil
	})
}

// Delete removes the entry for key. Deleting an absent key is not an error.
func (s *BadgerStore) Delete(key string) error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(verificationKeyPrefix + key))
	})
}

// Sweep scans the verification prefix and deletes entries expired at now.
// Returns the number of entries removed.
func (s *BadgerStore) Sweep(now time.Time) (int, error) {
	type expired struct{ key []byte }
	var stale []expired

	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(verificationKeyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			var entry models.CachedVerification
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &entry)
			})
			if err != nil {
				// Undecodable entries are stale by definition
				stale = append(stale, expired{key: item.KeyCopy(nil)})
				continue
			}
			if entry.Expired(now) {
				stale = append(stale, expired{key: item.KeyCopy(nil)})
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("sweep scan: %w", err)
	}

	removed := 0
	for _, e := range stale {
		err := s.db.Update(func(txn *badger.Txn) error {
			return txn.Delete(e.key)
		})
		if err != nil {
			return removed, fmt.Errorf("sweep delete: %w", err)
		}
		removed++
	}
	return removed, nil
}

// Clear drops every verification entry.
func (s *BadgerStore) Clear() error {
	return s.db.DropPrefix([]byte(verificationKeyPrefix))
}

// Close closes the underlying BadgerDB.
func (s *BadgerStore) Close() error {
	return s.db.Close()
}
