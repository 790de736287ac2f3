// Clocksync - Biometric Time-Clock Attendance Synchronization
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/clocksync

package checkpoint

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"github.com/tomtom215/clocksync/internal/config"
	"github.com/tomtom215/clocksync/internal/logging"
	"github.com/tomtom215/clocksync/internal/metrics"
	"github.com/tomtom215/clocksync/internal/models"
)

var (
	// ErrCheckpointRegression is returned when a commit would move progress backwards.
	ErrCheckpointRegression = errors.New("checkpoint regression")

	// ErrStoreClosed is returned after Close.
	ErrStoreClosed = errors.New("checkpoint store is closed")
)

const keyPrefix = "checkpoint:"

// Store is a BadgerDB-backed checkpoint store. It is safe for concurrent use.
type Store struct {
	db *badger.DB

	mu     sync.RWMutex
	closed bool

	// commitMu serializes read-check-write so concurrent commits do not
	// fail with badger.ErrConflict.
	commitMu sync.Mutex
}

// Open opens (or creates) the store described by cfg.
func Open(cfg config.CheckpointConfig) (*Store, error) {
	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0o750); err != nil {
			return nil, fmt.Errorf("create checkpoint directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
		opts.SyncWrites = true
	}
	// Checkpoints are tiny; keep the footprint small.
	opts.MemTableSize = 8 << 20
	opts.ValueLogFileSize = 16 << 20
	opts.NumCompactors = 2
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open BadgerDB: %w", err)
	}

	logging.Info().Str("path", cfg.Path).Bool("in_memory", cfg.InMemory).Msg("Checkpoint store opened")
	return &Store{db: db}, nil
}

// Load returns the checkpoint for connectorID. A connector that has never
// committed gets a zero checkpoint, not an error.
func (s *Store) Load(ctx context.Context, connectorID string) (models.SyncCheckpoint, error) {
	if err := ctx.Err(); err != nil {
		return models.SyncCheckpoint{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return models.SyncCheckpoint{}, ErrStoreClosed
	}

	var cp models.SyncCheckpoint
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		cp, err = readCheckpoint(txn, connectorID)
		return err
	})
	if err != nil {
		return models.SyncCheckpoint{}, fmt.Errorf("load checkpoint %s: %w", connectorID, err)
	}
	return cp, nil
}

// Commit stores cp for connectorID if it does not regress the stored
// checkpoint. The read and write happen in one transaction.
func (s *Store) Commit(ctx context.Context, connectorID string, cp models.SyncCheckpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	cp = cp.Clone()
	cp.ConnectorID = connectorID
	cp.UpdatedAt = time.Now().UTC()

	err := s.db.Update(func(txn *badger.Txn) error {
		current, err := readCheckpoint(txn, connectorID)
		if err != nil {
			return err
		}
		if err := checkMonotonic(current, cp); err != nil {
			return err
		}
		data, err := json.Marshal(cp)
		if err != nil {
			return fmt.Errorf("marshal checkpoint: %w", err)
		}
		return txn.Set(key(connectorID), data)
	})
	if err != nil {
		return fmt.Errorf("commit checkpoint %s: %w", connectorID, err)
	}

	metrics.RecordCheckpoint(connectorID, cp.LastSeenID, cp.LastPage, cp.LastWindowEnd)
	logging.Ctx(ctx).Debug().
		Str("connector_id", connectorID).
		Int64("last_seen_id", cp.LastSeenID).
		Int("last_page", cp.LastPage).
		Time("last_window_end", cp.LastWindowEnd).
		Int("devices", len(cp.DeviceWindows)).
		Msg("Checkpoint committed")
	return nil
}

// Reset deletes the checkpoint for connectorID so the next cycle starts
// from the strategy's defaults.
func (s *Store) Reset(ctx context.Context, connectorID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Delete(key(connectorID)); err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
			return err
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("reset checkpoint %s: %w", connectorID, err)
	}
	metrics.RecordCheckpoint(connectorID, 0, 0, time.Time{})
	logging.Ctx(ctx).Warn().Str("connector_id", connectorID).Msg("Checkpoint reset")
	return nil
}

// List returns every stored checkpoint.
func (s *Store) List(ctx context.Context) ([]models.SyncCheckpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrStoreClosed
	}

	var out []models.SyncCheckpoint
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(keyPrefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var cp models.SyncCheckpoint
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &cp)
			}); err != nil {
				return fmt.Errorf("unmarshal %s: %w", it.Item().Key(), err)
			}
			out = append(out, cp)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list checkpoints: %w", err)
	}
	return out, nil
}

// RunValueLogGC reclaims space from rewritten checkpoint values. It returns
// nil when there was nothing to collect.
func (s *Store) RunValueLogGC(discardRatio float64) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrStoreClosed
	}
	err := s.db.RunValueLogGC(discardRatio)
	if errors.Is(err, badger.ErrNoRewrite) || errors.Is(err, badger.ErrGCInMemoryMode) {
		return nil
	}
	return err
}

// Close flushes and closes the store. Further calls return ErrStoreClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	return s.db.Close()
}

func key(connectorID string) []byte {
	return []byte(keyPrefix + connectorID)
}

func readCheckpoint(txn *badger.Txn, connectorID string) (models.SyncCheckpoint, error) {
	item, err := txn.Get(key(connectorID))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return models.SyncCheckpoint{ConnectorID: connectorID}, nil
	}
	if err != nil {
		return models.SyncCheckpoint{}, fmt.Errorf("get checkpoint: %w", err)
	}
	var cp models.SyncCheckpoint
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &cp)
	}); err != nil {
		return models.SyncCheckpoint{}, fmt.Errorf("unmarshal checkpoint: %w", err)
	}
	return cp, nil
}

// checkMonotonic rejects a next checkpoint that moves any committed
// position backwards. The page cursor may move freely because pages shift
// as the remote side inserts and deletes rows; the id under it may not.
func checkMonotonic(current, next models.SyncCheckpoint) error {
	if next.LastSeenID < current.LastSeenID {
		return fmt.Errorf("%w: last_seen_id %d < %d", ErrCheckpointRegression, next.LastSeenID, current.LastSeenID)
	}
	if next.LastWindowEnd.Before(current.LastWindowEnd) {
		return fmt.Errorf("%w: last_window_end %s < %s", ErrCheckpointRegression,
			next.LastWindowEnd.Format(time.RFC3339), current.LastWindowEnd.Format(time.RFC3339))
	}
	for alias, end := range current.DeviceWindows {
		nextEnd, ok := next.DeviceWindows[alias]
		if !ok {
			return fmt.Errorf("%w: device %q window dropped", ErrCheckpointRegression, alias)
		}
		if nextEnd.Before(end) {
			return fmt.Errorf("%w: device %q window %s < %s", ErrCheckpointRegression, alias,
				nextEnd.Format(time.RFC3339), end.Format(time.RFC3339))
		}
	}
	return nil
}
