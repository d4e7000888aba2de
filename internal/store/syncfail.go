package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
	"github.com/shelfmarkapp/shelfmark-sync/internal/sse"
)

// syncFailureKey is the singleton key for the last sync failure record.
var syncFailureKey = []byte("syncfail:last")

// SetSyncFailure records the most recent sync failure, replacing any previous
// record. There is exactly one such record at a time.
func (s *Store) SetSyncFailure(_ context.Context, failure domain.SyncFailure) error {
	if failure.OccurredAt.IsZero() {
		failure.OccurredAt = time.Now()
	}

	if err := s.set(syncFailureKey, failure); err != nil {
		return fmt.Errorf("failed to record sync failure: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("sync failure recorded",
			"classification", failure.Classification,
			"operation", failure.Operation)
	}

	s.emit(sse.NewSyncFailureChangedEvent(&failure))
	return nil
}

// GetSyncFailure returns the last recorded failure, or nil when syncing is
// healthy.
func (s *Store) GetSyncFailure(_ context.Context) (*domain.SyncFailure, error) {
	var failure domain.SyncFailure

	err := s.get(syncFailureKey, &failure)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get sync failure: %w", err)
	}

	return &failure, nil
}

// ClearSyncFailure removes the failure record after a successful sync.
func (s *Store) ClearSyncFailure(ctx context.Context) error {
	existing, err := s.GetSyncFailure(ctx)
	if err != nil {
		return err
	}
	if existing == nil {
		return nil
	}

	if err := s.delete(syncFailureKey); err != nil {
		return fmt.Errorf("failed to clear sync failure: %w", err)
	}

	s.emit(sse.NewSyncFailureChangedEvent(nil))
	return nil
}
