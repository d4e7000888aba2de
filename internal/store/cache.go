package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
	"github.com/shelfmarkapp/shelfmark-sync/internal/sse"
)

// clientIDKey is the singleton key for this device's stable client id.
var clientIDKey = []byte("client:id")

// cacheKey returns the storage key for an account's cached library.
func cacheKey(accountID string) []byte {
	return []byte("cache:books:" + accountID)
}

// CachedBooks returns the locally cached library for an account. An absent
// cache reads as an empty library.
func (s *Store) CachedBooks(_ context.Context, accountID string) ([]domain.Book, error) {
	var books []domain.Book

	err := s.get(cacheKey(accountID), &books)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return []domain.Book{}, nil
		}
		return nil, fmt.Errorf("failed to get cached books: %w", err)
	}

	if books == nil {
		books = []domain.Book{}
	}
	return books, nil
}

// ReplaceCachedBooks swaps the account's cached library for a new snapshot
// and broadcasts the replacement.
func (s *Store) ReplaceCachedBooks(_ context.Context, accountID string, books []domain.Book) error {
	if books == nil {
		books = []domain.Book{}
	}

	if err := s.set(cacheKey(accountID), books); err != nil {
		return fmt.Errorf("failed to replace cached books: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("cached library replaced",
			"account_id", accountID, "books", len(books))
	}

	s.emit(sse.NewLibraryReplacedEvent(accountID, len(books)))
	return nil
}

// UpdateCachedBooks swaps the cached library without broadcasting. Used on
// the write path, where the queue change event already tells clients to
// refresh.
func (s *Store) UpdateCachedBooks(_ context.Context, accountID string, books []domain.Book) error {
	if books == nil {
		books = []domain.Book{}
	}
	if err := s.set(cacheKey(accountID), books); err != nil {
		return fmt.Errorf("failed to update cached books: %w", err)
	}
	return nil
}

// ClearCachedBooks removes the account's cached library.
func (s *Store) ClearCachedBooks(_ context.Context, accountID string) error {
	if err := s.delete(cacheKey(accountID)); err != nil {
		return fmt.Errorf("failed to clear cached books: %w", err)
	}
	return nil
}

// ClientID returns this device's stable client id, generating and persisting
// one on first use. The id survives restarts so the remote store can tell
// devices apart.
func (s *Store) ClientID(_ context.Context) (string, error) {
	var clientID string

	err := s.get(clientIDKey, &clientID)
	if err == nil && clientID != "" {
		return clientID, nil
	}
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("failed to get client id: %w", err)
	}

	clientID = uuid.NewString()
	if err := s.set(clientIDKey, clientID); err != nil {
		return "", fmt.Errorf("failed to persist client id: %w", err)
	}

	if s.logger != nil {
		s.logger.Info("generated device client id", "client_id", clientID)
	}
	return clientID, nil
}
