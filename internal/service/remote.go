package service

import (
	"context"

	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
)

// Remote is the surface of the remote store the services depend on.
// Satisfied by *remote.Client; tests substitute fakes.
type Remote interface {
	Configured() bool
	UpsertBooks(ctx context.Context, token, accountID string, books []domain.Book) error
	InsertBooks(ctx context.Context, token, accountID string, books []domain.Book) error
	InsertFeedback(ctx context.Context, token, accountID string, fb domain.Feedback) error
	SelectBooks(ctx context.Context, token, accountID string) ([]domain.Book, error)
	Ping(ctx context.Context, token string) error
}
