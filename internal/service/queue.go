package service

import (
	"context"
	"log/slog"

	"github.com/shelfmarkapp/shelfmark-sync/internal/classify"
	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
	"github.com/shelfmarkapp/shelfmark-sync/internal/store"
)

// QueueService exposes queue state to the API: badge counts, the error inbox
// and dismissal of stuck work.
type QueueService struct {
	store  *store.Store
	logger *slog.Logger
}

// NewQueueService creates a new queue service.
func NewQueueService(store *store.Store, logger *slog.Logger) *QueueService {
	return &QueueService{
		store:  store,
		logger: logger,
	}
}

// Counts returns an account's pending work per kind plus the needs-attention
// total. Orphaned tasks count for every account.
func (s *QueueService) Counts(ctx context.Context, accountID string) (domain.PendingCounts, error) {
	return s.store.PendingCounts(ctx, accountID)
}

// AttentionItems prepares an account's stuck tasks for display. Each item
// carries a plain-language explanation derived from the task's last failure;
// raw backend wording never reaches the client here.
func (s *QueueService) AttentionItems(ctx context.Context, accountID string) ([]domain.AttentionItem, error) {
	tasks, err := s.store.NeedsAttention(ctx, accountID)
	if err != nil {
		return nil, err
	}

	items := make([]domain.AttentionItem, 0, len(tasks))
	for i := range tasks {
		task := &tasks[i]

		explanation := classify.Class(task.LastErrorKind).UserMessage()
		if task.Orphaned() {
			explanation = "These changes were made while signed out and can't be synced. Dismiss them or re-add the books while signed in."
		}

		items = append(items, domain.AttentionItem{
			TaskID:      task.ID,
			Kind:        task.Kind,
			Attempts:    task.Attempts,
			ItemCount:   task.ItemCount(),
			Explanation: explanation,
			CreatedAt:   task.CreatedAt,
		})
	}
	return items, nil
}

// Dismiss drops the account's stuck tasks and returns how many were removed.
func (s *QueueService) Dismiss(ctx context.Context, accountID string) (int, error) {
	return s.store.DismissNeedsAttention(ctx, accountID)
}

// LastFailure returns the most recent unrecovered sync failure, or nil.
func (s *QueueService) LastFailure(ctx context.Context) (*domain.SyncFailure, error) {
	return s.store.GetSyncFailure(ctx)
}

// ClearLastFailure removes the failure record, for an explicit user dismiss.
func (s *QueueService) ClearLastFailure(ctx context.Context) error {
	return s.store.ClearSyncFailure(ctx)
}
