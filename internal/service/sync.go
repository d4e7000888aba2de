package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shelfmarkapp/shelfmark-sync/internal/classify"
	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
	"github.com/shelfmarkapp/shelfmark-sync/internal/remote"
	"github.com/shelfmarkapp/shelfmark-sync/internal/sse"
	"github.com/shelfmarkapp/shelfmark-sync/internal/store"
)

// SyncService drains the durable queues against the remote store.
type SyncService struct {
	store     *store.Store
	remote    Remote
	emitter   store.EventEmitter
	logger    *slog.Logger
	batchSize int

	// now is swappable for tests that exercise backoff windows.
	now func() time.Time
}

// NewSyncService creates a new sync service.
func NewSyncService(st *store.Store, rem Remote, emitter store.EventEmitter, logger *slog.Logger, batchSize int) *SyncService {
	if batchSize < 1 {
		batchSize = 50
	}
	return &SyncService{
		store:     st,
		remote:    rem,
		emitter:   emitter,
		logger:    logger,
		batchSize: batchSize,
		now:       time.Now,
	}
}

// FlushAll drains every queue for the session's account. Without an
// authenticated session there is no account to sync as, so nothing is
// attempted and the result says why; queued work simply waits.
func (s *SyncService) FlushAll(ctx context.Context, session Session) (domain.FlushResult, error) {
	var result domain.FlushResult

	if !session.Authenticated() {
		s.logger.Debug("flush skipped, no session")
		result.ErrorMessages = append(result.ErrorMessages, "Sign in to sync your queued changes.")
		return result, nil
	}

	for _, kind := range domain.OperationKinds {
		kindResult, err := s.Flush(ctx, session, kind)
		if err != nil {
			return result, err
		}
		result.Merge(kindResult)
	}
	return result, nil
}

// Flush drains one queue, oldest task first. Tasks belonging to other
// accounts, tasks stuck in needs_attention and tasks still inside their
// backoff window are carried over untouched.
func (s *SyncService) Flush(ctx context.Context, session Session, kind domain.OperationKind) (domain.FlushResult, error) {
	var result domain.FlushResult

	if !session.Authenticated() || !s.remote.Configured() {
		return result, nil
	}

	tasks, err := s.store.ReadQueue(ctx, kind)
	if err != nil {
		return result, err
	}
	if len(tasks) == 0 {
		return result, nil
	}

	now := s.now()
	attempted := 0

	// id -> updated task after a failed attempt, nil after success.
	outcomes := make(map[string]*domain.SyncTask)
	var lastFailure *domain.SyncFailure

	// The queue is newest first; walk it from the back so the oldest change
	// lands remotely first and later edits win.
	for i := len(tasks) - 1; i >= 0; i-- {
		task := tasks[i]

		if task.Status != domain.TaskPending ||
			task.AccountID != session.AccountID ||
			!s.due(&task, now) {
			continue
		}

		attempted++
		synced, applyErr := s.apply(ctx, session, &task)
		result.Synced += synced

		if applyErr == nil {
			outcomes[task.ID] = nil
			s.logger.Debug("task synced", "task_id", task.ID, "kind", string(kind), "items", synced)
			continue
		}

		class := classify.Classify(applyErr)
		task.Attempts++
		task.LastError = applyErr.Error()
		task.LastErrorKind = string(class)
		task.LastAttemptAt = now
		if task.Attempts >= domain.MaxSyncAttempts {
			task.Status = domain.TaskNeedsAttention
			s.logger.Warn("task exhausted its retry budget",
				"task_id", task.ID, "kind", string(kind), "classification", string(class))
		}

		// apply already trimmed the task's payload to the failed records,
		// so ItemCount reflects only what still needs syncing.
		updated := task
		outcomes[task.ID] = &updated
		result.Failed += task.ItemCount()
		result.ErrorMessages = append(result.ErrorMessages, class.UserMessage())

		lastFailure = &domain.SyncFailure{
			Message:        applyErr.Error(),
			Classification: string(class),
			Operation:      string(kind),
			Table:          failureTable(kind),
			StatusCode:     statusCode(applyErr),
			AccountID:      session.AccountID,
			HasSession:     session.Token != "",
			OccurredAt:     now,
		}
	}

	if attempted == 0 {
		return result, nil
	}

	// Rebuild the queue in original order, dropping synced tasks.
	kept := make([]domain.SyncTask, 0, len(tasks))
	for _, task := range tasks {
		if updated, processed := outcomes[task.ID]; processed {
			if updated != nil {
				kept = append(kept, *updated)
			}
			continue
		}
		kept = append(kept, task)
	}

	if err := s.store.WriteQueue(ctx, kind, kept); err != nil {
		return result, err
	}

	if lastFailure != nil {
		if err := s.store.SetSyncFailure(ctx, *lastFailure); err != nil {
			s.logger.Warn("failed to record sync failure", "error", err.Error())
		}
	} else {
		clearFailureWhenIdle(ctx, s.store, s.logger, session.AccountID)
	}

	if s.emitter != nil {
		s.emitter.Emit(sse.NewSyncCompletedEvent(kind, result))
	}

	s.logger.Info("queue flushed",
		"kind", string(kind),
		"synced", result.Synced,
		"failed", result.Failed)
	return result, nil
}

// due reports whether a task's backoff window has elapsed. Classifications
// without a backoff window (auth, permission, other) are retried on every
// drain and rely on the attempt ceiling alone.
func (s *SyncService) due(task *domain.SyncTask, now time.Time) bool {
	if task.Attempts == 0 || task.LastAttemptAt.IsZero() {
		return true
	}
	delay, ok := classify.Class(task.LastErrorKind).Backoff(task.Attempts)
	if !ok {
		return true
	}
	return now.Sub(task.LastAttemptAt) >= delay
}

// apply performs one task's remote mutation. For library batches it returns
// how many records landed even when the task as a whole failed.
func (s *SyncService) apply(ctx context.Context, session Session, task *domain.SyncTask) (int, error) {
	switch task.Kind {
	case domain.OpLibraryUpsert:
		synced, failed, err := s.upsertBatches(ctx, session, task.Books)
		if err != nil {
			// The task keeps only the records that actually failed.
			task.Books = failed
			return synced, err
		}
		return synced, nil

	case domain.OpFeedbackInsert:
		if task.Feedback == nil {
			return 0, nil
		}
		if err := s.remote.InsertFeedback(ctx, session.Token, session.AccountID, *task.Feedback); err != nil {
			return 0, err
		}
		return 1, nil

	default:
		return 0, nil
	}
}

// upsertBatches pushes books in bounded batches, isolating poison records by
// halving failed batches. Network failures abort outright: halving cannot
// help when the wire is down.
func (s *SyncService) upsertBatches(ctx context.Context, session Session, books []domain.Book) (synced int, failed []domain.Book, firstErr error) {
	for start := 0; start < len(books); start += s.batchSize {
		end := min(start+s.batchSize, len(books))
		batch := books[start:end]

		n, batchFailed, err := s.upsertHalving(ctx, session, batch)
		synced += n
		failed = append(failed, batchFailed...)
		if err != nil && firstErr == nil {
			firstErr = err
		}
		if err != nil && classify.Classify(err) == classify.Network {
			// Everything after this point would fail the same way.
			failed = append(failed, books[end:]...)
			break
		}
	}
	return synced, failed, firstErr
}

func (s *SyncService) upsertHalving(ctx context.Context, session Session, books []domain.Book) (int, []domain.Book, error) {
	if len(books) == 0 {
		return 0, nil, nil
	}

	err := s.remote.UpsertBooks(ctx, session.Token, session.AccountID, books)
	if err == nil {
		return len(books), nil, nil
	}

	if len(books) == 1 || classify.Classify(err) == classify.Network {
		return 0, books, err
	}

	mid := len(books) / 2
	leftSynced, leftFailed, leftErr := s.upsertHalving(ctx, session, books[:mid])
	rightSynced, rightFailed, rightErr := s.upsertHalving(ctx, session, books[mid:])

	firstErr := leftErr
	if firstErr == nil {
		firstErr = rightErr
	}
	return leftSynced + rightSynced, append(leftFailed, rightFailed...), firstErr
}

// clearFailureWhenIdle removes the last-failure record, but only once the
// account has no queued or stuck work left in any queue. A drain that
// succeeds while another queue still holds failing or backed-off tasks has
// not fully recovered, so the record stands.
func clearFailureWhenIdle(ctx context.Context, st *store.Store, logger *slog.Logger, accountID string) {
	counts, err := st.PendingCounts(ctx, accountID)
	if err != nil {
		logger.Warn("failed to read pending counts", "error", err.Error())
		return
	}
	if counts.Total > 0 {
		return
	}
	if err := st.ClearSyncFailure(ctx); err != nil {
		logger.Warn("failed to clear sync failure", "error", err.Error())
	}
}

func failureTable(kind domain.OperationKind) string {
	if kind == domain.OpFeedbackInsert {
		return remote.TableBookFeedback
	}
	return remote.TableLibraryBooks
}

// statusCode extracts the HTTP status from a remote error, zero otherwise.
func statusCode(err error) int {
	var reqErr *remote.Error
	if errors.As(err, &reqErr) {
		return reqErr.StatusCode
	}
	return 0
}
