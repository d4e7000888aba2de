package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
	"github.com/shelfmarkapp/shelfmark-sync/internal/id"
	"github.com/shelfmarkapp/shelfmark-sync/internal/sse"
)

// ErrInvalidKind is returned when a task names an unknown operation kind.
var ErrInvalidKind = errors.New("invalid operation kind")

// queueKey returns the storage key for one operation kind's queue.
func queueKey(kind domain.OperationKind) []byte {
	return []byte("queue:" + string(kind))
}

// ReadQueue returns the persisted queue for one operation kind, oldest work
// last (new tasks are prepended, the drain walks the slice back to front).
//
// It never fails on bad persisted data: an absent or unreadable queue reads
// as empty, and individual tasks are normalized so the rest of the daemon can
// assume well-formed records. A task with no account id cannot ever be
// synced, so it surfaces as needs_attention with its attempts exhausted
// rather than silently occupying the queue.
func (s *Store) ReadQueue(_ context.Context, kind domain.OperationKind) ([]domain.SyncTask, error) {
	if !kind.Valid() {
		return nil, fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}

	var tasks []domain.SyncTask
	err := s.get(queueKey(kind), &tasks)
	if err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return []domain.SyncTask{}, nil
		}
		if s.logger != nil {
			s.logger.Warn("unreadable queue, treating as empty",
				"kind", string(kind), "error", err.Error())
		}
		return []domain.SyncTask{}, nil
	}

	for i := range tasks {
		normalizeTask(&tasks[i], kind)
	}
	return tasks, nil
}

// WriteQueue replaces the persisted queue for one operation kind and
// broadcasts the new pending counts.
func (s *Store) WriteQueue(ctx context.Context, kind domain.OperationKind, tasks []domain.SyncTask) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidKind, kind)
	}
	if tasks == nil {
		tasks = []domain.SyncTask{}
	}

	if err := s.set(queueKey(kind), tasks); err != nil {
		return fmt.Errorf("failed to write queue %s: %w", kind, err)
	}

	s.emitQueueChanged(ctx)
	return nil
}

// Enqueue adds a task to the front of its kind's queue. Missing bookkeeping
// fields are filled in: id, created timestamp, pending status, zero attempts.
func (s *Store) Enqueue(ctx context.Context, task domain.SyncTask) error {
	if !task.Kind.Valid() {
		return fmt.Errorf("%w: %s", ErrInvalidKind, task.Kind)
	}

	if task.ID == "" {
		taskID, err := id.Generate("task")
		if err != nil {
			return fmt.Errorf("failed to generate task id: %w", err)
		}
		task.ID = taskID
	}
	if task.CreatedAt.IsZero() {
		task.CreatedAt = time.Now()
	}
	task.Status = domain.TaskPending
	task.Attempts = 0
	normalizeTask(&task, task.Kind)

	tasks, err := s.ReadQueue(ctx, task.Kind)
	if err != nil {
		return err
	}

	tasks = append([]domain.SyncTask{task}, tasks...)

	if err := s.set(queueKey(task.Kind), tasks); err != nil {
		return fmt.Errorf("failed to enqueue task: %w", err)
	}

	if s.logger != nil {
		s.logger.Debug("task enqueued",
			"task_id", task.ID,
			"kind", string(task.Kind),
			"items", task.ItemCount())
	}

	s.emitQueueChanged(ctx)
	return nil
}

// PendingCounts reports how much work is waiting for one account, per kind
// and overall. Orphaned tasks belong to no account and count for everyone,
// matching NeedsAttention. An empty accountID counts every account's work;
// the queue change broadcast uses that since SSE clients are not scoped.
func (s *Store) PendingCounts(ctx context.Context, accountID string) (domain.PendingCounts, error) {
	counts := domain.PendingCounts{ByKind: make(map[domain.OperationKind]int)}

	for _, kind := range domain.OperationKinds {
		tasks, err := s.ReadQueue(ctx, kind)
		if err != nil {
			return domain.PendingCounts{}, err
		}

		for _, task := range tasks {
			if accountID != "" && task.AccountID != accountID && !task.Orphaned() {
				continue
			}
			counts.Total++
			if task.Status == domain.TaskNeedsAttention {
				counts.NeedsAttention++
				continue
			}
			counts.ByKind[kind]++
		}
	}

	return counts, nil
}

// NeedsAttention returns the tasks stuck in needs_attention for an account,
// across all kinds. Orphaned tasks belong to no account and show up for
// everyone.
func (s *Store) NeedsAttention(ctx context.Context, accountID string) ([]domain.SyncTask, error) {
	var stuck []domain.SyncTask

	for _, kind := range domain.OperationKinds {
		tasks, err := s.ReadQueue(ctx, kind)
		if err != nil {
			return nil, err
		}

		for _, task := range tasks {
			if task.Status != domain.TaskNeedsAttention {
				continue
			}
			if task.AccountID != accountID && !task.Orphaned() {
				continue
			}
			stuck = append(stuck, task)
		}
	}

	return stuck, nil
}

// DismissNeedsAttention drops an account's stuck tasks from every queue and
// returns how many were removed. Other accounts' tasks are untouched.
func (s *Store) DismissNeedsAttention(ctx context.Context, accountID string) (int, error) {
	removed := 0

	for _, kind := range domain.OperationKinds {
		tasks, err := s.ReadQueue(ctx, kind)
		if err != nil {
			return removed, err
		}

		kept := tasks[:0:0]
		for _, task := range tasks {
			dismissable := task.Status == domain.TaskNeedsAttention &&
				(task.AccountID == accountID || task.Orphaned())
			if dismissable {
				removed++
				continue
			}
			kept = append(kept, task)
		}

		if len(kept) == len(tasks) {
			continue
		}
		if kept == nil {
			kept = []domain.SyncTask{}
		}
		if err := s.set(queueKey(kind), kept); err != nil {
			return removed, fmt.Errorf("failed to rewrite queue %s: %w", kind, err)
		}
	}

	if removed > 0 {
		if s.logger != nil {
			s.logger.Info("dismissed stuck tasks",
				"account_id", accountID, "removed", removed)
		}
		s.emitQueueChanged(ctx)
	}

	return removed, nil
}

// normalizeTask repairs a task read from disk or handed in by a caller.
func normalizeTask(task *domain.SyncTask, kind domain.OperationKind) {
	if task.Kind == "" {
		task.Kind = kind
	}
	if task.Status != domain.TaskPending && task.Status != domain.TaskNeedsAttention {
		task.Status = domain.TaskPending
	}
	if task.Attempts < 0 {
		task.Attempts = 0
	}
	if task.Orphaned() {
		task.Status = domain.TaskNeedsAttention
		task.Attempts = domain.MaxSyncAttempts
		if task.LastError == "" {
			task.LastError = "task has no account and can never be synced"
		}
	}
}

// emitQueueChanged broadcasts fresh pending counts.
func (s *Store) emitQueueChanged(ctx context.Context) {
	counts, err := s.PendingCounts(ctx, "")
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("failed to compute pending counts for event", "error", err.Error())
		}
		return
	}
	s.emit(sse.NewQueueChangedEvent(counts))
}
