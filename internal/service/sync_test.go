package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
	"github.com/shelfmarkapp/shelfmark-sync/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeRemote implements Remote with scriptable failures.
type fakeRemote struct {
	configured bool

	pingErr     error
	selectErr   error
	selectBooks []domain.Book

	// upsertErr decides per call; nil function means always succeed.
	upsertErr   func(books []domain.Book) error
	insertErr   error
	feedbackErr error

	upsertCalls   [][]domain.Book
	insertCalls   [][]domain.Book
	feedbackCalls []domain.Feedback
	pingCalls     int
}

func (f *fakeRemote) Configured() bool { return f.configured }

func (f *fakeRemote) UpsertBooks(_ context.Context, _, _ string, books []domain.Book) error {
	copied := make([]domain.Book, len(books))
	copy(copied, books)
	f.upsertCalls = append(f.upsertCalls, copied)
	if f.upsertErr != nil {
		return f.upsertErr(books)
	}
	return nil
}

func (f *fakeRemote) InsertBooks(_ context.Context, _, _ string, books []domain.Book) error {
	copied := make([]domain.Book, len(books))
	copy(copied, books)
	f.insertCalls = append(f.insertCalls, copied)
	return f.insertErr
}

func (f *fakeRemote) InsertFeedback(_ context.Context, _, _ string, fb domain.Feedback) error {
	f.feedbackCalls = append(f.feedbackCalls, fb)
	return f.feedbackErr
}

func (f *fakeRemote) SelectBooks(_ context.Context, _, _ string) ([]domain.Book, error) {
	if f.selectErr != nil {
		return nil, f.selectErr
	}
	return f.selectBooks, nil
}

func (f *fakeRemote) Ping(_ context.Context, _ string) error {
	f.pingCalls++
	return f.pingErr
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "shelfmark-svc-*")
	require.NoError(t, err)
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	st, err := store.New(filepath.Join(tmpDir, "db"), nil, store.NewNoopEmitter())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })
	return st
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func queuedLibraryTask(t *testing.T, st *store.Store, accountID string, titles ...string) {
	t.Helper()
	books := make([]domain.Book, 0, len(titles))
	for _, title := range titles {
		books = append(books, domain.Book{
			Title: title, Author: "Author", IdentityKey: "key-" + title,
		})
	}
	require.NoError(t, st.Enqueue(context.Background(), domain.SyncTask{
		AccountID: accountID,
		Kind:      domain.OpLibraryUpsert,
		Books:     books,
	}))
}

var session = Session{AccountID: "acct-1", Token: "tok"}

func TestFlush_CatchUpDrainsEverything(t *testing.T) {
	st := newTestStore(t)
	rem := &fakeRemote{configured: true}
	svc := NewSyncService(st, rem, store.NewNoopEmitter(), testLogger(), 50)

	ctx := context.Background()
	queuedLibraryTask(t, st, "acct-1", "First")
	queuedLibraryTask(t, st, "acct-1", "Second")
	queuedLibraryTask(t, st, "acct-1", "Third")

	result, err := svc.Flush(ctx, session, domain.OpLibraryUpsert)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Synced)
	assert.Zero(t, result.Failed)

	tasks, err := st.ReadQueue(ctx, domain.OpLibraryUpsert)
	require.NoError(t, err)
	assert.Empty(t, tasks)

	// Oldest task reaches the remote first.
	require.Len(t, rem.upsertCalls, 3)
	assert.Equal(t, "First", rem.upsertCalls[0][0].Title)
	assert.Equal(t, "Third", rem.upsertCalls[2][0].Title)

	failure, err := st.GetSyncFailure(ctx)
	require.NoError(t, err)
	assert.Nil(t, failure)
}

func TestFlush_NetworkFailureKeepsTaskAndRecordsFailure(t *testing.T) {
	st := newTestStore(t)
	rem := &fakeRemote{
		configured: true,
		upsertErr:  func([]domain.Book) error { return errors.New("connection refused") },
	}
	svc := NewSyncService(st, rem, store.NewNoopEmitter(), testLogger(), 50)

	ctx := context.Background()
	queuedLibraryTask(t, st, "acct-1", "Stranded")

	result, err := svc.Flush(ctx, session, domain.OpLibraryUpsert)
	require.NoError(t, err)
	assert.Zero(t, result.Synced)
	assert.Equal(t, 1, result.Failed)

	tasks, err := st.ReadQueue(ctx, domain.OpLibraryUpsert)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskPending, tasks[0].Status)
	assert.Equal(t, 1, tasks[0].Attempts)
	assert.Equal(t, "network", tasks[0].LastErrorKind)

	failure, err := st.GetSyncFailure(ctx)
	require.NoError(t, err)
	require.NotNil(t, failure)
	assert.Equal(t, "network", failure.Classification)
}

func TestFlush_BackoffGatesRetry(t *testing.T) {
	st := newTestStore(t)
	rem := &fakeRemote{
		configured: true,
		upsertErr:  func([]domain.Book) error { return errors.New("connection refused") },
	}
	svc := NewSyncService(st, rem, store.NewNoopEmitter(), testLogger(), 50)

	ctx := context.Background()
	queuedLibraryTask(t, st, "acct-1", "Stranded")

	_, err := svc.Flush(ctx, session, domain.OpLibraryUpsert)
	require.NoError(t, err)
	require.Len(t, rem.upsertCalls, 1)

	// Inside the 3s network backoff: the task is not due, not attempted.
	_, err = svc.Flush(ctx, session, domain.OpLibraryUpsert)
	require.NoError(t, err)
	assert.Len(t, rem.upsertCalls, 1)

	tasks, err := st.ReadQueue(ctx, domain.OpLibraryUpsert)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 1, tasks[0].Attempts)

	// Past the window the task is attempted again.
	svc.now = func() time.Time { return time.Now().Add(5 * time.Second) }
	_, err = svc.Flush(ctx, session, domain.OpLibraryUpsert)
	require.NoError(t, err)
	assert.Len(t, rem.upsertCalls, 2)
}

func TestFlush_PermissionFailureRetriedEveryDrain(t *testing.T) {
	st := newTestStore(t)
	rem := &fakeRemote{
		configured: true,
		upsertErr: func([]domain.Book) error {
			return errors.New("new row violates row-level security policy")
		},
	}
	svc := NewSyncService(st, rem, store.NewNoopEmitter(), testLogger(), 50)

	ctx := context.Background()
	queuedLibraryTask(t, st, "acct-1", "Forbidden")

	// Permission failures have no backoff window, only the attempt ceiling.
	for range 2 {
		_, err := svc.Flush(ctx, session, domain.OpLibraryUpsert)
		require.NoError(t, err)
	}
	assert.Len(t, rem.upsertCalls, 2)

	tasks, err := st.ReadQueue(ctx, domain.OpLibraryUpsert)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, 2, tasks[0].Attempts)
	assert.Equal(t, "permission", tasks[0].LastErrorKind)
}

func TestFlush_AttemptCeilingMovesToNeedsAttention(t *testing.T) {
	st := newTestStore(t)
	rem := &fakeRemote{
		configured: true,
		upsertErr:  func([]domain.Book) error { return errors.New("jwt expired") },
	}
	svc := NewSyncService(st, rem, store.NewNoopEmitter(), testLogger(), 50)

	ctx := context.Background()
	queuedLibraryTask(t, st, "acct-1", "Doomed")

	// Auth has no backoff window, so each drain burns one attempt.
	for range domain.MaxSyncAttempts {
		_, err := svc.Flush(ctx, session, domain.OpLibraryUpsert)
		require.NoError(t, err)
	}

	tasks, err := st.ReadQueue(ctx, domain.OpLibraryUpsert)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskNeedsAttention, tasks[0].Status)
	assert.Equal(t, domain.MaxSyncAttempts, tasks[0].Attempts)

	// Exhausted tasks are never attempted again.
	calls := len(rem.upsertCalls)
	_, err = svc.Flush(ctx, session, domain.OpLibraryUpsert)
	require.NoError(t, err)
	assert.Len(t, rem.upsertCalls, calls)
}

func TestFlush_OtherAccountsCarriedOver(t *testing.T) {
	st := newTestStore(t)
	rem := &fakeRemote{configured: true}
	svc := NewSyncService(st, rem, store.NewNoopEmitter(), testLogger(), 50)

	ctx := context.Background()
	queuedLibraryTask(t, st, "acct-1", "Mine")
	queuedLibraryTask(t, st, "acct-2", "Theirs")

	result, err := svc.Flush(ctx, session, domain.OpLibraryUpsert)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)

	tasks, err := st.ReadQueue(ctx, domain.OpLibraryUpsert)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, "acct-2", tasks[0].AccountID)
}

func TestFlush_BatchHalvingIsolatesPoisonRecord(t *testing.T) {
	st := newTestStore(t)
	rem := &fakeRemote{
		configured: true,
		upsertErr: func(books []domain.Book) error {
			for _, b := range books {
				if b.Title == "Poison" {
					return errors.New(`invalid input syntax for type numeric`)
				}
			}
			return nil
		},
	}
	svc := NewSyncService(st, rem, store.NewNoopEmitter(), testLogger(), 50)

	ctx := context.Background()
	queuedLibraryTask(t, st, "acct-1", "Good-1", "Poison", "Good-2")

	result, err := svc.Flush(ctx, session, domain.OpLibraryUpsert)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, 1, result.Failed)

	tasks, err := st.ReadQueue(ctx, domain.OpLibraryUpsert)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Len(t, tasks[0].Books, 1)
	assert.Equal(t, "Poison", tasks[0].Books[0].Title)
	assert.Equal(t, 1, tasks[0].Attempts)
}

func TestFlush_FeedbackQueue(t *testing.T) {
	st := newTestStore(t)
	rem := &fakeRemote{configured: true}
	svc := NewSyncService(st, rem, store.NewNoopEmitter(), testLogger(), 50)

	ctx := context.Background()
	require.NoError(t, st.Enqueue(ctx, domain.SyncTask{
		AccountID: "acct-1",
		Kind:      domain.OpFeedbackInsert,
		Feedback:  &domain.Feedback{IdentityKey: "k", Verdict: "liked"},
	}))

	result, err := svc.Flush(ctx, session, domain.OpFeedbackInsert)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	require.Len(t, rem.feedbackCalls, 1)
	assert.Equal(t, "liked", rem.feedbackCalls[0].Verdict)
}

func TestFlushAll_NoSessionIsNoOp(t *testing.T) {
	st := newTestStore(t)
	rem := &fakeRemote{configured: true}
	svc := NewSyncService(st, rem, store.NewNoopEmitter(), testLogger(), 50)

	ctx := context.Background()
	queuedLibraryTask(t, st, "acct-1", "Waiting")

	result, err := svc.FlushAll(ctx, Session{})
	require.NoError(t, err)
	assert.Zero(t, result.Synced)
	assert.Zero(t, result.Failed)
	assert.NotEmpty(t, result.ErrorMessages)
	assert.Empty(t, rem.upsertCalls)
}

func TestFlushAll_FailureSurvivesCleanFeedbackDrain(t *testing.T) {
	st := newTestStore(t)
	rem := &fakeRemote{
		configured: true,
		upsertErr: func([]domain.Book) error {
			return errors.New("new row violates row-level security policy")
		},
	}
	svc := NewSyncService(st, rem, store.NewNoopEmitter(), testLogger(), 50)

	ctx := context.Background()
	queuedLibraryTask(t, st, "acct-1", "Forbidden")
	require.NoError(t, st.Enqueue(ctx, domain.SyncTask{
		AccountID: "acct-1",
		Kind:      domain.OpFeedbackInsert,
		Feedback:  &domain.Feedback{IdentityKey: "k", Verdict: "liked"},
	}))

	result, err := svc.FlushAll(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Synced)
	assert.Equal(t, 1, result.Failed)

	// The feedback queue drained clean, but the library task is still
	// failing: its failure record must survive the clean drain.
	failure, err := st.GetSyncFailure(ctx)
	require.NoError(t, err)
	require.NotNil(t, failure)
	assert.Equal(t, "permission", failure.Classification)
}

func TestFlush_ClearsFailureOnlyWhenAccountIdle(t *testing.T) {
	st := newTestStore(t)
	rem := &fakeRemote{configured: true}
	svc := NewSyncService(st, rem, store.NewNoopEmitter(), testLogger(), 50)

	ctx := context.Background()
	queuedLibraryTask(t, st, "acct-1", "Waiting")
	require.NoError(t, st.Enqueue(ctx, domain.SyncTask{
		AccountID: "acct-1",
		Kind:      domain.OpFeedbackInsert,
		Feedback:  &domain.Feedback{IdentityKey: "k", Verdict: "mixed"},
	}))
	require.NoError(t, st.SetSyncFailure(ctx, domain.SyncFailure{
		Message:        "connection refused",
		Classification: "network",
		AccountID:      "acct-1",
	}))

	// The library queue drains clean, but feedback work is still queued.
	_, err := svc.Flush(ctx, session, domain.OpLibraryUpsert)
	require.NoError(t, err)

	failure, err := st.GetSyncFailure(ctx)
	require.NoError(t, err)
	assert.NotNil(t, failure)

	// Once the last of the account's work drains, the record clears.
	_, err = svc.Flush(ctx, session, domain.OpFeedbackInsert)
	require.NoError(t, err)

	failure, err = st.GetSyncFailure(ctx)
	require.NoError(t, err)
	assert.Nil(t, failure)
}

func TestFlushAll_DrainsBothKinds(t *testing.T) {
	st := newTestStore(t)
	rem := &fakeRemote{configured: true}
	svc := NewSyncService(st, rem, store.NewNoopEmitter(), testLogger(), 50)

	ctx := context.Background()
	queuedLibraryTask(t, st, "acct-1", "A", "B")
	require.NoError(t, st.Enqueue(ctx, domain.SyncTask{
		AccountID: "acct-1",
		Kind:      domain.OpFeedbackInsert,
		Feedback:  &domain.Feedback{IdentityKey: "k", Verdict: "disliked"},
	}))

	result, err := svc.FlushAll(ctx, session)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Synced)
	assert.Zero(t, result.Failed)
}
