package service

import (
	"context"
	"errors"
	"testing"

	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
	domainerrors "github.com/shelfmarkapp/shelfmark-sync/internal/errors"
	"github.com/shelfmarkapp/shelfmark-sync/internal/store"
	"github.com/shelfmarkapp/shelfmark-sync/internal/validation"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newLibraryService(t *testing.T, rem *fakeRemote) (*LibraryService, *store.Store) {
	t.Helper()
	st := newTestStore(t)
	svc := NewLibraryService(st, rem, validation.New(), testLogger())
	return svc, st
}

func TestUpsertBooks_SignedInPushesImmediately(t *testing.T) {
	rem := &fakeRemote{configured: true}
	svc, st := newLibraryService(t, rem)

	ctx := context.Background()
	result, err := svc.UpsertBooks(ctx, session, []domain.Book{
		{Title: "Dune", Author: "Frank Herbert"},
	}, "manual")
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, result.Outcome)
	assert.Equal(t, 1, result.Count)

	require.Len(t, rem.upsertCalls, 1)
	pushed := rem.upsertCalls[0][0]
	assert.NotEmpty(t, pushed.IdentityKey)
	assert.Equal(t, "acct-1", pushed.AccountID)
	assert.Equal(t, "manual", pushed.Source)

	// The local cache holds the record regardless of the push.
	cached, err := st.CachedBooks(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "Dune", cached[0].Title)

	// Nothing queued.
	tasks, err := st.ReadQueue(ctx, domain.OpLibraryUpsert)
	require.NoError(t, err)
	assert.Empty(t, tasks)
}

func TestUpsertBooks_PushFailureFallsBackToQueue(t *testing.T) {
	rem := &fakeRemote{
		configured: true,
		upsertErr:  func([]domain.Book) error { return errors.New("connection refused") },
	}
	svc, st := newLibraryService(t, rem)

	ctx := context.Background()
	result, err := svc.UpsertBooks(ctx, session, []domain.Book{
		{Title: "Dune", Author: "Frank Herbert"},
	}, "manual")
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, result.Outcome)

	tasks, err := st.ReadQueue(ctx, domain.OpLibraryUpsert)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskPending, tasks[0].Status)

	failure, err := st.GetSyncFailure(ctx)
	require.NoError(t, err)
	require.NotNil(t, failure)
	assert.Equal(t, "network", failure.Classification)
}

func TestUpsertBooks_SignedOutQueuesOrphan(t *testing.T) {
	rem := &fakeRemote{configured: true}
	svc, st := newLibraryService(t, rem)

	ctx := context.Background()
	result, err := svc.UpsertBooks(ctx, Session{}, []domain.Book{
		{Title: "Dune", Author: "Frank Herbert"},
	}, "manual")
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, result.Outcome)
	assert.Empty(t, rem.upsertCalls)

	// A task with no account can never sync; it surfaces for review instead.
	tasks, err := st.ReadQueue(ctx, domain.OpLibraryUpsert)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	assert.Equal(t, domain.TaskNeedsAttention, tasks[0].Status)
	assert.Equal(t, domain.MaxSyncAttempts, tasks[0].Attempts)
}

func TestUpsertBooks_ValidationRejectsMissingAuthor(t *testing.T) {
	svc, _ := newLibraryService(t, &fakeRemote{configured: true})

	_, err := svc.UpsertBooks(context.Background(), session, []domain.Book{
		{Title: "Dune"},
	}, "manual")
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
}

func TestUpsertBooks_DuplicatesCollapseAndMerge(t *testing.T) {
	rem := &fakeRemote{configured: true}
	svc, st := newLibraryService(t, rem)

	ctx := context.Background()
	pages := 412
	result, err := svc.UpsertBooks(ctx, session, []domain.Book{
		{Title: "Dune", Author: "Frank Herbert", Genre: "SF"},
		{Title: "  dune ", Author: "FRANK  HERBERT", PageCount: &pages},
	}, "csv_import")
	require.NoError(t, err)
	assert.Equal(t, 1, result.Count)
	assert.Equal(t, 1, result.Collapsed)

	cached, err := st.CachedBooks(ctx, "acct-1")
	require.NoError(t, err)
	require.Len(t, cached, 1)
	assert.Equal(t, "SF", cached[0].Genre)
	require.NotNil(t, cached[0].PageCount)
	assert.Equal(t, 412, *cached[0].PageCount)
}

func TestLoad_UnhealthyRemoteKeepsLocal(t *testing.T) {
	rem := &fakeRemote{
		configured: true,
		pingErr:    errors.New("no such host"),
	}
	svc, st := newLibraryService(t, rem)

	ctx := context.Background()
	require.NoError(t, st.ReplaceCachedBooks(ctx, "acct-1", []domain.Book{
		{Title: "Local Only", Author: "Me", IdentityKey: "k"},
	}))

	result, err := svc.Load(ctx, session, false)
	require.NoError(t, err)
	assert.Equal(t, LoadKeptLocal, result.Outcome)
	require.Len(t, result.Books, 1)
	assert.Equal(t, "Local Only", result.Books[0].Title)

	failure, err := st.GetSyncFailure(ctx)
	require.NoError(t, err)
	require.NotNil(t, failure)
	assert.Equal(t, "network", failure.Classification)
}

func TestLoad_PendingWorkRequiresConfirm(t *testing.T) {
	rem := &fakeRemote{
		configured:  true,
		selectBooks: []domain.Book{{Title: "Remote", Author: "A", IdentityKey: "r"}},
	}
	svc, st := newLibraryService(t, rem)

	ctx := context.Background()
	queuedLibraryTask(t, st, "acct-1", "Unsynced")

	result, err := svc.Load(ctx, session, false)
	require.NoError(t, err)
	assert.Equal(t, LoadConfirmRequired, result.Outcome)
	assert.Equal(t, 1, result.PendingTotal)

	// With explicit confirmation the remote snapshot wins.
	result, err = svc.Load(ctx, session, true)
	require.NoError(t, err)
	assert.Equal(t, LoadReplaced, result.Outcome)
	require.Len(t, result.Books, 1)
	assert.Equal(t, "Remote", result.Books[0].Title)
}

func TestLoad_OtherAccountsWorkDoesNotGate(t *testing.T) {
	rem := &fakeRemote{
		configured:  true,
		selectBooks: []domain.Book{{Title: "Remote", Author: "A", IdentityKey: "r"}},
	}
	svc, st := newLibraryService(t, rem)

	ctx := context.Background()
	queuedLibraryTask(t, st, "acct-OTHER", "Not Mine")

	// Another account's queued work must not force this account to confirm.
	result, err := svc.Load(ctx, session, false)
	require.NoError(t, err)
	assert.Equal(t, LoadReplaced, result.Outcome)
}

func TestLoad_HealthyRemoteReplacesCache(t *testing.T) {
	rem := &fakeRemote{
		configured: true,
		selectBooks: []domain.Book{
			{Title: "Remote One", Author: "A", IdentityKey: "r1"},
			{Title: "Remote Two", Author: "B", IdentityKey: "r2"},
		},
	}
	svc, st := newLibraryService(t, rem)

	ctx := context.Background()
	result, err := svc.Load(ctx, session, false)
	require.NoError(t, err)
	assert.Equal(t, LoadReplaced, result.Outcome)

	cached, err := st.CachedBooks(ctx, "acct-1")
	require.NoError(t, err)
	assert.Len(t, cached, 2)
}

func TestLoad_EmptyRemoteSeededFromLocal(t *testing.T) {
	rem := &fakeRemote{configured: true}
	svc, st := newLibraryService(t, rem)

	ctx := context.Background()
	require.NoError(t, st.ReplaceCachedBooks(ctx, "acct-1", []domain.Book{
		{Title: "Dune", Author: "Frank Herbert"},
		{Title: "Hyperion", Author: "Dan Simmons"},
	}))

	result, err := svc.Load(ctx, session, false)
	require.NoError(t, err)
	assert.Equal(t, LoadSeeded, result.Outcome)

	require.Len(t, rem.insertCalls, 1)
	assert.Len(t, rem.insertCalls[0], 2)
	for _, book := range rem.insertCalls[0] {
		assert.Equal(t, "acct-1", book.AccountID)
		assert.NotEmpty(t, book.IdentityKey)
	}
}

func TestSubmitFeedback(t *testing.T) {
	rem := &fakeRemote{configured: true}
	svc, _ := newLibraryService(t, rem)

	ctx := context.Background()
	result, err := svc.SubmitFeedback(ctx, session, domain.Feedback{
		IdentityKey: "k1",
		Verdict:     "liked",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeSynced, result.Outcome)
	require.Len(t, rem.feedbackCalls, 1)

	_, err = svc.SubmitFeedback(ctx, session, domain.Feedback{
		IdentityKey: "k1",
		Verdict:     "loved-it-so-much",
	})
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrValidation))
}

func TestSubmitFeedback_OfflineQueues(t *testing.T) {
	rem := &fakeRemote{
		configured:  true,
		feedbackErr: errors.New("fetch failed"),
	}
	svc, st := newLibraryService(t, rem)

	ctx := context.Background()
	result, err := svc.SubmitFeedback(ctx, session, domain.Feedback{
		IdentityKey: "k1",
		Verdict:     "disliked",
	})
	require.NoError(t, err)
	assert.Equal(t, OutcomeQueued, result.Outcome)

	tasks, err := st.ReadQueue(ctx, domain.OpFeedbackInsert)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.NotNil(t, tasks[0].Feedback)
	assert.Equal(t, "disliked", tasks[0].Feedback.Verdict)
}
