package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shelfmarkapp/shelfmark-sync/internal/classify"
	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
	"github.com/shelfmarkapp/shelfmark-sync/internal/identity"
	"github.com/shelfmarkapp/shelfmark-sync/internal/merge"
	"github.com/shelfmarkapp/shelfmark-sync/internal/store"
	"github.com/shelfmarkapp/shelfmark-sync/internal/validation"
)

// Write outcomes reported back to the caller.
const (
	// OutcomeSynced means the change reached the remote store immediately.
	OutcomeSynced = "synced"
	// OutcomeQueued means the change is durable locally and will sync later.
	OutcomeQueued = "queued"
)

// Load outcomes.
const (
	// LoadReplaced means the remote library replaced the local cache.
	LoadReplaced = "replaced"
	// LoadSeeded means an empty remote account was seeded from local data
	// before reloading.
	LoadSeeded = "seeded"
	// LoadKeptLocal means the remote store was unhealthy, so local data stands.
	LoadKeptLocal = "kept_local"
	// LoadConfirmRequired means unsynced local changes exist and the caller
	// must explicitly confirm before they are replaced.
	LoadConfirmRequired = "confirm_required"
)

// UpsertResult reports what happened to a batch of writes.
type UpsertResult struct {
	Outcome   string `json:"outcome"`
	Count     int    `json:"count"`
	Collapsed int    `json:"collapsed,omitempty"` // duplicates folded inside the batch
}

// LoadResult reports a library load and the books now held locally.
type LoadResult struct {
	Outcome      string        `json:"outcome"`
	Books        []domain.Book `json:"books"`
	PendingTotal int           `json:"pending_total,omitempty"`
}

// bookInput mirrors the validated surface of a book write.
type bookInput struct {
	Title   string   `json:"title"   validate:"required"`
	Author  string   `json:"author"  validate:"required"`
	Rating  *float64 `json:"rating"  validate:"omitempty,gte=0,lte=5"`
	Status  string   `json:"status"  validate:"omitempty,oneof=reading finished wishlist abandoned owned"`
}

// feedbackInput mirrors the validated surface of a feedback write.
type feedbackInput struct {
	IdentityKey string `json:"identity_key" validate:"required"`
	Verdict     string `json:"verdict"      validate:"required,oneof=liked disliked mixed"`
}

// LibraryService owns the local library cache and the offline-first write
// path: merge locally, push remotely when possible, queue otherwise.
type LibraryService struct {
	store     *store.Store
	remote    Remote
	validator *validation.Validator
	logger    *slog.Logger
}

// NewLibraryService creates a new library service.
func NewLibraryService(st *store.Store, rem Remote, validator *validation.Validator, logger *slog.Logger) *LibraryService {
	return &LibraryService{
		store:     st,
		remote:    rem,
		validator: validator,
		logger:    logger,
	}
}

// UpsertBooks applies a batch of book writes. The batch is validated, keyed,
// deduplicated and merged into the local cache first; the write is then
// pushed to the remote store when a session exists, or queued when it does
// not or the push fails. Local durability never depends on the network.
func (s *LibraryService) UpsertBooks(ctx context.Context, session Session, incoming []domain.Book, source string) (UpsertResult, error) {
	if len(incoming) == 0 {
		return UpsertResult{Outcome: OutcomeSynced}, nil
	}

	for i := range incoming {
		input := bookInput{
			Title:  incoming[i].Title,
			Author: incoming[i].Author,
			Rating: incoming[i].Rating,
			Status: incoming[i].Status,
		}
		if err := s.validator.Validate(input); err != nil {
			return UpsertResult{}, err
		}
	}

	now := time.Now()
	for i := range incoming {
		incoming[i].AccountID = session.AccountID
		incoming[i].IdentityKey = identity.Key(incoming[i])
		if incoming[i].Source == "" {
			incoming[i].Source = source
		}
		if incoming[i].CreatedAt.IsZero() {
			incoming[i].CreatedAt = now
		}
		incoming[i].UpdatedAt = now
	}

	batch, collapsed := merge.DedupeBatch(incoming)

	merged, err := s.mergeIntoCache(ctx, session.AccountID, batch)
	if err != nil {
		return UpsertResult{}, err
	}

	result := UpsertResult{Count: len(merged), Collapsed: collapsed}

	// Push now when we can; otherwise the queue carries it.
	if session.Authenticated() && s.remote.Configured() {
		pushErr := s.remote.UpsertBooks(ctx, session.Token, session.AccountID, merged)
		if pushErr == nil {
			result.Outcome = OutcomeSynced
			clearFailureWhenIdle(ctx, s.store, s.logger, session.AccountID)
			return result, nil
		}

		class := classify.Classify(pushErr)
		s.logger.Info("immediate push failed, queueing",
			"classification", string(class), "error", pushErr.Error())

		failure := domain.SyncFailure{
			Message:        pushErr.Error(),
			Classification: string(class),
			Operation:      string(domain.OpLibraryUpsert),
			StatusCode:     statusCode(pushErr),
			AccountID:      session.AccountID,
			HasSession:     session.Token != "",
		}
		if err := s.store.SetSyncFailure(ctx, failure); err != nil {
			s.logger.Warn("failed to record sync failure", "error", err.Error())
		}
	}

	task := domain.SyncTask{
		AccountID: session.AccountID,
		Kind:      domain.OpLibraryUpsert,
		Books:     merged,
		Source:    source,
	}
	if err := s.store.Enqueue(ctx, task); err != nil {
		return UpsertResult{}, err
	}

	result.Outcome = OutcomeQueued
	return result, nil
}

// SubmitFeedback records one piece of reading feedback, pushed immediately
// when possible and queued otherwise.
func (s *LibraryService) SubmitFeedback(ctx context.Context, session Session, fb domain.Feedback) (UpsertResult, error) {
	input := feedbackInput{IdentityKey: fb.IdentityKey, Verdict: fb.Verdict}
	if err := s.validator.Validate(input); err != nil {
		return UpsertResult{}, err
	}

	if fb.CreatedAt.IsZero() {
		fb.CreatedAt = time.Now()
	}

	if session.Authenticated() && s.remote.Configured() {
		pushErr := s.remote.InsertFeedback(ctx, session.Token, session.AccountID, fb)
		if pushErr == nil {
			return UpsertResult{Outcome: OutcomeSynced, Count: 1}, nil
		}
		class := classify.Classify(pushErr)
		s.logger.Info("feedback push failed, queueing",
			"classification", string(class), "error", pushErr.Error())
	}

	task := domain.SyncTask{
		AccountID: session.AccountID,
		Kind:      domain.OpFeedbackInsert,
		Feedback:  &fb,
	}
	if err := s.store.Enqueue(ctx, task); err != nil {
		return UpsertResult{}, err
	}
	return UpsertResult{Outcome: OutcomeQueued, Count: 1}, nil
}

// Books returns the local cache for the session's account.
func (s *LibraryService) Books(ctx context.Context, session Session) ([]domain.Book, error) {
	return s.store.CachedBooks(ctx, session.AccountID)
}

// Load reconciles the local cache with the remote library.
//
// The remote store must prove itself healthy before local data is touched,
// and unsynced local changes are never silently discarded: the caller has to
// pass confirmReplace once pending work exists. A healthy but empty remote
// account with local books is treated as this device's first sync and seeded
// from local data instead of being allowed to wipe it.
func (s *LibraryService) Load(ctx context.Context, session Session, confirmReplace bool) (LoadResult, error) {
	local, err := s.store.CachedBooks(ctx, session.AccountID)
	if err != nil {
		return LoadResult{}, err
	}

	if !session.Authenticated() || !s.remote.Configured() {
		return LoadResult{Outcome: LoadKeptLocal, Books: local}, nil
	}

	if pingErr := s.remote.Ping(ctx, session.Token); pingErr != nil {
		class := classify.Classify(pingErr)
		s.logger.Warn("load aborted, remote unhealthy",
			"classification", string(class), "error", pingErr.Error())

		failure := domain.SyncFailure{
			Message:        pingErr.Error(),
			Classification: string(class),
			Operation:      "select",
			AccountID:      session.AccountID,
			HasSession:     session.Token != "",
		}
		if err := s.store.SetSyncFailure(ctx, failure); err != nil {
			s.logger.Warn("failed to record sync failure", "error", err.Error())
		}
		return LoadResult{Outcome: LoadKeptLocal, Books: local}, nil
	}

	counts, err := s.store.PendingCounts(ctx, session.AccountID)
	if err != nil {
		return LoadResult{}, err
	}
	pending := counts.Total - counts.NeedsAttention
	if pending > 0 && !confirmReplace {
		return LoadResult{Outcome: LoadConfirmRequired, Books: local, PendingTotal: pending}, nil
	}

	remoteBooks, err := s.remote.SelectBooks(ctx, session.Token, session.AccountID)
	if err != nil {
		return LoadResult{Outcome: LoadKeptLocal, Books: local}, nil
	}

	if len(remoteBooks) == 0 && len(local) > 0 {
		return s.seedRemote(ctx, session, local)
	}

	if err := s.store.ReplaceCachedBooks(ctx, session.AccountID, remoteBooks); err != nil {
		return LoadResult{}, err
	}
	clearFailureWhenIdle(ctx, s.store, s.logger, session.AccountID)

	return LoadResult{Outcome: LoadReplaced, Books: remoteBooks}, nil
}

// seedRemote pushes the local library into an empty remote account, then
// reloads so local state reflects what the server actually stored.
func (s *LibraryService) seedRemote(ctx context.Context, session Session, local []domain.Book) (LoadResult, error) {
	seed := make([]domain.Book, len(local))
	copy(seed, local)
	for i := range seed {
		seed[i].AccountID = session.AccountID
		if seed[i].IdentityKey == "" {
			seed[i].IdentityKey = identity.Key(seed[i])
		}
	}

	if err := s.remote.InsertBooks(ctx, session.Token, session.AccountID, seed); err != nil {
		s.logger.Warn("first-sync seed failed, keeping local library", "error", err.Error())
		return LoadResult{Outcome: LoadKeptLocal, Books: local}, nil
	}

	s.logger.Info("seeded empty remote account from local library",
		"account_id", session.AccountID, "books", len(seed))

	remoteBooks, err := s.remote.SelectBooks(ctx, session.Token, session.AccountID)
	if err != nil {
		return LoadResult{Outcome: LoadSeeded, Books: local}, nil
	}

	if err := s.store.ReplaceCachedBooks(ctx, session.AccountID, remoteBooks); err != nil {
		return LoadResult{}, err
	}
	return LoadResult{Outcome: LoadSeeded, Books: remoteBooks}, nil
}

// mergeIntoCache folds a keyed batch into the account's cached library and
// returns the post-merge records for the batch's identity keys.
func (s *LibraryService) mergeIntoCache(ctx context.Context, accountID string, batch []domain.Book) ([]domain.Book, error) {
	cached, err := s.store.CachedBooks(ctx, accountID)
	if err != nil {
		return nil, err
	}

	byKey := make(map[string]int, len(cached))
	for i := range cached {
		byKey[cached[i].IdentityKey] = i
	}

	merged := make([]domain.Book, 0, len(batch))
	for _, book := range batch {
		if idx, ok := byKey[book.IdentityKey]; ok {
			cached[idx] = merge.Merge(cached[idx], book)
			merged = append(merged, cached[idx])
			continue
		}
		byKey[book.IdentityKey] = len(cached)
		cached = append(cached, book)
		merged = append(merged, book)
	}

	if err := s.store.UpdateCachedBooks(ctx, accountID, cached); err != nil {
		return nil, err
	}
	return merged, nil
}
