package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
	domainerrors "github.com/shelfmarkapp/shelfmark-sync/internal/errors"
	"github.com/shelfmarkapp/shelfmark-sync/internal/service"
)

func (s *Server) registerSyncRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "flushQueues",
		Method:      http.MethodPost,
		Path:        "/api/v1/sync/flush",
		Summary:     "Flush pending changes",
		Description: "Drains the durable queues against the sync server, oldest change first",
		Tags:        []string{"Sync"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleFlush)

	huma.Register(s.api, huma.Operation{
		OperationID: "getPendingCounts",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/pending",
		Summary:     "Get pending change counts",
		Tags:        []string{"Sync"},
	}, s.handlePendingCounts)

	huma.Register(s.api, huma.Operation{
		OperationID: "listAttentionItems",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/attention",
		Summary:     "List changes that need attention",
		Description: "Returns queued changes that exhausted their retries, with plain-language explanations",
		Tags:        []string{"Sync"},
	}, s.handleAttentionItems)

	huma.Register(s.api, huma.Operation{
		OperationID: "dismissAttentionItems",
		Method:      http.MethodDelete,
		Path:        "/api/v1/sync/attention",
		Summary:     "Dismiss changes that need attention",
		Tags:        []string{"Sync"},
	}, s.handleDismissAttention)

	huma.Register(s.api, huma.Operation{
		OperationID: "getLastSyncFailure",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/failure",
		Summary:     "Get the last sync failure",
		Tags:        []string{"Sync"},
	}, s.handleLastFailure)

	huma.Register(s.api, huma.Operation{
		OperationID: "clearLastSyncFailure",
		Method:      http.MethodDelete,
		Path:        "/api/v1/sync/failure",
		Summary:     "Clear the last sync failure",
		Tags:        []string{"Sync"},
	}, s.handleClearFailure)

	huma.Register(s.api, huma.Operation{
		OperationID: "getSyncHealth",
		Method:      http.MethodGet,
		Path:        "/api/v1/sync/health",
		Summary:     "Probe sync server health",
		Description: "Performs a minimal remote read and reports whether syncing is currently possible",
		Tags:        []string{"Sync"},
	}, s.handleSyncHealth)
}

// === DTOs ===

// FlushInput contains parameters for a manual flush.
type FlushInput struct {
	Authorization string `header:"Authorization"`
	AccountID     string `header:"X-Account-Id"`
	Kind          string `query:"kind" doc:"Limit the flush to one queue (library_upsert, feedback_insert)"`
}

// FlushOutput wraps the flush result for Huma.
type FlushOutput struct {
	Body domain.FlushResult
}

// PendingCountsInput identifies whose queued work to count.
type PendingCountsInput struct {
	AccountID string `header:"X-Account-Id"`
}

// PendingCountsOutput wraps queue counts for Huma.
type PendingCountsOutput struct {
	Body domain.PendingCounts
}

// AttentionItemsInput contains parameters for listing stuck changes.
type AttentionItemsInput struct {
	Authorization string `header:"Authorization"`
	AccountID     string `header:"X-Account-Id"`
}

// AttentionItemsResponse contains the account's stuck changes.
type AttentionItemsResponse struct {
	Items []domain.AttentionItem `json:"items" doc:"Stuck changes, oldest first"`
	Count int                    `json:"count" doc:"Number of stuck changes"`
}

// AttentionItemsOutput wraps the attention list for Huma.
type AttentionItemsOutput struct {
	Body AttentionItemsResponse
}

// DismissAttentionInput contains parameters for dismissing stuck changes.
type DismissAttentionInput struct {
	Authorization string `header:"Authorization"`
	AccountID     string `header:"X-Account-Id"`
}

// DismissAttentionResponse reports how many changes were dismissed.
type DismissAttentionResponse struct {
	Dismissed int `json:"dismissed" doc:"Number of changes removed"`
}

// DismissAttentionOutput wraps the dismissal result for Huma.
type DismissAttentionOutput struct {
	Body DismissAttentionResponse
}

// LastFailureInput is empty, the failure record is a device-wide singleton.
type LastFailureInput struct{}

// LastFailureResponse contains the most recent unrecovered sync failure.
type LastFailureResponse struct {
	Failure *domain.SyncFailure `json:"failure" doc:"Last failure, null when the last sync succeeded"`
}

// LastFailureOutput wraps the failure record for Huma.
type LastFailureOutput struct {
	Body LastFailureResponse
}

// ClearFailureInput is empty.
type ClearFailureInput struct{}

// ClearFailureOutput is an empty 204 response.
type ClearFailureOutput struct {
	Status int
}

// SyncHealthInput contains parameters for the health probe.
type SyncHealthInput struct {
	Authorization string `header:"Authorization"`
	AccountID     string `header:"X-Account-Id"`
}

// SyncHealthOutput wraps the health status for Huma.
type SyncHealthOutput struct {
	Body service.HealthStatus
}

// === Handlers ===

func (s *Server) handleFlush(ctx context.Context, input *FlushInput) (*FlushOutput, error) {
	session := sessionFrom(input.Authorization, input.AccountID)
	s.services.Sessions.Remember(session)

	var (
		result domain.FlushResult
		err    error
	)
	if input.Kind == "" {
		result, err = s.services.Sync.FlushAll(ctx, session)
	} else {
		kind := domain.OperationKind(input.Kind)
		if !kind.Valid() {
			return nil, mapError(domainerrors.Validationf("unknown queue kind %q", input.Kind))
		}
		result, err = s.services.Sync.Flush(ctx, session, kind)
	}
	if err != nil {
		return nil, mapError(err)
	}

	return &FlushOutput{Body: result}, nil
}

func (s *Server) handlePendingCounts(ctx context.Context, input *PendingCountsInput) (*PendingCountsOutput, error) {
	counts, err := s.services.Queue.Counts(ctx, input.AccountID)
	if err != nil {
		return nil, mapError(err)
	}
	return &PendingCountsOutput{Body: counts}, nil
}

func (s *Server) handleAttentionItems(ctx context.Context, input *AttentionItemsInput) (*AttentionItemsOutput, error) {
	items, err := s.services.Queue.AttentionItems(ctx, input.AccountID)
	if err != nil {
		return nil, mapError(err)
	}

	return &AttentionItemsOutput{Body: AttentionItemsResponse{
		Items: items,
		Count: len(items),
	}}, nil
}

func (s *Server) handleDismissAttention(ctx context.Context, input *DismissAttentionInput) (*DismissAttentionOutput, error) {
	removed, err := s.services.Queue.Dismiss(ctx, input.AccountID)
	if err != nil {
		return nil, mapError(err)
	}

	return &DismissAttentionOutput{Body: DismissAttentionResponse{
		Dismissed: removed,
	}}, nil
}

func (s *Server) handleLastFailure(ctx context.Context, _ *LastFailureInput) (*LastFailureOutput, error) {
	failure, err := s.services.Queue.LastFailure(ctx)
	if err != nil {
		return nil, mapError(err)
	}
	return &LastFailureOutput{Body: LastFailureResponse{Failure: failure}}, nil
}

func (s *Server) handleClearFailure(ctx context.Context, _ *ClearFailureInput) (*ClearFailureOutput, error) {
	if err := s.services.Queue.ClearLastFailure(ctx); err != nil {
		return nil, mapError(err)
	}
	return &ClearFailureOutput{Status: http.StatusNoContent}, nil
}

func (s *Server) handleSyncHealth(ctx context.Context, input *SyncHealthInput) (*SyncHealthOutput, error) {
	session := sessionFrom(input.Authorization, input.AccountID)

	status, err := s.services.Health.Check(ctx, session)
	if err != nil {
		return nil, mapError(err)
	}
	return &SyncHealthOutput{Body: status}, nil
}
