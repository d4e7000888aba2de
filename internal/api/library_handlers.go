package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
	"github.com/shelfmarkapp/shelfmark-sync/internal/service"
)

func (s *Server) registerLibraryRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "listBooks",
		Method:      http.MethodGet,
		Path:        "/api/v1/library/books",
		Summary:     "List local library",
		Description: "Returns the locally cached library for the calling account",
		Tags:        []string{"Library"},
	}, s.handleListBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "upsertBooks",
		Method:      http.MethodPost,
		Path:        "/api/v1/library/books",
		Summary:     "Add or update books",
		Description: "Merges a batch of books into the local library and syncs or queues them",
		Tags:        []string{"Library"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleUpsertBooks)

	huma.Register(s.api, huma.Operation{
		OperationID: "loadLibrary",
		Method:      http.MethodPost,
		Path:        "/api/v1/library/load",
		Summary:     "Load library from the sync server",
		Description: "Reconciles the local cache with the remote library, guarded by a health probe",
		Tags:        []string{"Library"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleLoadLibrary)

	huma.Register(s.api, huma.Operation{
		OperationID: "submitFeedback",
		Method:      http.MethodPost,
		Path:        "/api/v1/library/feedback",
		Summary:     "Submit reading feedback",
		Tags:        []string{"Library"},
		Security:    []map[string][]string{{"bearer": {}}},
	}, s.handleSubmitFeedback)
}

// === DTOs ===

// ListBooksInput contains parameters for listing the local library.
type ListBooksInput struct {
	Authorization string `header:"Authorization"`
	AccountID     string `header:"X-Account-Id" doc:"Calling account, empty while signed out"`
}

// ListBooksResponse contains the locally cached library.
type ListBooksResponse struct {
	Books []domain.Book `json:"books" doc:"Cached books"`
	Count int           `json:"count" doc:"Number of books"`
}

// ListBooksOutput wraps the list response for Huma.
type ListBooksOutput struct {
	Body ListBooksResponse
}

// UpsertBooksInput contains a batch of book writes.
type UpsertBooksInput struct {
	Authorization string `header:"Authorization"`
	AccountID     string `header:"X-Account-Id"`
	Body          struct {
		Books  []domain.Book `json:"books" doc:"Books to add or update"`
		Source string        `json:"source,omitempty" doc:"Where the batch came from (manual, csv_import, barcode_scan)"`
	}
}

// UpsertBooksOutput wraps the upsert result for Huma.
type UpsertBooksOutput struct {
	Body service.UpsertResult
}

// LoadLibraryInput contains parameters for a remote load.
type LoadLibraryInput struct {
	Authorization  string `header:"Authorization"`
	AccountID      string `header:"X-Account-Id"`
	ConfirmReplace bool   `query:"confirm_replace" doc:"Confirm replacing local data despite pending changes"`
}

// LoadLibraryOutput wraps the load result for Huma.
type LoadLibraryOutput struct {
	Body service.LoadResult
}

// SubmitFeedbackInput contains one feedback entry.
type SubmitFeedbackInput struct {
	Authorization string `header:"Authorization"`
	AccountID     string `header:"X-Account-Id"`
	Body          domain.Feedback
}

// SubmitFeedbackOutput wraps the feedback result for Huma.
type SubmitFeedbackOutput struct {
	Body service.UpsertResult
}

// === Handlers ===

func (s *Server) handleListBooks(ctx context.Context, input *ListBooksInput) (*ListBooksOutput, error) {
	session := sessionFrom(input.Authorization, input.AccountID)

	books, err := s.services.Library.Books(ctx, session)
	if err != nil {
		return nil, mapError(err)
	}

	return &ListBooksOutput{Body: ListBooksResponse{
		Books: books,
		Count: len(books),
	}}, nil
}

func (s *Server) handleUpsertBooks(ctx context.Context, input *UpsertBooksInput) (*UpsertBooksOutput, error) {
	session := sessionFrom(input.Authorization, input.AccountID)
	s.services.Sessions.Remember(session)

	result, err := s.services.Library.UpsertBooks(ctx, session, input.Body.Books, input.Body.Source)
	if err != nil {
		return nil, mapError(err)
	}

	return &UpsertBooksOutput{Body: result}, nil
}

func (s *Server) handleLoadLibrary(ctx context.Context, input *LoadLibraryInput) (*LoadLibraryOutput, error) {
	session := sessionFrom(input.Authorization, input.AccountID)
	s.services.Sessions.Remember(session)

	result, err := s.services.Library.Load(ctx, session, input.ConfirmReplace)
	if err != nil {
		return nil, mapError(err)
	}

	return &LoadLibraryOutput{Body: result}, nil
}

func (s *Server) handleSubmitFeedback(ctx context.Context, input *SubmitFeedbackInput) (*SubmitFeedbackOutput, error) {
	session := sessionFrom(input.Authorization, input.AccountID)
	s.services.Sessions.Remember(session)

	result, err := s.services.Library.SubmitFeedback(ctx, session, input.Body)
	if err != nil {
		return nil, mapError(err)
	}

	return &SubmitFeedbackOutput{Body: result}, nil
}
