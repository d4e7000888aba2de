// Package remote talks to the hosted PostgREST-style store that holds the
// synced library. All requests carry the project API key, the caller's access
// token and this device's client id; failures come back with the raw response
// body attached so the classifier can inspect the backend's wording.
package remote

import (
	"bytes"
	"context"
	"encoding/json/v2"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
	"github.com/shelfmarkapp/shelfmark-sync/internal/ratelimit"
)

const (
	// TableLibraryBooks is the remote relation holding library records.
	TableLibraryBooks = "library_books"
	// TableBookFeedback is the remote relation holding reading feedback.
	TableBookFeedback = "book_feedback"

	// upsertConflictTarget matches the remote uniqueness constraint.
	upsertConflictTarget = "account_id,identity_key"

	// Bounded in-request retry for transient failures. Distinct from the
	// task-level backoff: this only smooths over blips within one attempt.
	transientTries = 3
	transientDelay = 250 * time.Millisecond

	defaultTimeout = 10 * time.Second

	// Rate limit: 5 requests per second per account, burst of 10.
	defaultRPS   = 5.0
	defaultBurst = 10
)

// ErrNotConfigured is returned when no remote base URL is set.
var ErrNotConfigured = errors.New("remote store not configured")

// Error is a failed remote request with enough context for classification.
type Error struct {
	Op         string
	Table      string
	StatusCode int
	Body       string
}

func (e *Error) Error() string {
	if e.Body != "" {
		return fmt.Sprintf("%s %s: status %d: %s", e.Op, e.Table, e.StatusCode, e.Body)
	}
	return fmt.Sprintf("%s %s: status %d", e.Op, e.Table, e.StatusCode)
}

// Config holds remote client settings.
type Config struct {
	BaseURL  string
	APIKey   string
	ClientID string
	Timeout  time.Duration
}

// Client is a rate-limited PostgREST client.
type Client struct {
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	logger  *slog.Logger

	baseURL  string
	apiKey   string
	clientID string
}

// New creates a new remote client.
func New(cfg Config, logger *slog.Logger) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		http:     &http.Client{Timeout: timeout},
		limiter:  ratelimit.New(defaultRPS, defaultBurst),
		logger:   logger,
		baseURL:  cfg.BaseURL,
		apiKey:   cfg.APIKey,
		clientID: cfg.ClientID,
	}
}

// Configured reports whether a remote endpoint has been set up.
func (c *Client) Configured() bool {
	return c.baseURL != ""
}

// UpsertBooks writes a batch of library records, merging on the
// (account_id, identity_key) constraint so re-sent records update in place.
func (c *Client) UpsertBooks(ctx context.Context, token, accountID string, books []domain.Book) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	rows := make([]map[string]any, 0, len(books))
	for i := range books {
		rows = append(rows, bookRow(&books[i], accountID))
	}

	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal books: %w", err)
	}

	query := url.Values{"on_conflict": {upsertConflictTarget}}
	headers := map[string]string{"Prefer": "resolution=merge-duplicates"}

	_, err = c.do(ctx, http.MethodPost, TableLibraryBooks, query, headers, body, token, accountID)
	return err
}

// InsertBooks writes a batch without conflict merging. Used for the one-time
// seed of an empty remote account, where merge semantics would mask bugs.
func (c *Client) InsertBooks(ctx context.Context, token, accountID string, books []domain.Book) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	rows := make([]map[string]any, 0, len(books))
	for i := range books {
		rows = append(rows, bookRow(&books[i], accountID))
	}

	body, err := json.Marshal(rows)
	if err != nil {
		return fmt.Errorf("marshal books: %w", err)
	}

	_, err = c.do(ctx, http.MethodPost, TableLibraryBooks, nil, nil, body, token, accountID)
	return err
}

// InsertFeedback records one piece of reading feedback.
func (c *Client) InsertFeedback(ctx context.Context, token, accountID string, fb domain.Feedback) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	row := map[string]any{
		"account_id":   accountID,
		"identity_key": fb.IdentityKey,
		"verdict":      fb.Verdict,
	}
	if fb.Comment != "" {
		row["comment"] = fb.Comment
	}
	if !fb.CreatedAt.IsZero() {
		row["created_at"] = fb.CreatedAt
	}

	body, err := json.Marshal([]map[string]any{row})
	if err != nil {
		return fmt.Errorf("marshal feedback: %w", err)
	}

	_, err = c.do(ctx, http.MethodPost, TableBookFeedback, nil, nil, body, token, accountID)
	return err
}

// SelectBooks fetches the account's full remote library.
func (c *Client) SelectBooks(ctx context.Context, token, accountID string) ([]domain.Book, error) {
	if !c.Configured() {
		return nil, ErrNotConfigured
	}

	query := url.Values{
		"select":     {"*"},
		"account_id": {"eq." + accountID},
	}

	respBody, err := c.do(ctx, http.MethodGet, TableLibraryBooks, query, nil, nil, token, accountID)
	if err != nil {
		return nil, err
	}

	var books []domain.Book
	if err := json.Unmarshal(respBody, &books); err != nil {
		return nil, fmt.Errorf("decode books: %w", err)
	}
	if books == nil {
		books = []domain.Book{}
	}
	return books, nil
}

// Ping probes the remote store with a minimal select against the primary
// table. A failure carries the backend's own wording for classification.
func (c *Client) Ping(ctx context.Context, token string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}

	query := url.Values{
		"select": {"identity_key"},
		"limit":  {"1"},
	}

	_, err := c.do(ctx, http.MethodGet, TableLibraryBooks, query, nil, nil, token, "health")
	return err
}

// do executes one request with rate limiting and a bounded transient retry.
func (c *Client) do(ctx context.Context, method, table string, query url.Values, headers map[string]string, body []byte, token, limitKey string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, limitKey); err != nil {
		return nil, fmt.Errorf("rate limit wait: %w", err)
	}

	endpoint := c.baseURL + "/rest/v1/" + table
	if len(query) > 0 {
		endpoint += "?" + query.Encode()
	}

	var lastErr error
	for attempt := 1; attempt <= transientTries; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(time.Duration(attempt-1) * transientDelay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		respBody, retryable, err := c.doOnce(ctx, method, endpoint, headers, body, token, table)
		if err == nil {
			return respBody, nil
		}
		lastErr = err
		if !retryable {
			break
		}

		if c.logger != nil {
			c.logger.Debug("transient remote failure, retrying",
				"table", table, "attempt", attempt, "error", err.Error())
		}
	}
	return nil, lastErr
}

// doOnce executes a single HTTP exchange. The bool reports whether the
// failure is worth an in-request retry (network errors and 5xx only).
func (c *Client) doOnce(ctx context.Context, method, endpoint string, headers map[string]string, body []byte, token, table string) ([]byte, bool, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("apikey", c.apiKey)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if c.clientID != "" {
		req.Header.Set("X-Client-Id", c.clientID)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return respBody, false, nil
	}

	reqErr := &Error{
		Op:         method,
		Table:      table,
		StatusCode: resp.StatusCode,
		Body:       string(respBody),
	}
	return nil, resp.StatusCode >= 500, reqErr
}

// bookRow maps a book onto remote columns. Only supplied fields are sent,
// except rating: a cleared rating is sent as an explicit null so the remote
// row loses the old value.
func bookRow(b *domain.Book, accountID string) map[string]any {
	row := map[string]any{
		"title":        b.Title,
		"author":       b.Author,
		"account_id":   accountID,
		"identity_key": b.IdentityKey,
	}

	strings := map[string]string{
		"genre":        b.Genre,
		"series":       b.Series,
		"series_index": b.SeriesIndex,
		"status":       b.Status,
		"isbn10":       b.ISBN10,
		"isbn13":       b.ISBN13,
		"external_id":  b.ExternalID,
		"publisher":    b.Publisher,
		"publish_year": b.PublishYear,
		"language":     b.Language,
		"cover_url":    b.CoverURL,
		"description":  b.Description,
		"notes":        b.Notes,
		"source":       b.Source,
	}
	for col, val := range strings {
		if val != "" {
			row[col] = val
		}
	}

	if b.LibraryID != nil {
		row["library_id"] = *b.LibraryID
	}
	if b.PageCount != nil {
		row["page_count"] = *b.PageCount
	}
	if len(b.Tags) > 0 {
		row["tags"] = b.Tags
	}
	if b.Owned != nil {
		row["owned"] = *b.Owned
	}
	if b.Favorite != nil {
		row["favorite"] = *b.Favorite
	}

	switch {
	case b.Rating != nil:
		row["rating"] = *b.Rating
	case b.HasExplicitNull("rating"):
		row["rating"] = nil
	}
	if len(b.ExplicitNulls) > 0 {
		row["explicit_nulls"] = b.ExplicitNulls
	}

	if !b.CreatedAt.IsZero() {
		row["created_at"] = b.CreatedAt
	}
	if !b.UpdatedAt.IsZero() {
		row["updated_at"] = b.UpdatedAt
	}

	return row
}
