package service

import (
	"context"
	"log/slog"
	"time"

	"github.com/shelfmarkapp/shelfmark-sync/internal/classify"
	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
	"github.com/shelfmarkapp/shelfmark-sync/internal/store"
)

// HealthStatus is the result of probing the remote store.
type HealthStatus struct {
	OK             bool   `json:"ok"`
	Classification string `json:"classification,omitempty"`
	Message        string `json:"message,omitempty"`
	Hint           string `json:"hint,omitempty"`
	PendingTotal   int    `json:"pending_total"`
	NeedsAttention int    `json:"needs_attention"`
}

// HealthService probes the remote store so callers can decide whether a
// remote load is safe.
type HealthService struct {
	store  *store.Store
	remote Remote
	logger *slog.Logger
}

// NewHealthService creates a new health service.
func NewHealthService(st *store.Store, rem Remote, logger *slog.Logger) *HealthService {
	return &HealthService{
		store:  st,
		remote: rem,
		logger: logger,
	}
}

// Check probes the remote store with a minimal read and reports the outcome
// alongside current queue depth. Probe failures are recorded as the last
// sync failure and successful probes clear it, so the UI stays consistent
// with the flusher's view.
func (s *HealthService) Check(ctx context.Context, session Session) (HealthStatus, error) {
	counts, err := s.store.PendingCounts(ctx, session.AccountID)
	if err != nil {
		return HealthStatus{}, err
	}

	status := HealthStatus{
		PendingTotal:   counts.Total - counts.NeedsAttention,
		NeedsAttention: counts.NeedsAttention,
	}

	if !s.remote.Configured() {
		status.Classification = string(classify.Other)
		status.Message = "No sync server is configured. Your library lives on this device only."
		return status, nil
	}

	if pingErr := s.remote.Ping(ctx, session.Token); pingErr != nil {
		class := classify.Classify(pingErr)
		status.Classification = string(class)
		status.Message = class.UserMessage()
		status.Hint = class.Hint()

		failure := domain.SyncFailure{
			Message:        pingErr.Error(),
			Classification: string(class),
			Operation:      "select",
			AccountID:      session.AccountID,
			HasSession:     session.Token != "",
			OccurredAt:     time.Now(),
		}
		if recordErr := s.store.SetSyncFailure(ctx, failure); recordErr != nil {
			s.logger.Warn("failed to record health failure", "error", recordErr.Error())
		}

		s.logger.Warn("remote health probe failed",
			"classification", string(class), "error", pingErr.Error())
		return status, nil
	}

	status.OK = true
	if err := s.store.ClearSyncFailure(ctx); err != nil {
		s.logger.Warn("failed to clear sync failure", "error", err.Error())
	}
	return status, nil
}
