// Package sse implements Server-Sent Events for pushing queue and sync state
// changes to connected clients.
package sse

import (
	"time"

	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventQueueChanged fires whenever the pending work changes: an enqueue,
	// a drain, or a dismissal.
	EventQueueChanged EventType = "queue.changed"

	// EventSyncCompleted fires after a flush finishes, successfully or not.
	EventSyncCompleted EventType = "sync.completed"

	// EventSyncFailureChanged fires when the last-failure record is set or
	// cleared.
	EventSyncFailureChanged EventType = "sync.failure_changed"

	// EventLibraryReplaced fires when a remote load replaces the local cache.
	EventLibraryReplaced EventType = "library.replaced"

	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"
)

// Event represents an SSE event to be sent to clients.
// The Data field contains the event payload as a JSON object for direct deserialization.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	Type      EventType `json:"type"`
}

// QueueChangedEventData is the data payload for queue change events.
type QueueChangedEventData struct {
	Counts domain.PendingCounts `json:"counts"`
}

// SyncCompletedEventData is the data payload for flush completion events.
type SyncCompletedEventData struct {
	Kind   domain.OperationKind `json:"kind,omitzero"`
	Result domain.FlushResult   `json:"result"`
}

// SyncFailureChangedEventData is the data payload for failure record changes.
// Failure is nil when the record was cleared.
type SyncFailureChangedEventData struct {
	Failure *domain.SyncFailure `json:"failure"`
}

// LibraryReplacedEventData is the data payload for cache replacement events.
type LibraryReplacedEventData struct {
	AccountID string `json:"account_id"`
	BookCount int    `json:"book_count"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// NewQueueChangedEvent creates a queue change event.
func NewQueueChangedEvent(counts domain.PendingCounts) Event {
	return Event{
		Type:      EventQueueChanged,
		Timestamp: time.Now(),
		Data:      QueueChangedEventData{Counts: counts},
	}
}

// NewSyncCompletedEvent creates a flush completion event.
func NewSyncCompletedEvent(kind domain.OperationKind, result domain.FlushResult) Event {
	return Event{
		Type:      EventSyncCompleted,
		Timestamp: time.Now(),
		Data:      SyncCompletedEventData{Kind: kind, Result: result},
	}
}

// NewSyncFailureChangedEvent creates a failure record change event.
func NewSyncFailureChangedEvent(failure *domain.SyncFailure) Event {
	return Event{
		Type:      EventSyncFailureChanged,
		Timestamp: time.Now(),
		Data:      SyncFailureChangedEventData{Failure: failure},
	}
}

// NewLibraryReplacedEvent creates a cache replacement event.
func NewLibraryReplacedEvent(accountID string, bookCount int) Event {
	return Event{
		Type:      EventLibraryReplaced,
		Timestamp: time.Now(),
		Data:      LibraryReplacedEventData{AccountID: accountID, BookCount: bookCount},
	}
}

// NewHeartbeatEvent creates a keepalive event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Timestamp: time.Now(),
		Data:      HeartbeatEventData{ServerTime: time.Now()},
	}
}
