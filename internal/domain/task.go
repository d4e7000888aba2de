package domain

import "time"

// OperationKind identifies which deferred mutation a sync task carries.
type OperationKind string

const (
	// OpLibraryUpsert is a batch of library book upserts.
	OpLibraryUpsert OperationKind = "library_upsert"
	// OpFeedbackInsert is a single feedback entry insert.
	OpFeedbackInsert OperationKind = "feedback_insert"
)

// OperationKinds lists every queue the engine maintains, in drain order.
//
//nolint:gochecknoglobals // Closed set, used to iterate all queues.
var OperationKinds = []OperationKind{OpLibraryUpsert, OpFeedbackInsert}

// Valid reports whether k is a known operation kind.
func (k OperationKind) Valid() bool {
	switch k {
	case OpLibraryUpsert, OpFeedbackInsert:
		return true
	}
	return false
}

// TaskStatus is the lifecycle state of a sync task.
type TaskStatus string

const (
	// TaskPending means the task is eligible for automatic retry.
	TaskPending TaskStatus = "pending"
	// TaskNeedsAttention is terminal until the user dismisses the task.
	TaskNeedsAttention TaskStatus = "needs_attention"
)

// MaxSyncAttempts is the retry budget per task. A task that fails this many
// times moves to needs_attention and is never retried automatically again.
const MaxSyncAttempts = 5

// SyncTask is one deferred mutation awaiting application to the remote store.
type SyncTask struct {
	ID        string        `json:"id"`
	AccountID string        `json:"account_id,omitempty"` // empty = orphaned, see Orphaned()
	Kind      OperationKind `json:"kind"`
	Status    TaskStatus    `json:"status"`
	Attempts  int           `json:"attempts"`

	// Payload. Exactly one of these is set, matching Kind.
	Books    []Book    `json:"books,omitempty"`
	Feedback *Feedback `json:"feedback,omitempty"`

	Source string `json:"source,omitempty"` // which collaborator enqueued this

	LastError     string    `json:"last_error,omitempty"`
	LastErrorKind string    `json:"last_error_kind,omitempty"`
	LastAttemptAt time.Time `json:"last_attempt_at,omitzero"`
	CreatedAt     time.Time `json:"created_at,omitzero"`
}

// Orphaned reports whether the task has no owning account. Orphaned tasks
// have no valid destination and must never be retried automatically.
func (t *SyncTask) Orphaned() bool {
	return t.AccountID == ""
}

// ItemCount returns how many logical records the task carries, for UI counts.
func (t *SyncTask) ItemCount() int {
	if t.Kind == OpLibraryUpsert {
		return len(t.Books)
	}
	return 1
}

// Feedback is one reader-feedback entry ("loved it", "not for me", a note).
type Feedback struct {
	ID          string    `json:"id"`
	IdentityKey string    `json:"identity_key"`
	Verdict     string    `json:"verdict"`
	Comment     string    `json:"comment,omitempty"`
	CreatedAt   time.Time `json:"created_at,omitzero"`
}
