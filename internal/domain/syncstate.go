package domain

import "time"

// SyncFailure is the persisted, process-wide record of the most recent
// unrecovered sync error. It is overwritten on every new failure and cleared
// when a sync pass fully succeeds for the triggering account.
type SyncFailure struct {
	Message        string    `json:"message"`
	Classification string    `json:"classification"`
	Operation      string    `json:"operation,omitempty"` // upsert, insert, select
	Table          string    `json:"table,omitempty"`
	StatusCode     int       `json:"status_code,omitempty"`
	AccountID      string    `json:"account_id,omitempty"`
	HasSession     bool      `json:"has_session"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// FlushResult reports the outcome of draining one or more queues.
type FlushResult struct {
	Synced        int      `json:"synced"`
	Failed        int      `json:"failed"`
	ErrorMessages []string `json:"error_messages,omitempty"`
}

// Merge folds another result into this one, used by FlushAll.
func (r *FlushResult) Merge(other FlushResult) {
	r.Synced += other.Synced
	r.Failed += other.Failed
	r.ErrorMessages = append(r.ErrorMessages, other.ErrorMessages...)
}

// PendingCounts summarizes queue state for badges and banners.
type PendingCounts struct {
	ByKind         map[OperationKind]int `json:"by_kind"`
	NeedsAttention int                   `json:"needs_attention"`
	Total          int                   `json:"total"`
}

// AttentionItem is one needs-attention task prepared for the error inbox.
type AttentionItem struct {
	TaskID      string        `json:"task_id"`
	Kind        OperationKind `json:"kind"`
	Attempts    int           `json:"attempts"`
	ItemCount   int           `json:"item_count"`
	Explanation string        `json:"explanation"`
	CreatedAt   time.Time     `json:"created_at"`
}
