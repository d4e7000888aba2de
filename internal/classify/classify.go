// Package classify normalizes raw remote-store failures into a fixed taxonomy
// at the boundary, so nothing deeper in the call stack branches on raw error
// shapes. The classification drives retry eligibility, backoff duration and
// user messaging.
package classify

import (
	"strings"
	"time"
)

// Class is one bucket of the failure taxonomy.
type Class string

const (
	// Network covers connectivity failures: offline, DNS, timeouts. These are
	// invisible to the user until the attempt ceiling is exhausted.
	Network Class = "network"
	// Auth covers expired or missing credentials.
	Auth Class = "auth"
	// Permission covers row-level-security / policy rejections.
	Permission Class = "permission"
	// SchemaCache covers the backend's stale schema cache condition.
	SchemaCache Class = "schema_cache"
	// MissingTable means the target relation does not exist remotely.
	MissingTable Class = "missing_table"
	// ProjectMismatch is MissingTable upgraded: a first-party table is absent,
	// which signals the client is pointed at the wrong backend project.
	ProjectMismatch Class = "project_mismatch"
	// Other is the catch-all for unrecognized failures.
	Other Class = "other"
)

// firstPartyTables are the tables this client owns remotely. A "relation does
// not exist" naming one of these is backend misconfiguration, not a typo.
//
//nolint:gochecknoglobals // Static lookup table.
var firstPartyTables = []string{"library_books", "book_feedback"}

// Classify maps a raw failure onto the taxonomy by case-insensitive substring
// inspection of its message. It is total: nil or unrecognized errors classify
// as Other, and it never panics.
func Classify(err error) Class {
	if err == nil {
		return Other
	}
	return ClassifyText(err.Error())
}

// ClassifyText classifies raw failure text directly. Useful when the remote
// layer carries message/detail/hint fields beyond the Go error string.
func ClassifyText(text string) Class {
	msg := strings.ToLower(text)

	switch {
	// Missing-table markers are checked before the schema-cache marker:
	// PostgREST phrases a missing relation as "could not find the table ...
	// in the schema cache", and that is a missing table, not a stale cache.
	case strings.Contains(msg, "does not exist") && strings.Contains(msg, "relation"),
		containsAny(msg, "could not find the table"):
		for _, table := range firstPartyTables {
			if strings.Contains(msg, table) {
				return ProjectMismatch
			}
		}
		return MissingTable

	case containsAny(msg, "schema cache"):
		return SchemaCache

	case containsAny(msg, "rls", "policy", "row-level"):
		return Permission

	case containsAny(msg, "401", "403", "jwt", "token", "unauthorized", "not authenticated"):
		return Auth

	case containsAny(msg, "fetch", "network", "offline", "timeout", "timed out",
		"connection refused", "no such host", "connection reset", "unreachable",
		"context deadline exceeded"):
		return Network

	default:
		return Other
	}
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// Retryable reports whether a failure of this class is worth an immediate
// in-request retry (the small bounded retry inside one flush attempt).
// Task-level retry eligibility is governed by Backoff and the attempt ceiling.
func (c Class) Retryable() bool {
	return c == Network
}

// Backoff returns the delay before a task with this classification may be
// retried, given how many attempts it has already burned. The bool is false
// for classes with no defined backoff (auth, permission, other), which are
// retried on every drain and rely on the attempt ceiling alone.
//
// Delays grow exponentially from a small base and are capped at minutes, not
// hours: network failures heal fast, configuration failures need a human but
// should still be reprobed occasionally.
func (c Class) Backoff(attempts int) (time.Duration, bool) {
	var base, ceil time.Duration

	switch c {
	case Network:
		base, ceil = 3*time.Second, 2*time.Minute
	case SchemaCache, MissingTable, ProjectMismatch:
		base, ceil = 15*time.Second, 5*time.Minute
	default:
		return 0, false
	}

	if attempts < 1 {
		attempts = 1
	}
	d := base << (attempts - 1)
	if d > ceil || d <= 0 {
		d = ceil
	}
	return d, true
}

// UserMessage returns the stable, non-technical explanation shown to the
// user for this class. Backend jargon never appears here; Hint carries the
// operator-facing detail.
func (c Class) UserMessage() string {
	switch c {
	case Network:
		return "Couldn't reach the sync server. Your changes are saved on this device and will sync automatically."
	case Auth:
		return "Your session has expired. Sign in again to resume syncing."
	case Permission:
		return "The sync server refused this change. Sign out and back in; if that doesn't help, contact support."
	case SchemaCache, MissingTable, ProjectMismatch:
		return "The sync server isn't set up correctly. Your changes are safe on this device."
	default:
		return "Something went wrong while syncing. Your changes are saved on this device."
	}
}

// Hint returns an actionable operator-facing hint, or "" when there is none.
// Hints may name infrastructure details and must never reach end users.
func (c Class) Hint() string {
	switch c {
	case Permission:
		return "Check the row-level security policies on library_books and book_feedback."
	case SchemaCache:
		return "Reload the backend schema cache (NOTIFY pgrst, 'reload schema')."
	case MissingTable:
		return "The target relation is missing; run the backend migrations."
	case ProjectMismatch:
		return "A first-party table is missing remotely; the client is likely pointed at the wrong backend project."
	default:
		return ""
	}
}
