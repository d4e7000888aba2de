// Package identity derives the stable fingerprint that makes two book records
// recognizable as "the same logical book".
//
// The key feeds both within-batch dedupe and the remote uniqueness constraint
// on (account_id, identity_key), so it must be pure, total and deterministic:
// the same logical inputs always produce the same key, and no input - however
// malformed - makes it fail.
package identity

import (
	"strconv"
	"strings"

	"golang.org/x/text/cases"

	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
)

//nolint:gochecknoglobals // Folding caser is immutable and safe for concurrent use.
var folder = cases.Fold()

// Key computes the identity key for a book record.
//
// Title and author anchor the key; strong identifiers (ISBN-13, ISBN-10,
// external catalog id, numeric library id, publish year) sharpen it when
// present. Fields are normalized (trimmed, case-folded, internal whitespace
// collapsed) and joined with a fixed separator, so surface differences like
// "Dune" vs " DUNE " collapse to one key. A record with no usable fields
// still yields a stable, if meaningless, key.
func Key(b domain.Book) string {
	parts := []string{
		Normalize(b.Title),
		Normalize(b.Author),
		Normalize(b.ISBN13),
		Normalize(b.ISBN10),
		Normalize(b.ExternalID),
		libraryIDPart(b.LibraryID),
		Normalize(b.PublishYear),
	}
	return strings.Join(parts, "|")
}

// Normalize trims, case-folds and collapses internal whitespace.
// It never fails; empty or whitespace-only input normalizes to "".
func Normalize(s string) string {
	fields := strings.Fields(folder.String(s))
	return strings.Join(fields, " ")
}

func libraryIDPart(id *int64) string {
	if id == nil {
		return ""
	}
	return strconv.FormatInt(*id, 10)
}
