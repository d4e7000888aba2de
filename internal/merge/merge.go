// Package merge implements field-level fill-and-override merging of book
// records that share an identity key.
package merge

import (
	"math"
	"strings"

	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
	"github.com/shelfmarkapp/shelfmark-sync/internal/identity"
)

// ratingField is the explicit-null marker name for a cleared rating.
const ratingField = "rating"

// Merge combines two versions of the same logical book.
//
// For every field except rating the rule is fill: keep current's value, adopt
// incoming's only where current is empty. Emptiness is type-aware - blank or
// whitespace strings, nil pointers and non-finite numbers are empty; false
// and 0 are real values. Rating is latest-wins: a finite incoming rating
// replaces whatever current holds, and an explicit clear marker beats stale
// values from either side.
//
// Merge never fails: malformed input degrades to "empty" rather than erroring.
// Merging a record with itself returns that record unchanged.
func Merge(current, incoming domain.Book) domain.Book {
	out := current

	out.Title = fillString(current.Title, incoming.Title)
	out.Author = fillString(current.Author, incoming.Author)
	out.Genre = fillString(current.Genre, incoming.Genre)
	out.Series = fillString(current.Series, incoming.Series)
	out.SeriesIndex = fillString(current.SeriesIndex, incoming.SeriesIndex)
	out.Status = fillString(current.Status, incoming.Status)
	out.ISBN10 = fillString(current.ISBN10, incoming.ISBN10)
	out.ISBN13 = fillString(current.ISBN13, incoming.ISBN13)
	out.ExternalID = fillString(current.ExternalID, incoming.ExternalID)
	out.Publisher = fillString(current.Publisher, incoming.Publisher)
	out.PublishYear = fillString(current.PublishYear, incoming.PublishYear)
	out.Language = fillString(current.Language, incoming.Language)
	out.CoverURL = fillString(current.CoverURL, incoming.CoverURL)
	out.Description = fillString(current.Description, incoming.Description)
	out.Notes = fillString(current.Notes, incoming.Notes)
	out.Source = fillString(current.Source, incoming.Source)
	out.AccountID = fillString(current.AccountID, incoming.AccountID)
	out.IdentityKey = fillString(current.IdentityKey, incoming.IdentityKey)

	out.LibraryID = fillInt64Ptr(current.LibraryID, incoming.LibraryID)
	out.PageCount = fillIntPtr(current.PageCount, incoming.PageCount)
	out.Owned = fillBoolPtr(current.Owned, incoming.Owned)
	out.Favorite = fillBoolPtr(current.Favorite, incoming.Favorite)

	if len(current.Tags) == 0 {
		out.Tags = incoming.Tags
	}

	out.Rating, out.ExplicitNulls = mergeRating(current, incoming)

	if out.CreatedAt.IsZero() || (!incoming.CreatedAt.IsZero() && incoming.CreatedAt.Before(out.CreatedAt)) {
		out.CreatedAt = incoming.CreatedAt
	}
	if incoming.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = incoming.UpdatedAt
	}

	return out
}

// mergeRating applies the latest-wins-with-clear-marker rules.
func mergeRating(current, incoming domain.Book) (*float64, []string) {
	var rating *float64

	switch {
	case finite(incoming.Rating):
		// Incoming finite rating wins outright.
		r := *incoming.Rating
		rating = &r
	case finite(current.Rating) && !incoming.HasExplicitNull(ratingField):
		r := *current.Rating
		rating = &r
	default:
		rating = nil
	}

	cleared := rating == nil &&
		(current.HasExplicitNull(ratingField) || incoming.HasExplicitNull(ratingField))

	return rating, rebuildNulls(current.ExplicitNulls, incoming.ExplicitNulls, cleared)
}

// rebuildNulls merges the explicit-null sets, forcing the rating marker in or
// out depending on whether the merged rating ended up cleared. A kept rating
// marker stays where it was so merging a record with itself changes nothing.
func rebuildNulls(a, b []string, ratingCleared bool) []string {
	seen := make(map[string]bool)
	var out []string
	for _, set := range [][]string{a, b} {
		for _, f := range set {
			if seen[f] {
				continue
			}
			if f == ratingField && !ratingCleared {
				continue
			}
			seen[f] = true
			out = append(out, f)
		}
	}
	if ratingCleared && !seen[ratingField] {
		out = append(out, ratingField)
	}
	return out
}

// DedupeBatch collapses records sharing an identity key into one record per
// key, folding each group through Merge pairwise in list order. Records
// missing an identity key get one computed. Returns the deduped batch in
// first-seen order and the number of within-batch duplicates collapsed.
func DedupeBatch(books []domain.Book) ([]domain.Book, int) {
	byKey := make(map[string]int, len(books))
	out := make([]domain.Book, 0, len(books))
	collapsed := 0

	for _, b := range books {
		if b.IdentityKey == "" {
			b.IdentityKey = identity.Key(b)
		}
		if i, ok := byKey[b.IdentityKey]; ok {
			out[i] = Merge(out[i], b)
			collapsed++
			continue
		}
		byKey[b.IdentityKey] = len(out)
		out = append(out, b)
	}

	return out, collapsed
}

func fillString(current, incoming string) string {
	if strings.TrimSpace(current) == "" && strings.TrimSpace(incoming) != "" {
		return incoming
	}
	return current
}

func fillInt64Ptr(current, incoming *int64) *int64 {
	if current == nil {
		return incoming
	}
	return current
}

func fillIntPtr(current, incoming *int) *int {
	if current == nil {
		return incoming
	}
	return current
}

func fillBoolPtr(current, incoming *bool) *bool {
	// false is a real value; only a nil pointer counts as empty.
	if current == nil {
		return incoming
	}
	return current
}

// finite reports whether r holds a usable rating. Non-finite values are
// treated as absent so corrupt input degrades instead of propagating.
func finite(r *float64) bool {
	return r != nil && !math.IsNaN(*r) && !math.IsInf(*r, 0)
}
