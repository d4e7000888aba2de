package merge

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
)

func ratingPtr(v float64) *float64 { return &v }

func TestMerge_Idempotent(t *testing.T) {
	owned := true
	r := domain.Book{
		Title:         "Dune",
		Author:        "Frank Herbert",
		Genre:         "Science Fiction",
		Rating:        ratingPtr(4.5),
		Owned:         &owned,
		ExplicitNulls: []string{"notes"},
		Tags:          []string{"classic"},
	}

	assert.Equal(t, r, Merge(r, r))
}

func TestMerge_FillPrefersNonEmpty(t *testing.T) {
	current := domain.Book{Title: "Dune", Genre: ""}
	incoming := domain.Book{Title: "", Genre: "Fantasy"}

	got := Merge(current, incoming)

	assert.Equal(t, "Dune", got.Title)
	assert.Equal(t, "Fantasy", got.Genre)
}

func TestMerge_CurrentValueNotOverridden(t *testing.T) {
	current := domain.Book{Title: "Dune", Publisher: "Ace"}
	incoming := domain.Book{Title: "Dune", Publisher: "Chilton"}

	got := Merge(current, incoming)

	assert.Equal(t, "Ace", got.Publisher)
}

func TestMerge_WhitespaceStringIsEmpty(t *testing.T) {
	current := domain.Book{Title: "Dune", Series: "   "}
	incoming := domain.Book{Series: "Dune Chronicles"}

	got := Merge(current, incoming)

	assert.Equal(t, "Dune Chronicles", got.Series)
}

func TestMerge_FalseAndZeroAreNotEmpty(t *testing.T) {
	owned := false
	pages := 0
	current := domain.Book{Title: "Dune", Owned: &owned, PageCount: &pages}

	ownedIn := true
	pagesIn := 412
	incoming := domain.Book{Owned: &ownedIn, PageCount: &pagesIn}

	got := Merge(current, incoming)

	assert.False(t, *got.Owned, "explicit false must survive a merge")
	assert.Equal(t, 0, *got.PageCount, "explicit zero must survive a merge")
}

func TestMerge_RatingLatestWins(t *testing.T) {
	current := domain.Book{Title: "Dune", Rating: ratingPtr(3)}
	incoming := domain.Book{Rating: ratingPtr(5)}

	got := Merge(current, incoming)

	assert.Equal(t, 5.0, *got.Rating)
}

func TestMerge_ExplicitClearBeatsStaleRating(t *testing.T) {
	current := domain.Book{Title: "Dune", Rating: ratingPtr(4)}
	incoming := domain.Book{ExplicitNulls: []string{"rating"}}

	got := Merge(current, incoming)

	assert.Nil(t, got.Rating)
	assert.Contains(t, got.ExplicitNulls, "rating", "clear marker must be preserved")
}

func TestMerge_ClearMarkerKeepsItsPosition(t *testing.T) {
	r := domain.Book{
		Title:         "Dune",
		Author:        "Frank Herbert",
		ExplicitNulls: []string{"rating", "genre"},
	}

	got := Merge(r, r)

	// Order matters for strict idempotency, not just set membership.
	assert.Equal(t, []string{"rating", "genre"}, got.ExplicitNulls)
}

func TestMerge_NewRatingDropsStaleClearMarker(t *testing.T) {
	current := domain.Book{Title: "Dune", ExplicitNulls: []string{"rating"}}
	incoming := domain.Book{Rating: ratingPtr(5)}

	got := Merge(current, incoming)

	assert.Equal(t, 5.0, *got.Rating)
	assert.NotContains(t, got.ExplicitNulls, "rating")
}

func TestMerge_NonFiniteRatingTreatedAsAbsent(t *testing.T) {
	nan := math.NaN()
	current := domain.Book{Title: "Dune", Rating: ratingPtr(4)}
	incoming := domain.Book{Rating: &nan}

	got := Merge(current, incoming)

	assert.Equal(t, 4.0, *got.Rating, "NaN must not replace a real rating")
}

func TestMerge_PairingOrderIndependent(t *testing.T) {
	a := domain.Book{Title: "Dune", Author: "Frank Herbert"}
	b := domain.Book{Title: "Dune", Genre: "Science Fiction", Rating: ratingPtr(3)}
	c := domain.Book{Title: "Dune", Publisher: "Ace", Rating: ratingPtr(5)}

	left := Merge(Merge(a, b), c)
	right := Merge(a, Merge(b, c))

	assert.Equal(t, left, right)
}

func TestDedupeBatch_CollapsesDuplicates(t *testing.T) {
	books := []domain.Book{
		{Title: "Dune", Author: "Frank Herbert", Genre: "Science Fiction"},
		{Title: "The Dispossessed", Author: "Ursula K. Le Guin"},
		{Title: " dune ", Author: "FRANK HERBERT", Publisher: "Ace"},
	}

	out, collapsed := DedupeBatch(books)

	assert.Len(t, out, 2)
	assert.Equal(t, 1, collapsed)

	// First-seen order, merged fields from the duplicate.
	assert.Equal(t, "Dune", out[0].Title)
	assert.Equal(t, "Science Fiction", out[0].Genre)
	assert.Equal(t, "Ace", out[0].Publisher)
	assert.NotEmpty(t, out[0].IdentityKey)
}

func TestDedupeBatch_EmptyAndSingleton(t *testing.T) {
	out, collapsed := DedupeBatch(nil)
	assert.Empty(t, out)
	assert.Zero(t, collapsed)

	out, collapsed = DedupeBatch([]domain.Book{{Title: "Dune", Author: "Frank Herbert"}})
	assert.Len(t, out, 1)
	assert.Zero(t, collapsed)
}
