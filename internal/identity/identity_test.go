package identity

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/shelfmarkapp/shelfmark-sync/internal/domain"
)

func TestKey_StableAcrossFormatting(t *testing.T) {
	tests := []struct {
		name string
		a    domain.Book
		b    domain.Book
	}{
		{
			name: "case and padding",
			a:    domain.Book{Title: "Dune", Author: "Frank Herbert"},
			b:    domain.Book{Title: " dune ", Author: "FRANK  HERBERT"},
		},
		{
			name: "internal whitespace collapsed",
			a:    domain.Book{Title: "The Left Hand of Darkness", Author: "Ursula K. Le Guin"},
			b:    domain.Book{Title: "The  Left   Hand of Darkness", Author: "ursula k. le guin"},
		},
		{
			name: "isbn padding",
			a:    domain.Book{Title: "Dune", Author: "Frank Herbert", ISBN13: "9780441013593"},
			b:    domain.Book{Title: "Dune", Author: "Frank Herbert", ISBN13: " 9780441013593 "},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Key(tt.a), Key(tt.b))
		})
	}
}

func TestKey_DistinguishesDifferentBooks(t *testing.T) {
	a := domain.Book{Title: "Dune", Author: "Frank Herbert"}
	b := domain.Book{Title: "Dune Messiah", Author: "Frank Herbert"}
	assert.NotEqual(t, Key(a), Key(b))
}

func TestKey_StrongIdentifiersSharpenKey(t *testing.T) {
	bare := domain.Book{Title: "Dune", Author: "Frank Herbert"}
	withISBN := domain.Book{Title: "Dune", Author: "Frank Herbert", ISBN13: "9780441013593"}
	assert.NotEqual(t, Key(bare), Key(withISBN))
}

func TestKey_LibraryIDIncluded(t *testing.T) {
	id := int64(42)
	a := domain.Book{Title: "Dune", Author: "Frank Herbert", LibraryID: &id}
	b := domain.Book{Title: "Dune", Author: "Frank Herbert"}
	assert.NotEqual(t, Key(a), Key(b))
}

func TestKey_TotalOnEmptyRecord(t *testing.T) {
	// A meaningless record still yields a stable key rather than failing.
	empty := domain.Book{}
	assert.Equal(t, Key(empty), Key(domain.Book{Title: "   "}))
	assert.NotPanics(t, func() { Key(domain.Book{Title: "\x00\t\n"}) })
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"  Dune  ", "dune"},
		{"FRANK   HERBERT", "frank herbert"},
		{"", ""},
		{"   ", ""},
		{"Straße", "strasse"}, // case folding, not plain lowercasing
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Normalize(tt.in), "input %q", tt.in)
	}
}
