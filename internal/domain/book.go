// Package domain contains the core business entities for the Shelfmark sync engine.
package domain

import "time"

// Book represents one book in the user's library.
//
// Every descriptive field besides Title and Author is optional: records arrive
// from imports, barcode scans and manual entry, and each source fills a
// different subset. Numeric fields use pointers so "never supplied" is
// distinguishable from a real zero.
type Book struct {
	Title  string `json:"title"`
	Author string `json:"author"`

	Genre       string   `json:"genre,omitempty"`
	Series      string   `json:"series,omitempty"`
	SeriesIndex string   `json:"series_index,omitempty"` // "1", "1.5", "Book Zero"
	Status      string   `json:"status,omitempty"`       // reading, finished, wishlist, ...
	ISBN10      string   `json:"isbn10,omitempty"`
	ISBN13      string   `json:"isbn13,omitempty"`
	ExternalID  string   `json:"external_id,omitempty"` // catalog id from the lookup collaborator
	LibraryID   *int64   `json:"library_id,omitempty"`  // numeric id from a prior library system
	Publisher   string   `json:"publisher,omitempty"`
	PublishYear string   `json:"publish_year,omitempty"`
	Language    string   `json:"language,omitempty"`
	PageCount   *int     `json:"page_count,omitempty"`
	CoverURL    string   `json:"cover_url,omitempty"`
	Description string   `json:"description,omitempty"`
	Notes       string   `json:"notes,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Source      string   `json:"source,omitempty"` // manual, csv_import, barcode_scan
	Owned       *bool    `json:"owned,omitempty"`
	Favorite    *bool    `json:"favorite,omitempty"`

	// Rating is always latest-wins on merge, never fill. A cleared rating is
	// represented as a nil Rating plus "rating" in ExplicitNulls, so a stale
	// value from the other side of a merge cannot resurrect it.
	Rating *float64 `json:"rating,omitempty"`

	// ExplicitNulls lists fields the user intentionally cleared, as opposed
	// to fields that were simply never supplied.
	ExplicitNulls []string `json:"explicit_nulls,omitempty"`

	// AccountID is the owning account. Empty while signed out.
	AccountID string `json:"account_id,omitempty"`

	// IdentityKey is the derived fingerprint used for dedupe and for the
	// remote uniqueness constraint (account_id, identity_key). Computed by
	// the identity package; stored so remote rows round-trip unchanged.
	IdentityKey string `json:"identity_key,omitempty"`

	CreatedAt time.Time `json:"created_at,omitzero"`
	UpdatedAt time.Time `json:"updated_at,omitzero"`
}

// HasExplicitNull reports whether the named field carries a clear marker.
func (b *Book) HasExplicitNull(field string) bool {
	for _, f := range b.ExplicitNulls {
		if f == field {
			return true
		}
	}
	return false
}

// Touch updates the UpdatedAt timestamp to the current time.
func (b *Book) Touch() {
	b.UpdatedAt = time.Now()
}
