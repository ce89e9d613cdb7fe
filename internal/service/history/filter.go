package history

import "strings"

// Filter is the immutable view configuration for the call list.
// A change to this value invalidates the window and restarts loading.
type Filter struct {
	MissedOnly bool   `json:"missed_only"`
	SearchTerm string `json:"search_term,omitempty"`
}

// Normalize trims the search term; an empty or whitespace-only term
// means "no search".
func (f Filter) Normalize() Filter {
	f.SearchTerm = strings.TrimSpace(f.SearchTerm)
	return f
}

// HasSearch reports whether a non-empty search term is set
func (f Filter) HasSearch() bool {
	return f.Normalize().SearchTerm != ""
}

// Equal compares two filters after normalization
func (f Filter) Equal(other Filter) bool {
	return f.Normalize() == other.Normalize()
}
