package domain

import "strings"

type Hotel struct {
	ID     int64
	Name   string
	City   *string
	State  *string
	Keys   *int
	Kind   *string
	Brand  *string
	Parent *string

	// Display names used by each review source when they differ from Name.
	SourceNames map[Source]string

	Deleted bool
}

// NameKey is the business key used to resolve hotels during reconciliation:
// case-insensitive, whitespace-trimmed.
func NameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// MatchesScope reports whether the hotel matches the optional city/state
// disambiguators of an external row. A nil scope field matches anything.
func (h Hotel) MatchesScope(city, state *string) bool {
	if city != nil && (h.City == nil || !strings.EqualFold(strings.TrimSpace(*city), *h.City)) {
		return false
	}
	if state != nil && (h.State == nil || !strings.EqualFold(strings.TrimSpace(*state), *h.State)) {
		return false
	}
	return true
}

type Group struct {
	ID       int64
	Name     string
	HotelIDs []int64
}
