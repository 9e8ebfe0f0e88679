package progress

import (
	"encoding/json"
	"sort"
	"strings"
)

// ItemSet grow-only set of completed item identifiers.
//
// Union is the only way two sets combine, which keeps merging commutative,
// associative and idempotent regardless of delivery order or duplication.
type ItemSet map[string]struct{}

// NewItemSet builds a set from valid identifiers, blank ones are dropped
func NewItemSet(items ...string) ItemSet {
	set, _ := SanitizeStrings(items)
	return set
}

// MaxItemIDLength longest storable item identifier in bytes
const MaxItemIDLength = 128

// ValidItemID reports whether id may be stored, identifiers are opaque apart from being non-blank
func ValidItemID(id string) bool {
	return len(id) <= MaxItemIDLength && strings.TrimSpace(id) != ""
}

// SanitizeStrings keeps the valid identifiers of items and reports how many were dropped
func SanitizeStrings(items []string) (ItemSet, int) {
	set := make(ItemSet, len(items))
	dropped := 0
	for _, id := range items {
		if !ValidItemID(id) {
			dropped++
			continue
		}
		set[id] = struct{}{}
	}
	return set, dropped
}

// SanitizeItems is SanitizeStrings for decoded JSON values, non-string entries are dropped too
func SanitizeItems(items []interface{}) (ItemSet, int) {
	set := make(ItemSet, len(items))
	dropped := 0
	for _, v := range items {
		id, ok := v.(string)
		if !ok || !ValidItemID(id) {
			dropped++
			continue
		}
		set[id] = struct{}{}
	}
	return set, dropped
}

// Has .
func (s ItemSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Len .
func (s ItemSet) Len() int {
	return len(s)
}

// Add inserts valid ids into s in place
func (s ItemSet) Add(ids ...string) {
	for _, id := range ids {
		if ValidItemID(id) {
			s[id] = struct{}{}
		}
	}
}

// Union returns a new set holding every element of s and other
func (s ItemSet) Union(other ItemSet) ItemSet {
	out := make(ItemSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Difference elements of s missing from other
func (s ItemSet) Difference(other ItemSet) ItemSet {
	out := make(ItemSet)
	for id := range s {
		if !other.Has(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// IsSubsetOf .
func (s ItemSet) IsSubsetOf(other ItemSet) bool {
	for id := range s {
		if !other.Has(id) {
			return false
		}
	}
	return true
}

// Equal .
func (s ItemSet) Equal(other ItemSet) bool {
	return len(s) == len(other) && s.IsSubsetOf(other)
}

// Clone .
func (s ItemSet) Clone() ItemSet {
	return s.Union(nil)
}

// Slice sorted identifiers
func (s ItemSet) Slice() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// MarshalJSON encodes the set as a sorted array
func (s ItemSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Slice())
}

// UnmarshalJSON accepts any JSON array and keeps its valid string entries
func (s *ItemSet) UnmarshalJSON(data []byte) error {
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*s, _ = SanitizeItems(raw)
	return nil
}
