package toolchain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Set holds distinct versions. Identity is the canonical name, which is
// injective, so the Version value itself is the key. The zero Set is empty
// and ready to read; use NewSet or Add to populate it.
type Set struct {
	items map[Version]struct{}
}

// NewSet returns a set holding versions.
func NewSet(versions ...Version) Set {
	s := Set{items: make(map[Version]struct{}, len(versions))}
	for _, v := range versions {
		s.items[v] = struct{}{}
	}
	return s
}

// Add inserts v and reports whether it was absent.
func (s *Set) Add(v Version) bool {
	if s.items == nil {
		s.items = map[Version]struct{}{}
	}
	if _, ok := s.items[v]; ok {
		return false
	}
	s.items[v] = struct{}{}
	return true
}

// Remove deletes v and reports whether it was present.
func (s *Set) Remove(v Version) bool {
	if _, ok := s.items[v]; !ok {
		return false
	}
	delete(s.items, v)
	return true
}

// Contains reports whether v is a member.
func (s Set) Contains(v Version) bool {
	_, ok := s.items[v]
	return ok
}

// Len returns the number of members.
func (s Set) Len() int {
	return len(s.items)
}

// Sorted returns the members ordered by Compare.
func (s Set) Sorted() []Version {
	out := make([]Version, 0, len(s.items))
	for v := range s.items {
		out = append(out, v)
	}
	sort.Slice(out, func(i, j int) bool { return Compare(out[i], out[j]) < 0 })
	return out
}

// MarshalJSON encodes the set as a sorted list of canonical names.
func (s Set) MarshalJSON() ([]byte, error) {
	sorted := s.Sorted()
	names := make([]string, len(sorted))
	for i, v := range sorted {
		names[i] = v.Name()
	}
	return json.Marshal(names)
}

// UnmarshalJSON decodes a list of canonical names. Duplicates are rejected
// because they can only come from a hand-edited or corrupted file.
func (s *Set) UnmarshalJSON(data []byte) error {
	var names []string
	if err := json.Unmarshal(data, &names); err != nil {
		return err
	}
	items := make(map[Version]struct{}, len(names))
	for _, name := range names {
		v, err := parseCanonical(name)
		if err != nil {
			return err
		}
		if _, dup := items[v]; dup {
			return fmt.Errorf("duplicate toolchain %q", name)
		}
		items[v] = struct{}{}
	}
	s.items = items
	return nil
}
