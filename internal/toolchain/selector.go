package toolchain

import (
	"fmt"
	"strings"
)

// SelectorKind distinguishes the shapes of a user query.
type SelectorKind uint8

const (
	SelectLatest SelectorKind = iota + 1
	SelectStable
	SelectSnapshot
)

// Selector is a possibly underspecified query for a toolchain. Omitted
// fields mean "latest within that scope".
type Selector struct {
	Kind SelectorKind

	Major    uint
	Minor    uint
	Patch    uint
	HasMinor bool
	HasPatch bool

	Branch Branch
	Date   string
}

// Latest selects the newest stable release.
func Latest() Selector {
	return Selector{Kind: SelectLatest}
}

// StableSelector selects within a major release line. Optional minor and
// patch components narrow the scope; more than two are ignored.
func StableSelector(major uint, rest ...uint) Selector {
	sel := Selector{Kind: SelectStable, Major: major}
	if len(rest) > 0 {
		sel.Minor, sel.HasMinor = rest[0], true
	}
	if len(rest) > 1 {
		sel.Patch, sel.HasPatch = rest[1], true
	}
	return sel
}

// SnapshotSelector selects a snapshot on branch. An empty date selects the
// newest snapshot on that branch.
func SnapshotSelector(branch Branch, date string) Selector {
	return Selector{Kind: SelectSnapshot, Branch: branch, Date: date}
}

// ExactSelector returns the fully specified selector matching only v.
func ExactSelector(v Version) Selector {
	if v.IsSnapshot() {
		return SnapshotSelector(v.Branch, v.Date)
	}
	return StableSelector(v.Major, v.Minor, v.Patch)
}

// Exact returns the single version a fully specified selector names.
func (s Selector) Exact() (Version, bool) {
	switch s.Kind {
	case SelectStable:
		if s.HasMinor && s.HasPatch {
			return Stable(s.Major, s.Minor, s.Patch), true
		}
	case SelectSnapshot:
		if s.Date != "" {
			return Snapshot(s.Branch, s.Date), true
		}
	}
	return Version{}, false
}

// Family returns the version family the selector ranges over.
func (s Selector) Family() Kind {
	if s.Kind == SelectSnapshot {
		return KindSnapshot
	}
	return KindStable
}

// Matches reports whether v falls within the selector's scope.
func (s Selector) Matches(v Version) bool {
	switch s.Kind {
	case SelectLatest:
		return v.IsStableRelease()
	case SelectStable:
		if !v.IsStableRelease() || v.Major != s.Major {
			return false
		}
		if s.HasMinor && v.Minor != s.Minor {
			return false
		}
		if s.HasPatch && v.Patch != s.Patch {
			return false
		}
		return true
	case SelectSnapshot:
		if !v.IsSnapshot() || v.Branch != s.Branch {
			return false
		}
		return s.Date == "" || v.Date == s.Date
	default:
		return false
	}
}

// below reports whether v sorts after everything the selector could match
// in a feed ordered newest first.
func (s Selector) below(v Version) bool {
	switch s.Kind {
	case SelectStable:
		if !v.IsStableRelease() {
			return false
		}
		floor := Stable(s.Major, s.Minor, s.Patch)
		if !s.HasMinor {
			floor = Stable(s.Major, 0, 0)
		} else if !s.HasPatch {
			floor = Stable(s.Major, s.Minor, 0)
		}
		return CompareStable(v, floor) < 0
	case SelectSnapshot:
		if !v.IsSnapshot() {
			return false
		}
		if v.Branch != s.Branch {
			// Snapshot feeds list tags in reverse lexical order, so once a
			// tag sorts under the branch prefix no later tag can match.
			return v.TagName() < s.Branch.tagPrefix()
		}
		return s.Date != "" && v.Date < s.Date
	default:
		return false
	}
}

func (s Selector) String() string {
	switch s.Kind {
	case SelectLatest:
		return "latest"
	case SelectStable:
		out := fmt.Sprintf("%d", s.Major)
		if s.HasMinor {
			out += fmt.Sprintf(".%d", s.Minor)
		}
		if s.HasPatch {
			out += fmt.Sprintf(".%d", s.Patch)
		}
		return out
	case SelectSnapshot:
		out := s.Branch.String() + "-snapshot"
		if s.Date != "" {
			out += "-" + s.Date
		}
		return out
	default:
		return ""
	}
}

// ParseSelector parses a user query. Accepted forms:
//
//	latest
//	5 | 5.7 | 5.7.1
//	main-snapshot | main-snapshot-2022-10-22
//	5.7-snapshot | 5.7-snapshot-2022-10-22
//
// plus every form ParseVersion accepts.
func ParseSelector(input string) (Selector, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return Selector{}, parseErr(input, "empty selector")
	}
	if strings.EqualFold(s, "latest") {
		return Latest(), nil
	}
	if strings.HasPrefix(s, "swift-") {
		v, err := ParseVersion(s)
		if err != nil {
			return Selector{}, err
		}
		return ExactSelector(v), nil
	}

	if branchToken, ok := strings.CutSuffix(s, "-snapshot"); ok {
		branch, err := parseBranch(input, branchToken)
		if err != nil {
			return Selector{}, err
		}
		return SnapshotSelector(branch, ""), nil
	}
	if strings.Contains(s, "-snapshot-") {
		v, err := ParseVersion(s)
		if err != nil {
			return Selector{}, err
		}
		return ExactSelector(v), nil
	}

	parts, err := parseNumbers(input, s)
	if err != nil {
		return Selector{}, err
	}
	if len(parts) > 3 {
		return Selector{}, parseErr(input, "too many version components")
	}
	return StableSelector(parts[0], parts[1:]...), nil
}
