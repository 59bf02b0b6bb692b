package toolchain

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/mod/semver"
)

// Kind distinguishes the two families of toolchain versions.
type Kind uint8

const (
	KindStable Kind = iota + 1
	KindSnapshot
)

func (k Kind) String() string {
	switch k {
	case KindStable:
		return "stable"
	case KindSnapshot:
		return "snapshot"
	default:
		return "unknown"
	}
}

const dateLayout = "2006-01-02"

// Branch identifies the development branch a snapshot was cut from.
type Branch struct {
	Release bool
	Major   uint
	Minor   uint
}

// MainBranch is the development branch snapshots default to.
var MainBranch = Branch{}

// ReleaseBranch returns the branch for the given release line.
func ReleaseBranch(major, minor uint) Branch {
	return Branch{Release: true, Major: major, Minor: minor}
}

// IsMain reports whether b is the main development branch.
func (b Branch) IsMain() bool {
	return !b.Release
}

// tagPrefix is the upstream tag prefix shared by every snapshot of b.
func (b Branch) tagPrefix() string {
	if b.IsMain() {
		return "swift-DEVELOPMENT-SNAPSHOT-"
	}
	return "swift-" + b.String() + "-DEVELOPMENT-SNAPSHOT-"
}

func (b Branch) String() string {
	if b.IsMain() {
		return "main"
	}
	return fmt.Sprintf("%d.%d", b.Major, b.Minor)
}

// Version identifies one toolchain. Exactly one family's fields are set,
// as reported by Kind. Version is comparable and may be used as a map key.
type Version struct {
	Kind Kind

	Major uint
	Minor uint
	Patch uint

	Branch Branch
	Date   string
}

// Stable returns the stable release major.minor.patch.
func Stable(major, minor, patch uint) Version {
	return Version{Kind: KindStable, Major: major, Minor: minor, Patch: patch}
}

// Snapshot returns the snapshot built from branch on date (YYYY-MM-DD).
func Snapshot(branch Branch, date string) Version {
	return Version{Kind: KindSnapshot, Branch: branch, Date: date}
}

// IsStableRelease reports whether v is a stable release.
func (v Version) IsStableRelease() bool {
	return v.Kind == KindStable
}

// IsSnapshot reports whether v is a development snapshot.
func (v Version) IsSnapshot() bool {
	return v.Kind == KindSnapshot
}

// IsZero reports whether v is the zero value.
func (v Version) IsZero() bool {
	return v == Version{}
}

// Name returns the canonical name. It is both the persisted key and the
// on-disk directory name, so ParseVersion(v.Name()) == v must hold.
func (v Version) Name() string {
	switch v.Kind {
	case KindStable:
		return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	case KindSnapshot:
		return v.Branch.String() + "-snapshot-" + v.Date
	default:
		return ""
	}
}

func (v Version) String() string {
	return v.Name()
}

// DisplayName is the human-facing label. A zero patch is elided.
func (v Version) DisplayName() string {
	switch v.Kind {
	case KindStable:
		return "Swift " + v.shortStable()
	case KindSnapshot:
		if v.Branch.IsMain() {
			return "main-snapshot-" + v.Date
		}
		return v.Name()
	default:
		return ""
	}
}

// shortStable formats a stable version the way upstream tags do: 5.7 for
// 5.7.0, 5.7.1 otherwise.
func (v Version) shortStable() string {
	if v.Patch == 0 {
		return fmt.Sprintf("%d.%d", v.Major, v.Minor)
	}
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// TagName returns the upstream git tag for v, e.g. swift-5.7-RELEASE or
// swift-5.7-DEVELOPMENT-SNAPSHOT-2022-10-22-a.
func (v Version) TagName() string {
	switch v.Kind {
	case KindStable:
		return "swift-" + v.shortStable() + "-RELEASE"
	case KindSnapshot:
		return v.Branch.tagPrefix() + v.Date + "-a"
	default:
		return ""
	}
}

// MarshalText encodes v as its canonical name.
func (v Version) MarshalText() ([]byte, error) {
	if v.Kind != KindStable && v.Kind != KindSnapshot {
		return nil, fmt.Errorf("marshal toolchain version: invalid kind %d", v.Kind)
	}
	return []byte(v.Name()), nil
}

// UnmarshalText decodes a canonical name. v is left unchanged on error.
func (v *Version) UnmarshalText(text []byte) error {
	parsed, err := parseCanonical(string(text))
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// parseCanonical accepts only the exact spelling Name produces.
func parseCanonical(name string) (Version, error) {
	v, err := ParseVersion(name)
	if err != nil {
		return Version{}, err
	}
	if v.Name() != name {
		return Version{}, parseErr(name, fmt.Sprintf("not a canonical name, want %q", v.Name()))
	}
	return v, nil
}

func (v Version) semver() string {
	return fmt.Sprintf("v%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// CompareStable orders two stable releases by (major, minor, patch).
func CompareStable(a, b Version) int {
	return semver.Compare(a.semver(), b.semver())
}

// Compare gives a deterministic total order across both families for
// display: stable releases before snapshots, snapshots grouped by branch
// (main first, then release branches ascending), then ordered by date.
// Use CompareStable or date ordering for "latest" questions.
func Compare(a, b Version) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	if a.Kind == KindStable {
		return CompareStable(a, b)
	}
	if c := compareBranch(a.Branch, b.Branch); c != 0 {
		return c
	}
	return strings.Compare(a.Date, b.Date)
}

func compareBranch(a, b Branch) int {
	switch {
	case a == b:
		return 0
	case a.IsMain():
		return -1
	case b.IsMain():
		return 1
	case a.Major != b.Major:
		return cmpUint(a.Major, b.Major)
	default:
		return cmpUint(a.Minor, b.Minor)
	}
}

func cmpUint(a, b uint) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// ParseVersion parses a fully specified toolchain version. It accepts the
// canonical names and the upstream tag names:
//
//	5.7.1                     swift-5.7.1-RELEASE, swift-5.7-RELEASE
//	main-snapshot-2022-10-22  swift-DEVELOPMENT-SNAPSHOT-2022-10-22-a
//	5.7-snapshot-2022-10-22   swift-5.7-DEVELOPMENT-SNAPSHOT-2022-10-22-a
func ParseVersion(input string) (Version, error) {
	s := strings.TrimSpace(input)
	if s == "" {
		return Version{}, parseErr(input, "empty version")
	}
	if strings.HasPrefix(s, "swift-") {
		return parseTag(input, s)
	}

	if branchToken, date, ok := strings.Cut(s, "-snapshot-"); ok {
		branch, err := parseBranch(input, branchToken)
		if err != nil {
			return Version{}, err
		}
		if err := validateDate(input, date); err != nil {
			return Version{}, err
		}
		return Snapshot(branch, date), nil
	}

	parts, err := parseNumbers(input, s)
	if err != nil {
		return Version{}, err
	}
	if len(parts) != 3 {
		return Version{}, parseErr(input, "expected major.minor.patch")
	}
	return Stable(parts[0], parts[1], parts[2]), nil
}

func parseTag(input, s string) (Version, error) {
	rest := strings.TrimPrefix(s, "swift-")

	if numbers, ok := strings.CutSuffix(rest, "-RELEASE"); ok {
		parts, err := parseNumbers(input, numbers)
		if err != nil {
			return Version{}, err
		}
		switch len(parts) {
		case 2:
			return Stable(parts[0], parts[1], 0), nil
		case 3:
			return Stable(parts[0], parts[1], parts[2]), nil
		default:
			return Version{}, parseErr(input, "release tag must carry major.minor[.patch]")
		}
	}

	branch := MainBranch
	if before, after, ok := strings.Cut(rest, "-DEVELOPMENT-SNAPSHOT-"); ok {
		b, err := parseBranch(input, before)
		if err != nil {
			return Version{}, err
		}
		if b.IsMain() {
			return Version{}, parseErr(input, "unexpected branch token in tag")
		}
		branch = b
		rest = after
	} else if after, ok := strings.CutPrefix(rest, "DEVELOPMENT-SNAPSHOT-"); ok {
		rest = after
	} else {
		return Version{}, parseErr(input, "unrecognized tag")
	}

	date, ok := strings.CutSuffix(rest, "-a")
	if !ok {
		return Version{}, parseErr(input, "snapshot tag must end in -a")
	}
	if err := validateDate(input, date); err != nil {
		return Version{}, err
	}
	return Snapshot(branch, date), nil
}

func parseBranch(input, token string) (Branch, error) {
	if token == "main" {
		return MainBranch, nil
	}
	parts, err := parseNumbers(input, token)
	if err != nil {
		return Branch{}, parseErr(input, fmt.Sprintf("unknown branch %q", token))
	}
	if len(parts) != 2 {
		return Branch{}, parseErr(input, fmt.Sprintf("unknown branch %q", token))
	}
	return ReleaseBranch(parts[0], parts[1]), nil
}

func validateDate(input, date string) error {
	if len(date) != len(dateLayout) {
		return parseErr(input, fmt.Sprintf("malformed date %q, want YYYY-MM-DD", date))
	}
	if _, err := time.Parse(dateLayout, date); err != nil {
		return parseErr(input, fmt.Sprintf("malformed date %q, want YYYY-MM-DD", date))
	}
	return nil
}

// parseNumbers splits a dotted numeric string. Leading zeros are rejected so
// that every accepted spelling is the canonical one.
func parseNumbers(input, s string) ([]uint, error) {
	fields := strings.Split(s, ".")
	out := make([]uint, 0, len(fields))
	for _, field := range fields {
		if field == "" {
			return nil, parseErr(input, "empty version component")
		}
		for _, r := range field {
			if r < '0' || r > '9' {
				return nil, parseErr(input, fmt.Sprintf("non-numeric version component %q", field))
			}
		}
		if len(field) > 1 && field[0] == '0' {
			return nil, parseErr(input, fmt.Sprintf("leading zero in version component %q", field))
		}
		n, err := strconv.ParseUint(field, 10, 32)
		if err != nil {
			return nil, parseErr(input, fmt.Sprintf("version component %q out of range", field))
		}
		out = append(out, uint(n))
	}
	return out, nil
}
