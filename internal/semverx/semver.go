// Package semverx implements semantic version parsing and comparison per
// semver.org §2-§11, and a small constraint-expression layer (VersionSpec)
// on top of it.
//
// Version parsing and ordering are implemented directly against the
// semver.org grammar rather than delegated wholesale to a library, because
// the core's correctness invariants (round-trip Stringer, rejection of
// leading zeros, exact §11 ordering) are part of the contract callers rely
// on. Range matching is delegated to Masterminds/semver/v3, the same
// family of library the teacher wraps for constraint handling.
package semverx

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// InvalidSemverError is returned when a string does not conform to the
// semver.org grammar.
type InvalidSemverError struct {
	Input  string
	Reason string
}

func (e *InvalidSemverError) Error() string {
	return fmt.Sprintf("invalid semantic version %q: %s", e.Input, e.Reason)
}

// Semver is a parsed semantic version: major.minor.patch[-prerelease][+metadata].
type Semver struct {
	Major, Minor, Patch uint64
	Prerelease          []string
	Metadata            []string
}

// Parse parses s per semver.org §2. It rejects leading zeros in numeric
// identifiers, empty identifiers in dotted segments, and non-ASCII bytes.
func Parse(s string) (Semver, error) {
	var v Semver
	rest := s

	core, rest, ok := cutCore(rest)
	if !ok {
		return v, &InvalidSemverError{s, "malformed major.minor.patch core"}
	}
	parts := strings.Split(core, ".")
	if len(parts) != 3 {
		return v, &InvalidSemverError{s, "core must have exactly three dot-separated numbers"}
	}
	nums := make([]uint64, 3)
	for i, p := range parts {
		n, err := parseNumericIdentifier(p)
		if err != nil {
			return v, &InvalidSemverError{s, err.Error()}
		}
		nums[i] = n
	}
	v.Major, v.Minor, v.Patch = nums[0], nums[1], nums[2]

	if strings.HasPrefix(rest, "-") {
		var pre string
		pre, rest = cutUntil(rest[1:], "+")
		if pre == "" {
			return v, &InvalidSemverError{s, "empty prerelease"}
		}
		ids := strings.Split(pre, ".")
		for _, id := range ids {
			if err := validatePrereleaseIdentifier(id); err != nil {
				return v, &InvalidSemverError{s, err.Error()}
			}
		}
		v.Prerelease = ids
	}

	if strings.HasPrefix(rest, "+") {
		meta := rest[1:]
		if meta == "" {
			return v, &InvalidSemverError{s, "empty metadata"}
		}
		ids := strings.Split(meta, ".")
		for _, id := range ids {
			if err := validateBuildIdentifier(id); err != nil {
				return v, &InvalidSemverError{s, err.Error()}
			}
		}
		v.Metadata = ids
		rest = ""
	}

	if rest != "" {
		return v, &InvalidSemverError{s, "trailing garbage after version"}
	}
	return v, nil
}

// MustParse is Parse, panicking on error. Intended for literals in tests
// and static data, never for user input.
func MustParse(s string) Semver {
	v, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return v
}

func cutCore(s string) (core, rest string, ok bool) {
	i := 0
	for i < len(s) && s[i] != '-' && s[i] != '+' {
		i++
	}
	return s[:i], s[i:], i > 0
}

func cutUntil(s, sep string) (head, rest string) {
	if i := strings.Index(s, sep); i >= 0 {
		return s[:i], s[i:]
	}
	return s, ""
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] > 127 {
			return false
		}
	}
	return true
}

func isAlnumHyphen(s string) bool {
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
		case r >= 'a' && r <= 'z':
		case r >= 'A' && r <= 'Z':
		case r == '-':
		default:
			return false
		}
	}
	return true
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func parseNumericIdentifier(s string) (uint64, error) {
	if !isASCII(s) || !isDigits(s) {
		return 0, errors.Errorf("identifier %q is not a plain non-negative integer", s)
	}
	if len(s) > 1 && s[0] == '0' {
		return 0, errors.Errorf("numeric identifier %q has a leading zero", s)
	}
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, errors.Wrapf(err, "identifier %q overflows", s)
	}
	return n, nil
}

func validatePrereleaseIdentifier(s string) error {
	if s == "" {
		return errors.New("empty identifier in dotted prerelease segment")
	}
	if !isASCII(s) {
		return errors.Errorf("identifier %q contains non-ASCII bytes", s)
	}
	if !isAlnumHyphen(s) {
		return errors.Errorf("identifier %q contains characters outside [0-9A-Za-z-]", s)
	}
	if isDigits(s) && len(s) > 1 && s[0] == '0' {
		return errors.Errorf("numeric prerelease identifier %q has a leading zero", s)
	}
	return nil
}

func validateBuildIdentifier(s string) error {
	if s == "" {
		return errors.New("empty identifier in dotted metadata segment")
	}
	if !isASCII(s) {
		return errors.Errorf("identifier %q contains non-ASCII bytes", s)
	}
	if !isAlnumHyphen(s) {
		return errors.Errorf("identifier %q contains characters outside [0-9A-Za-z-]", s)
	}
	return nil
}

// String renders the version in canonical semver.org form. Parse(v.String())
// always yields a value equal to v.
func (v Semver) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%d.%d.%d", v.Major, v.Minor, v.Patch)
	if len(v.Prerelease) > 0 {
		b.WriteByte('-')
		b.WriteString(strings.Join(v.Prerelease, "."))
	}
	if len(v.Metadata) > 0 {
		b.WriteByte('+')
		b.WriteString(strings.Join(v.Metadata, "."))
	}
	return b.String()
}

// Compare returns -1, 0, or 1 per semver.org §11. Equality ignores
// metadata, as required by §10.
func (v Semver) Compare(o Semver) int {
	if c := cmpUint(v.Major, o.Major); c != 0 {
		return c
	}
	if c := cmpUint(v.Minor, o.Minor); c != 0 {
		return c
	}
	if c := cmpUint(v.Patch, o.Patch); c != 0 {
		return c
	}
	return comparePrerelease(v.Prerelease, o.Prerelease)
}

func cmpUint(a, b uint64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// comparePrerelease implements semver.org §11.4: a version without a
// prerelease has higher precedence than one with. Shared identifier
// positions compare numerically if both are digits, else lexically;
// a numeric identifier has lower precedence than an alphanumeric one.
func comparePrerelease(a, b []string) int {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	if len(a) == 0 {
		return 1
	}
	if len(b) == 0 {
		return -1
	}
	for i := 0; i < len(a) && i < len(b); i++ {
		if c := compareIdentifier(a[i], b[i]); c != 0 {
			return c
		}
	}
	return cmpUint(uint64(len(a)), uint64(len(b)))
}

func compareIdentifier(a, b string) int {
	an, bn := isDigits(a), isDigits(b)
	switch {
	case an && bn:
		na, _ := strconv.ParseUint(a, 10, 64)
		nb, _ := strconv.ParseUint(b, 10, 64)
		return cmpUint(na, nb)
	case an && !bn:
		return -1
	case !an && bn:
		return 1
	default:
		return strings.Compare(a, b)
	}
}

// Equal reports whether v and o compare equal, ignoring metadata.
func (v Semver) Equal(o Semver) bool { return v.Compare(o) == 0 }

// Less reports whether v sorts before o.
func (v Semver) Less(o Semver) bool { return v.Compare(o) < 0 }
