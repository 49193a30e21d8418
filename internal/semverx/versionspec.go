package semverx

import (
	"strings"

	mmsemver "github.com/Masterminds/semver/v3"
	"github.com/pkg/errors"
)

// Op is a version comparison operator.
type Op string

const (
	OpEQ Op = "="
	OpLT Op = "<"
	OpLE Op = "<="
	OpGT Op = ">"
	OpGE Op = ">="
)

// Clause is a single {op, version} constraint.
type Clause struct {
	Op Op
	V  Semver
}

// VersionSpec is a conjunction of Clauses: a version matches the spec only
// if it satisfies every clause. It also accepts a bare exact version and
// Masterminds-style ranges such as ">=1.2.0 <2.0.0".
//
// Matching is delegated to Masterminds/semver/v3's Constraints, the same
// family of range-matching library the teacher wraps in constraints.go;
// VersionSpec itself only owns the parsed Clause list used for
// introspection (error messages, lock-file round-tripping).
type VersionSpec struct {
	raw        string
	clauses    []Clause
	constraint *mmsemver.Constraints
}

// ParseVersionSpec parses a conjunction of constraints such as
// "=1.2.3", ">=1.0.0 <2.0.0", or a bare "1.2.3" (treated as an exact match).
func ParseVersionSpec(s string) (VersionSpec, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return VersionSpec{}, errors.New("empty version spec")
	}

	c, err := mmsemver.NewConstraint(normalizeForMasterminds(trimmed))
	if err != nil {
		return VersionSpec{}, errors.Wrapf(err, "invalid version spec %q", s)
	}

	clauses, err := parseClauses(trimmed)
	if err != nil {
		return VersionSpec{}, err
	}

	return VersionSpec{raw: trimmed, clauses: clauses, constraint: c}, nil
}

// normalizeForMasterminds rewrites our exact "op version" tokens (which
// permit no space, e.g. ">=1.0.0") into the form Masterminds/semver
// expects; Masterminds already accepts this form directly, so this is
// currently the identity, kept as a named seam for future divergence.
func normalizeForMasterminds(s string) string { return s }

func parseClauses(s string) ([]Clause, error) {
	fields := splitClauseTokens(s)
	clauses := make([]Clause, 0, len(fields))
	for _, f := range fields {
		cl, err := parseClause(f)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid version spec %q", s)
		}
		clauses = append(clauses, cl)
	}
	if len(clauses) == 0 {
		return nil, errors.Errorf("invalid version spec %q: no clauses", s)
	}
	return clauses, nil
}

// splitClauseTokens splits on whitespace, keeping an operator glued to its
// version (">=1.0.0", not "1.0.0").
func splitClauseTokens(s string) []string {
	return strings.Fields(s)
}

func parseClause(tok string) (Clause, error) {
	ops := []Op{OpGE, OpLE, OpEQ, OpLT, OpGT} // check 2-char ops first
	for _, op := range ops {
		if strings.HasPrefix(tok, string(op)) {
			rest := strings.TrimSpace(tok[len(op):])
			v, err := Parse(rest)
			if err != nil {
				return Clause{}, err
			}
			return Clause{Op: op, V: v}, nil
		}
	}
	// bare version: exact match
	v, err := Parse(tok)
	if err != nil {
		return Clause{}, err
	}
	return Clause{Op: OpEQ, V: v}, nil
}

// Matches reports whether v satisfies the spec. Matching is delegated to
// the parsed Masterminds/semver/v3 Constraints, converting v through its
// canonical string form; the hand-rolled Clause evaluator is the fallback
// for the rare version that our own (stricter) parser accepts but
// Masterminds's does not.
func (s VersionSpec) Matches(v Semver) bool {
	if s.constraint != nil {
		if mv, err := mmsemver.NewVersion(v.String()); err == nil {
			return s.constraint.Check(mv)
		}
	}
	for _, cl := range s.clauses {
		if !matchesClause(cl, v) {
			return false
		}
	}
	return true
}

func matchesClause(cl Clause, v Semver) bool {
	c := v.Compare(cl.V)
	switch cl.Op {
	case OpEQ:
		return c == 0
	case OpLT:
		return c < 0
	case OpLE:
		return c <= 0
	case OpGT:
		return c > 0
	case OpGE:
		return c >= 0
	default:
		return false
	}
}

// String returns the spec's original textual form.
func (s VersionSpec) String() string { return s.raw }

// Clauses returns the parsed conjuncts, for diagnostics and serialization.
func (s VersionSpec) Clauses() []Clause { return s.clauses }
