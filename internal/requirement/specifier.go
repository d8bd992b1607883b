package requirement

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Masterminds/semver/v3"
)

var clausePattern = regexp.MustCompile(`^(~=|===|==|!=|<=|>=|<|>)\s*(\S+)$`)

// Specifier is a PEP 440 version specifier such as ">=1.4,<2". The empty
// specifier allows every final release.
type Specifier struct {
	raw     string
	clauses []clause
}

// clause is one comparison. Prefix clauses (==1.2.*) match on the release
// segments in prefix; the first three go through a semver constraint against
// the version's core.
type clause struct {
	op      string
	operand string
	version Version

	prefix    []int
	epoch     int
	coreMatch *semver.Constraints
}

// ParseSpecifier parses a comma-separated PEP 440 specifier.
func ParseSpecifier(spec string) (Specifier, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return Specifier{}, nil
	}

	s := Specifier{raw: spec}
	for _, part := range strings.Split(spec, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cs, err := parseClause(part)
		if err != nil {
			return Specifier{}, fmt.Errorf("specifier %q: %w", spec, err)
		}
		s.clauses = append(s.clauses, cs...)
	}
	return s, nil
}

func parseClause(text string) ([]clause, error) {
	m := clausePattern.FindStringSubmatch(text)
	if m == nil {
		return nil, fmt.Errorf("unsupported specifier clause %q", text)
	}
	op, operand := m[1], m[2]

	if op == "===" {
		return []clause{{op: op, operand: operand}}, nil
	}

	if prefix, ok := strings.CutSuffix(operand, ".*"); ok {
		if op != "==" && op != "!=" {
			return nil, fmt.Errorf("wildcard not allowed with %s in %q", op, text)
		}
		v, err := ParseVersion(prefix)
		if err != nil {
			return nil, err
		}
		c, err := prefixClause(op, v.epoch, v.release)
		if err != nil {
			return nil, err
		}
		c.operand = operand
		return []clause{c}, nil
	}

	v, err := ParseVersion(operand)
	if err != nil {
		return nil, err
	}

	if op == "~=" {
		if len(v.release) < 2 {
			return nil, fmt.Errorf("~= requires at least two release segments, got %q", operand)
		}
		c, err := prefixClause("==", v.epoch, v.release[:len(v.release)-1])
		if err != nil {
			return nil, err
		}
		c.operand = operand
		return []clause{{op: ">=", operand: operand, version: v}, c}, nil
	}
	return []clause{{op: op, operand: operand, version: v}}, nil
}

// prefixClause builds a release-prefix match.
func prefixClause(op string, epoch int, prefix []int) (clause, error) {
	head := prefix[:min(len(prefix), 3)]
	parts := make([]string, len(head))
	for i, seg := range head {
		parts[i] = fmt.Sprint(seg)
	}
	expr := strings.Join(parts, ".")
	if len(head) < 3 {
		expr += ".*"
	}
	c, err := semver.NewConstraint(expr)
	if err != nil {
		return clause{}, err
	}
	return clause{op: op, prefix: prefix, epoch: epoch, coreMatch: c}, nil
}

// matchesPrefix reports whether v's release starts with c.prefix.
func (c clause) matchesPrefix(v Version) bool {
	if v.epoch != c.epoch || !c.coreMatch.Check(v.core) {
		return false
	}
	for i := 3; i < len(c.prefix); i++ {
		if v.segment(i) != uint64(c.prefix[i]) {
			return false
		}
	}
	return true
}

func (c clause) allows(v Version) bool {
	if c.coreMatch != nil {
		return c.matchesPrefix(v) == (c.op == "==")
	}

	cmp := v.Compare(c.version)
	switch c.op {
	case "===":
		return strings.EqualFold(v.raw, c.operand)
	case "==":
		return cmp == 0
	case "!=":
		return cmp != 0
	case "<=":
		return cmp <= 0
	case ">=":
		return cmp >= 0
	case "<":
		// <2.0 does not admit 2.0 pre-releases.
		if cmp < 0 && v.IsPrerelease() && !c.version.IsPrerelease() && sameRelease(v, c.version) {
			return false
		}
		return cmp < 0
	case ">":
		// >1.7 does not admit 1.7 post-releases.
		if cmp > 0 && v.IsPostrelease() && !c.version.IsPostrelease() && sameRelease(v, c.version) {
			return false
		}
		return cmp > 0
	}
	return false
}

func sameRelease(a, b Version) bool {
	return a.epoch == b.epoch && a.compareRelease(b) == 0
}

// String returns the specifier as written.
func (s Specifier) String() string {
	return s.raw
}

// IsEmpty reports whether the specifier places no bound at all.
func (s Specifier) IsEmpty() bool {
	return len(s.clauses) == 0
}

// allowsPrereleases is true when a clause names a pre-release, mirroring
// pip's default.
func (s Specifier) allowsPrereleases() bool {
	for _, c := range s.clauses {
		if c.coreMatch == nil && c.version.IsPrerelease() {
			return true
		}
	}
	return false
}

// Allows reports whether v satisfies every clause. Pre-releases only match
// when a clause names one.
func (s Specifier) Allows(v Version) bool {
	if v.IsZero() {
		return false
	}
	if v.IsPrerelease() && !s.allowsPrereleases() {
		return false
	}
	return s.matches(v)
}

// matches applies the clauses without pre-release gating. Markers compare
// interpreter versions this way.
func (s Specifier) matches(v Version) bool {
	for _, c := range s.clauses {
		if !c.allows(v) {
			return false
		}
	}
	return true
}

// Filter returns the versions in vs that satisfy s, preserving order.
func (s Specifier) Filter(vs []Version) []Version {
	var out []Version
	for _, v := range vs {
		if s.Allows(v) {
			out = append(out, v)
		}
	}
	return out
}
