// Package requirement parses dependency declarations: PEP 508 requirement
// lines, PEP 440 versions and specifiers, and environment markers.
package requirement

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	namePattern      = regexp.MustCompile(`^([A-Za-z0-9](?:[A-Za-z0-9._-]*[A-Za-z0-9])?)\s*(?:\[([^\]]*)\])?\s*(.*)$`)
	separatorPattern = regexp.MustCompile(`[-_.]+`)
)

// Requirement is one parsed dependency declaration.
type Requirement struct {
	Name      string
	Extras    []string
	Specifier Specifier
	Marker    *Marker
	Raw       string
}

// Parse parses a requirement line such as
//
//	attrs>=19.1 ; python_version >= "3.8"
//	volatile (<2)
func Parse(line string) (Requirement, error) {
	raw := strings.TrimSpace(line)
	if raw == "" {
		return Requirement{}, fmt.Errorf("empty requirement")
	}

	body, markerText, hasMarker := strings.Cut(raw, ";")
	body = strings.TrimSpace(body)

	m := namePattern.FindStringSubmatch(body)
	if m == nil {
		return Requirement{}, fmt.Errorf("requirement %q does not start with a package name", raw)
	}

	req := Requirement{Name: m[1], Raw: raw}
	if m[2] != "" {
		for _, extra := range strings.Split(m[2], ",") {
			if extra = strings.TrimSpace(extra); extra != "" {
				req.Extras = append(req.Extras, extra)
			}
		}
	}

	rest := strings.TrimSpace(m[3])
	if strings.HasPrefix(rest, "@") {
		return Requirement{}, fmt.Errorf("requirement %q: direct URL references are not versioned", raw)
	}
	if strings.HasPrefix(rest, "(") && strings.HasSuffix(rest, ")") {
		rest = strings.TrimSpace(rest[1 : len(rest)-1])
	}

	spec, err := ParseSpecifier(rest)
	if err != nil {
		return Requirement{}, fmt.Errorf("requirement %q: %w", raw, err)
	}
	req.Specifier = spec

	if hasMarker {
		marker, err := ParseMarker(markerText)
		if err != nil {
			return Requirement{}, fmt.Errorf("requirement %q: %w", raw, err)
		}
		req.Marker = marker
	}

	return req, nil
}

// Canonical returns the canonical form of the requirement's name.
func (r Requirement) Canonical() string {
	return Canonicalize(r.Name)
}

// String returns the requirement as written.
func (r Requirement) String() string {
	return r.Raw
}

// Applies reports whether the requirement's marker holds in env. A marker
// that cannot be evaluated is reported as an error together with true, so
// callers that only log the error keep the requirement.
func (r Requirement) Applies(env Environment) (bool, error) {
	if r.Marker == nil {
		return true, nil
	}
	ok, err := r.Marker.Evaluate(env)
	if err != nil {
		return true, err
	}
	return ok, nil
}

// Canonicalize folds a distribution name to its PEP 503 comparable form:
// lower case, with runs of "-", "_" and "." collapsed to "-".
func Canonicalize(name string) string {
	return separatorPattern.ReplaceAllString(strings.ToLower(strings.TrimSpace(name)), "-")
}

// IsPipLine reports whether a requirements-file line is a pip directive or a
// path/VCS reference rather than a named requirement.
func IsPipLine(line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case strings.HasPrefix(line, "-"):
		return true
	case strings.HasPrefix(line, "."), strings.HasPrefix(line, "/"):
		return true
	case strings.Contains(line, "://"), strings.HasPrefix(line, "git+"):
		return true
	}
	return false
}
