package plan

import (
	"fmt"

	"github.com/felixgeelhaar/pessimist/internal/catalog"
	"github.com/felixgeelhaar/pessimist/internal/requirement"
)

// Validate checks a plan against the catalog it was generated from: every
// dependency is assigned one of its candidates, and the variant's shape holds.
func (p *Plan) Validate(cat *catalog.Catalog) error {
	if p.Len() != cat.Len() {
		return fmt.Errorf("plan %s pins %d dependencies, catalog has %d", p.Title(), p.Len(), cat.Len())
	}

	varied := 0
	for _, e := range cat.Entries() {
		v, ok := p.Version(e.Name)
		if !ok {
			return fmt.Errorf("plan %s does not pin %s", p.Title(), e.Name)
		}
		if !isCandidate(e, v) {
			return fmt.Errorf("plan %s pins %s==%s, which is not a candidate", p.Title(), e.Name, v)
		}

		switch p.kind {
		case Baseline:
			if !v.Equal(e.Max()) {
				return fmt.Errorf("max plan pins %s==%s, want newest %s", e.Name, v, e.Max())
			}
		case Floor:
			if !v.Equal(e.Floor()) {
				return fmt.Errorf("min plan pins %s==%s, want oldest %s", e.Name, v, e.Floor())
			}
		case Probe:
			if !v.Equal(e.Max()) {
				varied++
				if e.Name != p.probe.Name {
					return fmt.Errorf("plan %s also lowers %s", p.Title(), e.Name)
				}
			}
		}
	}

	if p.kind == Probe && varied != 1 {
		return fmt.Errorf("plan %s must lower exactly one dependency, lowers %d", p.Title(), varied)
	}
	return nil
}

// ValidateAll validates every plan in order and returns the first error.
func ValidateAll(plans []*Plan, cat *catalog.Catalog) error {
	for i, p := range plans {
		if err := p.Validate(cat); err != nil {
			return fmt.Errorf("plan at index %d: %w", i, err)
		}
	}
	return nil
}

func isCandidate(e *catalog.Entry, v requirement.Version) bool {
	for _, c := range e.Versions {
		if c.Equal(v) {
			return true
		}
	}
	return false
}
