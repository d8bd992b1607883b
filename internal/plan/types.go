// Package plan derives the version assignments a solve installs and tests.
package plan

import (
	"fmt"

	"github.com/felixgeelhaar/pessimist/internal/requirement"
)

// Kind discriminates the plan variants.
type Kind int

const (
	// Baseline assigns every dependency its newest candidate.
	Baseline Kind = iota
	// Floor assigns every dependency its oldest candidate.
	Floor
	// Probe lowers exactly one dependency below its newest candidate.
	Probe
	// Joint combines every discovered minimum.
	Joint
)

// String returns the kind name used in logs and JSON.
func (k Kind) String() string {
	switch k {
	case Baseline:
		return "baseline"
	case Floor:
		return "floor"
	case Probe:
		return "probe"
	case Joint:
		return "joint"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ParseKind is the inverse of Kind.String.
func ParseKind(s string) (Kind, error) {
	for _, k := range []Kind{Baseline, Floor, Probe, Joint} {
		if k.String() == s {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown plan kind %q", s)
}

// Pin is one dependency fixed to one version.
type Pin struct {
	Name    string              `json:"name"`
	Version requirement.Version `json:"version"`
}

// String renders the pin as an installer argument, name==version.
func (p Pin) String() string {
	return p.Name + "==" + p.Version.String()
}

// Plan assigns exactly one version to every dependency in a catalog. Plans
// are immutable once generated.
type Plan struct {
	kind  Kind
	pins  []Pin
	index map[string]int
	probe Pin
}

func newPlan(kind Kind, pins []Pin) *Plan {
	p := &Plan{kind: kind, pins: pins, index: make(map[string]int, len(pins))}
	for i, pin := range pins {
		p.index[pin.Name] = i
	}
	return p
}

// Kind returns the plan variant.
func (p *Plan) Kind() Kind { return p.kind }

// Title names the plan in the report: "max", "min" or "name:version".
// Floor and Joint plans both verify a set of minimums and share "min".
func (p *Plan) Title() string {
	switch p.kind {
	case Baseline:
		return "max"
	case Probe:
		return p.probe.Name + ":" + p.probe.Version.String()
	default:
		return "min"
	}
}

// Fatal reports whether a failure of this plan ends the solve. Only probes
// are informational.
func (p *Plan) Fatal() bool {
	return p.kind != Probe
}

// Probed returns the dependency a Probe plan lowers. ok is false for every
// other kind.
func (p *Plan) Probed() (pin Pin, ok bool) {
	if p.kind != Probe {
		return Pin{}, false
	}
	return p.probe, true
}

// Version returns the version assigned to name.
func (p *Plan) Version(name string) (requirement.Version, bool) {
	i, ok := p.index[requirement.Canonicalize(name)]
	if !ok {
		return requirement.Version{}, false
	}
	return p.pins[i].Version, true
}

// Pins returns the assignment in catalog order.
func (p *Plan) Pins() []Pin {
	return append([]Pin(nil), p.pins...)
}

// Requirements renders the assignment as installer arguments.
func (p *Plan) Requirements() []string {
	out := make([]string, len(p.pins))
	for i, pin := range p.pins {
		out[i] = pin.String()
	}
	return out
}

// Len returns the number of pinned dependencies.
func (p *Plan) Len() int { return len(p.pins) }

func (p *Plan) String() string {
	return p.Title()
}
