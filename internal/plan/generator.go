package plan

import (
	"github.com/felixgeelhaar/pessimist/internal/catalog"
	"github.com/felixgeelhaar/pessimist/internal/requirement"
)

// Generator derives plans from a catalog.
type Generator struct {
	cat *catalog.Catalog
}

// NewGenerator creates a Generator over cat.
func NewGenerator(cat *catalog.Catalog) *Generator {
	return &Generator{cat: cat}
}

// Max assigns every dependency its newest candidate. It is always the first
// plan run.
func (g *Generator) Max() *Plan {
	return newPlan(Baseline, g.assign(func(e *catalog.Entry) requirement.Version { return e.Max() }))
}

// Min assigns every dependency its oldest candidate.
func (g *Generator) Min() *Plan {
	return newPlan(Floor, g.assign(func(e *catalog.Entry) requirement.Version { return e.Floor() }))
}

// Intermediate returns one Probe per candidate strictly below each
// dependency's newest, each equal to Max except for the probed dependency.
// Probes for one dependency are ordered newest first.
func (g *Generator) Intermediate() []*Plan {
	var plans []*Plan
	for _, e := range g.cat.Entries() {
		for i := len(e.Versions) - 2; i >= 0; i-- {
			probe := Pin{Name: e.Name, Version: e.Versions[i]}
			pins := g.assign(func(other *catalog.Entry) requirement.Version {
				if other.Name == e.Name {
					return probe.Version
				}
				return other.Max()
			})
			p := newPlan(Probe, pins)
			p.probe = probe
			plans = append(plans, p)
		}
	}
	return plans
}

// Joint overrides Max with every entry of minimal. Names not in the catalog
// are ignored.
func (g *Generator) Joint(minimal map[string]requirement.Version) *Plan {
	return newPlan(Joint, g.assign(func(e *catalog.Entry) requirement.Version {
		if v, ok := minimal[e.Name]; ok {
			return v
		}
		return e.Max()
	}))
}

// Schedule lists the plans known before a solve starts: Max followed by Min
// in fast mode, or by every probe otherwise. The joint plan depends on probe
// outcomes and is not included.
func (g *Generator) Schedule(fast bool) []*Plan {
	if fast {
		return []*Plan{g.Max(), g.Min()}
	}
	return append([]*Plan{g.Max()}, g.Intermediate()...)
}

func (g *Generator) assign(pick func(*catalog.Entry) requirement.Version) []Pin {
	entries := g.cat.Entries()
	pins := make([]Pin, len(entries))
	for i, e := range entries {
		pins[i] = Pin{Name: e.Name, Version: pick(e)}
	}
	return pins
}
