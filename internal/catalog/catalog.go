// Package catalog resolves declared requirements into the ordered candidate
// versions a solve will try for each dependency.
package catalog

import (
	"fmt"

	"github.com/felixgeelhaar/pessimist/internal/requirement"
)

// Kind says how a dependency is treated by the solver.
type Kind int

const (
	// Variable dependencies keep every matching version as a candidate.
	Variable Kind = iota
	// Fixed dependencies resolve to exactly one version.
	Fixed
)

func (k Kind) String() string {
	if k == Fixed {
		return "fixed"
	}
	return "variable"
}

// Entry is one dependency and its candidate versions, ascending.
type Entry struct {
	Name         string
	Kind         Kind
	Overridden   bool
	Requirements []requirement.Requirement
	Versions     []requirement.Version
	Known        int
}

// Floor returns the lowest candidate.
func (e *Entry) Floor() requirement.Version {
	return e.Versions[0]
}

// Max returns the highest candidate.
func (e *Entry) Max() requirement.Version {
	return e.Versions[len(e.Versions)-1]
}

// Catalog is the read-only result of Build. Names keep declaration order,
// variable dependencies first.
type Catalog struct {
	entries  []*Entry
	index    map[string]*Entry
	variable []string
	fixed    []string
}

// New assembles a catalog from entries, checking that every entry has at
// least one candidate and that candidates ascend strictly.
func New(entries ...*Entry) (*Catalog, error) {
	c := &Catalog{index: make(map[string]*Entry, len(entries))}
	for _, e := range entries {
		if len(e.Versions) == 0 {
			return nil, fmt.Errorf("catalog entry %s has no candidate versions", e.Name)
		}
		for i := 1; i < len(e.Versions); i++ {
			if !e.Versions[i-1].Less(e.Versions[i]) {
				return nil, fmt.Errorf("catalog entry %s: candidates not ascending at %s", e.Name, e.Versions[i])
			}
		}
		if _, dup := c.index[e.Name]; dup {
			return nil, fmt.Errorf("catalog entry %s appears twice", e.Name)
		}
		c.entries = append(c.entries, e)
		c.index[e.Name] = e
	}
	return c, nil
}

// MustNew is New for tests and literals; it panics on error.
func MustNew(entries ...*Entry) *Catalog {
	c, err := New(entries...)
	if err != nil {
		panic(err)
	}
	return c
}

// Len returns the number of dependencies.
func (c *Catalog) Len() int { return len(c.entries) }

// Names returns the dependency names in catalog order.
func (c *Catalog) Names() []string {
	names := make([]string, len(c.entries))
	for i, e := range c.entries {
		names[i] = e.Name
	}
	return names
}

// Entries returns the entries in catalog order.
func (c *Catalog) Entries() []*Entry {
	return c.entries
}

// Entry looks up one dependency by canonical name.
func (c *Catalog) Entry(name string) (*Entry, bool) {
	e, ok := c.index[requirement.Canonicalize(name)]
	return e, ok
}

// Versions returns the candidates for name, or nil.
func (c *Catalog) Versions(name string) []requirement.Version {
	if e, ok := c.Entry(name); ok {
		return e.Versions
	}
	return nil
}

// Declared returns the requirement strings read for each group, as written.
func (c *Catalog) Declared() (variable, fixed []string) {
	return c.variable, c.fixed
}

// PlanCount is the number of plans a thorough solve dispatches: the baseline,
// one probe per non-maximum candidate, and the joint verification.
func (c *Catalog) PlanCount() int {
	n := 2
	for _, e := range c.entries {
		n += len(e.Versions) - 1
	}
	return n
}
