// Package registry looks up the releases a package index publishes for a
// distribution name.
package registry

import (
	"context"
	"sort"

	"github.com/felixgeelhaar/pessimist/internal/requirement"
)

// Package is a distribution name plus every usable release the index knows.
type Package struct {
	Name     string
	Versions []requirement.Version
}

// Client resolves the releases of one distribution.
type Client interface {
	ResolveVersions(ctx context.Context, name string) (*Package, error)
}

// ClientFunc adapts a function to the Client interface.
type ClientFunc func(ctx context.Context, name string) (*Package, error)

// ResolveVersions calls f.
func (f ClientFunc) ResolveVersions(ctx context.Context, name string) (*Package, error) {
	return f(ctx, name)
}

// NewPackage builds a Package with versions sorted ascending and duplicates
// (different spellings of one release) removed.
func NewPackage(name string, versions []requirement.Version) *Package {
	vs := append([]requirement.Version(nil), versions...)
	sort.SliceStable(vs, func(i, j int) bool { return vs[i].Less(vs[j]) })

	out := vs[:0]
	for i, v := range vs {
		if i > 0 && v.Equal(out[len(out)-1]) {
			continue
		}
		out = append(out, v)
	}
	return &Package{Name: name, Versions: out}
}
