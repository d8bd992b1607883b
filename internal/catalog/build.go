package catalog

import (
	"context"

	"golang.org/x/sync/errgroup"

	perrors "github.com/felixgeelhaar/pessimist/internal/errors"
	"github.com/felixgeelhaar/pessimist/internal/log"
	"github.com/felixgeelhaar/pessimist/internal/metrics"
	"github.com/felixgeelhaar/pessimist/internal/registry"
	"github.com/felixgeelhaar/pessimist/internal/requirement"
)

// Wildcard in Options.Overrides lifts the bounds of every dependency.
const Wildcard = "*"

// DefaultConcurrency bounds parallel index lookups.
const DefaultConcurrency = 8

// Options configures Build.
type Options struct {
	Variable    []string
	Fixed       []string
	Overrides   []string
	Fast        bool
	Environment requirement.Environment
	Concurrency int
	Logger      *log.Logger
	Metrics     *metrics.Metrics
}

func (o Options) overridden(name string) bool {
	for _, ov := range o.Overrides {
		if ov == Wildcard || requirement.Canonicalize(ov) == name {
			return true
		}
	}
	return false
}

type pending struct {
	entry *Entry
	pkg   *registry.Package
}

// Build parses the declared requirements, looks every dependency up through
// client and returns the catalog of candidates.
func Build(ctx context.Context, client registry.Client, opts Options) (*Catalog, error) {
	logger := log.OrDefault(opts.Logger)

	var order []*pending
	byName := make(map[string]*pending)

	add := func(raw string, kind Kind) error {
		req, err := requirement.Parse(raw)
		if err != nil {
			return perrors.NewInvalidRequirementError(raw, err)
		}
		if opts.Environment != nil {
			ok, err := req.Applies(opts.Environment)
			if err != nil {
				logger.Warn("cannot evaluate marker, keeping requirement", "requirement", raw, "error", err)
			}
			if !ok {
				logger.Debug("marker excludes requirement", "requirement", raw)
				return nil
			}
		}

		name := req.Canonical()
		p, seen := byName[name]
		if !seen {
			p = &pending{entry: &Entry{Name: name, Kind: kind}}
			byName[name] = p
			order = append(order, p)
		}
		switch {
		case kind == Variable:
			p.entry.Requirements = append(p.entry.Requirements, req)
		case p.entry.Kind == Variable:
			// Also declared variable; the variable declaration decides.
			logger.Debug("dependency is both fixed and variable, treating as variable", "requirement", raw)
		default:
			p.entry.Requirements = append(p.entry.Requirements, req)
		}
		return nil
	}

	for _, raw := range opts.Variable {
		if err := add(raw, Variable); err != nil {
			return nil, err
		}
	}
	for _, raw := range opts.Fixed {
		if err := add(raw, Fixed); err != nil {
			return nil, err
		}
	}

	limit := opts.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, p := range order {
		g.Go(func() error {
			pkg, err := client.ResolveVersions(gctx, p.entry.Name)
			if err != nil {
				return err
			}
			p.pkg = pkg
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	entries := make([]*Entry, 0, len(order))
	for _, p := range order {
		if err := resolve(p, opts, logger); err != nil {
			return nil, err
		}
		opts.Metrics.ObserveCandidates(p.entry.Kind.String(), len(p.entry.Versions))
		logger.Info("resolved dependency",
			"package", p.entry.Name,
			"kind", p.entry.Kind.String(),
			"allowed", len(p.entry.Versions),
			"known", p.entry.Known)
		entries = append(entries, p.entry)
	}

	c, err := New(entries...)
	if err != nil {
		return nil, err
	}
	c.variable = append([]string(nil), opts.Variable...)
	c.fixed = append([]string(nil), opts.Fixed...)
	return c, nil
}

func resolve(p *pending, opts Options, logger *log.Logger) error {
	e := p.entry
	e.Known = len(p.pkg.Versions)

	if opts.overridden(e.Name) {
		e.Overridden = true
		e.Kind = Variable
		e.Versions = append([]requirement.Version(nil), p.pkg.Versions...)
	} else {
		candidates := p.pkg.Versions
		for _, req := range e.Requirements {
			candidates = req.Specifier.Filter(candidates)
		}
		e.Versions = candidates
	}

	if len(e.Versions) == 0 {
		desc := e.Name
		if len(e.Requirements) > 0 {
			desc = e.Requirements[0].String()
		}
		return perrors.NewNoCandidatesError(desc, e.Known)
	}

	if e.Kind == Fixed && len(e.Versions) > 1 {
		logger.Warn("fixed requirement matches several versions, keeping the newest",
			"package", e.Name, "matches", len(e.Versions), "kept", e.Max().String())
		e.Versions = []requirement.Version{e.Max()}
	}

	if opts.Fast && len(e.Versions) > 2 {
		e.Versions = []requirement.Version{e.Floor(), e.Max()}
	}
	return nil
}
