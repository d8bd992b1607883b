// Package solve runs plans against isolated environments and reduces their
// outcomes into the lowest versions each dependency still passes with.
package solve

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/felixgeelhaar/pessimist/internal/catalog"
	"github.com/felixgeelhaar/pessimist/internal/exec"
	"github.com/felixgeelhaar/pessimist/internal/exitcode"
	"github.com/felixgeelhaar/pessimist/internal/log"
	"github.com/felixgeelhaar/pessimist/internal/metrics"
	"github.com/felixgeelhaar/pessimist/internal/plan"
	"github.com/felixgeelhaar/pessimist/internal/requirement"
)

// Solve statuses.
const (
	StatusOK          = exitcode.Success
	StatusFailed      = exitcode.GeneralError
	StatusJointFailed = exitcode.JointFailure
)

// Observer is told how many plans were scheduled and how each one ended.
// It is only called from the aggregating goroutine.
type Observer interface {
	Scheduled(n int)
	Completed(title string, ok bool)
}

// Config configures a Solver.
type Config struct {
	Catalog     *catalog.Catalog
	Provisioner exec.Provisioner
	Command     string
	Parallelism int
	Fast        bool

	// Out receives the report. Defaults to stdout.
	Out       io.Writer
	Observer  Observer
	Logger    *log.Logger
	Metrics   *metrics.Metrics
	Manifests *exec.ManifestWriter
}

// Suggestion recommends raising a lower bound.
type Suggestion struct {
	Name    string
	Version requirement.Version
}

func (s Suggestion) String() string {
	return fmt.Sprintf("%s>=%s", s.Name, s.Version)
}

// Inconsistency records a failing version above a passing one for the same
// dependency.
type Inconsistency struct {
	Name    string
	Failed  requirement.Version
	Passing requirement.Version
}

// Report is the outcome of a solve.
type Report struct {
	Status int
	Fast   bool

	// Results holds every plan outcome in completion order.
	Results []Result

	// Minimal maps a dependency to the lowest version observed passing on
	// its own.
	Minimal map[string]requirement.Version

	// JointVerified is true once the combined minimum set has passed.
	JointVerified   bool
	Suggestions     []Suggestion
	Inconsistencies []Inconsistency
	Duration        time.Duration
}

// Solver drives the baseline, probing and joint verification phases.
type Solver struct {
	cfg    Config
	gen    *plan.Generator
	out    io.Writer
	logger *log.Logger
}

// New creates a Solver.
func New(cfg Config) (*Solver, error) {
	if cfg.Catalog == nil {
		return nil, errors.New("solve: catalog is required")
	}
	if cfg.Provisioner == nil {
		return nil, errors.New("solve: provisioner is required")
	}
	if cfg.Command == "" {
		return nil, errors.New("solve: test command is required")
	}
	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}
	return &Solver{
		cfg:    cfg,
		gen:    plan.NewGenerator(cfg.Catalog),
		out:    out,
		logger: log.OrDefault(cfg.Logger),
	}, nil
}

// Solve runs every phase and returns the report. The error is non-nil only
// when ctx ended the run early; the report is still returned.
func (s *Solver) Solve(ctx context.Context) (*Report, error) {
	start := time.Now()
	report := &Report{
		Fast:    s.cfg.Fast,
		Minimal: make(map[string]requirement.Version),
	}

	pool := NewPool(PoolConfig{
		Provisioner: s.cfg.Provisioner,
		Command:     s.cfg.Command,
		Parallelism: s.cfg.Parallelism,
		Fast:        s.cfg.Fast,
		QueueSize:   s.cfg.Catalog.PlanCount() + 1,
		Logger:      s.cfg.Logger,
		Metrics:     s.cfg.Metrics,
		Manifests:   s.cfg.Manifests,
	})
	s.logger.Debug("starting workers", "workers", pool.Size(), "runner", s.cfg.Provisioner.Name())
	pool.Start(ctx)

	agg := &aggregator{
		solver: s,
		pool:   pool,
		report: report,
		failed:  make(map[string][]requirement.Version),
		flagged: make(map[flagKey]int),
	}
	report.Status = agg.run(ctx)

	pool.Close()
	report.Duration = time.Since(start)

	mode := "thorough"
	if s.cfg.Fast {
		mode = "fast"
	}
	s.cfg.Metrics.ObserveSolve(mode, report.Status, report.Duration, len(report.Suggestions))

	if err := ctx.Err(); err != nil {
		return report, err
	}
	return report, nil
}

// aggregator is the only writer of the minimal map and the cancellation flag.
type aggregator struct {
	solver *Solver
	pool   *Pool
	report *Report
	failed map[string][]requirement.Version

	// flagged indexes report.Inconsistencies by name and failing version.
	flagged map[flagKey]int
}

type flagKey struct{ name, failed string }

func (a *aggregator) run(ctx context.Context) int {
	if !a.runFatal(a.solver.gen.Max()) {
		return StatusFailed
	}
	if ctx.Err() != nil {
		return StatusFailed
	}

	if a.solver.cfg.Fast {
		if !a.runFatal(a.solver.gen.Min()) {
			return StatusFailed
		}
		a.suggest()
		return StatusOK
	}

	status := a.probe()
	if status != StatusOK || ctx.Err() != nil {
		return StatusFailed
	}

	if len(a.report.Minimal) == 0 {
		// The joint plan would equal the baseline, which already passed.
		a.suggest()
		return StatusOK
	}

	if !a.runFatal(a.solver.gen.Joint(a.report.Minimal)) {
		return StatusJointFailed
	}
	a.report.JointVerified = true
	a.suggest()
	return StatusOK
}

// runFatal dispatches a single fatal plan and waits for it.
func (a *aggregator) runFatal(p *plan.Plan) bool {
	a.observer().Scheduled(1)
	a.pool.Dispatch(p)
	r := a.next()
	if !r.Success() {
		a.pool.Cancel()
		return false
	}
	return true
}

// probe dispatches every single-substitution plan and reduces the results.
func (a *aggregator) probe() int {
	probes := a.solver.gen.Intermediate()
	a.observer().Scheduled(len(probes))
	for _, p := range probes {
		a.pool.Dispatch(p)
	}

	status := StatusOK
	for range probes {
		r := a.next()
		if r.Skipped {
			continue
		}
		if !r.Success() {
			if r.Plan.Fatal() {
				a.pool.Cancel()
				status = StatusFailed
			}
			if pin, ok := r.Plan.Probed(); ok {
				a.recordFailure(pin)
			}
			continue
		}
		if pin, ok := r.Plan.Probed(); ok {
			a.recordPass(pin)
		}
	}
	return status
}

// recordPass lowers the minimum for the probed name. The reduction is a
// plain minimum, so completion order does not matter.
func (a *aggregator) recordPass(pin plan.Pin) {
	minimal := a.report.Minimal
	if cur, ok := minimal[pin.Name]; !ok || pin.Version.Less(cur) {
		minimal[pin.Name] = pin.Version
	}
	for _, f := range a.failed[pin.Name] {
		if pin.Version.Less(f) {
			a.inconsistent(pin.Name, f, pin.Version)
		}
	}
}

func (a *aggregator) recordFailure(pin plan.Pin) {
	a.failed[pin.Name] = append(a.failed[pin.Name], pin.Version)
	if cur, ok := a.report.Minimal[pin.Name]; ok && cur.Less(pin.Version) {
		a.inconsistent(pin.Name, pin.Version, cur)
	}
}

// inconsistent flags each failing version once, against the lowest passing
// version seen, so the report does not depend on completion order.
func (a *aggregator) inconsistent(name string, failed, passing requirement.Version) {
	key := flagKey{name: name, failed: failed.String()}
	if i, ok := a.flagged[key]; ok {
		if passing.Less(a.report.Inconsistencies[i].Passing) {
			a.report.Inconsistencies[i].Passing = passing
		}
		return
	}
	a.flagged[key] = len(a.report.Inconsistencies)
	a.report.Inconsistencies = append(a.report.Inconsistencies, Inconsistency{
		Name:    name,
		Failed:  failed,
		Passing: passing,
	})
	a.solver.cfg.Metrics.ObserveInconsistency(name)
	a.solver.logger.Warn("inconsistent results: a newer version failed where an older one passed",
		"package", name, "failed", failed.String())
}

// suggest compares each effective minimum against the catalog floor.
func (a *aggregator) suggest() {
	cat := a.solver.cfg.Catalog
	for _, e := range cat.Entries() {
		eff, _ := a.report.Effective(cat, e.Name)
		if !eff.Equal(e.Floor()) {
			a.report.Suggestions = append(a.report.Suggestions, Suggestion{Name: e.Name, Version: eff})
		}
	}

	if len(a.report.Suggestions) == 0 {
		fmt.Fprintln(a.solver.out, "bounds already minimal")
		return
	}
	for _, sg := range a.report.Suggestions {
		fmt.Fprintf(a.solver.out, "Suggest narrowing: %s\n", sg)
	}
}

// next blocks for one result, prints its outcome line and records it.
func (a *aggregator) next() Result {
	r := <-a.pool.Results()
	a.report.Results = append(a.report.Results, r)
	a.observer().Completed(r.Plan.Title(), r.Success())

	switch {
	case r.Skipped:
		fmt.Fprintf(a.solver.out, "%-4s %s\n", "SKIP", r.Plan.Title())
	case r.Success():
		fmt.Fprintf(a.solver.out, "%-4s %s\n", "OK", r.Plan.Title())
	default:
		fmt.Fprintf(a.solver.out, "FAIL %s: %s\n", r.Plan.Title(), r.Err)
	}
	return r
}

func (a *aggregator) observer() Observer {
	if a.solver.cfg.Observer == nil {
		return nopObserver{}
	}
	return a.solver.cfg.Observer
}

type nopObserver struct{}

func (nopObserver) Scheduled(int)          {}
func (nopObserver) Completed(string, bool) {}

// Effective returns the lowest version to recommend for name: the floor in
// fast mode, otherwise the observed minimum, or the maximum when no lower
// version passed.
func (r *Report) Effective(cat *catalog.Catalog, name string) (requirement.Version, bool) {
	e, ok := cat.Entry(name)
	if !ok {
		return requirement.Version{}, false
	}
	if r.Fast {
		return e.Floor(), true
	}
	if v, ok := r.Minimal[e.Name]; ok {
		return v, true
	}
	return e.Max(), true
}
