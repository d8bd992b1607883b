package solve

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"

	"github.com/felixgeelhaar/pessimist/internal/catalog"
	"github.com/felixgeelhaar/pessimist/internal/exec"
	"github.com/felixgeelhaar/pessimist/internal/requirement"
)

// fakeProvisioner hands out environments whose test command passes when
// pass returns true for the installed pins.
type fakeProvisioner struct {
	pass      func(pins []string) bool
	createErr error
	// gate, when set, holds every test run until it is closed.
	gate chan struct{}

	mu       sync.Mutex
	created  int
	disposed int
	runs     [][]string
}

func (f *fakeProvisioner) Name() string { return "fake" }

func (f *fakeProvisioner) Create(context.Context) (exec.Environment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return nil, f.createErr
	}
	f.created++
	return &fakeEnv{owner: f}, nil
}

func (f *fakeProvisioner) ran() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.runs...)
}

type fakeEnv struct {
	owner *fakeProvisioner
	pins  []string
}

func (e *fakeEnv) Install(_ context.Context, pins []string) (*exec.Output, error) {
	e.pins = append([]string(nil), pins...)
	return &exec.Output{Combined: "installed " + strings.Join(pins, " ") + "\n"}, nil
}

func (e *fakeEnv) Run(ctx context.Context, _ string) (*exec.Output, error) {
	if e.owner.gate != nil {
		select {
		case <-e.owner.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	e.owner.mu.Lock()
	e.owner.runs = append(e.owner.runs, e.pins)
	e.owner.mu.Unlock()

	if e.owner.pass == nil || e.owner.pass(e.pins) {
		return &exec.Output{}, nil
	}
	out := &exec.Output{ExitCode: 1, Combined: "assertion failed\n"}
	return out, &exec.ExitError{Step: "test command", Output: out}
}

func (e *fakeEnv) Dispose() error {
	e.owner.mu.Lock()
	defer e.owner.mu.Unlock()
	e.owner.disposed++
	return nil
}

var errProvision = errors.New("python3: not found")

// failWhen fails any run whose pins include one of the given lines.
func failWhen(lines ...string) func([]string) bool {
	return func(pins []string) bool {
		for _, p := range pins {
			for _, l := range lines {
				if p == l {
					return false
				}
			}
		}
		return true
	}
}

// failWhenAll fails runs whose pins include every given line.
func failWhenAll(lines ...string) func([]string) bool {
	return func(pins []string) bool {
		have := make(map[string]bool, len(pins))
		for _, p := range pins {
			have[p] = true
		}
		for _, l := range lines {
			if !have[l] {
				return true
			}
		}
		return false
	}
}

func versions(raw ...string) []requirement.Version {
	out := make([]requirement.Version, len(raw))
	for i, r := range raw {
		out[i] = requirement.MustParseVersion(r)
	}
	return out
}

// abCatalog is {a: [1,2,3], b: [5,6]}.
func abCatalog() *catalog.Catalog {
	return catalog.MustNew(
		&catalog.Entry{Name: "a", Versions: versions("1", "2", "3")},
		&catalog.Entry{Name: "b", Versions: versions("5", "6")},
	)
}

type countingObserver struct {
	scheduled int
	completed []string
	passed    int
}

func (o *countingObserver) Scheduled(n int) { o.scheduled += n }

func (o *countingObserver) Completed(title string, ok bool) {
	o.completed = append(o.completed, title)
	if ok {
		o.passed++
	}
}

func filepathGlob(dir string) ([]string, error) {
	return filepath.Glob(filepath.Join(dir, "*.json"))
}
