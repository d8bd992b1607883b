package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/felixgeelhaar/pessimist/internal/errors"
	"github.com/felixgeelhaar/pessimist/internal/exec"
	"github.com/felixgeelhaar/pessimist/internal/exitcode"
)

// execute runs the command tree with args and returns what it printed.
func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(args)
	err := root.ExecuteContext(t.Context())
	return stdout.String(), stderr.String(), err
}

// indexServer serves release lists for the given packages.
func indexServer(t *testing.T, releases map[string][]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		name := strings.TrimSuffix(strings.TrimPrefix(r.URL.Path, "/"), "/json")
		versions, ok := releases[name]
		if !ok {
			http.NotFound(w, r)
			return
		}
		doc := map[string]any{
			"info":     map[string]string{"name": name},
			"releases": map[string][]map[string]any{},
		}
		rel := doc["releases"].(map[string][]map[string]any)
		for _, v := range versions {
			rel[v] = []map[string]any{{"filename": name + "-" + v + ".tar.gz", "yanked": false}}
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(doc)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func writeProject(t *testing.T, deps ...string) string {
	t.Helper()
	dir := t.TempDir()
	quoted := make([]string, len(deps))
	for i, d := range deps {
		quoted[i] = fmt.Sprintf("%q", d)
	}
	pyproject := fmt.Sprintf("[project]\nname = \"demo\"\ndependencies = [%s]\n", strings.Join(quoted, ", "))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "pyproject.toml"), []byte(pyproject), 0o644))
	return dir
}

type stubProvisioner struct {
	fails func(pins []string) bool

	mu   sync.Mutex
	runs [][]string
}

func (s *stubProvisioner) Name() string { return "stub" }

func (s *stubProvisioner) Create(context.Context) (exec.Environment, error) {
	return &stubEnv{owner: s}, nil
}

type stubEnv struct {
	owner *stubProvisioner
	pins  []string
}

func (e *stubEnv) Install(_ context.Context, pins []string) (*exec.Output, error) {
	e.pins = pins
	return &exec.Output{}, nil
}

func (e *stubEnv) Run(context.Context, string) (*exec.Output, error) {
	e.owner.mu.Lock()
	e.owner.runs = append(e.owner.runs, e.pins)
	e.owner.mu.Unlock()
	if e.owner.fails != nil && e.owner.fails(e.pins) {
		out := &exec.Output{ExitCode: 1, Combined: "boom\n"}
		return out, &exec.ExitError{Step: "test command", Output: out}
	}
	return &exec.Output{}, nil
}

func (e *stubEnv) Dispose() error { return nil }

// useProvisioner swaps the runner factory for the duration of the test.
func useProvisioner(t *testing.T, p exec.Provisioner) {
	t.Helper()
	orig := newProvisioner
	newProvisioner = func(*session) (exec.Provisioner, error) { return p, nil }
	t.Cleanup(func() { newProvisioner = orig })
}

func failingPin(pin string) func([]string) bool {
	return func(pins []string) bool { return slices.Contains(pins, pin) }
}

func TestSolveNarrowsBounds(t *testing.T) {
	srv := indexServer(t, map[string][]string{"alpha": {"1.0", "1.1", "2.0"}})
	dir := writeProject(t, "alpha>=1.0")
	prov := &stubProvisioner{fails: failingPin("alpha==1.0")}
	useProvisioner(t, prov)

	manifests := filepath.Join(t.TempDir(), "manifests")
	metricsFile := filepath.Join(t.TempDir(), "metrics.prom")
	out, _, err := execute(t, "solve", "--no-cache", "--index-url", srv.URL, "-p", "2",
		"--manifest-dir", manifests, "--metrics-file", metricsFile, dir)
	require.NoError(t, err)

	assert.Contains(t, out, "Summary\n=======\nVariable ['alpha>=1.0']\nFixed []\n")
	assert.Contains(t, out, "Versions\n========\nalpha ['1.0', '1.1', '2.0']\n")
	assert.Contains(t, out, "OK   max\n")
	assert.Contains(t, out, "FAIL alpha:1.0")
	assert.Contains(t, out, "Suggest narrowing: alpha>=1.1\n")

	files, err := filepath.Glob(filepath.Join(manifests, "*.json"))
	require.NoError(t, err)
	assert.Len(t, files, 4)

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), "pessimist_")
}

func TestSolveBaselineFailure(t *testing.T) {
	srv := indexServer(t, map[string][]string{"alpha": {"1.0", "2.0"}})
	dir := writeProject(t, "alpha")
	useProvisioner(t, &stubProvisioner{fails: failingPin("alpha==2.0")})

	out, _, err := execute(t, "solve", "--no-cache", "--index-url", srv.URL, dir)

	var status *StatusError
	require.ErrorAs(t, err, &status)
	assert.Equal(t, exitcode.GeneralError, status.Status)
	assert.Contains(t, out, "FAIL max")
	assert.NotContains(t, out, "Suggest narrowing")
}

func TestSolveFast(t *testing.T) {
	srv := indexServer(t, map[string][]string{"alpha": {"1.0", "1.5", "2.0"}})
	dir := writeProject(t, "alpha>=1.0")
	prov := &stubProvisioner{}
	useProvisioner(t, prov)

	out, _, err := execute(t, "solve", "--fast", "--no-cache", "--index-url", srv.URL, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "alpha ['1.0', '2.0']\n")
	assert.Contains(t, out, "bounds already minimal\n")
	assert.Len(t, prov.runs, 2)
}

func TestSolveProgressTotals(t *testing.T) {
	t.Setenv("CI", "true")
	srv := indexServer(t, map[string][]string{"alpha": {"1.0", "1.5", "2.0"}})
	dir := writeProject(t, "alpha>=1.0")

	tests := []struct {
		name  string
		args  []string
		lines []string
	}{
		{name: "fast", args: []string{"--fast"}, lines: []string{"✓ max [1/2]", "✓ min [2/2]"}},
		{name: "thorough", args: nil, lines: []string{"✓ max [1/3]", "[3/3]", "✓ min [4/4]"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			useProvisioner(t, &stubProvisioner{})
			args := append([]string{"solve", "--progress", "--no-cache", "--index-url", srv.URL}, tt.args...)
			_, errOut, err := execute(t, append(args, dir)...)
			require.NoError(t, err)
			for _, line := range tt.lines {
				assert.Contains(t, errOut, line)
			}
		})
	}
}

func TestSolveUnknownPackage(t *testing.T) {
	srv := indexServer(t, map[string][]string{})
	dir := writeProject(t, "ghost")
	useProvisioner(t, &stubProvisioner{})

	metricsFile := filepath.Join(t.TempDir(), "metrics.prom")

	_, _, err := execute(t, "solve", "--no-cache", "--index-url", srv.URL, "--metrics-file", metricsFile, dir)
	require.Error(t, err)
	assert.Equal(t, exitcode.ResolutionError, exitcode.DetermineExitCode(err))

	data, err := os.ReadFile(metricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(data), `pessimist_errors_total{error_code="REGISTRY-001"} 1`)
}

func TestSolveUsageErrors(t *testing.T) {
	dir := writeProject(t, "alpha")

	tests := []struct {
		name string
		args []string
		code int
	}{
		{name: "no target", args: []string{"solve"}, code: exitcode.UsageError},
		{name: "two targets", args: []string{"solve", dir, dir}, code: exitcode.UsageError},
		{name: "unknown flag", args: []string{"solve", "--bogus", dir}, code: exitcode.UsageError},
		{name: "zero parallelism", args: []string{"solve", "-p", "0", dir}, code: exitcode.UsageError},
		{name: "unknown runner", args: []string{"solve", "--runner", "podman", dir}, code: exitcode.UsageError},
		{name: "missing target", args: []string{"solve", filepath.Join(dir, "nope")}, code: exitcode.GeneralError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := execute(t, tt.args...)
			require.Error(t, err)
			assert.Equal(t, tt.code, exitcode.DetermineExitCode(err))
		})
	}
}

func TestPlanCommand(t *testing.T) {
	srv := indexServer(t, map[string][]string{"alpha": {"1.0", "1.1", "2.0"}})
	dir := writeProject(t, "alpha>=1.0")
	useProvisioner(t, &stubProvisioner{})

	out, _, err := execute(t, "plan", "--no-cache", "--index-url", srv.URL, dir)
	require.NoError(t, err)
	assert.Contains(t, out, `"title": "max"`)
	assert.Contains(t, out, `"title": "alpha:1.1"`)
	assert.Contains(t, out, `"title": "alpha:1.0"`)

	path := filepath.Join(t.TempDir(), "plans.json")
	out, _, err = execute(t, "plan", "--fast", "--no-cache", "--index-url", srv.URL, "--out", path, dir)
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("Wrote 2 plans to %s\n", path), out)
	assert.FileExists(t, path)
}

func TestCatalogCommand(t *testing.T) {
	srv := indexServer(t, map[string][]string{"alpha": {"1.0", "2.0", "3.0"}})
	dir := writeProject(t, "alpha<3")
	useProvisioner(t, &stubProvisioner{})

	out, _, err := execute(t, "catalog", "--no-cache", "--index-url", srv.URL, dir)
	require.NoError(t, err)
	assert.Contains(t, out, "alpha ['1.0', '2.0']\n")
	assert.Contains(t, out, "plans in thorough mode\n")

	out, _, err = execute(t, "catalog", "--json", "--no-cache", "--index-url", srv.URL, "--extend", "alpha", dir)
	require.NoError(t, err)
	var entries []catalogEntryJSON
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, "alpha", entries[0].Name)
	assert.True(t, entries[0].Overridden)
	assert.Equal(t, []string{"1.0", "2.0", "3.0"}, entries[0].Versions)
}

func TestVersionCommand(t *testing.T) {
	out, _, err := execute(t, "version")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "pessimist "))

	out, _, err = execute(t, "version", "--json")
	require.NoError(t, err)
	var info map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.NotEmpty(t, info["version"])
}

func TestCachePrune(t *testing.T) {
	dir := t.TempDir()

	out, _, err := execute(t, "cache", "prune", "--cache-dir", dir, "--max-age", "0s")
	require.NoError(t, err)
	assert.Equal(t, fmt.Sprintf("Pruned 0 entries from %s\n", dir), out)

	out, _, err = execute(t, "cache", "path", "--cache-dir", dir)
	require.NoError(t, err)
	assert.Equal(t, dir+"\n", out)
}

func TestPyList(t *testing.T) {
	tests := []struct {
		in   []string
		want string
	}{
		{nil, "[]"},
		{[]string{"a"}, "['a']"},
		{[]string{"a>=1", "b (<2)"}, "['a>=1', 'b (<2)']"},
		{[]string{"it's"}, `['it\'s']`},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, pyList(tt.in))
	}
}

func TestStatusErrorMessage(t *testing.T) {
	err := &StatusError{Status: exitcode.JointFailure}
	assert.Contains(t, err.Error(), "status 2")
}

func TestUsageErrorCode(t *testing.T) {
	err := usageError(fmt.Errorf("bad"))
	assert.True(t, perrors.HasCode(err, perrors.ErrCodeConfigInvalid))
}

type probingProvisioner struct {
	stubProvisioner
	version string
	err     error
}

func (p *probingProvisioner) PythonVersion(context.Context) (string, error) { return p.version, p.err }

func TestDoctor(t *testing.T) {
	srv := indexServer(t, map[string][]string{"pip": {"23.0", "24.0"}})
	dir := t.TempDir()

	t.Run("healthy", func(t *testing.T) {
		useProvisioner(t, &probingProvisioner{version: "3.12.1"})
		out, _, err := execute(t, "doctor", "--index-url", srv.URL, "--cache-dir", t.TempDir(), dir)
		require.NoError(t, err)
		assert.Contains(t, out, "Python 3.12.1")
		assert.Contains(t, out, "index lists releases of pip")
		assert.Contains(t, out, "Overall: healthy")
	})

	t.Run("broken interpreter", func(t *testing.T) {
		useProvisioner(t, &probingProvisioner{err: fmt.Errorf("python3.99: not found")})
		out, _, err := execute(t, "doctor", "--json", "--no-cache", "--index-url", srv.URL, dir)

		var status *StatusError
		require.ErrorAs(t, err, &status)
		assert.Equal(t, exitcode.GeneralError, status.Status)

		var report doctorReport
		require.NoError(t, json.Unmarshal([]byte(out), &report))
		assert.Equal(t, "unhealthy", string(report.Status))
		require.Len(t, report.Checks, 2)
		assert.Equal(t, "stub-python", report.Checks[0].Name)
	})
}
