package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pessimist/internal/catalog"
	perrors "github.com/felixgeelhaar/pessimist/internal/errors"
	"github.com/felixgeelhaar/pessimist/internal/exec"
	"github.com/felixgeelhaar/pessimist/internal/log"
	"github.com/felixgeelhaar/pessimist/internal/metrics"
	"github.com/felixgeelhaar/pessimist/internal/project"
	"github.com/felixgeelhaar/pessimist/internal/registry"
	"github.com/felixgeelhaar/pessimist/internal/requirement"
)

// indexTimeout bounds a single index request.
const indexTimeout = 30 * time.Second

// session is the resolved state of one command invocation against a
// project directory.
type session struct {
	dir      string
	opts     *options
	logger   *log.Logger
	registry *prometheus.Registry
	metrics  *metrics.Metrics
}

// newSession resolves the target directory, merges the config file into o
// and validates the result.
func newSession(cmd *cobra.Command, target string, o *options) (*session, error) {
	cmdCtx, err := NewCommandContext(cmd)
	if err != nil {
		return nil, fmt.Errorf("failed to create command context: %w", err)
	}

	dir, err := filepath.Abs(target)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeProjectNotFound, fmt.Sprintf("invalid project directory: %s", target), err)
	}
	if info, err := os.Stat(dir); err != nil || !info.IsDir() {
		return nil, perrors.New(perrors.ErrCodeProjectNotFound, fmt.Sprintf("project directory not found: %s", target))
	}

	config, err := loadFileConfig(configPathFor(cmdCtx.ConfigPath, dir), cmdCtx.ConfigPath != "")
	if err != nil {
		return nil, err
	}
	if err := o.applyConfig(cmd, config); err != nil {
		return nil, err
	}

	switch o.Runner {
	case "venv", "docker":
	default:
		return nil, perrors.New(perrors.ErrCodeEnvUnknownRunner, fmt.Sprintf("unknown runner %q", o.Runner)).
			WithSuggestion("Use --runner venv or --runner docker")
	}
	if o.Parallelism < 1 {
		return nil, usageError(fmt.Errorf("parallelism must be at least 1, got %d", o.Parallelism))
	}

	reg, m := metrics.NewRegistry()
	return &session{
		dir:      dir,
		opts:     o,
		logger:   log.DefaultLogger(),
		registry: reg,
		metrics:  m,
	}, nil
}

// newProvisioner builds the configured runner. Tests replace it.
var newProvisioner = func(s *session) (exec.Provisioner, error) {
	o := s.opts
	policy := o.Policy
	if policy == nil {
		policy = exec.DefaultPolicy()
	}

	switch o.Runner {
	case "docker":
		return &exec.Docker{
			Image:      o.Image,
			ProjectDir: s.dir,
			Network:    o.Network,
			CPU:        o.CPU,
			Mem:        o.Memory,
			Env:        o.Env,
			PipArgs:    o.PipArgs,
			Policy:     policy,
			Logger:     s.logger,
			Metrics:    s.metrics,
		}, nil
	case "venv":
		return &exec.Venv{
			Python:     o.Python,
			ProjectDir: s.dir,
			PipArgs:    o.PipArgs,
			Policy:     policy,
			Logger:     s.logger,
			Metrics:    s.metrics,
		}, nil
	}
	return nil, perrors.New(perrors.ErrCodeEnvUnknownRunner, fmt.Sprintf("unknown runner %q", o.Runner))
}

// declarations loads the project's requirements. A runner that can run the
// build backend resolves dynamic dependencies.
func (s *session) declarations(ctx context.Context, prov exec.Provisioner) (*project.Declarations, error) {
	opts := project.Options{
		Requirements: s.opts.Requirements,
		Extras:       s.opts.Extras,
		Logger:       s.logger,
	}
	if mr, ok := prov.(project.MetadataReader); ok {
		opts.Metadata = mr
	}
	return project.NewFileRepository().Load(ctx, s.dir, opts)
}

// indexClient returns the PyPI client, fronted by the disk cache unless
// caching is off.
func (s *session) indexClient() registry.Client {
	pypi := registry.NewPyPI(s.opts.IndexURL, indexTimeout)
	pypi.Logger = s.logger
	pypi.Metrics = s.metrics
	if s.opts.NoCache {
		return pypi
	}

	cache := registry.NewCache(pypi, s.opts.cacheDir(), s.opts.CacheMaxAge)
	cache.Refresh = s.opts.Refresh
	cache.Logger = s.logger
	cache.Metrics = s.metrics
	return cache
}

// markerEnvironment describes the interpreter plans will run under. When the
// runner cannot report its Python version, version markers fail to evaluate
// and the requirements carrying them are kept.
func (s *session) markerEnvironment(ctx context.Context, prov exec.Provisioner) requirement.Environment {
	pyver := ""
	if prober, ok := prov.(exec.InterpreterProber); ok {
		v, err := prober.PythonVersion(ctx)
		if err != nil {
			s.logger.Warn("could not determine the Python version; version markers will not be evaluated", "error", err)
		} else {
			pyver = v
		}
	}
	if s.opts.Runner == "docker" {
		return requirement.NewEnvironment("linux", runtime.GOARCH, pyver)
	}
	return requirement.HostEnvironment(pyver)
}

func (s *session) buildCatalog(ctx context.Context, decl *project.Declarations, prov exec.Provisioner) (*catalog.Catalog, error) {
	return catalog.Build(ctx, s.indexClient(), catalog.Options{
		Variable:    decl.Variable,
		Fixed:       decl.Fixed,
		Overrides:   s.opts.Extend,
		Fast:        s.opts.Fast,
		Environment: s.markerEnvironment(ctx, prov),
		Logger:      s.logger,
		Metrics:     s.metrics,
	})
}

// writeMetrics saves the run's metrics when --metrics-file is set. A coded
// error the command ends with is counted first.
func (s *session) writeMetrics(cmdErr error) {
	var pe *perrors.PessimistError
	if errors.As(cmdErr, &pe) {
		s.metrics.ObserveError(string(pe.Code))
	}
	if s.opts.MetricsFile == "" {
		return
	}
	if err := metrics.WriteTextfile(s.registry, s.opts.MetricsFile); err != nil {
		s.logger.Warn("failed to write metrics file", "path", s.opts.MetricsFile, "error", err)
	}
}

// printSummary prints the declared requirements.
func printSummary(w io.Writer, decl *project.Declarations) {
	fmt.Fprintln(w, "Summary")
	fmt.Fprintln(w, "=======")
	fmt.Fprintln(w, "Variable", pyList(decl.Variable))
	fmt.Fprintln(w, "Fixed", pyList(decl.Fixed))
	fmt.Fprintln(w)
}

// printVersions prints every dependency's candidates.
func printVersions(w io.Writer, cat *catalog.Catalog) {
	fmt.Fprintln(w, "Versions")
	fmt.Fprintln(w, "========")
	for _, e := range cat.Entries() {
		vs := make([]string, len(e.Versions))
		for i, v := range e.Versions {
			vs[i] = v.String()
		}
		fmt.Fprintln(w, e.Name, pyList(vs))
	}
	fmt.Fprintln(w)
}

// pyList renders items as ['a', 'b'].
func pyList(items []string) string {
	quoted := make([]string, len(items))
	for i, item := range items {
		quoted[i] = "'" + strings.ReplaceAll(item, "'", `\'`) + "'"
	}
	return "[" + strings.Join(quoted, ", ") + "]"
}
