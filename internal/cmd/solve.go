package cmd

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pessimist/internal/exec"
	"github.com/felixgeelhaar/pessimist/internal/exitcode"
	"github.com/felixgeelhaar/pessimist/internal/plan"
	"github.com/felixgeelhaar/pessimist/internal/progress"
	"github.com/felixgeelhaar/pessimist/internal/solve"
)

func newSolveCmd() *cobra.Command {
	o := defaultOptions()
	cmd := &cobra.Command{
		Use:   "solve [flags] TARGET_DIR",
		Short: "Find the lowest dependency versions the test command passes with",
		Long: `Run the project's test command against its dependencies' newest allowed
versions, then against each older version of one dependency at a time, and
finally against the combined oldest passing versions.

Exit status:
  0  every run passed; narrowing suggestions (if any) are printed
  1  the newest versions failed, or in --fast mode the oldest versions failed
  2  each older version passed alone but the combination failed
  3  invalid usage
  4  the version catalog could not be built
  130  interrupted

Examples:
  # Check every version of every dependency with 4 environments
  pessimist solve -p 4 -c "pytest -q" ./myproject

  # Only check the extremes
  pessimist solve --fast ./myproject

  # Ignore the declared bounds of attrs and run inside docker
  pessimist solve --extend attrs --runner docker --image python:3.12-slim ./myproject`,
		Args: targetArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolve(cmd, args[0], o)
		},
	}
	addCatalogFlags(cmd, o)
	addRunFlags(cmd, o)
	return cmd
}

func runSolve(cmd *cobra.Command, target string, o *options) (err error) {
	s, err := newSession(cmd, target, o)
	if err != nil {
		return err
	}
	defer func() { s.writeMetrics(err) }()

	ctx := cmd.Context()
	if o.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.Timeout)
		defer cancel()
	}
	out := cmd.OutOrStdout()

	prov, err := newProvisioner(s)
	if err != nil {
		return err
	}

	decl, err := s.declarations(ctx, prov)
	if err != nil {
		return err
	}
	printSummary(out, decl)

	cat, err := s.buildCatalog(ctx, decl, prov)
	if err != nil {
		return err
	}
	printVersions(out, cat)

	var manifests *exec.ManifestWriter
	if o.ManifestDir != "" {
		image := ""
		if o.Runner == "docker" {
			image = o.Image
		}
		manifests = exec.NewManifestWriter(o.ManifestDir, prov.Name(), image, o.Command)
		for _, src := range decl.Sources {
			name, relErr := filepath.Rel(s.dir, src)
			if relErr != nil {
				name = src
			}
			if err := manifests.AddInput(name, src); err != nil {
				s.logger.Warn("failed to hash input for run manifests", "file", src, "error", err)
			}
		}
		s.logger.Debug("writing run manifests", "dir", o.ManifestDir, "run_id", manifests.RunID)
	}

	var (
		observer  solve.Observer
		indicator *progress.Indicator
	)
	if o.Progress {
		// Joint verification is scheduled later and grows the total.
		total := len(plan.NewGenerator(cat).Schedule(o.Fast))
		indicator = progress.NewIndicator(progress.Config{Writer: cmd.ErrOrStderr()}, total)
		observer = indicator
	}

	solver, err := solve.New(solve.Config{
		Catalog:     cat,
		Provisioner: prov,
		Command:     o.Command,
		Parallelism: o.Parallelism,
		Fast:        o.Fast,
		Out:         out,
		Observer:    observer,
		Logger:      s.logger,
		Metrics:     s.metrics,
		Manifests:   manifests,
	})
	if err != nil {
		return err
	}

	report, err := solver.Solve(ctx)
	if indicator != nil {
		indicator.Stop()
		indicator.PrintSummary()
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			fmt.Fprintf(cmd.ErrOrStderr(), "solve timed out after %s\n", o.Timeout)
			return &StatusError{Status: exitcode.Interrupted}
		}
		return err
	}

	if n := len(report.Inconsistencies); n > 0 {
		s.logger.Warn("some dependencies passed at a version below one that failed; suggestions may be unreliable",
			"count", n)
	}
	if report.Status != solve.StatusOK {
		return &StatusError{Status: report.Status}
	}
	return nil
}
