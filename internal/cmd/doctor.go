package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pessimist/internal/exec"
	"github.com/felixgeelhaar/pessimist/internal/exitcode"
	"github.com/felixgeelhaar/pessimist/internal/health"
	"github.com/felixgeelhaar/pessimist/internal/registry"
)

// doctorReport is the --json output of doctor.
type doctorReport struct {
	Status health.Status    `json:"status"`
	Runner string           `json:"runner"`
	Checks []*health.Result `json:"checks"`
}

func newDoctorCmd() *cobra.Command {
	o := defaultOptions()
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "doctor [flags] [TARGET_DIR]",
		Short: "Check that the runner, interpreter and package index are usable",
		Long: `Check everything a solve needs before it provisions any environment:
the docker daemon (docker runner), the Python interpreter the runner uses,
the package index and the index cache directory.

Configuration is read from TARGET_DIR (default: the current directory).
Exits 1 when any check is unhealthy.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := "."
			if len(args) == 1 {
				target = args[0]
			}
			s, err := newSession(cmd, target, o)
			if err != nil {
				return err
			}

			prov, err := newProvisioner(s)
			if err != nil {
				return err
			}

			manager := health.NewManager()
			if o.Runner == "docker" {
				manager.AddChecker(health.NewDockerChecker(""))
			}
			if prober, ok := prov.(exec.InterpreterProber); ok {
				manager.AddChecker(health.NewInterpreterChecker(prov.Name(), prober))
			}
			index := registry.NewPyPI(o.IndexURL, indexTimeout)
			index.Logger = s.logger
			manager.AddChecker(health.NewIndexChecker(index, ""))
			if !o.NoCache {
				manager.AddChecker(health.NewCacheDirChecker(o.cacheDir()))
			}

			results := manager.Check(cmd.Context())
			report := doctorReport{
				Status: health.OverallStatus(results),
				Runner: prov.Name(),
				Checks: results,
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(report, "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal doctor report: %w", err)
				}
				fmt.Fprintln(out, string(data))
			} else {
				renderDoctor(out, report)
			}

			if report.Status == health.StatusUnhealthy {
				return &StatusError{Status: exitcode.GeneralError}
			}
			return nil
		},
	}
	addCatalogFlags(cmd, o)
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the report as JSON")
	return cmd
}

func renderDoctor(w io.Writer, report doctorReport) {
	r := lipgloss.NewRenderer(w)
	styles := map[health.Status]lipgloss.Style{
		health.StatusHealthy:   r.NewStyle().Foreground(lipgloss.Color("42")),
		health.StatusDegraded:  r.NewStyle().Foreground(lipgloss.Color("214")),
		health.StatusUnhealthy: r.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}
	icons := map[health.Status]string{
		health.StatusHealthy:   "✓",
		health.StatusDegraded:  "!",
		health.StatusUnhealthy: "✗",
	}
	muted := r.NewStyle().Faint(true)

	for _, res := range report.Checks {
		style := styles[res.Status]
		fmt.Fprintf(w, "%s %-16s %s\n", style.Render(icons[res.Status]), res.Name, res.Message)
		if s := res.Suggestion(); s != "" && res.Status != health.StatusHealthy {
			fmt.Fprintf(w, "  %s\n", muted.Render("→ "+s))
		}
	}
	fmt.Fprintf(w, "\n%s\n", styles[report.Status].Render("Overall: "+report.Status.String()))
}
