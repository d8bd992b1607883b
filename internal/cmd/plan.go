package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pessimist/internal/plan"
)

func newPlanCmd() *cobra.Command {
	o := defaultOptions()
	var outPath string

	cmd := &cobra.Command{
		Use:   "plan [flags] TARGET_DIR",
		Short: "Print the plans a solve would run",
		Long: `Build the version catalog and print, as JSON, the plans a solve would
dispatch before joint verification: the baseline followed by either the
floor plan (--fast) or one plan per older candidate version.`,
		Args: targetArg,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := newSession(cmd, args[0], o)
			if err != nil {
				return err
			}
			defer func() { s.writeMetrics(err) }()

			prov, err := newProvisioner(s)
			if err != nil {
				return err
			}
			decl, err := s.declarations(cmd.Context(), prov)
			if err != nil {
				return err
			}
			cat, err := s.buildCatalog(cmd.Context(), decl, prov)
			if err != nil {
				return err
			}

			plans := plan.NewGenerator(cat).Schedule(o.Fast)
			if err := plan.ValidateAll(plans, cat); err != nil {
				return fmt.Errorf("generated an invalid plan: %w", err)
			}

			if outPath == "" {
				return plan.WritePlans(cmd.OutOrStdout(), plans)
			}
			if err := plan.SavePlans(outPath, plans); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Wrote %d plans to %s\n", len(plans), outPath)
			return nil
		},
	}
	addCatalogFlags(cmd, o)
	cmd.Flags().StringVar(&outPath, "out", "", "write plans to this file instead of stdout")
	return cmd
}
