package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pessimist/internal/log"
)

// newRootCmd builds the command tree. A fresh tree per invocation keeps flag
// state out of package variables.
func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "pessimist",
		Short: "Find the oldest dependency versions your tests still pass with",
		Long: `pessimist checks how far the declared lower bounds of a Python project's
dependencies can go. It runs the project's test command against the newest
allowed versions, then against older versions one dependency at a time, and
finally against the combined set of oldest passing versions.

It reports the lower bounds that can be narrowed to what was actually tested.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			log.SetDefaultLogger(log.New(cmdCtx.LogConfig()))
			return nil
		},
	}

	root.PersistentFlags().BoolP("verbose", "v", false, "log debug output, including output of failing plans")
	root.PersistentFlags().String("log-format", "text", "log format: text or json")
	root.PersistentFlags().String("config", "", "config file (default is <target>/.pessimist.yaml)")

	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError(err)
	})

	root.AddCommand(
		newSolveCmd(),
		newPlanCmd(),
		newCatalogCmd(),
		newCacheCmd(),
		newConfigCmd(),
		newDoctorCmd(),
		newVersionCmd(),
	)
	return root
}

// Execute runs the root command
func Execute() error {
	return ExecuteContext(context.Background())
}

// ExecuteContext runs the root command with ctx, which is cancelled on
// interrupt by main.
func ExecuteContext(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}
