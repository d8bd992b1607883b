package cmd

import (
	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pessimist/internal/log"
)

// CommandContext holds the persistent flags shared by every command.
type CommandContext struct {
	Verbose    bool
	LogFormat  string
	ConfigPath string
}

// NewCommandContext extracts command context from cobra.Command flags.
// Commands should call this in their RunE function to get their configuration:
//
//	func runCommand(cmd *cobra.Command, args []string) error {
//		ctx, err := NewCommandContext(cmd)
//		if err != nil {
//			return fmt.Errorf("failed to create command context: %w", err)
//		}
//		// Use ctx.Verbose, ctx.ConfigPath, etc.
//	}
func NewCommandContext(cmd *cobra.Command) (*CommandContext, error) {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		return nil, err
	}

	logFormat, err := cmd.Flags().GetString("log-format")
	if err != nil {
		return nil, err
	}

	configPath, err := cmd.Flags().GetString("config")
	if err != nil {
		return nil, err
	}

	return &CommandContext{
		Verbose:    verbose,
		LogFormat:  logFormat,
		ConfigPath: configPath,
	}, nil
}

// LogConfig returns the logger configuration the flags ask for.
func (c *CommandContext) LogConfig() log.Config {
	cfg := log.DefaultConfig()
	if c.Verbose {
		cfg = log.VerboseConfig()
	}
	cfg.Format = log.ParseFormat(c.LogFormat)
	return cfg
}
