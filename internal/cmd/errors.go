package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	perrors "github.com/felixgeelhaar/pessimist/internal/errors"
	"github.com/felixgeelhaar/pessimist/internal/exitcode"
)

// StatusError carries a solve status that is not a failure of the tool
// itself. The report on stdout already explains it.
type StatusError struct {
	Status int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("solve finished with status %d (%s)", e.Status, exitcode.GetExitCodeDescription(e.Status))
}

// usageError marks err as a command-line mistake.
func usageError(err error) error {
	return perrors.Wrap(perrors.ErrCodeConfigInvalid, "invalid usage", err).
		WithSuggestion("Run 'pessimist <command> --help' for usage")
}

// targetArg accepts exactly one project directory.
func targetArg(_ *cobra.Command, args []string) error {
	if len(args) != 1 {
		return usageError(fmt.Errorf("accepts 1 arg(s), received %d", len(args)))
	}
	return nil
}
