// Package exec provisions isolated Python environments, installs pinned
// versions into them and runs the project's test command.
package exec

import (
	"context"
	"fmt"
	"time"
)

// Output is the captured result of one install or test invocation.
type Output struct {
	ExitCode int
	Combined string
	Duration time.Duration
}

// Success reports whether the invocation exited zero.
func (o *Output) Success() bool {
	return o != nil && o.ExitCode == 0
}

// Environment is one disposable isolated environment owned by a single
// worker. Installs accumulate: nothing is uninstalled between calls.
type Environment interface {
	// Install installs the given name==version requirements.
	Install(ctx context.Context, pins []string) (*Output, error)
	// Run runs command through the platform shell with the environment's
	// tools first on PATH.
	Run(ctx context.Context, command string) (*Output, error)
	// Dispose removes the environment.
	Dispose() error
}

// Provisioner creates environments.
type Provisioner interface {
	Name() string
	Create(ctx context.Context) (Environment, error)
}

// InterpreterProber reports the version of the interpreter environments will
// run, for evaluating environment markers.
type InterpreterProber interface {
	PythonVersion(ctx context.Context) (string, error)
}

// ExitError reports a command that ran and exited non-zero. The captured
// output stays available on the error.
type ExitError struct {
	Step   string
	Output *Output
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("%s exited with status %d", e.Step, e.Output.ExitCode)
}
