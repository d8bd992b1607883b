package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"time"
)

const waitDelay = 10 * time.Second

// command describes one subprocess.
type command struct {
	Name string
	Args []string
	Dir  string
	Env  []string
}

// run executes c with stdout and stderr captured into one buffer. A non-zero
// exit is returned as an Output with its exit code and a nil error; only a
// failure to start (or a cancelled context) is an error.
func run(ctx context.Context, c command) (*Output, error) {
	start := time.Now()

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	// Children that outlive a killed shell must not hold the output pipe open.
	cmd.WaitDelay = waitDelay
	if c.Env != nil {
		cmd.Env = c.Env
	}

	var combined bytes.Buffer
	cmd.Stdout = &combined
	cmd.Stderr = &combined

	err := cmd.Run()
	out := &Output{
		Combined: combined.String(),
		Duration: time.Since(start),
	}

	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) && ctx.Err() == nil {
			out.ExitCode = exitErr.ExitCode()
			return out, nil
		}
		if ctx.Err() != nil {
			return out, fmt.Errorf("%s interrupted: %w", c.Name, ctx.Err())
		}
		return out, fmt.Errorf("failed to execute %s: %w", c.Name, err)
	}
	return out, nil
}

// checked runs c and converts a non-zero exit into an *ExitError.
func checked(ctx context.Context, step string, c command) (*Output, error) {
	out, err := run(ctx, c)
	if err != nil {
		return out, err
	}
	if out.ExitCode != 0 {
		return out, &ExitError{Step: step, Output: out}
	}
	return out, nil
}
