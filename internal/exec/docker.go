package exec

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	perrors "github.com/felixgeelhaar/pessimist/internal/errors"
	"github.com/felixgeelhaar/pessimist/internal/log"
	"github.com/felixgeelhaar/pessimist/internal/metrics"
)

// DefaultImage is used when no image is configured.
const DefaultImage = "python:3-slim"

const (
	containerVenv      = "/opt/pessimist/venv"
	containerWorkspace = "/workspace"
	containerSource    = "/mnt/project"
	containerPath      = containerVenv + "/bin:/usr/local/sbin:/usr/local/bin:/usr/sbin:/usr/bin:/sbin:/bin"
)

// Docker provisions one long-lived container per environment. The project is
// mounted read-only and copied into a tmpfs at /workspace, so test commands
// may write into the tree without touching the host copy. Packages go into a
// virtual environment on another tmpfs.
type Docker struct {
	Image      string
	ProjectDir string
	Network    string
	CPU        string
	Mem        string
	Env        map[string]string
	PipArgs    []string
	Policy     *Policy
	Logger     *log.Logger
	Metrics    *metrics.Metrics
}

// Name implements Provisioner.
func (d *Docker) Name() string { return "docker" }

func (d *Docker) image() string {
	if d.Image != "" {
		return d.Image
	}
	return DefaultImage
}

// containerSpec is everything `docker run` needs for one container.
type containerSpec struct {
	Name    string
	Image   string
	Workdir string
	Env     map[string]string
	Network string
	CPU     string
	Mem     string
	Cmd     []string
}

// Create starts a detached container and builds a virtual environment in it.
func (d *Docker) Create(ctx context.Context) (Environment, error) {
	start := time.Now()
	logger := log.OrDefault(d.Logger)

	if err := d.Policy.Check(d.Name(), d.image(), d.Network); err != nil {
		d.Metrics.ObserveProvision(d.Name(), false, time.Since(start))
		return nil, err
	}
	if err := ValidateDockerAvailable(ctx); err != nil {
		d.Metrics.ObserveProvision(d.Name(), false, time.Since(start))
		return nil, err
	}

	spec := containerSpec{
		Name:    "pessimist-" + uuid.NewString()[:12],
		Image:   d.image(),
		Workdir: d.ProjectDir,
		Env:     d.containerEnv(),
		Network: d.Network,
		CPU:     d.CPU,
		Mem:     d.Mem,
		Cmd:     []string{"sleep", "infinity"},
	}

	if _, err := checked(ctx, "docker run", command{Name: "docker", Args: buildDockerArgs(spec)}); err != nil {
		d.Metrics.ObserveProvision(d.Name(), false, time.Since(start))
		return nil, perrors.NewProvisionError(d.Name(), describe(err))
	}

	env := &dockerEnv{container: spec.Name, pipArgs: d.PipArgs}
	for _, step := range d.setupSteps() {
		if _, err := env.exec(ctx, step.name, step.args...); err != nil {
			env.Dispose()
			d.Metrics.ObserveProvision(d.Name(), false, time.Since(start))
			return nil, perrors.NewProvisionError(d.Name(), describe(err))
		}
	}

	d.Metrics.ObserveProvision(d.Name(), true, time.Since(start))
	logger.Debug("started container", "container", spec.Name, "image", spec.Image, "duration", time.Since(start))
	return env, nil
}

type setupStep struct {
	name string
	args []string
}

// setupSteps prepares a fresh container: the writable project copy, then the
// virtual environment.
func (d *Docker) setupSteps() []setupStep {
	var steps []setupStep
	if d.ProjectDir != "" {
		steps = append(steps, setupStep{"copy project", []string{"cp", "-a", containerSource + "/.", containerWorkspace}})
	}
	return append(steps, setupStep{"python -m venv", []string{"python", "-m", "venv", containerVenv}})
}

// PythonVersion reports the interpreter version inside the configured image.
func (d *Docker) PythonVersion(ctx context.Context) (string, error) {
	out, err := checked(ctx, "docker run", command{
		Name: "docker",
		Args: []string{"run", "--rm", d.image(), "python", "-c", pythonVersionScript},
	})
	if err != nil {
		return "", perrors.NewProvisionError(d.Name(), describe(err))
	}
	return strings.TrimSpace(out.Combined), nil
}

func (d *Docker) containerEnv() map[string]string {
	env := map[string]string{
		"HOME":                    "/tmp",
		"PATH":                    containerPath,
		"VIRTUAL_ENV":             containerVenv,
		"PYTHONDONTWRITEBYTECODE": "1",
		"PIP_NO_CACHE_DIR":        "1",
	}
	for k, v := range d.Env {
		env[k] = v
	}
	return env
}

type dockerEnv struct {
	container string
	pipArgs   []string
}

func (e *dockerEnv) exec(ctx context.Context, step string, args ...string) (*Output, error) {
	full := append([]string{"exec", "-w", containerWorkspace, e.container}, args...)
	return checked(ctx, step, command{Name: "docker", Args: full})
}

func (e *dockerEnv) Install(ctx context.Context, pins []string) (*Output, error) {
	args := append([]string{containerVenv + "/bin/python", "-m", "pip", "install",
		"--disable-pip-version-check", "--quiet"}, e.pipArgs...)
	return e.exec(ctx, "pip install", append(args, pins...)...)
}

func (e *dockerEnv) Run(ctx context.Context, cmdline string) (*Output, error) {
	return e.exec(ctx, "test command", "sh", "-c", cmdline)
}

// Dispose removes the container. It runs on its own context so a cancelled
// solve still cleans up.
func (e *dockerEnv) Dispose() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if _, err := checked(ctx, "docker rm", command{Name: "docker", Args: []string{"rm", "-f", e.container}}); err != nil {
		return fmt.Errorf("remove container %s: %w", e.container, describe(err))
	}
	return nil
}

// buildDockerArgs constructs the Docker command arguments with security constraints
func buildDockerArgs(spec containerSpec) []string {
	args := []string{
		"run",
		"--detach",
		"--rm", // Remove container after exit
	}

	if spec.Name != "" {
		args = append(args, "--name", spec.Name)
	}

	// Network configuration
	if spec.Network != "" {
		args = append(args, "--network", spec.Network)
	}

	// Resource limits
	if spec.CPU != "" {
		args = append(args, "--cpus", spec.CPU)
	}
	if spec.Mem != "" {
		args = append(args, "--memory", spec.Mem)
	}

	// Security constraints; writable space comes only from tmpfs mounts
	args = append(args,
		"--read-only",
		"--pids-limit", "256",
		"--cap-drop", "ALL",
		"--tmpfs", "/tmp",
		"--tmpfs", "/opt/pessimist:exec",
	)

	// Project mount; the copy on the workspace tmpfs is what commands see
	if spec.Workdir != "" {
		args = append(args,
			"--tmpfs", containerWorkspace+":exec",
			"-v", fmt.Sprintf("%s:%s:ro", spec.Workdir, containerSource),
			"-w", containerWorkspace,
		)
	}

	// Environment variables, sorted for stable argument lists
	keys := make([]string, 0, len(spec.Env))
	for key := range spec.Env {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		args = append(args, "-e", fmt.Sprintf("%s=%s", key, spec.Env[key]))
	}

	args = append(args, spec.Image)
	return append(args, spec.Cmd...)
}

// ValidateDockerAvailable checks if Docker is available on the system
func ValidateDockerAvailable(ctx context.Context) error {
	if _, err := checked(ctx, "docker version", command{Name: "docker", Args: []string{"version"}}); err != nil {
		return perrors.NewDockerNotAvailableError(err)
	}
	return nil
}

// describe folds captured output into an ExitError so callers logging only
// the error still see why docker failed.
func describe(err error) error {
	if exitErr, ok := err.(*ExitError); ok && exitErr.Output != nil {
		if msg := strings.TrimSpace(exitErr.Output.Combined); msg != "" {
			return fmt.Errorf("%w: %s", err, msg)
		}
	}
	return err
}
