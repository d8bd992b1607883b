package health

import (
	"context"
	"os"
	osexec "os/exec"
	"path/filepath"
	"strings"

	"github.com/felixgeelhaar/pessimist/internal/exec"
	"github.com/felixgeelhaar/pessimist/internal/registry"
)

// DockerChecker checks that the docker daemon answers.
type DockerChecker struct {
	// Binary defaults to "docker".
	Binary string
}

func NewDockerChecker(binary string) *DockerChecker {
	if binary == "" {
		binary = "docker"
	}
	return &DockerChecker{Binary: binary}
}

func (c *DockerChecker) Name() string { return "docker-daemon" }

// Check runs `docker info` to reach the daemon.
func (c *DockerChecker) Check(ctx context.Context) *Result {
	path, err := osexec.LookPath(c.Binary)
	if err != nil {
		return Unhealthy("docker command not found in PATH").
			WithDetail("error", err.Error()).
			WithDetail("suggestion", "Install Docker, or use --runner venv")
	}

	out, err := osexec.CommandContext(ctx, path, "info", "--format", "{{.ServerVersion}}").CombinedOutput()
	if err != nil {
		msg := strings.TrimSpace(string(out))
		if strings.Contains(msg, "Cannot connect to the Docker daemon") {
			return Unhealthy("Docker daemon is not running").
				WithDetail("error", msg).
				WithDetail("suggestion", "Start the Docker daemon")
		}
		return Unhealthy("failed to connect to Docker daemon").
			WithDetail("error", err.Error()).
			WithDetail("output", msg)
	}

	version := strings.TrimSpace(string(out))
	if version == "" {
		return Degraded("Docker daemon responding but version unknown").
			WithDetail("docker_path", path)
	}
	return Healthy("Docker daemon is running").
		WithDetail("docker_path", path).
		WithDetail("server_version", version)
}

// InterpreterChecker asks a runner which Python version its environments
// get. The version is what environment markers are evaluated against.
type InterpreterChecker struct {
	Runner string
	Prober exec.InterpreterProber
}

func NewInterpreterChecker(runner string, prober exec.InterpreterProber) *InterpreterChecker {
	return &InterpreterChecker{Runner: runner, Prober: prober}
}

func (c *InterpreterChecker) Name() string { return c.Runner + "-python" }

func (c *InterpreterChecker) Check(ctx context.Context) *Result {
	v, err := c.Prober.PythonVersion(ctx)
	if err != nil {
		return Unhealthy("cannot run the Python interpreter").
			WithDetail("error", err.Error()).
			WithDetail("suggestion", "Set --python (venv) or --image (docker)")
	}
	if v == "" {
		return Degraded("interpreter ran but reported no version; markers will not be evaluated")
	}
	return Healthy("Python " + v).WithDetail("python_version", v)
}

// IndexChecker resolves one well-known package through the index client.
type IndexChecker struct {
	Client  registry.Client
	Package string
}

func NewIndexChecker(client registry.Client, pkg string) *IndexChecker {
	if pkg == "" {
		pkg = "pip"
	}
	return &IndexChecker{Client: client, Package: pkg}
}

func (c *IndexChecker) Name() string { return "package-index" }

func (c *IndexChecker) Check(ctx context.Context) *Result {
	pkg, err := c.Client.ResolveVersions(ctx, c.Package)
	if err != nil {
		return Unhealthy("package index is not reachable").
			WithDetail("error", err.Error()).
			WithDetail("suggestion", "Check --index-url and network access")
	}
	if len(pkg.Versions) == 0 {
		return Degraded("index answered but listed no usable releases of " + c.Package).
			WithDetail("package", c.Package)
	}
	return Healthy("index lists releases of " + pkg.Name).
		WithDetail("package", pkg.Name).
		WithDetail("releases", len(pkg.Versions))
}

// CacheDirChecker checks that the index cache can be written. An unwritable
// cache only slows solves down.
type CacheDirChecker struct {
	Dir string
}

func NewCacheDirChecker(dir string) *CacheDirChecker {
	return &CacheDirChecker{Dir: dir}
}

func (c *CacheDirChecker) Name() string { return "index-cache" }

func (c *CacheDirChecker) Check(context.Context) *Result {
	if err := os.MkdirAll(c.Dir, 0o755); err != nil {
		return Degraded("cannot create the index cache directory").
			WithDetail("dir", c.Dir).
			WithDetail("error", err.Error()).
			WithDetail("suggestion", "Set --cache-dir or use --no-cache")
	}
	f, err := os.CreateTemp(c.Dir, ".probe-*")
	if err != nil {
		return Degraded("index cache directory is not writable").
			WithDetail("dir", c.Dir).
			WithDetail("error", err.Error()).
			WithDetail("suggestion", "Set --cache-dir or use --no-cache")
	}
	name := f.Name()
	f.Close()
	os.Remove(name)

	entries, _ := filepath.Glob(filepath.Join(c.Dir, "*.json"))
	return Healthy("index cache is writable").
		WithDetail("dir", c.Dir).
		WithDetail("files", len(entries))
}
