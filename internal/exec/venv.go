package exec

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	perrors "github.com/felixgeelhaar/pessimist/internal/errors"
	"github.com/felixgeelhaar/pessimist/internal/log"
	"github.com/felixgeelhaar/pessimist/internal/metrics"
)

// Venv provisions local virtual environments with `python -m venv`.
type Venv struct {
	Python     string
	ProjectDir string
	BaseDir    string
	PipArgs    []string
	Policy     *Policy
	Logger     *log.Logger
	Metrics    *metrics.Metrics
}

// Name implements Provisioner.
func (v *Venv) Name() string { return "venv" }

func (v *Venv) python() string {
	if v.Python != "" {
		return v.Python
	}
	if runtime.GOOS == "windows" {
		return "python"
	}
	return "python3"
}

// Create makes a fresh virtual environment in a temporary directory.
func (v *Venv) Create(ctx context.Context) (Environment, error) {
	start := time.Now()
	logger := log.OrDefault(v.Logger)

	if err := v.Policy.Check(v.Name(), "", ""); err != nil {
		v.Metrics.ObserveProvision(v.Name(), false, time.Since(start))
		return nil, err
	}

	dir, err := os.MkdirTemp(v.BaseDir, "pessimist-venv-")
	if err != nil {
		v.Metrics.ObserveProvision(v.Name(), false, time.Since(start))
		return nil, perrors.NewProvisionError(v.Name(), err)
	}

	out, err := checked(ctx, "python -m venv", command{
		Name: v.python(),
		Args: []string{"-m", "venv", dir},
	})
	if err != nil {
		os.RemoveAll(dir)
		v.Metrics.ObserveProvision(v.Name(), false, time.Since(start))
		if out != nil && out.Combined != "" {
			logger.Debug("venv creation output", "output", out.Combined)
		}
		return nil, perrors.NewProvisionError(v.Name(), err)
	}

	v.Metrics.ObserveProvision(v.Name(), true, time.Since(start))
	logger.Debug("created virtual environment", "dir", dir, "duration", time.Since(start))
	return &venvEnv{
		dir:        dir,
		bin:        venvBinDir(dir, runtime.GOOS),
		projectDir: v.ProjectDir,
		pipArgs:    v.PipArgs,
	}, nil
}

// PythonVersion runs the configured interpreter and reports its version.
func (v *Venv) PythonVersion(ctx context.Context) (string, error) {
	out, err := checked(ctx, "python --version", command{
		Name: v.python(),
		Args: []string{"-c", pythonVersionScript},
	})
	if err != nil {
		return "", perrors.NewProvisionError(v.Name(), err)
	}
	return strings.TrimSpace(out.Combined), nil
}

const pythonVersionScript = "import platform; print(platform.python_version())"

type venvEnv struct {
	dir        string
	bin        string
	projectDir string
	pipArgs    []string
}

func venvBinDir(dir, goos string) string {
	if goos == "windows" {
		return filepath.Join(dir, "Scripts")
	}
	return filepath.Join(dir, "bin")
}

func (e *venvEnv) Install(ctx context.Context, pins []string) (*Output, error) {
	args := append([]string{"-m", "pip", "install", "--disable-pip-version-check", "--quiet"}, e.pipArgs...)
	args = append(args, pins...)
	return checked(ctx, "pip install", command{
		Name: filepath.Join(e.bin, pythonExecutable(runtime.GOOS)),
		Args: args,
		Dir:  e.projectDir,
		Env:  e.environ(os.Environ()),
	})
}

func (e *venvEnv) Run(ctx context.Context, cmdline string) (*Output, error) {
	shell, flag := shellFor(runtime.GOOS)
	return checked(ctx, "test command", command{
		Name: shell,
		Args: []string{flag, cmdline},
		Dir:  e.projectDir,
		Env:  e.environ(os.Environ()),
	})
}

func (e *venvEnv) Dispose() error {
	return os.RemoveAll(e.dir)
}

// environ returns base with the venv's bin directory first on PATH,
// VIRTUAL_ENV set and PYTHONHOME dropped, matching what activation does.
func (e *venvEnv) environ(base []string) []string {
	out := make([]string, 0, len(base)+2)
	path := ""
	for _, kv := range base {
		key, value, _ := strings.Cut(kv, "=")
		switch strings.ToUpper(key) {
		case "PATH":
			path = value
			continue
		case "PYTHONHOME", "VIRTUAL_ENV":
			continue
		}
		out = append(out, kv)
	}
	if path != "" {
		path = e.bin + string(os.PathListSeparator) + path
	} else {
		path = e.bin
	}
	return append(out, "PATH="+path, "VIRTUAL_ENV="+e.dir)
}

func pythonExecutable(goos string) string {
	if goos == "windows" {
		return "python.exe"
	}
	return "python"
}

func shellFor(goos string) (string, string) {
	if goos == "windows" {
		return "cmd", "/C"
	}
	return "sh", "-c"
}
