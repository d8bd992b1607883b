package exec

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/felixgeelhaar/pessimist/internal/errors"
)

func TestVenvBinDir(t *testing.T) {
	assert.Equal(t, filepath.Join("env", "bin"), venvBinDir("env", "linux"))
	assert.Equal(t, filepath.Join("env", "Scripts"), venvBinDir("env", "windows"))
	assert.Equal(t, "python.exe", pythonExecutable("windows"))
	assert.Equal(t, "python", pythonExecutable("darwin"))
}

func TestShellFor(t *testing.T) {
	shell, flag := shellFor("linux")
	assert.Equal(t, "sh", shell)
	assert.Equal(t, "-c", flag)

	shell, flag = shellFor("windows")
	assert.Equal(t, "cmd", shell)
	assert.Equal(t, "/C", flag)
}

func TestVenvEnviron(t *testing.T) {
	sep := string(os.PathListSeparator)
	e := &venvEnv{dir: "/tmp/v", bin: "/tmp/v/bin"}

	got := e.environ([]string{
		"HOME=/home/user",
		"PATH=/usr/bin" + sep + "/bin",
		"PYTHONHOME=/opt/python",
		"VIRTUAL_ENV=/old/venv",
		"LANG=C.UTF-8",
	})

	assert.Equal(t, []string{
		"HOME=/home/user",
		"LANG=C.UTF-8",
		"PATH=/tmp/v/bin" + sep + "/usr/bin" + sep + "/bin",
		"VIRTUAL_ENV=/tmp/v",
	}, got)

	bare := e.environ(nil)
	assert.Equal(t, []string{"PATH=/tmp/v/bin", "VIRTUAL_ENV=/tmp/v"}, bare)
}

func TestVenvDefaults(t *testing.T) {
	v := &Venv{}
	assert.Equal(t, "venv", v.Name())
	if runtime.GOOS == "windows" {
		assert.Equal(t, "python", v.python())
	} else {
		assert.Equal(t, "python3", v.python())
	}
	assert.Equal(t, "/usr/bin/python3.11", (&Venv{Python: "/usr/bin/python3.11"}).python())
}

func TestVenvCreateDeniedByPolicy(t *testing.T) {
	v := &Venv{Policy: &Policy{AllowLocal: false}}
	_, err := v.Create(context.Background())
	require.Error(t, err)
	assert.True(t, perrors.HasCode(err, perrors.ErrCodeEnvPolicyDenied))
}

func TestVenvCreateMissingInterpreter(t *testing.T) {
	v := &Venv{Python: filepath.Join(t.TempDir(), "no-such-python"), BaseDir: t.TempDir()}
	_, err := v.Create(context.Background())
	require.Error(t, err)
	assert.True(t, perrors.HasCode(err, perrors.ErrCodeEnvProvision))

	entries, readErr := os.ReadDir(v.BaseDir)
	require.NoError(t, readErr)
	assert.Empty(t, entries, "temporary directory is removed on failure")
}

func TestRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	ctx := context.Background()

	t.Run("captures both streams", func(t *testing.T) {
		out, err := run(ctx, command{Name: "sh", Args: []string{"-c", "echo out; echo err >&2"}})
		require.NoError(t, err)
		assert.True(t, out.Success())
		assert.Contains(t, out.Combined, "out\n")
		assert.Contains(t, out.Combined, "err\n")
	})

	t.Run("non-zero exit is not an error", func(t *testing.T) {
		out, err := run(ctx, command{Name: "sh", Args: []string{"-c", "exit 3"}})
		require.NoError(t, err)
		assert.Equal(t, 3, out.ExitCode)
		assert.False(t, out.Success())
	})

	t.Run("checked converts exit status", func(t *testing.T) {
		_, err := checked(ctx, "test command", command{Name: "sh", Args: []string{"-c", "echo nope; exit 2"}})
		var exitErr *ExitError
		require.True(t, errors.As(err, &exitErr))
		assert.Equal(t, "test command exited with status 2", exitErr.Error())
		assert.Equal(t, "nope\n", exitErr.Output.Combined)
	})

	t.Run("working directory and environment", func(t *testing.T) {
		dir := t.TempDir()
		out, err := run(ctx, command{
			Name: "sh",
			Args: []string{"-c", "pwd; echo $PESSIMIST_MARK"},
			Dir:  dir,
			Env:  []string{"PESSIMIST_MARK=seen", "PATH=" + os.Getenv("PATH")},
		})
		require.NoError(t, err)
		resolved, _ := filepath.EvalSymlinks(dir)
		assert.True(t, strings.Contains(out.Combined, dir) || strings.Contains(out.Combined, resolved))
		assert.Contains(t, out.Combined, "seen")
	})

	t.Run("missing binary", func(t *testing.T) {
		_, err := run(ctx, command{Name: filepath.Join(t.TempDir(), "missing")})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to execute")
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
		defer cancel()
		_, err := run(cctx, command{Name: "sh", Args: []string{"-c", "exec sleep 5"}})
		require.Error(t, err)
		assert.Contains(t, err.Error(), "interrupted")
	})
}

func TestVenvEnvRun(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	dir := t.TempDir()
	e := &venvEnv{dir: dir, bin: venvBinDir(dir, runtime.GOOS), projectDir: dir}

	out, err := e.Run(context.Background(), "echo $VIRTUAL_ENV")
	require.NoError(t, err)
	assert.Equal(t, dir+"\n", out.Combined)

	_, err = e.Run(context.Background(), "exit 1")
	var exitErr *ExitError
	require.True(t, errors.As(err, &exitErr))
	assert.Equal(t, 1, exitErr.Output.ExitCode)

	require.NoError(t, e.Dispose())
	_, statErr := os.Stat(dir)
	assert.True(t, os.IsNotExist(statErr))
}

func fakePython(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "python")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestVenvReadMetadata(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("uses sh")
	}
	project := t.TempDir()

	t.Run("returns the backend's metadata", func(t *testing.T) {
		// $1 is -c, $2 the script, $3 the project and $4 the destination.
		v := &Venv{Python: fakePython(t, `[ "$3" = "`+project+`" ] || exit 9
printf 'Metadata-Version: 2.1\nName: demo\nRequires-Dist: attrs>=20\n' > "$4"
`)}
		data, err := v.ReadMetadata(context.Background(), project)
		require.NoError(t, err)
		assert.Contains(t, string(data), "Requires-Dist: attrs>=20\n")
	})

	t.Run("backend failure carries its output", func(t *testing.T) {
		v := &Venv{Python: fakePython(t, "echo 'No module named setuptools'\nexit 1\n")}
		_, err := v.ReadMetadata(context.Background(), project)
		require.Error(t, err)
		assert.True(t, perrors.HasCode(err, perrors.ErrCodeEnvProvision))
		assert.Contains(t, err.Error(), "No module named setuptools")
	})
}
