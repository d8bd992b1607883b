package exec

import (
	"context"
	"os"
	"time"

	perrors "github.com/felixgeelhaar/pessimist/internal/errors"
	"github.com/felixgeelhaar/pessimist/internal/log"
)

// metadataScript runs the project's PEP 517 backend on a scratch copy of
// argv[1] and writes the resulting METADATA to argv[2]. Backends without
// prepare_metadata_for_build_wheel build a wheel instead.
const metadataScript = `
import importlib, os, shutil, sys, tempfile, zipfile
src, dest = sys.argv[1], sys.argv[2]
backend, paths = "setuptools.build_meta:__legacy__", []
pyproject = os.path.join(src, "pyproject.toml")
if os.path.exists(pyproject):
    try:
        import tomllib
    except ImportError:
        tomllib = None
    if tomllib is not None:
        with open(pyproject, "rb") as f:
            system = tomllib.load(f).get("build-system", {})
        backend = system.get("build-backend", backend)
        paths = system.get("backend-path", [])
work = tempfile.mkdtemp(prefix="pessimist-meta-")
try:
    tree, out = os.path.join(work, "src"), os.path.join(work, "out")
    shutil.copytree(src, tree, ignore=shutil.ignore_patterns(".git", ".venv", "*.egg-info", "build", "dist"))
    os.mkdir(out)
    os.chdir(tree)
    sys.path[:0] = [tree] + [os.path.join(tree, p) for p in paths]
    module, _, attrs = backend.partition(":")
    hooks = importlib.import_module(module)
    for attr in filter(None, attrs.split(".")):
        hooks = getattr(hooks, attr)
    if hasattr(hooks, "prepare_metadata_for_build_wheel"):
        with open(os.path.join(out, hooks.prepare_metadata_for_build_wheel(out), "METADATA"), "rb") as f:
            data = f.read()
    else:
        with zipfile.ZipFile(os.path.join(out, hooks.build_wheel(out))) as wheel:
            data = wheel.read(next(n for n in wheel.namelist() if n.endswith(".dist-info/METADATA")))
finally:
    os.chdir(src)
    shutil.rmtree(work, ignore_errors=True)
with open(dest, "wb") as f:
    f.write(data)
`

// ReadMetadata asks the project's build backend, running under the host
// interpreter, for its core metadata. The project directory is not written to.
func (v *Venv) ReadMetadata(ctx context.Context, dir string) ([]byte, error) {
	start := time.Now()

	dest, err := os.CreateTemp("", "pessimist-metadata-*")
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeFileWriteFailed, "create metadata file", err)
	}
	dest.Close()
	defer os.Remove(dest.Name())

	if _, err := checked(ctx, "prepare metadata", command{
		Name: v.python(),
		Args: []string{"-c", metadataScript, dir, dest.Name()},
	}); err != nil {
		return nil, perrors.NewProvisionError(v.Name(), describe(err))
	}

	data, err := os.ReadFile(dest.Name())
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeFileReadFailed, "read project metadata", err)
	}
	log.OrDefault(v.Logger).Debug("prepared project metadata", "dir", dir, "duration", time.Since(start))
	return data, nil
}
