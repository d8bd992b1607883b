// Package project reads a Python project's declared dependencies: variable
// requirements from pyproject.toml, setup.cfg or build backend metadata, and
// fixed requirements from requirements files.
package project

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pelletier/go-toml/v2"

	perrors "github.com/felixgeelhaar/pessimist/internal/errors"
	"github.com/felixgeelhaar/pessimist/internal/log"
	"github.com/felixgeelhaar/pessimist/internal/requirement"
)

// DefaultRequirementsPattern matches fixed requirement files.
const DefaultRequirementsPattern = "requirements*.txt"

// PyProjectFile is the metadata file read for variable requirements.
const PyProjectFile = "pyproject.toml"

// Declarations are the raw requirement lines of a project.
type Declarations struct {
	Dir      string
	Variable []string
	Fixed    []string
	// Sources lists every file read, the variable requirements' source first.
	Sources []string
}

// Options controls which files are read.
type Options struct {
	// Requirements is a comma-separated list of glob patterns relative to
	// the project directory. Empty means DefaultRequirementsPattern.
	Requirements string
	// Extras adds [project.optional-dependencies] groups to the variable
	// requirements.
	Extras []string

	// Metadata builds metadata for projects whose dependencies are dynamic.
	// Nil makes such projects an error.
	Metadata MetadataReader
	Logger *log.Logger
}

// Repository loads declarations for a project directory.
type Repository interface {
	Load(ctx context.Context, dir string, opts Options) (*Declarations, error)
}

// FileRepository reads declarations from the filesystem.
type FileRepository struct{}

// NewFileRepository creates a filesystem-backed repository.
func NewFileRepository() *FileRepository {
	return &FileRepository{}
}

// Load reads the variable requirements and every file matched by the
// requirements patterns. Static [project].dependencies win; otherwise
// setup.cfg is read, and a project whose dependencies are only known at build
// time goes through opts.Metadata.
func (r *FileRepository) Load(ctx context.Context, dir string, opts Options) (*Declarations, error) {
	logger := log.OrDefault(opts.Logger)

	info, err := os.Stat(dir)
	if err != nil || !info.IsDir() {
		return nil, perrors.New(perrors.ErrCodeProjectNotFound, fmt.Sprintf("project directory not found: %s", dir)).
			WithSuggestion("Pass the directory containing pyproject.toml")
	}

	decl := &Declarations{Dir: dir}

	variable, source, err := readVariable(ctx, dir, opts)
	if err != nil {
		return nil, err
	}
	logger.Debug("read variable requirements", "file", source, "count", len(variable))
	decl.Variable = variable
	decl.Sources = append(decl.Sources, source)

	files, err := ExpandPatterns(dir, opts.Requirements)
	if err != nil {
		return nil, err
	}
	for _, f := range files {
		lines, err := ReadRequirements(f)
		if err != nil {
			return nil, err
		}
		logger.Debug("read requirements", "file", f, "count", len(lines))
		decl.Fixed = append(decl.Fixed, lines...)
		decl.Sources = append(decl.Sources, f)
	}
	return decl, nil
}

// readVariable returns the variable requirements and the file they came from.
func readVariable(ctx context.Context, dir string, opts Options) ([]string, string, error) {
	pyproject := filepath.Join(dir, PyProjectFile)
	setupCfg := filepath.Join(dir, SetupCfgFile)
	setupPy := filepath.Join(dir, SetupPyFile)

	doc, err := readPyProjectDocument(pyproject)
	if err != nil {
		return nil, "", err
	}
	if doc != nil && doc.Project != nil && !doc.dynamicDependencies() {
		reqs, err := doc.requirements(pyproject, opts.Extras)
		return reqs, pyproject, err
	}
	if doc != nil && doc.Project != nil {
		if files := doc.dependencyFiles(); len(files) > 0 {
			reqs, err := readDynamicFiles(dir, files)
			return reqs, pyproject, err
		}
	}

	if exists(setupCfg) {
		reqs, declared, err := ReadSetupCfg(setupCfg, opts.Extras)
		if err != nil {
			return nil, "", err
		}
		if declared || !exists(setupPy) {
			return reqs, setupCfg, nil
		}
	}

	source := setupPy
	if doc != nil {
		source = pyproject
	}
	switch {
	case doc == nil && !exists(setupPy) && !exists(setupCfg):
		return nil, "", perrors.New(perrors.ErrCodeProjectNotFound,
			fmt.Sprintf("no %s, %s or %s in %s", PyProjectFile, SetupCfgFile, SetupPyFile, dir)).
			WithSuggestion("Declare dependencies in the [project] table of pyproject.toml")
	case doc != nil && doc.Project == nil && !exists(setupPy):
		return nil, "", perrors.New(perrors.ErrCodeProjectInvalid, fmt.Sprintf("%s has no [project] table", pyproject)).
			WithSuggestion("Declare dependencies in the [project] table or in setup.cfg")
	case opts.Metadata == nil:
		return nil, "", perrors.New(perrors.ErrCodeProjectInvalid,
			fmt.Sprintf("dependencies of %s are only known at build time", dir)).
			WithSuggestions(
				"List them in [project].dependencies or setup.cfg [options] install_requires",
				"Use the venv runner, which asks the build backend for them",
			)
	}

	data, err := opts.Metadata.ReadMetadata(ctx, dir)
	if err != nil {
		return nil, "", perrors.Wrap(perrors.ErrCodeProjectInvalid, "failed to prepare project metadata", err).
			WithSuggestion("Check that the build backend is installed for the runner's interpreter")
	}
	reqs, err := ParseRequiresDist(data, opts.Extras)
	return reqs, source, err
}

type pyprojectDocument struct {
	Project *struct {
		Name                 string              `toml:"name"`
		Dynamic              []string            `toml:"dynamic"`
		Dependencies         []string            `toml:"dependencies"`
		OptionalDependencies map[string][]string `toml:"optional-dependencies"`
	} `toml:"project"`
	Tool struct {
		Setuptools struct {
			Dynamic struct {
				Dependencies struct {
					File any `toml:"file"`
				} `toml:"dependencies"`
			} `toml:"dynamic"`
		} `toml:"setuptools"`
	} `toml:"tool"`
}

// readPyProjectDocument parses path, returning nil when it does not exist.
func readPyProjectDocument(path string) (*pyprojectDocument, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, perrors.Wrap(perrors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read %s", path), err)
	}
	var doc pyprojectDocument
	if err := toml.Unmarshal(data, &doc); err != nil {
		return nil, perrors.NewFileUnmarshalError(path, "TOML", err)
	}
	return &doc, nil
}

func (d *pyprojectDocument) dynamicDependencies() bool {
	for _, field := range d.Project.Dynamic {
		if field == "dependencies" {
			return true
		}
	}
	return false
}

// dependencyFiles returns [tool.setuptools.dynamic] dependencies.file, which
// may be a string or a list.
func (d *pyprojectDocument) dependencyFiles() []string {
	switch f := d.Tool.Setuptools.Dynamic.Dependencies.File.(type) {
	case string:
		return []string{f}
	case []any:
		var out []string
		for _, v := range f {
			if s, ok := v.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func (d *pyprojectDocument) requirements(path string, extras []string) ([]string, error) {
	out := append([]string(nil), d.Project.Dependencies...)
	for _, extra := range extras {
		group, ok := d.Project.OptionalDependencies[extra]
		if !ok {
			return nil, perrors.New(perrors.ErrCodeProjectInvalid,
				fmt.Sprintf("unknown extra %q in %s", extra, path))
		}
		out = append(out, group...)
	}
	return out, nil
}

func readDynamicFiles(dir string, files []string) ([]string, error) {
	var out []string
	for _, name := range files {
		lines, err := ReadRequirements(filepath.Join(dir, name))
		if err != nil {
			return nil, err
		}
		out = append(out, lines...)
	}
	return out, nil
}

// ReadRequirements returns the named requirements of a requirements file.
// Comments and blank lines are dropped, continuation lines are joined, and
// pip options or path/URL references are skipped.
func ReadRequirements(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read %s", path), err)
	}

	var (
		out     []string
		pending string
	)
	scanner := bufio.NewScanner(bytes.NewReader(data))
	for scanner.Scan() {
		line := scanner.Text()
		if strings.HasSuffix(line, `\`) {
			pending += strings.TrimSuffix(line, `\`) + " "
			continue
		}
		line = stripComment(pending + line)
		pending = ""
		if line == "" || requirement.IsPipLine(line) {
			continue
		}
		out = append(out, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read %s", path), err)
	}
	if line := stripComment(pending); line != "" && !requirement.IsPipLine(line) {
		out = append(out, line)
	}
	return out, nil
}

func stripComment(line string) string {
	if i := strings.Index(line, "#"); i >= 0 {
		line = line[:i]
	}
	return strings.TrimSpace(line)
}

// ExpandPatterns resolves comma-separated glob patterns against dir. Matches
// are sorted per pattern and deduplicated across patterns.
func ExpandPatterns(dir, patterns string) ([]string, error) {
	if strings.TrimSpace(patterns) == "" {
		patterns = DefaultRequirementsPattern
	}

	seen := make(map[string]bool)
	var out []string
	for _, pattern := range strings.Split(patterns, ",") {
		pattern = strings.TrimSpace(pattern)
		if pattern == "" {
			continue
		}
		if !filepath.IsAbs(pattern) {
			pattern = filepath.Join(dir, pattern)
		}
		matches, err := filepath.Glob(pattern)
		if err != nil {
			return nil, perrors.Wrap(perrors.ErrCodeConfigInvalid, fmt.Sprintf("invalid requirements pattern %q", pattern), err)
		}
		sort.Strings(matches)
		for _, m := range matches {
			if info, err := os.Stat(m); err != nil || info.IsDir() {
				continue
			}
			if !seen[m] {
				seen[m] = true
				out = append(out, m)
			}
		}
	}
	return out, nil
}
