package project

import (
	"bytes"
	"context"
	"fmt"
	"net/mail"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/ini.v1"

	perrors "github.com/felixgeelhaar/pessimist/internal/errors"
)

// SetupCfgFile is the declarative setuptools configuration.
const SetupCfgFile = "setup.cfg"

// SetupPyFile is the imperative setuptools script. Its dependencies are only
// known after running it.
const SetupPyFile = "setup.py"

// MetadataReader produces a project's core metadata (the METADATA file of a
// wheel) by asking its build backend.
type MetadataReader interface {
	ReadMetadata(ctx context.Context, dir string) ([]byte, error)
}

// ReadSetupCfg returns [options] install_requires plus the named groups of
// [options.extras_require]. declared is false when setup.cfg has no
// install_requires key.
func ReadSetupCfg(path string, extras []string) (reqs []string, declared bool, err error) {
	cfg, err := ini.LoadSources(ini.LoadOptions{
		AllowPythonMultilineValues: true,
		IgnoreInlineComment:        true,
	}, path)
	if err != nil {
		return nil, false, perrors.NewFileUnmarshalError(path, "INI", err)
	}

	dir := filepath.Dir(path)
	options := cfg.Section("options")
	if options.HasKey("install_requires") {
		declared = true
		reqs, err = setupList(dir, options.Key("install_requires").String())
		if err != nil {
			return nil, false, err
		}
	}

	groups := cfg.Section("options.extras_require")
	for _, extra := range extras {
		if !groups.HasKey(extra) {
			return nil, false, perrors.New(perrors.ErrCodeProjectInvalid,
				fmt.Sprintf("unknown extra %q in %s", extra, path))
		}
		group, err := setupList(dir, groups.Key(extra).String())
		if err != nil {
			return nil, false, err
		}
		reqs = append(reqs, group...)
	}
	return reqs, declared, nil
}

// setupList splits a setuptools list value: one entry per line, or
// semicolon-separated on a single line. "file:" reads requirements files
// relative to dir.
func setupList(dir, value string) ([]string, error) {
	if rest, ok := strings.CutPrefix(strings.TrimSpace(value), "file:"); ok {
		var out []string
		for _, name := range strings.Split(rest, ",") {
			lines, err := ReadRequirements(filepath.Join(dir, strings.TrimSpace(name)))
			if err != nil {
				return nil, err
			}
			out = append(out, lines...)
		}
		return out, nil
	}

	var parts []string
	if strings.Contains(value, "\n") {
		parts = strings.Split(value, "\n")
	} else {
		parts = strings.Split(value, ";")
	}
	var out []string
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" || strings.HasPrefix(part, "#") {
			continue
		}
		out = append(out, part)
	}
	return out, nil
}

var extraClause = regexp.MustCompile(`(?i)extra\s*==\s*["']([^"']+)["']`)

// ParseRequiresDist returns the Requires-Dist entries of core metadata that
// apply without extras, plus those of the named extras with their extra
// clause removed.
func ParseRequiresDist(data []byte, extras []string) ([]string, error) {
	msg, err := mail.ReadMessage(bytes.NewReader(data))
	if err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeProjectInvalid, "invalid project metadata", err)
	}

	wanted := make(map[string]bool, len(extras))
	for _, e := range extras {
		wanted[canonicalExtra(e)] = true
	}
	provided := make(map[string]bool)
	for _, e := range msg.Header["Provides-Extra"] {
		provided[canonicalExtra(e)] = true
	}
	for _, e := range extras {
		if !provided[canonicalExtra(e)] {
			return nil, perrors.New(perrors.ErrCodeProjectInvalid, fmt.Sprintf("unknown extra %q in project metadata", e))
		}
	}

	var out []string
	for _, line := range msg.Header["Requires-Dist"] {
		spec, marker, _ := strings.Cut(line, ";")
		m := extraClause.FindStringSubmatch(marker)
		if m == nil {
			out = append(out, strings.TrimSpace(line))
			continue
		}
		if !wanted[canonicalExtra(m[1])] {
			continue
		}
		out = append(out, withoutExtra(strings.TrimSpace(spec), marker))
	}
	return out, nil
}

// withoutExtra drops the extra comparison from marker, along with the "and"
// that joined it to the rest.
func withoutExtra(spec, marker string) string {
	rest := extraClause.ReplaceAllString(marker, "")
	rest = strings.TrimSpace(rest)
	rest = strings.TrimSpace(strings.TrimSuffix(rest, "and"))
	rest = strings.TrimSpace(strings.TrimPrefix(rest, "and"))
	if rest == "" {
		return spec
	}
	return spec + "; " + rest
}

func canonicalExtra(s string) string {
	return strings.ToLower(strings.NewReplacer("_", "-", ".", "-").Replace(strings.TrimSpace(s)))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
