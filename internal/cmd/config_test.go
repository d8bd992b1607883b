package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func newFlagged(o *options) *cobra.Command {
	cmd := &cobra.Command{Use: "test"}
	addCatalogFlags(cmd, o)
	addRunFlags(cmd, o)
	return cmd
}

func TestLoadFileConfig(t *testing.T) {
	dir := t.TempDir()

	t.Run("missing default file", func(t *testing.T) {
		config, err := loadFileConfig(filepath.Join(dir, ConfigFileName), false)
		require.NoError(t, err)
		assert.Equal(t, &FileConfig{}, config)
	})

	t.Run("missing explicit file", func(t *testing.T) {
		_, err := loadFileConfig(filepath.Join(dir, "other.yaml"), true)
		require.Error(t, err)
	})

	t.Run("invalid yaml", func(t *testing.T) {
		path := filepath.Join(dir, "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("parallelism: [1"), 0o644))
		_, err := loadFileConfig(path, true)
		require.Error(t, err)
	})

	t.Run("full file", func(t *testing.T) {
		path := filepath.Join(dir, "full.yaml")
		content := `
command: pytest -q
parallelism: 4
extend: [attrs]
timeout: 30m
index:
  url: https://mirror.example/pypi
  max_age: 1h
runner:
  kind: docker
  image: python:3.11-slim
  env:
    CI: "1"
policy:
  allow_local: false
  image_allowlist: ["python:*"]
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		config, err := loadFileConfig(path, true)
		require.NoError(t, err)
		assert.Equal(t, "pytest -q", config.Command)
		assert.Equal(t, 4, config.Parallelism)
		assert.Equal(t, "docker", config.Runner.Kind)
		assert.Equal(t, map[string]string{"CI": "1"}, config.Runner.Env)
		require.NotNil(t, config.Policy)
		assert.Equal(t, []string{"python:*"}, config.Policy.ImageAllowlist)
	})
}

func TestApplyConfigPrecedence(t *testing.T) {
	o := defaultOptions()
	cmd := newFlagged(o)
	require.NoError(t, cmd.ParseFlags([]string{"-p", "8", "--runner", "venv"}))

	config := &FileConfig{
		Command:     "tox",
		Parallelism: 2,
		Timeout:     "5m",
		Index:       IndexConfig{MaxAge: "2h"},
		Runner:      RunnerConfig{Kind: "docker", Image: "python:3.12", Env: map[string]string{"A": "b"}},
		Output:      OutputConfig{Progress: true},
	}
	require.NoError(t, o.applyConfig(cmd, config))

	assert.Equal(t, "tox", o.Command)
	assert.Equal(t, 8, o.Parallelism, "flag wins over file")
	assert.Equal(t, "venv", o.Runner, "flag wins over file")
	assert.Equal(t, "python:3.12", o.Image)
	assert.Equal(t, 5*time.Minute, o.Timeout)
	assert.Equal(t, 2*time.Hour, o.CacheMaxAge)
	assert.Equal(t, map[string]string{"A": "b"}, o.Env)
	assert.True(t, o.Progress)
}

func TestApplyConfigDefaults(t *testing.T) {
	o := defaultOptions()
	cmd := newFlagged(o)
	require.NoError(t, cmd.ParseFlags(nil))
	require.NoError(t, o.applyConfig(cmd, &FileConfig{}))

	assert.Equal(t, DefaultCommand, o.Command)
	assert.Equal(t, DefaultParallelism, o.Parallelism)
	assert.Equal(t, DefaultRunner, o.Runner)
	assert.Equal(t, DefaultCacheMaxAge, o.CacheMaxAge)
}

func TestApplyConfigInvalidDuration(t *testing.T) {
	o := defaultOptions()
	cmd := newFlagged(o)
	require.NoError(t, cmd.ParseFlags(nil))

	err := o.applyConfig(cmd, &FileConfig{Timeout: "soon"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}

func TestConfigView(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFileName), []byte("command: nox\nparallelism: 3\n"), 0o644))

	out, _, err := execute(t, "config", "view", "-p", "5", dir)
	require.NoError(t, err)

	var config FileConfig
	require.NoError(t, yaml.Unmarshal([]byte(out), &config))
	assert.Equal(t, "nox", config.Command)
	assert.Equal(t, 5, config.Parallelism)
	assert.Equal(t, DefaultRunner, config.Runner.Kind)
}

func TestConfigPath(t *testing.T) {
	dir := t.TempDir()

	out, _, err := execute(t, "config", "path", dir)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, ConfigFileName)+" (not found)\n", out)

	explicit := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(explicit, []byte("{}"), 0o644))
	out, _, err = execute(t, "config", "path", "--config", explicit, dir)
	require.NoError(t, err)
	assert.Equal(t, explicit+" (found)\n", out)
}
