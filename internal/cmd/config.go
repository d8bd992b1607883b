package cmd

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	perrors "github.com/felixgeelhaar/pessimist/internal/errors"
	"github.com/felixgeelhaar/pessimist/internal/exec"
)

// ConfigFileName is looked up in the target directory when --config is not given.
const ConfigFileName = ".pessimist.yaml"

// FileConfig is the optional per-project configuration file. Flags given on
// the command line win over values set here.
type FileConfig struct {
	Command      string   `yaml:"command,omitempty"`
	Parallelism  int      `yaml:"parallelism,omitempty"`
	Fast         bool     `yaml:"fast,omitempty"`
	Extend       []string `yaml:"extend,omitempty"`
	Requirements string   `yaml:"requirements,omitempty"`
	Extras       []string `yaml:"extras,omitempty"`
	Timeout      string   `yaml:"timeout,omitempty"`

	Index  IndexConfig  `yaml:"index,omitempty"`
	Runner RunnerConfig `yaml:"runner,omitempty"`
	Output OutputConfig `yaml:"output,omitempty"`

	Policy *exec.Policy `yaml:"policy,omitempty"`
}

type IndexConfig struct {
	URL      string `yaml:"url,omitempty"`
	CacheDir string `yaml:"cache_dir,omitempty"`
	MaxAge   string `yaml:"max_age,omitempty"` // e.g. "24h"
}

type RunnerConfig struct {
	Kind    string            `yaml:"kind,omitempty"` // "venv" or "docker"
	Python  string            `yaml:"python,omitempty"`
	Image   string            `yaml:"image,omitempty"`
	Network string            `yaml:"network,omitempty"`
	CPU     string            `yaml:"cpu,omitempty"`
	Memory  string            `yaml:"memory,omitempty"`
	Env     map[string]string `yaml:"env,omitempty"`
	PipArgs []string          `yaml:"pip_args,omitempty"`
}

type OutputConfig struct {
	ManifestDir string `yaml:"manifest_dir,omitempty"`
	MetricsFile string `yaml:"metrics_file,omitempty"`
	Progress    bool   `yaml:"progress,omitempty"`
}

// configPathFor returns the explicit path, or the default file in dir.
func configPathFor(explicit, dir string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(dir, ConfigFileName)
}

// loadFileConfig reads path. A missing default file yields an empty config;
// a missing explicit file is an error.
func loadFileConfig(path string, explicit bool) (*FileConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && !explicit {
			return &FileConfig{}, nil
		}
		if os.IsNotExist(err) {
			return nil, perrors.NewFileNotFoundError(path)
		}
		return nil, perrors.Wrap(perrors.ErrCodeFileReadFailed, fmt.Sprintf("failed to read config: %s", path), err)
	}

	var config FileConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, perrors.Wrap(perrors.ErrCodeConfigInvalid, fmt.Sprintf("failed to parse config: %s", path), err)
	}
	return &config, nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, perrors.Wrap(perrors.ErrCodeConfigInvalid, fmt.Sprintf("invalid duration for %s: %q", field, value), err)
	}
	return d, nil
}

// applyConfig copies file values into o for every flag the user did not set.
func (o *options) applyConfig(cmd *cobra.Command, config *FileConfig) error {
	flags := cmd.Flags()
	unset := func(name string) bool {
		return flags.Lookup(name) != nil && !flags.Changed(name)
	}

	if config.Command != "" && unset("command") {
		o.Command = config.Command
	}
	if config.Parallelism != 0 && unset("parallelism") {
		o.Parallelism = config.Parallelism
	}
	if config.Fast && unset("fast") {
		o.Fast = true
	}
	if len(config.Extend) > 0 && unset("extend") {
		o.Extend = config.Extend
	}
	if config.Requirements != "" && unset("requirements") {
		o.Requirements = config.Requirements
	}
	if len(config.Extras) > 0 && unset("extras") {
		o.Extras = config.Extras
	}
	if config.Timeout != "" && unset("timeout") {
		d, err := parseDuration("timeout", config.Timeout)
		if err != nil {
			return err
		}
		o.Timeout = d
	}

	if config.Index.URL != "" && unset("index-url") {
		o.IndexURL = config.Index.URL
	}
	if config.Index.CacheDir != "" && unset("cache-dir") {
		o.CacheDir = config.Index.CacheDir
	}
	if config.Index.MaxAge != "" && unset("cache-max-age") {
		d, err := parseDuration("index.max_age", config.Index.MaxAge)
		if err != nil {
			return err
		}
		o.CacheMaxAge = d
	}

	r := config.Runner
	if r.Kind != "" && unset("runner") {
		o.Runner = r.Kind
	}
	if r.Python != "" && unset("python") {
		o.Python = r.Python
	}
	if r.Image != "" && unset("image") {
		o.Image = r.Image
	}
	if r.Network != "" && unset("network") {
		o.Network = r.Network
	}
	if r.CPU != "" && unset("cpus") {
		o.CPU = r.CPU
	}
	if r.Memory != "" && unset("memory") {
		o.Memory = r.Memory
	}
	if len(r.PipArgs) > 0 && unset("pip-arg") {
		o.PipArgs = r.PipArgs
	}
	o.Env = r.Env

	out := config.Output
	if out.ManifestDir != "" && unset("manifest-dir") {
		o.ManifestDir = out.ManifestDir
	}
	if out.MetricsFile != "" && unset("metrics-file") {
		o.MetricsFile = out.MetricsFile
	}
	if out.Progress && unset("progress") {
		o.Progress = true
	}

	if config.Policy != nil {
		o.Policy = config.Policy
	}
	return nil
}

// effectiveConfig renders options back into the file format.
func (o *options) effectiveConfig() *FileConfig {
	config := &FileConfig{
		Command:      o.Command,
		Parallelism:  o.Parallelism,
		Fast:         o.Fast,
		Extend:       o.Extend,
		Requirements: o.Requirements,
		Extras:       o.Extras,
		Index: IndexConfig{
			URL:      o.IndexURL,
			CacheDir: o.cacheDir(),
			MaxAge:   o.CacheMaxAge.String(),
		},
		Runner: RunnerConfig{
			Kind:    o.Runner,
			Python:  o.Python,
			Image:   o.Image,
			Network: o.Network,
			CPU:     o.CPU,
			Memory:  o.Memory,
			Env:     o.Env,
			PipArgs: o.PipArgs,
		},
		Output: OutputConfig{
			ManifestDir: o.ManifestDir,
			MetricsFile: o.MetricsFile,
			Progress:    o.Progress,
		},
		Policy: o.Policy,
	}
	if o.Timeout > 0 {
		config.Timeout = o.Timeout.String()
	}
	return config
}

func newConfigCmd() *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show pessimist configuration",
		Long: `Show the configuration pessimist would use for a project.

Values come from flags, then <target>/.pessimist.yaml (or --config), then
built-in defaults.

Examples:
  # Show the merged configuration for a project
  pessimist config view ./myproject

  # Show which configuration file is read
  pessimist config path ./myproject
`,
	}

	o := defaultOptions()
	viewCmd := &cobra.Command{
		Use:   "view TARGET_DIR",
		Short: "Display the effective configuration",
		Args:  targetArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := newSession(cmd, args[0], o)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(s.opts.effectiveConfig())
			if err != nil {
				return perrors.Wrap(perrors.ErrCodeFileMarshal, "failed to marshal config", err)
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	}
	addCatalogFlags(viewCmd, o)
	addRunFlags(viewCmd, o)

	pathCmd := &cobra.Command{
		Use:   "path TARGET_DIR",
		Short: "Show configuration file path",
		Args:  targetArg,
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdCtx, err := NewCommandContext(cmd)
			if err != nil {
				return err
			}
			path := configPathFor(cmdCtx.ConfigPath, args[0])
			status := "found"
			if _, err := os.Stat(path); err != nil {
				status = "not found"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s (%s)\n", path, status)
			return nil
		},
	}

	configCmd.AddCommand(viewCmd, pathCmd)
	return configCmd
}
