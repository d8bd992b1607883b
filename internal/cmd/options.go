package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pessimist/internal/exec"
	"github.com/felixgeelhaar/pessimist/internal/project"
	"github.com/felixgeelhaar/pessimist/internal/registry"
)

// Defaults shared by flags and the config file.
const (
	DefaultCommand     = "make test"
	DefaultParallelism = 10
	DefaultCacheMaxAge = 24 * time.Hour
	DefaultRunner      = "venv"
)

// options is everything solve, plan and catalog need.
type options struct {
	Command      string
	Parallelism  int
	Fast         bool
	Extend       []string
	Requirements string
	Extras       []string
	Timeout      time.Duration

	IndexURL    string
	CacheDir    string
	CacheMaxAge time.Duration
	Refresh     bool
	NoCache     bool

	Runner  string
	Python  string
	Image   string
	Network string
	CPU     string
	Memory  string
	Env     map[string]string
	PipArgs []string
	Policy  *exec.Policy

	ManifestDir string
	MetricsFile string
	Progress    bool
}

func defaultOptions() *options {
	return &options{
		Command:      DefaultCommand,
		Parallelism:  DefaultParallelism,
		Requirements: project.DefaultRequirementsPattern,
		IndexURL:     registry.DefaultIndexURL,
		CacheMaxAge:  DefaultCacheMaxAge,
		Runner:       DefaultRunner,
		Image:        exec.DefaultImage,
	}
}

func (o *options) cacheDir() string {
	if o.CacheDir != "" {
		return o.CacheDir
	}
	return registry.DefaultCacheDir()
}

// addCatalogFlags registers the flags that shape the version catalog. The
// runner flags are included because markers are evaluated against the
// runner's interpreter.
func addCatalogFlags(cmd *cobra.Command, o *options) {
	f := cmd.Flags()
	f.BoolVar(&o.Fast, "fast", o.Fast, "only check the oldest and newest versions")
	f.StringSliceVar(&o.Extend, "extend", o.Extend, "ignore declared bounds for these packages (comma-separated, * for all)")
	f.StringVar(&o.Requirements, "requirements", o.Requirements, "comma-separated glob patterns for fixed requirement files")
	f.StringSliceVar(&o.Extras, "extras", o.Extras, "optional-dependency groups to include as variable requirements")

	f.StringVar(&o.IndexURL, "index-url", o.IndexURL, "base URL of a PyPI-compatible JSON API")
	f.StringVar(&o.CacheDir, "cache-dir", o.CacheDir, "index cache directory (default is the user cache dir)")
	f.DurationVar(&o.CacheMaxAge, "cache-max-age", o.CacheMaxAge, "refetch cached release lists older than this")
	f.BoolVar(&o.Refresh, "refresh", o.Refresh, "ignore the index cache and refetch every package")
	f.BoolVar(&o.NoCache, "no-cache", o.NoCache, "do not read or write the index cache")

	f.StringVar(&o.Runner, "runner", o.Runner, "environment runner: venv or docker")
	f.StringVar(&o.Python, "python", o.Python, "interpreter used to create virtual environments")
	f.StringVar(&o.Image, "image", o.Image, "docker image for the docker runner")
}

// addRunFlags registers the flags that only matter when plans execute.
func addRunFlags(cmd *cobra.Command, o *options) {
	f := cmd.Flags()
	f.StringVarP(&o.Command, "command", "c", o.Command, "test command, run through the shell with the environment's PATH")
	f.IntVarP(&o.Parallelism, "parallelism", "p", o.Parallelism, "number of concurrent environments")
	f.DurationVar(&o.Timeout, "timeout", o.Timeout, "abort the whole solve after this long (0 disables)")

	f.StringVar(&o.Network, "network", o.Network, "docker network mode")
	f.StringVar(&o.CPU, "cpus", o.CPU, "docker CPU limit")
	f.StringVar(&o.Memory, "memory", o.Memory, "docker memory limit")
	f.StringArrayVar(&o.PipArgs, "pip-arg", o.PipArgs, "extra argument passed to pip install (repeatable)")

	f.StringVar(&o.ManifestDir, "manifest-dir", o.ManifestDir, "write one JSON run manifest per plan into this directory")
	f.StringVar(&o.MetricsFile, "metrics-file", o.MetricsFile, "write Prometheus metrics in text format to this file")
	f.BoolVar(&o.Progress, "progress", o.Progress, "show a progress bar on stderr")
}
