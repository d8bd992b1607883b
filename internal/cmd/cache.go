package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pessimist/internal/registry"
)

func newCacheCmd() *cobra.Command {
	var cacheDir string

	cacheCmd := &cobra.Command{
		Use:   "cache",
		Short: "Manage the package index cache",
	}
	cacheCmd.PersistentFlags().StringVar(&cacheDir, "cache-dir", "", "index cache directory (default is the user cache dir)")

	dir := func() string {
		if cacheDir != "" {
			return cacheDir
		}
		return registry.DefaultCacheDir()
	}

	var maxAge = DefaultCacheMaxAge
	pruneCmd := &cobra.Command{
		Use:   "prune",
		Short: "Drop cached release lists older than --max-age",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cache := registry.NewCache(nil, dir(), maxAge)
			n, err := cache.Prune(maxAge)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Pruned %d entries from %s\n", n, dir())
			return nil
		},
	}
	pruneCmd.Flags().DurationVar(&maxAge, "max-age", maxAge, "remove entries fetched longer ago than this (0 removes everything)")

	pathCmd := &cobra.Command{
		Use:   "path",
		Short: "Show the cache directory",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), dir())
			return nil
		},
	}

	cacheCmd.AddCommand(pruneCmd, pathCmd)
	return cacheCmd
}
