package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/felixgeelhaar/pessimist/internal/catalog"
)

type catalogEntryJSON struct {
	Name       string   `json:"name"`
	Kind       string   `json:"kind"`
	Overridden bool     `json:"overridden,omitempty"`
	Known      int      `json:"known"`
	Versions   []string `json:"versions"`
}

func newCatalogCmd() *cobra.Command {
	o := defaultOptions()
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "catalog [flags] TARGET_DIR",
		Short: "Show the candidate versions of every dependency",
		Args:  targetArg,
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			s, err := newSession(cmd, args[0], o)
			if err != nil {
				return err
			}
			defer func() { s.writeMetrics(err) }()

			prov, err := newProvisioner(s)
			if err != nil {
				return err
			}
			decl, err := s.declarations(cmd.Context(), prov)
			if err != nil {
				return err
			}
			cat, err := s.buildCatalog(cmd.Context(), decl, prov)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if asJSON {
				data, err := json.MarshalIndent(catalogJSON(cat), "", "  ")
				if err != nil {
					return fmt.Errorf("failed to marshal catalog: %w", err)
				}
				fmt.Fprintln(out, string(data))
				return nil
			}

			printSummary(out, decl)
			printVersions(out, cat)
			fmt.Fprintf(out, "%d plans in %s mode\n", planCount(cat, o.Fast), modeName(o.Fast))
			return nil
		},
	}
	addCatalogFlags(cmd, o)
	cmd.Flags().BoolVar(&asJSON, "json", false, "output the catalog as JSON")
	return cmd
}

func catalogJSON(cat *catalog.Catalog) []catalogEntryJSON {
	out := make([]catalogEntryJSON, 0, cat.Len())
	for _, e := range cat.Entries() {
		vs := make([]string, len(e.Versions))
		for i, v := range e.Versions {
			vs[i] = v.String()
		}
		out = append(out, catalogEntryJSON{
			Name:       e.Name,
			Kind:       e.Kind.String(),
			Overridden: e.Overridden,
			Known:      e.Known,
			Versions:   vs,
		})
	}
	return out
}

// planCount is the most plans a solve dispatches, joint verification included.
func planCount(cat *catalog.Catalog, fast bool) int {
	if fast {
		return 2
	}
	return cat.PlanCount()
}

func modeName(fast bool) string {
	if fast {
		return "fast"
	}
	return "thorough"
}
