package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/internal/config"
	"github.com/xkilldash9x/feedpilot/internal/observability"
	"github.com/xkilldash9x/feedpilot/internal/site"
)

func newSitesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sites",
		Short: "Lists the known site profiles",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			registry, err := loadRegistry(cfg)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tHOME\tLOGIN")
			for _, p := range registry.All() {
				login := p.LoginURL()
				if login == "" {
					login = "-"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.ID(), p.Name(), p.HomeURL(), login)
			}
			return w.Flush()
		},
	}
}

// loadRegistry builds the registry without touching the store or browser.
func loadRegistry(cfg config.Interface) (*site.Registry, error) {
	registry := site.DefaultRegistry()
	if path := cfg.Sites().ProfilesFile; path != "" {
		n, err := registry.LoadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to load site profiles: %w", err)
		}
		observability.GetLogger().Debug("Loaded site profiles", zap.String("path", path), zap.Int("count", n))
	}
	return registry, nil
}
