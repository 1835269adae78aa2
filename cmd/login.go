package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xkilldash9x/feedpilot/internal/observability"
	"github.com/xkilldash9x/feedpilot/internal/orchestrator"
	"github.com/xkilldash9x/feedpilot/internal/site"
)

func newLoginCmd() *cobra.Command {
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Opens a browser window to sign in to a site and saves the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			siteID, _ := cmd.Flags().GetString("site")
			if siteID == "" {
				return fmt.Errorf("--site is required")
			}

			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}

			comps, err := buildComponents(ctx, cfg, logger, componentOptions{})
			if comps != nil {
				defer comps.Shutdown(logger)
			}
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}

			profile, ok := comps.Sites.Get(siteID)
			if !ok {
				return fmt.Errorf("unknown site %q (known: %s)", siteID, strings.Join(siteIDs(comps.Sites), ", "))
			}

			recovery := orchestrator.NewManualLogin(cfg.Agent(), logger)
			fmt.Fprintf(cmd.ErrOrStderr(), "Sign in to %s in the browser window. Waiting up to %s...\n", profile.Name(), recovery.Timeout)

			bundle, err := orchestrator.Login(ctx, headfulSessions{m: comps.Browser}, comps.Guard, recovery, profile)
			if err != nil {
				return fmt.Errorf("login to %s failed: %w", profile.ID(), err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %d cookies for %s\n", len(bundle.Cookies), profile.ID())
			return nil
		},
	}
	loginCmd.Flags().StringP("site", "s", "", "Site id, as listed by 'feedpilot sites'.")
	return loginCmd
}

func siteIDs(r *site.Registry) []string {
	all := r.All()
	ids := make([]string, 0, len(all))
	for _, p := range all {
		ids = append(ids, p.ID())
	}
	return ids
}
