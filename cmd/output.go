package cmd

import (
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
	"github.com/mitchellh/go-homedir"
	"github.com/spf13/cobra"

	"github.com/xkilldash9x/feedpilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// writeJSON prints v as indented JSON to stdout or, when path is set, to that file.
func writeJSON(cmd *cobra.Command, path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	data = append(data, '\n')

	if path == "" {
		_, err = cmd.OutOrStdout().Write(data)
		return err
	}
	expanded, err := homedir.Expand(path)
	if err != nil {
		return fmt.Errorf("failed to expand output path: %w", err)
	}
	if err := os.WriteFile(expanded, data, 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Fprintf(cmd.ErrOrStderr(), "Output written to %s\n", expanded)
	return nil
}

// applyBrowserFlags folds --headful and --manual-login into cfg. Manual login
// needs a visible window, so it implies --headful.
func applyBrowserFlags(cmd *cobra.Command, cfg config.Interface) {
	if headful, _ := cmd.Flags().GetBool("headful"); headful {
		cfg.SetBrowserHeadless(false)
	}
	if manual, _ := cmd.Flags().GetBool("manual-login"); manual {
		cfg.SetAgentManualLogin(true)
		cfg.SetBrowserHeadless(false)
	}
}

func addBrowserFlags(cmd *cobra.Command) {
	cmd.Flags().Bool("headful", false, "Show the browser window. (Overrides config/env)")
	cmd.Flags().Bool("manual-login", false, "Wait for a manual login when a site asks for one. Implies --headful.")
}
