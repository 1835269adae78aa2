package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/internal/observability"
	"github.com/xkilldash9x/feedpilot/internal/orchestrator"
)

// errRunFailed is returned when a run ends in the failed state. Its output has
// already been written.
var errRunFailed = errors.New("run failed")

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Runs one instruction and prints the extracted items as JSON",
		Example: `  feedpilot run --instruction "latest videos on bilibili"
  feedpilot run -i "trending repositories" -u https://github.com/trending -o trending.json`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			instruction, _ := cmd.Flags().GetString("instruction")
			instruction = strings.TrimSpace(instruction)
			if instruction == "" {
				return fmt.Errorf("--instruction is required")
			}
			targetURL, _ := cmd.Flags().GetString("url")
			outputPath, _ := cmd.Flags().GetString("output")

			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			applyBrowserFlags(cmd, cfg)

			comps, err := buildComponents(ctx, cfg, logger, componentOptions{agent: true})
			if comps != nil {
				defer comps.Shutdown(logger)
			}
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}

			out, runErr := comps.Runner.Run(ctx, orchestrator.RunRequest{Instruction: instruction, URL: targetURL})
			if out != nil {
				if err := writeJSON(cmd, outputPath, out); err != nil {
					return err
				}
			}
			if runErr != nil {
				logger.Warn("Run did not complete", zap.Error(runErr))
				return fmt.Errorf("%w: %w", errRunFailed, runErr)
			}
			return nil
		},
	}

	runCmd.Flags().StringP("instruction", "i", "", "Natural-language description of what to collect.")
	runCmd.Flags().StringP("url", "u", "", "Start URL. Inferred from the instruction when empty.")
	runCmd.Flags().StringP("output", "o", "", "Write the JSON output to this file instead of stdout.")
	addBrowserFlags(runCmd)
	return runCmd
}
