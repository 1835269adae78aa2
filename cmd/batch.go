package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/feedpilot/internal/engine"
	"github.com/xkilldash9x/feedpilot/internal/observability"
)

func newBatchCmd() *cobra.Command {
	batchCmd := &cobra.Command{
		Use:   "batch",
		Short: "Runs every instruction of a YAML task file",
		Example: `  feedpilot batch --file tasks.yaml --concurrency 2 --output results.json

  # tasks.yaml
  - instruction: latest videos on bilibili
  - id: trending
    instruction: trending repositories
    url: https://github.com/trending`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			logger := observability.GetLogger()

			path, _ := cmd.Flags().GetString("file")
			if path == "" {
				return fmt.Errorf("--file is required")
			}
			outputPath, _ := cmd.Flags().GetString("output")

			tasks, err := engine.LoadTasks(path)
			if err != nil {
				return err
			}
			if len(tasks) == 0 {
				return fmt.Errorf("no tasks found in %s", path)
			}

			cfg, err := configFrom(cmd)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("concurrency") {
				n, _ := cmd.Flags().GetInt("concurrency")
				if n <= 0 {
					return fmt.Errorf("--concurrency must be a positive integer")
				}
				cfg.SetEngineConcurrency(n)
			}
			applyBrowserFlags(cmd, cfg)

			comps, err := buildComponents(ctx, cfg, logger, componentOptions{agent: true})
			if comps != nil {
				defer comps.Shutdown(logger)
			}
			if err != nil {
				return fmt.Errorf("failed to initialize components: %w", err)
			}

			taskEngine, err := engine.New(cfg, logger, comps.Runner)
			if err != nil {
				return fmt.Errorf("failed to initialize task engine: %w", err)
			}
			results := taskEngine.Run(ctx, tasks)

			if err := writeJSON(cmd, outputPath, results); err != nil {
				return err
			}

			failed := 0
			for _, r := range results {
				if r.Err != nil {
					failed++
				}
			}
			logger.Info("Batch complete", zap.Int("tasks", len(results)), zap.Int("failed", failed))
			if failed > 0 {
				return fmt.Errorf("%w: %d of %d tasks failed", errRunFailed, failed, len(results))
			}
			return nil
		},
	}

	batchCmd.Flags().StringP("file", "f", "", "YAML file listing the tasks.")
	batchCmd.Flags().StringP("output", "o", "", "Write the JSON results to this file instead of stdout.")
	batchCmd.Flags().IntP("concurrency", "j", 0, "Number of runs in parallel. (Overrides config/env)")
	addBrowserFlags(batchCmd)
	return batchCmd
}
