package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"

	"github.com/feichai0017/review-automation/config"
	"github.com/feichai0017/review-automation/pkg/logger"
	"github.com/feichai0017/review-automation/pkg/report"
)

var processedCmd = &cobra.Command{
	Use:   "processed",
	Short: "List documents already present in the review report",
	RunE:  runProcessed,
}

func init() {
	rootCmd.AddCommand(processedCmd)
}

func runProcessed(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath, cmd.Flags())
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	processed := report.ListProcessed(cfg.ReportPath(), logger.NewNop())
	names := make([]string, 0, len(processed))
	for name := range processed {
		names = append(names, name)
	}
	sort.Strings(names)

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Report: %s\n", cfg.ReportPath())
	fmt.Fprintf(out, "Processed: %d\n\n", len(names))
	for _, name := range names {
		fmt.Fprintln(out, name)
	}
	return nil
}
