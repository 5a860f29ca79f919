package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/solve3fi/contracts/internal/scenario"
)

func newRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [scenario files or directories...]",
		Short: "Replay operation scenarios",
		Long: "Replay operation scenarios against the configured store. Files run " +
			"concurrently; the steps of one file run in order. Without arguments " +
			"the scenarios listed in the config are replayed.",
		RunE: runScenarios,
	}
	cmd.Flags().Int("concurrency", 4, "scenarios replayed at once (0 = all)")
	return cmd
}

func runScenarios(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	concurrency, _ := cmd.Flags().GetInt("concurrency")

	paths := args
	if len(paths) == 0 {
		paths = cfg.Scenarios
	}
	if len(paths) == 0 {
		return fmt.Errorf("no scenarios given and none configured")
	}
	scenarios, err := scenario.LoadAll(paths)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := setup(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close(context.Background())

	reports, err := a.runner(concurrency).RunAll(ctx, scenarios)
	if err != nil {
		a.logger.LogError(ctx, "scenario replay failed", err)
		return err
	}
	printReports(cmd.OutOrStdout(), reports)
	return nil
}

func printReports(w io.Writer, reports []*scenario.Report) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SCENARIO\tSTEPS\tDURATION\tRESULT")
	for _, r := range reports {
		fmt.Fprintf(tw, "%s\t%d\t%s\tok\n", r.Name, r.Steps, r.Duration.Round(time.Microsecond))
	}
	tw.Flush()
}
