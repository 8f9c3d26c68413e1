package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"retflow/internal/retention"
	"retflow/internal/ui"
)

var (
	aggregateOffsets retention.Offsets
	aggregateVerify  bool
)

var aggregateCmd = &cobra.Command{
	Use:   "aggregate",
	Short: "Materialize the cohort retention aggregate",
	Long: `Run the retention aggregation over the sessions table and materialize
the result as the aggregate table. Each cohort row counts the players
who installed that day and how many returned exactly N days later, for
each configured offset.`,
	RunE: runAggregate,
}

func runAggregate(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	wh, err := newWarehouse(cfg)
	if err != nil {
		return err
	}
	defer wh.Close()

	if err := wh.Connect(ctx); err != nil {
		return err
	}

	agg, err := retention.NewAggregator(wh, cfg.Retention, aggregateOffsets)
	if err != nil {
		return err
	}

	spinner := ui.NewSpinner(fmt.Sprintf("Aggregating %s", cfg.Retention.SessionsTable))
	spinner.Start()
	rows, err := agg.Run(ctx)
	if err != nil {
		spinner.Stop(false, "Aggregation failed")
		return err
	}
	spinner.Stop(true, fmt.Sprintf("Materialized %d cohort rows in %s", rows, cfg.Retention.AggregateTable))

	if aggregateVerify {
		spinner = ui.NewSpinner("Verifying against a reference re-tally")
		spinner.Start()
		if err := agg.Verify(ctx, cfg.Retention.VerifySampleDays); err != nil {
			spinner.Stop(false, "Verification failed")
			return err
		}
		spinner.Stop(true, "Sample cohorts match the reference tally")
	}

	return nil
}

func init() {
	aggregateCmd.Flags().Var(&aggregateOffsets, "offsets", "Day offsets to measure, e.g. 1,7,30")
	aggregateCmd.Flags().BoolVar(&aggregateVerify, "verify", false, "Re-tally a sample of cohorts and compare")
	rootCmd.AddCommand(aggregateCmd)
}
