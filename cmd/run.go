package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"retflow/internal/pipeline"
	"retflow/internal/retention"
	"retflow/internal/ui"
)

var (
	runSkipPrepare bool
	runDryRun      bool
	runApply       bool
	runBackup      bool
	runVerify      bool
	runKeepLocal   bool
	runOffsets     retention.Offsets
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the full retention pipeline",
	Long: `Run all pipeline stages in order: prepare the sessions table,
materialize the retention aggregate, export and convert it, and
publish the result to the dashboard server.`,
	RunE: runPipeline,
}

func runPipeline(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	runner, wh, err := newRunner(ctx, cfg)
	if err != nil {
		return err
	}
	defer wh.Close()

	opts := pipeline.RunOptions{
		SkipPrepare: runSkipPrepare || cfg.Pipeline.SkipPrepare,
		DryRun:      runDryRun,
		Apply:       runApply,
		Backup:      runBackup || cfg.Pipeline.Backup,
		Verify:      runVerify,
		KeepLocal:   runKeepLocal || cfg.Pipeline.KeepLocal,
		Offsets:     runOffsets,
	}

	stages := []string{pipeline.StagePrepare, pipeline.StageAggregate, pipeline.StageExport, pipeline.StagePublish}
	if opts.SkipPrepare {
		stages = stages[1:]
	}

	result, runErr := runner.Run(ctx, opts)

	ui.ShowRunSummary(result.RunID, cfg.Retention.SessionsTable, cfg.Retention.AggregateTable, stages)
	for _, stage := range result.Stages {
		msg := stage.Detail
		if stage.Err != nil {
			msg = stage.Err.Error()
		}
		ui.ShowStageResult(stage.Stage, stage.Err == nil, msg, stage.Duration.String())
	}

	if runErr != nil {
		return runErr
	}

	ui.ShowSuccess("Pipeline run " + result.RunID + " completed in " + result.Duration.Round(0).String())
	return nil
}

func init() {
	runCmd.Flags().BoolVar(&runSkipPrepare, "skip-prepare", false, "Skip the table preparation stage")
	runCmd.Flags().BoolVar(&runDryRun, "dry-run", false, "Show what each stage would do without executing")
	runCmd.Flags().BoolVar(&runApply, "apply", false, "Execute the tuning plan during prepare")
	runCmd.Flags().BoolVar(&runBackup, "backup", false, "Back up the sessions table before layout changes")
	runCmd.Flags().BoolVar(&runVerify, "verify", false, "Verify the aggregate against a reference re-tally")
	runCmd.Flags().BoolVar(&runKeepLocal, "keep-local", false, "Keep downloaded artifacts after the run")
	runCmd.Flags().Var(&runOffsets, "offsets", "Day offsets to measure, e.g. 1,7,30")
	rootCmd.AddCommand(runCmd)
}
