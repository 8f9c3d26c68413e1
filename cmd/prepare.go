package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"retflow/internal/pipeline"
	"retflow/internal/ui"
	"retflow/internal/warehouse"
)

var (
	prepareApply  bool
	prepareBackup bool
	prepareDryRun bool
)

var prepareCmd = &cobra.Command{
	Use:   "prepare [table]",
	Short: "Inspect and tune the sessions table for the aggregation scan",
	Long: `Inspect the sessions table's physical layout, statistics freshness, and
the planner's estimate for the aggregation scan, then plan the tuning
statements that prepare it. Statements are only executed with --apply.

The table argument overrides the configured sessions table.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPrepare,
}

func runPrepare(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if len(args) > 0 {
		cfg.Retention.SessionsTable = args[0]
	}

	wh, err := newWarehouse(cfg)
	if err != nil {
		return err
	}
	defer wh.Close()

	runner := pipeline.NewRunner(cfg, wh, nil, nil, nil, nil)
	opts := pipeline.RunOptions{}

	spinner := ui.NewSpinner(fmt.Sprintf("Inspecting %s", cfg.Retention.SessionsTable))
	spinner.Start()
	report, steps, err := runner.PreparePlan(ctx, opts)
	if err != nil {
		spinner.Stop(false, "Inspection failed")
		return err
	}
	spinner.Stop(true, "Inspection complete")

	renderTableReport(report)

	if len(steps) == 0 {
		ui.ShowSuccess("Table layout already satisfies the aggregation scan")
		return nil
	}

	renderTuningPlan(steps)

	if prepareDryRun || !prepareApply {
		ui.ShowInfo("Re-run with --apply to execute the plan")
		return nil
	}

	tuner := warehouse.NewTuner(wh)
	if prepareBackup {
		runID := pipeline.NewRunID()
		backup, err := tuner.BackupTable(ctx, cfg.Retention.SessionsTable, runID)
		if err != nil {
			return err
		}
		ui.ShowInfo(fmt.Sprintf("Backed up sessions table to %s", backup))
	}

	results, err := tuner.Apply(ctx, steps)
	for _, res := range results {
		status := res.Err == nil
		msg := res.Step.SQL
		if res.Err != nil {
			msg = res.Err.Error()
		}
		ui.ShowStageResult(string(res.Step.Action), status, msg, res.Duration.String())
	}
	if err != nil {
		return err
	}

	ui.ShowSuccess(fmt.Sprintf("Applied %d tuning steps", len(results)))
	return nil
}

func renderTableReport(report *warehouse.TableReport) {
	info := report.Info

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Property", "Current", "Desired"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	table.Append([]string{"Rows", fmt.Sprintf("%d", info.RowCount), ""})
	table.Append([]string{"Size (MB)", fmt.Sprintf("%d", info.SizeMB), ""})
	if info.DistStyle != "" {
		table.Append([]string{"Dist style", info.DistStyle, ""})
	}
	table.Append([]string{"Dist key", layoutValue(info.DistKey, report.Desired.DistKey), report.Desired.DistKey})
	currentSort := strings.Join(info.SortKeys, ", ")
	desiredSort := strings.Join(report.Desired.SortKeys, ", ")
	table.Append([]string{"Sort keys", layoutValue(currentSort, desiredSort), desiredSort})
	if len(info.ClusterKeys) > 0 {
		table.Append([]string{"Cluster keys", strings.Join(info.ClusterKeys, ", "), ""})
	}
	table.Append([]string{"Stale stats %", fmt.Sprintf("%.1f", info.StatsStalePct), ""})
	table.Append([]string{"Unsorted %", fmt.Sprintf("%.1f", info.UnsortedPct), ""})

	fmt.Println()
	table.Render()
	fmt.Println()

	if report.Scan != nil {
		ui.ShowInfo(fmt.Sprintf("Aggregation scan estimate: cost %.0f, rows %d", report.Scan.Cost, report.Scan.Rows))
		for _, warning := range report.Scan.Warnings {
			ui.ShowWarning(warning)
		}
	}
}

func renderTuningPlan(steps []warehouse.TuningStep) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"#", "Action", "Reason", "Statement"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	for i, step := range steps {
		table.Append([]string{
			fmt.Sprintf("%d", i+1),
			actionLabel(step.Action),
			step.Reason,
			step.SQL,
		})
	}

	fmt.Println()
	table.Render()
	fmt.Println()
}

// layoutValue marks the current value red when it differs from the
// desired one.
func layoutValue(current, desired string) string {
	if desired == "" || current == desired {
		return current
	}
	if current == "" {
		current = "(none)"
	}
	return color.RedString(current)
}

func actionLabel(action warehouse.StepAction) string {
	switch action {
	case warehouse.ActionAlterLayout:
		return color.YellowString(string(action))
	case warehouse.ActionAnalyze, warehouse.ActionVacuum:
		return color.GreenString(string(action))
	default:
		return string(action)
	}
}

func init() {
	prepareCmd.Flags().BoolVar(&prepareApply, "apply", false, "Execute the tuning plan")
	prepareCmd.Flags().BoolVar(&prepareBackup, "backup", false, "Back up the sessions table before layout changes")
	prepareCmd.Flags().BoolVar(&prepareDryRun, "dry-run", false, "Plan only, never execute")
	rootCmd.AddCommand(prepareCmd)
}
