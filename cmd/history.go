package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"retflow/internal/pipeline"
	"retflow/internal/ui"
)

var (
	historyLimit  int
	historySelect bool
)

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "Show recent pipeline runs",
	RunE:  runHistory,
}

func runHistory(cmd *cobra.Command, args []string) error {
	records, err := pipeline.NewHistory().Recent(historyLimit)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Println("No runs recorded yet.")
		return nil
	}

	if historySelect {
		return inspectRun(records)
	}

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Run", "Started", "Status", "Stages", "Duration", "Error"})
	table.SetBorder(false)
	table.SetAutoWrapText(false)

	for _, rec := range records {
		duration := rec.FinishedAt.Sub(rec.StartedAt).Round(time.Millisecond)
		table.Append([]string{
			rec.RunID,
			rec.StartedAt.Format("2006-01-02 15:04:05"),
			rec.Status,
			fmt.Sprintf("%d", len(rec.Stages)),
			duration.String(),
			rec.Error,
		})
	}

	table.Render()
	return nil
}

// inspectRun lets the user pick a run and prints its stage outcomes.
func inspectRun(records []pipeline.Record) error {
	runs := make([]ui.RunInfo, len(records))
	byID := make(map[string]pipeline.Record, len(records))
	for i, rec := range records {
		runs[i] = ui.RunInfo{
			ID:        rec.RunID,
			StartedAt: rec.StartedAt,
			Status:    rec.Status,
			Stages:    len(rec.Stages),
			Duration:  rec.FinishedAt.Sub(rec.StartedAt),
		}
		byID[rec.RunID] = rec
	}

	id, err := ui.SelectRun(runs)
	if err != nil {
		return err
	}
	rec := byID[id]

	fmt.Printf("\nRun %s (%s)\n", rec.RunID, rec.Status)
	if rec.Error != "" {
		fmt.Printf("Error: %s\n", rec.Error)
	}
	for _, stage := range rec.Stages {
		detail := stage.Detail
		if stage.Error != "" {
			detail = stage.Error
		}
		ui.ShowStageResult(stage.Stage, stage.Status == "completed", detail, stage.Duration)
	}
	return nil
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 10, "Number of runs to show")
	historyCmd.Flags().BoolVar(&historySelect, "select", false, "Interactively pick a run and show its stages")
	rootCmd.AddCommand(historyCmd)
}
