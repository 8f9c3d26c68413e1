package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"retflow/internal/observability"
	"retflow/internal/pipeline"
	"retflow/internal/ui"
)

var (
	exportKeepLocal bool
	exportFromLocal string
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Unload the aggregate to object storage and convert it",
	Long: `Unload the aggregate table to object storage as Parquet, download it,
convert it to the SQLite analytic file, and upload the converted file
back to object storage for publishing.

With --from-local the warehouse unload is skipped and an existing local
Parquet export is converted and uploaded instead.`,
	RunE: runExport,
}

func runExport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := newStorage(ctx, cfg)
	if err != nil {
		return err
	}

	keepLocal := exportKeepLocal || cfg.Pipeline.KeepLocal

	if exportFromLocal != "" {
		exporter := pipeline.NewExporter(nil, store, cfg, nil, observability.Default())
		result, err := exporter.ConvertLocal(ctx, exportFromLocal)
		if err != nil {
			return err
		}
		ui.ShowSuccess(fmt.Sprintf("Converted %d rows from %s", result.Rows, exportFromLocal))
		ui.ShowInfo(fmt.Sprintf("Converted file: %s", result.ConvertedKey))
		return nil
	}

	wh, err := newWarehouse(cfg)
	if err != nil {
		return err
	}
	defer wh.Close()

	if err := wh.Connect(ctx); err != nil {
		return err
	}

	runID := pipeline.NewRunID()
	exporter := pipeline.NewExporter(wh, store, cfg, nil, observability.Default())

	spinner := ui.NewSpinner("Exporting aggregate")
	spinner.Start()
	result, err := exporter.Export(ctx, runID, keepLocal)
	if err != nil {
		spinner.Stop(false, "Export failed")
		return err
	}
	spinner.Stop(true, fmt.Sprintf("Converted %d rows", result.Rows))

	ui.ShowInfo(fmt.Sprintf("Parquet export: %s", result.ParquetKey))
	ui.ShowInfo(fmt.Sprintf("Converted file: %s", result.ConvertedKey))
	ui.ShowInfo(fmt.Sprintf("Local converted file: %s", result.LocalPath))
	return nil
}

func init() {
	exportCmd.Flags().BoolVar(&exportKeepLocal, "keep-local", false, "Keep the local converted file after upload")
	exportCmd.Flags().StringVar(&exportFromLocal, "from-local", "", "Convert an existing local Parquet export instead of unloading")
	rootCmd.AddCommand(exportCmd)
}
