package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"retflow/internal/observability"
	"retflow/internal/pipeline"
	"retflow/internal/ui"
	"retflow/pkg/errors"
)

var publishCmd = &cobra.Command{
	Use:   "publish",
	Short: "Publish the converted file to the dashboard server",
	Long: `Fetch the converted analytic file from object storage and register it
as a data source in the configured dashboard folder. Publishing is
idempotent: re-running with unchanged content is reported as already
published, not an error.`,
	RunE: runPublish,
}

func runPublish(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := newStorage(ctx, cfg)
	if err != nil {
		return err
	}

	pub, err := newPublisher(cfg, store, observability.Default())
	if err != nil {
		return err
	}
	if pub == nil {
		return errors.New(errors.ErrCodeConfigMissing, "Dashboard is not configured").
			WithSuggestions("Run 'retflow setup' to configure the dashboard server")
	}

	workDir, err := os.MkdirTemp("", "retflow-publish-*")
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to create work directory")
	}
	defer os.RemoveAll(workDir)

	runID := pipeline.NewRunID()
	paths := pipeline.PathsFor(cfg.Storage)
	localPath := filepath.Join(workDir, "retention.db")

	spinner := ui.NewSpinner(fmt.Sprintf("Publishing to folder %q", cfg.Dashboard.Folder))
	spinner.Start()
	result, err := pub.Publish(ctx, paths.ConvertedKey, localPath, runID)
	if err != nil {
		spinner.Stop(false, "Publish failed")
		return err
	}

	if result.AlreadyPublished {
		spinner.Stop(true, fmt.Sprintf("Data source %q already current in %q", result.DataSource, result.Folder))
	} else {
		spinner.Stop(true, fmt.Sprintf("Data source %q created in %q", result.DataSource, result.Folder))
	}
	return nil
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
