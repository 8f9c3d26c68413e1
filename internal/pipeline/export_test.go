package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retflow/internal/config"
	"retflow/internal/convert"
	"retflow/internal/retention"
	"retflow/internal/storage"
	"retflow/internal/testutil"
)

func seedAggregateExport(t *testing.T, store *storage.LocalStorage, key string, offsets []int) []retention.AggregateRow {
	t.Helper()
	ctx := context.Background()

	rows := []retention.AggregateRow{
		{CohortDate: time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC), NewPlayers: 10, Retained: []int64{4, 3, 1}},
		{CohortDate: time.Date(2024, 3, 2, 0, 0, 0, 0, time.UTC), NewPlayers: 8, Retained: []int64{2, 1, 0}},
	}

	local := filepath.Join(t.TempDir(), "retention.parquet")
	require.NoError(t, convert.WriteParquet(ctx, rows, offsets, local))
	require.NoError(t, store.Upload(ctx, local, key))
	return rows
}

func TestExporterLeavesConvertedFileWithoutKeepLocal(t *testing.T) {
	t.Setenv("RETFLOW_CONFIG", filepath.Join(t.TempDir(), "config.yaml"))
	ctx := context.Background()

	cfg := testutil.TestConfig()
	offsets := cfg.Retention.Offsets
	wh, mock := testutil.MockWarehouse(t, "redshift")

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	paths := PathsFor(cfg.Storage)
	seedAggregateExport(t, store, paths.ParquetKey, offsets)

	query := retention.BuildExportQuery(cfg.Retention, offsets)
	destination := fmt.Sprintf("s3://%s/%s", cfg.Storage.Bucket, paths.ParquetKey)
	unload := wh.Dialect().Unload(query, destination, warehouseConfigView(cfg.Warehouse))
	mock.ExpectExec(unload).WillReturnResult(sqlmock.NewResult(0, 0))

	exporter := NewExporter(wh, store, cfg, offsets, nil)
	result, err := exporter.Export(ctx, NewRunID(), false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Rows)

	// The converted file lands under the config directory and survives
	// the stage's temp dir cleanup
	assert.Equal(t, filepath.Join(config.GetConfigPath(), "retention.db"), result.LocalPath)
	_, statErr := os.Stat(result.LocalPath)
	assert.NoError(t, statErr)

	// The converted copy is also back in object storage
	ok, err := store.Exists(ctx, paths.ConvertedKey)
	require.NoError(t, err)
	assert.True(t, ok)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExporterHonorsConfiguredOutputPath(t *testing.T) {
	ctx := context.Background()

	cfg := testutil.TestConfig()
	cfg.Convert.OutputPath = filepath.Join(t.TempDir(), "out", "retention.db")
	require.NoError(t, os.MkdirAll(filepath.Dir(cfg.Convert.OutputPath), 0755))

	offsets := cfg.Retention.Offsets
	wh, mock := testutil.MockWarehouse(t, "redshift")

	store, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	paths := PathsFor(cfg.Storage)
	seedAggregateExport(t, store, paths.ParquetKey, offsets)

	query := retention.BuildExportQuery(cfg.Retention, offsets)
	destination := fmt.Sprintf("s3://%s/%s", cfg.Storage.Bucket, paths.ParquetKey)
	unload := wh.Dialect().Unload(query, destination, warehouseConfigView(cfg.Warehouse))
	mock.ExpectExec(unload).WillReturnResult(sqlmock.NewResult(0, 0))

	exporter := NewExporter(wh, store, cfg, offsets, nil)
	result, err := exporter.Export(ctx, NewRunID(), false)
	require.NoError(t, err)
	assert.Equal(t, cfg.Convert.OutputPath, result.LocalPath)

	_, statErr := os.Stat(cfg.Convert.OutputPath)
	assert.NoError(t, statErr)
}
