package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"retflow/internal/config"
	"retflow/internal/convert"
	"retflow/internal/observability"
	"retflow/internal/retention"
	"retflow/internal/storage"
	"retflow/internal/warehouse"
	"retflow/pkg/errors"
	"retflow/pkg/models"
)

// ObjectPaths are the stable object keys the pipeline writes. Each is
// write-once per run with overwrite semantics, matching the one-run,
// one-artifact lifecycle.
type ObjectPaths struct {
	ParquetKey   string
	ConvertedKey string
}

// PathsFor derives the object keys from the configured prefix.
func PathsFor(cfg models.Storage) ObjectPaths {
	prefix := strings.Trim(cfg.Prefix, "/")
	join := func(parts ...string) string {
		if prefix == "" {
			return strings.Join(parts, "/")
		}
		return prefix + "/" + strings.Join(parts, "/")
	}
	return ObjectPaths{
		ParquetKey:   join("export", "retention.parquet"),
		ConvertedKey: join("converted", "retention.db"),
	}
}

// ExportResult summarizes a completed export stage.
type ExportResult struct {
	ParquetKey   string
	ConvertedKey string
	LocalPath    string
	Rows         int
}

// Exporter runs the export stage: unload the aggregate to object
// storage as Parquet, pull it down, convert it to the SQLite analytic
// file, and push the converted file back up.
type Exporter struct {
	wh      *warehouse.Service
	store   storage.ObjectStorage
	cfg     *models.Config
	offsets []int
	logger  *observability.Logger
}

// NewExporter creates an exporter.
func NewExporter(wh *warehouse.Service, store storage.ObjectStorage, cfg *models.Config, offsets []int, logger *observability.Logger) *Exporter {
	if logger == nil {
		logger = observability.Default()
	}
	if len(offsets) == 0 {
		offsets = cfg.Retention.Offsets
	}
	if len(offsets) == 0 {
		offsets = retention.DefaultOffsets
	}
	return &Exporter{wh: wh, store: store, cfg: cfg, offsets: offsets, logger: logger}
}

// Export runs the full export-and-convert sequence for a run.
func (e *Exporter) Export(ctx context.Context, runID string, keepLocal bool) (*ExportResult, error) {
	paths := PathsFor(e.cfg.Storage)
	log := e.logger.WithField("run_id", runID)

	query := retention.BuildExportQuery(e.cfg.Retention, e.offsets)
	destination := fmt.Sprintf("s3://%s/%s", e.cfg.Storage.Bucket, paths.ParquetKey)
	unload := e.wh.Dialect().Unload(query, destination, warehouseConfigView(e.cfg.Warehouse))

	log.Info("unloading aggregate", map[string]interface{}{"destination": destination})
	if err := e.wh.Exec(ctx, unload); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeUnloadFailed, "Aggregate unload failed").
			WithContext("destination", destination)
	}

	parquetKey, err := e.locateExport(ctx, paths.ParquetKey)
	if err != nil {
		return nil, err
	}

	workDir, err := os.MkdirTemp("", "retflow-export-*")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to create work directory")
	}
	localParquet := filepath.Join(workDir, "retention.parquet")
	if !keepLocal {
		defer os.RemoveAll(workDir)
	}

	log.Info("downloading export", map[string]interface{}{"key": parquetKey})
	if err := e.store.Download(ctx, parquetKey, localParquet); err != nil {
		return nil, errors.StorageError("Failed to download aggregate export", parquetKey, err)
	}

	// The converted file outlives the run even without keepLocal; only
	// the downloaded Parquet is temporary.
	localDB := e.cfg.Convert.OutputPath
	if localDB == "" {
		localDB = filepath.Join(config.GetConfigPath(), "retention.db")
	}

	converter := convert.NewConverter(e.offsets, e.cfg.Convert.TableName)
	rows, err := converter.Convert(ctx, localParquet, localDB)
	if err != nil {
		return nil, err
	}
	log.Info("converted aggregate", map[string]interface{}{"rows": rows, "path": localDB})

	if err := e.store.Upload(ctx, localDB, paths.ConvertedKey); err != nil {
		return nil, errors.StorageError("Failed to upload converted file", paths.ConvertedKey, err)
	}

	return &ExportResult{
		ParquetKey:   parquetKey,
		ConvertedKey: paths.ConvertedKey,
		LocalPath:    localDB,
		Rows:         rows,
	}, nil
}

// ConvertLocal converts an already-downloaded Parquet export and
// uploads the result, skipping the warehouse unload. Used when an
// earlier export left a local artifact behind.
func (e *Exporter) ConvertLocal(ctx context.Context, parquetPath string) (*ExportResult, error) {
	paths := PathsFor(e.cfg.Storage)

	localDB := e.cfg.Convert.OutputPath
	if localDB == "" {
		localDB = strings.TrimSuffix(parquetPath, filepath.Ext(parquetPath)) + ".db"
	}

	converter := convert.NewConverter(e.offsets, e.cfg.Convert.TableName)
	rows, err := converter.Convert(ctx, parquetPath, localDB)
	if err != nil {
		return nil, err
	}

	if err := e.store.Upload(ctx, localDB, paths.ConvertedKey); err != nil {
		return nil, errors.StorageError("Failed to upload converted file", paths.ConvertedKey, err)
	}

	return &ExportResult{
		ConvertedKey: paths.ConvertedKey,
		LocalPath:    localDB,
		Rows:         rows,
	}, nil
}

// locateExport resolves the object key the engine actually wrote. An
// UNLOAD destination is a key prefix: Redshift appends a slice suffix
// even with PARALLEL OFF, and Snowflake names stage files itself.
func (e *Exporter) locateExport(ctx context.Context, key string) (string, error) {
	if ok, err := e.store.Exists(ctx, key); err == nil && ok {
		return key, nil
	}

	keys, err := e.store.List(ctx, key)
	if err != nil {
		return "", errors.StorageError("Failed to locate aggregate export", key, err)
	}
	for _, k := range keys {
		if strings.HasSuffix(k, ".parquet") {
			return k, nil
		}
	}
	if len(keys) > 0 {
		return keys[0], nil
	}

	return "", errors.New(errors.ErrCodeObjectNotFound, "Aggregate export not found in object storage").
		WithContext("key_prefix", key).
		WithSuggestions(
			"Check the unload credentials authorize writes to the bucket",
			"Re-run the aggregate stage before exporting",
		)
}

// warehouseConfigView exposes the unload-relevant model fields to the
// dialect without resolving credentials.
func warehouseConfigView(m models.Warehouse) warehouse.Config {
	return warehouse.Config{
		UnloadRole: m.UnloadRole,
		Stage:      m.Stage,
	}
}
