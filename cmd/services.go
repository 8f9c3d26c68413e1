package cmd

import (
	"context"

	"retflow/internal/config"
	"retflow/internal/dashboard"
	"retflow/internal/notify"
	"retflow/internal/observability"
	"retflow/internal/pipeline"
	"retflow/internal/storage"
	"retflow/internal/warehouse"
	"retflow/pkg/errors"
	"retflow/pkg/models"
)

// loadConfig loads the saved configuration, failing with a setup hint
// when none exists.
func loadConfig() (*models.Config, error) {
	if !config.Exists() {
		return nil, errors.New(errors.ErrCodeConfigNotFound, "No configuration found").
			WithSuggestions("Run 'retflow setup' to create one")
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConfigInvalid, "Invalid configuration").
			WithSuggestions("Run 'retflow setup' to repair the configuration")
	}
	return cfg, nil
}

// newWarehouse builds a connected-on-demand warehouse service with the
// password resolved from the credential store.
func newWarehouse(cfg *models.Config) (*warehouse.Service, error) {
	resolver, err := config.NewResolver()
	if err != nil {
		return nil, err
	}
	password, err := resolver.WarehousePassword(cfg)
	if err != nil {
		return nil, err
	}

	whCfg, err := warehouse.ConfigFromModel(cfg.Warehouse, password)
	if err != nil {
		return nil, err
	}
	return buildWarehouse(whCfg)
}

// buildWarehouse validates the resolved connection settings and builds
// the service.
func buildWarehouse(whCfg warehouse.Config) (*warehouse.Service, error) {
	if err := warehouse.ValidateConfig(whCfg); err != nil {
		return nil, errors.ConfigError(err.Error(), "warehouse")
	}
	return warehouse.NewService(whCfg)
}

// newStorage builds the object storage backend.
func newStorage(ctx context.Context, cfg *models.Config) (storage.ObjectStorage, error) {
	if cfg.Storage.Bucket == "" {
		return nil, errors.New(errors.ErrCodeConfigMissing, "No storage bucket configured").
			WithSuggestions("Run 'retflow setup' to configure object storage")
	}
	return storage.NewS3Storage(ctx, cfg.Storage)
}

// newPublisher builds the dashboard publisher, or nil when no dashboard
// is configured.
func newPublisher(cfg *models.Config, store storage.ObjectStorage, logger *observability.Logger) (*dashboard.Publisher, error) {
	if cfg.Dashboard.BaseURL == "" {
		return nil, nil
	}

	resolver, err := config.NewResolver()
	if err != nil {
		return nil, err
	}
	password, err := resolver.DashboardPassword(cfg)
	if err != nil {
		return nil, err
	}

	client, err := dashboard.NewClient(cfg.Dashboard)
	if err != nil {
		return nil, err
	}
	return dashboard.NewPublisher(client, store, cfg.Dashboard, password, logger), nil
}

// newRunner wires up the full pipeline. The returned warehouse service
// should be closed by the caller.
func newRunner(ctx context.Context, cfg *models.Config) (*pipeline.Runner, *warehouse.Service, error) {
	logger := observability.Default()

	wh, err := newWarehouse(cfg)
	if err != nil {
		return nil, nil, err
	}

	store, err := newStorage(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}

	pub, err := newPublisher(cfg, store, logger)
	if err != nil {
		return nil, nil, err
	}

	notifier := notify.NewNotifier(cfg.Notify, logger)
	return pipeline.NewRunner(cfg, wh, store, pub, notifier, logger), wh, nil
}
