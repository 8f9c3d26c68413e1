package cmd

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retflow/internal/warehouse"
	"retflow/pkg/errors"
)

func TestBuildWarehouseValidatesConfig(t *testing.T) {
	_, err := buildWarehouse(warehouse.Config{Dialect: "redshift", Host: "cluster.example.com"})
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetErrorCode(err))

	svc, err := buildWarehouse(warehouse.Config{
		Dialect:  "redshift",
		Host:     "cluster.example.com",
		Port:     5439,
		Username: "etl",
		Password: "secret",
		Database: "games",
	})
	require.NoError(t, err)
	assert.NotNil(t, svc)
}

func TestLoadConfigRejectsInvalidConfig(t *testing.T) {
	configFile := filepath.Join(t.TempDir(), "config.yaml")
	content := "warehouse:\n" +
		"    dialect: redshift\n" +
		"    host: cluster.example.com\n" +
		"    port: 5439\n" +
		"    username: etl\n" +
		"    database: games\n" +
		"retention:\n" +
		"    sessions_table: game_sessions\n"
	require.NoError(t, os.WriteFile(configFile, []byte(content), 0600))
	t.Setenv("RETFLOW_CONFIG", configFile)

	_, err := loadConfig()
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeConfigInvalid, errors.GetErrorCode(err))
	assert.Contains(t, err.Error(), "storage.bucket")
}
