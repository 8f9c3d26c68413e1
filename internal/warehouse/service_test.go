package warehouse

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retflow/pkg/errors"
	"retflow/pkg/models"
)

func mockService(t *testing.T, dialect string) (*Service, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherEqual))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	svc, err := NewServiceWithDB(db, Config{
		Dialect:  dialect,
		Host:     "cluster.example.com",
		Port:     5439,
		Account:  "xy12345",
		Username: "etl",
		Password: "secret",
		Database: "games",
		Schema:   "public",
		Timeout:  30 * time.Second,
	})
	require.NoError(t, err)
	return svc, mock
}

func TestConfigFromModel(t *testing.T) {
	cfg, err := ConfigFromModel(models.Warehouse{
		Dialect:  "redshift",
		Host:     "cluster.example.com",
		Port:     5439,
		Username: "etl",
		Database: "games",
		Timeout:  "2m",
	}, "secret")
	require.NoError(t, err)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, 2*time.Minute, cfg.Timeout)

	// Missing timeout falls back to the default
	cfg, err = ConfigFromModel(models.Warehouse{Dialect: "redshift"}, "secret")
	require.NoError(t, err)
	assert.Equal(t, 5*time.Minute, cfg.Timeout)

	_, err = ConfigFromModel(models.Warehouse{Timeout: "soon"}, "secret")
	assert.Error(t, err)
}

func TestServiceExec(t *testing.T) {
	svc, mock := mockService(t, "redshift")

	mock.ExpectExec("DROP TABLE IF EXISTS retention_aggregate").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := svc.Exec(context.Background(), "DROP TABLE IF EXISTS retention_aggregate")
	assert.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestServiceExecObjectNotFound(t *testing.T) {
	svc, mock := mockService(t, "redshift")

	mock.ExpectExec("SELECT * FROM missing_table").
		WillReturnError(fmt.Errorf(`relation "missing_table" does not exist`))

	err := svc.Exec(context.Background(), "SELECT * FROM missing_table")
	require.Error(t, err)

	appErr, ok := err.(*errors.AppError)
	require.True(t, ok)
	assert.Equal(t, errors.ErrCodeSQLObjectNotFound, appErr.Code)
}

func TestServiceExecNotConnected(t *testing.T) {
	svc, err := NewService(Config{Dialect: "redshift"})
	require.NoError(t, err)

	err = svc.Exec(context.Background(), "SELECT 1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Not connected")
}

func TestQueryRowCount(t *testing.T) {
	svc, mock := mockService(t, "redshift")

	mock.ExpectQuery("SELECT COUNT(*) FROM retention_aggregate").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(42))

	count, err := svc.QueryRowCount(context.Background(), "retention_aggregate")
	require.NoError(t, err)
	assert.Equal(t, int64(42), count)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestValidateConfig(t *testing.T) {
	valid := Config{
		Dialect:  "redshift",
		Host:     "cluster.example.com",
		Port:     5439,
		Username: "etl",
		Password: "secret",
		Database: "games",
	}
	assert.NoError(t, ValidateConfig(valid))

	missingHost := valid
	missingHost.Host = ""
	assert.Error(t, ValidateConfig(missingHost))

	snowflake := Config{
		Dialect:   "snowflake",
		Account:   "xy12345",
		Warehouse: "COMPUTE_WH",
		Username:  "etl",
		Password:  "secret",
		Database:  "GAMES",
	}
	assert.NoError(t, ValidateConfig(snowflake))

	missingAccount := snowflake
	missingAccount.Account = ""
	assert.Error(t, ValidateConfig(missingAccount))
}
