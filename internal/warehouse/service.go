package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "github.com/snowflakedb/gosnowflake"

	"retflow/pkg/errors"
	"retflow/pkg/models"
)

// Service provides warehouse SQL operations behind a dialect.
type Service struct {
	db             *sql.DB
	config         Config
	dialect        Dialect
	connected      bool
	errorHandler   *errors.ErrorHandler
	circuitBreaker *errors.CircuitBreaker
}

// Config holds warehouse connection configuration with the password
// already resolved from the credential store.
type Config struct {
	Dialect    string
	Host       string
	Port       int
	Account    string
	Username   string
	Password   string
	Database   string
	Schema     string
	Warehouse  string
	Role       string
	SSLMode    string
	UnloadRole string
	Stage      string
	Timeout    time.Duration
}

// ConfigFromModel builds a connection Config from the yaml model plus
// the resolved password.
func ConfigFromModel(m models.Warehouse, password string) (Config, error) {
	timeout := 5 * time.Minute
	if m.Timeout != "" {
		parsed, err := time.ParseDuration(m.Timeout)
		if err != nil {
			return Config{}, errors.ConfigError(
				fmt.Sprintf("Invalid warehouse timeout %q", m.Timeout), "warehouse.timeout")
		}
		timeout = parsed
	}

	return Config{
		Dialect:    m.Dialect,
		Host:       m.Host,
		Port:       m.Port,
		Account:    m.Account,
		Username:   m.Username,
		Password:   password,
		Database:   m.Database,
		Schema:     m.Schema,
		Warehouse:  m.Warehouse,
		Role:       m.Role,
		SSLMode:    m.SSLMode,
		UnloadRole: m.UnloadRole,
		Stage:      m.Stage,
		Timeout:    timeout,
	}, nil
}

// NewService creates a warehouse service for the configured dialect.
func NewService(config Config) (*Service, error) {
	dialect, err := DialectFor(config.Dialect)
	if err != nil {
		return nil, errors.ConfigError(err.Error(), "warehouse.dialect")
	}

	return &Service{
		config:         config,
		dialect:        dialect,
		errorHandler:   errors.GetGlobalErrorHandler(),
		circuitBreaker: errors.NewCircuitBreaker("warehouse", 5, 30*time.Second),
	}, nil
}

// NewServiceWithDB wraps an existing database handle, bypassing the
// connection logic. Used by tests with a mock driver.
func NewServiceWithDB(db *sql.DB, config Config) (*Service, error) {
	svc, err := NewService(config)
	if err != nil {
		return nil, err
	}
	svc.db = db
	svc.connected = true
	return svc, nil
}

// Dialect returns the active dialect.
func (s *Service) Dialect() Dialect {
	return s.dialect
}

// Connect establishes the warehouse connection.
func (s *Service) Connect(ctx context.Context) error {
	if s.connected {
		return nil
	}

	return s.circuitBreaker.Execute(ctx, func() error {
		return errors.RetryWithBackoff(ctx, func(ctx context.Context) error {
			db, err := sql.Open(s.dialect.DriverName(), s.dialect.DSN(s.config))
			if err != nil {
				return errors.ConnectionError("Failed to open warehouse connection", err).
					WithContext("dialect", s.dialect.Name())
			}

			db.SetMaxOpenConns(10)
			db.SetMaxIdleConns(5)
			db.SetConnMaxLifetime(10 * time.Minute)

			pingCtx, cancel := s.getContext(ctx)
			defer cancel()

			if err := db.PingContext(pingCtx); err != nil {
				db.Close()

				if strings.Contains(err.Error(), "authentication") || strings.Contains(err.Error(), "password") {
					return errors.New(errors.ErrCodeAuthenticationFailed, "Warehouse authentication failed").
						WithContext("user", s.config.Username).
						WithSuggestions(
							"Verify your username and password",
							"Run 'retflow secret set warehouse' to update the stored credential",
						)
				}

				return errors.ConnectionError("Failed to connect to warehouse", err).
					WithContext("dialect", s.dialect.Name()).
					AsRecoverable()
			}

			s.db = db
			s.connected = true
			return nil
		})
	})
}

// Close closes the warehouse connection.
func (s *Service) Close() error {
	if !s.connected {
		return nil
	}

	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close connection: %w", err)
	}

	s.connected = false
	return nil
}

// Exec executes a single statement.
func (s *Service) Exec(ctx context.Context, statement string) error {
	if !s.connected {
		return errors.New(errors.ErrCodeConnectionFailed, "Not connected to warehouse").
			WithSuggestions("Call Connect() before executing SQL")
	}

	execCtx, cancel := s.getContext(ctx)
	defer cancel()

	if _, err := s.db.ExecContext(execCtx, statement); err != nil {
		sqlErr := errors.SQLError("Failed to execute statement", statement, err)

		errStr := err.Error()
		if strings.Contains(errStr, "does not exist") || strings.Contains(errStr, "not found") {
			sqlErr.Code = errors.ErrCodeSQLObjectNotFound
			_ = sqlErr.WithSuggestions(
				"Verify the object exists in the target database/schema",
				"Check for typos in table and column names",
			)
		}
		s.errorHandler.Log(sqlErr)
		return sqlErr
	}

	return nil
}

// Query executes a query and returns its rows.
func (s *Service) Query(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error) {
	if !s.connected {
		return nil, errors.New(errors.ErrCodeConnectionFailed, "Not connected to warehouse")
	}

	queryCtx, cancel := s.getContext(ctx)
	defer cancel()

	rows, err := s.db.QueryContext(queryCtx, query, args...)
	if err != nil {
		return nil, errors.SQLError("Query failed", query, err)
	}
	return rows, nil
}

// QueryRowCount returns the number of rows in a table.
func (s *Service) QueryRowCount(ctx context.Context, table string) (int64, error) {
	rows, err := s.Query(ctx, fmt.Sprintf("SELECT COUNT(*) FROM %s", table))
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	var count int64
	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return 0, err
		}
		return 0, errors.New(errors.ErrCodeNoResults, "COUNT(*) returned no rows").
			WithContext("table", table)
	}
	if err := rows.Scan(&count); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeResultParsing, "Failed to scan row count")
	}
	return count, rows.Err()
}

// TestConnection connects if needed and pings the warehouse.
func (s *Service) TestConnection(ctx context.Context) error {
	if !s.connected {
		if err := s.Connect(ctx); err != nil {
			return err
		}
	}

	pingCtx, cancel := s.getContext(ctx)
	defer cancel()

	return s.db.PingContext(pingCtx)
}

// DB returns the underlying database handle.
func (s *Service) DB() *sql.DB {
	return s.db
}

func (s *Service) getContext(ctx context.Context) (context.Context, context.CancelFunc) {
	timeout := s.config.Timeout
	if timeout == 0 {
		timeout = 5 * time.Minute
	}
	return context.WithTimeout(ctx, timeout)
}

// ValidateConfig validates the warehouse configuration.
func ValidateConfig(config Config) error {
	dialect, err := DialectFor(config.Dialect)
	if err != nil {
		return err
	}
	if config.Username == "" {
		return fmt.Errorf("username is required")
	}
	if config.Password == "" {
		return fmt.Errorf("password is required")
	}
	if config.Database == "" {
		return fmt.Errorf("database is required")
	}

	switch dialect.Name() {
	case "redshift":
		if config.Host == "" {
			return fmt.Errorf("host is required for redshift")
		}
		if config.Port == 0 {
			return fmt.Errorf("port is required for redshift")
		}
	case "snowflake":
		if config.Account == "" {
			return fmt.Errorf("account is required for snowflake")
		}
		if config.Warehouse == "" {
			return fmt.Errorf("warehouse is required for snowflake")
		}
	}
	return nil
}
