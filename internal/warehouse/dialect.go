package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
)

// Layout describes the desired physical layout for a table. Redshift
// maps this to a distribution key plus a compound sort key; Snowflake
// folds both into a clustering key.
type Layout struct {
	DistKey  string
	SortKeys []string
}

// TableInfo holds the physical layout and health of a warehouse table
// as reported by the engine's catalog.
type TableInfo struct {
	Schema        string
	Table         string
	RowCount      int64
	SizeMB        int64
	DistStyle     string
	DistKey       string
	SortKeys      []string
	ClusterKeys   []string
	StatsStalePct float64
	UnsortedPct   float64
}

// Querier is the subset of *sql.DB the dialects need for catalog reads.
type Querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
}

// Dialect abstracts the SQL differences between the supported warehouse
// engines. Statements are rendered as text and executed by the Service;
// catalog inspection is dialect-owned because the system tables differ
// in shape, not just in name.
type Dialect interface {
	Name() string
	DriverName() string
	DSN(cfg Config) string

	QuoteIdent(name string) string
	// DateAdd renders a date expression offset by a number of days.
	DateAdd(expr string, days int) string

	CreateTableAs(table, query string) string
	DropTableIfExists(table string) string
	Analyze(table string) string
	Vacuum(table string) string
	// AlterLayout renders the statements that move a table to the
	// desired physical layout.
	AlterLayout(table string, layout Layout) []string
	// Unload renders the statement that exports a query result as a
	// Parquet file at the given object-storage destination.
	Unload(query, destination string, cfg Config) string
	Explain(query string) string

	InspectTable(ctx context.Context, db Querier, schema, table string) (*TableInfo, error)
}

// DialectFor resolves a dialect by name.
func DialectFor(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "", "redshift":
		return redshiftDialect{}, nil
	case "snowflake":
		return snowflakeDialect{}, nil
	default:
		return nil, fmt.Errorf("unsupported warehouse dialect %q", name)
	}
}

// redshiftDialect speaks to Amazon Redshift over the postgres driver.
type redshiftDialect struct{}

func (redshiftDialect) Name() string       { return "redshift" }
func (redshiftDialect) DriverName() string { return "postgres" }

func (redshiftDialect) DSN(cfg Config) string {
	sslmode := cfg.SSLMode
	if sslmode == "" {
		sslmode = "require"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		url.QueryEscape(cfg.Username),
		url.QueryEscape(cfg.Password),
		cfg.Host,
		cfg.Port,
		cfg.Database,
		sslmode,
	)
}

func (redshiftDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (redshiftDialect) DateAdd(expr string, days int) string {
	return fmt.Sprintf("%s + %d", expr, days)
}

func (redshiftDialect) CreateTableAs(table, query string) string {
	return fmt.Sprintf("CREATE TABLE %s AS\n%s", table, query)
}

func (redshiftDialect) DropTableIfExists(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
}

func (redshiftDialect) Analyze(table string) string {
	return fmt.Sprintf("ANALYZE %s", table)
}

func (redshiftDialect) Vacuum(table string) string {
	return fmt.Sprintf("VACUUM FULL %s", table)
}

func (d redshiftDialect) AlterLayout(table string, layout Layout) []string {
	var stmts []string
	if layout.DistKey != "" {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER DISTSTYLE KEY DISTKEY %s", table, layout.DistKey))
	}
	if len(layout.SortKeys) > 0 {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COMPOUND SORTKEY (%s)", table, strings.Join(layout.SortKeys, ", ")))
	}
	return stmts
}

func (redshiftDialect) Unload(query, destination string, cfg Config) string {
	escaped := strings.ReplaceAll(query, "'", "''")
	return fmt.Sprintf("UNLOAD ('%s')\nTO '%s'\nIAM_ROLE '%s'\nFORMAT AS PARQUET\nALLOWOVERWRITE\nPARALLEL OFF",
		escaped, destination, cfg.UnloadRole)
}

func (redshiftDialect) Explain(query string) string {
	return "EXPLAIN " + query
}

func (redshiftDialect) InspectTable(ctx context.Context, db Querier, schema, table string) (*TableInfo, error) {
	query := `SELECT tbl_rows, size, diststyle, COALESCE(sortkey1, ''), stats_off, unsorted
FROM svv_table_info
WHERE "schema" = $1 AND "table" = $2`

	rows, err := db.QueryContext(ctx, query, schema, table)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect table %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("table %s.%s not found in svv_table_info", schema, table)
	}

	info := &TableInfo{Schema: schema, Table: table}
	var sortKey string
	var statsOff, unsorted sql.NullFloat64
	if err := rows.Scan(&info.RowCount, &info.SizeMB, &info.DistStyle, &sortKey, &statsOff, &unsorted); err != nil {
		return nil, fmt.Errorf("failed to scan table info: %w", err)
	}

	info.StatsStalePct = statsOff.Float64
	info.UnsortedPct = unsorted.Float64
	if sortKey != "" {
		info.SortKeys = []string{sortKey}
	}
	// diststyle comes back as e.g. "KEY(player_id)", "EVEN", "ALL"
	if strings.HasPrefix(info.DistStyle, "KEY(") && strings.HasSuffix(info.DistStyle, ")") {
		info.DistKey = info.DistStyle[4 : len(info.DistStyle)-1]
	}

	return info, rows.Err()
}

// snowflakeDialect speaks to Snowflake over gosnowflake.
type snowflakeDialect struct{}

func (snowflakeDialect) Name() string       { return "snowflake" }
func (snowflakeDialect) DriverName() string { return "snowflake" }

func (snowflakeDialect) DSN(cfg Config) string {
	return fmt.Sprintf("%s:%s@%s/%s/%s?warehouse=%s&role=%s",
		cfg.Username,
		cfg.Password,
		cfg.Account,
		cfg.Database,
		cfg.Schema,
		cfg.Warehouse,
		cfg.Role,
	)
}

func (snowflakeDialect) QuoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (snowflakeDialect) DateAdd(expr string, days int) string {
	return fmt.Sprintf("DATEADD(day, %d, %s)", days, expr)
}

func (snowflakeDialect) CreateTableAs(table, query string) string {
	return fmt.Sprintf("CREATE TABLE %s AS\n%s", table, query)
}

func (snowflakeDialect) DropTableIfExists(table string) string {
	return fmt.Sprintf("DROP TABLE IF EXISTS %s", table)
}

func (snowflakeDialect) Analyze(table string) string {
	// Snowflake maintains statistics automatically; recomputing the
	// clustering information is the closest equivalent.
	return fmt.Sprintf("SELECT SYSTEM$CLUSTERING_INFORMATION('%s')", table)
}

func (snowflakeDialect) Vacuum(table string) string {
	return fmt.Sprintf("ALTER TABLE %s RESUME RECLUSTER", table)
}

func (snowflakeDialect) AlterLayout(table string, layout Layout) []string {
	keys := make([]string, 0, len(layout.SortKeys)+1)
	if layout.DistKey != "" {
		keys = append(keys, layout.DistKey)
	}
	for _, k := range layout.SortKeys {
		if k != layout.DistKey {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return nil
	}
	return []string{fmt.Sprintf("ALTER TABLE %s CLUSTER BY (%s)", table, strings.Join(keys, ", "))}
}

func (snowflakeDialect) Unload(query, destination string, cfg Config) string {
	if cfg.Stage != "" {
		destination = fmt.Sprintf("@%s", cfg.Stage)
	} else {
		destination = fmt.Sprintf("'%s'", destination)
	}
	return fmt.Sprintf("COPY INTO %s\nFROM (%s)\nFILE_FORMAT = (TYPE = PARQUET)\nHEADER = TRUE\nSINGLE = TRUE\nOVERWRITE = TRUE",
		destination, query)
}

func (snowflakeDialect) Explain(query string) string {
	return "EXPLAIN " + query
}

func (snowflakeDialect) InspectTable(ctx context.Context, db Querier, schema, table string) (*TableInfo, error) {
	query := `SELECT row_count, bytes / 1048576, COALESCE(clustering_key, '')
FROM information_schema.tables
WHERE table_schema = ? AND table_name = ?`

	rows, err := db.QueryContext(ctx, query, strings.ToUpper(schema), strings.ToUpper(table))
	if err != nil {
		return nil, fmt.Errorf("failed to inspect table %s.%s: %w", schema, table, err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("table %s.%s not found in information_schema", schema, table)
	}

	info := &TableInfo{Schema: schema, Table: table}
	var clusterKey string
	if err := rows.Scan(&info.RowCount, &info.SizeMB, &clusterKey); err != nil {
		return nil, fmt.Errorf("failed to scan table info: %w", err)
	}

	// clustering_key comes back as e.g. "LINEAR(player_id, install_date)"
	clusterKey = strings.TrimSuffix(strings.TrimPrefix(clusterKey, "LINEAR("), ")")
	if clusterKey != "" {
		for _, key := range strings.Split(clusterKey, ",") {
			info.ClusterKeys = append(info.ClusterKeys, strings.TrimSpace(key))
		}
	}

	return info, rows.Err()
}
