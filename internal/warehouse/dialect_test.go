package warehouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDialectFor(t *testing.T) {
	d, err := DialectFor("redshift")
	require.NoError(t, err)
	assert.Equal(t, "redshift", d.Name())

	d, err = DialectFor("Snowflake")
	require.NoError(t, err)
	assert.Equal(t, "snowflake", d.Name())

	// Empty defaults to redshift
	d, err = DialectFor("")
	require.NoError(t, err)
	assert.Equal(t, "redshift", d.Name())

	_, err = DialectFor("bigquery")
	assert.Error(t, err)
}

func TestRedshiftDSN(t *testing.T) {
	d := redshiftDialect{}
	dsn := d.DSN(Config{
		Host:     "cluster.example.com",
		Port:     5439,
		Username: "etl",
		Password: "p@ss/word",
		Database: "games",
	})

	assert.Equal(t, "postgres", d.DriverName())
	assert.Contains(t, dsn, "cluster.example.com:5439/games")
	assert.Contains(t, dsn, "sslmode=require")
	// Credentials are URL-escaped
	assert.Contains(t, dsn, "p%40ss%2Fword")
}

func TestSnowflakeDSN(t *testing.T) {
	d := snowflakeDialect{}
	dsn := d.DSN(Config{
		Account:   "xy12345",
		Username:  "etl",
		Password:  "secret",
		Database:  "GAMES",
		Schema:    "PUBLIC",
		Warehouse: "COMPUTE_WH",
		Role:      "ANALYST",
	})

	assert.Equal(t, "snowflake", d.DriverName())
	assert.Equal(t, "etl:secret@xy12345/GAMES/PUBLIC?warehouse=COMPUTE_WH&role=ANALYST", dsn)
}

func TestDateAdd(t *testing.T) {
	assert.Equal(t, "install_date + 7", redshiftDialect{}.DateAdd("install_date", 7))
	assert.Equal(t, "DATEADD(day, 7, install_date)", snowflakeDialect{}.DateAdd("install_date", 7))
}

func TestRedshiftAlterLayout(t *testing.T) {
	stmts := redshiftDialect{}.AlterLayout("daily_sessions", Layout{
		DistKey:  "player_id",
		SortKeys: []string{"install_date", "session_date"},
	})

	require.Len(t, stmts, 2)
	assert.Equal(t, "ALTER TABLE daily_sessions ALTER DISTSTYLE KEY DISTKEY player_id", stmts[0])
	assert.Equal(t, "ALTER TABLE daily_sessions ALTER COMPOUND SORTKEY (install_date, session_date)", stmts[1])
}

func TestSnowflakeAlterLayout(t *testing.T) {
	stmts := snowflakeDialect{}.AlterLayout("daily_sessions", Layout{
		DistKey:  "player_id",
		SortKeys: []string{"install_date", "session_date"},
	})

	// Dist and sort keys fold into one clustering key
	require.Len(t, stmts, 1)
	assert.Equal(t, "ALTER TABLE daily_sessions CLUSTER BY (player_id, install_date, session_date)", stmts[0])

	// The dist key is not repeated when it also appears as a sort key
	stmts = snowflakeDialect{}.AlterLayout("t", Layout{
		DistKey:  "player_id",
		SortKeys: []string{"player_id", "install_date"},
	})
	require.Len(t, stmts, 1)
	assert.Equal(t, "ALTER TABLE t CLUSTER BY (player_id, install_date)", stmts[0])
}

func TestRedshiftUnload(t *testing.T) {
	stmt := redshiftDialect{}.Unload(
		"SELECT * FROM retention_aggregate WHERE note = 'x'",
		"s3://bucket/retention/export/retention.parquet",
		Config{UnloadRole: "arn:aws:iam::123:role/unload"},
	)

	assert.Contains(t, stmt, "UNLOAD ('SELECT * FROM retention_aggregate WHERE note = ''x''')")
	assert.Contains(t, stmt, "TO 's3://bucket/retention/export/retention.parquet'")
	assert.Contains(t, stmt, "IAM_ROLE 'arn:aws:iam::123:role/unload'")
	assert.Contains(t, stmt, "FORMAT AS PARQUET")
	assert.Contains(t, stmt, "PARALLEL OFF")
}

func TestSnowflakeUnload(t *testing.T) {
	query := "SELECT * FROM retention_aggregate"

	// With a named stage
	stmt := snowflakeDialect{}.Unload(query, "s3://bucket/key", Config{Stage: "exports/retention"})
	assert.Contains(t, stmt, "COPY INTO @exports/retention")
	assert.Contains(t, stmt, "FILE_FORMAT = (TYPE = PARQUET)")
	assert.Contains(t, stmt, "SINGLE = TRUE")

	// Without one, the destination URL is used directly
	stmt = snowflakeDialect{}.Unload(query, "s3://bucket/key", Config{})
	assert.Contains(t, stmt, "COPY INTO 's3://bucket/key'")
}

func TestMaintenanceStatements(t *testing.T) {
	assert.Equal(t, "ANALYZE daily_sessions", redshiftDialect{}.Analyze("daily_sessions"))
	assert.Equal(t, "VACUUM FULL daily_sessions", redshiftDialect{}.Vacuum("daily_sessions"))
	assert.Equal(t, "DROP TABLE IF EXISTS retention_aggregate", redshiftDialect{}.DropTableIfExists("retention_aggregate"))

	assert.Equal(t, "SELECT SYSTEM$CLUSTERING_INFORMATION('daily_sessions')", snowflakeDialect{}.Analyze("daily_sessions"))
	assert.Equal(t, "ALTER TABLE daily_sessions RESUME RECLUSTER", snowflakeDialect{}.Vacuum("daily_sessions"))
}
