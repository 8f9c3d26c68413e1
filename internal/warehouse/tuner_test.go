package warehouse

import (
	"context"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const redshiftInspectQuery = `SELECT tbl_rows, size, diststyle, COALESCE(sortkey1, ''), stats_off, unsorted
FROM svv_table_info
WHERE "schema" = $1 AND "table" = $2`

func TestTunerInspectRedshift(t *testing.T) {
	svc, mock := mockService(t, "redshift")

	mock.ExpectQuery(redshiftInspectQuery).
		WithArgs("public", "daily_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"tbl_rows", "size", "diststyle", "sortkey1", "stats_off", "unsorted"}).
			AddRow(1000000, 2048, "KEY(player_id)", "install_date", 2.5, 30.0))

	tuner := NewTuner(svc)
	desired := Layout{DistKey: "player_id", SortKeys: []string{"install_date", "session_date"}}

	report, err := tuner.Inspect(context.Background(), "public", "daily_sessions", desired, "")
	require.NoError(t, err)

	assert.Equal(t, int64(1000000), report.Info.RowCount)
	assert.Equal(t, "player_id", report.Info.DistKey)
	assert.Equal(t, []string{"install_date"}, report.Info.SortKeys)
	assert.Equal(t, 30.0, report.Info.UnsortedPct)
	assert.NoError(t, mock.ExpectationsWereMet())

	// Layout matches, stats are fresh, but the table is unsorted:
	// the plan is a single VACUUM.
	steps := tuner.Plan(report)
	require.Len(t, steps, 1)
	assert.Equal(t, ActionVacuum, steps[0].Action)
	assert.Equal(t, "VACUUM FULL daily_sessions", steps[0].SQL)
}

func TestTunerPlanLayoutChange(t *testing.T) {
	svc, mock := mockService(t, "redshift")

	mock.ExpectQuery(redshiftInspectQuery).
		WithArgs("public", "daily_sessions").
		WillReturnRows(sqlmock.NewRows([]string{"tbl_rows", "size", "diststyle", "sortkey1", "stats_off", "unsorted"}).
			AddRow(500, 10, "EVEN", "", 15.0, 5.0))

	tuner := NewTuner(svc)
	desired := Layout{DistKey: "player_id", SortKeys: []string{"install_date", "session_date"}}

	report, err := tuner.Inspect(context.Background(), "public", "daily_sessions", desired, "")
	require.NoError(t, err)

	steps := tuner.Plan(report)
	require.Len(t, steps, 3)

	// Layout changes come before maintenance
	assert.Equal(t, ActionAlterLayout, steps[0].Action)
	assert.Equal(t, ActionAlterLayout, steps[1].Action)
	assert.Equal(t, ActionAnalyze, steps[2].Action)
	assert.Contains(t, steps[0].SQL, "ALTER DISTSTYLE KEY DISTKEY player_id")
	assert.Contains(t, steps[1].SQL, "ALTER COMPOUND SORTKEY (install_date, session_date)")
}

func TestTunerPlanSatisfiedLayout(t *testing.T) {
	info := &TableInfo{
		Table:    "daily_sessions",
		DistKey:  "player_id",
		SortKeys: []string{"install_date"},
	}
	svc, _ := mockService(t, "redshift")
	tuner := NewTuner(svc)

	steps := tuner.Plan(&TableReport{
		Info:    info,
		Desired: Layout{DistKey: "player_id", SortKeys: []string{"install_date", "session_date"}},
	})
	// svv_table_info only exposes the leading sort key, so a matching
	// dist key and leading sort key count as satisfied.
	assert.Empty(t, steps)
}

func TestTunerApplyStopsAtFirstFailure(t *testing.T) {
	svc, mock := mockService(t, "redshift")

	mock.ExpectExec("ANALYZE daily_sessions").
		WillReturnError(assert.AnError)

	tuner := NewTuner(svc)
	steps := []TuningStep{
		{Action: ActionAnalyze, SQL: "ANALYZE daily_sessions"},
		{Action: ActionVacuum, SQL: "VACUUM FULL daily_sessions"},
	}

	results, err := tuner.Apply(context.Background(), steps)
	require.Error(t, err)
	require.Len(t, results, 1)
	assert.Error(t, results[0].Err)
}

func TestTunerBackupTable(t *testing.T) {
	svc, mock := mockService(t, "redshift")

	mock.ExpectExec("CREATE TABLE daily_sessions_backup_ab12 AS\nSELECT * FROM daily_sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	tuner := NewTuner(svc)
	backup, err := tuner.BackupTable(context.Background(), "daily_sessions", "run-ab12")
	require.NoError(t, err)
	assert.Equal(t, "daily_sessions_backup_ab12", backup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBackupTableNameIsValidIdentifier(t *testing.T) {
	svc, mock := mockService(t, "redshift")

	mock.ExpectExec("CREATE TABLE daily_sessions_backup_9836ebc980617ddf AS\nSELECT * FROM daily_sessions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	tuner := NewTuner(svc)
	backup, err := tuner.BackupTable(context.Background(), "daily_sessions", "run-9836ebc980617ddf")
	require.NoError(t, err)
	assert.Regexp(t, `^[A-Za-z_][A-Za-z0-9_]*$`, backup)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestIdentSuffix(t *testing.T) {
	assert.Equal(t, "9836ebc980617ddf", identSuffix("run-9836ebc980617ddf"))
	assert.Equal(t, "ab12", identSuffix("ab12"))
	assert.Equal(t, "a_b_c", identSuffix("a.b-c"))
}

func TestParsePlanLine(t *testing.T) {
	estimate := &ScanEstimate{}

	parsePlanLine("XN HashAggregate  (cost=0.00..1250000.50 rows=365 width=40)", estimate)
	assert.Equal(t, 1250000.50, estimate.Cost)
	assert.Equal(t, int64(365), estimate.Rows)

	parsePlanLine("  ->  XN Seq Scan on daily_sessions  (cost=0.00..100.00 rows=100 width=24)", estimate)
	// Maxima are kept
	assert.Equal(t, 1250000.50, estimate.Cost)
	assert.Equal(t, int64(365), estimate.Rows)

	parsePlanLine("  ->  XN Hash Join DS_BCAST_INNER", estimate)
	require.Len(t, estimate.Warnings, 1)
	assert.Contains(t, estimate.Warnings[0], "redistributes rows")
}

func TestLayoutSatisfiedSnowflake(t *testing.T) {
	d := snowflakeDialect{}

	info := &TableInfo{ClusterKeys: []string{"player_id", "install_date", "session_date"}}
	desired := Layout{DistKey: "player_id", SortKeys: []string{"install_date", "session_date"}}
	assert.True(t, layoutSatisfied(d, info, desired))

	// Order matters for clustering keys
	reordered := &TableInfo{ClusterKeys: []string{"install_date", "player_id", "session_date"}}
	assert.False(t, layoutSatisfied(d, reordered, desired))

	missing := &TableInfo{}
	assert.False(t, layoutSatisfied(d, missing, desired))
}
