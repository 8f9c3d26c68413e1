package retention

import (
	"fmt"
	"strings"

	"retflow/internal/warehouse"
	"retflow/pkg/models"
)

// BuildAggregateQuery renders the retention aggregation SELECT for the
// configured sessions table. One output row per distinct cohort date:
// the distinct-user count for the cohort plus, for each offset, the
// distinct users with a session dated exactly cohort + offset days.
// Every session row carries the user's cohort date, so a single
// grouped scan covers all offsets.
func BuildAggregateQuery(d warehouse.Dialect, cfg models.Retention, offsets []int) string {
	cohort := cfg.CohortDateColumn

	var b strings.Builder
	b.WriteString("SELECT\n")
	b.WriteString(fmt.Sprintf("    %s AS cohort_date,\n", cohort))
	b.WriteString(fmt.Sprintf("    COUNT(DISTINCT %s) AS new_players", cfg.UserColumn))

	for _, offset := range offsets {
		target := d.DateAdd(cohort, offset)
		b.WriteString(fmt.Sprintf(",\n    COUNT(DISTINCT CASE WHEN %s = %s THEN %s END) AS %s",
			cfg.SessionDateColumn, target, cfg.UserColumn, ColumnName(offset)))
	}

	b.WriteString(fmt.Sprintf("\nFROM %s\n", cfg.SessionsTable))
	b.WriteString(fmt.Sprintf("GROUP BY %s\n", cohort))
	b.WriteString(fmt.Sprintf("ORDER BY %s", cohort))

	return b.String()
}

// BuildAggregateSQL renders the CTAS statement materializing the
// aggregate table.
func BuildAggregateSQL(d warehouse.Dialect, cfg models.Retention, offsets []int) string {
	return d.CreateTableAs(cfg.AggregateTable, BuildAggregateQuery(d, cfg, offsets))
}

// BuildExportQuery renders the SELECT used to unload the materialized
// aggregate, with the column list fixed by the offset set.
func BuildExportQuery(cfg models.Retention, offsets []int) string {
	columns := []string{"cohort_date", "new_players"}
	for _, offset := range offsets {
		columns = append(columns, ColumnName(offset))
	}
	return fmt.Sprintf("SELECT %s FROM %s ORDER BY cohort_date",
		strings.Join(columns, ", "), cfg.AggregateTable)
}
