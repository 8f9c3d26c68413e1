package retention

import (
	"context"
	"fmt"
	"time"

	"retflow/internal/warehouse"
	"retflow/pkg/errors"
	"retflow/pkg/models"
)

// Aggregator materializes the retention aggregate in the warehouse.
type Aggregator struct {
	svc     *warehouse.Service
	cfg     models.Retention
	offsets []int
}

// NewAggregator creates an aggregator for the configured sessions
// table. The config's offsets are used unless overridden.
func NewAggregator(svc *warehouse.Service, cfg models.Retention, offsets []int) (*Aggregator, error) {
	if len(offsets) == 0 {
		offsets = cfg.Offsets
	}
	if len(offsets) == 0 {
		offsets = DefaultOffsets
	}
	if err := ValidateOffsets(offsets); err != nil {
		return nil, errors.ConfigError(err.Error(), "retention.offsets")
	}

	return &Aggregator{svc: svc, cfg: cfg, offsets: offsets}, nil
}

// Offsets returns the effective offset list.
func (a *Aggregator) Offsets() []int {
	return a.offsets
}

// Run drops any previous aggregate, materializes a fresh one, and
// returns the number of rows it holds.
func (a *Aggregator) Run(ctx context.Context) (int64, error) {
	d := a.svc.Dialect()

	if err := a.svc.Exec(ctx, d.DropTableIfExists(a.cfg.AggregateTable)); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSQLExecution, "Failed to drop previous aggregate").
			WithContext("table", a.cfg.AggregateTable)
	}

	if err := a.svc.Exec(ctx, BuildAggregateSQL(d, a.cfg, a.offsets)); err != nil {
		return 0, errors.Wrap(err, errors.ErrCodeSQLExecution, "Aggregation failed").
			WithContext("table", a.cfg.AggregateTable)
	}

	count, err := a.svc.QueryRowCount(ctx, a.cfg.AggregateTable)
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, errors.New(errors.ErrCodeNoResults, "Aggregate table is empty").
			WithContext("table", a.cfg.AggregateTable).
			WithSuggestions(
				"Check that the sessions table has rows",
				"Verify the configured column names",
			)
	}

	return count, nil
}

// Verify re-tallies a bounded sample of recent cohort dates straight
// from the sessions table and compares against the materialized
// aggregate.
func (a *Aggregator) Verify(ctx context.Context, sampleDays int) error {
	if sampleDays <= 0 {
		sampleDays = 7
	}

	materialized, err := a.readAggregate(ctx, sampleDays)
	if err != nil {
		return err
	}
	if len(materialized) == 0 {
		return errors.New(errors.ErrCodeNoResults, "Nothing to verify: aggregate is empty")
	}

	oldest := materialized[0].CohortDate
	sessions, err := a.readSessions(ctx, oldest)
	if err != nil {
		return err
	}

	tally := Aggregate(sessions, a.offsets)
	byDate := make(map[string]AggregateRow, len(tally))
	for _, row := range tally {
		byDate[dateKey(row.CohortDate)] = row
	}

	for _, got := range materialized {
		want, ok := byDate[dateKey(got.CohortDate)]
		if !ok {
			return verifyMismatch(got.CohortDate, "cohort missing from session re-tally")
		}
		if got.NewPlayers != want.NewPlayers {
			return verifyMismatch(got.CohortDate,
				fmt.Sprintf("new_players %d, re-tally %d", got.NewPlayers, want.NewPlayers))
		}
		for i, offset := range a.offsets {
			if got.Retained[i] != want.Retained[i] {
				return verifyMismatch(got.CohortDate,
					fmt.Sprintf("%s %d, re-tally %d", ColumnName(offset), got.Retained[i], want.Retained[i]))
			}
		}
	}

	return nil
}

func verifyMismatch(cohort time.Time, detail string) error {
	return errors.New(errors.ErrCodeValidationFailed, "Aggregate verification failed").
		WithContext("cohort_date", dateKey(cohort)).
		WithContext("detail", detail).
		WithSuggestions("Re-run the aggregation stage")
}

// readAggregate loads the most recent sample of aggregate rows, oldest
// first.
func (a *Aggregator) readAggregate(ctx context.Context, sampleDays int) ([]AggregateRow, error) {
	query := fmt.Sprintf("%s DESC LIMIT %d", BuildExportQuery(a.cfg, a.offsets), sampleDays)

	rows, err := a.svc.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []AggregateRow
	for rows.Next() {
		row := AggregateRow{Retained: make([]int64, len(a.offsets))}
		dest := make([]interface{}, 0, len(a.offsets)+2)
		dest = append(dest, &row.CohortDate, &row.NewPlayers)
		for i := range a.offsets {
			dest = append(dest, &row.Retained[i])
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeResultParsing, "Failed to scan aggregate row")
		}
		row.CohortDate = truncateDate(row.CohortDate)
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// DESC for the LIMIT; oldest first for the caller.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// readSessions loads the session rows for cohorts at or after the given
// date.
func (a *Aggregator) readSessions(ctx context.Context, oldest time.Time) ([]Session, error) {
	query := fmt.Sprintf("SELECT %s, %s, %s FROM %s WHERE %s >= '%s'",
		a.cfg.UserColumn,
		a.cfg.SessionDateColumn,
		a.cfg.CohortDateColumn,
		a.cfg.SessionsTable,
		a.cfg.CohortDateColumn,
		dateKey(oldest),
	)

	rows, err := a.svc.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var sessions []Session
	for rows.Next() {
		var s Session
		if err := rows.Scan(&s.UserID, &s.SessionDate, &s.CohortDate); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeResultParsing, "Failed to scan session row")
		}
		sessions = append(sessions, s)
	}
	return sessions, rows.Err()
}
