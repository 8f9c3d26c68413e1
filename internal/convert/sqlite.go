package convert

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"retflow/internal/retention"
	"retflow/pkg/errors"
)

// WriteSQLite writes the aggregate rows into a fresh SQLite analytic
// file at path, replacing any prior file. The file is assembled at a
// temporary path and renamed into place, so a failed conversion never
// leaves a usable partial file behind.
func WriteSQLite(ctx context.Context, rows []retention.AggregateRow, offsets []int, path, tableName string) error {
	tmpPath := path + ".tmp"
	if err := os.Remove(tmpPath); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to clear previous temp file").
			WithContext("path", tmpPath)
	}

	if err := writeSQLiteFile(ctx, rows, offsets, tmpPath, tableName); err != nil {
		os.Remove(tmpPath)
		return err
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to move analytic file into place").
			WithContext("path", path)
	}

	return nil
}

func writeSQLiteFile(ctx context.Context, rows []retention.AggregateRow, offsets []int, path, tableName string) error {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConvertFailed, "Failed to create analytic file").
			WithContext("path", path)
	}
	defer db.Close()

	columns := []string{"cohort_date DATE NOT NULL", "new_players INTEGER NOT NULL"}
	for _, offset := range offsets {
		columns = append(columns, retention.ColumnName(offset)+" INTEGER NOT NULL")
	}
	createSQL := fmt.Sprintf("CREATE TABLE %s (%s)", tableName, strings.Join(columns, ", "))

	if _, err := db.ExecContext(ctx, createSQL); err != nil {
		return errors.Wrap(err, errors.ErrCodeConvertFailed, "Failed to create analytic table").
			WithContext("table", tableName)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeConvertFailed, "Failed to begin insert transaction")
	}

	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(offsets)+2), ", ")
	insertSQL := fmt.Sprintf("INSERT INTO %s VALUES (%s)", tableName, placeholders)

	stmt, err := tx.PrepareContext(ctx, insertSQL)
	if err != nil {
		tx.Rollback()
		return errors.Wrap(err, errors.ErrCodeConvertFailed, "Failed to prepare insert")
	}
	defer stmt.Close()

	for _, row := range rows {
		args := make([]interface{}, 0, len(offsets)+2)
		args = append(args, row.CohortDate.Format("2006-01-02"), row.NewPlayers)
		for _, retained := range row.Retained {
			args = append(args, retained)
		}
		if _, err := stmt.ExecContext(ctx, args...); err != nil {
			tx.Rollback()
			return errors.Wrap(err, errors.ErrCodeConvertFailed, "Failed to insert aggregate row").
				WithContext("cohort_date", row.CohortDate.Format("2006-01-02"))
		}
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.ErrCodeConvertFailed, "Failed to commit analytic rows")
	}

	return nil
}

// ReadSQLite loads the aggregate rows back from an analytic file.
// Tests use it to check the round trip; the publish stage does not.
func ReadSQLite(ctx context.Context, path, tableName string, offsets []int) ([]retention.AggregateRow, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to open analytic file").
			WithContext("path", path)
	}
	defer db.Close()

	columns := []string{"cohort_date", "new_players"}
	for _, offset := range offsets {
		columns = append(columns, retention.ColumnName(offset))
	}
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY cohort_date", strings.Join(columns, ", "), tableName)

	dbRows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConvertFailed, "Failed to read analytic table").
			WithContext("table", tableName)
	}
	defer dbRows.Close()

	var rows []retention.AggregateRow
	for dbRows.Next() {
		row := retention.AggregateRow{Retained: make([]int64, len(offsets))}
		var date interface{}
		dest := make([]interface{}, 0, len(offsets)+2)
		dest = append(dest, &date, &row.NewPlayers)
		for i := range offsets {
			dest = append(dest, &row.Retained[i])
		}
		if err := dbRows.Scan(dest...); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeResultParsing, "Failed to scan analytic row")
		}
		// The driver yields time.Time for DATE-declared columns; raw
		// text comes back for files written by other tools.
		switch v := date.(type) {
		case time.Time:
			row.CohortDate = v.UTC().Truncate(24 * time.Hour)
		case string:
			if row.CohortDate, err = parseSQLiteDate(v); err != nil {
				return nil, err
			}
		case []byte:
			if row.CohortDate, err = parseSQLiteDate(string(v)); err != nil {
				return nil, err
			}
		default:
			return nil, errors.New(errors.ErrCodeResultParsing,
				fmt.Sprintf("Unexpected cohort_date value %v in analytic file", date))
		}
		rows = append(rows, row)
	}

	return rows, dbRows.Err()
}

// parseSQLiteDate accepts both plain dates and the datetime form the
// sqlite3 driver renders for DATE-typed columns.
func parseSQLiteDate(s string) (time.Time, error) {
	for _, layout := range []string{"2006-01-02", "2006-01-02T15:04:05Z07:00", "2006-01-02 15:04:05-07:00"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, errors.New(errors.ErrCodeResultParsing,
		fmt.Sprintf("Invalid date value %q in analytic file", s))
}
