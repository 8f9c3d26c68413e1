// Package convert turns the warehouse's Parquet export into the local
// SQLite analytic file the dashboard consumes.
package convert

import (
	"context"

	"retflow/internal/retention"
)

// Converter converts the exported aggregate into the analytic file.
type Converter struct {
	offsets   []int
	tableName string
}

// NewConverter creates a converter for the given offset set and target
// table name.
func NewConverter(offsets []int, tableName string) *Converter {
	if tableName == "" {
		tableName = "retention"
	}
	return &Converter{offsets: offsets, tableName: tableName}
}

// Convert reads the Parquet export and writes the SQLite analytic file,
// returning the number of rows carried over.
func (c *Converter) Convert(ctx context.Context, parquetPath, sqlitePath string) (int, error) {
	rows, err := ReadParquet(ctx, parquetPath, c.offsets)
	if err != nil {
		return 0, err
	}

	if err := WriteSQLite(ctx, rows, c.offsets, sqlitePath, c.tableName); err != nil {
		return 0, err
	}

	return len(rows), nil
}

// Rows re-reads the converted file, for verification.
func (c *Converter) Rows(ctx context.Context, sqlitePath string) ([]retention.AggregateRow, error) {
	return ReadSQLite(ctx, sqlitePath, c.tableName, c.offsets)
}
