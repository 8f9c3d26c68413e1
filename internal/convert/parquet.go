package convert

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/apache/arrow/go/v12/arrow"
	"github.com/apache/arrow/go/v12/arrow/array"
	"github.com/apache/arrow/go/v12/arrow/memory"
	"github.com/apache/arrow/go/v12/parquet"
	"github.com/apache/arrow/go/v12/parquet/compress"
	"github.com/apache/arrow/go/v12/parquet/file"
	"github.com/apache/arrow/go/v12/parquet/pqarrow"

	"retflow/internal/retention"
	"retflow/pkg/errors"
)

// parquetSchema builds the arrow schema for the aggregate: a date
// column plus one int64 count per offset.
func parquetSchema(offsets []int) *arrow.Schema {
	fields := []arrow.Field{
		{Name: "cohort_date", Type: arrow.FixedWidthTypes.Date32},
		{Name: "new_players", Type: arrow.PrimitiveTypes.Int64},
	}
	for _, offset := range offsets {
		fields = append(fields, arrow.Field{
			Name: retention.ColumnName(offset),
			Type: arrow.PrimitiveTypes.Int64,
		})
	}
	return arrow.NewSchema(fields, nil)
}

// WriteParquet writes aggregate rows to a Parquet file. Used by tests
// and by the export stage when re-materializing a local aggregate.
func WriteParquet(ctx context.Context, rows []retention.AggregateRow, offsets []int, path string) error {
	schema := parquetSchema(offsets)

	builder := array.NewRecordBuilder(memory.DefaultAllocator, schema)
	defer builder.Release()

	dateBuilder := builder.Field(0).(*array.Date32Builder)
	newPlayersBuilder := builder.Field(1).(*array.Int64Builder)

	for _, row := range rows {
		dateBuilder.Append(arrow.Date32FromTime(row.CohortDate))
		newPlayersBuilder.Append(row.NewPlayers)
		for i := range offsets {
			builder.Field(2 + i).(*array.Int64Builder).Append(row.Retained[i])
		}
	}

	record := builder.NewRecord()
	defer record.Release()

	table := array.NewTableFromRecords(schema, []arrow.Record{record})
	defer table.Release()

	f, err := os.Create(path)
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to create parquet file").
			WithContext("path", path)
	}
	defer f.Close()

	props := parquet.NewWriterProperties(parquet.WithCompression(compress.Codecs.Snappy))
	if err := pqarrow.WriteTable(table, f, int64(len(rows))+1, props, pqarrow.DefaultWriterProps()); err != nil {
		return errors.Wrap(err, errors.ErrCodeConvertFailed, "Failed to write parquet table").
			WithContext("path", path)
	}

	return nil
}

// ReadParquet loads aggregate rows from a Parquet file with the schema
// the export stage produces. The warehouse engines differ in how they
// type the date column, so date32, timestamps, and ISO date strings are
// all accepted.
func ReadParquet(ctx context.Context, path string, offsets []int) ([]retention.AggregateRow, error) {
	rdr, err := file.OpenParquetFile(path, false)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeFileOperation, "Failed to open parquet file").
			WithContext("path", path)
	}
	defer rdr.Close()

	arrowRdr, err := pqarrow.NewFileReader(rdr, pqarrow.ArrowReadProperties{BatchSize: 1024}, memory.DefaultAllocator)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConvertFailed, "Failed to create parquet reader")
	}

	table, err := arrowRdr.ReadTable(ctx)
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeConvertFailed, "Failed to read parquet table").
			WithContext("path", path)
	}
	defer table.Release()

	wantCols := len(offsets) + 2
	if int(table.NumCols()) != wantCols {
		return nil, errors.New(errors.ErrCodeConvertFailed,
			fmt.Sprintf("Unexpected parquet schema: %d columns, want %d", table.NumCols(), wantCols)).
			WithContext("path", path)
	}

	numRows := int(table.NumRows())
	rows := make([]retention.AggregateRow, numRows)
	for i := range rows {
		rows[i].Retained = make([]int64, len(offsets))
	}

	dates, err := readDateColumn(table.Column(0))
	if err != nil {
		return nil, err
	}
	for i, d := range dates {
		rows[i].CohortDate = d
	}

	counts, err := readIntColumn(table.Column(1))
	if err != nil {
		return nil, err
	}
	for i, c := range counts {
		rows[i].NewPlayers = c
	}

	for col := 0; col < len(offsets); col++ {
		counts, err := readIntColumn(table.Column(2 + col))
		if err != nil {
			return nil, err
		}
		for i, c := range counts {
			rows[i].Retained[col] = c
		}
	}

	return rows, nil
}

func readDateColumn(col *arrow.Column) ([]time.Time, error) {
	var out []time.Time
	for _, chunk := range col.Data().Chunks() {
		switch arr := chunk.(type) {
		case *array.Date32:
			for i := 0; i < arr.Len(); i++ {
				out = append(out, arr.Value(i).ToTime())
			}
		case *array.Timestamp:
			unit := arr.DataType().(*arrow.TimestampType).Unit
			for i := 0; i < arr.Len(); i++ {
				out = append(out, arr.Value(i).ToTime(unit).UTC())
			}
		case *array.String:
			for i := 0; i < arr.Len(); i++ {
				t, err := time.Parse("2006-01-02", arr.Value(i))
				if err != nil {
					return nil, errors.Wrap(err, errors.ErrCodeConvertFailed, "Invalid date value in parquet file")
				}
				out = append(out, t)
			}
		default:
			return nil, errors.New(errors.ErrCodeConvertFailed,
				fmt.Sprintf("Unsupported date column type %s", chunk.DataType()))
		}
	}
	return out, nil
}

func readIntColumn(col *arrow.Column) ([]int64, error) {
	var out []int64
	for _, chunk := range col.Data().Chunks() {
		switch arr := chunk.(type) {
		case *array.Int64:
			for i := 0; i < arr.Len(); i++ {
				out = append(out, arr.Value(i))
			}
		case *array.Int32:
			for i := 0; i < arr.Len(); i++ {
				out = append(out, int64(arr.Value(i)))
			}
		default:
			return nil, errors.New(errors.ErrCodeConvertFailed,
				fmt.Sprintf("Unsupported count column type %s", chunk.DataType()))
		}
	}
	return out, nil
}
