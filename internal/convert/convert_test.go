package convert

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"retflow/internal/retention"
)

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func sampleRows() []retention.AggregateRow {
	return []retention.AggregateRow{
		{CohortDate: day("2024-03-01"), NewPlayers: 100, Retained: []int64{40, 18, 7}},
		{CohortDate: day("2024-03-02"), NewPlayers: 85, Retained: []int64{31, 12, 0}},
		{CohortDate: day("2024-03-03"), NewPlayers: 0, Retained: []int64{0, 0, 0}},
	}
}

func TestParquetRoundTrip(t *testing.T) {
	ctx := context.Background()
	offsets := []int{1, 7, 30}
	path := filepath.Join(t.TempDir(), "retention.parquet")

	require.NoError(t, WriteParquet(ctx, sampleRows(), offsets, path))

	rows, err := ReadParquet(ctx, path, offsets)
	require.NoError(t, err)
	assert.Equal(t, sampleRows(), rows)
}

func TestReadParquetColumnMismatch(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "retention.parquet")

	require.NoError(t, WriteParquet(ctx, sampleRows(), []int{1, 7, 30}, path))

	// A file written with three offsets cannot satisfy four
	_, err := ReadParquet(ctx, path, []int{1, 7, 14, 30})
	assert.Error(t, err)
}

func TestSQLiteRoundTrip(t *testing.T) {
	ctx := context.Background()
	offsets := []int{1, 7, 30}
	path := filepath.Join(t.TempDir(), "retention.db")

	require.NoError(t, WriteSQLite(ctx, sampleRows(), offsets, path, "retention"))

	rows, err := ReadSQLite(ctx, path, "retention", offsets)
	require.NoError(t, err)
	assert.Equal(t, sampleRows(), rows)
}

func TestWriteSQLiteAtomic(t *testing.T) {
	ctx := context.Background()
	offsets := []int{1}
	dir := t.TempDir()
	path := filepath.Join(dir, "retention.db")

	rows := []retention.AggregateRow{
		{CohortDate: day("2024-03-01"), NewPlayers: 10, Retained: []int64{4}},
	}
	require.NoError(t, WriteSQLite(ctx, rows, offsets, path, "retention"))

	// No temp file survives a successful write
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "retention.db", entries[0].Name())

	// Overwriting with fresh content replaces the whole file
	rows[0].NewPlayers = 11
	require.NoError(t, WriteSQLite(ctx, rows, offsets, path, "retention"))

	read, err := ReadSQLite(ctx, path, "retention", offsets)
	require.NoError(t, err)
	require.Len(t, read, 1)
	assert.Equal(t, int64(11), read[0].NewPlayers)
}

func TestConverter(t *testing.T) {
	ctx := context.Background()
	offsets := []int{1, 7, 30}
	dir := t.TempDir()
	parquetPath := filepath.Join(dir, "retention.parquet")
	sqlitePath := filepath.Join(dir, "retention.db")

	require.NoError(t, WriteParquet(ctx, sampleRows(), offsets, parquetPath))

	converter := NewConverter(offsets, "")
	n, err := converter.Convert(ctx, parquetPath, sqlitePath)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	// Default table name applies when none is configured
	rows, err := converter.Rows(ctx, sqlitePath)
	require.NoError(t, err)
	assert.Equal(t, sampleRows(), rows)
}

func TestParseSQLiteDate(t *testing.T) {
	for _, input := range []string{"2024-03-01", "2024-03-01T00:00:00Z", "2024-03-01 00:00:00+00:00"} {
		parsed, err := parseSQLiteDate(input)
		require.NoError(t, err, input)
		assert.Equal(t, day("2024-03-01"), parsed.UTC().Truncate(24*time.Hour))
	}

	_, err := parseSQLiteDate("yesterday")
	assert.Error(t, err)
}
