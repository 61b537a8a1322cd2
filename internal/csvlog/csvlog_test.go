package csvlog_test

import (
	"encoding/csv"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/fverao/powercapd/internal/csvlog"
	"github.com/fverao/powercapd/internal/logger"
	"github.com/fverao/powercapd/internal/stats"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRecord(seq int, start time.Time) csvlog.Record {
	return csvlog.Record{
		Timestamp:   start.Add(10 * time.Second),
		WindowStart: start,
		WindowEnd:   start.Add(10 * time.Second),
		Duration:    10.0,
		Stats: stats.Result{
			Samples:            1000 + seq,
			Current:            stats.Channel{Mean: 0.1, Std: 0.01, Min: 0.05, Max: 0.2},
			Voltage:            stats.Channel{Mean: 5.0, Std: 0.001, Min: 4.99, Max: 5.01},
			Power:              stats.Channel{Mean: 0.5, Std: 0.05, Min: 0.25, Max: 1.0},
			EnergyJoules:       5.0,
			EnergyMilliwattHrs: 5.0 * stats.JoulesToMilliwattHours,
		},
		CumulativeJoules: float64(seq+1) * 5.0,
		Gap:              seq == 2,
	}
}

func readAll(t *testing.T, path string) [][]string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	return rows
}

func TestAppendDurability(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	log, err := csvlog.Open(dir, "bench.csv", time.UTC, logger.Default())
	require.NoError(t, err)

	const n = 5
	for i := 0; i < n; i++ {
		require.NoError(t, log.Append(testRecord(i, start.Add(time.Duration(i)*10*time.Second))))
	}
	require.NoError(t, log.Close())

	rows := readAll(t, log.Path())
	require.Len(t, rows, n+1, "expected header plus one row per append")
	assert.Equal(t, csvlog.Schema, rows[0])

	for i := 1; i <= n; i++ {
		require.Len(t, rows[i], len(csvlog.Schema))
		samples, err := strconv.Atoi(rows[i][4])
		require.NoError(t, err)
		assert.Equal(t, 1000+i-1, samples, "rows must be in window order")
	}
}

func TestAppendFormatting(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2025, 3, 14, 12, 0, 0, 123456000, time.UTC)

	log, err := csvlog.Open(dir, "fmt.csv", time.UTC, logger.Default())
	require.NoError(t, err)
	require.NoError(t, log.Append(testRecord(0, start)))
	require.NoError(t, log.Close())

	rows := readAll(t, log.Path())
	row := rows[1]

	assert.Equal(t, "2025-03-14 12:00:00.123456", row[1], "microsecond timestamp resolution")
	assert.Equal(t, "10.000000", row[3], "6 decimal places for duration")
	assert.Equal(t, "0.100000000000", row[5], "12 decimal places for current")
	assert.Equal(t, "5.000000000", row[9], "9 decimal places for voltage")
	assert.Equal(t, "5.000000000000", row[17], "12 decimal places for energy")
	assert.Equal(t, "", row[21], "no gap marker")
}

func TestAppendGapMarker(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	log, err := csvlog.Open(dir, "gap.csv", time.UTC, logger.Default())
	require.NoError(t, err)
	require.NoError(t, log.Append(testRecord(2, start)))
	require.NoError(t, log.Close())

	rows := readAll(t, log.Path())
	assert.Equal(t, "GAP", rows[1][21])
}

func TestReuseExistingTargetAppends(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	log, err := csvlog.Open(dir, "reuse.csv", time.UTC, logger.Default())
	require.NoError(t, err)
	require.NoError(t, log.Append(testRecord(0, start)))
	require.NoError(t, log.Close())

	// Reopen with the same target: header kept, rows accumulate.
	log, err = csvlog.Open(dir, "reuse.csv", time.UTC, logger.Default())
	require.NoError(t, err)
	require.NoError(t, log.Append(testRecord(1, start.Add(10*time.Second))))
	require.NoError(t, log.Close())

	rows := readAll(t, log.Path())
	require.Len(t, rows, 3)

	_, err = os.Stat(log.Path() + ".backup")
	assert.True(t, os.IsNotExist(err), "matching header must not trigger a backup")
}

func TestSchemaMismatchBacksUpOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "old.csv")

	original := "Timestamp,Current,Voltage\n1,0.1,5.0\n"
	require.NoError(t, os.WriteFile(path, []byte(original), 0o644))

	log, err := csvlog.Open(dir, "old.csv", time.UTC, logger.Default())
	require.NoError(t, err)
	require.NoError(t, log.Close())

	backup, err := os.ReadFile(path + ".backup")
	require.NoError(t, err)
	assert.Equal(t, original, string(backup), "backup must preserve the original bytes")

	rows := readAll(t, path)
	require.Len(t, rows, 1)
	assert.Equal(t, csvlog.Schema, rows[0], "target must be rewritten with a fresh header")
}

func TestAppendRecoversAfterTransientFailure(t *testing.T) {
	dir := t.TempDir()
	start := time.Date(2025, 3, 14, 12, 0, 0, 0, time.UTC)

	log, err := csvlog.Open(dir, "flaky.csv", time.UTC, logger.Default())
	require.NoError(t, err)

	require.NoError(t, log.Append(testRecord(0, start)))

	// Simulate the target disappearing out from under the session.
	hidden := log.Path() + ".hidden"
	require.NoError(t, os.Rename(log.Path(), hidden))
	require.Error(t, log.Append(testRecord(1, start.Add(10*time.Second))))
	require.NoError(t, os.Rename(hidden, log.Path()))

	require.NoError(t, log.Append(testRecord(2, start.Add(20*time.Second))),
		"append must succeed again once the fault clears")
	require.NoError(t, log.Close())

	rows := readAll(t, log.Path())
	require.Len(t, rows, 3, "header plus the two successful appends")

	samples, err := strconv.Atoi(rows[2][4])
	require.NoError(t, err)
	assert.Equal(t, 1002, samples, "the post-recovery row is the third record")
}

func TestTimestampsUseFixedZone(t *testing.T) {
	dir := t.TempDir()
	loc, err := time.LoadLocation("America/Sao_Paulo")
	require.NoError(t, err)

	log, err := csvlog.Open(dir, "tz.csv", loc, logger.Default())
	require.NoError(t, err)

	start := time.Date(2025, 3, 14, 15, 0, 0, 0, time.UTC) // 12:00 in São Paulo
	require.NoError(t, log.Append(testRecord(0, start)))
	require.NoError(t, log.Close())

	rows := readAll(t, log.Path())
	assert.Equal(t, "2025-03-14 12:00:00.000000", rows[1][1])
}
