package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/fverao/powercapd/internal/errors"
	"github.com/fverao/powercapd/internal/logger"
	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(t *testing.T) Config {
	t.Helper()

	return Config{
		DBPath:  filepath.Join(t.TempDir(), "history.db"),
		Enabled: true,
	}
}

func TestNewServiceDisabledReturnsNoop(t *testing.T) {
	rec, err := NewService(Config{Enabled: false}, logger.Default())
	require.NoError(t, err)

	assert.NoError(t, rec.SessionStarted(Session{ID: "x"}))
	assert.NoError(t, rec.SessionEnded(Session{ID: "x"}))
	assert.NoError(t, rec.Close())
}

func TestNewServiceEnabledRequiresDBPath(t *testing.T) {
	_, err := NewService(Config{Enabled: true}, logger.Default())
	require.Error(t, err)
	assert.Equal(t, ErrInvalidConfig, errors.CodeOf(err))
}

func TestRepositoryRecordsSessionLifecycle(t *testing.T) {
	cfg := testConfig(t)
	rec, err := NewRepository(cfg, logger.Default())
	require.NoError(t, err)
	defer rec.Close()

	started := time.Date(2026, 8, 25, 10, 0, 0, 0, time.UTC)
	ended := started.Add(90 * time.Second)

	require.NoError(t, rec.SessionStarted(Session{
		ID:           "session-1",
		OutputTarget: "bench.csv",
		StartedAt:    started,
	}))
	require.NoError(t, rec.SessionEnded(Session{
		ID:           "session-1",
		EndedAt:      ended,
		Windows:      9,
		EnergyJoules: 42.5,
		Reconnects:   2,
		LastError:    "device went away",
	}))
	require.NoError(t, rec.Close())

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	var (
		target    string
		startedAt int64
		endedAt   int64
		windows   int
		energy    float64
		recon     int
		lastErr   string
	)
	row := db.QueryRow(`
        SELECT output_target, started_at, ended_at, windows, energy_joules, reconnects, last_error
        FROM sessions WHERE id = ?`, "session-1")
	require.NoError(t, row.Scan(&target, &startedAt, &endedAt, &windows, &energy, &recon, &lastErr))

	assert.Equal(t, "bench.csv", target)
	assert.Equal(t, started.Unix(), startedAt)
	assert.Equal(t, ended.Unix(), endedAt)
	assert.Equal(t, 9, windows)
	assert.Equal(t, 42.5, energy)
	assert.Equal(t, 2, recon)
	assert.Equal(t, "device went away", lastErr)
}

func TestSessionStartedRequiresID(t *testing.T) {
	rec, err := NewRepository(testConfig(t), logger.Default())
	require.NoError(t, err)
	defer rec.Close()

	err = rec.SessionStarted(Session{})
	require.Error(t, err)
	assert.Equal(t, ErrInvalidSession, errors.CodeOf(err))
}

func TestSessionEndedUnknownIDFails(t *testing.T) {
	rec, err := NewRepository(testConfig(t), logger.Default())
	require.NoError(t, err)
	defer rec.Close()

	err = rec.SessionEnded(Session{ID: "never-started", EndedAt: time.Now()})
	require.Error(t, err)
	assert.Equal(t, ErrInvalidSession, errors.CodeOf(err))
}

func TestReopenPreservesSessions(t *testing.T) {
	cfg := testConfig(t)

	rec, err := NewRepository(cfg, logger.Default())
	require.NoError(t, err)
	require.NoError(t, rec.SessionStarted(Session{ID: "s1", StartedAt: time.Now()}))
	require.NoError(t, rec.Close())

	rec, err = NewRepository(cfg, logger.Default())
	require.NoError(t, err)
	defer rec.Close()

	require.NoError(t, rec.SessionEnded(Session{ID: "s1", EndedAt: time.Now(), Windows: 1}))
}

func TestSchemaVersionRecorded(t *testing.T) {
	cfg := testConfig(t)
	rec, err := NewRepository(cfg, logger.Default())
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)
}

func TestSchemaMismatchBacksUpAndRecreates(t *testing.T) {
	cfg := testConfig(t)

	// Seed a database claiming a future schema version with a row in it.
	db, err := sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	_, err = db.Exec(`
        CREATE TABLE schema_versions (version INTEGER PRIMARY KEY, applied_at TEXT NOT NULL);
        CREATE TABLE sessions (id TEXT PRIMARY KEY);
        INSERT INTO schema_versions (version, applied_at) VALUES (99, datetime('now'));
        INSERT INTO sessions (id) VALUES ('old-session');`)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	rec, err := NewRepository(cfg, logger.Default())
	require.NoError(t, err)
	require.NoError(t, rec.Close())

	backups, err := os.ReadDir(filepath.Join(filepath.Dir(cfg.DBPath), "backups"))
	require.NoError(t, err)
	require.Len(t, backups, 1)
	assert.Contains(t, backups[0].Name(), "history_v99_")

	db, err = sql.Open("sqlite3", cfg.DBPath)
	require.NoError(t, err)
	defer db.Close()

	version, err := GetSchemaVersion(db)
	require.NoError(t, err)
	assert.Equal(t, SchemaVersion, version)

	var count int
	require.NoError(t, db.QueryRow("SELECT COUNT(*) FROM sessions").Scan(&count))
	assert.Zero(t, count, "old sessions are dropped after the backup")
}
