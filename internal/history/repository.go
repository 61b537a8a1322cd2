package history

import (
	"database/sql"
	"os"
	"path/filepath"
	"sync"

	"github.com/fverao/powercapd/internal/errors"
	"github.com/fverao/powercapd/internal/logger"
	_ "github.com/mattn/go-sqlite3"
)

type repository struct {
	db     *sql.DB
	logger logger.Logger
	mu     sync.Mutex
}

func NewRepository(cfg Config, log logger.Logger) (Recorder, error) {
	errFactory := errors.New()

	if cfg.DBPath == "" {
		return nil, errFactory.New(ErrInvalidDBPath)
	}

	// Ensure the directory exists
	if err := os.MkdirAll(filepath.Dir(cfg.DBPath), defaultDirPerm); err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Path  string
			Error string
		}{
			Phase: "create_directory",
			Path:  cfg.DBPath,
			Error: err.Error(),
		})
	}

	// Open database with specific pragmas for better performance and safety
	dsn := cfg.DBPath + "?_journal=WAL&_auto_vacuum=2"
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "open_database",
			Error: err.Error(),
		})
	}

	// Validate if schema is current, with backup if needed
	if err := ValidateAndUpdateSchema(db, cfg.DBPath, log); err != nil {
		db.Close()
		return nil, errFactory.WithData(ErrStorageInit, struct {
			Phase string
			Error string
		}{
			Phase: "schema_version",
			Error: err.Error(),
		})
	}

	log.Info().
		Str("path", cfg.DBPath).
		Int("schema_version", SchemaVersion).
		Msg("History repository initialized")

	return &repository{
		db:     db,
		logger: log,
	}, nil
}

func (r *repository) SessionStarted(s Session) error {
	errFactory := errors.New()

	if s.ID == "" {
		return errFactory.New(ErrInvalidSession)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.db.Exec(insertSessionSQL, s.ID, s.OutputTarget, s.StartedAt.Unix()); err != nil {
		return errFactory.Wrap(ErrRecordFailed, err)
	}

	return nil
}

func (r *repository) SessionEnded(s Session) error {
	errFactory := errors.New()

	if s.ID == "" {
		return errFactory.New(ErrInvalidSession)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.Exec(finalizeSessionSQL,
		s.EndedAt.Unix(), s.Windows, s.EnergyJoules, s.Reconnects, s.LastError, s.ID)
	if err != nil {
		return errFactory.Wrap(ErrRecordFailed, err)
	}

	if rows, err := result.RowsAffected(); err == nil && rows == 0 {
		return errFactory.WithData(ErrInvalidSession, s.ID)
	}

	return nil
}

func (r *repository) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	// Checkpoint WAL and cleanup on close
	if _, err := r.db.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "checkpoint_wal",
			Error: err.Error(),
		})
	}

	if err := r.db.Close(); err != nil {
		return errors.New().WithData(ErrStorageClose, struct {
			Phase string
			Error string
		}{
			Phase: "close_database",
			Error: err.Error(),
		})
	}

	r.logger.Debug().Msg("History repository closed")

	return nil
}
