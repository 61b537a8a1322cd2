package csvlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/fverao/powercapd/internal/errors"
	"github.com/fverao/powercapd/internal/logger"
	"github.com/fverao/powercapd/internal/stats"
)

const (
	timestampLayout = "2006-01-02 15:04:05.000000"
	dirPerm         = 0o755
	filePerm        = 0o644
)

// Schema is the fixed, ordered column list of a capture log. The final
// column name doubles as the schema marker checked on reuse.
var Schema = []string{
	"Timestamp", "Window Start", "Window End", "Duration (s)", "Samples",
	"Current Mean (A)", "Current Std (A)", "Current Min (A)", "Current Max (A)",
	"Voltage Mean (V)", "Voltage Std (V)", "Voltage Min (V)", "Voltage Max (V)",
	"Power Mean (W)", "Power Std (W)", "Power Min (W)", "Power Max (W)",
	"Energy (J)", "Energy (mWh)", "Cumulative Energy (J)", "Cumulative Energy (mWh)",
	"Data Gap Warning",
}

// Record is one successfully processed window ready for persistence.
type Record struct {
	Timestamp        time.Time
	WindowStart      time.Time
	WindowEnd        time.Time
	Duration         float64
	Stats            stats.Result
	CumulativeJoules float64
	Gap              bool
}

// Log is an append-only CSV record store for one output target. Every
// append is flushed and fsynced before returning.
type Log struct {
	path string
	loc  *time.Location
}

// Open prepares the log file for the given target under dir. A fresh or
// empty target gets the schema header; an existing target with a foreign
// header is copied to a backup and rewritten, never silently truncated.
func Open(dir, target string, loc *time.Location, log logger.Logger) (*Log, error) {
	errFactory := errors.New()

	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, errFactory.Wrap(errors.ErrPersistence, err)
	}

	path := filepath.Join(dir, filepath.Base(target))
	if err := initialize(path, log); err != nil {
		return nil, err
	}

	return &Log{
		path: path,
		loc:  loc,
	}, nil
}

// Path returns the resolved log file path.
func (l *Log) Path() string {
	return l.path
}

// Append writes one record, flushes it and syncs the file so a crash
// immediately after a successful return cannot lose the row. The file is
// opened per append; a failed append is dropped without poisoning the
// next one, so persistence recovers as soon as the fault clears.
func (l *Log) Append(rec Record) error {
	errFactory := errors.New()

	row := []string{
		rec.Timestamp.In(l.loc).Format(timestampLayout),
		rec.WindowStart.In(l.loc).Format(timestampLayout),
		rec.WindowEnd.In(l.loc).Format(timestampLayout),
		fmt.Sprintf("%.6f", rec.Duration),
		strconv.Itoa(rec.Stats.Samples),
		fmt.Sprintf("%.12f", rec.Stats.Current.Mean),
		fmt.Sprintf("%.12f", rec.Stats.Current.Std),
		fmt.Sprintf("%.12f", rec.Stats.Current.Min),
		fmt.Sprintf("%.12f", rec.Stats.Current.Max),
		fmt.Sprintf("%.9f", rec.Stats.Voltage.Mean),
		fmt.Sprintf("%.9f", rec.Stats.Voltage.Std),
		fmt.Sprintf("%.9f", rec.Stats.Voltage.Min),
		fmt.Sprintf("%.9f", rec.Stats.Voltage.Max),
		fmt.Sprintf("%.12f", rec.Stats.Power.Mean),
		fmt.Sprintf("%.12f", rec.Stats.Power.Std),
		fmt.Sprintf("%.12f", rec.Stats.Power.Min),
		fmt.Sprintf("%.12f", rec.Stats.Power.Max),
		fmt.Sprintf("%.12f", rec.Stats.EnergyJoules),
		fmt.Sprintf("%.12f", rec.Stats.EnergyMilliwattHrs),
		fmt.Sprintf("%.12f", rec.CumulativeJoules),
		fmt.Sprintf("%.12f", rec.CumulativeJoules*stats.JoulesToMilliwattHours),
		gapMarker(rec.Gap),
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_APPEND, filePerm)
	if err != nil {
		return errFactory.Wrap(errors.ErrPersistence, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(row); err != nil {
		f.Close()
		return errFactory.Wrap(errors.ErrPersistence, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return errFactory.Wrap(errors.ErrPersistence, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errFactory.Wrap(errors.ErrPersistence, err)
	}
	if err := f.Close(); err != nil {
		return errFactory.Wrap(errors.ErrPersistence, err)
	}

	return nil
}

// Close is kept for symmetry with Open; appends hold no open handle.
func (l *Log) Close() error {
	return nil
}

func initialize(path string, log logger.Logger) error {
	header, size, err := readHeader(path)
	if err != nil {
		return err
	}

	if header == nil {
		return writeHeader(path)
	}

	if len(header) == len(Schema) && header[len(header)-1] == Schema[len(Schema)-1] {
		return nil
	}

	// Foreign header: keep the original bytes, then start fresh.
	if size > 0 {
		backupPath := path + ".backup"
		if err := copyFile(path, backupPath); err != nil {
			return err
		}
		log.Warn().
			Str("path", path).
			Str("backup", backupPath).
			Int("columns", len(header)).
			Msg("Log header does not match schema, original backed up")
	}

	return writeHeader(path)
}

func readHeader(path string) ([]string, int64, error) {
	errFactory := errors.New()

	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, 0, nil
	}
	if err != nil {
		return nil, 0, errFactory.Wrap(errors.ErrPersistence, err)
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, 0, errFactory.Wrap(errors.ErrPersistence, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err == io.EOF {
		return nil, info.Size(), nil
	}
	if err != nil {
		// Unparseable first line counts as a schema mismatch, not a failure.
		return []string{}, info.Size(), nil
	}

	return header, info.Size(), nil
}

func writeHeader(path string) error {
	errFactory := errors.New()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return errFactory.Wrap(errors.ErrPersistence, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(Schema); err != nil {
		f.Close()
		return errFactory.Wrap(errors.ErrPersistence, err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return errFactory.Wrap(errors.ErrPersistence, err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return errFactory.Wrap(errors.ErrPersistence, err)
	}

	return f.Close()
}

func copyFile(src, dst string) error {
	errFactory := errors.New()

	in, err := os.Open(src)
	if err != nil {
		return errFactory.Wrap(errors.ErrPersistence, err)
	}
	defer in.Close()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, filePerm)
	if err != nil {
		return errFactory.Wrap(errors.ErrPersistence, err)
	}

	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return errFactory.Wrap(errors.ErrPersistence, err)
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return errFactory.Wrap(errors.ErrPersistence, err)
	}

	return out.Close()
}

func gapMarker(gap bool) string {
	if gap {
		return "GAP"
	}

	return ""
}
