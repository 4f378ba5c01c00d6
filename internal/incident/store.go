package incident

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/banshee-data/cornercase/internal/fsutil"
)

// RecordStore is an append-only log of committed incidents.
type RecordStore interface {
	AppendIncident(ctx context.Context, r Record) error
}

// MultiStore appends to every store in order. All stores are attempted;
// their errors are joined.
type MultiStore []RecordStore

func (m MultiStore) AppendIncident(ctx context.Context, r Record) error {
	var errs []error
	for _, s := range m {
		if err := s.AppendIncident(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// CasesDir holds the CSV log and the experimental setup file.
const CasesDir = "09_corner_cases"

var csvHeader = []string{
	"time until cc",
	"driven m until cc",
	"reason for cc",
	"triggering by",
	"network",
	"weather",
	"comments",
	"session",
	"frames",
	"id",
}

// CSVLog appends committed incidents to <root>/09_corner_cases/cc.csv. The
// header row is written when the file is first created.
type CSVLog struct {
	fs   fsutil.FileSystem
	path string
	mu   sync.Mutex
}

// NewCSVLog returns a CSVLog below root.
func NewCSVLog(fs fsutil.FileSystem, root string) *CSVLog {
	return &CSVLog{fs: fs, path: filepath.Join(root, CasesDir, "cc.csv")}
}

// Path returns the CSV file location.
func (l *CSVLog) Path() string { return l.path }

func (l *CSVLog) AppendIncident(_ context.Context, r Record) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	var buf bytes.Buffer
	if l.fs.Exists(l.path) {
		existing, err := l.fs.ReadFile(l.path)
		if err != nil {
			return fmt.Errorf("read %s: %w", l.path, err)
		}
		buf.Write(existing)
	}

	w := csv.NewWriter(&buf)
	if buf.Len() == 0 {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	if err := w.Write(csvRow(r)); err != nil {
		return err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}

	if err := l.fs.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return err
	}
	if err := l.fs.WriteFile(l.path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("write %s: %w", l.path, err)
	}
	return nil
}

func csvRow(r Record) []string {
	return []string{
		strconv.FormatFloat(r.Elapsed.Seconds(), 'f', 3, 64),
		strconv.FormatFloat(r.Distance, 'f', 2, 64),
		r.Reason.Label(),
		r.TriggerKind.String(),
		r.SensorName,
		r.WeatherPreset,
		r.Comment,
		strconv.FormatUint(r.SessionID, 10),
		strconv.Itoa(r.FramesWritten),
		r.ID.String(),
	}
}

// WriteCSV writes records in the cc.csv layout, header first.
func WriteCSV(w io.Writer, records []Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return err
	}
	for _, r := range records {
		if err := cw.Write(csvRow(r)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// ReadCSVLog parses a cc.csv file into rows keyed by header name.
func ReadCSVLog(fs fsutil.FileSystem, path string) ([]map[string]string, error) {
	data, err := fs.ReadFile(path)
	if err != nil {
		return nil, err
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	header := rows[0]
	out := make([]map[string]string, 0, len(rows)-1)
	for _, row := range rows[1:] {
		m := make(map[string]string, len(header))
		for i, h := range header {
			if i < len(row) {
				m[h] = row[i]
			}
		}
		out = append(out, m)
	}
	return out, nil
}
