// Package db persists committed incidents and pedal traces in sqlite.
package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/banshee-data/cornercase/internal/control"
	"github.com/banshee-data/cornercase/internal/incident"
)

type DB struct {
	*sql.DB
	path string
}

// pragmas applied to every pooled connection
const pragmas = "?_pragma=busy_timeout(5000)" +
	"&_pragma=journal_mode(WAL)" +
	"&_pragma=synchronous(NORMAL)" +
	"&_pragma=temp_store(MEMORY)"

// NewDB opens (creating if needed) the database at path and migrates it to
// the latest schema.
func NewDB(path string) (*DB, error) {
	db, err := Open(path)
	if err != nil {
		return nil, err
	}
	if err := db.MigrateUp(MigrationsFS()); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

// Open opens the database at path without touching its schema.
func Open(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", "file:"+path+pragmas)
	if err != nil {
		return nil, err
	}
	return &DB{DB: sqlDB, path: path}, nil
}

// Path returns the database file path.
func (db *DB) Path() string {
	return db.path
}

// AppendIncident stores a committed incident. It satisfies
// incident.RecordStore.
func (db *DB) AppendIncident(ctx context.Context, r incident.Record) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO incidents (
			incident_id, session_id, elapsed_ns, distance_m, reason, trigger_kind,
			sensor_name, weather_preset, comment, frames_written, created_unix_ns
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID.String(), int64(r.SessionID), int64(r.Elapsed), r.Distance, r.Reason.String(),
		r.TriggerKind.String(), r.SensorName, r.WeatherPreset, r.Comment, r.FramesWritten,
		r.CreatedAt.UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("insert incident %s: %w", r.ID, err)
	}
	return nil
}

// Incidents returns committed incidents, newest first. A limit <= 0
// returns all of them.
func (db *DB) Incidents(ctx context.Context, limit int) ([]incident.Record, error) {
	q := `SELECT incident_id, session_id, elapsed_ns, distance_m, reason, trigger_kind,
			sensor_name, weather_preset, comment, frames_written, created_unix_ns
		FROM incidents ORDER BY created_unix_ns DESC, session_id DESC`
	args := []any{}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []incident.Record
	for rows.Next() {
		r, err := scanIncident(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// Incident returns one incident by id.
func (db *DB) Incident(ctx context.Context, id uuid.UUID) (incident.Record, error) {
	row := db.QueryRowContext(ctx,
		`SELECT incident_id, session_id, elapsed_ns, distance_m, reason, trigger_kind,
			sensor_name, weather_preset, comment, frames_written, created_unix_ns
		FROM incidents WHERE incident_id = ?`, id.String())
	return scanIncident(row)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanIncident(s scanner) (incident.Record, error) {
	var (
		r                           incident.Record
		id, reason, kind            string
		session, elapsed, createdNs int64
	)
	if err := s.Scan(&id, &session, &elapsed, &r.Distance, &reason, &kind,
		&r.SensorName, &r.WeatherPreset, &r.Comment, &r.FramesWritten, &createdNs); err != nil {
		return r, err
	}

	var err error
	if r.ID, err = uuid.Parse(id); err != nil {
		return r, fmt.Errorf("incident id %q: %w", id, err)
	}
	if r.Reason, err = incident.ParseReason(reason); err != nil {
		return r, err
	}
	if r.TriggerKind, err = control.ParseTriggerKind(kind); err != nil {
		return r, err
	}
	r.SessionID = uint64(session)
	r.Elapsed = time.Duration(elapsed)
	r.CreatedAt = time.Unix(0, createdNs).UTC()
	return r, nil
}
