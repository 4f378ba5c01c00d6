package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// PedalSample is one tick of normalised pedal positions. Override values
// are nil in single-driver runs.
type PedalSample struct {
	RunID            uuid.UUID
	Tick             uint64
	AtNs             int64
	ThrottlePrimary  float64
	BrakePrimary     float64
	ThrottleOverride *float64
	BrakeOverride    *float64
}

// Run is one daemon run as recorded at startup.
type Run struct {
	ID        uuid.UUID       `json:"id"`
	StartedAt time.Time       `json:"started_at"`
	Setup     json.RawMessage `json:"setup"`
}

// RecordRun registers a run and its experimental setup.
func (db *DB) RecordRun(ctx context.Context, id uuid.UUID, started time.Time, setup any) error {
	data, err := json.Marshal(setup)
	if err != nil {
		return fmt.Errorf("marshal run setup: %w", err)
	}
	_, err = db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_unix_ns, setup_json) VALUES (?, ?, ?)`,
		id.String(), started.UnixNano(), string(data))
	return err
}

// Runs lists recorded runs, newest first.
func (db *DB) Runs(ctx context.Context) ([]Run, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT run_id, started_unix_ns, setup_json FROM runs ORDER BY started_unix_ns DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			id    string
			ns    int64
			setup string
		)
		if err := rows.Scan(&id, &ns, &setup); err != nil {
			return nil, err
		}
		rid, err := uuid.Parse(id)
		if err != nil {
			return nil, fmt.Errorf("run id %q: %w", id, err)
		}
		out = append(out, Run{ID: rid, StartedAt: time.Unix(0, ns).UTC(), Setup: json.RawMessage(setup)})
	}
	return out, rows.Err()
}

// InsertPedalSamples writes a batch in one transaction.
func (db *DB) InsertPedalSamples(ctx context.Context, samples []PedalSample) error {
	if len(samples) == 0 {
		return nil
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT OR REPLACE INTO pedal_samples (
			run_id, tick, at_ns, throttle_primary, brake_primary, throttle_override, brake_override
		) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return err
	}
	defer stmt.Close()

	for _, s := range samples {
		if _, err := stmt.ExecContext(ctx, s.RunID.String(), int64(s.Tick), s.AtNs,
			s.ThrottlePrimary, s.BrakePrimary, nullFloat(s.ThrottleOverride), nullFloat(s.BrakeOverride)); err != nil {
			return fmt.Errorf("insert pedal sample %d: %w", s.Tick, err)
		}
	}
	return tx.Commit()
}

// PedalTrace returns the samples of a run in tick order. A zero run id
// selects the most recent run.
func (db *DB) PedalTrace(ctx context.Context, runID uuid.UUID) ([]PedalSample, error) {
	if runID == uuid.Nil {
		var id string
		err := db.QueryRowContext(ctx,
			`SELECT run_id FROM pedal_samples ORDER BY at_ns DESC LIMIT 1`).Scan(&id)
		if err == sql.ErrNoRows {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if runID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
	}

	rows, err := db.QueryContext(ctx,
		`SELECT tick, at_ns, throttle_primary, brake_primary, throttle_override, brake_override
		FROM pedal_samples WHERE run_id = ? ORDER BY tick`, runID.String())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PedalSample
	for rows.Next() {
		s := PedalSample{RunID: runID}
		var tick int64
		var to, bo sql.NullFloat64
		if err := rows.Scan(&tick, &s.AtNs, &s.ThrottlePrimary, &s.BrakePrimary, &to, &bo); err != nil {
			return nil, err
		}
		s.Tick = uint64(tick)
		if to.Valid {
			s.ThrottleOverride = &to.Float64
		}
		if bo.Valid {
			s.BrakeOverride = &bo.Float64
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func nullFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
