// Package telemetry tracks per-tick pedal positions of both drivers and
// renders them as plots.
package telemetry

import (
	"context"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/cornercase/internal/control"
	"github.com/banshee-data/cornercase/internal/db"
	"github.com/banshee-data/cornercase/internal/monitoring"
)

var logf = monitoring.Component("telemetry")

// Pedal calibration of the G29: the unclamped pedal curve spans
// [-0.0495, 1.0136] between rest and full travel.
const (
	pedalOffset = 0.049480200779342
	pedalSpan   = 1.063121089866
)

// Normalise maps an unclamped shaped pedal value onto [0,1], rounded to
// two decimals.
func Normalise(v float64) float64 {
	return math.Round((v+pedalOffset)/pedalSpan*100) / 100
}

// PedalStore persists pedal samples. *db.DB implements it.
type PedalStore interface {
	InsertPedalSamples(ctx context.Context, samples []db.PedalSample) error
}

// PedalTracker batches samples and flushes them to a PedalStore every
// flushEvery samples.
type PedalTracker struct {
	store      PedalStore
	runID      uuid.UUID
	flushEvery int

	mu      sync.Mutex
	pending []db.PedalSample
	written uint64
	skipped uint64
}

// NewPedalTracker creates a tracker for one run.
func NewPedalTracker(store PedalStore, runID uuid.UUID, flushEvery int) *PedalTracker {
	if flushEvery < 1 {
		flushEvery = 1
	}
	return &PedalTracker{
		store:      store,
		runID:      runID,
		flushEvery: flushEvery,
		pending:    make([]db.PedalSample, 0, flushEvery),
	}
}

// Track records one tick from raw readings. Override is nil when only one
// driver is attached. Ticks whose pedals cannot be shaped are skipped.
func (t *PedalTracker) Track(ctx context.Context, tick uint64, at time.Time, primary control.Axes, override *control.Axes) error {
	s := db.PedalSample{RunID: t.runID, Tick: tick, AtNs: at.UnixNano()}
	var ok bool
	if s.ThrottlePrimary, s.BrakePrimary, ok = normalisedPedals(primary); !ok {
		t.skip()
		return nil
	}
	if override != nil {
		throttle, brake, ok := normalisedPedals(*override)
		if !ok {
			t.skip()
			return nil
		}
		s.ThrottleOverride, s.BrakeOverride = &throttle, &brake
	}

	t.mu.Lock()
	t.pending = append(t.pending, s)
	full := len(t.pending) >= t.flushEvery
	t.mu.Unlock()

	if full {
		return t.Flush(ctx)
	}
	return nil
}

func (t *PedalTracker) skip() {
	t.mu.Lock()
	t.skipped++
	t.mu.Unlock()
}

func normalisedPedals(raw control.Axes) (throttle, brake float64, ok bool) {
	th, err := control.ShapePedalRaw(raw.Throttle)
	if err != nil {
		return 0, 0, false
	}
	br, err := control.ShapePedalRaw(raw.Brake)
	if err != nil {
		return 0, 0, false
	}
	return Normalise(th), Normalise(br), true
}

// Flush writes pending samples. On failure the batch is dropped so a
// broken store cannot grow memory without bound.
func (t *PedalTracker) Flush(ctx context.Context) error {
	t.mu.Lock()
	batch := t.pending
	t.pending = make([]db.PedalSample, 0, t.flushEvery)
	t.mu.Unlock()

	if len(batch) == 0 {
		return nil
	}
	if err := t.store.InsertPedalSamples(ctx, batch); err != nil {
		logf("dropping %d pedal samples: %v", len(batch), err)
		return err
	}
	t.mu.Lock()
	t.written += uint64(len(batch))
	t.mu.Unlock()
	return nil
}

// TrackerStats counts samples through a PedalTracker.
type TrackerStats struct {
	Pending int    `json:"pending"`
	Written uint64 `json:"written"`
	Skipped uint64 `json:"skipped"`
}

func (t *PedalTracker) Stats() TrackerStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	return TrackerStats{Pending: len(t.pending), Written: t.written, Skipped: t.skipped}
}
