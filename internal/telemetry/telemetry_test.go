package telemetry

import (
	"bytes"
	"context"
	"errors"
	"image/png"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cornercase/internal/control"
	"github.com/banshee-data/cornercase/internal/db"
	"github.com/banshee-data/cornercase/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

type memPedalStore struct {
	batches [][]db.PedalSample
	err     error
}

func (m *memPedalStore) InsertPedalSamples(_ context.Context, s []db.PedalSample) error {
	if m.err != nil {
		return m.err
	}
	m.batches = append(m.batches, append([]db.PedalSample(nil), s...))
	return nil
}

var (
	released = control.Axes{Steer: 0, Throttle: 1, Brake: 1}
	floored  = control.Axes{Steer: 0, Throttle: -1, Brake: 1}
)

func TestNormalise(t *testing.T) {
	rest, err := control.ShapePedalRaw(1)
	require.NoError(t, err)
	full, err := control.ShapePedalRaw(-1)
	require.NoError(t, err)

	assert.Equal(t, 0.0, Normalise(rest))
	assert.Equal(t, 1.0, Normalise(full))
	assert.Equal(t, 0.47, Normalise(0.45))
}

func TestPedalTrackerBatches(t *testing.T) {
	store := &memPedalStore{}
	run := uuid.New()
	tr := NewPedalTracker(store, run, 3)
	ctx := context.Background()
	at := time.Unix(10, 0)

	for i := 0; i < 7; i++ {
		var override *control.Axes
		if i%2 == 0 {
			override = &floored
		}
		require.NoError(t, tr.Track(ctx, uint64(i), at.Add(time.Duration(i)*50*time.Millisecond), released, override))
	}
	require.Len(t, store.batches, 2)
	assert.Equal(t, TrackerStats{Pending: 1, Written: 6}, tr.Stats())

	first := store.batches[0][0]
	assert.Equal(t, run, first.RunID)
	assert.Equal(t, uint64(0), first.Tick)
	assert.Equal(t, 0.0, first.ThrottlePrimary)
	require.NotNil(t, first.ThrottleOverride)
	assert.Equal(t, 1.0, *first.ThrottleOverride)
	assert.Nil(t, store.batches[0][1].ThrottleOverride)

	require.NoError(t, tr.Flush(ctx))
	require.NoError(t, tr.Flush(ctx))
	assert.Len(t, store.batches, 3)
	assert.Equal(t, uint64(7), tr.Stats().Written)
}

func TestPedalTrackerSkipsUnshapeable(t *testing.T) {
	store := &memPedalStore{}
	tr := NewPedalTracker(store, uuid.New(), 1)
	ctx := context.Background()

	// -0.7*r + 1.4 <= 0 for r >= 2
	require.NoError(t, tr.Track(ctx, 1, time.Now(), control.Axes{Throttle: 2, Brake: 1}, nil))
	require.NoError(t, tr.Track(ctx, 2, time.Now(), released, &control.Axes{Throttle: 1, Brake: 3}))
	assert.Empty(t, store.batches)
	assert.Equal(t, uint64(2), tr.Stats().Skipped)
}

func TestPedalTrackerStoreFailure(t *testing.T) {
	boom := errors.New("disk full")
	store := &memPedalStore{err: boom}
	tr := NewPedalTracker(store, uuid.New(), 2)
	ctx := context.Background()

	require.NoError(t, tr.Track(ctx, 1, time.Now(), released, nil))
	assert.ErrorIs(t, tr.Track(ctx, 2, time.Now(), released, nil), boom)
	assert.Equal(t, TrackerStats{}, tr.Stats(), "failed batch is dropped")
}

func sampleTrace(override bool) []db.PedalSample {
	run := uuid.New()
	var out []db.PedalSample
	for i := 0; i < 20; i++ {
		s := db.PedalSample{
			RunID:           run,
			Tick:            uint64(i),
			AtNs:            int64(i) * int64(50*time.Millisecond),
			ThrottlePrimary: float64(i) / 20,
			BrakePrimary:    0,
		}
		if override {
			b := float64(20-i) / 20
			s.BrakeOverride = &b
			zero := 0.0
			s.ThrottleOverride = &zero
		}
		out = append(out, s)
	}
	return out
}

func TestPedalSeries(t *testing.T) {
	assert.Nil(t, PedalSeries(nil))

	single := PedalSeries(sampleTrace(false))
	require.Len(t, single, 2)
	assert.Equal(t, "throttle primary", single[0].Name)
	assert.Equal(t, 0.0, single[0].X[0])
	assert.InDelta(t, 0.95, single[0].X[19], 1e-9)

	both := PedalSeries(sampleTrace(true))
	require.Len(t, both, 4)
	assert.Equal(t, "brake override", both[3].Name)
	assert.Equal(t, 1.0, both[3].Y[0])
}

func TestWritePedalPlot(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePedalPlot(&buf, sampleTrace(true), "png"))
	img, err := png.Decode(&buf)
	require.NoError(t, err)
	assert.Greater(t, img.Bounds().Dx(), 0)

	assert.ErrorIs(t, WritePedalPlot(&buf, nil, "png"), ErrNoSamples)
}

func TestWritePedalChart(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WritePedalChart(&buf, sampleTrace(true), "run 1"))
	html := buf.String()
	assert.Contains(t, html, "Driving behaviour tracking")
	assert.Contains(t, html, "brake override")

	buf.Reset()
	require.NoError(t, WritePedalChart(&buf, sampleTrace(false), ""))
	assert.NotContains(t, buf.String(), "brake override")

	assert.ErrorIs(t, WritePedalChart(&buf, nil, ""), ErrNoSamples)
}

func TestSummarise(t *testing.T) {
	assert.Equal(t, Summary{}, Summarise(nil))

	on := 0.8
	off := 0.0
	brakes := []float64{0, 0.1, 0.5, 0.3, 0.02, 0.2, 0, 0}
	var samples []db.PedalSample
	for i, b := range brakes {
		s := db.PedalSample{Tick: uint64(i), AtNs: int64(i) * int64(50*time.Millisecond), ThrottlePrimary: 0.5, BrakePrimary: b}
		switch i {
		case 2, 3:
			s.BrakeOverride = &on
		case 6:
			s.BrakeOverride = &off
		}
		samples = append(samples, s)
	}

	got := Summarise(samples)
	assert.Equal(t, 8, got.Samples)
	assert.Equal(t, 350*time.Millisecond, got.Duration)
	assert.InDelta(t, 0.5, got.MeanThrottle, 1e-12)
	assert.InDelta(t, 1.12/8, got.MeanBrake, 1e-12)
	assert.Equal(t, 0.5, got.MaxBrake)
	assert.Equal(t, 2, got.BrakeOnsets, "0.1 is below the press threshold, 0.3 is still the first press")
	assert.Equal(t, 2, got.OverrideTicks)
	assert.Equal(t, 1, got.OverrideBrakeOnsets)
}
