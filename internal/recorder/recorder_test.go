package recorder

import (
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cornercase/internal/control"
	"github.com/banshee-data/cornercase/internal/fsutil"
	"github.com/banshee-data/cornercase/internal/monitoring"
	"github.com/banshee-data/cornercase/internal/timeutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func newTestRecorder(t *testing.T) (*IncidentRecorder, *fsutil.MemoryFileSystem) {
	t.Helper()
	fs := fsutil.NewMemoryFileSystem()
	clock := timeutil.NewMockClock(time.Unix(1700000000, 0))
	return NewIncidentRecorder(NewSceneLog(fs, clock, 4), fs, "/out"), fs
}

func sample(tick uint64) Sample {
	return Sample{
		Tick:     tick,
		AtNs:     int64(tick) * int64(50*time.Millisecond),
		Command:  control.VehicleCommand{Steer: 0.1, Throttle: 0.5},
		Primary:  control.Axes{Steer: 0.1, Throttle: 0.5},
		Position: control.Vec3{X: float64(tick)},
		Distance: float64(tick),
	}
}

func TestIncidentRecorder_Lifecycle(t *testing.T) {
	r, fs := newTestRecorder(t)

	require.NoError(t, r.Start(0))
	assert.Equal(t, RecordingSession{SessionID: 0, Active: true}, r.Session())
	assert.ErrorIs(t, r.Start(1), ErrSessionAlreadyActive)

	for i := uint64(0); i < 3; i++ {
		require.NoError(t, r.Observe(sample(i)))
	}
	assert.ErrorIs(t, r.Discard(0), ErrSessionAlreadyActive)

	require.NoError(t, r.Stop())
	assert.ErrorIs(t, r.Stop(), ErrNoActiveSession)
	assert.True(t, fs.Exists(filepath.Join(r.ArtifactPath(0), "header.json")))

	// idle samples are dropped, not errors
	require.NoError(t, r.Observe(sample(9)))
	assert.Equal(t, uint64(1), r.Dropped())

	require.NoError(t, r.Discard(0))
	assert.False(t, fs.Exists(r.ArtifactPath(0)))
	assert.False(t, fs.Exists(filepath.Join(r.ArtifactPath(0), "header.json")))

	// discarding again is fine
	require.NoError(t, r.Discard(0))

	require.NoError(t, r.Start(0))
	assert.True(t, r.Session().Active)
}

func TestIncidentRecorder_ArtifactPath(t *testing.T) {
	r, _ := newTestRecorder(t)
	assert.Equal(t, "/out/00_log/scene_recording_7.log", r.ArtifactPath(7))
}

func TestSceneLog_RoundTrip(t *testing.T) {
	r, fs := newTestRecorder(t)
	require.NoError(t, r.Start(2))

	var want []Sample
	for i := uint64(0); i < 10; i++ {
		s := sample(i)
		if i%3 == 0 {
			o := control.Axes{Brake: 0.4}
			s.Override = &o
		}
		want = append(want, s)
		require.NoError(t, r.Observe(s))
	}
	require.NoError(t, r.Stop())

	// chunk size 4 splits ten samples over three chunks
	chunks, err := fs.List(filepath.Join(r.ArtifactPath(2), "chunks"))
	require.NoError(t, err)
	assert.Equal(t, []string{"chunk_0000.bin", "chunk_0001.bin", "chunk_0002.bin"}, chunks)

	rp, err := OpenSceneLog(fs, r.ArtifactPath(2))
	require.NoError(t, err)
	h := rp.Header()
	assert.Equal(t, uint64(10), h.TotalSamples)
	assert.Equal(t, int64(0), h.StartNs)
	assert.Equal(t, want[9].AtNs, h.EndNs)
	assert.Equal(t, 10, rp.Len())

	var got []Sample
	for {
		s, err := rp.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		got = append(got, s)
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("replayed samples mismatch (-want +got):\n%s", diff)
	}
}

func TestSceneReplayer_Seek(t *testing.T) {
	r, fs := newTestRecorder(t)
	require.NoError(t, r.Start(0))
	for i := uint64(0); i < 6; i++ {
		require.NoError(t, r.Observe(sample(i)))
	}
	require.NoError(t, r.Stop())

	rp, err := OpenSceneLog(fs, r.ArtifactPath(0))
	require.NoError(t, err)

	require.NoError(t, rp.Seek(4))
	s, err := rp.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(4), s.Tick)
	assert.Error(t, rp.Seek(6))

	rp.SeekToTime(sample(2).AtNs + 1)
	s, err = rp.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(3), s.Tick)

	rp.SeekToTime(1 << 62)
	s, err = rp.Next()
	require.NoError(t, err)
	assert.Equal(t, uint64(5), s.Tick)
}

func TestSceneLog_Errors(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	l := NewSceneLog(fs, nil, 0)

	assert.Error(t, l.Record(sample(0)))
	assert.Error(t, l.End())

	require.NoError(t, l.Begin("/a"))
	assert.Error(t, l.Begin("/b"))
	require.NoError(t, l.End())

	_, err := OpenSceneLog(fs, "/missing")
	assert.Error(t, err)
}

func TestIncidentRecorder_StartFailure(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	faulty := fsutil.NewFaultyFileSystem(mem, 0)
	r := NewIncidentRecorder(NewSceneLog(faulty, nil, 2), faulty, "/out")

	require.NoError(t, r.Start(0))
	// the first chunk cannot be created
	assert.ErrorIs(t, r.Observe(sample(0)), fsutil.ErrInjected)
	assert.Error(t, r.Stop())
	assert.False(t, r.Session().Active)
}

func TestAppendRecordingTime(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	require.NoError(t, AppendRecordingTime(fs, "/out", 90*time.Second+400*time.Millisecond))
	require.NoError(t, AppendRecordingTime(fs, "/out", 12*time.Second))

	data, err := fs.ReadFile(filepath.Join("/out", LogDir, RecordingTimeFile))
	require.NoError(t, err)
	assert.Equal(t, "90\n12\n", string(data))
}
