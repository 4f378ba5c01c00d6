package main

import (
	"context"
	"encoding/json"
	"net"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cornercase/internal/api"
	"github.com/banshee-data/cornercase/internal/config"
	"github.com/banshee-data/cornercase/internal/fsutil"
	"github.com/banshee-data/cornercase/internal/incident"
	"github.com/banshee-data/cornercase/internal/monitoring"
	"github.com/banshee-data/cornercase/internal/recorder"
	"github.com/banshee-data/cornercase/internal/testutil"
)

func init() {
	monitoring.SetLogger(nil)
}

func testConfig(t *testing.T) *config.RunConfig {
	t.Helper()
	dir := t.TempDir()
	cfg := config.EmptyRunConfig()
	cfg.OutputDir = testutil.Ptr(filepath.Join(dir, "output"))
	cfg.DBPath = testutil.Ptr(filepath.Join(dir, "cornercase.db"))
	cfg.FPS = testutil.Ptr(50)
	cfg.SecondsBeforeEvent = testutil.Ptr(1.0)
	cfg.Stride = testutil.Ptr(1)
	return cfg
}

func TestDaemonDevRun(t *testing.T) {
	cfg := testConfig(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d, err := newDaemon(ctx, cfg, true)
	require.NoError(t, err)
	require.NotNil(t, d.producer, "dev mode produces synthetic frames")
	require.NotNil(t, d.override)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- d.run(ctx, ln) }()

	url := "http://" + ln.Addr().String() + "/api/status"
	var status api.Status
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return false
		}
		if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
			return false
		}
		return status.Drive.Tick > 5 && status.Buffer.Len > 0
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, d.runID, status.RunID)
	assert.Equal(t, cfg.Capacity(), status.Buffer.Capacity)
	assert.Equal(t, incident.Idle, status.Lifecycle.State)
	assert.Equal(t, uint64(firstSessionID), status.Lifecycle.SessionID)
	assert.True(t, fsutil.OSFileSystem{}.Exists(
		filepath.Join(cfg.GetOutputDir(), recorder.LogDir, "scene_recording_1.log")))
	assert.Zero(t, status.Drive.SteerTriggers+status.Drive.BrakeTriggers, "idle wheels never trigger")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("daemon did not stop")
	}

	fs := fsutil.OSFileSystem{}
	root := cfg.GetOutputDir()
	assert.True(t, fs.Exists(filepath.Join(root, incident.CasesDir, "experimental_setup.json")))
	data, err := fs.ReadFile(filepath.Join(root, recorder.LogDir, recorder.RecordingTimeFile))
	require.NoError(t, err)
	assert.Regexp(t, `^\d+\n$`, string(data))

	runs, err := d.db.Runs(context.Background())
	assert.Error(t, err, "database is closed after run")
	assert.Nil(t, runs)
}

func TestDaemonBadConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.FrameFormat = testutil.Ptr("gif")
	_, err := newDaemon(context.Background(), cfg, true)
	assert.Error(t, err)

	cfg = testConfig(t)
	cfg.WheelMap = testutil.Ptr(filepath.Join(t.TempDir(), "missing.toml"))
	_, err = newDaemon(context.Background(), cfg, true)
	assert.Error(t, err)
}
