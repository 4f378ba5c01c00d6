package recorder

import (
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/banshee-data/cornercase/internal/fsutil"
	"github.com/banshee-data/cornercase/internal/monitoring"
)

var logf = monitoring.Component("recorder")

var (
	// ErrSessionAlreadyActive is returned by Start while a session is
	// recording, and by Discard for the session being recorded.
	ErrSessionAlreadyActive = errors.New("recording session already active")

	// ErrNoActiveSession is returned by Stop when nothing is recording.
	ErrNoActiveSession = errors.New("no active recording session")
)

// LogDir is the directory below the output root that holds scene
// recordings.
const LogDir = "00_log"

// RecordingSession is the recorder's view of the current session.
type RecordingSession struct {
	SessionID uint64 `json:"session_id"`
	Active    bool   `json:"active"`
}

// IncidentRecorder runs one scene recording per incident session on top of
// a RecordingService. Methods are safe for concurrent use but are expected
// to be called from the control loop.
type IncidentRecorder struct {
	svc  RecordingService
	fs   fsutil.FileSystem
	root string

	mu      sync.Mutex
	session RecordingSession
	dropped uint64
}

// NewIncidentRecorder returns an idle recorder whose artifacts live under
// <root>/00_log.
func NewIncidentRecorder(svc RecordingService, fs fsutil.FileSystem, root string) *IncidentRecorder {
	return &IncidentRecorder{svc: svc, fs: fs, root: root}
}

// ArtifactPath returns where the recording for sessionID is kept.
func (r *IncidentRecorder) ArtifactPath(sessionID uint64) string {
	return filepath.Join(r.root, LogDir, fmt.Sprintf("scene_recording_%d.log", sessionID))
}

// Start begins recording sessionID.
func (r *IncidentRecorder) Start(sessionID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session.Active {
		return fmt.Errorf("start session %d: %w (session %d)", sessionID, ErrSessionAlreadyActive, r.session.SessionID)
	}
	if err := r.svc.Begin(r.ArtifactPath(sessionID)); err != nil {
		return fmt.Errorf("start session %d: %w", sessionID, err)
	}
	r.session = RecordingSession{SessionID: sessionID, Active: true}
	logf("recording session %d", sessionID)
	return nil
}

// Stop ends the active session, leaving its artifact in place.
func (r *IncidentRecorder) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.session.Active {
		return ErrNoActiveSession
	}
	r.session.Active = false
	if err := r.svc.End(); err != nil {
		return fmt.Errorf("stop session %d: %w", r.session.SessionID, err)
	}
	logf("stopped session %d", r.session.SessionID)
	return nil
}

// Discard deletes the artifact of sessionID. A missing artifact is not an
// error; the session being recorded cannot be discarded.
func (r *IncidentRecorder) Discard(sessionID uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.session.Active && r.session.SessionID == sessionID {
		return fmt.Errorf("discard session %d: %w", sessionID, ErrSessionAlreadyActive)
	}
	if err := r.fs.RemoveAll(r.ArtifactPath(sessionID)); err != nil {
		return fmt.Errorf("discard session %d: %w", sessionID, err)
	}
	logf("discarded session %d", sessionID)
	return nil
}

// Observe forwards a sample to the active session. Samples arriving while
// idle are dropped.
func (r *IncidentRecorder) Observe(s Sample) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.session.Active {
		r.dropped++
		return nil
	}
	return r.svc.Record(s)
}

// Session returns the current session state.
func (r *IncidentRecorder) Session() RecordingSession {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.session
}

// Dropped returns how many samples arrived while no session was active.
func (r *IncidentRecorder) Dropped() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.dropped
}
