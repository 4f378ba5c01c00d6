package incident

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/cornercase/internal/control"
	"github.com/banshee-data/cornercase/internal/monitoring"
	"github.com/banshee-data/cornercase/internal/recorder"
	"github.com/banshee-data/cornercase/internal/timeutil"
)

var logf = monitoring.Component("lifecycle")

// ErrInvalidTransition is returned for an operation the current state does
// not allow.
var ErrInvalidTransition = errors.New("invalid incident transition")

// State of the incident lifecycle.
type State int

const (
	Idle State = iota
	Suspected
	Committing
	RollingBack
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Suspected:
		return "suspected"
	case Committing:
		return "committing"
	case RollingBack:
		return "rolling_back"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *State) UnmarshalText(b []byte) error {
	for _, st := range []State{Idle, Suspected, Committing, RollingBack} {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown lifecycle state %q", b)
}

// Cancel policies.
const (
	CancelRollback = "rollback"
	CancelPreserve = "preserve"
)

// Buffer is the part of capture.Buffer the lifecycle drives.
type Buffer interface {
	Freeze()
	Reset()
	DrainToStorage(sessionID uint64) (int, error)
}

// Recorder is the part of recorder.IncidentRecorder the lifecycle drives.
type Recorder interface {
	Start(sessionID uint64) error
	Stop() error
	Discard(sessionID uint64) error
}

// Odometer is reset when an incident is committed and read when a queued
// trigger is replayed, e.g. *control.Odometer.
type Odometer interface {
	Reset()
	Distance() float64
}

// Options configures a Lifecycle.
type Options struct {
	Buffer   Buffer
	Recorder Recorder
	Reviewer Reviewer
	Store    RecordStore
	Clock    timeutil.Clock
	Odometer Odometer

	SensorName    string
	WeatherPreset string
	CancelPolicy  string

	// MaxPending bounds triggers queued while a review is open; extra
	// triggers are dropped and counted.
	MaxPending int

	// FirstSessionID is the session the recorder starts under.
	FirstSessionID uint64
}

// Outcome describes one completed review.
type Outcome struct {
	Verdict       Verdict              `json:"verdict"`
	Trigger       control.TriggerEvent `json:"trigger"`
	SessionID     uint64               `json:"session_id"`
	NextSessionID uint64               `json:"next_session_id"`
	Record        *Record              `json:"record,omitempty"`
	FramesWritten int                  `json:"frames_written"`
	DrainErr      error                `json:"-"`
	// Closed is set when the decision channel closed without a value.
	Closed        bool                 `json:"closed"`
}

// Stats counts lifecycle activity.
type Stats struct {
	State            State   `json:"state"`
	SessionID        uint64  `json:"session_id"`
	Queued           int     `json:"queued"`
	DroppedTriggers  uint64  `json:"dropped_triggers"`
	Committed        uint64  `json:"committed"`
	RolledBack       uint64  `json:"rolled_back"`
	Cancelled        uint64  `json:"cancelled"`
	ElapsedWindowSec float64 `json:"elapsed_window_s"`
}

// Lifecycle moves a trigger through review to a committed record or a
// rollback. Trigger, Poll, Await and Close must be called from one
// goroutine; Stats and State may be read from any.
type Lifecycle struct {
	opts  Options
	clock timeutil.Clock

	mu          sync.Mutex
	started     bool
	state       State
	sessionID   uint64
	windowStart time.Time
	current     control.TriggerEvent
	request     ReviewRequest
	decisions   <-chan Decision
	queue       []control.TriggerEvent

	dropped    uint64
	committed  uint64
	rolledBack uint64
	cancelled  uint64
}

// NewLifecycle validates opts and returns an idle lifecycle. Call Start to
// begin recording.
func NewLifecycle(opts Options) (*Lifecycle, error) {
	if opts.Buffer == nil || opts.Recorder == nil || opts.Reviewer == nil || opts.Store == nil {
		return nil, errors.New("lifecycle needs a buffer, recorder, reviewer and store")
	}
	switch opts.CancelPolicy {
	case "":
		opts.CancelPolicy = CancelRollback
	case CancelRollback, CancelPreserve:
	default:
		return nil, fmt.Errorf("unknown cancel policy %q", opts.CancelPolicy)
	}
	if opts.MaxPending < 0 {
		opts.MaxPending = 0
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Lifecycle{opts: opts, clock: clock, sessionID: opts.FirstSessionID}, nil
}

// Start begins recording the first session and opens the elapsed window.
func (l *Lifecycle) Start() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.started {
		return fmt.Errorf("start: %w", ErrInvalidTransition)
	}
	if err := l.opts.Recorder.Start(l.sessionID); err != nil {
		return err
	}
	l.started = true
	l.windowStart = l.clock.Now()
	return nil
}

// Trigger reports an intervention. In Idle it freezes the buffer, stops the
// recorder and opens a review; otherwise the trigger is queued or, when the
// queue is full, dropped.
func (l *Lifecycle) Trigger(ctx context.Context, ev control.TriggerEvent) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Idle {
		if len(l.queue) >= l.opts.MaxPending {
			l.dropped++
			return nil
		}
		l.queue = append(l.queue, ev)
		return nil
	}
	return l.suspectLocked(ctx, ev)
}

func (l *Lifecycle) suspectLocked(ctx context.Context, ev control.TriggerEvent) error {
	l.opts.Buffer.Freeze()
	if err := l.opts.Recorder.Stop(); err != nil && !errors.Is(err, recorder.ErrNoActiveSession) {
		logf("stop recorder for session %d: %v", l.sessionID, err)
	}

	at := ev.At
	if at.IsZero() {
		at = l.clock.Now()
	}
	req := ReviewRequest{
		ID:            uuid.New(),
		SessionID:     l.sessionID,
		Kind:          ev.Kind,
		At:            at,
		Elapsed:       at.Sub(l.windowStart),
		Distance:      ev.Distance,
		SensorName:    l.opts.SensorName,
		WeatherPreset: l.opts.WeatherPreset,
	}

	l.state = Suspected
	l.current = ev
	l.request = req

	ch, err := l.opts.Reviewer.Request(ctx, req)
	if err != nil {
		// nobody can answer; release the freeze as if cancelled
		closed := make(chan Decision)
		close(closed)
		l.decisions = closed
		return fmt.Errorf("request review: %w", err)
	}
	l.decisions = ch
	logf("%s trigger at tick %d opened review for session %d", ev.Kind, ev.Tick, l.sessionID)
	return nil
}

// Poll applies a decision if one is ready, without blocking. It returns a
// nil Outcome when nothing was applied.
func (l *Lifecycle) Poll(ctx context.Context) (*Outcome, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.state != Suspected {
		return nil, nil
	}
	select {
	case d, ok := <-l.decisions:
		return l.applyLocked(ctx, d, ok)
	default:
		return nil, nil
	}
}

// Await blocks until the open review is decided or ctx ends.
func (l *Lifecycle) Await(ctx context.Context) (*Outcome, error) {
	l.mu.Lock()
	if l.state != Suspected {
		l.mu.Unlock()
		return nil, fmt.Errorf("await in state %s: %w", l.state, ErrInvalidTransition)
	}
	ch := l.decisions
	l.mu.Unlock()

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case d, ok := <-ch:
		l.mu.Lock()
		defer l.mu.Unlock()
		return l.applyLocked(ctx, d, ok)
	}
}

func (l *Lifecycle) applyLocked(ctx context.Context, d Decision, ok bool) (*Outcome, error) {
	out := &Outcome{Verdict: d.Verdict, Trigger: l.current, SessionID: l.sessionID}
	if !ok {
		out.Verdict = Cancel
		out.Closed = true
	}

	var err error
	switch out.Verdict {
	case Commit:
		err = l.commitLocked(ctx, d, out)
	case Rollback:
		err = l.rollbackLocked()
		l.rolledBack++
	default:
		l.cancelled++
		if l.opts.CancelPolicy == CancelPreserve {
			err = l.preserveLocked()
		} else {
			err = l.rollbackLocked()
		}
	}
	out.NextSessionID = l.sessionID

	l.state = Idle
	l.decisions = nil
	l.request = ReviewRequest{}
	logf("session %d %s; recording session %d", out.SessionID, out.Verdict, l.sessionID)

	if len(l.queue) > 0 {
		next := l.restampLocked(l.queue[0])
		l.queue = l.queue[1:]
		if qerr := l.suspectLocked(ctx, next); qerr != nil {
			err = errors.Join(err, qerr)
		}
	}
	return out, err
}

func (l *Lifecycle) commitLocked(ctx context.Context, d Decision, out *Outcome) error {
	l.state = Committing
	var errs []error

	n, derr := l.opts.Buffer.DrainToStorage(l.sessionID)
	out.FramesWritten = n
	if derr != nil {
		out.DrainErr = derr
		logf("drain session %d: %v (%d pairs written)", l.sessionID, derr, n)
	}

	rec := Record{
		ID:            uuid.New(),
		SessionID:     l.sessionID,
		Elapsed:       l.request.Elapsed,
		Distance:      l.current.Distance,
		Reason:        d.Reason,
		TriggerKind:   l.current.Kind,
		SensorName:    l.opts.SensorName,
		WeatherPreset: l.opts.WeatherPreset,
		Comment:       d.Comment,
		FramesWritten: n,
		CreatedAt:     l.clock.Now(),
	}
	if err := l.opts.Store.AppendIncident(ctx, rec); err != nil {
		errs = append(errs, fmt.Errorf("persist incident: %w", err))
	}
	out.Record = &rec

	l.sessionID++
	if err := l.opts.Recorder.Start(l.sessionID); err != nil {
		errs = append(errs, err)
	}
	if l.opts.Odometer != nil {
		l.opts.Odometer.Reset()
	}
	l.windowStart = l.clock.Now()
	l.opts.Buffer.Reset()
	l.committed++
	return errors.Join(errs...)
}

func (l *Lifecycle) rollbackLocked() error {
	l.state = RollingBack
	var errs []error
	if err := l.opts.Recorder.Discard(l.sessionID); err != nil {
		errs = append(errs, err)
	}
	if err := l.opts.Recorder.Start(l.sessionID); err != nil {
		errs = append(errs, err)
	}
	l.opts.Buffer.Reset()
	return errors.Join(errs...)
}

// restampLocked moves a queued trigger into the window that opened after
// the previous verdict; its original time and distance belong to the old one.
func (l *Lifecycle) restampLocked(ev control.TriggerEvent) control.TriggerEvent {
	ev.At = l.clock.Now()
	if l.opts.Odometer != nil {
		ev.Distance = l.opts.Odometer.Distance()
	}
	return ev
}

// preserveLocked keeps the stopped artifact and moves on to the next id.
func (l *Lifecycle) preserveLocked() error {
	l.state = RollingBack
	l.sessionID++
	err := l.opts.Recorder.Start(l.sessionID)
	l.opts.Buffer.Reset()
	return err
}

// Close stops recording and deletes the artifact of the in-progress
// session. Pending triggers are dropped.
func (l *Lifecycle) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.started {
		return nil
	}
	l.started = false

	var errs []error
	if err := l.opts.Recorder.Stop(); err != nil && !errors.Is(err, recorder.ErrNoActiveSession) {
		errs = append(errs, err)
	}
	if err := l.opts.Recorder.Discard(l.sessionID); err != nil {
		errs = append(errs, err)
	}
	l.opts.Buffer.Reset()
	l.state = Idle
	l.decisions = nil
	l.queue = nil
	return errors.Join(errs...)
}

// State returns the current state.
func (l *Lifecycle) State() State {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// SessionID returns the session currently recorded (or under review).
func (l *Lifecycle) SessionID() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sessionID
}

// Elapsed returns the time since the last commit or since Start.
func (l *Lifecycle) Elapsed() time.Duration {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.windowStart.IsZero() {
		return 0
	}
	return l.clock.Since(l.windowStart)
}

// Stats returns a snapshot of the lifecycle counters.
func (l *Lifecycle) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	var elapsed time.Duration
	if !l.windowStart.IsZero() {
		elapsed = l.clock.Since(l.windowStart)
	}
	return Stats{
		State:            l.state,
		SessionID:        l.sessionID,
		Queued:           len(l.queue),
		DroppedTriggers:  l.dropped,
		Committed:        l.committed,
		RolledBack:       l.rolledBack,
		Cancelled:        l.cancelled,
		ElapsedWindowSec: elapsed.Seconds(),
	}
}
