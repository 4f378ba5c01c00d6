// Package drive runs the control loop: each tick it reads both wheels,
// arbitrates them into one vehicle command, and feeds triggers and samples
// to the incident machinery.
package drive

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/banshee-data/cornercase/internal/control"
	"github.com/banshee-data/cornercase/internal/incident"
	"github.com/banshee-data/cornercase/internal/monitoring"
	"github.com/banshee-data/cornercase/internal/recorder"
	"github.com/banshee-data/cornercase/internal/timeutil"
)

var logf = monitoring.Component("drive")

// Released is a centred wheel with both pedals at rest, used until a
// device reports.
var Released = control.Axes{Steer: 0, Throttle: 1, Brake: 1}

// Source supplies the latest raw axes of one driver. *wheel.Device
// implements it.
type Source interface {
	Axes() (control.Axes, bool)
}

// Gearbox reports the selected gear. *wheel.Device implements it.
type Gearbox interface {
	Reverse() bool
}

// Lifecycle is the part of incident.Lifecycle the loop drives.
type Lifecycle interface {
	Trigger(ctx context.Context, ev control.TriggerEvent) error
	Poll(ctx context.Context) (*incident.Outcome, error)
}

// Observer receives one sample per tick. *recorder.IncidentRecorder
// implements it.
type Observer interface {
	Observe(s recorder.Sample) error
}

// PedalTracker receives raw readings per tick. *telemetry.PedalTracker
// implements it.
type PedalTracker interface {
	Track(ctx context.Context, tick uint64, at time.Time, primary control.Axes, override *control.Axes) error
}

// Options wires a Runner. Override, Gearbox, Pedals and OnOutcome are
// optional.
type Options struct {
	Primary   Source
	Override  Source
	Gearbox   Gearbox
	Arbiter   *control.Arbiter
	Vehicle   Vehicle
	Lifecycle Lifecycle
	Recorder  Observer
	Pedals    PedalTracker
	Odometer  *control.Odometer
	Clock     timeutil.Clock
	Interval  time.Duration
	OnOutcome func(incident.Outcome)
}

// Stats is a snapshot of the loop.
type Stats struct {
	Tick           uint64                 `json:"tick"`
	Distance       float64                `json:"distance_m"`
	Speed          float64                `json:"speed_mps"`
	Command        control.VehicleCommand `json:"command"`
	ArbiterState   control.ArbiterState   `json:"arbiter"`
	SteerTriggers  uint64                 `json:"steer_triggers"`
	BrakeTriggers  uint64                 `json:"brake_triggers"`
	ManualTriggers uint64                 `json:"manual_triggers"`
	ShapeErrors    uint64                 `json:"shape_errors"`
	Outcomes       uint64                 `json:"outcomes"`
}

// Runner owns the control goroutine.
type Runner struct {
	opts   Options
	clock  timeutil.Clock
	manual chan struct{}

	mu      sync.Mutex
	tick    uint64
	stats   Stats
	lastPos *control.Vec3
}

// NewRunner validates opts.
func NewRunner(opts Options) (*Runner, error) {
	if opts.Primary == nil || opts.Arbiter == nil || opts.Vehicle == nil || opts.Lifecycle == nil || opts.Recorder == nil {
		return nil, errors.New("runner needs a primary source, arbiter, vehicle, lifecycle and recorder")
	}
	if opts.Interval <= 0 {
		return nil, errors.New("runner interval must be positive")
	}
	if opts.Odometer == nil {
		opts.Odometer = &control.Odometer{}
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &Runner{opts: opts, clock: clock, manual: make(chan struct{}, 1)}, nil
}

// Run ticks every Interval until ctx is done.
func (r *Runner) Run(ctx context.Context) error {
	ticker := r.clock.NewTicker(r.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C():
			if err := r.Step(ctx, now); err != nil {
				logf("tick %d: %v", r.Stats().Tick, err)
			}
		}
	}
}

// ManualTrigger raises a brake trigger on the next tick. Presses while one
// is already pending are merged.
func (r *Runner) ManualTrigger() {
	select {
	case r.manual <- struct{}{}:
	default:
	}
}

// Step runs one tick at now. Shaping errors are counted and do not stop
// the tick; lifecycle errors are returned after the tick completes.
func (r *Runner) Step(ctx context.Context, now time.Time) error {
	r.mu.Lock()
	tick := r.tick
	r.tick++
	r.mu.Unlock()

	primary, ok := r.opts.Primary.Axes()
	if !ok {
		primary = Released
	}
	var override *control.Axes
	if r.opts.Override != nil {
		o, ok := r.opts.Override.Axes()
		if !ok {
			o = Released
		}
		override = &o
	}

	pos := r.opts.Vehicle.Position()
	distance := r.opts.Odometer.Next(pos)

	out, shapeErr := r.opts.Arbiter.Step(control.Inputs{
		Primary:  primary,
		Override: override,
		At:       now,
		Tick:     tick,
		Distance: distance,
	})

	reverse := r.opts.Gearbox != nil && r.opts.Gearbox.Reverse()
	var errs []error
	if err := r.opts.Vehicle.Apply(out.Command, reverse); err != nil {
		errs = append(errs, err)
	}

	sample := recorder.Sample{
		Tick:     tick,
		AtNs:     now.UnixNano(),
		Command:  out.Command,
		Primary:  out.Primary,
		Override: out.Override,
		Position: pos,
		Distance: distance,
	}
	if err := r.opts.Recorder.Observe(sample); err != nil {
		errs = append(errs, err)
	}
	if r.opts.Pedals != nil {
		if err := r.opts.Pedals.Track(ctx, tick, now, primary, override); err != nil {
			errs = append(errs, err)
		}
	}

	trigger := out.Trigger
	manual := false
	if trigger == nil {
		select {
		case <-r.manual:
			trigger = &control.TriggerEvent{Kind: control.TriggerBrake, At: now, Tick: tick, Distance: distance}
			manual = true
		default:
		}
	}
	if trigger != nil {
		if err := r.opts.Lifecycle.Trigger(ctx, *trigger); err != nil {
			errs = append(errs, err)
		}
	}

	outcome, err := r.opts.Lifecycle.Poll(ctx)
	if err != nil {
		errs = append(errs, err)
	}

	r.mu.Lock()
	r.stats.Tick = tick
	r.stats.Distance = r.opts.Odometer.Distance()
	if r.lastPos != nil {
		r.stats.Speed = pos.Sub(*r.lastPos).Norm() / r.opts.Interval.Seconds()
	}
	r.lastPos = &pos
	r.stats.Command = out.Command
	r.stats.ArbiterState = r.opts.Arbiter.State()
	if shapeErr != nil {
		r.stats.ShapeErrors++
		if r.stats.ShapeErrors == 1 {
			logf("tick %d: holding axes: %v", tick, shapeErr)
		}
	}
	switch {
	case manual:
		r.stats.ManualTriggers++
	case trigger != nil && trigger.Kind == control.TriggerSteer:
		r.stats.SteerTriggers++
	case trigger != nil:
		r.stats.BrakeTriggers++
	}
	if outcome != nil {
		r.stats.Outcomes++
	}
	r.mu.Unlock()

	if outcome != nil && r.opts.OnOutcome != nil {
		r.opts.OnOutcome(*outcome)
	}
	return errors.Join(errs...)
}

// Stats returns a snapshot of the loop.
func (r *Runner) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
