// Package wheel reads steering wheel and pedal positions from a serial
// bridge. Each device reports one line per poll:
//
//	<axis0>,<axis1>,...[;<buttons>]
//
// where axes are floats in the device range and buttons is a string of
// 0/1 characters. Lines starting with '#' are ignored.
package wheel

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"

	"go.bug.st/serial"

	"github.com/banshee-data/cornercase/internal/control"
	"github.com/banshee-data/cornercase/internal/monitoring"
)

var logf = monitoring.Component("wheel")

var ErrMalformedReport = errors.New("malformed wheel report")

// Port is the minimal interface needed for a serial port.
type Port interface {
	io.Reader
	io.Closer
}

// Opener opens a serial port at path with the given mode.
type Opener func(path string, mode *serial.Mode) (Port, error)

// SerialOpener opens a real port with go.bug.st/serial.
func SerialOpener(path string, mode *serial.Mode) (Port, error) {
	return serial.Open(path, mode)
}

// Report is one decoded device line.
type Report struct {
	Axes    []float64
	Buttons []bool
}

// ParseReport decodes a report line.
func ParseReport(line string) (Report, error) {
	axesPart, buttonPart, hasButtons := strings.Cut(strings.TrimSpace(line), ";")
	if axesPart == "" {
		return Report{}, fmt.Errorf("%w: no axes", ErrMalformedReport)
	}

	var r Report
	for _, field := range strings.Split(axesPart, ",") {
		v, err := strconv.ParseFloat(strings.TrimSpace(field), 64)
		if err != nil {
			return Report{}, fmt.Errorf("%w: axis %q", ErrMalformedReport, field)
		}
		r.Axes = append(r.Axes, v)
	}
	if hasButtons {
		for _, c := range strings.TrimSpace(buttonPart) {
			switch c {
			case '0':
				r.Buttons = append(r.Buttons, false)
			case '1':
				r.Buttons = append(r.Buttons, true)
			default:
				return Report{}, fmt.Errorf("%w: button %q", ErrMalformedReport, c)
			}
		}
	}
	return r, nil
}

// Stats counts lines seen by a Device.
type Stats struct {
	Reports   uint64 `json:"reports"`
	Malformed uint64 `json:"malformed"`
	Short     uint64 `json:"short"`
}

// Device tracks the latest axes of one wheel.
type Device struct {
	name string
	port Port
	axes AxisMap

	mu       sync.Mutex
	latest   control.Axes
	seen     bool
	reverse  bool
	pressed  [2]bool
	stats    Stats
	closing  bool
	closeErr error
	closed   sync.Once
}

// NewDevice wraps an open port.
func NewDevice(name string, port Port, m AxisMap) *Device {
	return &Device{name: name, port: port, axes: m}
}

// Open opens path with opts through open and wraps it in a Device.
func Open(name, path string, opts PortOptions, m AxisMap, open Opener) (*Device, error) {
	mode, err := opts.SerialMode()
	if err != nil {
		return nil, err
	}
	if open == nil {
		open = SerialOpener
	}
	port, err := open(path, mode)
	if err != nil {
		return nil, fmt.Errorf("open %s wheel at %s: %w", name, path, err)
	}
	return NewDevice(name, port, m), nil
}

// Name returns the driver role this device belongs to.
func (d *Device) Name() string { return d.name }

// Monitor reads reports until ctx is done, the port hits EOF, or Close is
// called.
func (d *Device) Monitor(ctx context.Context) error {
	scan := bufio.NewScanner(d.port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// scanning blocks, so it runs apart from the ctx select below
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			if d.isClosing() {
				return nil
			}
			return err

		case line, ok := <-lineChan:
			if !ok {
				return nil
			}
			if d.isClosing() {
				return nil
			}
			d.apply(line)
		}
	}
}

func (d *Device) apply(line string) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return
	}
	r, err := ParseReport(line)

	d.mu.Lock()
	defer d.mu.Unlock()
	if err != nil {
		d.stats.Malformed++
		if d.stats.Malformed == 1 {
			logf("%s: %v", d.name, err)
		}
		return
	}
	if len(r.Axes) <= d.axes.maxAxis() {
		d.stats.Short++
		return
	}
	d.stats.Reports++
	d.latest = control.Axes{
		Steer:    r.Axes[d.axes.SteeringWheel],
		Throttle: r.Axes[d.axes.Throttle],
		Brake:    r.Axes[d.axes.Brake],
	}
	d.seen = true

	for i, idx := range [2]int{d.axes.ReverseLeft, d.axes.ReverseRight} {
		down := idx < len(r.Buttons) && r.Buttons[idx]
		if down && !d.pressed[i] {
			d.reverse = !d.reverse
		}
		d.pressed[i] = down
	}
}

// Axes returns the latest raw reading. It reports false until the first
// complete report arrives.
func (d *Device) Axes() (control.Axes, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.latest, d.seen
}

// Reverse reports whether reverse gear is selected. Either reverse button
// toggles it.
func (d *Device) Reverse() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.reverse
}

// Stats returns the report counters.
func (d *Device) Stats() Stats {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.stats
}

func (d *Device) isClosing() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closing
}

// Close stops Monitor and closes the port. Safe to call more than once.
func (d *Device) Close() error {
	d.closed.Do(func() {
		d.mu.Lock()
		d.closing = true
		d.mu.Unlock()
		d.closeErr = d.port.Close()
	})
	return d.closeErr
}
