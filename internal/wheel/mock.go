package wheel

import (
	"bytes"
	"context"
	"errors"
	"io"
	"sync"
	"time"
)

var errPortClosed = errors.New("serial port closed")

// TestablePort is a Port whose reads are fed by AddReadData. Reads block
// until data arrives or the port is closed.
type TestablePort struct {
	mu       sync.Mutex
	buf      bytes.Buffer
	readErr  error
	closed   bool
	readCond *sync.Cond
}

// NewTestablePort creates an empty TestablePort.
func NewTestablePort() *TestablePort {
	p := &TestablePort{}
	p.readCond = sync.NewCond(&p.mu)
	return p
}

// Read blocks until data, an injected error, or Close.
func (p *TestablePort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for !p.closed && p.readErr == nil && p.buf.Len() == 0 {
		p.readCond.Wait()
	}
	if p.buf.Len() > 0 {
		return p.buf.Read(b)
	}
	if p.readErr != nil {
		err := p.readErr
		p.readErr = nil
		return 0, err
	}
	return 0, errPortClosed
}

// AddReadData queues bytes for subsequent reads.
func (p *TestablePort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.buf.Write(data)
	p.readCond.Broadcast()
}

// FailRead makes the next read with no pending data return err.
func (p *TestablePort) FailRead(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.readErr = err
	p.readCond.Broadcast()
}

// Close wakes blocked readers.
func (p *TestablePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	p.readCond.Broadcast()
	return nil
}

// Closed reports whether Close was called.
func (p *TestablePort) Closed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

// IdleReport is a centred wheel with both pedals released.
const IdleReport = "0.0,0.0,1.0,1.0,0.0,0.0;000000"

// NewMockDevice returns a Device fed by a goroutine that writes line every
// interval until ctx is done. Used in dev mode when no wheel is attached.
func NewMockDevice(ctx context.Context, name, line string, interval time.Duration, m AxisMap) *Device {
	r, w := io.Pipe()
	go func() {
		defer w.Close()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			if _, err := io.WriteString(w, line+"\n"); err != nil {
				return
			}
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
		}
	}()
	logf("%s: using mock wheel", name)
	return NewDevice(name, r, m)
}
