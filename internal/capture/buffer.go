package capture

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"path/filepath"
	"sync"

	"github.com/banshee-data/cornercase/internal/fsutil"
	"github.com/banshee-data/cornercase/internal/monitoring"
)

var logf = monitoring.Component("capture")

var (
	// ErrStorage wraps every failure to persist drained frames.
	ErrStorage = errors.New("frame storage failed")

	// ErrBufferInvariant reports that the processed and raw rings have
	// diverged in length.
	ErrBufferInvariant = errors.New("capture rings out of step")
)

// Drain directories below the buffer root.
const (
	ProcessedDir = "10_inference"
	RawDir       = "01_cam"
)

// slot is a ring entry tagged with the tick it was admitted on.
type slot[T any] struct {
	tick  uint64
	frame T
}

// Options configures a Buffer.
type Options struct {
	// Capacity is the number of pairs kept; see config.RunConfig.Capacity.
	Capacity int
	// Stride admits one pair every Stride ticks.
	Stride int
	// Root is the directory the drain writes below.
	Root    string
	FS      fsutil.FileSystem
	Encoder FrameEncoder
}

// Stats is a point-in-time snapshot of buffer counters.
type Stats struct {
	Capacity      int    `json:"capacity"`
	Len           int    `json:"len"`
	Frozen        bool   `json:"frozen"`
	Admitted      uint64 `json:"admitted"`
	DroppedFrozen uint64 `json:"dropped_frozen"`
	Evicted       uint64 `json:"evicted"`
	// Tick counts every Admit call and is not zeroed by Reset.
	Tick uint64 `json:"tick"`
}

// Buffer holds the most recent frame pairs in two rings of equal length,
// one for processed frames and one for raw frames. It is safe for
// concurrent use; Admit never blocks on I/O.
type Buffer struct {
	mu        sync.Mutex
	processed *ring[slot[ProcessedFrame]]
	raw       *ring[slot[RawFrame]]
	frozen    bool

	capacity int
	stride   uint64
	tick     uint64 // advanced by every Admit call

	admitted      uint64
	droppedFrozen uint64
	evicted       uint64

	root string
	fs   fsutil.FileSystem
	enc  FrameEncoder
}

// NewBuffer validates opts and returns an empty, unfrozen buffer.
func NewBuffer(opts Options) (*Buffer, error) {
	if opts.Capacity < 1 {
		return nil, fmt.Errorf("capture capacity must be at least 1, got %d", opts.Capacity)
	}
	if opts.Stride < 1 {
		return nil, fmt.Errorf("capture stride must be at least 1, got %d", opts.Stride)
	}
	if opts.FS == nil {
		opts.FS = fsutil.OSFileSystem{}
	}
	if opts.Encoder == nil {
		opts.Encoder = PNGEncoder{}
	}
	return &Buffer{
		processed: newRing[slot[ProcessedFrame]](opts.Capacity),
		raw:       newRing[slot[RawFrame]](opts.Capacity),
		capacity:  opts.Capacity,
		stride:    uint64(opts.Stride),
		root:      opts.Root,
		fs:        opts.FS,
		enc:       opts.Encoder,
	}, nil
}

// Admit offers one pair for the current tick and advances the tick counter.
// The pair is kept only when the buffer is not frozen and the tick falls on
// the stride. When full the oldest pair is evicted from both rings. Admit
// reports whether the pair was kept.
func (b *Buffer) Admit(pair FramePair) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	tick := b.tick
	b.tick++

	if b.frozen {
		b.droppedFrozen++
		return false
	}
	if tick%b.stride != 0 {
		return false
	}

	ep := b.processed.push(slot[ProcessedFrame]{tick: tick, frame: pair.Processed})
	er := b.raw.push(slot[RawFrame]{tick: tick, frame: pair.Raw})
	if ep || er {
		b.evicted++
	}
	b.admitted++
	b.checkInvariantLocked()
	return true
}

// Freeze stops admission until Reset.
func (b *Buffer) Freeze() {
	b.mu.Lock()
	b.frozen = true
	b.mu.Unlock()
}

// Frozen reports whether admission is currently stopped.
func (b *Buffer) Frozen() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.frozen
}

// Reset empties both rings and unfreezes. The tick counter keeps running so
// frame indices never repeat across sessions.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.processed.clear()
	b.raw.clear()
	b.frozen = false
}

// Len returns the number of pairs currently held.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.processed.len()
}

// Stats returns a snapshot of the buffer counters.
func (b *Buffer) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	return Stats{
		Capacity:      b.capacity,
		Len:           b.processed.len(),
		Frozen:        b.frozen,
		Admitted:      b.admitted,
		DroppedFrozen: b.droppedFrozen,
		Evicted:       b.evicted,
		Tick:          b.tick,
	}
}

// FrameIndices returns the index each held pair would be drained under,
// oldest first.
func (b *Buffer) FrameIndices() []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []uint64
	for _, s := range b.processed.all() {
		out = append(out, s.tick)
	}
	return out
}

// DrainToStorage writes every held pair, oldest first, to
// <root>/10_inference/cc_<id>/frame_<index>.<ext> and
// <root>/01_cam/cc_<id>/frame_<index>.<ext>, where index is the tick the
// pair was admitted on. With contiguous admission this equals
// next_strided_tick - stride*remaining, so the newest pair carries the most
// recent admitted tick.
//
// The buffer contents are left in place; callers Reset afterwards. On
// failure the number of pairs fully written so far is returned with an
// error wrapping ErrStorage.
func (b *Buffer) DrainToStorage(sessionID uint64) (int, error) {
	b.mu.Lock()
	b.checkInvariantLocked()
	processed := b.processed.all()
	raw := b.raw.all()
	b.mu.Unlock()

	if len(processed) == 0 {
		return 0, nil
	}

	cc := fmt.Sprintf("cc_%d", sessionID)
	procDir := filepath.Join(b.root, ProcessedDir, cc)
	rawDir := filepath.Join(b.root, RawDir, cc)
	for _, dir := range []string{procDir, rawDir} {
		if err := b.fs.MkdirAll(dir, 0o755); err != nil {
			return 0, fmt.Errorf("%w: create %s: %v", ErrStorage, dir, err)
		}
	}

	written := 0
	for i := range processed {
		name := fmt.Sprintf("frame_%d.%s", processed[i].tick, b.enc.Ext())

		pimg, err := processed[i].frame.Image()
		if err != nil {
			return written, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		if err := b.writeImage(filepath.Join(procDir, name), pimg); err != nil {
			return written, err
		}

		rimg, err := raw[i].frame.Image()
		if err != nil {
			return written, fmt.Errorf("%w: %v", ErrStorage, err)
		}
		if err := b.writeImage(filepath.Join(rawDir, name), rimg); err != nil {
			return written, err
		}
		written++
	}

	logf("drained %d pairs to %s", written, cc)
	return written, nil
}

func (b *Buffer) writeImage(path string, img image.Image) error {
	var buf bytes.Buffer
	if err := b.enc.Encode(&buf, img); err != nil {
		return fmt.Errorf("%w: encode %s: %v", ErrStorage, path, err)
	}
	if err := b.fs.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("%w: %w", ErrStorage, err)
	}
	return nil
}

// checkInvariantLocked restores equal ring lengths if they have diverged.
func (b *Buffer) checkInvariantLocked() {
	np, nr := b.processed.len(), b.raw.len()
	if np == nr {
		return
	}
	onInvariantViolation(fmt.Errorf("%w: processed=%d raw=%d", ErrBufferInvariant, np, nr))
	n := min(np, nr)
	b.processed.truncate(n)
	b.raw.truncate(n)
}
