package recorder

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sync"

	"github.com/banshee-data/cornercase/internal/fsutil"
	"github.com/banshee-data/cornercase/internal/timeutil"
)

// DefaultChunkSize is the number of samples per chunk file.
const DefaultChunkSize = 1000

const logVersion = "1.0"

// LogHeader describes a finished scene log.
type LogHeader struct {
	Version      string `json:"version"`
	CreatedNs    int64  `json:"created_ns"`
	TotalSamples uint64 `json:"total_samples"`
	StartNs      int64  `json:"start_ns"`
	EndNs        int64  `json:"end_ns"`
	ChunkSize    int    `json:"chunk_size"`
}

// IndexEntry locates one sample inside the chunk files.
type IndexEntry struct {
	Tick    uint64
	AtNs    int64
	ChunkID uint32
	Offset  uint32
}

var errNotRecording = errors.New("scene log is not recording")

// SceneLog is the built-in RecordingService. Each artifact is a directory
// holding header.json, index.bin and chunks/chunk_NNNN.bin files of
// length-prefixed JSON samples.
type SceneLog struct {
	fs        fsutil.FileSystem
	clock     timeutil.Clock
	chunkSize int

	mu           sync.Mutex
	path         string
	open         bool
	header       LogHeader
	index        []IndexEntry
	currentChunk int
	chunk        io.WriteCloser
	chunkOffset  uint32
	count        uint64
}

// NewSceneLog creates a SceneLog writing through fs.
func NewSceneLog(fs fsutil.FileSystem, clock timeutil.Clock, chunkSize int) *SceneLog {
	if chunkSize < 1 {
		chunkSize = DefaultChunkSize
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	return &SceneLog{fs: fs, clock: clock, chunkSize: chunkSize}
}

// Begin opens a new artifact directory at path.
func (l *SceneLog) Begin(path string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.open {
		return fmt.Errorf("scene log already recording to %s", l.path)
	}
	if err := l.fs.MkdirAll(filepath.Join(path, "chunks"), 0o755); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}

	l.path = path
	l.open = true
	l.header = LogHeader{
		Version:   logVersion,
		CreatedNs: l.clock.Now().UnixNano(),
		ChunkSize: l.chunkSize,
	}
	l.index = l.index[:0]
	l.currentChunk = -1
	l.chunk = nil
	l.chunkOffset = 0
	l.count = 0
	return nil
}

// Record appends a sample to the open artifact.
func (l *SceneLog) Record(s Sample) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.open {
		return errNotRecording
	}

	if l.count == 0 {
		l.header.StartNs = s.AtNs
	}
	l.header.EndNs = s.AtNs

	chunkIdx := int(l.count / uint64(l.chunkSize))
	if chunkIdx != l.currentChunk {
		if err := l.rotateChunk(chunkIdx); err != nil {
			return err
		}
	}

	data, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("failed to serialize sample: %w", err)
	}

	lenBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(lenBuf, uint32(len(data)))
	if _, err := l.chunk.Write(lenBuf); err != nil {
		return fmt.Errorf("failed to write sample length: %w", err)
	}
	if _, err := l.chunk.Write(data); err != nil {
		return fmt.Errorf("failed to write sample data: %w", err)
	}

	l.index = append(l.index, IndexEntry{
		Tick:    s.Tick,
		AtNs:    s.AtNs,
		ChunkID: uint32(chunkIdx),
		Offset:  l.chunkOffset,
	})
	l.chunkOffset += uint32(4 + len(data))
	l.count++
	return nil
}

func (l *SceneLog) rotateChunk(chunkIdx int) error {
	if l.chunk != nil {
		if err := l.chunk.Close(); err != nil {
			return err
		}
	}
	w, err := l.fs.Create(chunkPath(l.path, chunkIdx))
	if err != nil {
		return fmt.Errorf("failed to create chunk file: %w", err)
	}
	l.chunk = w
	l.currentChunk = chunkIdx
	l.chunkOffset = 0
	return nil
}

// End closes the current chunk and writes the header and index.
func (l *SceneLog) End() error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if !l.open {
		return errNotRecording
	}
	l.open = false

	if l.chunk != nil {
		if err := l.chunk.Close(); err != nil {
			return fmt.Errorf("failed to close chunk: %w", err)
		}
		l.chunk = nil
	}

	l.header.TotalSamples = l.count
	headerData, err := json.MarshalIndent(l.header, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal header: %w", err)
	}
	if err := l.fs.WriteFile(filepath.Join(l.path, "header.json"), headerData, 0o644); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	var idx bytes.Buffer
	for _, e := range l.index {
		if err := binary.Write(&idx, binary.LittleEndian, e); err != nil {
			return err
		}
	}
	if err := l.fs.WriteFile(filepath.Join(l.path, "index.bin"), idx.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write index: %w", err)
	}
	return nil
}

// Count returns the number of samples recorded in the open artifact.
func (l *SceneLog) Count() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.count
}

func chunkPath(base string, idx int) string {
	return filepath.Join(base, "chunks", fmt.Sprintf("chunk_%04d.bin", idx))
}
