package recorder

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"sort"
	"sync"

	"github.com/banshee-data/cornercase/internal/fsutil"
)

// SceneReplayer reads samples back from a SceneLog artifact.
type SceneReplayer struct {
	fs       fsutil.FileSystem
	basePath string
	header   LogHeader
	index    []IndexEntry

	mu           sync.Mutex
	current      uint64
	currentChunk int
	chunkData    []byte
}

// OpenSceneLog opens the artifact at basePath for replay.
func OpenSceneLog(fs fsutil.FileSystem, basePath string) (*SceneReplayer, error) {
	r := &SceneReplayer{fs: fs, basePath: basePath, currentChunk: -1}

	headerData, err := fs.ReadFile(filepath.Join(basePath, "header.json"))
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if err := json.Unmarshal(headerData, &r.header); err != nil {
		return nil, fmt.Errorf("failed to parse header: %w", err)
	}

	indexData, err := fs.ReadFile(filepath.Join(basePath, "index.bin"))
	if err != nil {
		return nil, fmt.Errorf("failed to read index: %w", err)
	}
	rd := bytes.NewReader(indexData)
	r.index = make([]IndexEntry, 0, r.header.TotalSamples)
	for {
		var e IndexEntry
		if err := binary.Read(rd, binary.LittleEndian, &e); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("failed to parse index: %w", err)
		}
		r.index = append(r.index, e)
	}
	return r, nil
}

// Header returns the log header.
func (r *SceneReplayer) Header() LogHeader {
	return r.header
}

// Len returns the number of indexed samples.
func (r *SceneReplayer) Len() int {
	return len(r.index)
}

// Seek positions the replayer at sample i.
func (r *SceneReplayer) Seek(i uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if i >= uint64(len(r.index)) {
		return fmt.Errorf("sample index out of range: %d >= %d", i, len(r.index))
	}
	r.current = i
	return nil
}

// SeekToTime positions the replayer at the first sample at or after atNs,
// or at the last sample if atNs is beyond the log.
func (r *SceneReplayer) SeekToTime(atNs int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i := sort.Search(len(r.index), func(i int) bool { return r.index[i].AtNs >= atNs })
	if i == len(r.index) && i > 0 {
		i--
	}
	r.current = uint64(i)
}

// Next reads the current sample and advances. It returns io.EOF after the
// last sample.
func (r *SceneReplayer) Next() (Sample, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.current >= uint64(len(r.index)) {
		return Sample{}, io.EOF
	}
	entry := r.index[r.current]

	if int(entry.ChunkID) != r.currentChunk {
		data, err := r.fs.ReadFile(chunkPath(r.basePath, int(entry.ChunkID)))
		if err != nil {
			return Sample{}, fmt.Errorf("failed to read chunk: %w", err)
		}
		r.chunkData = data
		r.currentChunk = int(entry.ChunkID)
	}

	offset := entry.Offset
	if offset+4 > uint32(len(r.chunkData)) {
		return Sample{}, fmt.Errorf("invalid sample offset %d", offset)
	}
	n := binary.LittleEndian.Uint32(r.chunkData[offset:])
	offset += 4
	if offset+n > uint32(len(r.chunkData)) {
		return Sample{}, fmt.Errorf("invalid sample length %d", n)
	}

	var s Sample
	if err := json.Unmarshal(r.chunkData[offset:offset+n], &s); err != nil {
		return Sample{}, fmt.Errorf("failed to deserialize sample: %w", err)
	}
	r.current++
	return s, nil
}
