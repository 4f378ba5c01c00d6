package capture

import (
	"bytes"
	"fmt"
	"image/png"
	"path/filepath"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/tiff"

	"github.com/banshee-data/cornercase/internal/fsutil"
	"github.com/banshee-data/cornercase/internal/monitoring"
)

func init() {
	monitoring.SetLogger(nil)
}

func testPair(seq uint64) FramePair {
	return FramePair{
		Processed: ProcessedFrame{Width: 2, Height: 2, Pix: []uint8{1, 2, 3, uint8(seq)}},
		Raw:       RawFrame{Width: 2, Height: 2, Pix: bytes.Repeat([]uint8{uint8(seq), uint8(seq), uint8(seq), 0xff}, 4)},
		Sequence:  seq,
	}
}

func newTestBuffer(t *testing.T, capacity, stride int, fs fsutil.FileSystem) *Buffer {
	t.Helper()
	b, err := NewBuffer(Options{Capacity: capacity, Stride: stride, Root: "/out", FS: fs})
	require.NoError(t, err)
	return b
}

func sequences(b *Buffer) []uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []uint64
	for _, s := range b.raw.all() {
		out = append(out, uint64(s.frame.Pix[0]))
	}
	return out
}

func TestNewBuffer_Validation(t *testing.T) {
	_, err := NewBuffer(Options{Capacity: 0, Stride: 1})
	assert.ErrorContains(t, err, "capacity")
	_, err = NewBuffer(Options{Capacity: 1, Stride: 0})
	assert.ErrorContains(t, err, "stride")
}

func TestBuffer_KeepsMostRecent(t *testing.T) {
	b := newTestBuffer(t, 5, 1, fsutil.NewMemoryFileSystem())

	for i := uint64(0); i < 12; i++ {
		assert.True(t, b.Admit(testPair(i)))
	}

	assert.Equal(t, 5, b.Len())
	if diff := cmp.Diff([]uint64{7, 8, 9, 10, 11}, sequences(b)); diff != "" {
		t.Errorf("ring contents mismatch (-want +got):\n%s", diff)
	}
	st := b.Stats()
	assert.Equal(t, uint64(12), st.Admitted)
	assert.Equal(t, uint64(7), st.Evicted)
	assert.Equal(t, uint64(12), st.Tick)
}

func TestBuffer_Stride(t *testing.T) {
	b := newTestBuffer(t, 10, 3, fsutil.NewMemoryFileSystem())

	var kept []uint64
	for i := uint64(0); i < 10; i++ {
		if b.Admit(testPair(i)) {
			kept = append(kept, i)
		}
	}
	assert.Equal(t, []uint64{0, 3, 6, 9}, kept)
	assert.Equal(t, []uint64{0, 3, 6, 9}, b.FrameIndices())
}

func TestBuffer_FreezeDropsUntilReset(t *testing.T) {
	b := newTestBuffer(t, 4, 1, fsutil.NewMemoryFileSystem())
	b.Admit(testPair(0))
	b.Freeze()
	assert.True(t, b.Frozen())

	for i := uint64(1); i <= 3; i++ {
		assert.False(t, b.Admit(testPair(i)))
	}
	assert.Equal(t, 1, b.Len())
	assert.Equal(t, uint64(3), b.Stats().DroppedFrozen)

	b.Reset()
	assert.False(t, b.Frozen())
	assert.Equal(t, 0, b.Len())
	// the tick counter survived the reset
	assert.True(t, b.Admit(testPair(4)))
	assert.Equal(t, []uint64{4}, b.FrameIndices())
	assert.Equal(t, uint64(5), b.Stats().Tick)
}

func TestBuffer_DrainEmpty(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	b := newTestBuffer(t, 3, 1, fs)

	n, err := b.DrainToStorage(0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.False(t, fs.Exists(filepath.Join("/out", ProcessedDir, "cc_0")))
}

func TestBuffer_DrainScenario(t *testing.T) {
	// fps=10, seconds_before_event=2, stride=2 gives capacity 11
	fs := fsutil.NewMemoryFileSystem()
	b := newTestBuffer(t, 11, 2, fs)

	for tick := uint64(0); tick <= 30; tick++ {
		b.Admit(testPair(tick))
	}
	b.Freeze()

	n, err := b.DrainToStorage(3)
	require.NoError(t, err)
	assert.Equal(t, 11, n)

	var want []string
	for idx := 10; idx <= 30; idx += 2 {
		want = append(want, fmt.Sprintf("frame_%d.png", idx))
	}
	// List sorts lexically
	wantSorted := append([]string(nil), want...)
	sort.Strings(wantSorted)

	for _, dir := range []string{ProcessedDir, RawDir} {
		got, err := fs.List(filepath.Join("/out", dir, "cc_3"))
		require.NoError(t, err)
		if diff := cmp.Diff(wantSorted, got); diff != "" {
			t.Errorf("%s listing mismatch (-want +got):\n%s", dir, diff)
		}
	}

	data, err := fs.ReadFile(filepath.Join("/out", RawDir, "cc_3", "frame_30.png"))
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	r, _, _, _ := img.At(0, 0).RGBA()
	assert.Equal(t, uint32(30)*0x101, r)
}

func TestBuffer_DrainStorageFailure(t *testing.T) {
	mem := fsutil.NewMemoryFileSystem()
	// first pair writes both files, second pair fails on its raw frame
	faulty := fsutil.NewFaultyFileSystem(mem, 3)
	b := newTestBuffer(t, 4, 1, faulty)
	for i := uint64(0); i < 4; i++ {
		b.Admit(testPair(i))
	}
	b.Freeze()

	n, err := b.DrainToStorage(1)
	assert.Equal(t, 1, n)
	assert.ErrorIs(t, err, ErrStorage)
	assert.ErrorIs(t, err, fsutil.ErrInjected)

	b.Reset()
	assert.Equal(t, 0, b.Len())
	assert.False(t, b.Frozen())
}

func TestBuffer_DrainRejectsMalformedFrame(t *testing.T) {
	b := newTestBuffer(t, 2, 1, fsutil.NewMemoryFileSystem())
	bad := testPair(0)
	bad.Raw.Pix = bad.Raw.Pix[:3]
	b.Admit(bad)

	n, err := b.DrainToStorage(0)
	assert.Equal(t, 0, n)
	assert.ErrorIs(t, err, ErrStorage)
}

func TestBuffer_DrainTIFF(t *testing.T) {
	fs := fsutil.NewMemoryFileSystem()
	b, err := NewBuffer(Options{Capacity: 2, Stride: 1, Root: "/out", FS: fs, Encoder: TIFFEncoder{}})
	require.NoError(t, err)
	b.Admit(testPair(9))

	n, err := b.DrainToStorage(0)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	data, err := fs.ReadFile(filepath.Join("/out", ProcessedDir, "cc_0", "frame_0.tiff"))
	require.NoError(t, err)
	img, err := tiff.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	assert.Equal(t, 2, img.Bounds().Dx())
}

func TestNewEncoder(t *testing.T) {
	for format, ext := range map[string]string{"": "png", "png": "png", "tiff": "tiff"} {
		enc, err := NewEncoder(format)
		require.NoError(t, err)
		assert.Equal(t, ext, enc.Ext())
	}
	_, err := NewEncoder("jpeg")
	assert.Error(t, err)
}
