package fsutil

import (
	"errors"
	"io"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOSFileSystem_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	fs := OSFileSystem{}

	sub := filepath.Join(dir, "01_cam", "cc_1")
	require.NoError(t, fs.MkdirAll(sub, 0o755))
	require.NoError(t, fs.WriteFile(filepath.Join(sub, "frame_10.png"), []byte("x"), 0o644))

	w, err := fs.Create(filepath.Join(sub, "frame_12.png"))
	require.NoError(t, err)
	_, err = io.WriteString(w, "yy")
	require.NoError(t, err)
	require.NoError(t, w.Close())

	names, err := fs.List(sub)
	require.NoError(t, err)
	assert.Equal(t, []string{"frame_10.png", "frame_12.png"}, names)

	data, err := fs.ReadFile(filepath.Join(sub, "frame_12.png"))
	require.NoError(t, err)
	assert.Equal(t, "yy", string(data))

	require.NoError(t, fs.RemoveAll(filepath.Join(dir, "01_cam")))
	assert.False(t, fs.Exists(sub))
}

func TestMemoryFileSystem_WriteListRemove(t *testing.T) {
	mfs := NewMemoryFileSystem()

	require.NoError(t, mfs.MkdirAll("/out/10_inference/cc_2", 0o755))
	require.NoError(t, mfs.WriteFile("/out/10_inference/cc_2/frame_4.png", []byte("a"), 0o644))
	require.NoError(t, mfs.WriteFile("/out/10_inference/cc_2/frame_2.png", []byte("b"), 0o644))

	assert.True(t, mfs.Exists("/out/10_inference"))
	names, err := mfs.List("/out/10_inference/cc_2")
	require.NoError(t, err)
	assert.Equal(t, []string{"frame_2.png", "frame_4.png"}, names)

	_, err = mfs.List("/missing")
	assert.Error(t, err)

	require.NoError(t, mfs.RemoveAll("/out/10_inference"))
	assert.False(t, mfs.Exists("/out/10_inference/cc_2/frame_4.png"))
	assert.False(t, mfs.Exists("/out/10_inference/cc_2"))
}

func TestMemoryFileSystem_CreateCommitsOnClose(t *testing.T) {
	mfs := NewMemoryFileSystem()

	w, err := mfs.Create("/log/header.json")
	require.NoError(t, err)
	_, _ = w.Write([]byte("{}"))

	data, err := mfs.ReadFile("/log/header.json")
	require.NoError(t, err)
	assert.Empty(t, data, "contents are not visible before Close")

	require.NoError(t, w.Close())
	data, err = mfs.ReadFile("/log/header.json")
	require.NoError(t, err)
	assert.Equal(t, "{}", string(data))
}

func TestFaultyFileSystem_Budget(t *testing.T) {
	ffs := NewFaultyFileSystem(NewMemoryFileSystem(), 2)

	require.NoError(t, ffs.WriteFile("/a", nil, 0o644))
	_, err := ffs.Create("/b")
	require.NoError(t, err)

	err = ffs.WriteFile("/c", nil, 0o644)
	assert.True(t, errors.Is(err, ErrInjected))
	_, err = ffs.Create("/d")
	assert.True(t, errors.Is(err, ErrInjected))

	assert.True(t, ffs.Exists("/a"))
	assert.False(t, ffs.Exists("/c"))
}

func TestFaultyFileSystem_Unlimited(t *testing.T) {
	ffs := NewFaultyFileSystem(NewMemoryFileSystem(), -1)
	for i := 0; i < 5; i++ {
		require.NoError(t, ffs.WriteFile("/x", []byte{byte(i)}, 0o644))
	}
}
