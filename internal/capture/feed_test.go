package capture

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/cornercase/internal/fsutil"
	"github.com/banshee-data/cornercase/internal/timeutil"
)

func TestFeed_DropsWhenFull(t *testing.T) {
	b := newTestBuffer(t, 8, 1, fsutil.NewMemoryFileSystem())
	f := NewFeed(b, 2)

	assert.True(t, f.Submit(testPair(0)))
	assert.True(t, f.Submit(testPair(1)))
	assert.False(t, f.Submit(testPair(2)))

	st := f.Stats()
	assert.Equal(t, uint64(3), st.Submitted)
	assert.Equal(t, uint64(1), st.Dropped)
	assert.Equal(t, uint64(0), st.Delivered)
}

func TestFeed_RunDelivers(t *testing.T) {
	b := newTestBuffer(t, 8, 1, fsutil.NewMemoryFileSystem())
	f := NewFeed(b, 16)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	errc := make(chan error, 1)
	go func() { errc <- f.Run(ctx) }()

	for i := uint64(0); i < 5; i++ {
		require.True(t, f.Submit(testPair(i)))
	}
	assert.Eventually(t, func() bool { return f.Stats().Delivered == 5 }, time.Second, time.Millisecond)
	assert.Equal(t, 5, b.Len())

	f.Close()
	f.Close()
	assert.NoError(t, <-errc)
	assert.False(t, f.Submit(testPair(6)))
}

type recordingSubmitter struct {
	mu    sync.Mutex
	pairs []FramePair
}

func (r *recordingSubmitter) Submit(p FramePair) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pairs = append(r.pairs, p)
	return true
}

func (r *recordingSubmitter) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.pairs)
}

func TestSyntheticProducer_Next(t *testing.T) {
	p := &SyntheticProducer{Width: 8, Height: 4}
	a, b := p.Next(), p.Next()

	assert.Equal(t, uint64(0), a.Sequence)
	assert.Equal(t, uint64(1), b.Sequence)
	_, err := a.Processed.Image()
	assert.NoError(t, err)
	_, err = a.Raw.Image()
	assert.NoError(t, err)
	assert.NotEqual(t, a.Raw.Pix, b.Raw.Pix)
}

func TestSyntheticProducer_Run(t *testing.T) {
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	p := &SyntheticProducer{Width: 2, Height: 2, FPS: 20, Clock: clock}
	sink := &recordingSubmitter{}

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() { errc <- p.Run(ctx, sink) }()

	assert.Eventually(t, func() bool {
		clock.Advance(50 * time.Millisecond)
		return sink.count() >= 3
	}, time.Second, time.Millisecond)

	cancel()
	assert.ErrorIs(t, <-errc, context.Canceled)
}
