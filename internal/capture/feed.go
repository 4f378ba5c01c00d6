package capture

import (
	"context"
	"sync"
	"sync/atomic"
)

// Admitter is the consuming side of a Feed. *Buffer implements it.
type Admitter interface {
	Admit(FramePair) bool
}

// FeedStats counts pairs through a Feed.
type FeedStats struct {
	Submitted uint64 `json:"submitted"`
	Dropped   uint64 `json:"dropped"`
	Delivered uint64 `json:"delivered"`
}

// Feed hands frame pairs from producer goroutines to a Buffer. Producers
// hold only the Feed, never the Buffer. Submit never blocks: when the
// queue is full the pair is dropped and counted.
type Feed struct {
	ch   chan FramePair
	dst  Admitter
	once sync.Once
	done chan struct{}

	submitted atomic.Uint64
	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// NewFeed creates a Feed with room for depth pending pairs.
func NewFeed(dst Admitter, depth int) *Feed {
	if depth < 1 {
		depth = 1
	}
	return &Feed{
		ch:   make(chan FramePair, depth),
		dst:  dst,
		done: make(chan struct{}),
	}
}

// Submit queues a pair without blocking. It reports false when the pair
// was dropped because the queue was full or the feed was closed.
func (f *Feed) Submit(p FramePair) bool {
	select {
	case <-f.done:
		f.dropped.Add(1)
		return false
	default:
	}

	f.submitted.Add(1)
	select {
	case f.ch <- p:
		return true
	default:
		f.dropped.Add(1)
		return false
	}
}

// Run delivers queued pairs to the buffer until ctx is cancelled or Close
// is called.
func (f *Feed) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		case p := <-f.ch:
			f.dst.Admit(p)
			f.delivered.Add(1)
		}
	}
}

// Close stops Run and makes further submissions drop. Safe to call more
// than once.
func (f *Feed) Close() {
	f.once.Do(func() { close(f.done) })
}

// Stats returns the feed counters.
func (f *Feed) Stats() FeedStats {
	return FeedStats{
		Submitted: f.submitted.Load(),
		Dropped:   f.dropped.Load(),
		Delivered: f.delivered.Load(),
	}
}
