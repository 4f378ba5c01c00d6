package capture

import (
	"context"
	"time"

	"github.com/banshee-data/cornercase/internal/timeutil"
)

// Submitter accepts frame pairs from a producer. *Feed implements it.
type Submitter interface {
	Submit(FramePair) bool
}

// SyntheticProducer emits generated frame pairs at a fixed rate. It stands
// in for the camera and inference producers in development mode.
type SyntheticProducer struct {
	Width, Height int
	FPS           int
	Clock         timeutil.Clock

	seq uint64
}

// Next builds the next pair: a mask of horizontal class bands that scroll
// with the sequence number, and a camera frame tinted by it.
func (p *SyntheticProducer) Next() FramePair {
	w, h := p.Width, p.Height
	seq := p.seq
	p.seq++

	mask := make([]uint8, w*h)
	for y := 0; y < h; y++ {
		class := uint8((y + int(seq)) / 8 % 23)
		for x := 0; x < w; x++ {
			mask[y*w+x] = class
		}
	}

	rgba := make([]uint8, 4*w*h)
	for i := 0; i < w*h; i++ {
		rgba[4*i] = uint8(seq)
		rgba[4*i+1] = uint8(i % 256)
		rgba[4*i+2] = mask[i] * 11
		rgba[4*i+3] = 0xff
	}

	return FramePair{
		Processed: ProcessedFrame{Width: w, Height: h, Pix: mask},
		Raw:       RawFrame{Width: w, Height: h, Pix: rgba},
		Sequence:  seq,
	}
}

// Run submits one pair per frame period until ctx is cancelled.
func (p *SyntheticProducer) Run(ctx context.Context, dst Submitter) error {
	clock := p.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	fps := p.FPS
	if fps <= 0 {
		fps = 20
	}
	ticker := clock.NewTicker(time.Second / time.Duration(fps))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
			dst.Submit(p.Next())
		}
	}
}
