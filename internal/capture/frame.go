// Package capture keeps a bounded window of paired frames ahead of an
// incident and writes it out when the incident is committed.
package capture

import (
	"fmt"
	"image"
)

// ProcessedFrame is a single-channel segmentation mask produced by the
// inference model, one byte per pixel.
type ProcessedFrame struct {
	Width  int
	Height int
	Pix    []uint8
}

// RawFrame is an RGBA camera image, four bytes per pixel.
type RawFrame struct {
	Width  int
	Height int
	Pix    []uint8
}

// FramePair is one synchronized capture from both producers. A pair must
// not be modified after it has been submitted.
type FramePair struct {
	Processed ProcessedFrame
	Raw       RawFrame
	Sequence  uint64
}

// Image wraps the mask as an *image.Gray without copying.
func (f ProcessedFrame) Image() (*image.Gray, error) {
	if want := f.Width * f.Height; len(f.Pix) != want || want == 0 {
		return nil, fmt.Errorf("processed frame %dx%d has %d bytes, want %d", f.Width, f.Height, len(f.Pix), want)
	}
	return &image.Gray{Pix: f.Pix, Stride: f.Width, Rect: image.Rect(0, 0, f.Width, f.Height)}, nil
}

// Image wraps the camera frame as an *image.RGBA without copying.
func (f RawFrame) Image() (*image.RGBA, error) {
	if want := 4 * f.Width * f.Height; len(f.Pix) != want || want == 0 {
		return nil, fmt.Errorf("raw frame %dx%d has %d bytes, want %d", f.Width, f.Height, len(f.Pix), want)
	}
	return &image.RGBA{Pix: f.Pix, Stride: 4 * f.Width, Rect: image.Rect(0, 0, f.Width, f.Height)}, nil
}
