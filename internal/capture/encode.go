package capture

import (
	"fmt"
	"image"
	"image/png"
	"io"

	"golang.org/x/image/tiff"
)

// FrameEncoder serializes one frame image. Ext is the file extension
// without the dot.
type FrameEncoder interface {
	Ext() string
	Encode(w io.Writer, img image.Image) error
}

// PNGEncoder writes lossless PNG, the default frame format.
type PNGEncoder struct {
	Level png.CompressionLevel
}

func (PNGEncoder) Ext() string { return "png" }

func (e PNGEncoder) Encode(w io.Writer, img image.Image) error {
	enc := png.Encoder{CompressionLevel: e.Level}
	return enc.Encode(w, img)
}

// TIFFEncoder writes deflate-compressed TIFF, which downstream labelling
// tools read without loss of the mask values.
type TIFFEncoder struct{}

func (TIFFEncoder) Ext() string { return "tiff" }

func (TIFFEncoder) Encode(w io.Writer, img image.Image) error {
	return tiff.Encode(w, img, &tiff.Options{Compression: tiff.Deflate})
}

// NewEncoder returns the encoder for a configured frame format.
func NewEncoder(format string) (FrameEncoder, error) {
	switch format {
	case "", "png":
		return PNGEncoder{Level: png.BestSpeed}, nil
	case "tiff":
		return TIFFEncoder{}, nil
	default:
		return nil, fmt.Errorf("unsupported frame format %q", format)
	}
}
