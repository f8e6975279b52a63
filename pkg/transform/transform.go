// Package transform turns a committed crop (rect + rotation) into a lossless
// raster ready for compression.
package transform

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"

	"github.com/menta2k/image-ingest/pkg/geometry"
	"github.com/menta2k/image-ingest/pkg/types"
)

// Transformer applies crops. It holds no per-call state.
type Transformer struct {
	encoder png.Encoder
}

// New creates a Transformer that writes PNG intermediates
func New() *Transformer {
	return &Transformer{encoder: png.Encoder{CompressionLevel: png.BestSpeed}}
}

// ApplyCropImage extracts rect from src rotated by rotationDeg
func (t *Transformer) ApplyCropImage(ctx context.Context, src image.Image, rect types.Rect, rotationDeg int) (*image.NRGBA, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return geometry.ExtractCrop(src, rotationDeg, rect)
}

// ApplyCrop extracts rect from src rotated by rotationDeg and encodes the
// result as PNG. Geometry errors are returned unwrapped.
func (t *Transformer) ApplyCrop(ctx context.Context, src image.Image, rect types.Rect, rotationDeg int) ([]byte, error) {
	cropped, err := t.ApplyCropImage(ctx, src, rect, rotationDeg)
	if err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := t.encoder.Encode(&buf, cropped); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return buf.Bytes(), nil
}
