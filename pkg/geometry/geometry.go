// Package geometry computes rotated bounding boxes and extracts pixel-exact
// crops from rotated images.
package geometry

import (
	"errors"
	"fmt"
	"image"
	"math"

	"github.com/disintegration/imaging"
	"github.com/oliamb/cutter"

	"github.com/menta2k/image-ingest/pkg/types"
)

// ErrOutOfBoundsCrop is returned when a crop rect does not fit the rotated image
var ErrOutOfBoundsCrop = errors.New("crop rectangle out of bounds")

// OutOfBoundsError describes a rejected crop rect
type OutOfBoundsError struct {
	Rect   types.Rect
	Bounds types.Size
}

func (e *OutOfBoundsError) Error() string {
	return fmt.Sprintf("%v: rect %dx%d@%d,%d exceeds rotated image %dx%d",
		ErrOutOfBoundsCrop, e.Rect.Width, e.Rect.Height, e.Rect.X, e.Rect.Y,
		e.Bounds.Width, e.Bounds.Height)
}

func (e *OutOfBoundsError) Unwrap() error { return ErrOutOfBoundsCrop }

// NormalizeRotation maps any angle in degrees into [0, 360)
func NormalizeRotation(deg int) int {
	deg %= 360
	if deg < 0 {
		deg += 360
	}
	return deg
}

// RotatedBoundingBox returns the axis-aligned box enclosing a w x h rectangle
// rotated by rotationDeg about its center.
func RotatedBoundingBox(width, height, rotationDeg int) types.Size {
	switch NormalizeRotation(rotationDeg) {
	case 0, 180:
		return types.Size{Width: width, Height: height}
	case 90, 270:
		return types.Size{Width: height, Height: width}
	}

	theta := float64(rotationDeg) * math.Pi / 180
	c, s := math.Abs(math.Cos(theta)), math.Abs(math.Sin(theta))
	w, h := float64(width), float64(height)
	return types.Size{
		Width:  int(math.Round(c*w + s*h)),
		Height: int(math.Round(s*w + c*h)),
	}
}

// Rotate renders img rotated clockwise by rotationDeg onto a surface sized to
// its rotated bounding box. Right angles are lossless pixel transposes.
func Rotate(img image.Image, rotationDeg int) *image.NRGBA {
	switch NormalizeRotation(rotationDeg) {
	case 0:
		return imaging.Clone(img)
	case 90:
		// imaging rotates counter-clockwise
		return imaging.Rotate270(img)
	case 180:
		return imaging.Rotate180(img)
	case 270:
		return imaging.Rotate90(img)
	default:
		return imaging.Rotate(img, -float64(rotationDeg), image.Transparent)
	}
}

// ExtractCrop renders img rotated by rotationDeg and reads back exactly the
// pixels inside rect, which is expressed in the rotated image's space.
func ExtractCrop(img image.Image, rotationDeg int, rect types.Rect) (*image.NRGBA, error) {
	b := img.Bounds()
	box := RotatedBoundingBox(b.Dx(), b.Dy(), rotationDeg)
	if rect.Empty() || !rect.Within(box) {
		return nil, &OutOfBoundsError{Rect: rect, Bounds: box}
	}

	rotated := Rotate(img, rotationDeg)
	if rb := rotated.Bounds(); rb.Dx() != box.Width || rb.Dy() != box.Height {
		// non-right angles can differ by a pixel after resampling
		if !rect.Within(types.Size{Width: rb.Dx(), Height: rb.Dy()}) {
			return nil, &OutOfBoundsError{Rect: rect, Bounds: types.Size{Width: rb.Dx(), Height: rb.Dy()}}
		}
	}

	cropped, err := cutter.Crop(rotated, cutter.Config{
		Width:   rect.Width,
		Height:  rect.Height,
		Anchor:  image.Pt(rect.X, rect.Y),
		Mode:    cutter.TopLeft,
		Options: cutter.Copy,
	})
	if err != nil {
		return nil, fmt.Errorf("crop rotated image: %w", err)
	}

	// cutter.Copy keeps the sub-rect origin; normalize to a 0-anchored surface
	return imaging.Clone(cropped), nil
}
