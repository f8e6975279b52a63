package cropper

import (
	"math"

	"github.com/menta2k/image-ingest/pkg/geometry"
	"github.com/menta2k/image-ingest/pkg/presets"
	"github.com/menta2k/image-ingest/pkg/types"
)

// Surface computes crop rectangles for an interactive crop session. It plays
// the part of the browser crop widget: every rect it reports is clamped into
// the rotated image, so callers never see an out-of-bounds crop.
type Surface struct {
	config Config
}

// Config holds the zoom bounds of the surface
type Config struct {
	MinZoom float64
	MaxZoom float64
}

// DefaultConfig returns the [1,3] zoom range
func DefaultConfig() Config {
	return Config{MinZoom: 1, MaxZoom: 3}
}

// New creates a new Surface with default configuration
func New() *Surface {
	return &Surface{config: DefaultConfig()}
}

// NewWithConfig creates a new Surface with custom configuration. Invalid
// bounds fall back to the defaults.
func NewWithConfig(config Config) *Surface {
	if config.MinZoom <= 0 || config.MaxZoom < config.MinZoom {
		config = DefaultConfig()
	}
	return &Surface{config: config}
}

// Config returns the surface configuration
func (s *Surface) Config() Config {
	return s.config
}

// ClampZoom keeps z inside the configured zoom range
func (s *Surface) ClampZoom(z float64) float64 {
	return clamp(z, s.config.MinZoom, s.config.MaxZoom)
}

// Params is the interactive state a crop rect is derived from
type Params struct {
	Natural  types.Size
	Rotation int
	Aspect   presets.Aspect
	Zoom     float64
	// Pan offsets the crop center from the rotated image center, in rotated pixels
	Pan types.Point
}

// Result is a crop rect together with the pan and zoom it actually
// corresponds to. Zoom is never below 1.
type Result struct {
	Rect types.Rect
	Pan  types.Point
	Zoom float64
}

// CropRect derives the crop rectangle for p. The rect is the largest area of
// the aspect ratio that fits the rotated image, shrunk by zoom, centered on
// the panned center and clamped inside the rotated bounding box.
func (s *Surface) CropRect(p Params) Result {
	box := geometry.RotatedBoundingBox(p.Natural.Width, p.Natural.Height, p.Rotation)
	if box.Empty() {
		return Result{Zoom: s.ClampZoom(p.Zoom)}
	}

	// the base extent already fills the box, so zooming out past 1 would
	// only stretch one side against the edge and lose the aspect ratio
	zoom := math.Max(s.ClampZoom(p.Zoom), 1)
	base := BaseCropSize(box, p.Aspect, p.Natural)

	w := clampInt(int(math.Round(base.W/zoom)), 1, box.Width)
	h := clampInt(int(math.Round(base.H/zoom)), 1, box.Height)

	cx := float64(box.Width)/2 + p.Pan.X
	cy := float64(box.Height)/2 + p.Pan.Y
	x := clampInt(int(math.Round(cx-float64(w)/2)), 0, box.Width-w)
	y := clampInt(int(math.Round(cy-float64(h)/2)), 0, box.Height-h)

	rect := types.Rect{X: x, Y: y, Width: w, Height: h}
	return Result{
		Rect: rect,
		Pan: types.Point{
			X: float64(x) + float64(w)/2 - float64(box.Width)/2,
			Y: float64(y) + float64(h)/2 - float64(box.Height)/2,
		},
		Zoom: zoom,
	}
}

// Extent is a fractional crop size
type Extent struct {
	W float64
	H float64
}

// BaseCropSize returns the largest extent of the aspect's ratio that fits box.
// A free aspect covers the whole box.
func BaseCropSize(box types.Size, aspect presets.Aspect, natural types.Size) Extent {
	bw, bh := float64(box.Width), float64(box.Height)
	ratio, ok := aspect.Ratio(natural)
	if !ok || bh == 0 {
		return Extent{W: bw, H: bh}
	}
	if bw/bh > ratio {
		return Extent{W: bh * ratio, H: bh}
	}
	return Extent{W: bw, H: bw / ratio}
}

// PanToFocus returns the pan that centers the crop on focus, a normalized
// point in the unrotated source.
func PanToFocus(focus types.FocusPoint, natural types.Size, rotation int) types.Point {
	fx, fy := clamp(focus.X, 0, 1), clamp(focus.Y, 0, 1)
	switch geometry.NormalizeRotation(rotation) {
	case 90:
		fx, fy = 1-fy, fx
	case 180:
		fx, fy = 1-fx, 1-fy
	case 270:
		fx, fy = fy, 1-fx
	}
	box := geometry.RotatedBoundingBox(natural.Width, natural.Height, rotation)
	return types.Point{
		X: (fx - 0.5) * float64(box.Width),
		Y: (fy - 0.5) * float64(box.Height),
	}
}

// Coverage reports the fraction of the rotated image kept by rect
func Coverage(rect types.Rect, natural types.Size, rotation int) float64 {
	box := geometry.RotatedBoundingBox(natural.Width, natural.Height, rotation)
	if box.Empty() {
		return 0
	}
	return float64(rect.Width*rect.Height) / float64(box.Width*box.Height)
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
