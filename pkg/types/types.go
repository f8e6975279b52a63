package types

import "image"

// Size is a width/height pair in pixels
type Size struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Ratio returns width divided by height, or 0 for an empty size
func (s Size) Ratio() float64 {
	if s.Height == 0 {
		return 0
	}
	return float64(s.Width) / float64(s.Height)
}

// Empty reports whether either side is non-positive
func (s Size) Empty() bool {
	return s.Width <= 0 || s.Height <= 0
}

// Point is an offset in pixels
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Rect is an axis-aligned rectangle in (rotated) source pixel space
type Rect struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Image converts the rect to an image.Rectangle
func (r Rect) Image() image.Rectangle {
	return image.Rect(r.X, r.Y, r.X+r.Width, r.Y+r.Height)
}

// Size returns the dimensions of the rect
func (r Rect) Size() Size {
	return Size{Width: r.Width, Height: r.Height}
}

// Empty reports whether the rect has no area
func (r Rect) Empty() bool {
	return r.Width <= 0 || r.Height <= 0
}

// Within reports whether the rect lies fully inside a 0-anchored area of the given size
func (r Rect) Within(s Size) bool {
	return r.X >= 0 && r.Y >= 0 && r.X+r.Width <= s.Width && r.Y+r.Height <= s.Height
}

// SourceImage is an immutable reference to user-selected image bytes
type SourceImage struct {
	Name    string `json:"name"`
	Size    int64  `json:"size"`
	Format  string `json:"format"`
	Natural Size   `json:"natural"`
	Data    []byte `json:"-"`
}

// HasData reports whether the original file bytes are available
func (s SourceImage) HasData() bool {
	return len(s.Data) > 0
}

// OutputAsset is the final blob handed to the caller after a pipeline run
type OutputAsset struct {
	Name     string  `json:"name"`
	Data     []byte  `json:"-"`
	Size     int64   `json:"size"`
	Encoding string  `json:"encoding"`
	Width    int     `json:"width,omitempty"`
	Height   int     `json:"height,omitempty"`
	Quality  float64 `json:"quality,omitempty"`
	// Fallback is set when re-encoding failed and Data holds the original bytes
	Fallback bool `json:"fallback"`
}

// Box represents a normalized bounding box with coordinates in [0,1] range
type Box struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Center returns the normalized center of the box
func (b Box) Center() FocusPoint {
	return FocusPoint{X: b.X + b.W/2, Y: b.Y + b.H/2}
}

// FocusPoint is a normalized [0,1] position of the dominant subject
type FocusPoint struct {
	X          float64 `json:"x"`
	Y          float64 `json:"y"`
	Label      string  `json:"label,omitempty"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Subject represents the primary subject reported by a vision model
type Subject struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Box        Box     `json:"box"`
	Cx         float64 `json:"cx"`
	Cy         float64 `json:"cy"`
}

// SubjectResult contains the parsed reply of a vision model
type SubjectResult struct {
	Primary     Subject  `json:"primary"`
	Description string   `json:"description"`
	Tags        []string `json:"tags"`
}

// Severity classifies a user-facing notification
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeveritySuccess Severity = "success"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)
