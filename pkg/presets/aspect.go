package presets

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/menta2k/image-ingest/pkg/types"
)

// AspectKind tags the variant of an aspect preset
type AspectKind int

const (
	// Fixed constrains the crop to Width:Height
	Fixed AspectKind = iota
	// Free leaves the crop unconstrained
	Free
	// Original follows the source image's natural ratio
	Original
)

func (k AspectKind) String() string {
	switch k {
	case Free:
		return "free"
	case Original:
		return "original"
	default:
		return "fixed"
	}
}

// Aspect is a selectable crop aspect ratio
type Aspect struct {
	Name   string
	Kind   AspectKind
	Width  int
	Height int
}

// Ratio resolves the aspect against the source's natural size. Free aspects
// report ok=false.
func (a Aspect) Ratio(natural types.Size) (ratio float64, ok bool) {
	switch a.Kind {
	case Free:
		return 0, false
	case Original:
		if natural.Empty() {
			return 0, false
		}
		return natural.Ratio(), true
	default:
		if a.Width <= 0 || a.Height <= 0 {
			return 0, false
		}
		return float64(a.Width) / float64(a.Height), true
	}
}

func (a Aspect) String() string { return a.Name }

func fixed(w, h int) Aspect {
	return Aspect{Name: fmt.Sprintf("%d:%d", w, h), Kind: Fixed, Width: w, Height: h}
}

var (
	AspectFree     = Aspect{Name: "Livre", Kind: Free}
	AspectOriginal = Aspect{Name: "Original", Kind: Original}
)

var aspects = []Aspect{
	fixed(1, 1),
	fixed(16, 9),
	fixed(9, 16),
	fixed(4, 5),
	fixed(5, 4),
	fixed(3, 4),
	fixed(4, 3),
	fixed(2, 3),
	fixed(3, 2),
	fixed(5, 7),
	fixed(7, 5),
	fixed(1, 2),
	fixed(2, 1),
	AspectFree,
	AspectOriginal,
}

// Aspects returns the selectable aspect presets in menu order
func Aspects() []Aspect {
	out := make([]Aspect, len(aspects))
	copy(out, aspects)
	return out
}

// Square returns the 1:1 aspect
func Square() Aspect { return aspects[0] }

// IsRegistered reports whether a is one of the selectable presets
func IsRegistered(a Aspect) bool {
	for _, p := range aspects {
		if p == a {
			return true
		}
	}
	return false
}

// FindAspect looks an aspect preset up by name (case-insensitive)
func FindAspect(name string) (Aspect, bool) {
	for _, p := range aspects {
		if strings.EqualFold(p.Name, name) {
			return p, true
		}
	}
	return Aspect{}, false
}

// ParseAspect accepts a preset name, "free" or a "W:H" pair
func ParseAspect(s string) (Aspect, error) {
	s = strings.TrimSpace(s)
	if a, ok := FindAspect(s); ok {
		return a, nil
	}
	if strings.EqualFold(s, "free") {
		return AspectFree, nil
	}

	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Aspect{}, fmt.Errorf("invalid aspect %q: expected W:H, free or original", s)
	}
	w, errW := strconv.Atoi(parts[0])
	h, errH := strconv.Atoi(parts[1])
	if errW != nil || errH != nil || w <= 0 || h <= 0 {
		return Aspect{}, fmt.Errorf("invalid aspect %q", s)
	}
	a := fixed(w, h)
	if !IsRegistered(a) {
		return Aspect{}, fmt.Errorf("aspect %q is not a registered preset", s)
	}
	return a, nil
}
