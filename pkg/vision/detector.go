// Package vision locates the visually dominant region of an image from local
// edge and contrast saliency. It needs no model and runs in a few
// milliseconds on a downscaled copy.
package vision

import (
	"context"
	"image"
	"math"
	"sort"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-ingest/pkg/types"
)

// SaliencyLocator finds the subject of an image by sliding windows over a
// saliency map
type SaliencyLocator struct {
	config DetectionConfig
}

// DetectionConfig holds configuration for subject detection
type DetectionConfig struct {
	// AnalysisSize bounds the longer side of the copy the map is computed on
	AnalysisSize    int
	EdgeWeight      float64
	ContrastWeight  float64
	Threshold       float64
	MinSubjectRatio float64
	MaxRegions      int
}

// DefaultConfig returns the detection defaults
func DefaultConfig() DetectionConfig {
	return DetectionConfig{
		AnalysisSize:    256,
		EdgeWeight:      0.7,
		ContrastWeight:  0.3,
		Threshold:       0.02,
		MinSubjectRatio: 0.01,
		MaxRegions:      5,
	}
}

// New creates a new SaliencyLocator with default configuration
func New() *SaliencyLocator {
	return &SaliencyLocator{config: DefaultConfig()}
}

// NewWithConfig creates a new SaliencyLocator with custom configuration
func NewWithConfig(config DetectionConfig) *SaliencyLocator {
	if config.AnalysisSize <= 0 {
		config.AnalysisSize = DefaultConfig().AnalysisSize
	}
	if config.MaxRegions <= 0 {
		config.MaxRegions = DefaultConfig().MaxRegions
	}
	return &SaliencyLocator{config: config}
}

// Region represents a rectangular region of interest
type Region struct {
	X      int
	Y      int
	Width  int
	Height int
	Score  float64
}

// Center returns the center point of the region
func (r Region) Center() (int, int) {
	return r.X + r.Width/2, r.Y + r.Height/2
}

// Area returns the area of the region
func (r Region) Area() int {
	return r.Width * r.Height
}

// Locate returns the normalized center of the most salient regions. An image
// without any salient region yields its center with zero confidence.
func (d *SaliencyLocator) Locate(ctx context.Context, img image.Image) (types.FocusPoint, error) {
	regions, scale, err := d.detect(ctx, img)
	if err != nil {
		return types.FocusPoint{}, err
	}
	if len(regions) == 0 {
		return types.FocusPoint{X: 0.5, Y: 0.5, Label: "none"}, nil
	}

	var sx, sy, total float64
	for _, r := range regions {
		cx, cy := r.Center()
		sx += float64(cx) * r.Score
		sy += float64(cy) * r.Score
		total += r.Score
	}

	return types.FocusPoint{
		X:          sx / total / float64(scale.Width),
		Y:          sy / total / float64(scale.Height),
		Label:      "salient region",
		Confidence: math.Min(1, regions[0].Score),
	}, nil
}

// DetectSubjects returns the most salient regions in source pixel coordinates,
// best first
func (d *SaliencyLocator) DetectSubjects(ctx context.Context, img image.Image) ([]Region, error) {
	regions, scale, err := d.detect(ctx, img)
	if err != nil {
		return nil, err
	}
	b := img.Bounds()
	fx := float64(b.Dx()) / float64(scale.Width)
	fy := float64(b.Dy()) / float64(scale.Height)
	for i, r := range regions {
		regions[i] = Region{
			X:      b.Min.X + int(float64(r.X)*fx),
			Y:      b.Min.Y + int(float64(r.Y)*fy),
			Width:  int(math.Round(float64(r.Width) * fx)),
			Height: int(math.Round(float64(r.Height) * fy)),
			Score:  r.Score,
		}
	}
	return regions, nil
}

// detect runs on a downscaled copy and returns regions in its coordinates
func (d *SaliencyLocator) detect(ctx context.Context, img image.Image) ([]Region, types.Size, error) {
	if err := ctx.Err(); err != nil {
		return nil, types.Size{}, err
	}
	small := imaging.Fit(img, d.config.AnalysisSize, d.config.AnalysisSize, imaging.Box)
	size := types.Size{Width: small.Bounds().Dx(), Height: small.Bounds().Dy()}
	if size.Width < 3 || size.Height < 3 {
		return nil, size, nil
	}

	integral, err := d.saliencyIntegral(ctx, small)
	if err != nil {
		return nil, size, err
	}
	regions := d.findImportantRegions(integral, size)
	return d.filterAndScoreRegions(regions, size), size, nil
}

// saliencyIntegral computes the summed-area table of the saliency map
func (d *SaliencyLocator) saliencyIntegral(ctx context.Context, img *image.NRGBA) ([][]float64, error) {
	w, h := img.Bounds().Dx(), img.Bounds().Dy()

	lum := make([]float64, w*h)
	var mean float64
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			i := y*img.Stride + x*4
			l := (0.299*float64(img.Pix[i]) + 0.587*float64(img.Pix[i+1]) + 0.114*float64(img.Pix[i+2])) / 255
			lum[y*w+x] = l
			mean += l
		}
	}
	mean /= float64(w * h)

	integral := make([][]float64, h+1)
	for i := range integral {
		integral[i] = make([]float64, w+1)
	}

	for y := 0; y < h; y++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var row float64
		for x := 0; x < w; x++ {
			row += d.saliencyAt(lum, w, h, x, y, mean)
			integral[y+1][x+1] = integral[y][x+1] + row
		}
	}
	return integral, nil
}

func (d *SaliencyLocator) saliencyAt(lum []float64, w, h, x, y int, mean float64) float64 {
	l := lum[y*w+x]

	var edge float64
	if x > 0 && y > 0 && x < w-1 && y < h-1 {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				edge += math.Abs(l - lum[(y+dy)*w+x+dx])
			}
		}
		edge /= 8
	}

	return d.config.EdgeWeight*edge + d.config.ContrastWeight*math.Abs(l-mean)
}

func (d *SaliencyLocator) findImportantRegions(integral [][]float64, size types.Size) []Region {
	var regions []Region

	short := size.Width
	if size.Height < short {
		short = size.Height
	}

	for _, div := range []int{8, 6, 4, 3} {
		win := short / div
		if win < 4 {
			continue
		}
		step := win / 4
		if step < 1 {
			step = 1
		}
		for y := 0; y+win <= size.Height; y += step {
			for x := 0; x+win <= size.Width; x += step {
				sum := integral[y+win][x+win] - integral[y][x+win] - integral[y+win][x] + integral[y][x]
				score := sum / float64(win*win)
				if score > d.config.Threshold {
					regions = append(regions, Region{X: x, Y: y, Width: win, Height: win, Score: score})
				}
			}
		}
	}
	return regions
}

func (d *SaliencyLocator) filterAndScoreRegions(regions []Region, size types.Size) []Region {
	minArea := int(float64(size.Width*size.Height) * d.config.MinSubjectRatio)

	filtered := regions[:0]
	for _, region := range regions {
		if region.Area() >= minArea {
			filtered = append(filtered, region)
		}
	}

	sort.SliceStable(filtered, func(i, j int) bool {
		return filtered[i].Score > filtered[j].Score
	})
	if len(filtered) > d.config.MaxRegions {
		filtered = filtered[:d.config.MaxRegions]
	}
	return filtered
}
