// Package detection asks a vision model for the primary subject of an image
// and turns the answer into a focus point for auto-framing.
package detection

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"math"
	"strings"

	"github.com/disintegration/imaging"

	"github.com/menta2k/image-ingest/pkg/types"
)

// DefaultPrompt asks for the subject box as normalized JSON
const DefaultPrompt = `You are an image subject locator.

Return JSON only:
{
  "primary": {
    "label": "string",
    "confidence": 0.0,
    "box": {"x": 0.0, "y": 0.0, "w": 0.0, "h": 0.0},
    "cx": 0.0,
    "cy": 0.0
  },
  "description": "short neutral sentence (≤ 20 words)",
  "tags": ["tag1", "tag2", "tag3"]
}

HARD RULES
- All coordinates are normalized to [0,1] (NOT pixels). x,y is the top-left corner of the box.
- The box should tightly include the visually dominant subject (prefer people, furniture, buildings; else the most salient object).
- cx, cy is the center of the box.
- If no subject is found, return label "none" with confidence 0.0.
- JSON only. No markdown, no code fences, no comments, no trailing commas.`

// VisionClient sends an image and a prompt to a vision model
type VisionClient interface {
	AnalyzeImage(ctx context.Context, model, prompt string, img []byte) (*types.SubjectResult, error)
}

// Detector handles image subject detection using vision models
type Detector struct {
	client        VisionClient
	model         string
	prompt        string
	maxDim        int
	minConfidence float64
}

// Option configures a Detector
type Option func(*Detector)

// WithPrompt overrides DefaultPrompt
func WithPrompt(p string) Option {
	return func(d *Detector) { d.prompt = p }
}

// WithMaxDimension bounds the longer side of the image sent to the model
func WithMaxDimension(px int) Option {
	return func(d *Detector) { d.maxDim = px }
}

// WithMinConfidence rejects answers below c
func WithMinConfidence(c float64) Option {
	return func(d *Detector) { d.minConfidence = c }
}

// NewDetector creates a new detector with a vision client
func NewDetector(client VisionClient, model string, opts ...Option) *Detector {
	d := &Detector{
		client:        client,
		model:         model,
		prompt:        DefaultPrompt,
		maxDim:        768,
		minConfidence: 0.2,
	}
	for _, o := range opts {
		o(d)
	}
	return d
}

// ErrNoSubject is returned when the model found nothing worth framing
var ErrNoSubject = errors.New("detection: no subject found")

// Locate returns the normalized center of the primary subject
func (d *Detector) Locate(ctx context.Context, img image.Image) (types.FocusPoint, error) {
	payload, err := d.encode(img)
	if err != nil {
		return types.FocusPoint{}, err
	}

	result, err := d.DetectSubject(ctx, payload)
	if err != nil {
		return types.FocusPoint{}, err
	}

	p := result.Primary
	if strings.EqualFold(p.Label, "none") || p.Confidence < d.minConfidence {
		return types.FocusPoint{}, ErrNoSubject
	}

	focus := p.Box.Center()
	if p.Box.W == 0 || p.Box.H == 0 {
		focus = types.FocusPoint{X: p.Cx, Y: p.Cy}
	}
	focus.X = clamp(focus.X, 0, 1)
	focus.Y = clamp(focus.Y, 0, 1)
	focus.Label = p.Label
	focus.Confidence = p.Confidence
	return focus, nil
}

// DetectSubject sends an encoded image to the model and normalizes the answer
func (d *Detector) DetectSubject(ctx context.Context, img []byte) (*types.SubjectResult, error) {
	result, err := d.client.AnalyzeImage(ctx, d.model, d.prompt, img)
	if err != nil {
		return nil, fmt.Errorf("detect subject: %w", err)
	}

	result.Primary.Box = normalizeBox(result.Primary.Box)
	result.Primary.Confidence = clamp(result.Primary.Confidence, 0, 1)
	result.Tags = normalizeTags(result.Tags)
	return result, nil
}

func (d *Detector) encode(img image.Image) ([]byte, error) {
	small := imaging.Fit(img, d.maxDim, d.maxDim, imaging.Lanczos)
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, small, &jpeg.Options{Quality: 85}); err != nil {
		return nil, fmt.Errorf("encode image for model: %w", err)
	}
	return buf.Bytes(), nil
}

// clamp ensures a value is within the given bounds
func clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// normalizeBox keeps the box inside the unit square. Models sometimes answer
// in percent.
func normalizeBox(b types.Box) types.Box {
	if b.X > 1 || b.Y > 1 || b.W > 1 || b.H > 1 {
		b = types.Box{X: b.X / 100, Y: b.Y / 100, W: b.W / 100, H: b.H / 100}
	}
	b.X = clamp(b.X, 0, 1)
	b.Y = clamp(b.Y, 0, 1)
	b.W = clamp(b.W, 0, 1-b.X)
	b.H = clamp(b.H, 0, 1-b.Y)
	return b
}

// normalizeTags ensures tags are cleaned and limited to 5 entries
func normalizeTags(tags []string) []string {
	seen := map[string]struct{}{}
	out := make([]string, 0, 5)
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" {
			continue
		}
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
		if len(out) == 5 {
			break
		}
	}
	return out
}
