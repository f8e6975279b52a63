package processing

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/color"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"math"
	"os"
	"strings"
	"time"

	"github.com/chai2010/webp"
	"github.com/disintegration/imaging"
	"go.uber.org/zap"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/image-ingest/internal/logging"
	"github.com/menta2k/image-ingest/internal/metrics"
	"github.com/menta2k/image-ingest/internal/utils"
	"github.com/menta2k/image-ingest/pkg/presets"
	"github.com/menta2k/image-ingest/pkg/types"
)

const (
	qualityStep    = 10
	minQuality     = 10
	shrinkFactor   = 0.85
	maxShrinkSteps = 6
)

// Processor re-encodes images to the bounded WebP output described by a
// compression preset.
type Processor struct {
	logger  *zap.Logger
	metrics *metrics.Pipeline
}

// Option configures a Processor
type Option func(*Processor)

// WithLogger sets the logger used to report fallbacks
func WithLogger(l *zap.Logger) Option {
	return func(p *Processor) { p.logger = logging.OrNop(l) }
}

// WithMetrics sets the collectors that count fallbacks
func WithMetrics(m *metrics.Pipeline) Option {
	return func(p *Processor) { p.metrics = m }
}

// NewProcessor creates a new image processor
func NewProcessor(opts ...Option) *Processor {
	p := &Processor{logger: zap.NewNop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

type compressResult struct {
	asset types.OutputAsset
	err   error
}

// Compress resizes and re-encodes data according to preset. Decode or encode
// failures never surface: the original bytes are returned with Fallback set.
// The only error is ctx.Err() when the context ends first.
func (p *Processor) Compress(ctx context.Context, name string, data []byte, preset presets.Compression) (types.OutputAsset, error) {
	if err := ctx.Err(); err != nil {
		return types.OutputAsset{}, err
	}

	done := make(chan compressResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- compressResult{asset: p.fallback(name, data, preset, fmt.Errorf("panic: %v", r))}
			}
		}()
		asset, err := p.compress(ctx, name, data, preset)
		done <- compressResult{asset: asset, err: err}
	}()

	select {
	case <-ctx.Done():
		return types.OutputAsset{}, ctx.Err()
	case r := <-done:
		return r.asset, r.err
	}
}

func (p *Processor) compress(ctx context.Context, name string, data []byte, preset presets.Compression) (types.OutputAsset, error) {
	start := time.Now()

	img, err := p.DecodeBytes(data)
	if err != nil {
		return p.fallback(name, data, preset, err), nil
	}

	img = FitWithin(img, preset.MaxDimensionPx)
	maxBytes := preset.MaxBytes()

	var best []byte
	var bestImg image.Image
	bestQuality := 0

	encode := func(candidate image.Image, q int) (bool, error) {
		if err := ctx.Err(); err != nil {
			return false, err
		}
		var buf bytes.Buffer
		if err := p.EncodeWebP(&buf, candidate, float32(q), false); err != nil {
			return false, fmt.Errorf("encode webp at quality %d: %w", q, err)
		}
		if best == nil || buf.Len() < len(best) {
			best, bestImg, bestQuality = buf.Bytes(), candidate, q
		}
		return int64(buf.Len()) <= maxBytes, nil
	}

	q := int(math.Round(preset.Quality * 100))
	if q < minQuality {
		q = minQuality
	}
	fits := false
	for ; q >= minQuality; q -= qualityStep {
		ok, err := encode(img, q)
		if err != nil {
			if ctx.Err() != nil {
				return types.OutputAsset{}, ctx.Err()
			}
			return p.fallback(name, data, preset, err), nil
		}
		if ok {
			// every earlier candidate was over budget, so this one is also the smallest
			fits = true
			break
		}
	}

	for step := 0; !fits && step < maxShrinkSteps; step++ {
		b := img.Bounds()
		w := int(float64(b.Dx()) * shrinkFactor)
		h := int(float64(b.Dy()) * shrinkFactor)
		if w < 1 || h < 1 {
			break
		}
		img = imaging.Resize(img, w, h, imaging.Lanczos)
		ok, err := encode(img, minQuality)
		if err != nil {
			if ctx.Err() != nil {
				return types.OutputAsset{}, ctx.Err()
			}
			return p.fallback(name, data, preset, err), nil
		}
		fits = ok
	}

	if !fits {
		p.logger.Warn("compressed output exceeds size budget",
			zap.String("file", name),
			zap.String("preset", string(preset.Name)),
			zap.Int("bytes", len(best)),
			zap.Int64("max_bytes", maxBytes))
	}

	b := bestImg.Bounds()
	p.logger.Debug("compressed image",
		zap.String("file", name),
		zap.String("preset", string(preset.Name)),
		zap.Int("in_bytes", len(data)),
		zap.Int("out_bytes", len(best)),
		zap.Int("quality", bestQuality),
		zap.Duration("took", time.Since(start)))

	return types.OutputAsset{
		Name:     utils.ReplaceExtension(name, preset.TargetEncoding),
		Data:     best,
		Size:     int64(len(best)),
		Encoding: preset.TargetEncoding,
		Width:    b.Dx(),
		Height:   b.Dy(),
		Quality:  float64(bestQuality) / 100,
	}, nil
}

// fallback returns the untouched input. The original extension is kept so the
// name never lies about the encoding.
func (p *Processor) fallback(name string, data []byte, preset presets.Compression, cause error) types.OutputAsset {
	p.logger.Warn("compression failed, keeping original bytes",
		zap.String("file", name),
		zap.String("preset", string(preset.Name)),
		zap.Error(cause))
	p.metrics.IncFallback(string(preset.Name))

	return types.OutputAsset{
		Name:     name,
		Data:     data,
		Size:     int64(len(data)),
		Encoding: utils.DetectEncoding(data),
		Fallback: true,
	}
}

// DecodeBytes decodes an image from byte data with WebP support. EXIF
// orientation is applied.
func (p *Processor) DecodeBytes(data []byte) (image.Image, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("image: empty input")
	}

	// Try registered decoders first
	if img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true)); err == nil {
		return img, nil
	}

	// Try WebP decode
	if img, err := webp.Decode(bytes.NewReader(data)); err == nil {
		return img, nil
	}

	return nil, fmt.Errorf("image: unknown or unsupported format")
}

// EncodeWebP writes img as WebP at the given quality (0-100)
func (p *Processor) EncodeWebP(buf *bytes.Buffer, img image.Image, quality float32, lossless bool) error {
	return webp.Encode(buf, img, &webp.Options{Lossless: lossless, Quality: quality})
}

// FitWithin downscales img so neither side exceeds maxDim, preserving the
// aspect ratio. Smaller images are returned unchanged.
func FitWithin(img image.Image, maxDim int) image.Image {
	if maxDim <= 0 {
		return img
	}
	b := img.Bounds()
	w, h := b.Dx(), b.Dy()
	if w <= maxDim && h <= maxDim {
		return img
	}
	if w >= h {
		return imaging.Resize(img, maxDim, 0, imaging.Lanczos)
	}
	return imaging.Resize(img, 0, maxDim, imaging.Lanczos)
}

// SaveImage saves an image to a file with the specified format and quality
func (p *Processor) SaveImage(img image.Image, path, format string, quality int, lossless bool) error {
	switch strings.ToLower(format) {
	case "webp":
		var buf bytes.Buffer
		if err := p.EncodeWebP(&buf, img, float32(quality), lossless); err != nil {
			return err
		}
		return os.WriteFile(path, buf.Bytes(), 0o644)
	case "png":
		return imaging.Save(img, path)
	default: // jpg/jpeg
		return imaging.Save(img, path, imaging.JPEGQuality(quality))
	}
}

// CreateDebugOverlay draws the crop rect and the image center over img,
// which must already be in rotated space.
func (p *Processor) CreateDebugOverlay(img image.Image, crop types.Rect) image.Image {
	nrgba := imaging.Clone(img)
	w := nrgba.Bounds().Dx()
	h := nrgba.Bounds().Dy()

	gold := color.NRGBA{255, 204, 0, 255}
	blue := color.NRGBA{0, 170, 255, 255}
	// ~0.4% of min side
	stroke := int(math.Max(2, 0.004*float64(minInt(w, h))))

	if !crop.Empty() {
		drawRect(nrgba, crop.Image(), gold, stroke)
	}

	ix, iy := w/2, h/2
	drawHLine(nrgba, iy, ix-6, ix+6, blue)
	drawVLine(nrgba, ix, iy-6, iy+6, blue)

	return nrgba
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func drawRect(img *image.NRGBA, r image.Rectangle, c color.NRGBA, stroke int) {
	for s := 0; s < stroke; s++ {
		drawHLine(img, r.Min.Y+s, r.Min.X, r.Max.X, c)
		drawHLine(img, r.Max.Y-1-s, r.Min.X, r.Max.X, c)
		drawVLine(img, r.Min.X+s, r.Min.Y, r.Max.Y, c)
		drawVLine(img, r.Max.X-1-s, r.Min.Y, r.Max.Y, c)
	}
}

func drawHLine(img *image.NRGBA, y, x0, x1 int, c color.NRGBA) {
	if y < 0 || y >= img.Bounds().Dy() {
		return
	}
	if x0 > x1 {
		x0, x1 = x1, x0
	}
	if x1 <= 0 || x0 >= img.Bounds().Dx() {
		return
	}
	if x0 < 0 {
		x0 = 0
	}
	if x1 > img.Bounds().Dx() {
		x1 = img.Bounds().Dx()
	}
	i := y*img.Stride + x0*4
	for x := x0; x < x1; x++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += 4
	}
}

func drawVLine(img *image.NRGBA, x, y0, y1 int, c color.NRGBA) {
	if x < 0 || x >= img.Bounds().Dx() {
		return
	}
	if y0 > y1 {
		y0, y1 = y1, y0
	}
	if y1 <= 0 || y0 >= img.Bounds().Dy() {
		return
	}
	if y0 < 0 {
		y0 = 0
	}
	if y1 > img.Bounds().Dy() {
		y1 = img.Bounds().Dy()
	}
	i := y0*img.Stride + x*4
	for y := y0; y < y1; y++ {
		img.Pix[i+0] = c.R
		img.Pix[i+1] = c.G
		img.Pix[i+2] = c.B
		img.Pix[i+3] = c.A
		i += img.Stride
	}
}
