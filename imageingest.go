// Package imageingest prepares user-selected photos for upload.
//
// A photo goes through an interactive crop session (pan, zoom, quarter-turn
// rotation and an aspect preset) and is then re-encoded to a size and
// dimension bounded WebP according to a named compression preset. Sessions
// can also skip the crop and compress the original bytes directly.
//
// Basic usage:
//
//	ing, err := imageingest.New()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	src, err := ing.Load(ctx, "photo.jpg")
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	asset, _, err := ing.Crop(ctx, src, imageingest.CropRequest{
//		Aspect: "16:9",
//		Preset: presets.ProjectHero,
//	})
//	if err != nil {
//		log.Fatal(err)
//	}
//	fmt.Println(asset.Name, asset.Size)
//
// The package wires together these components:
//
//  1. Geometry (pkg/geometry): rotated bounding boxes and crop extraction
//  2. Processing (pkg/processing): the compression stage
//  3. Transform (pkg/transform): crop to lossless intermediate
//  4. Modal (pkg/modal): the crop session state machine
//  5. Presets (pkg/presets): compression and aspect presets
//
// Interactive callers build a controller with NewModal and drive it
// themselves. Crop and Compress run a headless session with the same rules.
package imageingest

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/menta2k/image-ingest/internal/config"
	"github.com/menta2k/image-ingest/internal/logging"
	"github.com/menta2k/image-ingest/internal/metrics"
	"github.com/menta2k/image-ingest/internal/notify"
	"github.com/menta2k/image-ingest/internal/scrolllock"
	"github.com/menta2k/image-ingest/pkg/cropper"
	"github.com/menta2k/image-ingest/pkg/detection"
	"github.com/menta2k/image-ingest/pkg/geometry"
	"github.com/menta2k/image-ingest/pkg/modal"
	"github.com/menta2k/image-ingest/pkg/ollama"
	"github.com/menta2k/image-ingest/pkg/presets"
	"github.com/menta2k/image-ingest/pkg/processing"
	"github.com/menta2k/image-ingest/pkg/source"
	"github.com/menta2k/image-ingest/pkg/transform"
	"github.com/menta2k/image-ingest/pkg/types"
	"github.com/menta2k/image-ingest/pkg/vision"
)

// Version of the image ingest library
const Version = "1.0.0"

// Ingester holds every pipeline stage built from one configuration
type Ingester struct {
	config        *config.Config
	logger        *zap.Logger
	metrics       *metrics.Pipeline
	registerer    prometheus.Registerer
	registry      *presets.Registry
	loader        *source.Loader
	processor     *processing.Processor
	transformer   *transform.Transformer
	surface       *cropper.Surface
	locator       modal.FocusLocator
	notifier      modal.Notifier
	defaultAspect presets.Aspect
}

// Option configures an Ingester
type Option func(*Ingester)

// WithLogger sets the logger shared by all stages
func WithLogger(l *zap.Logger) Option {
	return func(i *Ingester) { i.logger = logging.OrNop(l) }
}

// WithRegisterer registers the pipeline metrics with reg
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(i *Ingester) { i.registerer = reg }
}

// WithNotifier sets where run outcomes are reported. The default logs them.
func WithNotifier(n modal.Notifier) Option {
	return func(i *Ingester) { i.notifier = n }
}

// WithFocusLocator overrides the locator chosen by the vision config
func WithFocusLocator(f modal.FocusLocator) Option {
	return func(i *Ingester) { i.locator = f }
}

// New creates an Ingester with the default configuration
func New(opts ...Option) (*Ingester, error) {
	return NewFromConfig(config.Default(), opts...)
}

// NewFromConfig creates an Ingester from cfg
func NewFromConfig(cfg *config.Config, opts ...Option) (*Ingester, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	registry, err := presets.NewRegistry(cfg.Presets)
	if err != nil {
		return nil, err
	}
	aspect, err := presets.ParseAspect(cfg.Pipeline.DefaultAspect)
	if err != nil {
		return nil, err
	}

	i := &Ingester{
		config:        cfg,
		logger:        zap.NewNop(),
		registry:      registry,
		transformer:   transform.New(),
		surface:       cropper.NewWithConfig(cropper.Config{MinZoom: cfg.Pipeline.MinZoom, MaxZoom: cfg.Pipeline.MaxZoom}),
		defaultAspect: aspect,
		loader: source.NewWithConfig(source.Config{
			SupportedFormats: cfg.Source.SupportedFormats,
			MinImageSize:     cfg.Source.MinImageSize,
			MaxFileBytes:     int64(cfg.Source.MaxFileMB * 1024 * 1024),
		}),
	}
	for _, o := range opts {
		o(i)
	}

	i.metrics = metrics.New(i.registerer)
	i.processor = processing.NewProcessor(processing.WithLogger(i.logger), processing.WithMetrics(i.metrics))
	if i.notifier == nil {
		i.notifier = notify.NewLogNotifier(i.logger)
	}
	if i.locator == nil {
		i.locator, err = newLocator(cfg.Vision)
		if err != nil {
			return nil, err
		}
	}

	return i, nil
}

func newLocator(cfg config.VisionConfig) (modal.FocusLocator, error) {
	switch cfg.Backend {
	case config.VisionSaliency:
		vc := vision.DefaultConfig()
		vc.AnalysisSize = cfg.AnalysisSize
		vc.Threshold = cfg.Threshold
		return vision.NewWithConfig(vc), nil
	case config.VisionOllama:
		client, err := ollama.NewClient(cfg.OllamaURL, time.Duration(cfg.TimeoutSeconds)*time.Second)
		if err != nil {
			return nil, fmt.Errorf("ollama client: %w", err)
		}
		return detection.NewDetector(client, cfg.Model, detection.WithMinConfidence(cfg.MinConfidence)), nil
	}
	return nil, nil
}

// Config returns the configuration the Ingester was built from
func (i *Ingester) Config() *config.Config {
	return i.config
}

// Registry returns the compression presets in effect
func (i *Ingester) Registry() *presets.Registry {
	return i.registry
}

// Load reads a source image from a path or http(s) URL
func (i *Ingester) Load(ctx context.Context, ref string) (types.SourceImage, error) {
	return i.loader.Load(ctx, ref)
}

// Loader returns the source loader
func (i *Ingester) Loader() *source.Loader {
	return i.loader
}

// NewModal builds a crop modal wired to every stage. lock is held while the
// modal is open.
func (i *Ingester) NewModal(lock modal.ScrollLock) *modal.Controller {
	opts := []modal.Option{
		modal.WithLogger(i.logger.Named("modal")),
		modal.WithMetrics(i.metrics),
		modal.WithSurface(i.surface),
		modal.WithRegistry(i.registry),
		modal.WithDefaultAspect(i.defaultAspect),
	}
	if i.locator != nil {
		opts = append(opts, modal.WithFocusLocator(i.locator))
	}
	return modal.New(i.transformer, i.processor, lock, i.notifier, opts...)
}

// CropRequest describes a headless crop session
type CropRequest struct {
	// Aspect is a preset name or "W:H"; empty uses the configured default
	Aspect      string
	Preset      presets.Name
	RequireCrop bool
	// QuarterTurns rotates the image clockwise by 90 degree steps
	QuarterTurns int
	Zoom         float64
	Pan          types.Point
	// Rect, when set, replaces the rect derived from zoom and pan
	Rect      *types.Rect
	AutoFrame bool
}

// Crop runs a full confirm session on src and returns the asset together
// with the session it was produced from
func (i *Ingester) Crop(ctx context.Context, src types.SourceImage, req CropRequest) (types.OutputAsset, modal.Session, error) {
	ctrl, err := i.open(src, req.Aspect, req.Preset, req.RequireCrop)
	if err != nil {
		return types.OutputAsset{}, modal.Session{}, err
	}
	defer ctrl.Close()

	for n := 0; n < ((req.QuarterTurns%4)+4)%4; n++ {
		if err := ctrl.Rotate(); err != nil {
			return types.OutputAsset{}, modal.Session{}, err
		}
	}
	if req.Zoom != 0 {
		if err := ctrl.Zoom(req.Zoom); err != nil {
			return types.OutputAsset{}, modal.Session{}, err
		}
	}
	if req.AutoFrame {
		if err := ctrl.AutoFrame(ctx); err != nil {
			i.logger.Warn("auto-frame skipped", zap.Error(err))
		}
	}
	if req.Pan != (types.Point{}) {
		if err := ctrl.Pan(req.Pan.X, req.Pan.Y); err != nil {
			return types.OutputAsset{}, modal.Session{}, err
		}
	}
	if req.Rect != nil {
		if err := ctrl.LiveCropChanged(*req.Rect); err != nil {
			return types.OutputAsset{}, modal.Session{}, err
		}
	}

	session := ctrl.Session()
	asset, err := ctrl.ConfirmCrop(ctx)
	return asset, session, err
}

// Compress runs a skip-crop session on src
func (i *Ingester) Compress(ctx context.Context, src types.SourceImage, preset presets.Name) (types.OutputAsset, error) {
	ctrl, err := i.open(src, "", preset, false)
	if err != nil {
		return types.OutputAsset{}, err
	}
	defer ctrl.Close()

	return ctrl.SkipCrop(ctx)
}

func (i *Ingester) open(src types.SourceImage, aspectName string, preset presets.Name, requireCrop bool) (*modal.Controller, error) {
	var aspect presets.Aspect
	if aspectName != "" {
		a, err := presets.ParseAspect(aspectName)
		if err != nil {
			return nil, err
		}
		aspect = a
	}

	ctrl := i.NewModal(scrolllock.New(scrolllock.Page{}))
	err := ctrl.Open(modal.OpenOptions{
		Source:        src,
		InitialAspect: aspect,
		RequireCrop:   requireCrop,
		Preset:        preset,
	})
	if err != nil {
		return nil, err
	}
	return ctrl, nil
}

// Preview renders a data URL of src for display on a crop surface
func (i *Ingester) Preview(src types.SourceImage) (string, error) {
	img, err := i.loader.Decode(src)
	if err != nil {
		return "", err
	}
	return i.loader.PreviewURL(img, i.config.Pipeline.PreviewSize)
}

// DebugOverlay draws the session's crop rect over the rotated source
func (i *Ingester) DebugOverlay(src types.SourceImage, session modal.Session) (image.Image, error) {
	img, err := i.loader.Decode(src)
	if err != nil {
		return nil, err
	}
	var rect types.Rect
	if session.CropRect != nil {
		rect = *session.CropRect
	}
	return i.processor.CreateDebugOverlay(geometry.Rotate(img, session.Rotation), rect), nil
}

// SaveImage writes img to path in the given format
func (i *Ingester) SaveImage(img image.Image, path, format string, quality int) error {
	return i.processor.SaveImage(img, path, format, quality, false)
}

// GetVersion returns the library version
func GetVersion() string {
	return Version
}
