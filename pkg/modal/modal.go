// Package modal implements the crop modal: a guarded state machine that owns
// one interactive crop session at a time and runs the confirm (transform then
// compress) or skip (compress only) pipeline.
package modal

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"
	"time"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/menta2k/image-ingest/internal/logging"
	"github.com/menta2k/image-ingest/internal/metrics"
	"github.com/menta2k/image-ingest/internal/utils"
	"github.com/menta2k/image-ingest/pkg/cropper"
	"github.com/menta2k/image-ingest/pkg/geometry"
	"github.com/menta2k/image-ingest/pkg/presets"
	"github.com/menta2k/image-ingest/pkg/types"
)

// State is the lifecycle state of the modal
type State int

const (
	StateClosed State = iota
	StateOpen
	StateAspectMenu
	StateProcessing
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateAspectMenu:
		return "aspect-menu"
	case StateProcessing:
		return "processing"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

var (
	ErrNotOpen         = errors.New("modal: not open")
	ErrAlreadyOpen     = errors.New("modal: already open")
	ErrProcessing      = errors.New("modal: processing in progress")
	ErrNoCropRect      = errors.New("modal: no crop rect committed")
	ErrCropRequired    = errors.New("modal: crop is required")
	ErrNoOriginalBytes = errors.New("modal: original file bytes unavailable")
	ErrAspectLocked    = errors.New("modal: aspect is locked")
	ErrUnknownAspect   = errors.New("modal: unknown aspect preset")
	ErrNoFocusLocator  = errors.New("modal: no focus locator configured")
	ErrSessionChanged  = errors.New("modal: session changed")
)

// AbortError reports a failed processing run. The modal is back in the open
// state when it is returned.
type AbortError struct {
	// Op is "confirm" or "skip"
	Op  string
	Err error
}

func (e *AbortError) Error() string {
	return fmt.Sprintf("pipeline aborted during %s: %v", e.Op, e.Err)
}

func (e *AbortError) Unwrap() error { return e.Err }

// Transformer applies a committed crop to the decoded source
type Transformer interface {
	ApplyCrop(ctx context.Context, src image.Image, rect types.Rect, rotationDeg int) ([]byte, error)
}

// Compressor re-encodes bytes according to a preset
type Compressor interface {
	Compress(ctx context.Context, name string, data []byte, preset presets.Compression) (types.OutputAsset, error)
}

// ScrollLock is held for as long as the modal is open
type ScrollLock interface {
	Acquire()
	Release()
}

// Notifier receives the user-facing outcome of each run
type Notifier interface {
	Report(message string, severity types.Severity)
}

// FocusLocator finds the dominant subject of an image
type FocusLocator interface {
	Locate(ctx context.Context, img image.Image) (types.FocusPoint, error)
}

// DecodeFunc decodes the original bytes of a source image
type DecodeFunc func(data []byte) (image.Image, error)

// OpenOptions configures a new session
type OpenOptions struct {
	Source types.SourceImage
	// Image is the decoded source. When nil the controller decodes Source.Data.
	Image         image.Image
	InitialAspect presets.Aspect
	RequireCrop   bool
	Preset        presets.Name
}

// Session is a snapshot of the interactive crop state
type Session struct {
	Source      types.SourceImage
	Natural     types.Size
	Pan         types.Point
	Zoom        float64
	Rotation    int
	Aspect      presets.Aspect
	RequireCrop bool
	Preset      presets.Compression
	// CropRect is the committed rect in rotated source pixels, nil until one is reported
	CropRect *types.Rect
}

// Controller is the crop modal. All methods are safe for concurrent use.
type Controller struct {
	mu      sync.Mutex
	state   State
	session Session
	img     image.Image
	gen     uint64

	transformer   Transformer
	compressor    Compressor
	lock          ScrollLock
	notifier      Notifier
	locator       FocusLocator
	surface       *cropper.Surface
	registry      *presets.Registry
	decode        DecodeFunc
	defaultAspect presets.Aspect
	logger        *zap.Logger
	metrics       *metrics.Pipeline
}

// Option configures a Controller
type Option func(*Controller)

// WithLogger sets the controller logger
func WithLogger(l *zap.Logger) Option {
	return func(c *Controller) { c.logger = logging.OrNop(l) }
}

// WithMetrics sets the pipeline collectors
func WithMetrics(m *metrics.Pipeline) Option {
	return func(c *Controller) { c.metrics = m }
}

// WithFocusLocator enables AutoFrame
func WithFocusLocator(f FocusLocator) Option {
	return func(c *Controller) { c.locator = f }
}

// WithSurface replaces the default crop surface, e.g. to change zoom bounds
func WithSurface(s *cropper.Surface) Option {
	return func(c *Controller) {
		if s != nil {
			c.surface = s
		}
	}
}

// WithRegistry sets the registry presets are resolved from
func WithRegistry(r *presets.Registry) Option {
	return func(c *Controller) {
		if r != nil {
			c.registry = r
		}
	}
}

// WithDecoder replaces the source decoder
func WithDecoder(d DecodeFunc) Option {
	return func(c *Controller) {
		if d != nil {
			c.decode = d
		}
	}
}

// WithDefaultAspect sets the aspect used when OpenOptions has none
func WithDefaultAspect(a presets.Aspect) Option {
	return func(c *Controller) { c.defaultAspect = a }
}

// New creates a closed Controller
func New(transformer Transformer, compressor Compressor, lock ScrollLock, notifier Notifier, opts ...Option) *Controller {
	c := &Controller{
		transformer:   transformer,
		compressor:    compressor,
		lock:          lock,
		notifier:      notifier,
		surface:       cropper.New(),
		registry:      presets.Builtin(),
		decode:        decodeOriented,
		defaultAspect: presets.AspectFree,
		logger:        zap.NewNop(),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func decodeOriented(data []byte) (image.Image, error) {
	return imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
}

// State returns the current state
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Session returns a snapshot of the current session
func (c *Controller) Session() Session {
	c.mu.Lock()
	defer c.mu.Unlock()
	s := c.session
	if s.CropRect != nil {
		r := *s.CropRect
		s.CropRect = &r
	}
	return s
}

// Preset returns the compression preset of the current session
func (c *Controller) Preset() presets.Compression {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.session.Preset
}

// Open starts a new session. The session always starts from defaults, and
// RequireCrop forces the square aspect.
func (c *Controller) Open(opts OpenOptions) error {
	aspect := opts.InitialAspect
	if aspect == (presets.Aspect{}) {
		aspect = c.defaultAspect
	}
	if opts.RequireCrop {
		aspect = presets.Square()
	}
	if !presets.IsRegistered(aspect) {
		return fmt.Errorf("%w: %s", ErrUnknownAspect, aspect.Name)
	}

	preset, ok := c.registry.Lookup(opts.Preset)
	if !ok {
		preset = c.registry.Get(presets.Default)
		if opts.Preset != "" {
			c.logger.Warn("unknown preset, using default", zap.String("preset", string(opts.Preset)))
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	switch c.state {
	case StateClosed:
	case StateProcessing:
		return ErrProcessing
	default:
		return ErrAlreadyOpen
	}

	img := opts.Image
	if img == nil && opts.Source.HasData() {
		decoded, err := c.decode(opts.Source.Data)
		if err != nil {
			// skip can still hand the original bytes to the compressor
			c.logger.Warn("cannot decode source, cropping disabled",
				zap.String("file", opts.Source.Name), zap.Error(err))
		} else {
			img = decoded
		}
	}

	natural := opts.Source.Natural
	if img != nil {
		b := img.Bounds()
		natural = types.Size{Width: b.Dx(), Height: b.Dy()}
	}

	c.gen++
	c.img = img
	c.session = Session{
		Source:      opts.Source,
		Natural:     natural,
		Zoom:        c.surface.ClampZoom(1),
		Aspect:      aspect,
		RequireCrop: opts.RequireCrop,
		Preset:      preset,
	}
	if img != nil {
		c.recomputeLocked()
	}
	c.state = StateOpen
	c.lock.Acquire()

	c.logger.Debug("modal opened",
		zap.String("file", opts.Source.Name),
		zap.String("aspect", aspect.Name),
		zap.Bool("require_crop", opts.RequireCrop),
		zap.String("preset", string(preset.Name)))
	return nil
}

// Close discards the session. It is rejected while processing.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	c.closeLocked()
	return nil
}

// ToggleAspectMenu expands or collapses the aspect menu
func (c *Controller) ToggleAspectMenu() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	if c.session.RequireCrop {
		return ErrAspectLocked
	}
	if c.state == StateAspectMenu {
		c.state = StateOpen
	} else {
		c.state = StateAspectMenu
	}
	return nil
}

// SelectAspect changes the crop aspect and collapses the menu. It has no
// effect on a session that requires a crop.
func (c *Controller) SelectAspect(a presets.Aspect) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	if c.session.RequireCrop {
		return ErrAspectLocked
	}
	if !presets.IsRegistered(a) {
		return fmt.Errorf("%w: %s", ErrUnknownAspect, a.Name)
	}
	c.session.Aspect = a
	c.state = StateOpen
	c.recomputeLocked()
	return nil
}

// Pan moves the crop by (dx, dy) rotated pixels
func (c *Controller) Pan(dx, dy float64) error {
	return c.interact(func(s *Session) {
		s.Pan.X += dx
		s.Pan.Y += dy
	})
}

// SetPan places the crop center at p relative to the image center
func (c *Controller) SetPan(p types.Point) error {
	return c.interact(func(s *Session) { s.Pan = p })
}

// Zoom sets the zoom factor, clamped to the surface bounds
func (c *Controller) Zoom(z float64) error {
	return c.interact(func(s *Session) { s.Zoom = z })
}

// ZoomBy changes the zoom factor by delta
func (c *Controller) ZoomBy(delta float64) error {
	return c.interact(func(s *Session) { s.Zoom += delta })
}

// Rotate turns the image a quarter clockwise
func (c *Controller) Rotate() error {
	return c.interact(func(s *Session) {
		s.Rotation = geometry.NormalizeRotation(s.Rotation + 90)
	})
}

func (c *Controller) interact(apply func(*Session)) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	apply(&c.session)
	c.session.Zoom = c.surface.ClampZoom(c.session.Zoom)
	c.recomputeLocked()
	return nil
}

// LiveCropChanged commits a rect reported by the crop surface. The rect must
// lie inside the rotated image.
func (c *Controller) LiveCropChanged(rect types.Rect) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.checkOpenLocked(); err != nil {
		return err
	}
	box := geometry.RotatedBoundingBox(c.session.Natural.Width, c.session.Natural.Height, c.session.Rotation)
	if rect.Empty() || !rect.Within(box) {
		return &geometry.OutOfBoundsError{Rect: rect, Bounds: box}
	}
	c.session.CropRect = &rect
	return nil
}

// AutoFrame pans the crop onto the subject found by the focus locator.
// Failures leave the session untouched and are reported as warnings.
func (c *Controller) AutoFrame(ctx context.Context) error {
	c.mu.Lock()
	if err := c.checkOpenLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	img, gen := c.img, c.gen
	c.mu.Unlock()

	if c.locator == nil {
		return ErrNoFocusLocator
	}
	if img == nil {
		return ErrNoCropRect
	}

	focus, err := c.locator.Locate(ctx, img)
	if err != nil {
		c.logger.Warn("auto-frame failed", zap.Error(err))
		c.report("Could not find the subject automatically", types.SeverityWarning)
		return fmt.Errorf("locate subject: %w", err)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen || (c.state != StateOpen && c.state != StateAspectMenu) {
		return ErrSessionChanged
	}
	c.session.Pan = cropper.PanToFocus(focus, c.session.Natural, c.session.Rotation)
	c.recomputeLocked()

	c.logger.Debug("auto-framed crop",
		zap.Float64("x", focus.X),
		zap.Float64("y", focus.Y),
		zap.String("label", focus.Label))
	return nil
}

// ConfirmCrop crops the source with the committed rect and compresses the
// result. On success the modal closes and the asset is returned; on failure
// the modal returns to the open state and an *AbortError is returned.
func (c *Controller) ConfirmCrop(ctx context.Context) (types.OutputAsset, error) {
	c.mu.Lock()
	if err := c.checkOpenLocked(); err != nil {
		c.mu.Unlock()
		return types.OutputAsset{}, err
	}
	if c.session.CropRect == nil || c.img == nil {
		c.mu.Unlock()
		return types.OutputAsset{}, ErrNoCropRect
	}
	img := c.img
	rect := *c.session.CropRect
	rotation := c.session.Rotation
	preset := c.session.Preset
	name := utils.ReplaceExtension(c.session.Source.Name, "png")
	c.state = StateProcessing
	c.mu.Unlock()

	return c.run(ctx, metrics.BranchConfirm, preset, func(ctx context.Context) (types.OutputAsset, error) {
		data, err := c.transformer.ApplyCrop(ctx, img, rect, rotation)
		if err != nil {
			return types.OutputAsset{}, fmt.Errorf("apply crop: %w", err)
		}
		return c.compressor.Compress(ctx, name, data, preset)
	})
}

// SkipCrop compresses the original bytes without cropping
func (c *Controller) SkipCrop(ctx context.Context) (types.OutputAsset, error) {
	c.mu.Lock()
	if err := c.checkOpenLocked(); err != nil {
		c.mu.Unlock()
		return types.OutputAsset{}, err
	}
	if c.session.RequireCrop {
		c.mu.Unlock()
		return types.OutputAsset{}, ErrCropRequired
	}
	if !c.session.Source.HasData() {
		c.mu.Unlock()
		return types.OutputAsset{}, ErrNoOriginalBytes
	}
	src := c.session.Source
	preset := c.session.Preset
	c.state = StateProcessing
	c.mu.Unlock()

	return c.run(ctx, metrics.BranchSkip, preset, func(ctx context.Context) (types.OutputAsset, error) {
		return c.compressor.Compress(ctx, src.Name, src.Data, preset)
	})
}

// run executes one processing branch with the mutex released and settles
// the state afterwards.
func (c *Controller) run(ctx context.Context, branch metrics.Branch, preset presets.Compression, fn func(context.Context) (types.OutputAsset, error)) (types.OutputAsset, error) {
	start := time.Now()
	asset, err := safeRun(ctx, fn)
	took := time.Since(start)
	c.metrics.ObserveRun(branch, err, took)

	if err != nil {
		c.mu.Lock()
		c.state = StateOpen
		c.mu.Unlock()

		abort := &AbortError{Op: string(branch), Err: err}
		c.logger.Error("processing failed",
			zap.String("branch", string(branch)),
			zap.String("preset", string(preset.Name)),
			zap.Duration("took", took),
			zap.Error(err))
		c.report("Failed to process image. Please try again.", types.SeverityError)
		return types.OutputAsset{}, abort
	}

	c.mu.Lock()
	c.closeLocked()
	c.mu.Unlock()

	c.metrics.ObserveOutput(string(preset.Name), asset.Size)
	c.logger.Info("image processed",
		zap.String("branch", string(branch)),
		zap.String("file", asset.Name),
		zap.String("encoding", asset.Encoding),
		zap.Int64("bytes", asset.Size),
		zap.Bool("fallback", asset.Fallback),
		zap.Duration("took", took))
	c.report("Image processed successfully", types.SeveritySuccess)
	return asset, nil
}

func safeRun(ctx context.Context, fn func(context.Context) (types.OutputAsset, error)) (asset types.OutputAsset, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	return fn(ctx)
}

func (c *Controller) report(message string, severity types.Severity) {
	if c.notifier != nil {
		c.notifier.Report(message, severity)
	}
}

func (c *Controller) checkOpenLocked() error {
	switch c.state {
	case StateOpen, StateAspectMenu:
		return nil
	case StateProcessing:
		return ErrProcessing
	}
	return ErrNotOpen
}

// closeLocked resets the session and releases the scroll lock taken by Open
func (c *Controller) closeLocked() {
	c.state = StateClosed
	c.session = Session{}
	c.img = nil
	c.lock.Release()
}

// recomputeLocked derives the committed rect from the interactive state,
// replacing pan and zoom with the values the clamped rect corresponds to.
func (c *Controller) recomputeLocked() {
	if c.session.Natural.Empty() {
		return
	}
	res := c.surface.CropRect(cropper.Params{
		Natural:  c.session.Natural,
		Rotation: c.session.Rotation,
		Aspect:   c.session.Aspect,
		Zoom:     c.session.Zoom,
		Pan:      c.session.Pan,
	})
	c.session.Pan = res.Pan
	c.session.Zoom = res.Zoom
	rect := res.Rect
	c.session.CropRect = &rect
}
