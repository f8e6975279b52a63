package modal

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/image/webp"

	"github.com/menta2k/image-ingest/internal/metrics"
	"github.com/menta2k/image-ingest/internal/notify"
	"github.com/menta2k/image-ingest/internal/scrolllock"
	"github.com/menta2k/image-ingest/pkg/cropper"
	"github.com/menta2k/image-ingest/pkg/geometry"
	"github.com/menta2k/image-ingest/pkg/presets"
	"github.com/menta2k/image-ingest/pkg/processing"
	"github.com/menta2k/image-ingest/pkg/source"
	"github.com/menta2k/image-ingest/pkg/transform"
	"github.com/menta2k/image-ingest/pkg/types"
)

var initialPage = scrolllock.Page{Overflow: "auto", ScrollY: 320}

type harness struct {
	ctrl     *Controller
	lock     *scrolllock.Lock
	recorder *notify.Recorder
}

func newHarness(t Transformer, c Compressor, opts ...Option) *harness {
	h := &harness{lock: scrolllock.New(initialPage), recorder: &notify.Recorder{}}
	if t == nil {
		t = transform.New()
	}
	if c == nil {
		c = processing.NewProcessor()
	}
	h.ctrl = New(t, c, h.lock, h.recorder, opts...)
	return h
}

func quadrantImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := color.NRGBA{0, 0, 0, 255}
			if x >= width/2 {
				c.R = 255
			}
			if y >= height/2 {
				c.G = 255
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func gradientImage(width, height int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 255 / width), uint8(y * 255 / height), 96, 255})
		}
	}
	return img
}

func pngSource(t *testing.T, name string, img image.Image) types.SourceImage {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	src, err := source.New().FromBytes(name, buf.Bytes())
	require.NoError(t, err)
	return src
}

func jpegSource(t *testing.T, name string, img image.Image) types.SourceImage {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92}))
	src, err := source.New().FromBytes(name, buf.Bytes())
	require.NoError(t, err)
	return src
}

func aspect(t *testing.T, s string) presets.Aspect {
	t.Helper()
	a, err := presets.ParseAspect(s)
	require.NoError(t, err)
	return a
}

type capturingCompressor struct {
	mu   sync.Mutex
	name string
	data []byte
}

func (c *capturingCompressor) Compress(_ context.Context, name string, data []byte, _ presets.Compression) (types.OutputAsset, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.name, c.data = name, data
	return types.OutputAsset{Name: name, Data: data, Size: int64(len(data)), Encoding: "png"}, nil
}

type blockingCompressor struct {
	started chan struct{}
	release chan struct{}
}

func newBlockingCompressor() *blockingCompressor {
	return &blockingCompressor{started: make(chan struct{}), release: make(chan struct{})}
}

func (b *blockingCompressor) Compress(_ context.Context, name string, data []byte, _ presets.Compression) (types.OutputAsset, error) {
	close(b.started)
	<-b.release
	return types.OutputAsset{Name: name, Data: data, Size: int64(len(data)), Encoding: "webp"}, nil
}

type failingTransformer struct{ err error }

func (f failingTransformer) ApplyCrop(context.Context, image.Image, types.Rect, int) ([]byte, error) {
	return nil, f.err
}

type panickingTransformer struct{}

func (panickingTransformer) ApplyCrop(context.Context, image.Image, types.Rect, int) ([]byte, error) {
	panic("boom")
}

type fixedLocator struct {
	focus types.FocusPoint
	err   error
}

func (f fixedLocator) Locate(context.Context, image.Image) (types.FocusPoint, error) {
	return f.focus, f.err
}

func TestOpenCloseRestoresScrollLock(t *testing.T) {
	h := newHarness(nil, nil)
	src := pngSource(t, "photo.png", quadrantImage(40, 30))

	require.NoError(t, h.ctrl.Open(OpenOptions{Source: src}))
	assert.Equal(t, StateOpen, h.ctrl.State())
	assert.Equal(t, 1, h.lock.Depth())
	assert.Equal(t, "hidden", h.lock.Page().Overflow)

	require.NoError(t, h.ctrl.Close())
	assert.Equal(t, StateClosed, h.ctrl.State())
	assert.Equal(t, 0, h.lock.Depth())
	assert.Equal(t, initialPage, h.lock.Page())
	assert.Empty(t, h.recorder.All())
}

func TestOpenTwice(t *testing.T) {
	h := newHarness(nil, nil)
	src := pngSource(t, "photo.png", quadrantImage(40, 30))

	require.NoError(t, h.ctrl.Open(OpenOptions{Source: src}))
	assert.ErrorIs(t, h.ctrl.Open(OpenOptions{Source: src}), ErrAlreadyOpen)
	assert.Equal(t, 1, h.lock.Depth())
}

func TestSessionResetOnReopen(t *testing.T) {
	h := newHarness(nil, nil)
	src := pngSource(t, "photo.png", gradientImage(300, 200))
	opts := OpenOptions{Source: src, InitialAspect: aspect(t, "4:3")}

	require.NoError(t, h.ctrl.Open(opts))
	require.NoError(t, h.ctrl.ZoomBy(1))
	require.NoError(t, h.ctrl.Pan(30, 10))
	require.NoError(t, h.ctrl.Rotate())
	require.NoError(t, h.ctrl.SelectAspect(presets.Square()))
	require.NoError(t, h.ctrl.Close())

	require.NoError(t, h.ctrl.Open(opts))
	s := h.ctrl.Session()
	assert.Equal(t, types.Point{}, s.Pan)
	assert.Equal(t, 1.0, s.Zoom)
	assert.Equal(t, 0, s.Rotation)
	assert.Equal(t, aspect(t, "4:3"), s.Aspect)
	require.NotNil(t, s.CropRect)
	assert.Equal(t, types.Rect{X: 17, Y: 0, Width: 267, Height: 200}, *s.CropRect)
}

func TestRequireCropForcesSquare(t *testing.T) {
	h := newHarness(nil, nil)
	src := pngSource(t, "avatar.png", gradientImage(300, 200))

	require.NoError(t, h.ctrl.Open(OpenOptions{
		Source:        src,
		InitialAspect: aspect(t, "16:9"),
		RequireCrop:   true,
		Preset:        presets.Avatar,
	}))
	before := h.ctrl.Session()
	assert.Equal(t, presets.Square(), before.Aspect)
	require.NotNil(t, before.CropRect)
	assert.Equal(t, before.CropRect.Width, before.CropRect.Height)

	assert.ErrorIs(t, h.ctrl.SelectAspect(aspect(t, "16:9")), ErrAspectLocked)
	assert.ErrorIs(t, h.ctrl.ToggleAspectMenu(), ErrAspectLocked)
	assert.Equal(t, before, h.ctrl.Session())
	assert.Equal(t, StateOpen, h.ctrl.State())

	_, err := h.ctrl.SkipCrop(context.Background())
	assert.ErrorIs(t, err, ErrCropRequired)
	assert.Equal(t, StateOpen, h.ctrl.State())
}

func TestAspectMenu(t *testing.T) {
	h := newHarness(nil, nil)
	require.NoError(t, h.ctrl.Open(OpenOptions{Source: pngSource(t, "p.png", gradientImage(300, 200))}))
	assert.Equal(t, presets.AspectFree, h.ctrl.Session().Aspect)

	require.NoError(t, h.ctrl.ToggleAspectMenu())
	assert.Equal(t, StateAspectMenu, h.ctrl.State())
	require.NoError(t, h.ctrl.ToggleAspectMenu())
	assert.Equal(t, StateOpen, h.ctrl.State())

	require.NoError(t, h.ctrl.ToggleAspectMenu())
	require.NoError(t, h.ctrl.SelectAspect(aspect(t, "1:2")))
	assert.Equal(t, StateOpen, h.ctrl.State())
	s := h.ctrl.Session()
	assert.Equal(t, types.Rect{X: 100, Y: 0, Width: 100, Height: 200}, *s.CropRect)

	unknown := presets.Aspect{Name: "7:3", Kind: presets.Fixed, Width: 7, Height: 3}
	assert.ErrorIs(t, h.ctrl.SelectAspect(unknown), ErrUnknownAspect)
	assert.Equal(t, aspect(t, "1:2"), h.ctrl.Session().Aspect)

	// menu is a sub-state of open, so close works from it
	require.NoError(t, h.ctrl.ToggleAspectMenu())
	require.NoError(t, h.ctrl.Close())
	assert.Equal(t, 0, h.lock.Depth())
}

func TestOpenUnknownAspect(t *testing.T) {
	h := newHarness(nil, nil)
	err := h.ctrl.Open(OpenOptions{
		Source:        pngSource(t, "p.png", gradientImage(30, 20)),
		InitialAspect: presets.Aspect{Name: "11:3", Kind: presets.Fixed, Width: 11, Height: 3},
	})
	assert.ErrorIs(t, err, ErrUnknownAspect)
	assert.Equal(t, StateClosed, h.ctrl.State())
	assert.Equal(t, 0, h.lock.Depth())
}

func TestGuardsWhenClosed(t *testing.T) {
	h := newHarness(nil, nil)
	ctx := context.Background()

	assert.ErrorIs(t, h.ctrl.Close(), ErrNotOpen)
	assert.ErrorIs(t, h.ctrl.ToggleAspectMenu(), ErrNotOpen)
	assert.ErrorIs(t, h.ctrl.SelectAspect(presets.Square()), ErrNotOpen)
	assert.ErrorIs(t, h.ctrl.Pan(1, 1), ErrNotOpen)
	assert.ErrorIs(t, h.ctrl.Zoom(2), ErrNotOpen)
	assert.ErrorIs(t, h.ctrl.Rotate(), ErrNotOpen)
	assert.ErrorIs(t, h.ctrl.LiveCropChanged(types.Rect{Width: 1, Height: 1}), ErrNotOpen)
	assert.ErrorIs(t, h.ctrl.AutoFrame(ctx), ErrNotOpen)
	_, err := h.ctrl.ConfirmCrop(ctx)
	assert.ErrorIs(t, err, ErrNotOpen)
	_, err = h.ctrl.SkipCrop(ctx)
	assert.ErrorIs(t, err, ErrNotOpen)
	assert.Equal(t, 0, h.lock.Depth())
}

func TestRotateAdvancesByQuarterTurns(t *testing.T) {
	h := newHarness(nil, nil)
	require.NoError(t, h.ctrl.Open(OpenOptions{Source: pngSource(t, "p.png", gradientImage(300, 200))}))

	for _, want := range []int{90, 180, 270, 0} {
		require.NoError(t, h.ctrl.Rotate())
		s := h.ctrl.Session()
		assert.Equal(t, want, s.Rotation)
		box := geometry.RotatedBoundingBox(300, 200, s.Rotation)
		assert.Equal(t, box, s.CropRect.Size(), "free crop covers the rotated image")
	}
}

func TestZoomClamped(t *testing.T) {
	h := newHarness(nil, nil)
	require.NoError(t, h.ctrl.Open(OpenOptions{Source: pngSource(t, "p.png", gradientImage(300, 200))}))

	require.NoError(t, h.ctrl.Zoom(10))
	assert.Equal(t, 3.0, h.ctrl.Session().Zoom)
	require.NoError(t, h.ctrl.ZoomBy(-10))
	assert.Equal(t, 1.0, h.ctrl.Session().Zoom)
}

func TestCropRectContainedUnderInteraction(t *testing.T) {
	h := newHarness(nil, nil)
	require.NoError(t, h.ctrl.Open(OpenOptions{Source: pngSource(t, "p.png", gradientImage(301, 157))}))
	rnd := rand.New(rand.NewSource(3))
	aspects := presets.Aspects()

	for i := 0; i < 500; i++ {
		switch rnd.Intn(5) {
		case 0:
			require.NoError(t, h.ctrl.Pan((rnd.Float64()-0.5)*400, (rnd.Float64()-0.5)*400))
		case 1:
			require.NoError(t, h.ctrl.ZoomBy((rnd.Float64()-0.5)*2))
		case 2:
			require.NoError(t, h.ctrl.Rotate())
		case 3:
			require.NoError(t, h.ctrl.SelectAspect(aspects[rnd.Intn(len(aspects))]))
		case 4:
			require.NoError(t, h.ctrl.SetPan(types.Point{X: rnd.Float64() * 1000, Y: -rnd.Float64() * 1000}))
		}
		s := h.ctrl.Session()
		box := geometry.RotatedBoundingBox(s.Natural.Width, s.Natural.Height, s.Rotation)
		require.NotNil(t, s.CropRect)
		require.True(t, s.CropRect.Within(box), "step %d: %+v escapes %+v", i, *s.CropRect, box)
	}
}

func TestLiveCropChanged(t *testing.T) {
	h := newHarness(nil, nil)
	require.NoError(t, h.ctrl.Open(OpenOptions{Source: pngSource(t, "p.png", gradientImage(300, 200))}))

	rect := types.Rect{X: 10, Y: 20, Width: 100, Height: 50}
	require.NoError(t, h.ctrl.LiveCropChanged(rect))
	assert.Equal(t, rect, *h.ctrl.Session().CropRect)

	err := h.ctrl.LiveCropChanged(types.Rect{X: 250, Y: 0, Width: 100, Height: 50})
	assert.ErrorIs(t, err, geometry.ErrOutOfBoundsCrop)
	assert.Equal(t, rect, *h.ctrl.Session().CropRect)
}

func TestConfirmCropSixteenByNine(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	h := newHarness(transform.New(), processing.NewProcessor(processing.WithMetrics(m)), WithMetrics(m))
	src := pngSource(t, "photo.png", gradientImage(1600, 1200))

	require.NoError(t, h.ctrl.Open(OpenOptions{
		Source:        src,
		InitialAspect: aspect(t, "16:9"),
		Preset:        presets.ProjectHero,
	}))
	require.NoError(t, h.ctrl.ZoomBy(0.5))
	require.NoError(t, h.ctrl.Pan(40, -20))

	asset, err := h.ctrl.ConfirmCrop(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "photo.webp", asset.Name)
	assert.Equal(t, presets.EncodingWebP, asset.Encoding)
	assert.False(t, asset.Fallback)
	assert.LessOrEqual(t, asset.Size, presets.Get(presets.ProjectHero).MaxBytes())

	cfg, err := webp.DecodeConfig(bytes.NewReader(asset.Data))
	require.NoError(t, err)
	assert.InDelta(t, 16.0/9.0, float64(cfg.Width)/float64(cfg.Height), 0.01)

	assert.Equal(t, StateClosed, h.ctrl.State())
	assert.Equal(t, initialPage, h.lock.Page())
	last, ok := h.recorder.Last()
	require.True(t, ok)
	assert.Equal(t, types.SeveritySuccess, last.Severity)

	n, err := testutil.GatherAndCount(reg, "image_ingest_pipeline_runs_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestConfirmCropRotated180(t *testing.T) {
	captured := &capturingCompressor{}
	h := newHarness(transform.New(), captured)
	src := quadrantImage(40, 30)

	require.NoError(t, h.ctrl.Open(OpenOptions{Source: pngSource(t, "plan.jpg", src)}))
	require.NoError(t, h.ctrl.Rotate())
	require.NoError(t, h.ctrl.Rotate())
	require.NoError(t, h.ctrl.LiveCropChanged(types.Rect{Width: 40, Height: 30}))

	_, err := h.ctrl.ConfirmCrop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "plan.png", captured.name)

	out, err := png.Decode(bytes.NewReader(captured.data))
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 40, 30), out.Bounds())
	// yellow bottom-right quadrant is now top-left
	r, g, b, _ := out.At(2, 2).RGBA()
	assert.Equal(t, [3]uint32{0xffff, 0xffff, 0}, [3]uint32{r, g, b})
	r, g, b, _ = out.At(37, 27).RGBA()
	assert.Equal(t, [3]uint32{0, 0, 0}, [3]uint32{r, g, b})
}

func TestSkipCropAvatar(t *testing.T) {
	h := newHarness(nil, nil)
	src := jpegSource(t, "portrait.jpeg", gradientImage(1200, 800))

	require.NoError(t, h.ctrl.Open(OpenOptions{Source: src, Preset: presets.Avatar}))
	asset, err := h.ctrl.SkipCrop(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "portrait.webp", asset.Name)
	assert.Equal(t, "webp", asset.Encoding)
	assert.LessOrEqual(t, asset.Size, int64(0.5*1024*1024))
	cfg, err := webp.DecodeConfig(bytes.NewReader(asset.Data))
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Width)
	assert.Equal(t, 267, cfg.Height)
	assert.Equal(t, StateClosed, h.ctrl.State())
	assert.Equal(t, 0, h.lock.Depth())
}

func TestSkipCropWithoutOriginalBytes(t *testing.T) {
	h := newHarness(nil, nil)
	img := gradientImage(30, 20)
	require.NoError(t, h.ctrl.Open(OpenOptions{
		Source: types.SourceImage{Name: "pasted.png", Natural: types.Size{Width: 30, Height: 20}},
		Image:  img,
	}))

	_, err := h.ctrl.SkipCrop(context.Background())
	assert.ErrorIs(t, err, ErrNoOriginalBytes)
	assert.Equal(t, StateOpen, h.ctrl.State())

	// cropping still works from the decoded image
	captured := &capturingCompressor{}
	h.ctrl.compressor = captured
	_, err = h.ctrl.ConfirmCrop(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, captured.data)
}

func TestUndecodableSourceCanOnlySkip(t *testing.T) {
	h := newHarness(nil, nil)
	corrupt := []byte("definitely not an image")
	require.NoError(t, h.ctrl.Open(OpenOptions{
		Source: types.SourceImage{Name: "broken.jpg", Size: int64(len(corrupt)), Data: corrupt},
	}))
	assert.Nil(t, h.ctrl.Session().CropRect)

	_, err := h.ctrl.ConfirmCrop(context.Background())
	assert.ErrorIs(t, err, ErrNoCropRect)

	asset, err := h.ctrl.SkipCrop(context.Background())
	require.NoError(t, err)
	assert.True(t, asset.Fallback)
	assert.Equal(t, corrupt, asset.Data)
	assert.Equal(t, "broken.jpg", asset.Name)
	assert.Equal(t, StateClosed, h.ctrl.State())
}

func TestConfirmFailureReturnsToOpen(t *testing.T) {
	cause := errors.New("canvas unavailable")
	h := newHarness(failingTransformer{err: cause}, nil)
	require.NoError(t, h.ctrl.Open(OpenOptions{Source: pngSource(t, "p.png", gradientImage(30, 20))}))
	before := h.ctrl.Session()

	_, err := h.ctrl.ConfirmCrop(context.Background())
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, "confirm", abort.Op)
	assert.ErrorIs(t, err, cause)

	assert.Equal(t, StateOpen, h.ctrl.State())
	assert.Equal(t, before, h.ctrl.Session())
	assert.Equal(t, 1, h.lock.Depth())
	assert.Equal(t, 1, h.recorder.Count(types.SeverityError))

	require.NoError(t, h.ctrl.Close())
	assert.Equal(t, initialPage, h.lock.Page())
}

func TestConfirmPanicBecomesAbort(t *testing.T) {
	h := newHarness(panickingTransformer{}, nil)
	require.NoError(t, h.ctrl.Open(OpenOptions{Source: pngSource(t, "p.png", gradientImage(30, 20))}))

	_, err := h.ctrl.ConfirmCrop(context.Background())
	var abort *AbortError
	require.ErrorAs(t, err, &abort)
	assert.Equal(t, StateOpen, h.ctrl.State())
}

func TestCanceledContextAborts(t *testing.T) {
	h := newHarness(nil, nil)
	require.NoError(t, h.ctrl.Open(OpenOptions{Source: pngSource(t, "p.png", gradientImage(30, 20))}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := h.ctrl.SkipCrop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateOpen, h.ctrl.State())
	assert.Equal(t, 1, h.lock.Depth())
}

func TestSingleProcessingRun(t *testing.T) {
	blocking := newBlockingCompressor()
	h := newHarness(nil, blocking)
	require.NoError(t, h.ctrl.Open(OpenOptions{Source: pngSource(t, "p.png", gradientImage(30, 20))}))

	done := make(chan error, 1)
	go func() {
		_, err := h.ctrl.ConfirmCrop(context.Background())
		done <- err
	}()

	select {
	case <-blocking.started:
	case <-time.After(5 * time.Second):
		t.Fatal("processing never started")
	}

	assert.Equal(t, StateProcessing, h.ctrl.State())
	_, err := h.ctrl.ConfirmCrop(context.Background())
	assert.ErrorIs(t, err, ErrProcessing)
	_, err = h.ctrl.SkipCrop(context.Background())
	assert.ErrorIs(t, err, ErrProcessing)
	assert.ErrorIs(t, h.ctrl.Close(), ErrProcessing)
	assert.ErrorIs(t, h.ctrl.Pan(1, 0), ErrProcessing)
	assert.ErrorIs(t, h.ctrl.Open(OpenOptions{}), ErrProcessing)
	assert.Equal(t, 1, h.lock.Depth())

	close(blocking.release)
	require.NoError(t, <-done)
	assert.Equal(t, StateClosed, h.ctrl.State())
	assert.Equal(t, 0, h.lock.Depth())
}

func TestAutoFrame(t *testing.T) {
	h := newHarness(nil, nil, WithFocusLocator(fixedLocator{focus: types.FocusPoint{X: 0.9, Y: 0.5, Label: "chair"}}))
	require.NoError(t, h.ctrl.Open(OpenOptions{
		Source:        pngSource(t, "p.png", gradientImage(400, 200)),
		InitialAspect: presets.Square(),
	}))
	assert.Equal(t, types.Rect{X: 100, Y: 0, Width: 200, Height: 200}, *h.ctrl.Session().CropRect)

	require.NoError(t, h.ctrl.AutoFrame(context.Background()))
	s := h.ctrl.Session()
	assert.Equal(t, types.Rect{X: 200, Y: 0, Width: 200, Height: 200}, *s.CropRect)
	assert.Equal(t, types.Point{X: 100, Y: 0}, s.Pan)
}

func TestAutoFrameFailureLeavesSession(t *testing.T) {
	h := newHarness(nil, nil, WithFocusLocator(fixedLocator{err: errors.New("model offline")}))
	require.NoError(t, h.ctrl.Open(OpenOptions{Source: pngSource(t, "p.png", gradientImage(400, 200))}))
	before := h.ctrl.Session()

	assert.Error(t, h.ctrl.AutoFrame(context.Background()))
	assert.Equal(t, before, h.ctrl.Session())
	assert.Equal(t, 1, h.recorder.Count(types.SeverityWarning))

	plain := newHarness(nil, nil)
	require.NoError(t, plain.ctrl.Open(OpenOptions{Source: pngSource(t, "p.png", gradientImage(40, 20))}))
	assert.ErrorIs(t, plain.ctrl.AutoFrame(context.Background()), ErrNoFocusLocator)
}

func TestUnknownPresetUsesDefault(t *testing.T) {
	h := newHarness(nil, nil)
	require.NoError(t, h.ctrl.Open(OpenOptions{
		Source: pngSource(t, "p.png", gradientImage(30, 20)),
		Preset: presets.Name("banner"),
	}))
	assert.Equal(t, presets.Default, h.ctrl.Preset().Name)
}

func TestCustomZoomBounds(t *testing.T) {
	h := newHarness(nil, nil, WithSurface(cropper.NewWithConfig(cropper.Config{MinZoom: 0.5, MaxZoom: 4})))
	require.NoError(t, h.ctrl.Open(OpenOptions{Source: pngSource(t, "p.png", gradientImage(300, 200))}))

	require.NoError(t, h.ctrl.Zoom(9))
	assert.Equal(t, 4.0, h.ctrl.Session().Zoom)

	// below 1 the rect stays the largest one of the selected ratio
	require.NoError(t, h.ctrl.SelectAspect(aspect(t, "16:9")))
	require.NoError(t, h.ctrl.Zoom(0.5))
	s := h.ctrl.Session()
	assert.Equal(t, 1.0, s.Zoom)
	require.NotNil(t, s.CropRect)
	assert.Equal(t, types.Rect{X: 0, Y: 16, Width: 300, Height: 169}, *s.CropRect)
}

func TestCustomZoomBoundsConfirmKeepsAspect(t *testing.T) {
	h := newHarness(nil, nil, WithSurface(cropper.NewWithConfig(cropper.Config{MinZoom: 0.5, MaxZoom: 4})))
	require.NoError(t, h.ctrl.Open(OpenOptions{
		Source:        pngSource(t, "p.png", gradientImage(1600, 1200)),
		InitialAspect: aspect(t, "16:9"),
	}))
	require.NoError(t, h.ctrl.Zoom(0.5))

	asset, err := h.ctrl.ConfirmCrop(context.Background())
	require.NoError(t, err)
	cfg, err := webp.DecodeConfig(bytes.NewReader(asset.Data))
	require.NoError(t, err)
	assert.InDelta(t, 16.0/9.0, float64(cfg.Width)/float64(cfg.Height), 0.01)
}

func TestInteractWhileAspectMenuOpen(t *testing.T) {
	h := newHarness(nil, nil)
	require.NoError(t, h.ctrl.Open(OpenOptions{Source: pngSource(t, "p.png", gradientImage(300, 200))}))
	require.NoError(t, h.ctrl.ToggleAspectMenu())

	// the menu only changes which controls are shown
	require.NoError(t, h.ctrl.Rotate())
	require.NoError(t, h.ctrl.Zoom(2))
	require.NoError(t, h.ctrl.Pan(10, 0))
	assert.Equal(t, StateAspectMenu, h.ctrl.State())

	s := h.ctrl.Session()
	assert.Equal(t, 90, s.Rotation)
	assert.Equal(t, 2.0, s.Zoom)
	require.NotNil(t, s.CropRect)
	assert.True(t, s.CropRect.Within(types.Size{Width: 200, Height: 300}))

	require.NoError(t, h.ctrl.SelectAspect(aspect(t, "1:1")))
	assert.Equal(t, StateOpen, h.ctrl.State())
	assert.Equal(t, 90, h.ctrl.Session().Rotation)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "aspect-menu", StateAspectMenu.String())
	assert.Equal(t, "processing", StateProcessing.String())
	assert.Equal(t, "state(9)", State(9).String())
}
