package detection

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/menta2k/image-ingest/pkg/types"
)

type stubClient struct {
	result *types.SubjectResult
	err    error
	img    []byte
	prompt string
}

func (s *stubClient) AnalyzeImage(_ context.Context, _, prompt string, img []byte) (*types.SubjectResult, error) {
	s.img, s.prompt = img, prompt
	if s.err != nil {
		return nil, s.err
	}
	r := *s.result
	return &r, nil
}

func testImage() image.Image {
	img := image.NewNRGBA(image.Rect(0, 0, 1600, 900))
	for y := 0; y < 900; y += 3 {
		for x := 0; x < 1600; x += 3 {
			img.SetNRGBA(x, y, color.NRGBA{200, 100, 50, 255})
		}
	}
	return img
}

func TestLocateUsesBoxCenter(t *testing.T) {
	client := &stubClient{result: &types.SubjectResult{
		Primary: types.Subject{Label: "Chair", Confidence: 0.9, Box: types.Box{X: 0.6, Y: 0.2, W: 0.2, H: 0.4}},
	}}
	d := NewDetector(client, "llava", WithMaxDimension(400))

	focus, err := d.Locate(context.Background(), testImage())
	require.NoError(t, err)
	assert.InDelta(t, 0.7, focus.X, 1e-9)
	assert.InDelta(t, 0.4, focus.Y, 1e-9)
	assert.Equal(t, "Chair", focus.Label)

	cfg, err := jpeg.DecodeConfig(bytes.NewReader(client.img))
	require.NoError(t, err)
	assert.Equal(t, 400, cfg.Width)
	assert.Equal(t, 225, cfg.Height)
	assert.Equal(t, DefaultPrompt, client.prompt)
}

func TestLocateFallsBackToCenterFields(t *testing.T) {
	client := &stubClient{result: &types.SubjectResult{
		Primary: types.Subject{Label: "lamp", Confidence: 0.5, Cx: 1.4, Cy: 0.3},
	}}

	focus, err := NewDetector(client, "m").Locate(context.Background(), testImage())
	require.NoError(t, err)
	assert.Equal(t, 1.0, focus.X)
	assert.Equal(t, 0.3, focus.Y)
}

func TestLocateNoSubject(t *testing.T) {
	for _, p := range []types.Subject{
		{Label: "none", Confidence: 0.9},
		{Label: "table", Confidence: 0.05, Box: types.Box{W: 0.5, H: 0.5}},
	} {
		client := &stubClient{result: &types.SubjectResult{Primary: p}}
		_, err := NewDetector(client, "m").Locate(context.Background(), testImage())
		assert.ErrorIs(t, err, ErrNoSubject)
	}
}

func TestLocateClientError(t *testing.T) {
	cause := errors.New("connection refused")
	_, err := NewDetector(&stubClient{err: cause}, "m").Locate(context.Background(), testImage())
	assert.ErrorIs(t, err, cause)
}

func TestDetectSubjectNormalizes(t *testing.T) {
	client := &stubClient{result: &types.SubjectResult{
		Primary: types.Subject{Label: "door", Confidence: 1.7, Box: types.Box{X: 50, Y: 10, W: 80, H: 20}},
		Tags:    []string{" Wood ", "wood", "", "door", "a", "b", "c", "d"},
	}}
	res, err := NewDetector(client, "m", WithPrompt("p")).DetectSubject(context.Background(), []byte("x"))
	require.NoError(t, err)

	assert.Equal(t, 1.0, res.Primary.Confidence)
	assert.Equal(t, types.Box{X: 0.5, Y: 0.1, W: 0.5, H: 0.2}, res.Primary.Box)
	assert.Equal(t, []string{"wood", "door", "a", "b", "c"}, res.Tags)
	assert.Equal(t, "p", client.prompt)
}
