// Package source loads user-selected images into immutable SourceImage values.
package source

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"image"
	_ "image/gif"
	"image/jpeg"
	_ "image/png"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/webp"

	"github.com/menta2k/image-ingest/internal/utils"
	"github.com/menta2k/image-ingest/pkg/types"
)

// Loader reads and validates source images
type Loader struct {
	config Config
	client *http.Client
}

// Config holds configuration for the loader
type Config struct {
	SupportedFormats []string
	MinImageSize     int
	MaxFileBytes     int64
}

// DefaultConfig returns the loader defaults
func DefaultConfig() Config {
	return Config{
		SupportedFormats: []string{"jpeg", "png", "gif", "webp"},
		MinImageSize:     1,
		MaxFileBytes:     50 << 20,
	}
}

// New creates a new Loader with default configuration
func New() *Loader {
	return NewWithConfig(DefaultConfig())
}

// NewWithConfig creates a new Loader with custom configuration. A
// non-positive MaxFileBytes uses the default limit.
func NewWithConfig(config Config) *Loader {
	if config.MaxFileBytes <= 0 {
		config.MaxFileBytes = DefaultConfig().MaxFileBytes
	}
	return &Loader{
		config: config,
		client: &http.Client{Timeout: 30 * time.Second},
	}
}

// LoadFile reads a source image from disk
func (l *Loader) LoadFile(path string) (types.SourceImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return types.SourceImage{}, fmt.Errorf("failed to read image file: %w", err)
	}
	return l.FromBytes(filepath.Base(path), data)
}

// FromReader reads a source image from r
func (l *Loader) FromReader(name string, r io.Reader) (types.SourceImage, error) {
	limit := l.config.MaxFileBytes
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return types.SourceImage{}, fmt.Errorf("failed to read image data: %w", err)
	}
	if int64(len(data)) > limit {
		return types.SourceImage{}, fmt.Errorf("image too large: more than %d bytes", limit)
	}
	return l.FromBytes(name, data)
}

// FromBytes wraps data as a source image. Only the header is decoded.
func (l *Loader) FromBytes(name string, data []byte) (types.SourceImage, error) {
	if int64(len(data)) > l.config.MaxFileBytes {
		return types.SourceImage{}, fmt.Errorf("image too large: %d bytes (maximum: %d)", len(data), l.config.MaxFileBytes)
	}

	cfg, format, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return types.SourceImage{}, fmt.Errorf("failed to decode image: %w", err)
	}
	if !l.isFormatSupported(format) {
		return types.SourceImage{}, fmt.Errorf("unsupported image format: %s", format)
	}

	// names from URLs often lack an image extension
	if !utils.IsImageFile(name) {
		name = utils.ReplaceExtension(name, format)
	}

	src := types.SourceImage{
		Name:    name,
		Size:    int64(len(data)),
		Format:  format,
		Natural: types.Size{Width: cfg.Width, Height: cfg.Height},
		Data:    data,
	}
	if err := l.Validate(src); err != nil {
		return types.SourceImage{}, err
	}
	return src, nil
}

// FromURL downloads a source image over http(s)
func (l *Loader) FromURL(ctx context.Context, imageURL string) (types.SourceImage, error) {
	parsedURL, err := url.Parse(imageURL)
	if err != nil {
		return types.SourceImage{}, fmt.Errorf("invalid URL: %w", err)
	}
	if parsedURL.Scheme != "http" && parsedURL.Scheme != "https" {
		return types.SourceImage{}, fmt.Errorf("unsupported URL scheme: %s (only http and https are supported)", parsedURL.Scheme)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return types.SourceImage{}, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", "image-ingest/1.0")

	resp, err := l.client.Do(req)
	if err != nil {
		return types.SourceImage{}, fmt.Errorf("failed to download image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return types.SourceImage{}, fmt.Errorf("failed to download image: HTTP %d", resp.StatusCode)
	}
	contentType := resp.Header.Get("Content-Type")
	if !strings.HasPrefix(contentType, "image/") {
		return types.SourceImage{}, fmt.Errorf("URL does not point to an image (Content-Type: %s)", contentType)
	}

	name := filepath.Base(parsedURL.Path)
	if name == "." || name == "/" {
		name = "download"
	}
	return l.FromReader(name, resp.Body)
}

// Load picks FromURL or LoadFile depending on the shape of ref
func (l *Loader) Load(ctx context.Context, ref string) (types.SourceImage, error) {
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		return l.FromURL(ctx, ref)
	}
	return l.LoadFile(ref)
}

// Decode fully decodes the source pixels, applying EXIF orientation
func (l *Loader) Decode(src types.SourceImage) (image.Image, error) {
	img, err := imaging.Decode(bytes.NewReader(src.Data), imaging.AutoOrientation(true))
	if err != nil {
		return nil, fmt.Errorf("failed to decode image: %w", err)
	}
	return img, nil
}

// Validate checks if an image meets minimum requirements
func (l *Loader) Validate(src types.SourceImage) error {
	if src.Natural.Width < l.config.MinImageSize || src.Natural.Height < l.config.MinImageSize {
		return fmt.Errorf("image too small: %dx%d (minimum: %d)",
			src.Natural.Width, src.Natural.Height, l.config.MinImageSize)
	}
	return nil
}

// PreviewURL renders a JPEG thumbnail no larger than maxDim as a data URL,
// suitable for showing the image on a crop surface.
func (l *Loader) PreviewURL(img image.Image, maxDim int) (string, error) {
	thumb := imaging.Fit(img, maxDim, maxDim, imaging.Linear)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, thumb, &jpeg.Options{Quality: 80}); err != nil {
		return "", fmt.Errorf("failed to encode preview: %w", err)
	}
	return "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

func (l *Loader) isFormatSupported(format string) bool {
	for _, supported := range l.config.SupportedFormats {
		if strings.EqualFold(format, supported) {
			return true
		}
	}
	return false
}
