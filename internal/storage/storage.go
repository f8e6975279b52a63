// Package storage persists emitted assets and returns their public URLs. The
// pipeline never calls it; the CLI does, after a run succeeds.
package storage

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"

	"github.com/menta2k/image-ingest/internal/config"
	"github.com/menta2k/image-ingest/internal/utils"
	"github.com/menta2k/image-ingest/pkg/types"
)

// Sink stores an asset and returns the URL it can be fetched from
type Sink interface {
	Put(ctx context.Context, asset types.OutputAsset) (string, error)
}

// objectKey builds a collision-free key under prefix that still carries the
// asset name
func objectKey(prefix, name string) string {
	return path.Join(prefix, uuid.NewString()+"-"+utils.SanitizeFilename(name))
}

// LocalSink writes assets below a directory
type LocalSink struct {
	dir           string
	prefix        string
	publicBaseURL string
}

// NewLocalSink creates a sink rooted at dir
func NewLocalSink(dir, prefix, publicBaseURL string) *LocalSink {
	return &LocalSink{dir: dir, prefix: prefix, publicBaseURL: publicBaseURL}
}

// Put writes the asset and returns its public URL, or a file URL when no
// base URL is configured
func (s *LocalSink) Put(ctx context.Context, asset types.OutputAsset) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	key := objectKey(s.prefix, asset.Name)
	target := filepath.Join(s.dir, filepath.FromSlash(key))

	if err := utils.EnsureDir(filepath.Dir(target)); err != nil {
		return "", err
	}
	if err := os.WriteFile(target, asset.Data, 0644); err != nil {
		return "", fmt.Errorf("failed to write asset: %w", err)
	}

	if s.publicBaseURL != "" {
		return joinURL(s.publicBaseURL, key), nil
	}
	abs, err := filepath.Abs(target)
	if err != nil {
		abs = target
	}
	return (&url.URL{Scheme: "file", Path: filepath.ToSlash(abs)}).String(), nil
}

func joinURL(base, key string) string {
	return strings.TrimRight(base, "/") + "/" + key
}

// New builds the sink selected by cfg
func New(ctx context.Context, cfg config.StorageConfig) (Sink, error) {
	switch cfg.Backend {
	case config.StorageLocal, "":
		return NewLocalSink(cfg.Dir, cfg.Prefix, cfg.PublicBaseURL), nil
	case config.StorageS3:
		return NewS3Sink(ctx, S3Config{
			Bucket:        cfg.Bucket,
			Region:        cfg.Region,
			Prefix:        cfg.Prefix,
			Endpoint:      cfg.Endpoint,
			PublicBaseURL: cfg.PublicBaseURL,
		})
	}
	return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
}
