package storage

import (
	"bytes"
	"context"
	"fmt"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/menta2k/image-ingest/internal/utils"
	"github.com/menta2k/image-ingest/pkg/types"
)

// PutObjectAPI is the part of the S3 client the sink uses
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures the S3 sink
type S3Config struct {
	Bucket        string
	Region        string // default: us-east-1
	Prefix        string
	Endpoint      string // optional, for S3-compatible storage
	PublicBaseURL string
}

// S3Sink uploads assets to a bucket
type S3Sink struct {
	client PutObjectAPI
	cfg    S3Config
}

// NewS3Sink creates a sink using the default AWS credential chain
func NewS3Sink(ctx context.Context, cfg S3Config) (*S3Sink, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("s3 sink: bucket is required")
	}
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var opts []func(*s3.Options)
	if cfg.Endpoint != "" {
		opts = append(opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		})
	}

	return NewS3SinkWithClient(s3.NewFromConfig(awsCfg, opts...), cfg), nil
}

// NewS3SinkWithClient creates a sink over an existing client
func NewS3SinkWithClient(client PutObjectAPI, cfg S3Config) *S3Sink {
	if cfg.Region == "" {
		cfg.Region = "us-east-1"
	}
	return &S3Sink{client: client, cfg: cfg}
}

// Put uploads the asset under a fresh key and returns its URL
func (s *S3Sink) Put(ctx context.Context, asset types.OutputAsset) (string, error) {
	key := objectKey(s.cfg.Prefix, asset.Name)

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(asset.Data),
		ContentLength: aws.Int64(int64(len(asset.Data))),
		ContentType:   aws.String(utils.ContentType(asset.Encoding)),
		CacheControl:  aws.String("public, max-age=31536000, immutable"),
		Metadata: map[string]string{
			"encoding": asset.Encoding,
			"fallback": strconv.FormatBool(asset.Fallback),
		},
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to put object: %w", err)
	}

	return s.url(key), nil
}

func (s *S3Sink) url(key string) string {
	switch {
	case s.cfg.PublicBaseURL != "":
		return joinURL(s.cfg.PublicBaseURL, key)
	case s.cfg.Endpoint != "":
		return joinURL(joinURL(s.cfg.Endpoint, s.cfg.Bucket), key)
	}
	return fmt.Sprintf("https://%s.s3.%s.amazonaws.com/%s", s.cfg.Bucket, s.cfg.Region, key)
}
