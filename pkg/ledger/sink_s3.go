package ledger

import (
	"bytes"
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// BundleSink stores an exported evidence bundle off-box and returns its
// storage location.
type BundleSink interface {
	Store(ctx context.Context, bundle []byte, checksum string) (string, error)
}

// S3Sink uploads evidence bundles to S3, keyed by export time and
// checksum so uploads are idempotent per bundle content.
type S3Sink struct {
	client *s3.Client
	bucket string
	prefix string
	clock  func() time.Time
}

// S3SinkConfig holds S3 sink settings. Endpoint supports MinIO and
// LocalStack style deployments.
type S3SinkConfig struct {
	Bucket   string
	Region   string
	Endpoint string
	Prefix   string
}

// NewS3Sink creates the sink with default AWS credential resolution.
func NewS3Sink(ctx context.Context, cfg S3SinkConfig) (*S3Sink, error) {
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("ledger: load aws config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}

	return &S3Sink{
		client: s3.NewFromConfig(awsCfg, clientOpts),
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		clock:  time.Now,
	}, nil
}

func (s *S3Sink) key(checksum string) string {
	return fmt.Sprintf("%sevidence-%s-%s.zip",
		s.prefix, s.clock().UTC().Format("20060102T150405Z"), shortChecksum(checksum))
}

// Store uploads the bundle and returns its object key.
func (s *S3Sink) Store(ctx context.Context, bundle []byte, checksum string) (string, error) {
	key := s.key(checksum)
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(bundle),
		ContentType: aws.String("application/zip"),
	})
	if err != nil {
		return "", fmt.Errorf("ledger: upload bundle to s3: %w", err)
	}
	return key, nil
}

func shortChecksum(checksum string) string {
	const prefix = "sha256-"
	if len(checksum) > len(prefix)+12 {
		return checksum[len(prefix) : len(prefix)+12]
	}
	return checksum
}
