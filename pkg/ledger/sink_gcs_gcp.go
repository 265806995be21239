//go:build gcp

package ledger

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/storage"
)

// GCSSink uploads evidence bundles to Google Cloud Storage using
// application default credentials.
type GCSSink struct {
	client *storage.Client
	bucket string
	prefix string
	clock  func() time.Time
}

// NewGCSSink creates the sink.
func NewGCSSink(ctx context.Context, cfg GCSSinkConfig) (*GCSSink, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: create gcs client: %w", err)
	}
	return &GCSSink{
		client: client,
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		clock:  time.Now,
	}, nil
}

func newGCSBundleSink(ctx context.Context, cfg GCSSinkConfig) (BundleSink, error) {
	return NewGCSSink(ctx, cfg)
}

// Store uploads the bundle and returns its object name.
func (s *GCSSink) Store(ctx context.Context, bundle []byte, checksum string) (string, error) {
	name := fmt.Sprintf("%sevidence-%s-%s.zip",
		s.prefix, s.clock().UTC().Format("20060102T150405Z"), shortChecksum(checksum))

	w := s.client.Bucket(s.bucket).Object(name).NewWriter(ctx)
	w.ContentType = "application/zip"
	if _, err := w.Write(bundle); err != nil {
		_ = w.Close()
		return "", fmt.Errorf("ledger: upload bundle to gcs: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", fmt.Errorf("ledger: finalize gcs upload: %w", err)
	}
	return name, nil
}
