package ledger

import "context"

// GCSSinkConfig holds GCS sink settings.
type GCSSinkConfig struct {
	Bucket string
	Prefix string
}

// NewGCSBundleSink creates a GCS-backed BundleSink. Binaries built
// without the gcp tag get an error instead of a sink.
func NewGCSBundleSink(ctx context.Context, cfg GCSSinkConfig) (BundleSink, error) {
	return newGCSBundleSink(ctx, cfg)
}
