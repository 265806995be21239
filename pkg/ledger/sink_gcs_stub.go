//go:build !gcp

package ledger

import (
	"context"
	"errors"
)

func newGCSBundleSink(ctx context.Context, cfg GCSSinkConfig) (BundleSink, error) {
	return nil, errors.New("ledger: gcs sink requires a build with the gcp tag")
}
