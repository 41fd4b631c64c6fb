package cache

import (
	"context"
	"time"
)

// ImageURLCache remembers where a source image URL was re-hosted, so a
// repeated catalog import does not download and upload the same image
// again. Only derived data lives here; a miss is never an error path.
type ImageURLCache interface {
	Get(ctx context.Context, sourceURL string) (string, bool, error)
	Set(ctx context.Context, sourceURL string, hostedURL string, ttl time.Duration) error
}

type NoopImageURLCache struct{}

func (NoopImageURLCache) Get(_ context.Context, _ string) (string, bool, error) {
	return "", false, nil
}

func (NoopImageURLCache) Set(_ context.Context, _ string, _ string, _ time.Duration) error {
	return nil
}
