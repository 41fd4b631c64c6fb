// Package imaging re-hosts catalog images referenced by external URLs onto
// storage this system controls. Re-hosting is best effort: a failed image
// never fails the catalog row that referenced it.
package imaging

import (
	"context"
	"crypto/sha256"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"kasirhub/backend/internal/cache"
)

const (
	defaultWorkers  = 5
	defaultTimeout  = 10 * time.Second
	defaultMaxBytes = 5 << 20
	cacheTTL        = 30 * 24 * time.Hour
)

var allowedContentTypes = map[string]string{
	"image/jpeg": ".jpg",
	"image/png":  ".png",
	"image/webp": ".webp",
	"image/gif":  ".gif",
}

// ObjectStore is where fetched image bytes end up. Upload returns the
// public URL of the stored object.
type ObjectStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) (string, error)
}

type Request struct {
	ProductID string
	SourceURL string
}

type Result struct {
	ProductID string
	SourceURL string
	HostedURL string
	Err       error
}

type Rehoster struct {
	client  *http.Client
	objects ObjectStore
	urls    cache.ImageURLCache

	workers  int
	timeout  time.Duration
	maxBytes int64
}

func NewRehoster(objects ObjectStore, urls cache.ImageURLCache) *Rehoster {
	if urls == nil {
		urls = cache.NoopImageURLCache{}
	}
	return &Rehoster{
		client:   &http.Client{Timeout: defaultTimeout},
		objects:  objects,
		urls:     urls,
		workers:  defaultWorkers,
		timeout:  defaultTimeout,
		maxBytes: defaultMaxBytes,
	}
}

// RehostAll fetches and stores the requested images in chunks of r.workers,
// waiting for each chunk to finish before starting the next. Results come
// back in request order; individual failures are recorded per result, never
// returned as a batch error.
func (r *Rehoster) RehostAll(ctx context.Context, reqs []Request) []Result {
	results := make([]Result, len(reqs))
	for start := 0; start < len(reqs); start += r.workers {
		end := start + r.workers
		if end > len(reqs) {
			end = len(reqs)
		}
		var wg sync.WaitGroup
		for i := start; i < end; i++ {
			wg.Add(1)
			go func(i int, req Request) {
				defer wg.Done()
				hosted, err := r.Rehost(ctx, req.ProductID, req.SourceURL)
				results[i] = Result{
					ProductID: req.ProductID,
					SourceURL: req.SourceURL,
					HostedURL: hosted,
					Err:       err,
				}
			}(i, reqs[i])
		}
		wg.Wait()
	}
	return results
}

// Rehost fetches one image and uploads it, consulting the URL cache first.
func (r *Rehoster) Rehost(ctx context.Context, productID string, sourceURL string) (string, error) {
	if cached, ok, err := r.urls.Get(ctx, sourceURL); err == nil && ok {
		return cached, nil
	}

	fetchCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(fetchCtx, http.MethodGet, sourceURL, nil)
	if err != nil {
		return "", fmt.Errorf("build request: %w", err)
	}
	resp, err := r.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetch image: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("fetch image: status %d", resp.StatusCode)
	}
	contentType := strings.ToLower(strings.TrimSpace(strings.Split(resp.Header.Get("Content-Type"), ";")[0]))
	ext, ok := allowedContentTypes[contentType]
	if !ok {
		return "", fmt.Errorf("unsupported content type %q", contentType)
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, r.maxBytes+1))
	if err != nil {
		return "", fmt.Errorf("read image: %w", err)
	}
	if int64(len(data)) > r.maxBytes {
		return "", fmt.Errorf("image exceeds %d bytes", r.maxBytes)
	}

	sum := sha256.Sum256([]byte(sourceURL))
	path := fmt.Sprintf("products/%s/%x%s", productID, sum[:8], ext)
	hosted, err := r.objects.Upload(ctx, path, data, contentType)
	if err != nil {
		return "", fmt.Errorf("upload image: %w", err)
	}

	// Cache write failures only cost a re-download next time.
	_ = r.urls.Set(ctx, sourceURL, hosted, cacheTTL)
	return hosted, nil
}
