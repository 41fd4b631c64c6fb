package imaging

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memObjectStore struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: make(map[string][]byte)}
}

func (s *memObjectStore) Upload(_ context.Context, path string, data []byte, _ string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = data
	return "https://cdn.test/" + path, nil
}

func TestRehostStoresImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png-bytes"))
	}))
	defer srv.Close()

	objects := newMemObjectStore()
	r := NewRehoster(objects, nil)

	hosted, err := r.Rehost(context.Background(), "prod-1", srv.URL+"/a.png")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hosted, "https://cdn.test/products/prod-1/"))
	assert.True(t, strings.HasSuffix(hosted, ".png"))
	assert.Len(t, objects.objects, 1)
}

func TestRehostRejectsNonImageContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		_, _ = w.Write([]byte("<html>not found</html>"))
	}))
	defer srv.Close()

	r := NewRehoster(newMemObjectStore(), nil)
	_, err := r.Rehost(context.Background(), "prod-1", srv.URL+"/a.png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported content type")
}

func TestRehostRejectsOversizedImage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write(make([]byte, 1024))
	}))
	defer srv.Close()

	r := NewRehoster(newMemObjectStore(), nil)
	r.maxBytes = 512

	_, err := r.Rehost(context.Background(), "prod-1", srv.URL+"/big.jpg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "exceeds")
}

type staticCache struct {
	hosted string
	sets   int
}

func (c *staticCache) Get(_ context.Context, _ string) (string, bool, error) {
	return c.hosted, c.hosted != "", nil
}

func (c *staticCache) Set(_ context.Context, _ string, hosted string, _ time.Duration) error {
	c.hosted = hosted
	c.sets++
	return nil
}

func TestRehostUsesCachedURL(t *testing.T) {
	r := NewRehoster(newMemObjectStore(), &staticCache{hosted: "https://cdn.test/cached.png"})

	hosted, err := r.Rehost(context.Background(), "prod-1", "http://origin.invalid/a.png")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/cached.png", hosted)
}

func TestRehostAllBoundsConcurrency(t *testing.T) {
	var inFlight, peak atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := inFlight.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(20 * time.Millisecond)
		inFlight.Add(-1)
		w.Header().Set("Content-Type", "image/png")
		_, _ = w.Write([]byte("png"))
	}))
	defer srv.Close()

	r := NewRehoster(newMemObjectStore(), nil)
	reqs := make([]Request, 20)
	for i := range reqs {
		reqs[i] = Request{ProductID: fmt.Sprintf("p-%d", i), SourceURL: fmt.Sprintf("%s/%d.png", srv.URL, i)}
	}

	results := r.RehostAll(context.Background(), reqs)
	require.Len(t, results, 20)
	for _, res := range results {
		assert.NoError(t, res.Err)
		assert.NotEmpty(t, res.HostedURL)
	}
	assert.LessOrEqual(t, peak.Load(), int32(defaultWorkers))
}
