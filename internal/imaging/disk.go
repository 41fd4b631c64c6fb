package imaging

import (
	"context"
	"os"
	"path/filepath"
	"strings"
)

// DiskObjectStore writes objects under a local directory and serves them
// from a configured base URL. It is the development default; production
// deployments plug in object storage behind the same interface.
type DiskObjectStore struct {
	dir     string
	baseURL string
}

func NewDiskObjectStore(dir string, baseURL string) *DiskObjectStore {
	return &DiskObjectStore{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}
}

func (s *DiskObjectStore) Upload(_ context.Context, path string, data []byte, _ string) (string, error) {
	full := filepath.Join(s.dir, filepath.FromSlash(path))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return "", err
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return "", err
	}
	return s.baseURL + "/" + path, nil
}
