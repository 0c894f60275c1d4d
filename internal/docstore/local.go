package docstore

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

// LocalBackend writes documents under a directory served at baseURL.
type LocalBackend struct {
	dir     string
	baseURL string
}

// NewLocalBackend creates dir if needed.
func NewLocalBackend(dir, baseURL string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("docstore: create %s: %w", dir, err)
	}
	return &LocalBackend{dir: dir, baseURL: strings.TrimRight(baseURL, "/")}, nil
}

func (b *LocalBackend) resolve(path string) (string, error) {
	clean := filepath.Clean("/" + path)
	if clean == "/" {
		return "", fmt.Errorf("docstore: invalid path %q", path)
	}
	return filepath.Join(b.dir, filepath.FromSlash(clean)), nil
}

func (b *LocalBackend) Put(_ context.Context, path string, data []byte, _, _ string) error {
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return err
	}
	tmp := full + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, full)
}

func (b *LocalBackend) Delete(_ context.Context, path string) error {
	full, err := b.resolve(path)
	if err != nil {
		return err
	}
	err = os.Remove(full)
	if errors.Is(err, fs.ErrNotExist) {
		return ErrNotFound
	}
	return err
}

func (b *LocalBackend) URL(path string) string {
	return b.baseURL + "/" + strings.TrimPrefix(path, "/")
}

func (b *LocalBackend) PathFromURL(url string) (string, bool) {
	prefix := b.baseURL + "/"
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

// Handler serves the stored documents; mount it with http.StripPrefix.
func (b *LocalBackend) Handler() http.Handler {
	files := http.FileServer(http.Dir(b.dir))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/") {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Cache-Control", cacheImmutable)
		files.ServeHTTP(w, r)
	})
}
