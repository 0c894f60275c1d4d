// Package docstore keeps versioned quote PDFs in blob storage.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"
)

const (
	contentTypePDF = "application/pdf"
	cacheImmutable = "public, max-age=31536000"
)

// ErrNotFound is returned by backends when an object does not exist.
var ErrNotFound = errors.New("docstore: object not found")

// Backend is a blob store addressed by slash separated paths.
type Backend interface {
	Put(ctx context.Context, path string, data []byte, contentType, cacheControl string) error
	Delete(ctx context.Context, path string) error
	URL(path string) string
	// PathFromURL maps a public URL produced by URL back to its path.
	PathFromURL(url string) (string, bool)
}

// Object is a quote document to upload.
type Object struct {
	QuoteNumber string
	Version     int
	Data        []byte
}

// Path is the storage path of the object.
func (o Object) Path() string {
	return ObjectPath(o.QuoteNumber, o.Version)
}

// ObjectPath returns quotes/{quoteNumber}/quote-v{version}.pdf.
func ObjectPath(quoteNumber string, version int) string {
	return fmt.Sprintf("quotes/%s/quote-v%d.pdf", strings.TrimSpace(quoteNumber), version)
}

// Store replaces quote documents on a backend.
type Store struct {
	backend Backend
	logger  *slog.Logger
}

// New constructs a Store.
func New(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger}
}

// Replace uploads obj and removes the previous documents while the upload runs.
// A failed delete is logged only; a failed upload is returned.
func (s *Store) Replace(ctx context.Context, obj Object, previous ...string) (string, error) {
	if s == nil || s.backend == nil {
		return "", errors.New("docstore: store not configured")
	}
	if obj.QuoteNumber == "" || obj.Version < 1 {
		return "", fmt.Errorf("docstore: invalid object %q v%d", obj.QuoteNumber, obj.Version)
	}
	if len(obj.Data) == 0 {
		return "", errors.New("docstore: empty document")
	}

	path := obj.Path()
	newURL := s.backend.URL(path)

	var g errgroup.Group
	g.Go(func() error {
		if err := s.backend.Put(ctx, path, obj.Data, contentTypePDF, cacheImmutable); err != nil {
			return fmt.Errorf("docstore: upload %s: %w", path, err)
		}
		return nil
	})
	for _, prev := range uniqueOthers(previous, newURL) {
		prev := prev
		g.Go(func() error {
			s.deleteQuietly(ctx, prev)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return newURL, nil
}

// URLFor is the public URL an object version is, or would be, published at.
func (s *Store) URLFor(quoteNumber string, version int) string {
	return s.backend.URL(ObjectPath(quoteNumber, version))
}

// Delete removes a document by its public URL. Missing objects are not an error.
func (s *Store) Delete(ctx context.Context, url string) error {
	path, ok := s.backend.PathFromURL(url)
	if !ok {
		return fmt.Errorf("docstore: url %q not owned by this store", url)
	}
	if err := s.backend.Delete(ctx, path); err != nil && !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("docstore: delete %s: %w", path, err)
	}
	return nil
}

func (s *Store) deleteQuietly(ctx context.Context, url string) {
	if err := s.Delete(ctx, url); err != nil {
		s.logger.Warn("delete previous quote document", slog.String("url", url), slog.Any("error", err))
	}
}

func uniqueOthers(urls []string, exclude string) []string {
	seen := map[string]struct{}{exclude: {}}
	out := make([]string, 0, len(urls))
	for _, u := range urls {
		u = strings.TrimSpace(u)
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		out = append(out, u)
	}
	return out
}
