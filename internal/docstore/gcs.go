package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/option"
)

const gcsPublicHost = "https://storage.googleapis.com"

// GCSBackend stores documents in a Google Cloud Storage bucket.
type GCSBackend struct {
	client *storage.Client
	bucket string
}

// NewGCSBackend dials GCS. An empty credentialsFile uses application default credentials.
func NewGCSBackend(ctx context.Context, bucket, credentialsFile string) (*GCSBackend, error) {
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("docstore: GCS_BUCKET is required")
	}
	var opts []option.ClientOption
	if credentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(credentialsFile))
	}
	client, err := storage.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("docstore: gcs client: %w", err)
	}
	return &GCSBackend{client: client, bucket: bucket}, nil
}

func (b *GCSBackend) Put(ctx context.Context, path string, data []byte, contentType, cacheControl string) error {
	w := b.client.Bucket(b.bucket).Object(path).NewWriter(ctx)
	w.ContentType = contentType
	w.CacheControl = cacheControl
	if _, err := w.Write(data); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}

func (b *GCSBackend) Delete(ctx context.Context, path string) error {
	err := b.client.Bucket(b.bucket).Object(path).Delete(ctx)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return ErrNotFound
	}
	return err
}

func (b *GCSBackend) URL(path string) string {
	return fmt.Sprintf("%s/%s/%s", gcsPublicHost, b.bucket, path)
}

func (b *GCSBackend) PathFromURL(url string) (string, bool) {
	prefix := fmt.Sprintf("%s/%s/", gcsPublicHost, b.bucket)
	if !strings.HasPrefix(url, prefix) {
		return "", false
	}
	return strings.TrimPrefix(url, prefix), true
}

// Close releases the client.
func (b *GCSBackend) Close() error {
	return b.client.Close()
}
