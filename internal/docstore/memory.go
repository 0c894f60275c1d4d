package docstore

import (
	"context"
	"strings"
	"sync"
)

// MemoryBackend keeps documents in a map. Used by tests and DEWATER_TEST_MODE.
type MemoryBackend struct {
	mu        sync.Mutex
	objects   map[string][]byte
	PutErr    error
	DeleteErr error
}

// NewMemoryBackend returns an empty backend.
func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{objects: make(map[string][]byte)}
}

func (b *MemoryBackend) Put(_ context.Context, path string, data []byte, _, _ string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.PutErr != nil {
		return b.PutErr
	}
	b.objects[path] = append([]byte(nil), data...)
	return nil
}

func (b *MemoryBackend) Delete(_ context.Context, path string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.DeleteErr != nil {
		return b.DeleteErr
	}
	if _, ok := b.objects[path]; !ok {
		return ErrNotFound
	}
	delete(b.objects, path)
	return nil
}

func (b *MemoryBackend) URL(path string) string {
	return "memory://" + path
}

func (b *MemoryBackend) PathFromURL(url string) (string, bool) {
	if !strings.HasPrefix(url, "memory://") {
		return "", false
	}
	return strings.TrimPrefix(url, "memory://"), true
}

// Get returns a stored object.
func (b *MemoryBackend) Get(path string) ([]byte, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	data, ok := b.objects[path]
	return data, ok
}

// Len reports the number of stored objects.
func (b *MemoryBackend) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.objects)
}
