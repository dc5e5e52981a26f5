package memory

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

type object struct {
	data     []byte
	mimeType string
}

// Backend is an in-memory implementation of the simplecms.BlobStore interface
type Backend struct {
	mu      sync.RWMutex
	objects map[string]object
}

// New creates a new in-memory storage backend
func New() *Backend {
	return &Backend{objects: make(map[string]object)}
}

// Upload stores the whole content of reader under objectKey
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader, mimeType string) error {
	data, err := io.ReadAll(reader)
	if err != nil {
		return err
	}
	if mimeType == "" {
		mimeType = "application/octet-stream"
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	b.objects[objectKey] = object{data: data, mimeType: mimeType}
	return nil
}

// Download returns a reader over the stored bytes
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	obj, exists := b.objects[objectKey]
	if !exists {
		return nil, fmt.Errorf("%w: %s", simplecms.ErrObjectNotFound, objectKey)
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

// Delete deletes content
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, exists := b.objects[objectKey]; !exists {
		return fmt.Errorf("%w: %s", simplecms.ErrObjectNotFound, objectKey)
	}
	delete(b.objects, objectKey)
	return nil
}

// GetDownloadURL is not supported; the memory backend is read through Download
func (b *Backend) GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error) {
	return "", simplecms.ErrNoDirectURL
}

// MimeType returns the MIME type recorded for objectKey.
func (b *Backend) MimeType(objectKey string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	obj, ok := b.objects[objectKey]
	return obj.mimeType, ok
}

// Len returns the number of stored objects.
func (b *Backend) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.objects)
}
