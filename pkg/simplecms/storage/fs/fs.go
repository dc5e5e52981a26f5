package fs

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Backend is a filesystem implementation of the simplecms.BlobStore interface
type Backend struct {
	baseDir   string
	urlPrefix string
}

// Config options for the filesystem backend
type Config struct {
	BaseDir   string // Base directory for storing files
	URLPrefix string // Optional URL prefix for download URLs
}

// New creates a new filesystem storage backend
func New(config Config) (*Backend, error) {
	if config.BaseDir == "" {
		return nil, errors.New("base directory is required")
	}
	if err := os.MkdirAll(config.BaseDir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &Backend{
		baseDir:   filepath.Clean(config.BaseDir),
		urlPrefix: strings.TrimRight(config.URLPrefix, "/"),
	}, nil
}

// path resolves objectKey below baseDir, refusing keys that escape it.
func (b *Backend) path(objectKey string) (string, error) {
	clean := filepath.Clean("/" + filepath.FromSlash(objectKey))
	if clean == string(filepath.Separator) {
		return "", fmt.Errorf("invalid object key %q", objectKey)
	}
	return filepath.Join(b.baseDir, clean), nil
}

// Upload writes content to a temp file and renames it into place
func (b *Backend) Upload(ctx context.Context, objectKey string, reader io.Reader, mimeType string) error {
	filePath, err := b.path(objectKey)
	if err != nil {
		return err
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	file, err := os.CreateTemp(dir, ".upload-*")
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer os.Remove(file.Name())

	if _, err := io.Copy(file, reader); err != nil {
		file.Close()
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	if err := os.Rename(file.Name(), filePath); err != nil {
		return fmt.Errorf("failed to store file: %w", err)
	}
	return nil
}

// Download opens the stored file
func (b *Backend) Download(ctx context.Context, objectKey string) (io.ReadCloser, error) {
	filePath, err := b.path(objectKey)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(filePath)
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", simplecms.ErrObjectNotFound, objectKey)
	} else if err != nil {
		return nil, fmt.Errorf("failed to open file: %w", err)
	}
	return file, nil
}

// Delete deletes content from the filesystem
func (b *Backend) Delete(ctx context.Context, objectKey string) error {
	filePath, err := b.path(objectKey)
	if err != nil {
		return err
	}

	if err := os.Remove(filePath); os.IsNotExist(err) {
		return fmt.Errorf("%w: %s", simplecms.ErrObjectNotFound, objectKey)
	} else if err != nil {
		return fmt.Errorf("failed to delete file: %w", err)
	}

	b.cleanupEmptyDirectories(filepath.Dir(filePath))
	return nil
}

// GetDownloadURL returns a URL for downloading content
func (b *Backend) GetDownloadURL(ctx context.Context, objectKey string, downloadFilename string) (string, error) {
	if b.urlPrefix == "" {
		return "", simplecms.ErrNoDirectURL
	}
	if downloadFilename != "" {
		return fmt.Sprintf("%s/%s?filename=%s", b.urlPrefix, objectKey, url.QueryEscape(downloadFilename)), nil
	}
	return fmt.Sprintf("%s/%s", b.urlPrefix, objectKey), nil
}

// cleanupEmptyDirectories removes empty directories up to baseDir
func (b *Backend) cleanupEmptyDirectories(dir string) {
	if dir == b.baseDir || !strings.HasPrefix(dir, b.baseDir) {
		return
	}
	if entries, err := os.ReadDir(dir); err == nil && len(entries) == 0 {
		if os.Remove(dir) == nil {
			b.cleanupEmptyDirectories(filepath.Dir(dir))
		}
	}
}
