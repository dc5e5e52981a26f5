package fs_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	fsstorage "github.com/tendant/simple-cms/pkg/simplecms/storage/fs"
)

func TestFSBackend(t *testing.T) {
	baseDir := t.TempDir()
	backend, err := fsstorage.New(fsstorage.Config{BaseDir: baseDir, URLPrefix: "http://cdn.example.com/media/"})
	require.NoError(t, err)

	ctx := context.Background()
	key := "uploads/2026/10/photo.png"

	require.NoError(t, backend.Upload(ctx, key, strings.NewReader("png-bytes"), "image/png"))
	_, err = os.Stat(filepath.Join(baseDir, "uploads", "2026", "10", "photo.png"))
	require.NoError(t, err)

	rc, err := backend.Download(ctx, key)
	require.NoError(t, err)
	data, err := io.ReadAll(rc)
	rc.Close()
	require.NoError(t, err)
	assert.Equal(t, "png-bytes", string(data))

	u, err := backend.GetDownloadURL(ctx, key, "my photo.png")
	require.NoError(t, err)
	assert.Equal(t, "http://cdn.example.com/media/uploads/2026/10/photo.png?filename=my+photo.png", u)

	require.NoError(t, backend.Delete(ctx, key))
	_, err = os.Stat(filepath.Join(baseDir, "uploads"))
	assert.True(t, os.IsNotExist(err), "empty directories are removed")

	_, err = backend.Download(ctx, key)
	assert.ErrorIs(t, err, simplecms.ErrObjectNotFound)
	assert.ErrorIs(t, backend.Delete(ctx, key), simplecms.ErrObjectNotFound)
}

func TestFSBackend_KeysStayInBaseDir(t *testing.T) {
	baseDir := t.TempDir()
	backend, err := fsstorage.New(fsstorage.Config{BaseDir: filepath.Join(baseDir, "store")})
	require.NoError(t, err)

	ctx := context.Background()
	require.NoError(t, backend.Upload(ctx, "../../escape.txt", strings.NewReader("x"), "text/plain"))

	_, err = os.Stat(filepath.Join(baseDir, "escape.txt"))
	assert.True(t, os.IsNotExist(err))
	_, err = os.Stat(filepath.Join(baseDir, "store", "escape.txt"))
	assert.NoError(t, err)

	assert.Error(t, backend.Upload(ctx, "/", strings.NewReader("x"), ""))

	_, err = backend.GetDownloadURL(ctx, "escape.txt", "")
	assert.ErrorIs(t, err, simplecms.ErrNoDirectURL, "no URL prefix configured")
}

func TestFSBackend_RequiresBaseDir(t *testing.T) {
	_, err := fsstorage.New(fsstorage.Config{})
	assert.Error(t, err)
}
