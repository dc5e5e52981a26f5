package simplecms_test

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-cms/pkg/simplecms"
	"github.com/tendant/simple-cms/pkg/simplecms/repo/memory"
	fsstorage "github.com/tendant/simple-cms/pkg/simplecms/storage/fs"
)

func TestParseMediaURLStrategy(t *testing.T) {
	tests := []struct {
		spec    string
		want    simplecms.MediaURLStrategy
		wantErr bool
	}{
		{spec: "", want: simplecms.StorageURLs{}},
		{spec: "storage", want: simplecms.StorageURLs{}},
		{spec: "api:https://cms.example.com/api", want: simplecms.APIURLs{BaseURL: "https://cms.example.com/api"}},
		{spec: "cdn:https://cdn.example.com", want: simplecms.CDNURLs{BaseURL: "https://cdn.example.com"}},
		{spec: "cdn", wantErr: true},
		{spec: "ftp:host", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.spec, func(t *testing.T) {
			got, err := simplecms.ParseMediaURLStrategy(tt.spec)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestMediaURL(t *testing.T) {
	ctx := context.Background()
	asset := &simplecms.MediaAsset{ID: 42, Path: "2026/10/19/a b.png", OriginalName: "a b.png"}

	link, err := simplecms.APIURLs{BaseURL: "https://cms.example.com/api/"}.MediaURL(ctx, asset, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://cms.example.com/api/media/42/file", link)

	link, err = simplecms.CDNURLs{BaseURL: "https://cdn.example.com"}.MediaURL(ctx, asset, nil)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/2026/10/19/a%20b.png", link)
}

func TestServiceMediaURL(t *testing.T) {
	ctx := context.Background()

	newService := func(t *testing.T, urlPrefix string, opts ...simplecms.Option) simplecms.Service {
		store, err := fsstorage.New(fsstorage.Config{BaseDir: t.TempDir(), URLPrefix: urlPrefix})
		require.NoError(t, err)
		svc, err := simplecms.New(append([]simplecms.Option{
			simplecms.WithRepository(memory.New()),
			simplecms.WithBlobStore("fs", store),
		}, opts...)...)
		require.NoError(t, err)
		return svc
	}
	upload := func(t *testing.T, svc simplecms.Service) *simplecms.MediaAsset {
		asset, err := svc.UploadMedia(ctx, simplecms.UploadMediaRequest{FileName: "note.txt", Size: 2}, strings.NewReader("hi"))
		require.NoError(t, err)
		return asset
	}

	t.Run("storage delegated", func(t *testing.T) {
		svc := newService(t, "https://files.example.com")
		asset := upload(t, svc)
		link, err := svc.MediaURL(ctx, asset.ID)
		require.NoError(t, err)
		assert.True(t, strings.HasPrefix(link, "https://files.example.com/"+asset.Path), link)
	})

	t.Run("store without direct links", func(t *testing.T) {
		svc := newService(t, "")
		asset := upload(t, svc)
		link, err := svc.MediaURL(ctx, asset.ID)
		require.NoError(t, err)
		assert.Empty(t, link)
	})

	t.Run("api strategy", func(t *testing.T) {
		svc := newService(t, "", simplecms.WithMediaURLStrategy(simplecms.APIURLs{BaseURL: "/api"}))
		asset := upload(t, svc)
		link, err := svc.MediaURL(ctx, asset.ID)
		require.NoError(t, err)
		assert.Equal(t, "/api/media/1/file", link)
	})

	t.Run("unknown asset", func(t *testing.T) {
		_, err := newService(t, "").MediaURL(ctx, 99)
		assert.ErrorIs(t, err, simplecms.ErrNotFound)
	})
}
