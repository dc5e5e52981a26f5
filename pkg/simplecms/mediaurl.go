package simplecms

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// MediaURLStrategy decides the URL clients fetch a media asset from.
type MediaURLStrategy interface {
	MediaURL(ctx context.Context, asset *MediaAsset, store BlobStore) (string, error)
}

// StorageURLs delegates to the blob store: presigned URLs for S3, the
// configured prefix for the filesystem store. Stores without direct URLs
// yield "", meaning the asset is served through OpenMedia only.
type StorageURLs struct{}

func (StorageURLs) MediaURL(ctx context.Context, asset *MediaAsset, store BlobStore) (string, error) {
	link, err := store.GetDownloadURL(ctx, asset.Path, asset.OriginalName)
	if errors.Is(err, ErrNoDirectURL) {
		return "", nil
	}
	return link, err
}

// APIURLs points at the download route of the HTTP API, so every read goes
// through the service.
type APIURLs struct {
	BaseURL string
}

func (s APIURLs) MediaURL(ctx context.Context, asset *MediaAsset, store BlobStore) (string, error) {
	return strings.TrimRight(s.BaseURL, "/") + "/media/" + strconv.FormatInt(asset.ID, 10) + "/file", nil
}

// CDNURLs serves object keys from a CDN in front of the bucket.
type CDNURLs struct {
	BaseURL string
}

func (s CDNURLs) MediaURL(ctx context.Context, asset *MediaAsset, store BlobStore) (string, error) {
	segments := strings.Split(asset.Path, "/")
	for i, seg := range segments {
		segments[i] = url.PathEscape(seg)
	}
	return strings.TrimRight(s.BaseURL, "/") + "/" + strings.Join(segments, "/"), nil
}

// ParseMediaURLStrategy reads "storage", "api:<base url>" or "cdn:<base url>".
func ParseMediaURLStrategy(spec string) (MediaURLStrategy, error) {
	kind, base, _ := strings.Cut(strings.TrimSpace(spec), ":")
	switch kind {
	case "", "storage":
		return StorageURLs{}, nil
	case "api", "cdn":
		if base == "" {
			return nil, fmt.Errorf("media url strategy %q needs a base url", kind)
		}
		if _, err := url.Parse(base); err != nil {
			return nil, fmt.Errorf("invalid media url base %q: %w", base, err)
		}
		if kind == "api" {
			return APIURLs{BaseURL: base}, nil
		}
		return CDNURLs{BaseURL: base}, nil
	}
	return nil, fmt.Errorf("unknown media url strategy %q (use 'storage', 'api:<url>' or 'cdn:<url>')", kind)
}
