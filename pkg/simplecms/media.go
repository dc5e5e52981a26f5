package simplecms

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
)

func (s *service) blobStore() (BlobStore, error) {
	store, ok := s.blobStores[s.defaultBlobStore]
	if !ok {
		return nil, &StorageError{Op: "blob store", Err: errors.New("no blob store configured")}
	}
	return store, nil
}

// UploadMedia stores the bytes of reader and records a MediaAsset for them.
func (s *service) UploadMedia(ctx context.Context, req UploadMediaRequest, reader io.Reader) (*MediaAsset, error) {
	name := strings.TrimSpace(filepath.Base(req.FileName))
	if name == "" || name == "." || name == "/" {
		return nil, fmt.Errorf("%w: file name is required", ErrInvalidMedia)
	}
	if s.maxUploadBytes > 0 && req.Size > s.maxUploadBytes {
		return nil, fmt.Errorf("%w: %d bytes exceeds the %d byte limit", ErrInvalidMedia, req.Size, s.maxUploadBytes)
	}

	br := bufio.NewReaderSize(reader, 512)
	mimeType := strings.TrimSpace(req.MimeType)
	if mimeType == "" || mimeType == "application/octet-stream" {
		head, _ := br.Peek(512)
		mimeType = http.DetectContentType(head)
	}
	if i := strings.IndexByte(mimeType, ';'); i >= 0 {
		mimeType = mimeType[:i]
	}
	mimeType = strings.ToLower(strings.TrimSpace(mimeType))
	if !s.mimeAllowed(mimeType) {
		return nil, fmt.Errorf("%w: mime type %s is not allowed", ErrInvalidMedia, mimeType)
	}

	store, err := s.blobStore()
	if err != nil {
		return nil, s.fail(ctx, "upload_media", err)
	}

	uploadedAt := s.now()
	key := s.keyGenerator.Generate(name, uploadedAt)
	counter := &countingReader{r: br, limit: s.maxUploadBytes}
	if err := store.Upload(ctx, key.ObjectKey, counter, mimeType); err != nil {
		if errors.Is(err, errTooLarge) || (s.maxUploadBytes > 0 && counter.n > s.maxUploadBytes) {
			_ = store.Delete(ctx, key.ObjectKey)
			return nil, fmt.Errorf("%w: upload exceeds the %d byte limit", ErrInvalidMedia, s.maxUploadBytes)
		}
		return nil, s.fail(ctx, "upload_media", storageErr("upload blob", err))
	}

	asset := &MediaAsset{
		StoredName:   key.StoredName,
		OriginalName: name,
		Path:         key.ObjectKey,
		MimeType:     mimeType,
		SizeBytes:    counter.n,
		Tags:         normalizeTags(req.Tags),
		UploadedAt:   uploadedAt,
	}
	if err := s.repository.CreateMedia(ctx, asset); err != nil {
		if delErr := store.Delete(ctx, key.ObjectKey); delErr != nil {
			s.logger.WarnContext(ctx, "Failed to remove orphaned blob", "key", key.ObjectKey, "error", delErr)
		}
		return nil, s.fail(ctx, "upload_media", storageErr("create media", err))
	}

	s.logger.InfoContext(ctx, "Media uploaded", "media_id", asset.ID, "key", asset.Path, "size", asset.SizeBytes)
	s.notify(ctx, "media_uploaded", s.eventSink.MediaUploaded(ctx, asset))
	return asset, nil
}

func (s *service) GetMedia(ctx context.Context, id int64) (*MediaAsset, error) {
	asset, err := s.repository.GetMedia(ctx, id)
	if err != nil {
		return nil, s.fail(ctx, "get_media", storageErr("get media", err))
	}
	return asset, nil
}

// OpenMedia returns an asset and a reader over its bytes. The caller closes
// the reader.
func (s *service) OpenMedia(ctx context.Context, id int64) (*MediaAsset, io.ReadCloser, error) {
	asset, err := s.GetMedia(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	store, err := s.blobStore()
	if err != nil {
		return nil, nil, s.fail(ctx, "open_media", err)
	}
	rc, err := store.Download(ctx, asset.Path)
	if err != nil {
		return nil, nil, s.fail(ctx, "open_media", storageErr("download blob", err))
	}
	return asset, rc, nil
}

// MediaURL returns the link clients download an asset from.
func (s *service) MediaURL(ctx context.Context, id int64) (string, error) {
	asset, err := s.GetMedia(ctx, id)
	if err != nil {
		return "", err
	}
	store, err := s.blobStore()
	if err != nil {
		return "", s.fail(ctx, "media_url", err)
	}
	link, err := s.mediaURLs.MediaURL(ctx, asset, store)
	if err != nil {
		return "", s.fail(ctx, "media_url", storageErr("media url", err))
	}
	return link, nil
}

// DeleteMedia removes the asset row, then its bytes. Records still pointing
// at it resolve to null from then on.
func (s *service) DeleteMedia(ctx context.Context, id int64) error {
	asset, err := s.GetMedia(ctx, id)
	if err != nil {
		return err
	}
	if err := s.repository.DeleteMedia(ctx, id); err != nil {
		return s.fail(ctx, "delete_media", storageErr("delete media", err))
	}
	if store, err := s.blobStore(); err == nil {
		if err := store.Delete(ctx, asset.Path); err != nil {
			s.logger.WarnContext(ctx, "Failed to delete media blob", "media_id", id, "key", asset.Path, "error", err)
		}
	}

	s.logger.InfoContext(ctx, "Media deleted", "media_id", id)
	s.notify(ctx, "media_deleted", s.eventSink.MediaDeleted(ctx, id))
	return nil
}

func (s *service) ListMedia(ctx context.Context, limit, offset int, tag string) (*MediaPage, error) {
	q := MediaQuery{
		Limit:  ClampLimit(limit),
		Offset: ClampOffset(offset),
		Tag:    strings.ToLower(strings.TrimSpace(tag)),
	}
	assets, total, err := s.repository.ListMedia(ctx, q)
	if err != nil {
		return nil, s.fail(ctx, "list_media", storageErr("list media", err))
	}
	if assets == nil {
		assets = []*MediaAsset{}
	}
	return &MediaPage{
		Assets:  assets,
		Total:   total,
		Limit:   q.Limit,
		Offset:  q.Offset,
		HasMore: int64(q.Offset+len(assets)) < total,
	}, nil
}

func (s *service) mimeAllowed(mimeType string) bool {
	if len(s.allowedMimeTypes) == 0 {
		return true
	}
	for _, allowed := range s.allowedMimeTypes {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		family := strings.TrimSuffix(allowed, "*")
		if strings.HasSuffix(family, "/") {
			if strings.HasPrefix(mimeType, family) {
				return true
			}
			continue
		}
		if mimeType == allowed {
			return true
		}
	}
	return false
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

var errTooLarge = errors.New("upload too large")

// countingReader counts bytes read and fails once limit is passed.
type countingReader struct {
	r     io.Reader
	n     int64
	limit int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	if c.limit > 0 && c.n > c.limit {
		return n, errTooLarge
	}
	return n, err
}
