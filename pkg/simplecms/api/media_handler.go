package api

import (
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

const multipartMemory = 32 << 20

// ListMedia pages through media assets
func (h *Handler) ListMedia(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", simplecms.DefaultLimit)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	offset, err := intParam(r, "offset", 0)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	page, err := h.service.ListMedia(r.Context(), limit, offset, r.URL.Query().Get("tag"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, page.Assets, map[string]any{
		"total":    page.Total,
		"limit":    page.Limit,
		"offset":   page.Offset,
		"has_more": page.HasMore,
	})
}

// GetMedia returns an asset's metadata
func (h *Handler) GetMedia(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(chi.URLParam(r, "id"), "id")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	asset, err := h.service.GetMedia(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, asset, nil)
}

// MediaURL returns the link an asset is downloaded from. Stores without
// direct links get the API's own download route.
func (h *Handler) MediaURL(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(chi.URLParam(r, "id"), "id")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	link, err := h.service.MediaURL(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	direct := link != ""
	if !direct {
		link = fmt.Sprintf("/media/%d/file", id)
	}
	respond(w, r, http.StatusOK, map[string]any{"id": id, "url": link, "direct": direct}, nil)
}

// DownloadMedia streams an asset's bytes
func (h *Handler) DownloadMedia(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(chi.URLParam(r, "id"), "id")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	asset, rc, err := h.service.OpenMedia(r.Context(), id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	defer rc.Close()

	w.Header().Set("Content-Type", asset.MimeType)
	w.Header().Set("Content-Length", strconv.FormatInt(asset.SizeBytes, 10))
	w.Header().Set("Content-Disposition", mime.FormatMediaType("inline", map[string]string{"filename": asset.OriginalName}))
	if _, err := io.Copy(w, rc); err != nil {
		h.logger.WarnContext(r.Context(), "Media download interrupted", "media_id", id, "error", err)
	}
}

// UploadMedia stores a multipart "file" part; "tags" is comma separated
func (h *Handler) UploadMedia(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			respondError(w, r, h.logger, err)
			return
		}
		respondError(w, r, h.logger, simplecms.Validationf("invalid multipart form: %v", err))
		return
	}
	defer r.MultipartForm.RemoveAll()

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, h.logger, simplecms.Validationf("file is required"))
		return
	}
	defer file.Close()

	var tags []string
	for _, raw := range r.MultipartForm.Value["tags"] {
		tags = append(tags, strings.Split(raw, ",")...)
	}

	asset, err := h.service.UploadMedia(r.Context(), simplecms.UploadMediaRequest{
		FileName: header.Filename,
		MimeType: header.Header.Get("Content-Type"),
		Size:     header.Size,
		Tags:     tags,
	}, file)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	w.Header().Set("Location", fmt.Sprintf("/media/%d", asset.ID))
	respond(w, r, http.StatusCreated, asset, nil)
}

// DeleteMedia removes an asset and its bytes
func (h *Handler) DeleteMedia(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(chi.URLParam(r, "id"), "id")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := h.service.DeleteMedia(r.Context(), id); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"id": id, "deleted": true}, nil)
}
