package api

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// ListTables lists the dynamic tables
func (h *Handler) ListTables(w http.ResponseWriter, r *http.Request) {
	tables, err := h.service.ListTables(r.Context())
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, tables, map[string]any{"count": len(tables)})
}

// DescribeTable returns a table and its fields
func (h *Handler) DescribeTable(w http.ResponseWriter, r *http.Request) {
	def, err := h.service.DescribeTable(r.Context(), chi.URLParam(r, "table"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, def, nil)
}

// CreateTable creates a table from {name, fields}
func (h *Handler) CreateTable(w http.ResponseWriter, r *http.Request) {
	var req simplecms.CreateTableRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	def, err := h.service.CreateTable(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusCreated, def, nil)
}

// AddField appends one field to a table
func (h *Handler) AddField(w http.ResponseWriter, r *http.Request) {
	var spec simplecms.FieldSpec
	if err := decode(r, &spec); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	field, err := h.service.AddField(r.Context(), chi.URLParam(r, "table"), spec)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusCreated, field, nil)
}

// ForeignOptions lists the id/label pairs a foreign-key field accepts
func (h *Handler) ForeignOptions(w http.ResponseWriter, r *http.Request) {
	opts, err := h.service.ForeignOptions(r.Context(), chi.URLParam(r, "table"), chi.URLParam(r, "field"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, opts.Options, map[string]any{
		"count":    len(opts.Options),
		"total":    opts.Total,
		"has_more": opts.HasMore,
	})
}

// ListRecords returns one page of records
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
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

	q := r.URL.Query()
	result, err := h.service.List(r.Context(), simplecms.ListRequest{
		Table:    chi.URLParam(r, "table"),
		Limit:    limit,
		Offset:   offset,
		OrderBy:  q.Get("order_by"),
		OrderDir: q.Get("order_dir"),
		Language: q.Get("lang"),
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	meta := map[string]any{
		"total":     result.Total,
		"limit":     result.Limit,
		"offset":    result.Offset,
		"has_more":  result.HasMore,
		"order_by":  result.OrderBy,
		"order_dir": result.OrderDir,
	}
	if result.Language != "" {
		meta["language"] = result.Language
	}
	respond(w, r, http.StatusOK, result.Records, meta)
}

// GetRecord returns one expanded record
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(chi.URLParam(r, "id"), "id")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	rec, err := h.service.GetOne(r.Context(), chi.URLParam(r, "table"), id, r.URL.Query().Get("lang"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, rec, nil)
}

// Search runs a substring search
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	limit, err := intParam(r, "limit", simplecms.DefaultLimit)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	q := r.URL.Query()
	records, err := h.service.Search(r.Context(), simplecms.SearchRequest{
		Table: chi.URLParam(r, "table"),
		Query: q.Get("q"),
		Field: q.Get("field"),
		Limit: limit,
	})
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, records, map[string]any{
		"count": len(records),
		"query": strings.TrimSpace(q.Get("q")),
	})
}

// CreateRecord inserts a record from a JSON object of field values
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	var values map[string]any
	if err := decode(r, &values); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	rec, err := h.service.CreateRecord(r.Context(), chi.URLParam(r, "table"), values)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusCreated, rec, nil)
}

// UpdateRecord changes the given fields of a record
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(chi.URLParam(r, "id"), "id")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	var values map[string]any
	if err := decode(r, &values); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	rec, err := h.service.UpdateRecord(r.Context(), chi.URLParam(r, "table"), id, values)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, rec, nil)
}

// DeleteRecord removes a record and its translations
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(chi.URLParam(r, "id"), "id")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if err := h.service.DeleteRecord(r.Context(), chi.URLParam(r, "table"), id); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"id": id, "deleted": true}, nil)
}
