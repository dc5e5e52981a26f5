package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// GetTranslations returns one language's translations of a record, or every
// language's when lang is absent.
func (h *Handler) GetTranslations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	table := q.Get("table")
	id, err := idParam(q.Get("record_id"), "record_id")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	if lang := q.Get("lang"); lang != "" {
		fields, err := h.service.GetTranslations(r.Context(), table, id, lang)
		if err != nil {
			respondError(w, r, h.logger, err)
			return
		}
		respond(w, r, http.StatusOK, fields, map[string]any{"language": lang, "count": len(fields)})
		return
	}

	all, err := h.service.GetAllTranslations(r.Context(), table, id)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, all, map[string]any{"count": len(all)})
}

type upsertTranslationsRequest struct {
	Table    string            `json:"table"`
	RecordID int64             `json:"record_id"`
	Language string            `json:"lang"`
	Fields   map[string]string `json:"fields"`
}

// UpsertTranslations saves several fields of one record in one language
func (h *Handler) UpsertTranslations(w http.ResponseWriter, r *http.Request) {
	var req upsertTranslationsRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	saved, err := h.service.UpsertTranslations(r.Context(), req.Table, req.RecordID, req.Language, req.Fields)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"saved": saved}, nil)
}

type upsertTranslationRequest struct {
	Value string `json:"value"`
}

// UpsertTranslation saves one translated field
func (h *Handler) UpsertTranslation(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(chi.URLParam(r, "id"), "record_id")
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	var req upsertTranslationRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}

	table, lang, field := chi.URLParam(r, "table"), chi.URLParam(r, "lang"), chi.URLParam(r, "field")
	if err := h.service.UpsertTranslation(r.Context(), table, id, field, lang, req.Value); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{
		"table": table, "record_id": id, "lang": lang, "field": field, "value": req.Value,
	}, nil)
}
