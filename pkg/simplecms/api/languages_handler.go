package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// SelectLanguage answers {languages, default, current}; ?all=true lists
// inactive languages too.
func (h *Handler) SelectLanguage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if q.Get("all") == "true" {
		langs, err := h.service.ListLanguages(r.Context(), false)
		if err != nil {
			respondError(w, r, h.logger, err)
			return
		}
		respond(w, r, http.StatusOK, langs, map[string]any{"count": len(langs)})
		return
	}

	sel, err := h.service.SelectLanguage(r.Context(), q.Get("lang"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, sel, nil)
}

// GetLanguage returns one language
func (h *Handler) GetLanguage(w http.ResponseWriter, r *http.Request) {
	lang, err := h.service.GetLanguage(r.Context(), chi.URLParam(r, "code"))
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, lang, nil)
}

// CreateLanguage adds a language
func (h *Handler) CreateLanguage(w http.ResponseWriter, r *http.Request) {
	var req simplecms.CreateLanguageRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	lang, err := h.service.CreateLanguage(r.Context(), req)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusCreated, lang, nil)
}

// SetDefaultLanguage makes a language the default
func (h *Handler) SetDefaultLanguage(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.service.SetDefaultLanguage(r.Context(), code); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.respondLanguage(w, r, code)
}

type toggleRequest struct {
	Active *bool `json:"active"`
}

// ToggleLanguage activates or deactivates a language
func (h *Handler) ToggleLanguage(w http.ResponseWriter, r *http.Request) {
	var req toggleRequest
	if err := decode(r, &req); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	if req.Active == nil {
		respondError(w, r, h.logger, simplecms.Validationf("active is required"))
		return
	}
	code := chi.URLParam(r, "code")
	if err := h.service.ToggleLanguage(r.Context(), code, *req.Active); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	h.respondLanguage(w, r, code)
}

// DeleteLanguage removes a language and its translations
func (h *Handler) DeleteLanguage(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "code")
	if err := h.service.DeleteLanguage(r.Context(), code); err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, map[string]any{"code": code, "deleted": true}, nil)
}

func (h *Handler) respondLanguage(w http.ResponseWriter, r *http.Request, code string) {
	lang, err := h.service.GetLanguage(r.Context(), code)
	if err != nil {
		respondError(w, r, h.logger, err)
		return
	}
	respond(w, r, http.StatusOK, lang, nil)
}
