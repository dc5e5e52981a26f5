package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/render"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Envelope is the body of every JSON response.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Meta      any    `json:"meta,omitempty"`
	Error     string `json:"error,omitempty"`
	Timestamp string `json:"timestamp,omitempty"`
}

const internalErrorMessage = "internal server error"

func respond(w http.ResponseWriter, r *http.Request, status int, data, meta any) {
	render.Status(r, status)
	render.JSON(w, r, Envelope{Success: true, Data: data, Meta: meta})
}

func respondMessage(w http.ResponseWriter, r *http.Request, status int, msg string) {
	render.Status(r, status)
	render.JSON(w, r, Envelope{
		Success:   false,
		Error:     msg,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	})
}

// StatusFor maps a service error to its HTTP status.
func StatusFor(err error) int {
	var maxBytes *http.MaxBytesError
	if errors.As(err, &maxBytes) {
		return http.StatusRequestEntityTooLarge
	}
	switch simplecms.KindOf(err) {
	case simplecms.ErrValidation:
		return http.StatusBadRequest
	case simplecms.ErrConflict:
		return http.StatusConflict
	case simplecms.ErrNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err; server errors are logged and hidden from the client.
func respondError(w http.ResponseWriter, r *http.Request, logger *slog.Logger, err error) {
	status := StatusFor(err)
	msg := err.Error()
	if status == http.StatusInternalServerError {
		logger.ErrorContext(r.Context(), "Request failed", "method", r.Method, "path", r.URL.Path, "error", err)
		msg = internalErrorMessage
	}
	respondMessage(w, r, status, msg)
}

// intParam parses an optional integer query parameter.
func intParam(r *http.Request, name string, def int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, simplecms.Validationf("%s must be an integer", name)
	}
	return n, nil
}

// idParam parses a positive int64 path or query value.
func idParam(raw, name string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, simplecms.Validationf("invalid %s %q", name, raw)
	}
	return id, nil
}

// decode reads a JSON body into v.
func decode(r *http.Request, v any) error {
	if err := render.DecodeJSON(r.Body, v); err != nil {
		var maxBytes *http.MaxBytesError
		if errors.As(err, &maxBytes) {
			return err
		}
		return simplecms.Validationf("invalid JSON body: %v", err)
	}
	return nil
}
