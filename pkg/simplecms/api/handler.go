// Package api exposes a simplecms.Service over HTTP with chi.
package api

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/jwtauth"
	"github.com/tendant/simple-cms/pkg/simplecms"
)

// Config configures the HTTP surface.
type Config struct {
	// JWTSecret enables admin auth on write routes when non-empty.
	JWTSecret      string
	RateLimitRPS   float64
	RateLimitBurst int
	// MaxBodyBytes caps JSON bodies; uploads are capped by the service.
	MaxBodyBytes   int64
	AllowedOrigins []string
	Logger         *slog.Logger
}

// Handler serves the content API
type Handler struct {
	service simplecms.Service
	logger  *slog.Logger
}

// NewHandler creates a new API handler
func NewHandler(service simplecms.Service, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{service: service, logger: logger}
}

// NewRouter builds the full router: middleware, public read routes and
// admin write routes.
func NewRouter(service simplecms.Service, cfg Config) http.Handler {
	h := NewHandler(service, cfg.Logger)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(CORSMiddleware(cfg.AllowedOrigins))
	if cfg.RateLimitRPS > 0 {
		r.Use(NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst).Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respond(w, r, http.StatusOK, map[string]string{"status": "ok"}, nil)
	})

	h.ReadRoutes(r)
	r.Group(func(r chi.Router) {
		if cfg.JWTSecret != "" {
			r.Use(jwtauth.Verifier(NewAdminAuth(cfg.JWTSecret)))
			r.Use(AdminAuthenticator)
		}
		h.WriteRoutes(r, cfg.MaxBodyBytes)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		respondMessage(w, r, http.StatusNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		respondMessage(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})
	return r
}

// ReadRoutes mounts the public query routes
func (h *Handler) ReadRoutes(r chi.Router) {
	r.Get("/tables", h.ListTables)
	r.Get("/tables/{table}", h.DescribeTable)
	r.Get("/tables/{table}/fields/{field}/options", h.ForeignOptions)
	r.Get("/tables/{table}/records", h.ListRecords)
	r.Get("/tables/{table}/records/{id}", h.GetRecord)
	r.Get("/tables/{table}/search", h.Search)

	r.Get("/media", h.ListMedia)
	r.Get("/media/{id}", h.GetMedia)
	r.Get("/media/{id}/file", h.DownloadMedia)
	r.Get("/media/{id}/url", h.MediaURL)

	r.Get("/languages", h.SelectLanguage)
	r.Get("/languages/{code}", h.GetLanguage)
	r.Get("/translations", h.GetTranslations)
}

// WriteRoutes mounts the schema and content mutation routes
func (h *Handler) WriteRoutes(r chi.Router, maxBodyBytes int64) {
	r.Group(func(r chi.Router) {
		if maxBodyBytes > 0 {
			r.Use(RequestSizeLimitMiddleware(maxBodyBytes))
		}
		r.Post("/tables", h.CreateTable)
		r.Post("/tables/{table}/fields", h.AddField)
		r.Post("/tables/{table}/records", h.CreateRecord)
		r.Put("/tables/{table}/records/{id}", h.UpdateRecord)
		r.Delete("/tables/{table}/records/{id}", h.DeleteRecord)

		r.Post("/languages", h.CreateLanguage)
		r.Put("/languages/{code}/default", h.SetDefaultLanguage)
		r.Put("/languages/{code}/active", h.ToggleLanguage)
		r.Delete("/languages/{code}", h.DeleteLanguage)

		r.Put("/translations", h.UpsertTranslations)
		r.Put("/translations/{table}/{id}/{lang}/{field}", h.UpsertTranslation)
	})

	r.Post("/media", h.UploadMedia)
	r.Delete("/media/{id}", h.DeleteMedia)
}
