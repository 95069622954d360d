package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"sheetdash/internal/logging"
)

// RouterOptions tune cross-cutting middleware.
type RouterOptions struct {
	CORSOrigins    []string
	LoginRateLimit int
	APIRateLimit   int
}

// NewRouter wires the HTTP API.
func NewRouter(h *Handler, opts RouterOptions, logger zerolog.Logger) http.Handler {
	r := chi.NewRouter()

	r.Use(chimiddleware.RealIP)
	r.Use(logging.HTTPAccess(logger)...)
	r.Use(chimiddleware.Recoverer)
	r.Use(prometheusMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Authorization", "Content-Type", logging.RequestIDHeader},
		ExposedHeaders: []string{logging.RequestIDHeader},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusNotFound, "not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
	})

	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)
		r.With(rateLimit(opts.LoginRateLimit)).Post("/auth/login", h.Login)

		r.Group(func(r chi.Router) {
			r.Use(rateLimit(opts.APIRateLimit))
			r.Use(requireAuth(h.auth))

			r.Post("/query", h.Query)
			r.Get("/data", h.Data)
			r.With(requireAdmin).Post("/data/refresh", h.RefreshData)
			r.Get("/queries", h.Queries)
		})
	})

	return r
}
