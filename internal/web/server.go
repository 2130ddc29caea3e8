// Package web provides the HTTP API and index page for loading CSV files.
package web

import (
	"context"
	"embed"
	"errors"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/csvload/internal/config"
	"github.com/JonMunkholm/csvload/internal/core"
	"github.com/JonMunkholm/csvload/internal/metrics"
	"github.com/JonMunkholm/csvload/internal/schema"
	"github.com/JonMunkholm/csvload/internal/upload"
	webmw "github.com/JonMunkholm/csvload/internal/web/middleware"
)

//go:embed static
var staticFiles embed.FS

// Server is the HTTP server for the CSV loader.
type Server struct {
	cfg     *config.Config
	service *core.Service
	uploads *upload.Store
	schemas *schema.Repository
	router  *chi.Mux
	server  *http.Server
}

// NewServer wires the routes for service, uploads and schemas.
func NewServer(cfg *config.Config, service *core.Service, uploads *upload.Store, schemas *schema.Repository) *Server {
	s := &Server{
		cfg:     cfg,
		service: service,
		uploads: uploads,
		schemas: schemas,
		router:  chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	s.server = &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      s.router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(webmw.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(webmw.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(securityHeaders(s.cfg.Security.EnableCSP))
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	s.router.Handle("/static/*", http.StripPrefix("/static/", http.FileServer(http.FS(staticFS))))

	s.router.Get("/", s.handleIndex)
	s.router.Get("/healthz", s.handleHealth)
	if s.cfg.Metrics.Enabled {
		s.router.Handle(s.cfg.Metrics.Path, metrics.Handler())
	}

	s.router.Route("/api", func(r chi.Router) {
		if s.cfg.Rate.Enabled {
			r.Use(newRateLimiter(s.cfg.Rate.RPS, s.cfg.Rate.Burst).middleware)
		}
		r.Use(webmw.APIKeyAuth(&s.cfg.Security))

		r.Post("/csv/upload", s.handleCSVUpload)

		r.Get("/schema/list", s.handleListSchemas)
		r.Get("/schema/{name}", s.handleGetSchema)

		r.Post("/upload/validate", s.handleValidateRun)
		r.Post("/upload/run", s.handleRun)
		r.Get("/upload/status", s.handleLoadStatus)
	})
}

// Start begins listening for HTTP requests. It returns nil after Shutdown.
func (s *Server) Start() error {
	slog.Info("server starting", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

const contentSecurityPolicy = "default-src 'self'; script-src 'self'; style-src 'self' 'unsafe-inline'; img-src 'self' data:"

// securityHeaders adds security headers to all responses.
func securityHeaders(enableCSP bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			w.Header().Set("X-Frame-Options", "DENY")
			w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
			if enableCSP {
				w.Header().Set("Content-Security-Policy", contentSecurityPolicy)
			}
			next.ServeHTTP(w, r)
		})
	}
}
