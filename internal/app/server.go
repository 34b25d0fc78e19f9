package app

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/Ledgerlens/internal/api/handlers"
	appMiddleware "github.com/markdave123-py/Ledgerlens/internal/api/middlewares"
	"github.com/markdave123-py/Ledgerlens/internal/config"
)

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        *slog.Logger
}

// NewServer builds and wires all routes.
func NewServer(cfg *config.Config, log *slog.Logger, docHandler *handlers.DocumentHandler, retrievalHandler *handlers.RetrievalHandler) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + cfg.Port,
			Handler:           NewRouter(cfg, log, docHandler, retrievalHandler),
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// NewRouter mounts the API. Routes other than health require a bearer token
// when JWT_SECRET is set.
func NewRouter(cfg *config.Config, log *slog.Logger, docHandler *handlers.DocumentHandler, retrievalHandler *handlers.RetrievalHandler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.AllowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(api chi.Router) {
		api.Get("/health", handlers.Health)

		api.Group(func(protected chi.Router) {
			if cfg.JWTSecret != "" {
				protected.Use(appMiddleware.JWTMiddleware(cfg.JWTSecret))
			} else {
				log.Warn("JWT_SECRET is empty; API is unauthenticated")
			}

			// Uploads are bounded by MaxBytesReader, not the request timeout.
			protected.Post("/documents/upload", docHandler.UploadDocument)

			protected.Group(func(timed chi.Router) {
				timed.Use(middleware.Timeout(60 * time.Second))
				timed.Get("/documents", docHandler.GetDocuments)
				timed.Get("/documents/{id}", docHandler.GetDocument)
				timed.Get("/jobs/{id}", docHandler.GetJob)
				timed.Get("/assets", docHandler.GetAsset)
				timed.Get("/stats", docHandler.Stats)
				timed.Post("/collection/reset", docHandler.ResetCollection)
				timed.Post("/retrieve/{mode}", retrievalHandler.Retrieve)
				timed.Post("/query", retrievalHandler.Query)
			})
		})
	})
	return r
}

// Start runs the HTTP server until Shutdown.
func (s *Server) Start() error {
	s.log.Info("HTTP server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}
