package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/eshaffer321/reconcile-backend/internal/api/handlers"
	"github.com/eshaffer321/reconcile-backend/internal/api/middleware"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
)

// Config holds API server configuration.
type Config struct {
	Host           string
	Port           int
	AllowedOrigins []string
	// WriteTimeout bounds non-streaming responses. Zero disables it.
	WriteTimeout time.Duration
}

// DefaultConfig returns sensible defaults for the API server.
func DefaultConfig() Config {
	return Config{
		Port:           8080,
		AllowedOrigins: []string{"http://localhost:3000", "http://localhost:5173"},
		WriteTimeout:   60 * time.Second,
	}
}

// Server is the HTTP API server.
type Server struct {
	config     Config
	router     chi.Router
	httpServer *http.Server
	logger     *slog.Logger
	svc        *service.ReconcileService
	ws         *handlers.WSHandler
}

// NewServer creates a new API server over the reconcile service.
func NewServer(cfg Config, svc *service.ReconcileService, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config: cfg,
		router: chi.NewRouter(),
		logger: logger,
		svc:    svc,
	}

	s.setupMiddleware()
	s.setupRoutes()

	return s
}

// setupMiddleware configures global middleware.
func (s *Server) setupMiddleware() {
	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = s.config.AllowedOrigins
	s.router.Use(middleware.CORS(corsConfig))

	s.router.Use(middleware.Logging(s.logger))
}

// setupRoutes configures all API routes.
func (s *Server) setupRoutes() {
	// Health check (no /api prefix - for load balancers)
	healthHandler := handlers.NewHealthHandler(s.svc)
	s.router.Get("/health", healthHandler.ServeHTTP)

	importHandler := handlers.NewImportHandler(s.svc, s.logger)
	matchHandler := handlers.NewMatchHandler(s.svc, s.logger)
	exceptionsHandler := handlers.NewExceptionsHandler(s.svc, s.logger)
	exportHandler := handlers.NewExportHandler(s.svc, s.logger)
	s.ws = handlers.NewWSHandler(s.svc, s.logger)

	s.router.Route("/api", func(r chi.Router) {
		r.Route("/import", func(r chi.Router) {
			r.Post("/preview", importHandler.Preview)
			r.Post("/transactions", importHandler.SubmitTransactions)
			r.Post("/files", importHandler.SubmitFiles)
		})

		r.Route("/match", func(r chi.Router) {
			r.Post("/run", matchHandler.Run)
			r.Post("/pause", matchHandler.Pause)
			r.Post("/resume", matchHandler.Resume)
			r.Post("/cancel", matchHandler.Cancel)
			r.Get("/progress", matchHandler.Progress)
			r.Get("/progress/ws", s.ws.Stream)
			r.Get("/pending", matchHandler.Pending)
			r.Get("/next", matchHandler.Next)
			r.Post("/seek", matchHandler.Seek)
			r.Post("/action", matchHandler.Action)
			r.Get("/stats", matchHandler.Stats)
			r.Get("/runs", matchHandler.Runs)
		})

		r.Route("/exceptions", func(r chi.Router) {
			r.Get("/unmatched-ledger", exceptionsHandler.UnmatchedLedger)
			r.Get("/unmatched-bank", exceptionsHandler.UnmatchedBank)
			r.Get("/confirmed", exceptionsHandler.Confirmed)
			r.Get("/rejected", exceptionsHandler.Rejected)
			r.Get("/excluded", exceptionsHandler.Excluded)
			r.Post("/rejected/{id}/restore", exceptionsHandler.RestoreRejected)
			r.Post("/rejected/{id}/approve", exceptionsHandler.ApproveRejected)
			r.Post("/confirmed/{id}/revert", exceptionsHandler.RevertConfirmed)
			r.Post("/confirmed/{id}/reject", exceptionsHandler.RejectConfirmed)
			r.Post("/exclude", exceptionsHandler.Exclude)
		})

		r.Route("/export", func(r chi.Router) {
			r.Get("/matches", exportHandler.Matches)
			r.Get("/unmatched-ledger", exportHandler.UnmatchedLedger)
			r.Get("/unmatched-bank", exportHandler.UnmatchedBank)
			r.Get("/rejected", exportHandler.Rejected)
			r.Get("/excluded", exportHandler.Excluded)
			r.Get("/audit", exportHandler.Audit)
		})
	})
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: s.config.WriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	s.logger.Info("starting API server", "addr", addr)

	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server error: %w", err)
	}

	return nil
}

// Shutdown gracefully shuts down the server and closes progress streams.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down API server")

	if err := s.ws.Close(); err != nil {
		s.logger.Warn("failed to close progress hub", "error", err)
	}

	if s.httpServer == nil {
		return nil
	}

	return s.httpServer.Shutdown(ctx)
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}
