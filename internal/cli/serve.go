package cli

import (
	"context"
	"log/slog"
	"time"

	"github.com/eshaffer321/reconcile-backend/internal/api"
	"github.com/eshaffer321/reconcile-backend/internal/application/service"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/config"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/logging"
	"github.com/eshaffer321/reconcile-backend/internal/infrastructure/storage"
)

// shutdownTimeout bounds graceful shutdown.
const shutdownTimeout = 30 * time.Second

// RunServe runs the API server until ctx is cancelled.
func RunServe(ctx context.Context, cfg *config.Config, opts ServeOptions) error {
	// Set up logging
	loggingCfg := cfg.Observability.Logging
	if opts.Verbose {
		loggingCfg.Level = "debug"
	}
	logger := logging.NewLoggerWithSystem(loggingCfg, "api")

	svcOpts, err := cfg.ServiceOptions()
	if err != nil {
		return err
	}

	// Initialize storage
	store, err := storage.NewStorage(cfg.Storage.DatabasePath)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svc := service.NewReconcileService(svcOpts, store, logging.NewLoggerWithSystem(loggingCfg, "matching"))
	defer svc.Shutdown()

	apiCfg := api.DefaultConfig()
	apiCfg.Host = cfg.Server.Host
	apiCfg.Port = cfg.Server.Port
	if opts.Port != 0 {
		apiCfg.Port = opts.Port
	}
	apiCfg.AllowedOrigins = cfg.Server.AllowedOrigins

	server := api.NewServer(apiCfg, svc, logger)

	// Handle graceful shutdown
	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		logger.Info("received shutdown signal")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Error("server shutdown error", slog.Any("error", err))
		}
	}()

	// Start server (blocks until shutdown)
	if err := server.Start(); err != nil {
		return err
	}

	<-done
	logger.Info("server stopped")
	return nil
}
