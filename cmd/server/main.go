// Log anomaly detection server.
//
// Loads configuration from the environment, wires storage, collectors and
// detection strategies, and serves the HTTP API until SIGINT or SIGTERM.
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ai-devops/loganomaly/internal/app"
	"github.com/ai-devops/loganomaly/internal/config"
	"github.com/ai-devops/loganomaly/internal/handler"
	"github.com/ai-devops/loganomaly/internal/logger"
	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Load .env file if it exists (development)
	_ = godotenv.Load()

	isDev := os.Getenv("GIN_MODE") != "release"

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	zapLogger, err := logger.New(isDev, cfg.Log)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zapLogger.Sync()

	zapLogger.Info("starting log anomaly detection server",
		zap.Bool("development", isDev),
		zap.String("port", cfg.Server.Port),
		zap.String("storage", string(cfg.Storage.Driver)),
		zap.String("ai_model", cfg.AI.Model),
		zap.Bool("mock_mode", cfg.AI.MockMode),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, zapLogger)
	if err != nil {
		zapLogger.Fatal("failed to initialize application", zap.Error(err))
	}
	defer func() {
		if err := application.Close(); err != nil {
			zapLogger.Error("failed to close storage", zap.Error(err))
		}
	}()

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		application.Run(ctx)
	}()

	checks := make(map[string]handler.Check, len(application.Checks))
	for name, fn := range application.Checks {
		checks[name] = fn
	}

	if !isDev {
		gin.SetMode(gin.ReleaseMode)
	}
	router := handler.NewRouter(handler.Handlers{
		Health: handler.NewHealthHandler(zapLogger),
		Ready:  handler.NewReadyHandler(checks, zapLogger),
		Sources: handler.NewSourceHandler(
			application.SourceService, application.CollectService, application.ReportService, zapLogger,
		),
		Sessions: handler.NewSessionHandler(
			application.Orchestrator, application.SessionService, application.ReportService, zapLogger,
		),
	}, cfg.Server, zapLogger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		zapLogger.Info("server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zapLogger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	zapLogger.Info("shutting down server...")

	// Give the server 10 seconds to finish processing
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zapLogger.Error("server forced to shutdown", zap.Error(err))
	}
	<-dispatchDone

	zapLogger.Info("server stopped")
}
