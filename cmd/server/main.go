package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/arjunp-dev/ledgermind/internal/api"
	"github.com/arjunp-dev/ledgermind/internal/config"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

func main() {
	logger, _ := zap.NewProduction()
	defer func() { _ = logger.Sync() }()

	if err := config.Load(); err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	memURL := config.MemoryDatabaseURL()
	if memURL == "" {
		logger.Fatal("MEMORY_DATABASE_URL is required")
	}
	truthURL := config.GroundTruthDatabaseURL()
	if truthURL == "" {
		logger.Fatal("GROUND_TRUTH_DATABASE_URL is required")
	}

	ctx := context.Background()

	memDB, err := pgxpool.New(ctx, memURL)
	if err != nil {
		logger.Fatal("failed to connect to memory database", zap.Error(err))
	}
	defer memDB.Close()

	if err := memDB.Ping(ctx); err != nil {
		logger.Fatal("failed to ping memory database", zap.Error(err))
	}
	logger.Info("connected to memory database")

	truthDB, err := pgxpool.New(ctx, truthURL)
	if err != nil {
		logger.Fatal("failed to connect to ground-truth database", zap.Error(err))
	}
	defer truthDB.Close()

	// The ground-truth store is a collaborator; being down at boot is a
	// degraded start, not a fatal one.
	if err := truthDB.Ping(ctx); err != nil {
		logger.Warn("ground-truth database unreachable at startup", zap.Error(err))
	} else {
		logger.Info("connected to ground-truth database")
	}

	app := api.NewApp(memDB, truthDB, logger)

	addr := config.ServerAddr()
	srv := &http.Server{
		Addr:    addr,
		Handler: app.Router,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("server starting", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Fatal("server forced to shutdown", zap.Error(err))
	}

	logger.Info("server stopped")
}
