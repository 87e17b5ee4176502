package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamup/lotto-agent/internal/app"
	"github.com/dreamup/lotto-agent/internal/config"
	"github.com/dreamup/lotto-agent/internal/db"
	"go.uber.org/zap"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	cfg, err := config.Load(os.Getenv("LOTTO_CONFIG"))
	if err != nil {
		logger.Fatal("failed to load config", zap.Error(err))
	}

	database, err := db.New(cfg.Storage.DBPath)
	if err != nil {
		logger.Fatal("failed to open run history", zap.Error(err))
	}
	defer database.Close()

	var launch Launcher
	if os.Getenv("LOTTO_ALLOW_TRIGGER") == "true" {
		launch = func(ctx context.Context) (*app.Result, error) {
			return app.Run(ctx, cfg, app.Options{Metadata: map[string]string{"trigger": "api"}}, logger)
		}
	}
	server := NewServer(database, launch, logger)

	// Create HTTP server
	srv := &http.Server{
		Addr:         ":" + port,
		Handler:      server.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in goroutine
	go func() {
		logger.Info("lotto history API listening",
			zap.String("version", version),
			zap.String("addr", "http://localhost:"+port),
			zap.Bool("trigger_enabled", launch != nil),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("shutting down server")

	// Graceful shutdown
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown failed", zap.Error(err))
	}
	server.Wait()

	logger.Info("server stopped")
}
