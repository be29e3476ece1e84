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

	"go.uber.org/zap"

	"github.com/david/funding-scout/internal/api"
	"github.com/david/funding-scout/internal/app"
	"github.com/david/funding-scout/internal/auth"
	"github.com/david/funding-scout/internal/config"
	"github.com/david/funding-scout/internal/db"
	"github.com/david/funding-scout/internal/logging"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}
	flush, err := logging.Init(cfg.LogLevel, cfg.Development)
	if err != nil {
		log.Fatalf("Failed to init logging: %v", err)
	}
	defer flush()
	logger := zap.S().Named("server")

	ctx := context.Background()
	pool, err := db.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		logger.Fatalw("failed to connect to database", "error", err)
	}
	defer pool.Close()

	if err := db.ApplyMigrations(ctx, pool); err != nil {
		logger.Fatalw("migration failed", "error", err)
	}

	backend := app.PostgresBackend(db.NewOpportunityStore(pool), db.NewCacheStore(pool), db.NewRepository(pool))
	a, err := app.New(ctx, cfg, backend)
	if err != nil {
		logger.Fatalw("failed to build services", "error", err)
	}

	secret, err := auth.Secret(cfg.JWTSecret)
	if err != nil {
		logger.Fatalw("auth configuration error", "error", err)
	}
	srv := api.NewServer(a, secret, cfg.CORSOrigins)

	idleConnsClosed := make(chan struct{})
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Warnw("server shutdown", "error", err)
		}
		close(idleConnsClosed)
	}()

	logger.Infow("server starting", "port", cfg.Port)
	if err := srv.Start(cfg.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalw("server failed", "error", err)
	}

	<-idleConnsClosed
}
