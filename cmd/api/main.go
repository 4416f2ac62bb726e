package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dealflow/auth"
	"dealflow/checklist"
	"dealflow/config"
	"dealflow/db"
	"dealflow/document"
	"dealflow/listing"
	"dealflow/outbox"
	"dealflow/progress"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}
	logger := config.NewLogger(cfg, os.Stdout)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns)
	if err != nil {
		log.Fatalf("bootstrap database pool: %v", err)
	}
	defer pool.Close()

	events := outbox.NewWriter()
	listings := listing.NewService(listing.NewRepository(pool))

	server := &Server{
		authService:    auth.NewService(auth.NewRepository(pool), cfg.JWTSecret).WithTokenTTL(cfg.TokenTTL),
		listingService: listings,
		progressService: progress.NewService(
			progress.NewPGStore(pool, events),
			document.NewRepository(pool).WithOutbox(events),
			listings,
		).WithLogger(logger),
		checklistService: checklist.NewService(checklist.NewPGStore(pool, events)).WithLogger(logger),
		logger:           logger,
	}

	httpServer := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutdown", slog.Any("error", err))
		}
	}()

	logger.Info("api listening", slog.String("addr", cfg.HTTPAddr), slog.String("env", cfg.AppEnv))
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatalf("serve: %v", err)
	}
}
