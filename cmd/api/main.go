package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/markdave123-py/Ledgerlens/internal/app"
	"github.com/markdave123-py/Ledgerlens/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	cfg := config.LoadConfig()
	log := cfg.NewLogger()
	slog.SetDefault(log)

	application, err := app.NewApp(ctx, cfg, log)
	if err != nil {
		log.Error("startup failed", "error", err)
		os.Exit(1)
	}
	defer application.Close()

	application.Start(ctx)

	errCh := make(chan error, 1)
	go func() { errCh <- application.Server.Start() }()

	log.Info("Ledgerlens is running", "backend", cfg.VectorBackend, "collection", cfg.CollectionName)
	select {
	case <-ctx.Done():
	case err := <-errCh:
		if err != nil {
			log.Error("server error", "error", err)
		}
	}

	shutdownCtx, done := context.WithTimeout(context.Background(), 15*time.Second)
	defer done()
	if err := application.Server.Shutdown(shutdownCtx); err != nil {
		log.Warn("shutdown", "error", err)
	}
}
