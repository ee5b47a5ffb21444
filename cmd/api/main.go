package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/soyHouston256/stream-sales-sub004/internal/infrastructure"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := infrastructure.Bootstrap(ctx, logger)
	if err != nil {
		logger.Error("bootstrap failed", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	logger.Info("stream-sales is starting")
	if err := app.Run(ctx); err != nil {
		logger.Error("application stopped with error", "error", err)
		cleanup()
		os.Exit(1)
	}
	logger.Info("stream-sales stopped")
}
