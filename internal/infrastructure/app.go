package infrastructure

import (
	"context"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Server is anything the App runs until shutdown: HTTP, gRPC, NATS
// handlers and the worker.
type Server interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

type App struct {
	servers     []Server
	logger      *slog.Logger
	stopTimeout time.Duration
}

func NewApp(servers []Server, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{servers: servers, logger: logger, stopTimeout: 10 * time.Second}
}

// Run starts every server and blocks until ctx is cancelled or one of them
// fails, then stops them all.
func (a *App) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	for _, srv := range a.servers {
		srv := srv
		g.Go(func() error {
			return srv.Start(ctx)
		})
	}

	<-ctx.Done()

	stopCtx, cancel := context.WithTimeout(context.Background(), a.stopTimeout)
	defer cancel()
	for _, srv := range a.servers {
		if err := srv.Stop(stopCtx); err != nil {
			a.logger.Warn("server stop failed", "error", err)
		}
	}

	return g.Wait()
}
