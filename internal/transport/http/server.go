package http

import (
	"context"
	"log/slog"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/soyHouston256/stream-sales-sub004/internal/service"
)

type Server struct {
	app  *fiber.App
	addr string
}

// NewApp builds the fiber application with every route registered.
func NewApp(svc service.MarketService, logger *slog.Logger) *fiber.App {
	if logger == nil {
		logger = slog.Default()
	}
	app := fiber.New(fiber.Config{
		AppName:               "stream-sales",
		ReadTimeout:           5 * time.Second,
		WriteTimeout:          10 * time.Second,
		IdleTimeout:           120 * time.Second,
		DisableStartupMessage: true,
		ErrorHandler:          errorHandler,
	})
	NewHandler(svc, logger).Register(app)
	return app
}

func NewServer(addr string, svc service.MarketService, logger *slog.Logger) *Server {
	return &Server{app: NewApp(svc, logger), addr: addr}
}

func (s *Server) Start(ctx context.Context) error {
	return s.app.Listen(s.addr)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.app.ShutdownWithContext(ctx)
}
