package infrastructure

import (
	"context"
	"errors"
	"log/slog"

	"github.com/nats-io/nats.go"

	"github.com/soyHouston256/stream-sales-sub004/internal/config"
	"github.com/soyHouston256/stream-sales-sub004/internal/purchase"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository"
	"github.com/soyHouston256/stream-sales-sub004/internal/repository/memstore"
	"github.com/soyHouston256/stream-sales-sub004/internal/service"
	transportAMQP "github.com/soyHouston256/stream-sales-sub004/internal/transport/amqp"
	transportGRPC "github.com/soyHouston256/stream-sales-sub004/internal/transport/grpc"
	transportHTTP "github.com/soyHouston256/stream-sales-sub004/internal/transport/http"
	transportNATS "github.com/soyHouston256/stream-sales-sub004/internal/transport/nats"
	"github.com/soyHouston256/stream-sales-sub004/internal/worker"
)

// Bootstrap initialises all dependencies from config and wires up the application.
// Returns the App, a cleanup function, or an error.
func Bootstrap(ctx context.Context, logger *slog.Logger) (*App, func(), error) {
	cfg, err := config.New()
	if err != nil {
		return nil, nil, err
	}

	var cleanupFns []func()
	fail := func(err error) (*App, func(), error) {
		runCleanup(cleanupFns)()
		return nil, nil, err
	}

	// 1. Store
	store, err := OpenStore(ctx, cfg, logger)
	if err != nil {
		return fail(err)
	}
	cleanupFns = append(cleanupFns, store.Close)

	// 2. Cache (optional)
	var cache repository.Cache = repository.NopCache{}
	if addr := cfg.RedisAddr(); addr != "" {
		rdb, err := connectRedis(ctx, addr)
		if err != nil {
			return fail(err)
		}
		cache = repository.NewRedisCache(rdb, cfg.ReceiptTTL)
		cleanupFns = append(cleanupFns, func() { _ = rdb.Close() })
	}

	// 3. Bus
	var (
		bus repository.MessageBus = repository.NopBus{}
		nc  *nats.Conn
	)
	switch cfg.BusProvider {
	case "nats":
		nc, err = connectNats(cfg.NatsAddr(), logger)
		if err != nil {
			return fail(err)
		}
		bus = transportNATS.NewBus(nc)
		cleanupFns = append(cleanupFns, nc.Close)
	case "amqp":
		amqpBus, err := transportAMQP.Dial(cfg.AmqpURL(), cfg.AmqpExchange, logger)
		if err != nil {
			return fail(err)
		}
		bus = amqpBus
		cleanupFns = append(cleanupFns, amqpBus.Close)
	}

	svc := service.NewMarket(store, cache, bus, service.Options{
		Currency: cfg.Currency,
		Purchase: purchase.Config{
			PlatformUserID:       cfg.PlatformUserID,
			DefaultRate:          cfg.DefaultCommissionRate,
			DefaultAffiliateRate: cfg.DefaultAffiliateRate,
		},
	}, logger)

	// 4. Servers
	var servers []Server
	if addr, apiErr := cfg.ApiAddr(); apiErr == nil {
		servers = append(servers, transportHTTP.NewServer(addr, svc, logger))
	}
	if addr, grpcErr := cfg.GRPCAddr(); grpcErr == nil {
		servers = append(servers, transportGRPC.NewServer(addr, svc, logger))
	}
	if nc != nil {
		servers = append(servers, transportNATS.NewHandler(svc, nc, logger))
		if cfg.WorkerEnabled {
			servers = append(servers, worker.NewReconcileWorker(svc, nc, logger))
		}
	}
	if len(servers) == 0 {
		return fail(errors.New("nothing to run: enable the HTTP API, the gRPC server or the NATS bus"))
	}

	logger.Info("application wired",
		"store", cfg.StoreProvider,
		"bus", cfg.BusProvider,
		"cache", cfg.RedisAddr() != "",
		"servers", len(servers),
	)
	return NewApp(servers, logger), runCleanup(cleanupFns), nil
}

// OpenStore connects the configured store provider.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (repository.Store, error) {
	if cfg.StoreProvider == "memory" {
		logger.Warn("using in-memory store, state is lost on restart")
		return memstore.New(), nil
	}
	pool, err := connectPostgres(ctx, cfg.DSN())
	if err != nil {
		return nil, err
	}
	return repository.NewPgStore(pool, repository.PgOptions{
		MaxRetries:  cfg.TxMaxRetries,
		LockTimeout: cfg.LockTimeout,
	}, logger), nil
}

// runCleanup returns a single function that calls all cleanup functions in reverse order.
func runCleanup(fns []func()) func() {
	return func() {
		for i := len(fns) - 1; i >= 0; i-- {
			fns[i]()
		}
	}
}
