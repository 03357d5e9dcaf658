package main

import (
	"context"
	"fmt"

	"github.com/septivank/mcp-client-registry/internal/config"
	"github.com/septivank/mcp-client-registry/internal/db"
	"github.com/septivank/mcp-client-registry/internal/httpapi"
	"github.com/septivank/mcp-client-registry/internal/mq"
	"github.com/septivank/mcp-client-registry/internal/registry"
	"github.com/septivank/mcp-client-registry/internal/repository"
	"github.com/septivank/mcp-client-registry/internal/service"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// startLifecycleConsumer binds the lifecycle queue to the registry: each
// connect/disconnect message becomes one registry call.
func startLifecycleConsumer(
	lc fx.Lifecycle,
	conn *mq.Connection,
	cfg *config.Config,
	logger *zap.Logger,
	lifecycle *service.LifecycleService,
) error {
	ctx, cancel := context.WithCancel(context.Background())

	consumer, err := mq.NewConsumer(mq.ConsumerConfig{
		Connection:    conn,
		Queue:         cfg.RabbitMQ.LifecycleQueue,
		DLQQueue:      cfg.RabbitMQ.DLQQueue,
		Exchange:      cfg.RabbitMQ.LifecycleExchange,
		RoutingKey:    cfg.RabbitMQ.LifecycleRoutingKey,
		PrefetchCount: cfg.RabbitMQ.PrefetchCount,
		Logger:        logger,
		Handler:       lifecycle.ProcessMessage,
	})
	if err != nil {
		cancel()
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(startCtx context.Context) error {
			logger.Info("starting lifecycle consumer",
				zap.String("queue", cfg.RabbitMQ.LifecycleQueue),
				zap.Int("prefetch", cfg.RabbitMQ.PrefetchCount))
			return consumer.Start(ctx)
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			if err := consumer.Close(); err != nil {
				logger.Error("failed to close consumer", zap.Error(err))
				return err
			}
			logger.Info("lifecycle consumer stopped gracefully")
			return nil
		},
	})

	return nil
}

// startHTTPServer serves the listing/exists API for the UI.
func startHTTPServer(lc fx.Lifecycle, server *httpapi.Server, cfg *config.Config, logger *zap.Logger) {
	addr := fmt.Sprintf(":%d", cfg.HTTPPort)

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			logger.Info("starting http server", zap.String("addr", addr))
			go func() {
				if err := server.Start(addr); err != nil {
					logger.Warn("http server stopped", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			if err := server.Shutdown(ctx); err != nil {
				logger.Error("failed to shut down http server", zap.Error(err))
				return err
			}
			logger.Info("http server stopped gracefully")
			return nil
		},
	})
}

// ProvideRepository creates a new repository instance
func ProvideRepository(pool *db.Pool) *repository.Repository {
	return repository.NewRepository(pool)
}

// ProvideClientRegistry creates the client registry over the repository
func ProvideClientRegistry(repo *repository.Repository, logger *zap.Logger) *registry.ClientRegistry {
	return registry.NewClientRegistry(repo, logger)
}

// ProvideLifecycleService creates the lifecycle message dispatcher
func ProvideLifecycleService(reg *registry.ClientRegistry, logger *zap.Logger) *service.LifecycleService {
	return service.NewLifecycleService(reg, logger)
}

// ProvideHTTPServer creates the registry HTTP API server
func ProvideHTTPServer(reg *registry.ClientRegistry, logger *zap.Logger) *httpapi.Server {
	return httpapi.NewServer(reg, logger)
}

// ProvideDBPool creates a new database pool instance
func ProvideDBPool(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*db.Pool, error) {
	return db.NewPool(lc, logger, cfg.Database.URL)
}

// ProvideMQConnection creates a new RabbitMQ connection instance
func ProvideMQConnection(lc fx.Lifecycle, logger *zap.Logger, cfg *config.Config) (*mq.Connection, error) {
	return mq.NewConnection(lc, logger, cfg.RabbitMQ.URL)
}
