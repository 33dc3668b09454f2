package modules

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"
	"go.uber.org/fx"

	"github.com/memohai/deckcrm/internal/config"
	"github.com/memohai/deckcrm/internal/db"
	"github.com/memohai/deckcrm/internal/logger"
	"github.com/memohai/deckcrm/internal/monitoring"
	"github.com/memohai/deckcrm/internal/queue"
	"github.com/memohai/deckcrm/internal/realtime"
	"github.com/memohai/deckcrm/internal/store"
)

var InfraModule = fx.Module(
	"infra",
	fx.Provide(
		provideLogger,
		provideDBConn,
		provideRegistry,
		provideMetrics,
		provideHub,
		provideRedisClient,
		providePublisher,
		provideStore,
		provideQueuePublisher,
		func(h *realtime.Hub) realtime.Subscriber { return h },
		func(s store.Store) store.Queries { return s },
		func(r *prometheus.Registry) prometheus.Gatherer { return r },
	),
)

// ---------------------------------------------------------------------------
// infrastructure providers
// ---------------------------------------------------------------------------

func provideLogger(cfg config.Config) *slog.Logger {
	logger.Init(cfg.Log.Level, cfg.Log.Format)
	return logger.L
}

func provideDBConn(lc fx.Lifecycle, cfg config.Config) (*pgxpool.Pool, error) {
	conn, err := db.Open(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, fmt.Errorf("db connect: %w", err)
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			conn.Close()
			return nil
		},
	})
	return conn, nil
}

func provideRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	return reg
}

func provideMetrics(log *slog.Logger, reg *prometheus.Registry) *monitoring.Metrics {
	return monitoring.NewMetrics(log, reg)
}

func provideHub(metrics *monitoring.Metrics) *realtime.Hub {
	hub := realtime.NewHub()
	hub.OnDrop(metrics.ObserveDrop)
	return hub
}

// provideRedisClient returns nil when cross-instance fan-out is disabled.
func provideRedisClient(lc fx.Lifecycle, cfg config.Config) *redis.Client {
	if !cfg.Redis.Enabled {
		return nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := client.Ping(ctx).Err(); err != nil {
				return fmt.Errorf("redis ping: %w", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

// providePublisher publishes store changes to the local hub, and through Redis when a
// client is configured.
func providePublisher(lc fx.Lifecycle, log *slog.Logger, cfg config.Config, hub *realtime.Hub, client *redis.Client) realtime.Publisher {
	if client == nil {
		return hub
	}
	bridge := realtime.NewRedisBridge(log, client, cfg.Redis.Channel, hub)
	ctx, cancel := context.WithCancel(context.Background())
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				if err := bridge.Run(ctx); err != nil {
					log.Error("realtime bridge stopped", slog.Any("error", err))
				}
			}()
			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
	return bridge
}

func provideStore(log *slog.Logger, pool *pgxpool.Pool, publisher realtime.Publisher) store.Store {
	return store.NewPostgres(log, pool, publisher)
}

// provideQueuePublisher returns nil when RabbitMQ is disabled.
func provideQueuePublisher(lc fx.Lifecycle, log *slog.Logger, cfg config.Config) *queue.Publisher {
	if !cfg.RabbitMQ.Enabled {
		return nil
	}
	p := queue.NewPublisher(log, cfg.RabbitMQ)
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			return p.Close()
		},
	})
	return p
}
