package bootstrap

import (
	"context"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"github.com/rumbleFTW/koe-app/internal/archive"
	"github.com/rumbleFTW/koe-app/internal/metrics"
	"go.uber.org/fx"
)

func ProvideRedisClient(lc fx.Lifecycle, cfg *Config, logger *slog.Logger) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			// Without redis the app still runs; only archiving fails.
			if err := client.Ping(ctx).Err(); err != nil {
				logger.Warn("redis unreachable, transcripts will not be archived", "addr", cfg.Redis.Addr, "error", err)
			}
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return client.Close()
		},
	})
	return client
}

func ProvideArchiveStore(redisClient *redis.Client, cfg *Config) *archive.Store {
	return archive.NewStore(redisClient, cfg.Redis.TranscriptTTL)
}

func ProvideMetrics() *metrics.Metrics {
	return metrics.New()
}

var InfrastructureModule = fx.Options(
	fx.Provide(
		ProvideRedisClient,
		ProvideArchiveStore,
		ProvideMetrics,
	),
)
