package bootstrap

import (
	"github.com/redis/go-redis/v9"
	"github.com/rumbleFTW/koe-app/internal/backend"
	"github.com/rumbleFTW/koe-app/internal/conversation"
	"github.com/rumbleFTW/koe-app/internal/health"
	"go.uber.org/fx"
)

const version = "0.1.0"

func ProvideHealthHandler(redis *redis.Client, b *backend.Client, conv *conversation.Conversation) *health.Handler {
	return health.NewHandler(redis, b, conv, version)
}

var HealthModule = fx.Options(
	fx.Provide(ProvideHealthHandler),
)
