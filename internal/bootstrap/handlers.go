package bootstrap

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/rumbleFTW/koe-app/internal/api"
	"github.com/rumbleFTW/koe-app/internal/archive"
	"github.com/rumbleFTW/koe-app/internal/backend"
	"github.com/rumbleFTW/koe-app/internal/conversation"
	"github.com/rumbleFTW/koe-app/internal/health"
	"github.com/rumbleFTW/koe-app/internal/metrics"
	"go.uber.org/fx"
)

func ProvideAPIHandler(conv *conversation.Conversation, b *backend.Client, store *archive.Store, logger *slog.Logger) *api.Handler {
	return api.NewHandler(conv, b, store, logger.With("handler", "api"))
}

type HandlerParams struct {
	fx.In

	APIHandler    *api.Handler
	HealthHandler *health.Handler
	Metrics       *metrics.Metrics
}

func RegisterRoutes(e *echo.Echo, params HandlerParams) {
	v1 := e.Group("/v1")
	v1.Use(params.HealthHandler.Middleware)
	params.HealthHandler.RegisterRoutes(v1)
	params.APIHandler.RegisterRoutes(v1)

	e.GET("/metrics", echo.WrapHandler(params.Metrics.Handler()))
}

var HandlersModule = fx.Options(
	fx.Provide(
		ProvideLogger,
		ProvideAPIHandler,
	),
	fx.Invoke(RegisterRoutes),
)
