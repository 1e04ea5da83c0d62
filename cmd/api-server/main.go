// Command api-server runs the discount preview service: the checkout
// function's codec and engine behind POST /api/discounts/{evaluate,explain}.
package main

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	mapguard "github.com/mapguard/map-guard/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := mapguard.LoadConfig()
		if err != nil {
			return errors.Wrap(err, "preview service config")
		}
		lg.Info("Loaded config",
			zap.Int64("max_body_bytes", cfg.MaxBodyBytes),
			zap.Strings("cors_origins", cfg.CORS.Origins),
			zap.Duration("readiness_delay", cfg.Graceful.ReadinessDelay),
			zap.Duration("shutdown_timeout", cfg.Graceful.ShutdownTimeout),
		)
		return mapguard.Run(ctx, lg, m, cfg)
	})
}
