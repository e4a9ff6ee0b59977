// Command notify-worker delivers notifications queued by the API server.
package main

import (
	"context"

	"github.com/go-faster/sdk/app"
	"go.uber.org/zap"

	appkg "github.com/xenking/loyalty-orders/internal/app"
)

func main() {
	app.Run(func(ctx context.Context, lg *zap.Logger, m *app.Telemetry) error {
		cfg, err := appkg.LoadWorkerConfig()
		if err != nil {
			return err
		}
		return appkg.RunWorker(ctx, lg, m.MeterProvider().Meter("github.com/xenking/loyalty-orders/worker"), cfg)
	})
}
