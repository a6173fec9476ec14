package main

import (
	"context"
	"log"

	"sheet_trader/internal/exchange"
	"sheet_trader/internal/executor"
	"sheet_trader/internal/modules/config"
	"sheet_trader/internal/modules/postgres"
	"sheet_trader/pkg/logger"
	"sheet_trader/pkg/tracing"

	"go.uber.org/fx"
)

func main() {
	app := fx.New(
		fx.Provide(
			func() context.Context {
				return context.Background()
			},
		),
		config.Module(),
		postgres.Module(),
		exchange.Module(),
		executor.Module(),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config) error {
			logger.SetServiceName("sheet-trader")
			logger.Init(cfg.LogFile)

			if cfg.Jaeger.Host == "" {
				return nil
			}
			tracing.SetServiceName("sheet-trader")
			_, closeTracer, err := tracing.InitTracer(tracing.Config{
				Host: cfg.Jaeger.Host,
				Port: cfg.Jaeger.Port,
			})
			if err != nil {
				return err
			}
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					closeTracer()
					return nil
				},
			})
			return nil
		}),
	)
	if err := app.Err(); err != nil {
		log.Fatal(err)
	}
	app.Run()
}
