package main

import (
	"context"
	"log"

	"sheet_trader/internal/exchange"
	"sheet_trader/internal/modules/config"
	"sheet_trader/internal/pricewatch"
	"sheet_trader/pkg/logger"

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
		exchange.Module(),
		pricewatch.Module(),
		fx.Invoke(func(cfg *config.Config) {
			logger.SetServiceName("sheet-pricer")
			logger.Init(cfg.LogFile)
		}),
	)
	if err := app.Err(); err != nil {
		log.Fatal(err)
	}
	app.Run()
}
