package exchange

import (
	"go.uber.org/fx"

	"sheet_trader/internal/modules/config"
)

func Module() fx.Option {
	return fx.Module("exchange",
		fx.Provide(
			func(cfg *config.Config) (*Client, error) {
				return NewClient(cfg.Exchange.APIKey, cfg.Exchange.APISecret)
			},
			func(cfg *config.Config) *OrderTracker {
				return NewOrderTracker(cfg.Exchange.APIKey, cfg.Exchange.APISecret)
			},
		),
	)
}
