package postgres

import (
	"context"
	"fmt"
	"sheet_trader/internal/modules/config"
	"sheet_trader/pkg/db"

	"go.uber.org/fx"
)

// Module поднимает пул постгреса и отдаёт менеджер транзакций.
func Module() fx.Option {
	return fx.Module("postgres",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config) (*db.PgTxManager, error) {
				poolMaster, err := db.NewPool(ctx, db.PoolConfig{
					DSN: cfg.DB,
				})
				if err != nil {
					return nil, fmt.Errorf("failed to create poolMaster: %w", err)
				}

				err = poolMaster.Ping(ctx)
				if err != nil {
					return nil, err
				}

				return db.NewPgTxManager(poolMaster), nil
			},
		),
	)
}
