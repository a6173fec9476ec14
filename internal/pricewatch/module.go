package pricewatch

import (
	"context"

	gsheets "google.golang.org/api/sheets/v4"

	"go.uber.org/fx"

	"sheet_trader/internal/modules/config"
	"sheet_trader/internal/sheetqueue"
	"sheet_trader/internal/sheets"
	"sheet_trader/pkg/logger"
)

// noArchive: апдейтеру цен архивировать нечего.
type noArchive struct{}

func (noArchive) Append(ctx context.Context, values []string) error { return nil }

func Module() fx.Option {
	return fx.Module("pricewatch",
		fx.Provide(
			func(ctx context.Context, cfg *config.Config) (*gsheets.Service, error) {
				return sheets.NewService(ctx, cfg.Sheets.CredentialsFile)
			},
			func(svc *gsheets.Service, cfg *config.Config) *sheets.Sheet {
				return sheets.NewSheet(svc, cfg.Sheets.SpreadsheetID, cfg.Sheets.Worksheet)
			},
			func(cfg *config.Config) (*sheetqueue.Queue, error) {
				return sheetqueue.Open(cfg.DataDir)
			},
			NewWatcher,
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, w *Watcher, queue *sheetqueue.Queue, sheet *sheets.Sheet) {
			runCtx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					flusher := sheetqueue.NewFlusher(queue, sheet, noArchive{})
					go w.Run(runCtx)
					go flusher.Run(runCtx, cfg.BatchUpdateInterval)
					logger.Info("price watcher started: every %s", cfg.PriceUpdateInterval)
					return nil
				},
				OnStop: func(ctx context.Context) error {
					cancel()
					return nil
				},
			})
		}),
	)
}
