package executor

import (
	"context"

	gsheets "google.golang.org/api/sheets/v4"

	"go.uber.org/fx"

	"sheet_trader/internal/exchange"
	"sheet_trader/internal/journal"
	"sheet_trader/internal/modules/config"
	"sheet_trader/internal/notify"
	"sheet_trader/internal/sheetqueue"
	"sheet_trader/internal/sheets"
	"sheet_trader/pkg/db"
	"sheet_trader/pkg/logger"
)

// SheetSet — рабочий и архивный листы одной таблицы.
type SheetSet struct {
	Main    *sheets.Sheet
	Archive *sheets.Sheet
}

// archiveWriter адаптирует архивный лист под очередь: вставка в первую
// по-настоящему пустую строку (ключевые — первые 4 колонки).
type archiveWriter struct {
	sheet *sheets.Sheet
}

func (a archiveWriter) Append(ctx context.Context, values []string) error {
	return a.sheet.AppendFirstEmpty(ctx, values, 4)
}

func Module() fx.Option {
	return fx.Module("executor",
		fx.Provide(
			NewBook,
			func(ctx context.Context, cfg *config.Config) (*gsheets.Service, error) {
				return sheets.NewService(ctx, cfg.Sheets.CredentialsFile)
			},
			func(svc *gsheets.Service, cfg *config.Config) SheetSet {
				return SheetSet{
					Main:    sheets.NewSheet(svc, cfg.Sheets.SpreadsheetID, cfg.Sheets.Worksheet),
					Archive: sheets.NewSheet(svc, cfg.Sheets.SpreadsheetID, cfg.Sheets.ArchiveWorksheet),
				}
			},
			func(cfg *config.Config) (*sheetqueue.Queue, error) {
				return sheetqueue.Open(cfg.DataDir)
			},
			func(queue *sheetqueue.Queue, set SheetSet) *sheetqueue.Flusher {
				return sheetqueue.NewFlusher(queue, set.Main, archiveWriter{sheet: set.Archive})
			},
			func(txm *db.PgTxManager) *journal.Store {
				return journal.New(txm)
			},
			func(cfg *config.Config, book *Book, queue *sheetqueue.Queue, store *journal.Store) (notify.Notifier, error) {
				if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
					logger.Warn("telegram not configured, notifications go to stdout")
					return notify.NewStdout(), nil
				}
				return notify.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, book, queue, store)
			},
			func(cfg *config.Config, ex *exchange.Client, set SheetSet, queue *sheetqueue.Queue,
				book *Book, store *journal.Store, notifier notify.Notifier, tracker *exchange.OrderTracker) (*Executor, error) {
				return New(cfg, ex, set.Main, queue, book, store, notifier, tracker)
			},
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, svc *gsheets.Service, set SheetSet,
			exec *Executor, flusher *sheetqueue.Flusher, store *journal.Store, notifier notify.Notifier) {

			runCtx, cancel := context.WithCancel(context.Background())
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := store.Migrate(ctx); err != nil {
						return err
					}
					if err := sheets.EnsureWorksheet(ctx, svc, cfg.Sheets.SpreadsheetID,
						cfg.Sheets.ArchiveWorksheet, ArchiveHeaders); err != nil {
						return err
					}
					if tg, ok := notifier.(*notify.Telegram); ok {
						if err := tg.Start(runCtx); err != nil {
							return err
						}
					}
					go exec.Run(runCtx)
					go flusher.Run(runCtx, cfg.BatchUpdateInterval)
					logger.Info("executor started: sheet=%s worksheet=%s", cfg.Sheets.SpreadsheetID, cfg.Sheets.Worksheet)
					notifier.Send("🤖 Бот запущен")
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
