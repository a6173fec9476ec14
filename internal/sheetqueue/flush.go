package sheetqueue

import (
	"context"
	"time"

	"sheet_trader/internal/sheets"
	"sheet_trader/pkg/logger"
)

const flushBatchSize = 10

// SheetWriter — запись в рабочий лист.
type SheetWriter interface {
	UpdateCell(ctx context.Context, row int, column string, value any) error
	ClearCells(ctx context.Context, row int, columns []string) error
}

// ArchiveWriter — перенос строки в архивный лист.
type ArchiveWriter interface {
	Append(ctx context.Context, values []string) error
}

// Flusher периодически сбрасывает очередь в Google Sheets.
type Flusher struct {
	queue   *Queue
	main    SheetWriter
	archive ArchiveWriter

	// после 429 ждём дольше обычного интервала
	cooldownUntil time.Time
}

func NewFlusher(queue *Queue, main SheetWriter, archive ArchiveWriter) *Flusher {
	return &Flusher{queue: queue, main: main, archive: archive}
}

// Run гоняет Flush по тикеру до отмены контекста. Последний сброс — при выходе,
// чтобы не потерять хвост очереди (журнал на диске всё равно подстрахует).
func (f *Flusher) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
			f.Flush(flushCtx)
			cancel()
			return
		case <-ticker.C:
			f.Flush(ctx)
		}
	}
}

// Flush применяет один батч операций. 429 от Google обрывает батч целиком:
// остаток уйдёт следующим заходом, после паузы.
func (f *Flusher) Flush(ctx context.Context) {
	if time.Now().Before(f.cooldownUntil) {
		return
	}
	batch := f.queue.Batch(flushBatchSize)
	if len(batch) == 0 {
		return
	}

	var done, failed []string
	for _, op := range batch {
		err := f.apply(ctx, op)
		if err == nil {
			done = append(done, op.ID)
			// строку чистим и сбрасываем только когда архив реально записан
			if op.Kind == OpArchive {
				if len(op.ClearAfter) > 0 {
					f.queue.AddClears(op.Row, op.ClearAfter)
				}
				for col, val := range op.ResetCells {
					f.queue.AddCellUpdate(op.Row, col, val)
				}
			}
			continue
		}
		if sheets.IsRateLimited(err) {
			logger.Warn("sheets rate limit hit, backing off: %v", err)
			f.cooldownUntil = time.Now().Add(time.Minute)
			break
		}
		logger.Error("queue op %s %s row=%d failed: %v", op.ID, op.Kind, op.Row, err)
		failed = append(failed, op.ID)
	}

	f.queue.MarkCompleted(done)
	f.queue.MarkFailed(failed)
	if len(done) > 0 {
		logger.Info("queue flushed %d ops, %d left", len(done), f.queue.Len())
	}
}

func (f *Flusher) apply(ctx context.Context, op Op) error {
	switch op.Kind {
	case OpCell:
		return f.main.UpdateCell(ctx, op.Row, op.Column, op.Value)
	case OpArchive:
		return f.archive.Append(ctx, op.Values)
	case OpClear:
		return f.main.ClearCells(ctx, op.Row, op.Columns)
	}
	return nil
}
