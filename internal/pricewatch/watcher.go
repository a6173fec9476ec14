package pricewatch

import (
	"context"
	"sync"
	"time"

	"sheet_trader/internal/exchange"
	"sheet_trader/internal/modules/config"
	"sheet_trader/internal/sheetqueue"
	"sheet_trader/internal/sheets"
	"sheet_trader/pkg/logger"
)

const (
	baseBackoff = 2 * time.Minute
	maxBackoff  = time.Hour
)

// problemTracker помнит символы, по которым биржа стабильно отвечает ошибкой
// (делистинг, опечатка в листе), и растит паузу между повторами.
type problemTracker struct {
	mu      sync.Mutex
	entries map[string]*problemEntry
}

type problemEntry struct {
	failures int
	nextTry  time.Time
}

func newProblemTracker() *problemTracker {
	return &problemTracker{entries: make(map[string]*problemEntry)}
}

func (p *problemTracker) ShouldSkip(symbol string, now time.Time) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[symbol]
	return ok && now.Before(e.nextTry)
}

func (p *problemTracker) Fail(symbol string, now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[symbol]
	if !ok {
		e = &problemEntry{}
		p.entries[symbol] = e
	}
	e.failures++
	delay := baseBackoff << (e.failures - 1)
	if delay > maxBackoff || delay <= 0 {
		delay = maxBackoff
	}
	e.nextTry = now.Add(delay)
}

func (p *problemTracker) OK(symbol string) {
	p.mu.Lock()
	delete(p.entries, symbol)
	p.mu.Unlock()
}

// Watcher обновляет колонку "Current Price" для всех торгуемых строк.
// Живёт отдельным бинарём, чтобы квоту листа не делить с основным ботом.
type Watcher struct {
	cfg      *config.Config
	ex       *exchange.Client
	sheet    *sheets.Sheet
	queue    *sheetqueue.Queue
	problems *problemTracker
}

func NewWatcher(cfg *config.Config, ex *exchange.Client, sheet *sheets.Sheet, queue *sheetqueue.Queue) *Watcher {
	return &Watcher{
		cfg:      cfg,
		ex:       ex,
		sheet:    sheet,
		queue:    queue,
		problems: newProblemTracker(),
	}
}

func (w *Watcher) Run(ctx context.Context) {
	for _, col := range []string{sheets.ColCurrentPrice, sheets.ColPriceUpdated} {
		if err := w.sheet.EnsureColumn(ctx, col); err != nil {
			logger.Error("ensure %q column: %v", col, err)
		}
	}

	ticker := time.NewTicker(w.cfg.PriceUpdateInterval)
	defer ticker.Stop()

	w.update(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.update(ctx)
		}
	}
}

func (w *Watcher) update(ctx context.Context) {
	headers, err := w.sheet.Headers(ctx)
	if err != nil {
		logger.Error("price update headers: %v", err)
		return
	}
	rows, err := w.sheet.Rows(ctx)
	if err != nil {
		if sheets.IsRateLimited(err) {
			logger.Warn("price update rate limited, skipping round")
			return
		}
		logger.Error("price update rows: %v", err)
		return
	}

	now := time.Now()
	updated := 0
	for i, row := range rows {
		coin := sheets.Cell(headers, row, sheets.ColCoin)
		if coin == "" || !sheets.Truthy(sheets.Cell(headers, row, sheets.ColTradable)) {
			continue
		}
		symbol := sheets.FormatPair(coin)
		if w.problems.ShouldSkip(symbol, now) {
			continue
		}

		price, err := w.ex.LastPrice(ctx, symbol)
		if err != nil {
			w.problems.Fail(symbol, now)
			logger.Warn("price %s: %v", symbol, err)
			continue
		}
		w.problems.OK(symbol)
		w.queue.AddCellUpdate(i+2, sheets.ColCurrentPrice, exchange.FormatPrice(price))
		w.queue.AddCellUpdate(i+2, sheets.ColPriceUpdated, now.Format("2006-01-02 15:04:05"))
		updated++
	}
	if updated > 0 {
		logger.Info("prices refreshed for %d symbols", updated)
	}
}
