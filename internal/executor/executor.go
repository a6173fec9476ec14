package executor

import (
	"context"
	"time"

	"github.com/opentracing/opentracing-go"

	"sheet_trader/internal/exchange"
	"sheet_trader/internal/journal"
	"sheet_trader/internal/models"
	"sheet_trader/internal/modules/config"
	"sheet_trader/internal/notify"
	"sheet_trader/internal/sheetqueue"
	"sheet_trader/internal/sheets"
	"sheet_trader/pkg/logger"
)

// Статусы для колонки "Order Placed?".
const (
	statusOrderPlaced         = "ORDER_PLACED"
	statusSold                = "SOLD"
	statusUpdateTpSl          = "UPDATE_TP_SL"
	statusInsufficientBalance = "INSUFFICIENT_BALANCE"
)

const dateLayout = "2006-01-02 15:04:05"

// Executor гоняет основной цикл: лист -> сигналы -> ордера -> очередь записей.
type Executor struct {
	cfg      *config.Config
	ex       *exchange.Client
	sheet    *sheets.Sheet
	queue    *sheetqueue.Queue
	book     *Book
	store    *journal.Store
	notifier notify.Notifier
	tracker  *exchange.OrderTracker
	atr      *atrEstimator

	lastTradeCheck time.Time
}

func New(
	cfg *config.Config,
	ex *exchange.Client,
	sheet *sheets.Sheet,
	queue *sheetqueue.Queue,
	book *Book,
	store *journal.Store,
	notifier notify.Notifier,
	tracker *exchange.OrderTracker,
) (*Executor, error) {
	atr, err := newATREstimator()
	if err != nil {
		return nil, err
	}
	return &Executor{
		cfg:            cfg,
		ex:             ex,
		sheet:          sheet,
		queue:          queue,
		book:           book,
		store:          store,
		notifier:       notifier,
		tracker:        tracker,
		atr:            atr,
		lastTradeCheck: time.Now(),
	}, nil
}

// Run — главный цикл. Первым делом восстанавливает позиции из листа.
func (e *Executor) Run(ctx context.Context) {
	if err := e.sheet.EnsureColumn(ctx, sheets.ColOrderID); err != nil {
		logger.Error("ensure order_id column: %v", err)
	}

	headers, rows, err := e.readSheet(ctx)
	if err != nil {
		logger.Error("initial sheet read: %v", err)
	} else {
		e.book.Rehydrate(headers, rows)
	}

	// ордера, выставленные до рестарта, могли исполниться пока бот лежал:
	// без монитора такая позиция навсегда застрянет в ORDER_PLACED
	for _, p := range e.book.PendingBuys() {
		pending := p
		logger.Info("resuming fill monitor for %s order %s", pending.Symbol, pending.OrderID)
		go e.monitorPosition(ctx, &pending, models.TradeSignal{Symbol: pending.Symbol})
	}

	go e.consumeOrderStream(ctx)

	checkTicker := time.NewTicker(e.cfg.CheckInterval)
	orderTicker := time.NewTicker(e.cfg.OrderCheckInterval)
	tpslTicker := time.NewTicker(e.cfg.TpslRevisionInterval)
	defer checkTicker.Stop()
	defer orderTicker.Stop()
	defer tpslTicker.Stop()

	e.cycle(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-checkTicker.C:
			e.cycle(ctx)
		case <-orderTicker.C:
			e.checkCompletedOrders(ctx)
			e.checkRecentTrades(ctx)
		case <-tpslTicker.C:
			e.reviseTpSl(ctx)
		}
	}
}

func (e *Executor) readSheet(ctx context.Context) ([]string, [][]string, error) {
	headers, err := e.sheet.Headers(ctx)
	if err != nil {
		return nil, nil, err
	}
	rows, err := e.sheet.Rows(ctx)
	if err != nil {
		return nil, nil, err
	}
	return headers, rows, nil
}

// cycle — один проход по листу.
func (e *Executor) cycle(ctx context.Context) {
	span := opentracing.StartSpan("trade-cycle")
	defer span.Finish()
	ctx = opentracing.ContextWithSpan(ctx, span)

	headers, rows, err := e.readSheet(ctx)
	if err != nil {
		if sheets.IsRateLimited(err) {
			logger.Warn("sheet read rate limited, skipping cycle")
			return
		}
		logger.Error("read sheet: %v", err)
		return
	}

	signals := sheets.ParseSignals(headers, rows)
	span.SetTag("signals", len(signals))
	for _, sig := range signals {
		select {
		case <-ctx.Done():
			return
		default:
		}
		switch sig.Action {
		case models.ActionBuy:
			e.executeBuy(ctx, sig)
		case models.ActionSell:
			e.executeSell(ctx, sig, headers, rows)
		}
	}
}

func (e *Executor) executeBuy(ctx context.Context, sig models.TradeSignal) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "buy")
	defer span.Finish()
	span.SetTag("symbol", sig.Symbol)

	if e.book.Has(sig.Symbol) {
		return
	}

	price, err := e.ex.LastPrice(ctx, sig.Symbol)
	if err != nil {
		logger.Error("price for %s: %v", sig.Symbol, err)
		return
	}
	sig.LastPrice = price

	ok, available, err := e.ex.HasSufficientBalance(ctx, e.cfg.TradeAmount)
	if err != nil {
		logger.Error("balance check: %v", err)
		return
	}
	if !ok {
		e.queue.AddCellUpdate(sig.RowIndex, sheets.ColOrderPlaced, statusInsufficientBalance)
		e.notifier.Sendf("⚠️ %s: не хватает USDT (есть %.2f, нужно %.2f)",
			sig.Symbol, available, e.cfg.TradeAmount*1.05)
		return
	}

	if e.cfg.ConfirmRequired {
		prompt := "Покупка " + sig.Symbol + " на " + exchange.FormatNotional(e.cfg.TradeAmount) + " USDT?"
		if !e.notifier.Confirm(ctx, prompt, e.cfg.ConfirmTimeout) {
			logger.Info("buy %s skipped: not confirmed", sig.Symbol)
			return
		}
	}

	orderID, err := e.ex.Buy(ctx, sig.Symbol, e.cfg.TradeAmount)
	if err != nil {
		logger.Error("buy %s: %v", sig.Symbol, err)
		e.notifier.Sendf("❌ Покупка %s не прошла: %v", sig.Symbol, err)
		return
	}

	now := time.Now()
	e.queue.AddCellUpdate(sig.RowIndex, sheets.ColOrderPlaced, statusOrderPlaced)
	e.queue.AddCellUpdate(sig.RowIndex, sheets.ColOrderDate, now.Format(dateLayout))
	e.queue.AddCellUpdate(sig.RowIndex, sheets.ColOrderID, orderID)
	e.queue.AddCellUpdate(sig.RowIndex, sheets.ColQuantity, exchange.FormatQuantity(sig.Symbol, e.cfg.TradeAmount/price))
	e.queue.AddCellUpdate(sig.RowIndex, sheets.ColNotes, "order_id: "+orderID)
	// строка занята: сигнал гасим, повторные покупки запрещаем
	e.queue.AddCellUpdate(sig.RowIndex, sheets.ColBuySignal, models.ActionWait)
	e.queue.AddCellUpdate(sig.RowIndex, sheets.ColTradable, "NO")

	pos := &models.Position{
		Symbol:       sig.Symbol,
		OrderID:      orderID,
		RowIndex:     sig.RowIndex,
		Quantity:     e.cfg.TradeAmount / price, // оценка до филла
		Price:        price,
		HighestPrice: price,
		Status:       models.PositionOrderPlaced,
	}
	e.book.Set(pos)

	logger.Info("buy %s placed: order=%s ~%.2f USDT @ %.6f", sig.Symbol, orderID, e.cfg.TradeAmount, price)
	e.notifier.Sendf("🟢 Покупка %s на %.2f USDT, ордер %s", sig.Symbol, e.cfg.TradeAmount, orderID)

	go e.monitorPosition(ctx, pos, sig)
}

func (e *Executor) executeSell(ctx context.Context, sig models.TradeSignal, headers []string, rows [][]string) {
	span, ctx := opentracing.StartSpanFromContext(ctx, "sell")
	defer span.Finish()
	span.SetTag("symbol", sig.Symbol)

	base := exchange.BaseCurrency(sig.Symbol)
	pos, tracked := e.book.Snapshot(sig.Symbol)
	if !tracked {
		// бот позицию не отслеживал (рестарт, ручная покупка мимо бота),
		// но в строке есть order_id: продаём фактический остаток с биржи
		bal, err := e.ex.AvailableBalance(ctx, base)
		if err != nil {
			logger.Error("sell %s: balance lookup failed: %v", sig.Symbol, err)
			return
		}
		if bal <= 0 {
			logger.Warn("sell signal for %s: no tracked position and no %s balance", sig.Symbol, base)
			return
		}
		recovered := recoveredPosition(sig, headers, rows, bal)
		e.book.Set(recovered)
		pos = *recovered
		logger.Info("sell %s: untracked position, selling %v %s from exchange balance", sig.Symbol, bal, base)
	}

	// продаём фактический остаток: частичные филлы и комиссия в базовой
	// валюте делают количество из листа оптимистичным
	qty := pos.Quantity
	if bal, err := e.ex.AvailableBalance(ctx, base); err == nil && bal > 0 && bal < qty {
		qty = bal
	}
	if qty <= 0 {
		logger.Warn("sell %s: nothing to sell", sig.Symbol)
		return
	}

	e.cancelBracketOrders(ctx, sig.Symbol)

	orderID, err := e.ex.Sell(ctx, sig.Symbol, qty)
	if err != nil {
		logger.Error("sell %s: %v", sig.Symbol, err)
		e.notifier.Sendf("❌ Продажа %s не прошла: %v", sig.Symbol, err)
		return
	}
	logger.Info("sell %s placed: order=%s qty=%v", sig.Symbol, orderID, qty)

	go e.monitorSellOrder(ctx, pos.Symbol, orderID, "MANUAL_SELL", headers, rows)
}

// recoveredPosition собирает позицию под продажу, которую бот не отслеживал:
// количество берём из баланса биржи, цену входа — из строки листа, если она там есть.
func recoveredPosition(sig models.TradeSignal, headers []string, rows [][]string, balance float64) *models.Position {
	pos := &models.Position{
		Symbol:   sig.Symbol,
		OrderID:  sig.OrderID,
		RowIndex: sig.RowIndex,
		Quantity: balance,
		Status:   models.PositionActive,
	}
	if sig.RowIndex-2 >= 0 && sig.RowIndex-2 < len(rows) {
		row := rows[sig.RowIndex-2]
		price, _ := sheets.ParseNumber(sheets.Cell(headers, row, sheets.ColPurchasePrice))
		pos.Price = sheets.NormalizePrice(sig.OriginalSymbol, price)
		pos.HighestPrice = pos.Price
	}
	return pos
}

// cancelBracketOrders снимает TP и SL перед ручной продажей или после закрытия.
func (e *Executor) cancelBracketOrders(ctx context.Context, symbol string) {
	var ids []string
	e.book.Update(symbol, func(p *models.Position) {
		ids = append(ids, p.TPOrderID, p.SLOrderID)
		p.TPOrderID = ""
		p.SLOrderID = ""
	})
	for _, orderID := range ids {
		if orderID == "" {
			continue
		}
		if err := e.ex.CancelOrder(ctx, orderID); err != nil {
			logger.Warn("cancel order %s for %s: %v", orderID, symbol, err)
		}
	}
}
