package executor

import (
	"context"
	"time"

	"sheet_trader/internal/exchange"
	"sheet_trader/internal/models"
	"sheet_trader/internal/sheets"
	"sheet_trader/pkg/logger"
)

const fillTimeout = 2 * time.Minute

// monitorPosition ждёт филла покупки и выставляет TP/SL.
func (e *Executor) monitorPosition(ctx context.Context, pos *models.Position, sig models.TradeSignal) {
	order, err := e.ex.MonitorOrder(ctx, pos.OrderID, fillTimeout)
	if err != nil {
		logger.Error("buy %s not filled: %v", pos.Symbol, err)
		e.notifier.Sendf("⚠️ Покупка %s не исполнилась: %v", pos.Symbol, err)
		e.book.Delete(pos.Symbol)
		status := order.Status
		if status == "" {
			status = "NOT_FILLED"
		}
		e.queue.AddCellUpdate(pos.RowIndex, sheets.ColOrderPlaced, status)
		return
	}

	// частичный филл — тоже позиция
	var qty, price float64
	e.book.Update(pos.Symbol, func(p *models.Position) {
		p.Quantity = order.CumQty
		if order.AvgPrice > 0 {
			p.Price = order.AvgPrice
		} else if order.CumQty > 0 && order.CumValue > 0 {
			p.Price = order.CumValue / order.CumQty
		}
		p.HighestPrice = p.Price
		p.Status = models.PositionActive
		qty, price = p.Quantity, p.Price
	})

	now := time.Now()
	e.queue.AddCellUpdate(pos.RowIndex, sheets.ColPurchasePrice, exchange.FormatPrice(price))
	e.queue.AddCellUpdate(pos.RowIndex, sheets.ColQuantity, exchange.FormatQuantity(pos.Symbol, qty))
	e.queue.AddCellUpdate(pos.RowIndex, sheets.ColPurchaseDate, now.Format(dateLayout))

	logger.Info("buy %s filled: qty=%v @ %.6f", pos.Symbol, qty, price)
	e.notifier.Sendf("✅ Куплено %s: %v @ %.6f", pos.Symbol, qty, price)

	e.placeBrackets(ctx, pos.Symbol, sig.ResistanceUp, sig.ResistanceDown)
}

// placeBrackets считает TP/SL от цены входа и ставит недостающие ордера.
func (e *Executor) placeBrackets(ctx context.Context, symbol string, resistance, swingLow float64) {
	snap, ok := e.book.Snapshot(symbol)
	if !ok {
		return
	}
	atr := e.atr.Estimate(symbol, snap.Price)
	sl := computeStopLoss(snap.Price, atr, e.cfg.ATRMultiplierSL, swingLow)
	tp := computeTakeProfit(snap.Price, atr, e.cfg.ATRMultiplierTP, resistance)

	placed := false
	if snap.TPOrderID == "" {
		tpID, err := e.ex.PlaceTakeProfit(ctx, symbol, snap.Quantity, tp)
		if err != nil {
			logger.Error("place TP for %s: %v", symbol, err)
			e.notifier.Sendf("⚠️ TP для %s не выставился: %v", symbol, err)
		} else {
			e.book.Update(symbol, func(p *models.Position) {
				p.TPOrderID = tpID
				p.TakeProfit = tp
			})
			e.queue.AddCellUpdate(snap.RowIndex, sheets.ColTakeProfit, exchange.FormatPrice(tp))
			placed = true
		}
	}

	if snap.SLOrderID == "" {
		slID, err := e.ex.PlaceStopLoss(ctx, symbol, snap.Quantity, sl)
		if err != nil {
			logger.Error("place SL for %s: %v", symbol, err)
			e.notifier.Sendf("⚠️ SL для %s не выставился: %v", symbol, err)
		} else {
			e.book.Update(symbol, func(p *models.Position) {
				p.SLOrderID = slID
				p.StopLoss = sl
			})
			e.queue.AddCellUpdate(snap.RowIndex, sheets.ColStopLoss, exchange.FormatPrice(sl))
			placed = true
		}
	}

	if placed {
		logger.Info("brackets for %s: TP=%.6f SL=%.6f", symbol, tp, sl)
		e.notifier.Sendf("🎯 %s: TP %.6f / SL %.6f", symbol, tp, sl)
	}
}

// monitorSellOrder ждёт исполнения продажи и закрывает позицию.
func (e *Executor) monitorSellOrder(ctx context.Context, symbol, orderID, reason string, headers []string, rows [][]string) {
	order, err := e.ex.MonitorOrder(ctx, orderID, fillTimeout)
	if err != nil {
		logger.Error("sell %s not filled: %v", symbol, err)
		e.notifier.Sendf("⚠️ Продажа %s не исполнилась: %v", symbol, err)
		return
	}

	sellPrice := order.AvgPrice
	if sellPrice == 0 && order.CumQty > 0 {
		sellPrice = order.CumValue / order.CumQty
	}
	e.closePosition(ctx, symbol, sellPrice, order.CumQty, reason, headers, rows)
}

// consumeOrderStream слушает user.order: филлы TP/SL приходят сюда быстрее,
// чем их увидит поллинг.
func (e *Executor) consumeOrderStream(ctx context.Context) {
	go e.tracker.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case upd, ok := <-e.tracker.Updates():
			if !ok {
				return
			}
			if upd.Status != models.OrderStatusFilled || upd.Side != "SELL" {
				continue
			}
			pos, found := e.book.ByOrderID(upd.OrderID)
			if !found {
				continue
			}
			reason := "TAKE_PROFIT"
			if upd.OrderID == pos.SLOrderID {
				reason = "STOP_LOSS"
			}
			logger.Info("%s %s filled via stream @ %.6f", reason, pos.Symbol, upd.AvgPrice)
			e.closePosition(ctx, pos.Symbol, upd.AvgPrice, upd.CumQty, reason, nil, nil)
		}
	}
}

// checkCompletedOrders опрашивает статусы TP/SL ордеров активных позиций.
// Дублирует стрим на случай, если сокет лежал во время филла.
func (e *Executor) checkCompletedOrders(ctx context.Context) {
	for _, pos := range e.book.OpenPositions() {
		if pos.Status != models.PositionActive {
			continue
		}

		if pos.TPOrderID != "" {
			if order, err := e.ex.OrderDetail(ctx, pos.TPOrderID); err == nil {
				if order.Status == models.OrderStatusFilled {
					e.closePosition(ctx, pos.Symbol, order.AvgPrice, order.CumQty, "TAKE_PROFIT", nil, nil)
					continue
				}
				if models.TerminalOrderStatus(order.Status) {
					stale := pos.TPOrderID
					e.book.Update(pos.Symbol, func(p *models.Position) {
						if p.TPOrderID == stale {
							p.TPOrderID = "" // пересоздастся на ревизии
						}
					})
				}
			}
		}
		if pos.SLOrderID != "" {
			if order, err := e.ex.OrderDetail(ctx, pos.SLOrderID); err == nil {
				if order.Status == models.OrderStatusFilled {
					e.closePosition(ctx, pos.Symbol, order.AvgPrice, order.CumQty, "STOP_LOSS", nil, nil)
					continue
				}
				if models.TerminalOrderStatus(order.Status) {
					stale := pos.SLOrderID
					e.book.Update(pos.Symbol, func(p *models.Position) {
						if p.SLOrderID == stale {
							p.SLOrderID = ""
						}
					})
				}
			}
		}
	}
}

// checkRecentTrades ловит продажи, случившиеся пока бот не работал
// или пока ордер уже не отслеживался.
func (e *Executor) checkRecentTrades(ctx context.Context) {
	since := e.lastTradeCheck
	e.lastTradeCheck = time.Now()

	trades, err := e.ex.RecentTrades(ctx, since.Add(-time.Minute))
	if err != nil {
		logger.Warn("recent trades: %v", err)
		return
	}
	for _, t := range trades {
		if t.Side != "SELL" {
			continue
		}
		pos, found := e.book.ByOrderID(t.OrderID)
		if !found || pos.Status != models.PositionActive {
			continue
		}
		reason := "TAKE_PROFIT"
		if t.OrderID == pos.SLOrderID {
			reason = "STOP_LOSS"
		} else if t.OrderID != pos.TPOrderID {
			reason = "MANUAL_SELL"
		}
		logger.Info("sell fill for %s found in trade history (%s)", pos.Symbol, reason)
		e.closePosition(ctx, pos.Symbol, t.Price, t.Quantity, reason, nil, nil)
	}
}

// reviseTpSl — периодическая ревизия: трейлинг-стоп, подтяжка тейка
// и восстановление потерянных ордеров.
func (e *Executor) reviseTpSl(ctx context.Context) {
	for _, pos := range e.book.OpenPositions() {
		if pos.Status != models.PositionActive {
			continue
		}

		price, err := e.ex.LastPrice(ctx, pos.Symbol)
		if err != nil {
			logger.Warn("revise %s: %v", pos.Symbol, err)
			continue
		}
		atr := e.atr.Estimate(pos.Symbol, price)

		// после рестарта у позиции может не быть ордеров вовсе
		if pos.TPOrderID == "" && pos.SLOrderID == "" {
			e.recoverBrackets(ctx, pos)
			continue
		}

		e.trailStop(ctx, pos, price, atr)
		e.reviseTakeProfit(ctx, pos, price, atr)
	}
}

// trailStop подтягивает стоп вслед за новым максимумом цены.
func (e *Executor) trailStop(ctx context.Context, pos models.Position, price, atr float64) {
	trial := pos
	oldSL := pos.StopLoss
	moved := trailStopLoss(&trial, price, atr, e.cfg.ATRMultiplierSL)
	if trial.HighestPrice > pos.HighestPrice {
		hi := trial.HighestPrice
		e.book.Update(pos.Symbol, func(p *models.Position) {
			if hi > p.HighestPrice {
				p.HighestPrice = hi
			}
		})
	}
	if !moved || !significantChange(oldSL, trial.StopLoss) {
		return
	}

	if pos.SLOrderID != "" {
		if err := e.ex.CancelOrder(ctx, pos.SLOrderID); err != nil {
			logger.Warn("cancel SL %s: %v", pos.SLOrderID, err)
			return
		}
	}
	slID, err := e.ex.PlaceStopLoss(ctx, pos.Symbol, pos.Quantity, trial.StopLoss)
	if err != nil {
		logger.Error("move SL for %s: %v", pos.Symbol, err)
		e.book.Update(pos.Symbol, func(p *models.Position) { p.SLOrderID = "" })
		return
	}
	e.book.Update(pos.Symbol, func(p *models.Position) {
		p.SLOrderID = slID
		p.StopLoss = trial.StopLoss
	})
	e.queue.AddCellUpdate(pos.RowIndex, sheets.ColStopLoss, exchange.FormatPrice(trial.StopLoss))
	e.queue.AddCellUpdate(pos.RowIndex, sheets.ColOrderPlaced, statusUpdateTpSl)
	logger.Info("trailing SL %s: %.6f -> %.6f (price %.6f)", pos.Symbol, oldSL, trial.StopLoss, price)
	e.notifier.Sendf("🔼 %s: стоп подтянут %.6f → %.6f", pos.Symbol, oldSL, trial.StopLoss)
}

// reviseTakeProfit двигает тейк вверх вслед за ценой, зеркально трейлинг-стопу.
func (e *Executor) reviseTakeProfit(ctx context.Context, pos models.Position, price, atr float64) {
	newTP, ok := revisedTakeProfit(pos.TakeProfit, price, atr, e.cfg.ATRMultiplierTP)
	if !ok {
		return
	}

	if pos.TPOrderID != "" {
		if err := e.ex.CancelOrder(ctx, pos.TPOrderID); err != nil {
			logger.Warn("cancel TP %s: %v", pos.TPOrderID, err)
			return
		}
	}
	tpID, err := e.ex.PlaceTakeProfit(ctx, pos.Symbol, pos.Quantity, newTP)
	if err != nil {
		logger.Error("move TP for %s: %v", pos.Symbol, err)
		e.book.Update(pos.Symbol, func(p *models.Position) { p.TPOrderID = "" })
		return
	}
	e.book.Update(pos.Symbol, func(p *models.Position) {
		p.TPOrderID = tpID
		p.TakeProfit = newTP
	})
	e.queue.AddCellUpdate(pos.RowIndex, sheets.ColTakeProfit, exchange.FormatPrice(newTP))
	e.queue.AddCellUpdate(pos.RowIndex, sheets.ColOrderPlaced, statusUpdateTpSl)
	logger.Info("revised TP %s: %.6f -> %.6f (price %.6f)", pos.Symbol, pos.TakeProfit, newTP, price)
	e.notifier.Sendf("🎯 %s: тейк подтянут %.6f → %.6f", pos.Symbol, pos.TakeProfit, newTP)
}

// bracketOrder — триггерная продажа, то есть кандидат в наши TP/SL.
func bracketOrder(o exchange.Order) bool {
	if o.Side != "SELL" {
		return false
	}
	return o.Type == "TAKE_PROFIT" || o.Type == "STOP_LOSS"
}

// adoptBrackets подбирает живые TP/SL с биржи в позицию, потерявшую айдишники.
func adoptBrackets(pos *models.Position, open []exchange.Order) bool {
	adopted := false
	for _, o := range open {
		if !bracketOrder(o) || models.TerminalOrderStatus(o.Status) {
			continue
		}
		switch {
		case o.Type == "TAKE_PROFIT" && pos.TPOrderID == "":
			pos.TPOrderID = o.OrderID
			if o.RefPrice > 0 {
				pos.TakeProfit = o.RefPrice
			}
			adopted = true
		case o.Type == "STOP_LOSS" && pos.SLOrderID == "":
			pos.SLOrderID = o.OrderID
			if o.RefPrice > 0 {
				pos.StopLoss = o.RefPrice
			}
			adopted = true
		}
	}
	return adopted
}

// recoverBrackets восстанавливает TP/SL позиции, оставшейся без ордеров
// (обычно после рестарта). Сначала подбираем уцелевшие ордера с биржи:
// выставить новые поверх живых — значит продать одно и то же дважды.
func (e *Executor) recoverBrackets(ctx context.Context, pos models.Position) {
	open, err := e.ex.OpenOrders(ctx, pos.Symbol)
	if err != nil {
		// не видим, что живо на бирже — новых ордеров не ставим, ревизия повторит
		logger.Warn("open orders for %s: %v", pos.Symbol, err)
		return
	}

	if adoptBrackets(&pos, open) {
		e.book.Update(pos.Symbol, func(p *models.Position) {
			p.TPOrderID = pos.TPOrderID
			p.SLOrderID = pos.SLOrderID
			if pos.TakeProfit > 0 {
				p.TakeProfit = pos.TakeProfit
			}
			if pos.StopLoss > 0 {
				p.StopLoss = pos.StopLoss
			}
		})
		logger.Info("adopted live brackets for %s: TP=%q SL=%q", pos.Symbol, pos.TPOrderID, pos.SLOrderID)
	}

	// лишние триггерные продажи сверх подобранных снимаем
	for _, o := range open {
		if !bracketOrder(o) || o.OrderID == pos.TPOrderID || o.OrderID == pos.SLOrderID {
			continue
		}
		if err := e.ex.CancelOrder(ctx, o.OrderID); err != nil {
			logger.Warn("cancel stray order %s for %s: %v", o.OrderID, pos.Symbol, err)
		}
	}

	if pos.TPOrderID == "" || pos.SLOrderID == "" {
		e.placeBrackets(ctx, pos.Symbol, pos.TakeProfit, 0)
	}
}
