package executor

import (
	"context"
	"time"

	"sheet_trader/internal/exchange"
	"sheet_trader/internal/journal"
	"sheet_trader/internal/models"
	"sheet_trader/internal/sheets"
	"sheet_trader/pkg/logger"
)

// ArchiveHeaders — схема архивного листа. Порядок фиксированный,
// EnsureWorksheet создаёт лист ровно с этими колонками.
var ArchiveHeaders = []string{
	sheets.ColCoin,
	sheets.ColBuySignal,
	sheets.ColBuyTarget,
	sheets.ColTakeProfit,
	sheets.ColStopLoss,
	sheets.ColOrderPlaced,
	sheets.ColOrderDate,
	sheets.ColPurchasePrice,
	sheets.ColQuantity,
	sheets.ColPurchaseDate,
	sheets.ColSold,
	sheets.ColSellPrice,
	sheets.ColSellQuantity,
	sheets.ColSoldDate,
	sheets.ColNotes,
	sheets.ColResistanceUp,
	sheets.ColResistanceDown,
	sheets.ColOrderID,
	sheets.ColTrade,
	sheets.ColTradable,
	"Close Reason",
	"PnL",
	"PnL %",
	"Archived At",
}

// колонки, которые чистим в рабочем листе после архивации
// (Buy Signal не чистим, его явно ставим в WAIT)
var clearAfterArchive = []string{
	sheets.ColOrderPlaced,
	sheets.ColOrderDate,
	sheets.ColPurchasePrice,
	sheets.ColQuantity,
	sheets.ColPurchaseDate,
	sheets.ColSold,
	sheets.ColSellPrice,
	sheets.ColSellQuantity,
	sheets.ColSoldDate,
	sheets.ColOrderID,
}

// buildArchiveRow собирает строку архива из строки рабочего листа и данных
// о закрытии. Если исходной строки нет (бот узнал о продаже из истории
// сделок), заполняем то, что знаем из позиции.
func buildArchiveRow(headers, row []string, pos *models.Position, sellPrice, sellQty float64, reason string, closedAt time.Time) []string {
	cell := func(col string) string {
		if row == nil {
			return ""
		}
		return sheets.Cell(headers, row, col)
	}

	pnl := (sellPrice - pos.Price) * sellQty
	pnlPct := 0.0
	if pos.Price > 0 {
		pnlPct = (sellPrice - pos.Price) / pos.Price * 100
	}

	out := make([]string, 0, len(ArchiveHeaders))
	for _, col := range ArchiveHeaders {
		switch col {
		case sheets.ColCoin:
			v := cell(col)
			if v == "" {
				v = exchange.BaseCurrency(pos.Symbol)
			}
			out = append(out, v)
		case sheets.ColPurchasePrice:
			out = append(out, exchange.FormatPrice(pos.Price))
		case sheets.ColQuantity:
			out = append(out, exchange.FormatQuantity(pos.Symbol, pos.Quantity))
		case sheets.ColSold:
			out = append(out, "YES")
		case sheets.ColSellPrice:
			out = append(out, exchange.FormatPrice(sellPrice))
		case sheets.ColSellQuantity:
			out = append(out, exchange.FormatQuantity(pos.Symbol, sellQty))
		case sheets.ColSoldDate:
			out = append(out, closedAt.Format(dateLayout))
		case sheets.ColOrderPlaced:
			out = append(out, statusSold)
		case sheets.ColOrderID:
			out = append(out, pos.OrderID)
		case "Close Reason":
			out = append(out, reason)
		case "PnL":
			out = append(out, exchange.FormatNotional(pnl))
		case "PnL %":
			out = append(out, exchange.FormatNotional(pnlPct))
		case "Archived At":
			out = append(out, closedAt.Format(dateLayout))
		default:
			out = append(out, cell(col))
		}
	}
	return out
}

// closePosition — общая точка закрытия: лист, архив, постгрес, уведомление.
// headers/rows могут быть nil, тогда строка дочитывается из листа.
func (e *Executor) closePosition(ctx context.Context, symbol string, sellPrice, sellQty float64, reason string, headers []string, rows [][]string) {
	// закрытие прилетает из трёх мест (стрим, поллинг, история сделок):
	// архивирует только тот, кто первым успел пометить позицию
	if !e.book.MarkArchived(symbol) {
		return
	}
	pos, ok := e.book.Snapshot(symbol)
	if !ok {
		return
	}
	now := time.Now()

	if sellQty == 0 {
		sellQty = pos.Quantity
	}

	if headers == nil {
		var err error
		headers, rows, err = e.readSheet(ctx)
		if err != nil {
			logger.Warn("close %s: sheet read failed, archiving from position only: %v", symbol, err)
			headers, rows = nil, nil
		}
	}
	var row []string
	if rows != nil && pos.RowIndex-2 >= 0 && pos.RowIndex-2 < len(rows) {
		row = rows[pos.RowIndex-2]
	}

	e.cancelBracketOrders(ctx, symbol)

	e.queue.AddCellUpdate(pos.RowIndex, sheets.ColSold, "YES")
	e.queue.AddCellUpdate(pos.RowIndex, sheets.ColSellPrice, exchange.FormatPrice(sellPrice))
	e.queue.AddCellUpdate(pos.RowIndex, sheets.ColSellQuantity, exchange.FormatQuantity(pos.Symbol, sellQty))
	e.queue.AddCellUpdate(pos.RowIndex, sheets.ColSoldDate, now.Format(dateLayout))
	e.queue.AddCellUpdate(pos.RowIndex, sheets.ColOrderPlaced, statusSold)

	// очистка и возврат строки в работу едут внутри архивной операции:
	// применятся только после успешной записи в архивный лист
	resets := map[string]string{
		sheets.ColTradable:  "YES",
		sheets.ColBuySignal: models.ActionWait,
	}
	e.queue.AddArchive(pos.RowIndex, buildArchiveRow(headers, row, &pos, sellPrice, sellQty, reason, now), clearAfterArchive, resets)

	pnl := (sellPrice - pos.Price) * sellQty
	pnlPct := 0.0
	if pos.Price > 0 {
		pnlPct = (sellPrice - pos.Price) / pos.Price * 100
	}

	if e.store != nil {
		snapshot := map[string]string{}
		if headers != nil && row != nil {
			for _, h := range headers {
				snapshot[h] = sheets.Cell(headers, row, h)
			}
		}
		openedAt := now
		if ts, err := time.ParseInLocation(dateLayout, snapshot[sheets.ColPurchaseDate], time.Local); err == nil {
			openedAt = ts
		}
		trade := &journal.ClosedTrade{
			Symbol:    pos.Symbol,
			OrderID:   pos.OrderID,
			Quantity:  sellQty,
			BuyPrice:  pos.Price,
			SellPrice: sellPrice,
			PnL:       pnl,
			PnLPct:    pnlPct,
			Reason:    reason,
			OpenedAt:  openedAt,
			ClosedAt:  now,
			Snapshot:  snapshot,
		}
		if err := e.store.Insert(ctx, trade); err != nil {
			logger.Error("journal insert for %s: %v", pos.Symbol, err)
		}
	}

	e.book.Delete(pos.Symbol)

	emoji := "🔴"
	if pnl >= 0 {
		emoji = "🟢"
	}
	logger.Info("position %s closed (%s): %.6f -> %.6f pnl=%.2f (%.2f%%)",
		pos.Symbol, reason, pos.Price, sellPrice, pnl, pnlPct)
	e.notifier.Sendf("%s Закрыто %s (%s): %v @ %.6f, PnL %.2f USDT (%.2f%%)",
		emoji, pos.Symbol, reason, sellQty, sellPrice, pnl, pnlPct)
}
