package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sheet_trader/internal/exchange"
	"sheet_trader/internal/models"
	"sheet_trader/internal/sheets"
)

func TestRecoveredPosition(t *testing.T) {
	headers := []string{sheets.ColCoin, sheets.ColPurchasePrice}
	rows := [][]string{
		{"SUI", "3,62"},
	}
	sig := models.TradeSignal{
		Symbol:         "SUI_USDT",
		OriginalSymbol: "SUI",
		RowIndex:       2,
		OrderID:        "111",
	}

	// позиции в реестре нет, но баланс на бирже есть — продаём его
	pos := recoveredPosition(sig, headers, rows, 26.5)
	require.Equal(t, "SUI_USDT", pos.Symbol)
	require.Equal(t, "111", pos.OrderID)
	require.Equal(t, 2, pos.RowIndex)
	require.Equal(t, models.PositionActive, pos.Status)
	require.InDelta(t, 26.5, pos.Quantity, 1e-9)
	require.InDelta(t, 3.62, pos.Price, 1e-9)
}

func TestRecoveredPositionWithoutRow(t *testing.T) {
	sig := models.TradeSignal{Symbol: "DOGE_USDT", OriginalSymbol: "DOGE", RowIndex: 9}
	pos := recoveredPosition(sig, nil, nil, 1000)
	require.InDelta(t, 1000, pos.Quantity, 1e-9)
	require.Equal(t, 0.0, pos.Price) // цены входа не знаем, PnL посчитается от нуля
}

func TestAdoptBrackets(t *testing.T) {
	pos := &models.Position{Symbol: "SUI_USDT", TakeProfit: 4.1, StopLoss: 3.38}
	open := []exchange.Order{
		{OrderID: "10", Side: "SELL", Type: "TAKE_PROFIT", Status: models.OrderStatusActive, RefPrice: 4.25},
		{OrderID: "11", Side: "SELL", Type: "STOP_LOSS", Status: models.OrderStatusActive, RefPrice: 3.40},
		{OrderID: "12", Side: "BUY", Type: "LIMIT", Status: models.OrderStatusActive},
	}

	require.True(t, adoptBrackets(pos, open))
	require.Equal(t, "10", pos.TPOrderID)
	require.Equal(t, "11", pos.SLOrderID)
	require.InDelta(t, 4.25, pos.TakeProfit, 1e-9)
	require.InDelta(t, 3.40, pos.StopLoss, 1e-9)
}

func TestAdoptBracketsSkipsTerminalAndKeepsFirst(t *testing.T) {
	pos := &models.Position{Symbol: "SUI_USDT"}
	open := []exchange.Order{
		{OrderID: "20", Side: "SELL", Type: "TAKE_PROFIT", Status: models.OrderStatusCanceled},
		{OrderID: "21", Side: "SELL", Type: "TAKE_PROFIT", Status: models.OrderStatusActive},
		{OrderID: "22", Side: "SELL", Type: "TAKE_PROFIT", Status: models.OrderStatusActive},
	}

	require.True(t, adoptBrackets(pos, open))
	require.Equal(t, "21", pos.TPOrderID) // дубликат 22 пойдёт под отмену
	require.Empty(t, pos.SLOrderID)
}

func TestAdoptBracketsNothingToAdopt(t *testing.T) {
	pos := &models.Position{Symbol: "SUI_USDT"}
	require.False(t, adoptBrackets(pos, nil))
	require.Empty(t, pos.TPOrderID)
}

func TestBracketOrder(t *testing.T) {
	require.True(t, bracketOrder(exchange.Order{Side: "SELL", Type: "TAKE_PROFIT"}))
	require.True(t, bracketOrder(exchange.Order{Side: "SELL", Type: "STOP_LOSS"}))
	require.False(t, bracketOrder(exchange.Order{Side: "SELL", Type: "LIMIT"}))
	require.False(t, bracketOrder(exchange.Order{Side: "BUY", Type: "STOP_LOSS"}))
}
