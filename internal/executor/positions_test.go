package executor

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"sheet_trader/internal/models"
	"sheet_trader/internal/sheets"
)

var bookHeaders = []string{
	sheets.ColTrade, sheets.ColTradable, sheets.ColCoin, sheets.ColQuantity,
	sheets.ColPurchasePrice, sheets.ColPurchaseDate, sheets.ColTakeProfit,
	sheets.ColStopLoss, sheets.ColSold, sheets.ColOrderID,
}

func bookRow(vals map[string]string) []string {
	r := make([]string, len(bookHeaders))
	for i, h := range bookHeaders {
		r[i] = vals[h]
	}
	return r
}

func TestRehydrate(t *testing.T) {
	b := NewBook()
	rows := [][]string{
		bookRow(map[string]string{ // активная позиция
			sheets.ColCoin: "SUI", sheets.ColOrderID: "111",
			sheets.ColQuantity: "27", sheets.ColPurchasePrice: "3,62",
			sheets.ColTakeProfit: "4.1", sheets.ColStopLoss: "3.38",
		}),
		bookRow(map[string]string{ // уже продана — не восстанавливаем
			sheets.ColCoin: "DOGE", sheets.ColOrderID: "222", sheets.ColSold: "YES",
		}),
		bookRow(map[string]string{ // ордера не было
			sheets.ColCoin: "BTC",
		}),
	}

	require.Equal(t, 1, b.Rehydrate(bookHeaders, rows))

	pos, ok := b.Snapshot("SUI_USDT")
	require.True(t, ok)
	require.Equal(t, "111", pos.OrderID)
	require.Equal(t, 2, pos.RowIndex)
	require.Equal(t, models.PositionActive, pos.Status)
	require.InDelta(t, 27, pos.Quantity, 1e-9)
	require.InDelta(t, 3.62, pos.Price, 1e-9)
	require.InDelta(t, 4.1, pos.TakeProfit, 1e-9)

	require.False(t, b.Has("DOGE_USDT"))
}

func TestRehydrateUnfilledOrder(t *testing.T) {
	b := NewBook()
	rows := [][]string{
		bookRow(map[string]string{sheets.ColCoin: "SUI", sheets.ColOrderID: "333"}),
	}
	require.Equal(t, 1, b.Rehydrate(bookHeaders, rows))

	pos, _ := b.Snapshot("SUI_USDT")
	require.Equal(t, models.PositionOrderPlaced, pos.Status)

	// такие позиции должен подхватить монитор филла после рестарта
	pending := b.PendingBuys()
	require.Len(t, pending, 1)
	require.Equal(t, "333", pending[0].OrderID)
}

func TestBookUpdateAndSnapshot(t *testing.T) {
	b := NewBook()
	b.Set(&models.Position{Symbol: "SUI_USDT", Quantity: 27, Status: models.PositionOrderPlaced})

	require.True(t, b.Update("SUI_USDT", func(p *models.Position) {
		p.Quantity = 26.5
		p.Status = models.PositionActive
	}))
	require.False(t, b.Update("DOGE_USDT", func(p *models.Position) {}))

	pos, ok := b.Snapshot("SUI_USDT")
	require.True(t, ok)
	require.InDelta(t, 26.5, pos.Quantity, 1e-9)
	require.Equal(t, models.PositionActive, pos.Status)

	// снапшот — копия, правки в нём до реестра не доходят
	pos.Quantity = 0
	again, _ := b.Snapshot("SUI_USDT")
	require.InDelta(t, 26.5, again.Quantity, 1e-9)
}

func TestMarkArchivedOnlyOnce(t *testing.T) {
	b := NewBook()
	b.Set(&models.Position{Symbol: "SUI_USDT", Status: models.PositionActive})

	// стрим, поллинг и история сделок могут прийти с одним и тем же филлом:
	// закрыть позицию должен ровно один из них
	require.True(t, b.MarkArchived("SUI_USDT"))
	require.False(t, b.MarkArchived("SUI_USDT"))

	b.Delete("SUI_USDT")
	require.False(t, b.MarkArchived("SUI_USDT"))
}

func TestBookByOrderID(t *testing.T) {
	b := NewBook()
	b.Set(&models.Position{Symbol: "SUI_USDT", OrderID: "1", TPOrderID: "2", SLOrderID: "3"})

	for _, id := range []string{"1", "2", "3"} {
		pos, ok := b.ByOrderID(id)
		require.True(t, ok, "order %s", id)
		require.Equal(t, "SUI_USDT", pos.Symbol)
	}
	_, ok := b.ByOrderID("4")
	require.False(t, ok)
}

func TestBuildArchiveRow(t *testing.T) {
	headers := bookHeaders
	row := bookRow(map[string]string{
		sheets.ColTrade: "TRUE", sheets.ColTradable: "TRUE", sheets.ColCoin: "SUI",
		sheets.ColPurchaseDate: "2026-08-30 10:00:00",
	})
	pos := &models.Position{
		Symbol: "SUI_USDT", OrderID: "111", RowIndex: 2,
		Quantity: 27, Price: 3.62,
	}
	closedAt := time.Date(2026, 8, 31, 12, 0, 0, 0, time.UTC)

	out := buildArchiveRow(headers, row, pos, 4.0, 27, "TAKE_PROFIT", closedAt)
	require.Len(t, out, len(ArchiveHeaders))

	get := func(col string) string {
		for i, h := range ArchiveHeaders {
			if h == col {
				return out[i]
			}
		}
		t.Fatalf("no column %s", col)
		return ""
	}
	require.Equal(t, "SUI", get(sheets.ColCoin))
	require.Equal(t, "YES", get(sheets.ColSold))
	require.Equal(t, "4", get(sheets.ColSellPrice))
	require.Equal(t, "27", get(sheets.ColSellQuantity))
	require.Equal(t, "SOLD", get(sheets.ColOrderPlaced))
	require.Equal(t, "111", get(sheets.ColOrderID))
	require.Equal(t, "TAKE_PROFIT", get("Close Reason"))
	require.Equal(t, "10.25", get("PnL")) // (4.0-3.62)*27, усечение вниз
	require.Equal(t, "2026-08-31 12:00:00", get("Archived At"))
	require.Equal(t, "2026-08-30 10:00:00", get(sheets.ColPurchaseDate))
}

func TestBuildArchiveRowWithoutSourceRow(t *testing.T) {
	pos := &models.Position{Symbol: "DOGE_USDT", OrderID: "9", Quantity: 100, Price: 0.1}
	out := buildArchiveRow(nil, nil, pos, 0.12, 100, "STOP_LOSS", time.Now())
	require.Len(t, out, len(ArchiveHeaders))
	require.Equal(t, "DOGE", out[0]) // Coin из символа позиции
}
