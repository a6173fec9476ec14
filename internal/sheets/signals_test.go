package sheets

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sheet_trader/internal/models"
)

func TestParseNumber(t *testing.T) {
	cases := []struct {
		in   string
		want float64
		ok   bool
	}{
		{"3.62", 3.62, true},
		{"3,62", 3.62, true}, // европейская запятая
		{"$64,123.45", 64123.45, true},
		{"1 250,5", 1250.5, true},
		{"", 0, true},
		{"-", 0, true},
		{"0.0000214", 0.0000214, true},
		{"abc", 0, false},
	}
	for _, c := range cases {
		got, ok := ParseNumber(c.in)
		require.Equal(t, c.ok, ok, "input %q", c.in)
		require.InDelta(t, c.want, got, 1e-9, "input %q", c.in)
	}
}

func TestNormalizePrice(t *testing.T) {
	// 3,62 прочитанное как 3620
	require.InDelta(t, 3.62, NormalizePrice("SUI", 3620), 1e-9)
	// 0,362 прочитанное как 36200
	require.InDelta(t, 0.362, NormalizePrice("SUI", 36200), 1e-9)
	// нормальные значения не трогаем
	require.InDelta(t, 3.62, NormalizePrice("SUI", 3.62), 1e-9)
	// не из списка — не трогаем, даже большое
	require.InDelta(t, 64123.0, NormalizePrice("BTC", 64123.0), 1e-9)
}

func TestFormatPair(t *testing.T) {
	require.Equal(t, "SUI_USDT", FormatPair("sui"))
	require.Equal(t, "SUI_USDT", FormatPair(" SUI "))
	require.Equal(t, "BTC_USDT", FormatPair("BTC_USDT"))
}

func TestTruthy(t *testing.T) {
	require.True(t, Truthy("TRUE"))
	require.True(t, Truthy("yes"))
	require.True(t, Truthy("1"))
	require.False(t, Truthy("FALSE"))
	require.False(t, Truthy(""))
	require.False(t, Truthy("no"))
}

var testHeaders = []string{
	ColTrade, ColTradable, ColBuySignal, ColCoin, ColBuyTarget, ColTakeProfit,
	ColStopLoss, ColOrderPlaced, ColOrderID, ColResistanceUp, ColResistanceDown,
}

func row(vals map[string]string) []string {
	r := make([]string, len(testHeaders))
	for i, h := range testHeaders {
		r[i] = vals[h]
	}
	return r
}

func TestParseSignalsBuy(t *testing.T) {
	rows := [][]string{
		row(map[string]string{
			ColTrade: "TRUE", ColTradable: "TRUE", ColBuySignal: "BUY",
			ColCoin: "SUI", ColBuyTarget: "3,62", ColTakeProfit: "4,1",
			ColStopLoss: "3,4", ColResistanceUp: "4,2",
		}),
	}
	signals := ParseSignals(testHeaders, rows)
	require.Len(t, signals, 1)

	s := signals[0]
	require.Equal(t, "SUI_USDT", s.Symbol)
	require.Equal(t, "SUI", s.OriginalSymbol)
	require.Equal(t, 2, s.RowIndex)
	require.Equal(t, models.ActionBuy, s.Action)
	require.InDelta(t, 3.62, s.BuyTarget, 1e-9)
	require.InDelta(t, 4.1, s.TakeProfit, 1e-9)
	require.InDelta(t, 4.2, s.ResistanceUp, 1e-9)
}

func TestParseSignalsSkipsAlreadyPlaced(t *testing.T) {
	rows := [][]string{
		row(map[string]string{
			ColTrade: "TRUE", ColTradable: "TRUE", ColBuySignal: "BUY",
			ColCoin: "SUI", ColOrderPlaced: "ORDER_PLACED",
		}),
	}
	require.Empty(t, ParseSignals(testHeaders, rows))
}

func TestParseSignalsSkipsUnmanagedRows(t *testing.T) {
	rows := [][]string{
		row(map[string]string{
			ColTrade: "FALSE", ColTradable: "TRUE", ColBuySignal: "BUY", ColCoin: "SUI",
		}),
		row(map[string]string{
			ColTrade: "TRUE", ColTradable: "no", ColBuySignal: "BUY", ColCoin: "DOGE",
		}),
		row(map[string]string{
			ColTrade: "TRUE", ColTradable: "TRUE", ColBuySignal: "WAIT", ColCoin: "BTC",
		}),
		row(map[string]string{
			ColTrade: "TRUE", ColTradable: "TRUE", ColBuySignal: "BUY", ColCoin: "",
		}),
	}
	require.Empty(t, ParseSignals(testHeaders, rows))
}

func TestParseSignalsSellNeedsOrderID(t *testing.T) {
	rows := [][]string{
		row(map[string]string{
			ColTrade: "TRUE", ColTradable: "TRUE", ColBuySignal: "SELL", ColCoin: "SUI",
		}),
		// Tradable=NO не мешает продаже: бот сам сбрасывает его после покупки
		row(map[string]string{
			ColTrade: "TRUE", ColTradable: "NO", ColBuySignal: "SELL",
			ColCoin: "DOGE", ColOrderID: "6530219466236720401",
		}),
	}
	signals := ParseSignals(testHeaders, rows)
	require.Len(t, signals, 1)
	require.Equal(t, models.ActionSell, signals[0].Action)
	require.Equal(t, "DOGE_USDT", signals[0].Symbol)
	require.Equal(t, "6530219466236720401", signals[0].OrderID)
	require.Equal(t, 3, signals[0].RowIndex)
}

func TestParseSignalsBuyWithoutTradableColumn(t *testing.T) {
	// урезанный лист без колонки Tradable: покупки не блокируем
	headers := []string{ColTrade, ColCoin, ColBuySignal}
	rows := [][]string{{"YES", "SUI", "BUY"}}

	signals := ParseSignals(headers, rows)
	require.Len(t, signals, 1)
	require.Equal(t, models.ActionBuy, signals[0].Action)
	require.Equal(t, "SUI_USDT", signals[0].Symbol)

	// а пустая ячейка в существующей колонке по-прежнему блокирует
	headers = append(headers, ColTradable)
	rows = [][]string{{"YES", "SUI", "BUY", ""}}
	require.Empty(t, ParseSignals(headers, rows))
}

func TestParseSignalsNormalizesMagnitude(t *testing.T) {
	rows := [][]string{
		row(map[string]string{
			ColTrade: "TRUE", ColTradable: "TRUE", ColBuySignal: "BUY",
			ColCoin: "SUI", ColBuyTarget: "36200",
		}),
	}
	signals := ParseSignals(testHeaders, rows)
	require.Len(t, signals, 1)
	require.InDelta(t, 0.362, signals[0].BuyTarget, 1e-9)
}

func TestColLetter(t *testing.T) {
	require.Equal(t, "A", colLetter(0))
	require.Equal(t, "Z", colLetter(25))
	require.Equal(t, "AA", colLetter(26))
	require.Equal(t, "AX", colLetter(49))
}

func TestCellShortRow(t *testing.T) {
	headers := []string{"A", "B", "C"}
	require.Equal(t, "x", Cell(headers, []string{"x"}, "A"))
	require.Equal(t, "", Cell(headers, []string{"x"}, "C"))
	require.Equal(t, "", Cell(headers, []string{"x", "y", "z"}, "D"))
}
