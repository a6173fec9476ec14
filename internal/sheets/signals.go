package sheets

import (
	"strings"

	"github.com/shopspring/decimal"

	"sheet_trader/internal/models"
	"sheet_trader/pkg/logger"
)

// Имена колонок рабочего листа.
const (
	ColTrade          = "TRADE"
	ColTradable       = "Tradable"
	ColBuySignal      = "Buy Signal"
	ColCoin           = "Coin"
	ColBuyTarget      = "Buy Target"
	ColTakeProfit     = "Take Profit"
	ColStopLoss       = "Stop-Loss"
	ColOrderPlaced    = "Order Placed?"
	ColOrderDate      = "Order Date"
	ColPurchasePrice  = "Purchase Price"
	ColQuantity       = "Quantity"
	ColPurchaseDate   = "Purchase Date"
	ColSold           = "Sold?"
	ColSellPrice      = "Sell Price"
	ColSellQuantity   = "Sell Quantity"
	ColSoldDate       = "Sold Date"
	ColNotes          = "Notes"
	ColResistanceUp   = "Resistance Up"
	ColResistanceDown = "Resistance Down"
	ColOrderID        = "order_id"
	ColCurrentPrice   = "Current Price"
	ColPriceUpdated   = "Price Updated"
)

// HasColumn сообщает, есть ли колонка в шапке листа вообще.
func HasColumn(headers []string, column string) bool {
	for _, h := range headers {
		if h == column {
			return true
		}
	}
	return false
}

// Cell достаёт значение колонки из строки, "" если строка короче.
func Cell(headers []string, row []string, column string) string {
	for i, h := range headers {
		if h == column {
			if i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
	}
	return ""
}

// Truthy — чекбоксы и рукописные "yes" в одной куче.
func Truthy(s string) bool {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "TRUE", "YES", "Y", "1":
		return true
	}
	return false
}

// FormatPair превращает монету из листа в имя инструмента: "sui" -> "SUI_USDT".
func FormatPair(coin string) string {
	coin = strings.ToUpper(strings.TrimSpace(coin))
	if strings.Contains(coin, "_") {
		return coin
	}
	return coin + "_USDT"
}

// ParseNumber разбирает числа из листа: европейская запятая, знак доллара,
// пробелы. Пустая строка — это ноль, а не ошибка.
func ParseNumber(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "$")
	s = strings.ReplaceAll(s, " ", "")
	if s == "" || s == "-" {
		return 0, true
	}
	// и точка и запятая: запятая — разделитель тысяч
	if strings.Contains(s, ".") && strings.Contains(s, ",") {
		s = strings.ReplaceAll(s, ",", "")
	} else {
		s = strings.ReplaceAll(s, ",", ".")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, false
	}
	f, _ := d.Float64()
	return f, true
}

// Монеты, у которых в листе регулярно едет порядок величины: запятая-разделитель
// превращает 3,62 в 3620. Нормальные цены у всех — единицы и меньше.
var magnitudeCoins = map[string]bool{
	"SUI":  true,
	"DOGE": true,
	"BONK": true,
	"SHIB": true,
	"PEPE": true,
}

// NormalizePrice чинит порядок величины для дешёвых монет.
func NormalizePrice(coin string, v float64) float64 {
	coin = strings.ToUpper(strings.TrimSpace(coin))
	if !magnitudeCoins[coin] || v <= 1000 {
		return v
	}
	v /= 1000
	if v > 10 {
		v /= 100
	}
	return v
}

func priceCell(headers, row []string, coin, column string) float64 {
	raw := Cell(headers, row, column)
	v, ok := ParseNumber(raw)
	if !ok {
		logger.Warn("unparseable %s value %q for %s", column, raw, coin)
		return 0
	}
	return NormalizePrice(coin, v)
}

// ParseSignals отбирает actionable строки листа. Нумерация строк 1-based,
// данные начинаются со второй строки.
func ParseSignals(headers []string, rows [][]string) []models.TradeSignal {
	signals := make([]models.TradeSignal, 0)
	for i, row := range rows {
		rowIndex := i + 2

		coin := Cell(headers, row, ColCoin)
		if coin == "" {
			continue
		}
		if !Truthy(Cell(headers, row, ColTrade)) {
			continue
		}

		action := strings.ToUpper(Cell(headers, row, ColBuySignal))
		if action != models.ActionBuy && action != models.ActionSell {
			continue
		}
		// Tradable бот сбрасывает в NO после покупки, поэтому гейтит
		// только покупки: продать занятую строку можно всегда.
		// Листы без этой колонки торгуют всё подряд.
		if action == models.ActionBuy && HasColumn(headers, ColTradable) &&
			!Truthy(Cell(headers, row, ColTradable)) {
			continue
		}
		// уже купленное не покупаем повторно
		if action == models.ActionBuy && Cell(headers, row, ColOrderPlaced) != "" {
			continue
		}
		// продавать нечего, если позиция не открывалась
		if action == models.ActionSell && Cell(headers, row, ColOrderID) == "" {
			continue
		}

		signals = append(signals, models.TradeSignal{
			Symbol:         FormatPair(coin),
			OriginalSymbol: strings.ToUpper(strings.TrimSpace(coin)),
			RowIndex:       rowIndex,
			Action:         action,
			BuyTarget:      priceCell(headers, row, coin, ColBuyTarget),
			TakeProfit:     priceCell(headers, row, coin, ColTakeProfit),
			StopLoss:       priceCell(headers, row, coin, ColStopLoss),
			ResistanceUp:   priceCell(headers, row, coin, ColResistanceUp),
			ResistanceDown: priceCell(headers, row, coin, ColResistanceDown),
			OrderID:        Cell(headers, row, ColOrderID),
		})
	}
	return signals
}
