package exchange

import (
	"strings"

	"github.com/shopspring/decimal"
)

// Биржа режет заявки с "лишними" знаками после запятой, причём требования
// зависят от монеты. Категории подобраны по фактическим отказам API.
var (
	// только целое количество
	integerCoins = map[string]bool{
		"LDO":  true,
		"SUI":  true,
		"BONK": true,
		"SHIB": true,
		"DOGE": true,
		"PEPE": true,
	}
	// максимум два знака
	twoDecimalCoins = map[string]bool{
		"BTC": true,
		"ETH": true,
		"SOL": true,
		"LTC": true,
		"XRP": true,
	}
)

// BaseCurrency выделяет базовую монету из имени инструмента: "SUI_USDT" -> "SUI".
func BaseCurrency(symbol string) string {
	if i := strings.Index(symbol, "_"); i > 0 {
		return symbol[:i]
	}
	return symbol
}

// FormatQuantity приводит количество к формату, который примет биржа.
// Всегда усечение вниз, никогда не округляем вверх — иначе не хватит баланса.
func FormatQuantity(symbol string, qty float64) string {
	d := decimal.NewFromFloat(qty)
	base := BaseCurrency(symbol)
	switch {
	case integerCoins[base]:
		return d.Floor().String()
	case twoDecimalCoins[base]:
		return d.Truncate(2).String()
	default:
		return d.Truncate(4).String()
	}
}

// FormatPrice — цена с разумной точностью по величине.
func FormatPrice(price float64) string {
	d := decimal.NewFromFloat(price)
	switch {
	case price >= 100:
		return d.Truncate(2).String()
	case price >= 1:
		return d.Truncate(4).String()
	default:
		return d.Truncate(8).String()
	}
}

// FormatNotional — сумма в USDT, биржа принимает два знака.
func FormatNotional(notional float64) string {
	return decimal.NewFromFloat(notional).Truncate(2).String()
}
