package models

// Действия из колонки "Buy Signal".
const (
	ActionBuy  = "BUY"
	ActionSell = "SELL"
	ActionWait = "WAIT"
)

// TradeSignal — одна actionable строка из листа.
type TradeSignal struct {
	Symbol         string  // пара для API, например "SUI_USDT"
	OriginalSymbol string  // как записано в листе, например "SUI"
	RowIndex       int     // 1-based строка листа (с учётом заголовка)
	Action         string  // BUY / SELL
	LastPrice      float64 // всегда живая цена с биржи, не из листа
	BuyTarget      float64
	TakeProfit     float64
	StopLoss       float64
	ResistanceUp   float64
	ResistanceDown float64
	OrderID        string // для SELL — order_id из листа
}
