package models

// Статусы позиции внутри бота (не биржевые).
const (
	PositionOrderPlaced = "ORDER_PLACED"
	PositionActive      = "POSITION_ACTIVE"
)

// Статусы ордера на бирже.
const (
	OrderStatusActive   = "ACTIVE"
	OrderStatusFilled   = "FILLED"
	OrderStatusCanceled = "CANCELED"
	OrderStatusRejected = "REJECTED"
	OrderStatusExpired  = "EXPIRED"
)

// Position — открытая позиция, привязанная к строке листа.
// Восстанавливается после рестарта из строк с order_id.
type Position struct {
	Symbol       string
	OrderID      string
	RowIndex     int
	Quantity     float64 // сначала оценка notional/price, после филла — фактическая
	Price        float64 // после филла — avg_price
	StopLoss     float64
	TakeProfit   float64
	HighestPrice float64 // для трейлинг-стопа
	TPOrderID    string
	SLOrderID    string
	Status       string
	Archived     bool // защита от двойного архива
}

// Terminal true, если статус ордера финальный.
func TerminalOrderStatus(status string) bool {
	switch status {
	case OrderStatusCanceled, OrderStatusRejected, OrderStatusExpired:
		return true
	}
	return false
}
