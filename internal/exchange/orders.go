package exchange

import (
	"context"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/google/uuid"
	"github.com/pkg/errors"

	"sheet_trader/internal/models"
	"sheet_trader/pkg/logger"
)

// код 213 — биржа не приняла формат количества
const codeInvalidQuantity = 213

// монеты, у которых заявка на сотни тысяч штук не проходит целиком
var batchSellCoins = map[string]bool{
	"BONK": true,
	"SHIB": true,
	"DOGE": true,
	"PEPE": true,
}

const sellBatchSize = 100_000

// Order — нормализованный ордер (v1 отдаёт числа строками).
type Order struct {
	OrderID    string
	ClientOID  string
	Symbol     string
	Side       string
	Type       string
	Status     string
	Quantity   float64
	CumQty     float64
	CumValue   float64
	AvgPrice   float64
	RefPrice   float64 // триггерная цена TP/SL ордеров
	CreateTime time.Time
}

type rawOrder struct {
	OrderID    string `json:"order_id"`
	ClientOID  string `json:"client_oid"`
	Instrument string `json:"instrument_name"`
	Side       string `json:"side"`
	Type       string `json:"order_type"`
	Status     string `json:"status"`
	Quantity   string `json:"quantity"`
	CumQty     string `json:"cumulative_quantity"`
	CumValue   string `json:"cumulative_value"`
	AvgPrice   string `json:"avg_price"`
	RefPrice   string `json:"ref_price"`
	CreateTime int64  `json:"create_time"`
}

func (r rawOrder) toOrder() Order {
	f := func(s string) float64 {
		v, _ := strconv.ParseFloat(s, 64)
		return v
	}
	return Order{
		OrderID:    r.OrderID,
		ClientOID:  r.ClientOID,
		Symbol:     r.Instrument,
		Side:       r.Side,
		Type:       r.Type,
		Status:     r.Status,
		Quantity:   f(r.Quantity),
		CumQty:     f(r.CumQty),
		CumValue:   f(r.CumValue),
		AvgPrice:   f(r.AvgPrice),
		RefPrice:   f(r.RefPrice),
		CreateTime: time.UnixMilli(r.CreateTime),
	}
}

func (c *Client) createOrder(ctx context.Context, params map[string]any) (string, error) {
	params["client_oid"] = uuid.New().String()
	raw, err := c.sendRequest(ctx, "private/create-order", params)
	if err != nil {
		return "", err
	}
	var result struct {
		OrderID string `json:"order_id"`
	}
	if err := sonic.Unmarshal(raw, &result); err != nil {
		return "", errors.Wrap(err, "parse create-order")
	}
	return result.OrderID, nil
}

// Buy покупает по рынку на notional USDT.
func (c *Client) Buy(ctx context.Context, symbol string, notional float64) (string, error) {
	return c.createOrder(ctx, map[string]any{
		"instrument_name": symbol,
		"side":            "BUY",
		"type":            "MARKET",
		"notional":        FormatNotional(notional),
	})
}

func (c *Client) marketSell(ctx context.Context, symbol, quantity string) (string, error) {
	return c.createOrder(ctx, map[string]any{
		"instrument_name": symbol,
		"side":            "SELL",
		"type":            "MARKET",
		"quantity":        quantity,
	})
}

// Sell продаёт quantity по рынку. На код 213 пробует лесенку обходов:
// альтернативные форматы количества, батчи для мем-монет, в конце — половина.
// Возвращает id последнего успешного ордера.
func (c *Client) Sell(ctx context.Context, symbol string, quantity float64) (string, error) {
	orderID, err := c.marketSell(ctx, symbol, FormatQuantity(symbol, quantity))
	if err == nil {
		return orderID, nil
	}
	if !IsAPICode(err, codeInvalidQuantity) {
		return "", err
	}
	logger.Warn("sell %s qty=%v rejected with 213, trying fallbacks", symbol, quantity)

	for _, alt := range alternateQuantityFormats(quantity) {
		orderID, err = c.marketSell(ctx, symbol, alt)
		if err == nil {
			return orderID, nil
		}
		if !IsAPICode(err, codeInvalidQuantity) {
			return "", err
		}
	}

	if batchSellCoins[BaseCurrency(symbol)] && quantity > sellBatchSize {
		return c.sellInBatches(ctx, symbol, quantity)
	}

	// последняя попытка: продаём половину, остаток доберём следующим сигналом
	half := FormatQuantity(symbol, quantity/2)
	orderID, err = c.marketSell(ctx, symbol, half)
	if err != nil {
		return "", errors.Wrapf(err, "sell %s: all quantity formats rejected", symbol)
	}
	logger.Warn("sell %s: sold half (%s) after format rejections", symbol, half)
	return orderID, nil
}

func alternateQuantityFormats(qty float64) []string {
	return []string{
		strconv.FormatFloat(float64(int64(qty)), 'f', 0, 64),
		strconv.FormatFloat(qty, 'f', -1, 64),
		strconv.FormatFloat(qty, 'f', 1, 64),
	}
}

func (c *Client) sellInBatches(ctx context.Context, symbol string, quantity float64) (string, error) {
	var lastID string
	remaining := quantity
	for remaining >= 1 {
		batch := remaining
		if batch > sellBatchSize {
			batch = sellBatchSize
		}
		orderID, err := c.marketSell(ctx, symbol, FormatQuantity(symbol, batch))
		if err != nil {
			if lastID != "" {
				// часть уже продана, не роняем весь сигнал
				logger.Error("batch sell %s stopped at remaining=%v: %v", symbol, remaining, err)
				return lastID, nil
			}
			return "", err
		}
		lastID = orderID
		remaining -= batch
		time.Sleep(500 * time.Millisecond)
	}
	return lastID, nil
}

// OrderDetail возвращает текущее состояние ордера.
func (c *Client) OrderDetail(ctx context.Context, orderID string) (Order, error) {
	raw, err := c.sendRequest(ctx, "private/get-order-detail", map[string]any{
		"order_id": orderID,
	})
	if err != nil {
		return Order{}, err
	}
	var ro rawOrder
	if err := sonic.Unmarshal(raw, &ro); err != nil {
		return Order{}, errors.Wrap(err, "parse order detail")
	}
	return ro.toOrder(), nil
}

func (c *Client) CancelOrder(ctx context.Context, orderID string) error {
	_, err := c.sendRequest(ctx, "private/cancel-order", map[string]any{
		"order_id": orderID,
	})
	return err
}

// OpenOrders — живые ордера по инструменту.
func (c *Client) OpenOrders(ctx context.Context, symbol string) ([]Order, error) {
	raw, err := c.sendRequest(ctx, "private/get-open-orders", map[string]any{
		"instrument_name": symbol,
	})
	if err != nil {
		return nil, err
	}
	var result struct {
		Data []rawOrder `json:"data"`
	}
	if err := sonic.Unmarshal(raw, &result); err != nil {
		return nil, errors.Wrap(err, "parse open orders")
	}
	orders := make([]Order, 0, len(result.Data))
	for _, ro := range result.Data {
		orders = append(orders, ro.toOrder())
	}
	return orders, nil
}

// OrderHistory — ордера по инструменту за период (symbol="" — по всем).
func (c *Client) OrderHistory(ctx context.Context, symbol string, since time.Time) ([]Order, error) {
	params := map[string]any{
		"start_time": since.UnixMilli(),
	}
	if symbol != "" {
		params["instrument_name"] = symbol
	}
	raw, err := c.sendRequest(ctx, "private/get-order-history", params)
	if err != nil {
		return nil, err
	}
	var result struct {
		Data []rawOrder `json:"data"`
	}
	if err := sonic.Unmarshal(raw, &result); err != nil {
		return nil, errors.Wrap(err, "parse order history")
	}
	orders := make([]Order, 0, len(result.Data))
	for _, ro := range result.Data {
		orders = append(orders, ro.toOrder())
	}
	return orders, nil
}

type Trade struct {
	TradeID  string
	OrderID  string
	Symbol   string
	Side     string
	Price    float64
	Quantity float64
	Time     time.Time
}

// RecentTrades — сделки аккаунта начиная с since.
func (c *Client) RecentTrades(ctx context.Context, since time.Time) ([]Trade, error) {
	raw, err := c.sendRequest(ctx, "private/get-trades", map[string]any{
		"start_time": since.UnixMilli(),
	})
	if err != nil {
		return nil, err
	}
	var result struct {
		Data []struct {
			TradeID    string `json:"trade_id"`
			OrderID    string `json:"order_id"`
			Instrument string `json:"instrument_name"`
			Side       string `json:"side"`
			Price      string `json:"traded_price"`
			Quantity   string `json:"traded_quantity"`
			CreateTime int64  `json:"create_time"`
		} `json:"data"`
	}
	if err := sonic.Unmarshal(raw, &result); err != nil {
		return nil, errors.Wrap(err, "parse trades")
	}
	trades := make([]Trade, 0, len(result.Data))
	for _, t := range result.Data {
		price, _ := strconv.ParseFloat(t.Price, 64)
		qty, _ := strconv.ParseFloat(t.Quantity, 64)
		trades = append(trades, Trade{
			TradeID:  t.TradeID,
			OrderID:  t.OrderID,
			Symbol:   t.Instrument,
			Side:     t.Side,
			Price:    price,
			Quantity: qty,
			Time:     time.UnixMilli(t.CreateTime),
		})
	}
	return trades, nil
}

// MonitorOrder опрашивает ордер до финального статуса либо до timeout.
// Частичный филл после таймаута считаем результатом, а не ошибкой.
func (c *Client) MonitorOrder(ctx context.Context, orderID string, timeout time.Duration) (Order, error) {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	var last Order
	for {
		order, err := c.OrderDetail(ctx, orderID)
		if err == nil {
			last = order
			if order.Status == models.OrderStatusFilled {
				return order, nil
			}
			if models.TerminalOrderStatus(order.Status) {
				if order.CumQty > 0 {
					return order, nil
				}
				return order, errors.Errorf("order %s ended %s without fills", orderID, order.Status)
			}
		} else {
			logger.Warn("monitor order %s: %v", orderID, err)
		}

		if time.Now().After(deadline) {
			if last.CumQty > 0 {
				logger.Warn("order %s partially filled %v/%v by timeout", orderID, last.CumQty, last.Quantity)
				return last, nil
			}
			return last, errors.Errorf("order %s not filled within %s", orderID, timeout)
		}

		select {
		case <-ctx.Done():
			return last, ctx.Err()
		case <-ticker.C:
		}
	}
}

// PlaceTakeProfit ставит тейк: триггерный ордер по MARK_PRICE,
// при отказе биржи откатываемся на обычный лимитник.
func (c *Client) PlaceTakeProfit(ctx context.Context, symbol string, quantity, triggerPrice float64) (string, error) {
	orderID, err := c.createOrder(ctx, map[string]any{
		"instrument_name": symbol,
		"side":            "SELL",
		"type":            "TAKE_PROFIT",
		"quantity":        FormatQuantity(symbol, quantity),
		"ref_price":       FormatPrice(triggerPrice),
		"ref_price_type":  "MARK_PRICE",
	})
	if err == nil {
		return orderID, nil
	}
	logger.Warn("take-profit %s rejected (%v), placing LIMIT instead", symbol, err)
	return c.createOrder(ctx, map[string]any{
		"instrument_name": symbol,
		"side":            "SELL",
		"type":            "LIMIT",
		"quantity":        FormatQuantity(symbol, quantity),
		"price":           FormatPrice(triggerPrice),
	})
}

// PlaceStopLoss ставит стоп; фолбэк тот же, что у тейка.
func (c *Client) PlaceStopLoss(ctx context.Context, symbol string, quantity, triggerPrice float64) (string, error) {
	orderID, err := c.createOrder(ctx, map[string]any{
		"instrument_name": symbol,
		"side":            "SELL",
		"type":            "STOP_LOSS",
		"quantity":        FormatQuantity(symbol, quantity),
		"ref_price":       FormatPrice(triggerPrice),
		"ref_price_type":  "MARK_PRICE",
	})
	if err == nil {
		return orderID, nil
	}
	logger.Warn("stop-loss %s rejected (%v), placing LIMIT instead", symbol, err)
	return c.createOrder(ctx, map[string]any{
		"instrument_name": symbol,
		"side":            "SELL",
		"type":            "LIMIT",
		"quantity":        FormatQuantity(symbol, quantity),
		"price":           FormatPrice(triggerPrice),
	})
}
