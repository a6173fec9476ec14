package exchange

import (
	"context"
	"io"
	"strconv"
	"time"

	"github.com/bytedance/sonic"
	"github.com/gorilla/websocket"

	"sheet_trader/pkg/logger"
)

const userStreamURL = "wss://stream.crypto.com/exchange/v1/user"

// OrderUpdate — событие канала user.order.
type OrderUpdate struct {
	OrderID  string
	Symbol   string
	Side     string
	Status   string
	AvgPrice float64
	CumQty   float64
}

// OrderTracker слушает user.order и пушит обновления в канал.
// Поллинг статусов это не отменяет, стрим просто ускоряет реакцию на филлы.
type OrderTracker struct {
	dialer    *websocket.Dialer
	apiKey    string
	apiSecret string
	updates   chan OrderUpdate
}

func NewOrderTracker(apiKey, apiSecret string) *OrderTracker {
	return &OrderTracker{
		dialer:    &websocket.Dialer{HandshakeTimeout: 10 * time.Second},
		apiKey:    apiKey,
		apiSecret: apiSecret,
		updates:   make(chan OrderUpdate, 64),
	}
}

func (t *OrderTracker) Updates() <-chan OrderUpdate { return t.updates }

// Run держит соединение до отмены контекста, с реконнектом и бэкоффом.
func (t *OrderTracker) Run(ctx context.Context) {
	defer close(t.updates)

	retry := 0
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		conn, _, err := t.dialer.DialContext(ctx, userStreamURL, nil)
		if err != nil {
			retry++
			logger.Warn("order stream dial failed (attempt %d): %v", retry, err)
			wait := time.Duration(retry) * time.Second
			if wait > 30*time.Second {
				wait = 30 * time.Second
			}
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		retry = 0

		if err := t.session(ctx, conn); err != nil && ctx.Err() == nil {
			logger.Warn("order stream closed: %v", err)
		}
		_ = conn.Close()

		select {
		case <-ctx.Done():
			return
		case <-time.After(time.Second):
		}
	}
}

// watchCancel рвёт соединение при отмене контекста, чтобы разблокировать
// ReadMessage. Выходит по done, когда сессия закончилась сама.
func watchCancel(ctx context.Context, done <-chan struct{}, conn io.Closer) {
	select {
	case <-ctx.Done():
		_ = conn.Close()
	case <-done:
	}
}

func (t *OrderTracker) session(ctx context.Context, conn *websocket.Conn) error {
	// биржа просит паузу перед auth после коннекта
	time.Sleep(time.Second)

	id := time.Now().UnixMilli()
	auth := map[string]any{
		"id":      id,
		"method":  "public/auth",
		"api_key": t.apiKey,
		"nonce":   id,
		"sig":     signPayload(t.apiSecret, "public/auth", id, t.apiKey, "", id),
	}
	if err := conn.WriteJSON(auth); err != nil {
		return err
	}

	sub := map[string]any{
		"id":     id + 1,
		"method": "subscribe",
		"params": map[string]any{"channels": []string{"user.order"}},
		"nonce":  id + 1,
	}
	if err := conn.WriteJSON(sub); err != nil {
		return err
	}

	// сторож живёт ровно столько, сколько сессия: без done-канала каждый
	// реконнект оставлял бы висящую горутину до конца работы бота
	done := make(chan struct{})
	defer close(done)
	go watchCancel(ctx, done, conn)

	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}

		var frame struct {
			ID     int64  `json:"id"`
			Method string `json:"method"`
			Code   int64  `json:"code"`
			Result struct {
				Channel string `json:"channel"`
				Data    []struct {
					OrderID    string `json:"order_id"`
					Instrument string `json:"instrument_name"`
					Side       string `json:"side"`
					Status     string `json:"status"`
					AvgPrice   string `json:"avg_price"`
					CumQty     string `json:"cumulative_quantity"`
				} `json:"data"`
			} `json:"result"`
		}
		if err := sonic.Unmarshal(msg, &frame); err != nil {
			continue
		}

		if frame.Method == "public/heartbeat" {
			_ = conn.WriteJSON(map[string]any{
				"id":     frame.ID,
				"method": "public/respond-heartbeat",
			})
			continue
		}
		if frame.Result.Channel != "user.order" {
			continue
		}

		for _, d := range frame.Result.Data {
			avg, _ := strconv.ParseFloat(d.AvgPrice, 64)
			cum, _ := strconv.ParseFloat(d.CumQty, 64)
			update := OrderUpdate{
				OrderID:  d.OrderID,
				Symbol:   d.Instrument,
				Side:     d.Side,
				Status:   d.Status,
				AvgPrice: avg,
				CumQty:   cum,
			}
			select {
			case t.updates <- update:
			default:
				// консьюмер отстал, старые события ему уже не нужны
			}
		}
	}
}
