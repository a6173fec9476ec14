package journal

import (
	"context"
	"fmt"
	"time"

	"github.com/bytedance/sonic"
	"github.com/jackc/pgx/v5"

	"sheet_trader/pkg/db"
)

// ClosedTrade — закрытая позиция для истории и сверки с архивным листом.
type ClosedTrade struct {
	ID        int64
	Symbol    string
	OrderID   string
	Quantity  float64
	BuyPrice  float64
	SellPrice float64
	PnL       float64
	PnLPct    float64
	Reason    string // TAKE_PROFIT / STOP_LOSS / MANUAL_SELL
	OpenedAt  time.Time
	ClosedAt  time.Time
	Snapshot  map[string]string // строка листа на момент закрытия
}

const createTableSQL = `
CREATE TABLE IF NOT EXISTS closed_trades (
	id          BIGSERIAL PRIMARY KEY,
	symbol      TEXT NOT NULL,
	order_id    TEXT NOT NULL UNIQUE,
	quantity    DOUBLE PRECISION NOT NULL,
	buy_price   DOUBLE PRECISION NOT NULL,
	sell_price  DOUBLE PRECISION NOT NULL,
	pnl         DOUBLE PRECISION NOT NULL,
	pnl_pct     DOUBLE PRECISION NOT NULL,
	reason      TEXT NOT NULL,
	opened_at   TIMESTAMPTZ NOT NULL,
	closed_at   TIMESTAMPTZ NOT NULL,
	snapshot    JSONB
)`

// Store пишет закрытые сделки в постгрес.
type Store struct {
	txm *db.PgTxManager
}

func New(txm *db.PgTxManager) *Store {
	return &Store{txm: txm}
}

// Migrate создаёт таблицу при старте.
func (s *Store) Migrate(ctx context.Context) error {
	return s.txm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, createTableSQL)
		return err
	})
}

func (s *Store) Insert(ctx context.Context, trade *ClosedTrade) (err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("journal.Insert: %w", err)
		}
	}()

	var snapshot []byte
	snapshot, err = sonic.Marshal(trade.Snapshot)
	if err != nil {
		return err
	}
	return s.txm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		_, err := tx.Exec(ctxTx, `
			INSERT INTO closed_trades
				(symbol, order_id, quantity, buy_price, sell_price, pnl, pnl_pct, reason, opened_at, closed_at, snapshot)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
			ON CONFLICT (order_id) DO NOTHING`,
			trade.Symbol, trade.OrderID, trade.Quantity, trade.BuyPrice, trade.SellPrice,
			trade.PnL, trade.PnLPct, trade.Reason, trade.OpenedAt, trade.ClosedAt, snapshot,
		)
		return err
	})
}

// Recent — последние закрытые сделки, свежие первыми.
func (s *Store) Recent(ctx context.Context, limit int) (trades []*ClosedTrade, err error) {
	defer func() {
		if err != nil {
			err = fmt.Errorf("journal.Recent: %w", err)
		}
	}()

	err = s.txm.RunMaster(ctx, func(ctxTx context.Context, tx pgx.Tx) error {
		rows, err := tx.Query(ctxTx, `
			SELECT symbol, order_id, quantity, buy_price, sell_price, pnl, pnl_pct, reason, opened_at, closed_at
			FROM closed_trades
			ORDER BY closed_at DESC
			LIMIT $1`, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		for rows.Next() {
			t := &ClosedTrade{}
			if err := rows.Scan(&t.Symbol, &t.OrderID, &t.Quantity, &t.BuyPrice, &t.SellPrice,
				&t.PnL, &t.PnLPct, &t.Reason, &t.OpenedAt, &t.ClosedAt); err != nil {
				return err
			}
			trades = append(trades, t)
		}
		return rows.Err()
	})
	return trades, err
}
