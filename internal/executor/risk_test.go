package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	"sheet_trader/internal/models"
)

func TestComputeStopLoss(t *testing.T) {
	// обычный случай: entry - ATR*mult
	require.InDelta(t, 3.38, computeStopLoss(3.62, 0.16, 1.5, 0), 1e-9)

	// свинг-лоу выше расчётного стопа — поднимаем до swing*0.99
	require.InDelta(t, 3.5*0.99, computeStopLoss(3.62, 0.16, 1.5, 3.5), 1e-9)

	// свинг-лоу ниже расчётного стопа — не мешает
	require.InDelta(t, 3.38, computeStopLoss(3.62, 0.16, 1.5, 3.0), 1e-9)

	// стоп не уходит в минус
	require.Equal(t, 0.0, computeStopLoss(0.01, 1.0, 5, 0))
}

func TestComputeTakeProfit(t *testing.T) {
	// ATR-цель
	require.InDelta(t, 3.94, computeTakeProfit(3.62, 0.16, 2.0, 0), 1e-9)
	// сопротивление выше цели — целимся в него
	require.InDelta(t, 4.2, computeTakeProfit(3.62, 0.16, 2.0, 4.2), 1e-9)
	// сопротивление ниже цели — игнорируем
	require.InDelta(t, 3.94, computeTakeProfit(3.62, 0.16, 2.0, 3.8), 1e-9)
}

func TestTrailStopLossOnlyMovesUp(t *testing.T) {
	pos := &models.Position{Symbol: "SUI_USDT", Price: 3.62, HighestPrice: 3.62, StopLoss: 3.38}

	// цена упала — стоп на месте
	require.False(t, trailStopLoss(pos, 3.5, 0.16, 1.5))
	require.InDelta(t, 3.38, pos.StopLoss, 1e-9)
	require.InDelta(t, 3.62, pos.HighestPrice, 1e-9)

	// новый максимум — стоп подтягивается
	require.True(t, trailStopLoss(pos, 4.0, 0.16, 1.5))
	require.InDelta(t, 4.0-0.24, pos.StopLoss, 1e-9)
	require.InDelta(t, 4.0, pos.HighestPrice, 1e-9)

	// откат после максимума стоп не опускает
	require.False(t, trailStopLoss(pos, 3.9, 0.16, 1.5))
	require.InDelta(t, 3.76, pos.StopLoss, 1e-9)
}

func TestRevisedTakeProfit(t *testing.T) {
	// цена выросла — тейк подтягивается за ней
	tp, ok := revisedTakeProfit(3.94, 4.2, 0.16, 2.0)
	require.True(t, ok)
	require.InDelta(t, 4.52, tp, 1e-9)

	// сдвиг меньше процента — ордер не трогаем
	_, ok = revisedTakeProfit(3.94, 3.63, 0.16, 2.0)
	require.False(t, ok)

	// цена упала — тейк вниз не опускаем
	tp, ok = revisedTakeProfit(3.94, 3.0, 0.16, 2.0)
	require.False(t, ok)
	require.InDelta(t, 3.94, tp, 1e-9)
}

func TestSignificantChange(t *testing.T) {
	require.False(t, significantChange(3.38, 3.40)) // ~0.6%
	require.True(t, significantChange(3.38, 3.50))  // ~3.5%
	require.True(t, significantChange(0, 3.38))
	require.False(t, significantChange(3.38, 3.38))
}

func TestATREstimatorDefaults(t *testing.T) {
	a, err := newATREstimator()
	require.NoError(t, err)

	// у SUI повышенная доля
	require.InDelta(t, 3.62*0.045, a.Estimate("SUI_USDT", 3.62), 1e-9)
	// неизвестная монета — дефолтные 3%
	require.InDelta(t, 10*0.03, a.Estimate("ATOM_USDT", 10), 1e-9)
}
