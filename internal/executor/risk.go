package executor

import (
	"time"

	"github.com/dgraph-io/ristretto"

	"sheet_trader/internal/models"
)

// Свечей у биржи мы не тянем: ATR оцениваем долей от цены, с поправками
// для монет, у которых волатильность заметно выше средней.
const defaultATRFraction = 0.03

var atrFractions = map[string]float64{
	"SUI_USDT":  0.045,
	"DOGE_USDT": 0.05,
	"BONK_USDT": 0.07,
	"SHIB_USDT": 0.06,
	"PEPE_USDT": 0.07,
	"BTC_USDT":  0.02,
	"ETH_USDT":  0.025,
}

const atrCacheTTL = time.Hour

type atrEstimator struct {
	cache *ristretto.Cache
}

func newATREstimator() (*atrEstimator, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e3,
		MaxCost:     1 << 16,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &atrEstimator{cache: cache}, nil
}

// Estimate держит оценку час: дёргать её на каждый тик позиции незачем,
// а стоп от скачущего ATR начинает дрожать.
func (a *atrEstimator) Estimate(symbol string, price float64) float64 {
	if v, ok := a.cache.Get(symbol); ok {
		return v.(float64)
	}
	fraction := defaultATRFraction
	if f, ok := atrFractions[symbol]; ok {
		fraction = f
	}
	atr := price * fraction
	a.cache.SetWithTTL(symbol, atr, 1, atrCacheTTL)
	return atr
}

// computeStopLoss: отступ вниз на ATR*mult, но не ниже свинг-лоу с запасом 1%.
func computeStopLoss(entry, atr, mult, swingLow float64) float64 {
	sl := entry - atr*mult
	if swingLow > 0 {
		if floor := swingLow * 0.99; sl < floor {
			sl = floor
		}
	}
	if sl < 0 {
		sl = 0
	}
	return sl
}

// computeTakeProfit: ATR-цель, но если сопротивление выше — целимся в него.
func computeTakeProfit(entry, atr, mult, resistance float64) float64 {
	tp := entry + atr*mult
	if resistance > tp {
		tp = resistance
	}
	return tp
}

// trailStopLoss двигает стоп только вверх, вслед за новым максимумом цены.
// Возвращает true, если стоп сдвинулся.
func trailStopLoss(pos *models.Position, price, atr, mult float64) bool {
	if price <= pos.HighestPrice {
		return false
	}
	pos.HighestPrice = price
	newSL := price - atr*mult
	if newSL > pos.StopLoss {
		pos.StopLoss = newSL
		return true
	}
	return false
}

// revisedTakeProfit пересчитывает тейк от текущей цены. Двигаем только вверх:
// опускать цель ниже уже выставленной — значит отдавать прибыль на ровном месте.
func revisedTakeProfit(currentTP, price, atr, mult float64) (float64, bool) {
	tp := price + atr*mult
	if tp > currentTP && significantChange(currentTP, tp) {
		return tp, true
	}
	return currentTP, false
}

// significantChange — меняем ордер только если сдвиг больше 1%,
// иначе на каждой ревизии будем пересоздавать ордера впустую.
func significantChange(oldVal, newVal float64) bool {
	if oldVal == 0 {
		return newVal != 0
	}
	diff := newVal - oldVal
	if diff < 0 {
		diff = -diff
	}
	return diff/oldVal > 0.01
}
