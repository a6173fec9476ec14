package pricewatch

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestProblemTrackerBackoffGrows(t *testing.T) {
	p := newProblemTracker()
	now := time.Now()

	require.False(t, p.ShouldSkip("SUI_USDT", now))

	p.Fail("SUI_USDT", now)
	require.True(t, p.ShouldSkip("SUI_USDT", now))
	require.True(t, p.ShouldSkip("SUI_USDT", now.Add(baseBackoff-time.Second)))
	require.False(t, p.ShouldSkip("SUI_USDT", now.Add(baseBackoff+time.Second)))

	// вторая неудача удваивает паузу
	p.Fail("SUI_USDT", now)
	require.True(t, p.ShouldSkip("SUI_USDT", now.Add(2*baseBackoff-time.Second)))
	require.False(t, p.ShouldSkip("SUI_USDT", now.Add(2*baseBackoff+time.Second)))
}

func TestProblemTrackerCapsAtMax(t *testing.T) {
	p := newProblemTracker()
	now := time.Now()
	for i := 0; i < 20; i++ {
		p.Fail("DEAD_USDT", now)
	}
	require.True(t, p.ShouldSkip("DEAD_USDT", now.Add(maxBackoff-time.Second)))
	require.False(t, p.ShouldSkip("DEAD_USDT", now.Add(maxBackoff+time.Second)))
}

func TestProblemTrackerRecovery(t *testing.T) {
	p := newProblemTracker()
	now := time.Now()

	p.Fail("SUI_USDT", now)
	p.OK("SUI_USDT")
	require.False(t, p.ShouldSkip("SUI_USDT", now))

	// после сброса счётчик начинается заново
	p.Fail("SUI_USDT", now)
	require.False(t, p.ShouldSkip("SUI_USDT", now.Add(baseBackoff+time.Second)))
}

func TestProblemTrackerIsolatesSymbols(t *testing.T) {
	p := newProblemTracker()
	now := time.Now()
	p.Fail("SUI_USDT", now)
	require.False(t, p.ShouldSkip("DOGE_USDT", now))
}
