package exchange

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFormatQuantityIntegerCoins(t *testing.T) {
	require.Equal(t, "27", FormatQuantity("SUI_USDT", 27.62))
	require.Equal(t, "150000", FormatQuantity("BONK_USDT", 150000.9))
	require.Equal(t, "3", FormatQuantity("DOGE_USDT", 3.999))
}

func TestFormatQuantityTwoDecimalCoins(t *testing.T) {
	require.Equal(t, "0.12", FormatQuantity("BTC_USDT", 0.1299))
	require.Equal(t, "1.5", FormatQuantity("SOL_USDT", 1.5))
}

func TestFormatQuantityDefault(t *testing.T) {
	require.Equal(t, "12.3456", FormatQuantity("ATOM_USDT", 12.34567))
}

func TestFormatQuantityNeverRoundsUp(t *testing.T) {
	// округление вверх приводит к INSUFFICIENT_BALANCE
	require.Equal(t, "99", FormatQuantity("SUI_USDT", 99.999))
	require.Equal(t, "0.99", FormatQuantity("ETH_USDT", 0.9999))
}

func TestFormatPrice(t *testing.T) {
	require.Equal(t, "64123.45", FormatPrice(64123.456789))
	require.Equal(t, "3.6213", FormatPrice(3.62134567))
	require.Equal(t, "0.0000214", FormatPrice(0.0000214))
}

func TestFormatNotional(t *testing.T) {
	require.Equal(t, "10", FormatNotional(10))
	require.Equal(t, "10.55", FormatNotional(10.559))
}

func TestBaseCurrency(t *testing.T) {
	require.Equal(t, "SUI", BaseCurrency("SUI_USDT"))
	require.Equal(t, "BTC", BaseCurrency("BTC"))
}

func TestAlternateQuantityFormats(t *testing.T) {
	alts := alternateQuantityFormats(150000.75)
	require.Equal(t, []string{"150000", "150000.75", "150000.8"}, alts)
}
