package exchange

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParamStringSortsKeys(t *testing.T) {
	s := paramString(map[string]any{
		"side":            "BUY",
		"instrument_name": "SUI_USDT",
		"notional":        "10",
	}, 0)
	require.Equal(t, "instrument_nameSUI_USDTnotional10sideBUY", s)
}

func TestParamStringScalars(t *testing.T) {
	require.Equal(t, "xnull", paramString(map[string]any{"x": nil}, 0))
	require.Equal(t, "xtrue", paramString(map[string]any{"x": true}, 0))
	require.Equal(t, "xfalse", paramString(map[string]any{"x": false}, 0))
	require.Equal(t, "x10", paramString(map[string]any{"x": int64(10)}, 0))
	require.Equal(t, "x0.362", paramString(map[string]any{"x": 0.362}, 0))
}

func TestParamStringNested(t *testing.T) {
	s := paramString(map[string]any{
		"params": map[string]any{
			"b": "2",
			"a": "1",
		},
		"list": []any{"x", "y"},
	}, 0)
	require.Equal(t, "listxyparamsa1b2", s)
}

func TestParamStringEmpty(t *testing.T) {
	require.Equal(t, "", paramString(map[string]any{}, 0))
}

func TestSignPayloadStable(t *testing.T) {
	sig1 := signPayload("secret", "private/create-order", 1000, "key", "sideBUY", 1000)
	sig2 := signPayload("secret", "private/create-order", 1000, "key", "sideBUY", 1000)
	require.Equal(t, sig1, sig2)
	require.Len(t, sig1, 64) // hex от sha256

	other := signPayload("other-secret", "private/create-order", 1000, "key", "sideBUY", 1000)
	require.NotEqual(t, sig1, other)

	otherNonce := signPayload("secret", "private/create-order", 1000, "key", "sideBUY", 1001)
	require.NotEqual(t, sig1, otherNonce)
}

func TestIsAPICode(t *testing.T) {
	err := &APIError{Code: 213, Message: "Invalid quantity format", Method: "private/create-order"}
	require.True(t, IsAPICode(err, 213))
	require.False(t, IsAPICode(err, 306))
	require.False(t, IsAPICode(nil, 213))
}

func TestBaseForMethod(t *testing.T) {
	require.Equal(t, restV2, baseFor("private/get-account-summary"))
	require.Equal(t, restV1, baseFor("private/create-order"))
	require.Equal(t, restV1, baseFor("private/get-order-detail"))
}
