package exchange

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

// LastPrice отдаёт последнюю цену сделки по инструменту.
// Кэшируем на 30 секунд: лист опрашивается чаще, чем цены успевают уехать.
func (c *Client) LastPrice(ctx context.Context, symbol string) (float64, error) {
	if v, ok := c.tickerCache.Get(symbol); ok {
		return v.(float64), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		restV1+"public/get-ticker?instrument_name="+symbol, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return 0, errors.Wrapf(err, "ticker %s", symbol)
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)
	if resp.StatusCode/100 != 2 {
		return 0, fmt.Errorf("http %d: %s", resp.StatusCode, string(rb))
	}

	var wrap struct {
		Code   int64 `json:"code"`
		Result struct {
			Data []struct {
				Last string `json:"a"` // последняя цена сделки
			} `json:"data"`
		} `json:"result"`
	}
	if err := sonic.Unmarshal(rb, &wrap); err != nil {
		return 0, err
	}
	if wrap.Code != 0 || len(wrap.Result.Data) == 0 {
		return 0, fmt.Errorf("ticker %s: empty response (code=%d)", symbol, wrap.Code)
	}

	price, err := strconv.ParseFloat(wrap.Result.Data[0].Last, 64)
	if err != nil || price <= 0 {
		return 0, fmt.Errorf("ticker %s: bad price %q", symbol, wrap.Result.Data[0].Last)
	}

	c.tickerCache.SetWithTTL(symbol, price, 1, c.tickerTTL)
	return price, nil
}
