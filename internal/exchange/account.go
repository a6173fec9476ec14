package exchange

import (
	"context"
	"strings"

	"github.com/bytedance/sonic"
	"github.com/pkg/errors"
)

type Balance struct {
	Currency  string  `json:"currency"`
	Total     float64 `json:"balance"`
	Available float64 `json:"available"`
	Stake     float64 `json:"stake"`
}

// AccountSummary отдаёт балансы по всем валютам (или одной, если currency != "").
func (c *Client) AccountSummary(ctx context.Context, currency string) ([]Balance, error) {
	params := map[string]any{}
	if currency != "" {
		params["currency"] = strings.ToUpper(currency)
	}
	raw, err := c.sendRequest(ctx, "private/get-account-summary", params)
	if err != nil {
		return nil, err
	}

	var result struct {
		Accounts []Balance `json:"accounts"`
	}
	if err := sonic.Unmarshal(raw, &result); err != nil {
		return nil, errors.Wrap(err, "parse account summary")
	}
	return result.Accounts, nil
}

// AvailableBalance возвращает доступный остаток валюты, 0 если счёта нет.
func (c *Client) AvailableBalance(ctx context.Context, currency string) (float64, error) {
	accounts, err := c.AccountSummary(ctx, currency)
	if err != nil {
		return 0, err
	}
	for _, a := range accounts {
		if strings.EqualFold(a.Currency, currency) {
			return a.Available, nil
		}
	}
	return 0, nil
}

// HasSufficientBalance проверяет, хватает ли USDT на покупку с запасом 5% на
// комиссии и проскальзывание. Возвращает и сам остаток для сообщения в телеграм.
func (c *Client) HasSufficientBalance(ctx context.Context, tradeAmount float64) (bool, float64, error) {
	available, err := c.AvailableBalance(ctx, "USDT")
	if err != nil {
		return false, 0, err
	}
	return available >= tradeAmount*1.05, available, nil
}
