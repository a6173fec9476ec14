package exchange

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	"github.com/dgraph-io/ristretto"
	"github.com/pkg/errors"
)

const (
	// трейдинг живёт на v1, account-summary остался на v2
	restV1 = "https://api.crypto.com/exchange/v1/"
	restV2 = "https://api.crypto.com/v2/"

	// глубже этого уровня параметры в подпись не разворачиваем
	maxSignLevel = 3
)

type Client struct {
	http      *http.Client
	apiKey    string
	apiSecret string

	tickerCache *ristretto.Cache
	tickerTTL   time.Duration
}

func NewClient(apiKey, apiSecret string) (*Client, error) {
	cache, err := ristretto.NewCache(&ristretto.Config{
		NumCounters: 1e4,
		MaxCost:     1 << 20,
		BufferItems: 64,
	})
	if err != nil {
		return nil, errors.Wrap(err, "ticker cache")
	}
	return &Client{
		http:        &http.Client{Timeout: 15 * time.Second},
		apiKey:      apiKey,
		apiSecret:   apiSecret,
		tickerCache: cache,
		tickerTTL:   30 * time.Second,
	}, nil
}

// APIError — ответ биржи с code != 0. Код 213 (invalid quantity format)
// разруливается отдельно в Sell.
type APIError struct {
	Code    int64
	Message string
	Method  string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("exchange %s: code=%d msg=%s", e.Method, e.Code, e.Message)
}

// IsAPICode true, если err (или его причина) — APIError с данным кодом.
func IsAPICode(err error, code int64) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code == code
	}
	return false
}

type apiResponse struct {
	ID      int64           `json:"id"`
	Code    int64           `json:"code"`
	Message string          `json:"message"`
	Result  json.RawMessage `json:"result"`
}

func baseFor(method string) string {
	if strings.Contains(method, "get-account-summary") {
		return restV2
	}
	return restV1
}

// ===== подпись запроса =====

// paramString разворачивает params в строку для подписи:
// ключи в алфавитном порядке, без разделителей.
func paramString(params map[string]any, level int) string {
	if level >= maxSignLevel {
		b, _ := sonic.Marshal(params)
		return string(b)
	}
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteString(stringifyParam(params[k], level))
	}
	return sb.String()
}

func stringifyParam(v any, level int) string {
	switch t := v.(type) {
	case nil:
		return "null"
	case bool:
		if t {
			return "true"
		}
		return "false"
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case map[string]any:
		return paramString(t, level+1)
	case []any:
		var sb strings.Builder
		for _, e := range t {
			sb.WriteString(stringifyParam(e, level+1))
		}
		return sb.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}

func signPayload(secret, method string, id int64, apiKey, paramStr string, nonce int64) string {
	payload := method + strconv.FormatInt(id, 10) + apiKey + paramStr + strconv.FormatInt(nonce, 10)
	h := hmac.New(sha256.New, []byte(secret))
	h.Write([]byte(payload))
	return hex.EncodeToString(h.Sum(nil))
}

// ===== транспорт =====

func (c *Client) sendRequest(ctx context.Context, method string, params map[string]any) (json.RawMessage, error) {
	if params == nil {
		params = map[string]any{}
	}
	id := time.Now().UnixMilli()
	nonce := id

	envelope := map[string]any{
		"id":      id,
		"method":  method,
		"api_key": c.apiKey,
		"params":  params,
		"nonce":   nonce,
		"sig":     signPayload(c.apiSecret, method, id, c.apiKey, paramString(params, 0), nonce),
	}
	b, err := sonic.Marshal(envelope)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, baseFor(method)+method, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, errors.Wrapf(err, "call %s", method)
	}
	defer resp.Body.Close()

	rb, _ := io.ReadAll(resp.Body)

	// код ошибки биржа кладёт в тело и на 4xx тоже, поэтому сперва парсим тело
	var wrap apiResponse
	if err := sonic.Unmarshal(rb, &wrap); err != nil {
		if resp.StatusCode/100 != 2 {
			return nil, fmt.Errorf("http %d: %s", resp.StatusCode, string(rb))
		}
		return nil, err
	}
	if wrap.Code != 0 {
		return nil, &APIError{Code: wrap.Code, Message: wrap.Message, Method: method}
	}
	return wrap.Result, nil
}
