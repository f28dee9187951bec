package okx

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"okxrest/pkg/core"
)

// Client exposes typed OKX endpoints on top of an Executor.
type Client struct {
	exec *Executor
}

// NewClient wraps exec.
func NewClient(exec *Executor) *Client {
	return &Client{exec: exec}
}

// Executor returns the underlying executor for endpoints without a typed method.
func (c *Client) Executor() *Executor {
	return c.exec
}

// envelope is the common OKX response shape.
type envelope[T any] struct {
	Code string `json:"code"`
	Msg  string `json:"msg"`
	Data []T    `json:"data"`
}

// fetch executes req and unwraps the envelope, turning a non-"0" code into an
// *core.ExchangeError.
func fetch[T any](ctx context.Context, exec *Executor, req *core.Request) ([]T, error) {
	var env envelope[T]
	if err := exec.DoInto(ctx, req, &env); err != nil {
		return nil, err
	}

	if env.Code != "0" {
		return nil, core.NewExchangeErrorWithCode(
			exec.config.Exchange,
			mapErrorCode(env.Code, http.StatusOK),
			http.StatusOK,
			env.Code,
			env.Msg,
		)
	}

	return env.Data, nil
}

func first[T any](rows []T) (*T, error) {
	if len(rows) == 0 {
		return nil, core.ErrEmptyResponse
	}
	return &rows[0], nil
}

// ServerTime returns the exchange clock. It is the startup connectivity probe.
func (c *Client) ServerTime(ctx context.Context) (time.Time, error) {
	rows, err := fetch[okxServerTime](ctx, c.exec, core.NewRequest(http.MethodGet, "/public/time"))
	if err != nil {
		return time.Time{}, err
	}

	row, err := first(rows)
	if err != nil {
		return time.Time{}, fmt.Errorf("server time: %w", err)
	}

	return parseMillis(row.TS)
}

// Ticker returns the latest ticker of an instrument such as "BTC-USDT".
func (c *Client) Ticker(ctx context.Context, instID string) (*core.Ticker, error) {
	if instID == "" {
		return nil, fmt.Errorf("instrument id is required")
	}

	req := core.NewRequest(http.MethodGet, "/market/ticker").SetQuery("instId", instID)
	rows, err := fetch[okxTicker](ctx, c.exec, req)
	if err != nil {
		return nil, err
	}

	row, err := first(rows)
	if err != nil {
		return nil, fmt.Errorf("ticker %s: %w", instID, err)
	}

	return normalizeTicker(row)
}

// Balance returns trading account balances, optionally limited to currencies.
func (c *Client) Balance(ctx context.Context, currencies ...string) ([]core.Balance, error) {
	req := core.NewRequest(http.MethodGet, "/account/balance")
	if len(currencies) > 0 {
		req.SetQuery("ccy", strings.Join(currencies, ","))
	}

	rows, err := fetch[okxAccount](ctx, c.exec, req)
	if err != nil {
		return nil, err
	}

	return normalizeBalances(rows)
}
