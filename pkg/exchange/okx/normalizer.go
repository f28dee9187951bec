package okx

import (
	"fmt"
	"strconv"
	"time"

	"github.com/cockroachdb/apd/v3"

	"okxrest/pkg/core"
)

type okxServerTime struct {
	TS string `json:"ts"`
}

type okxTicker struct {
	InstID  string `json:"instId"`
	Last    string `json:"last"`
	AskPx   string `json:"askPx"`
	BidPx   string `json:"bidPx"`
	High24h string `json:"high24h"`
	Low24h  string `json:"low24h"`
	Vol24h  string `json:"vol24h"`
	TS      string `json:"ts"`
}

type okxAccount struct {
	UTime   string             `json:"uTime"`
	Details []okxBalanceDetail `json:"details"`
}

type okxBalanceDetail struct {
	Ccy       string `json:"ccy"`
	AvailBal  string `json:"availBal"`
	FrozenBal string `json:"frozenBal"`
	Eq        string `json:"eq"`
}

func normalizeTicker(data *okxTicker) (*core.Ticker, error) {
	ticker := &core.Ticker{Symbol: data.InstID}

	fields := []struct {
		dest *apd.Decimal
		src  string
		name string
	}{
		{&ticker.Bid, data.BidPx, "bidPx"},
		{&ticker.Ask, data.AskPx, "askPx"},
		{&ticker.Last, data.Last, "last"},
		{&ticker.High, data.High24h, "high24h"},
		{&ticker.Low, data.Low24h, "low24h"},
		{&ticker.Volume, data.Vol24h, "vol24h"},
	}
	for _, f := range fields {
		if err := parseDecimal(f.dest, f.src); err != nil {
			return nil, fmt.Errorf("ticker %s: %w", f.name, err)
		}
	}

	if data.TS != "" {
		ts, err := parseMillis(data.TS)
		if err != nil {
			return nil, fmt.Errorf("ticker ts: %w", err)
		}
		ticker.Timestamp = ts
	}

	return ticker, nil
}

func normalizeBalances(accounts []okxAccount) ([]core.Balance, error) {
	var balances []core.Balance

	for _, account := range accounts {
		for _, d := range account.Details {
			b := core.Balance{Asset: d.Ccy}
			if err := parseDecimal(&b.Free, d.AvailBal); err != nil {
				return nil, fmt.Errorf("balance %s availBal: %w", d.Ccy, err)
			}
			if err := parseDecimal(&b.Locked, d.FrozenBal); err != nil {
				return nil, fmt.Errorf("balance %s frozenBal: %w", d.Ccy, err)
			}
			if err := parseDecimal(&b.Equity, d.Eq); err != nil {
				return nil, fmt.Errorf("balance %s eq: %w", d.Ccy, err)
			}
			balances = append(balances, b)
		}
	}

	return balances, nil
}

func parseDecimal(dest *apd.Decimal, s string) error {
	if s == "" {
		*dest = apd.Decimal{}
		return nil
	}

	_, _, err := apd.BaseContext.SetString(dest, s)
	if err != nil {
		return fmt.Errorf("set decimal from string: %w", err)
	}

	return nil
}

func parseMillis(s string) (time.Time, error) {
	ms, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse millis %q: %w", s, err)
	}
	return time.UnixMilli(ms).UTC(), nil
}
