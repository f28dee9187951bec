package core

import (
	"time"

	"github.com/cockroachdb/apd/v3"
)

// Ticker represents real-time market data for an instrument.
type Ticker struct {
	// Symbol is the instrument identifier (e.g., "BTC-USDT").
	Symbol string `json:"symbol"`
	// Bid is the best bid price.
	Bid apd.Decimal `json:"bid"`
	// Ask is the best ask price.
	Ask apd.Decimal `json:"ask"`
	// Last is the price of the most recent trade.
	Last apd.Decimal `json:"last"`
	// High is the highest price in the last 24 hours.
	High apd.Decimal `json:"high"`
	// Low is the lowest price in the last 24 hours.
	Low apd.Decimal `json:"low"`
	// Volume is the 24 hour volume in base currency.
	Volume apd.Decimal `json:"volume"`
	// Timestamp is the exchange time of the snapshot.
	Timestamp time.Time `json:"timestamp"`
}

// Balance represents account balance for a single asset.
type Balance struct {
	// Asset is the currency symbol (e.g., "BTC", "USDT").
	Asset string `json:"asset"`
	// Free is the balance available for trading.
	Free apd.Decimal `json:"free"`
	// Locked is the balance frozen by open orders.
	Locked apd.Decimal `json:"locked"`
	// Equity is the total equity of the asset.
	Equity apd.Decimal `json:"equity"`
}
