// Package models defines the core domain entities: candles, thresholds,
// user subscriptions, and dispatched signals.
package models

import (
	"encoding/json"
	"fmt"
)

// Candle is one fixed-interval kline as returned by the exchange's REST API:
// a positional array [openTime, open, high, low, close, volume, closeTime,
// quoteVolume, tradeCount, takerBuyVolume, takerBuyQuoteVolume, ignore].
// Price and volume fields arrive as decimal strings and are kept verbatim;
// fields past index 5 may be absent on degraded feeds.
type Candle struct {
	OpenTime            int64
	Open                string
	High                string
	Low                 string
	Close               string
	Volume              string
	CloseTime           int64
	QuoteVolume         string
	TradeCount          int64
	TakerBuyVolume      string
	TakerBuyQuoteVolume string
}

// minCandleFields is the required prefix of the kline array. Trailing fields
// are optional; consumers fall back when they are missing.
const minCandleFields = 6

// UnmarshalJSON decodes the positional kline array form.
func (c *Candle) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("kline is not an array: %w", err)
	}
	if len(raw) < minCandleFields {
		return fmt.Errorf("kline has %d fields, want at least %d", len(raw), minCandleFields)
	}

	if err := json.Unmarshal(raw[0], &c.OpenTime); err != nil {
		return fmt.Errorf("invalid open time: %w", err)
	}
	for i, dst := range []*string{&c.Open, &c.High, &c.Low, &c.Close, &c.Volume} {
		if err := json.Unmarshal(raw[i+1], dst); err != nil {
			return fmt.Errorf("invalid kline field %d: %w", i+1, err)
		}
	}

	// Optional trailing fields: ignore decode failures, leave zero values.
	if len(raw) > 6 {
		_ = json.Unmarshal(raw[6], &c.CloseTime)
	}
	if len(raw) > 7 {
		_ = json.Unmarshal(raw[7], &c.QuoteVolume)
	}
	if len(raw) > 8 {
		_ = json.Unmarshal(raw[8], &c.TradeCount)
	}
	if len(raw) > 9 {
		_ = json.Unmarshal(raw[9], &c.TakerBuyVolume)
	}
	if len(raw) > 10 {
		_ = json.Unmarshal(raw[10], &c.TakerBuyQuoteVolume)
	}
	return nil
}

// MarshalJSON re-encodes the candle in the positional array form so stored
// history round-trips through the same decoder.
func (c Candle) MarshalJSON() ([]byte, error) {
	arr := []any{
		c.OpenTime, c.Open, c.High, c.Low, c.Close, c.Volume,
		c.CloseTime, c.QuoteVolume, c.TradeCount, c.TakerBuyVolume,
		c.TakerBuyQuoteVolume, "0",
	}
	return json.Marshal(arr)
}
