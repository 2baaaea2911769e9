package model

import (
	"encoding/json"
	"time"
)

// TFCandle represents a resampled OHLC candle for a timeframe.
// TF is the timeframe duration in seconds (e.g., 60 = 1 minute).
// All prices are in paise (int64) to avoid floating-point drift.
type TFCandle struct {
	Token    string    `json:"token"`
	Exchange string    `json:"exchange"`
	TF       int       `json:"tf"`     // timeframe in seconds
	TS       time.Time `json:"ts"`     // bucket start time (UTC, TF-aligned)
	Open     int64     `json:"open"`   // paise
	High     int64     `json:"high"`   // paise
	Low      int64     `json:"low"`    // paise
	Close    int64     `json:"close"`  // paise
	Volume   int64     `json:"volume"` // cumulative quantity
	Count    int       `json:"count"`  // number of 1s candles merged
}

// Key returns "exchange:token".
func (c *TFCandle) Key() string {
	return c.Exchange + ":" + c.Token
}

// JSON returns the JSON-encoded TF candle.
func (c *TFCandle) JSON() []byte {
	b, _ := json.Marshal(c)
	return b
}

// Rupees converts a paise price to rupees.
func Rupees(paise int64) float64 {
	return float64(paise) / 100.0
}

// Paise converts a rupee price to paise, rounding to the nearest paisa.
func Paise(rupees float64) int64 {
	if rupees < 0 {
		return int64(rupees*100 - 0.5)
	}
	return int64(rupees*100 + 0.5)
}
