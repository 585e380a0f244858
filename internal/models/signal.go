package models

import "time"

// Signal is one dispatched per-user notification, recorded for auditing.
type Signal struct {
	ID     string
	ChatID int64
	Symbol string

	VolatilityPct float64
	Level         int
	QuoteVolume   float64
	AvgVolume     float64

	RefVolatilityPct float64
	RefLevel         int

	SentAt time.Time
}

// DigestEntry is one row of the top-volatility digest.
type DigestEntry struct {
	Symbol        string
	VolatilityPct float64
}
