// Package cache stores the most recent candle per symbol for roughly one
// polling interval, serving as a stale fallback when a fetch fails
// mid-cycle.
package cache

import (
	"context"
	"time"

	"volsignals-bot/internal/models"
)

// CandleCache is the minimal cache API the scheduler needs.
type CandleCache interface {
	Get(ctx context.Context, symbol string) (models.Candle, bool, error)
	Set(ctx context.Context, symbol string, c models.Candle, ttl time.Duration) error
}
