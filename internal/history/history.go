// Package history maintains the per-symbol rolling candle window used for
// short-term average volume.
package history

import "volsignals-bot/internal/models"

// DefaultCapacity is 6 hours of 5-minute candles.
const DefaultCapacity = 72

// Append adds latest to window if its open time strictly exceeds the stored
// tail's, then trims the front down to capacity. Duplicate or stale fetches
// are no-ops, so the update is idempotent within a cycle. Gaps from missed
// cycles are not backfilled; this is an append-and-trim window, not a
// time-bucketed one.
func Append(window []models.Candle, latest models.Candle, capacity int) ([]models.Candle, bool) {
	if len(window) > 0 && latest.OpenTime <= window[len(window)-1].OpenTime {
		return window, false
	}
	window = append(window, latest)
	if capacity > 0 && len(window) > capacity {
		window = window[len(window)-capacity:]
	}
	return window, true
}
